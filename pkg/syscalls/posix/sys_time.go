// Copyright 2024 The Guestkit Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package posix

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/guestkit/guestkit/pkg/guest"
)

// sysTime implements time(2).
func sysTime(p *guest.Process, args [6]uint64) {
	rv := time.Now().Unix()
	p.Log.Infof("time() = %d", rv)
	ret(p, rv)
}

// sysGettimeofday implements gettimeofday(2); the timezone struct is
// zeroed.
func sysGettimeofday(p *guest.Process, args [6]uint64) {
	tv, tz := args[0], args[1]
	now := time.Now()
	sec := now.Unix()
	usec := int64(now.Nanosecond()) / 1000

	if tv != 0 {
		p.WriteU32(tv, uint32(sec))
		p.WriteU32(tv+4, uint32(usec))
	}
	if tz != 0 {
		p.CPU.MemWrite(tz, make([]byte, 8))
	}
	p.Log.Infof("gettimeofday(%#x, %#x) = 0", tv, tz)
	ret(p, 0)
}

// sysNanosleep implements nanosleep(2). Single-threaded processes sleep
// the host; threaded ones park the calling thread on the scheduler's
// emulated clock.
func sysNanosleep(p *guest.Process, args [6]uint64) {
	req, rem := args[0], args[1]

	sec, err := p.ReadU32(req)
	if err != nil {
		ret(p, -1)
		return
	}
	nsec, err := p.ReadU32(req + 4)
	if err != nil {
		ret(p, -1)
		return
	}
	d := time.Duration(sec)*time.Second + time.Duration(nsec)*time.Nanosecond

	if p.Sched == nil {
		time.Sleep(d)
	} else {
		cur := p.Sched.Current()
		start := p.Sched.RunningTime()
		wait := uint64(d / time.Microsecond)
		cur.Block(func(p *guest.Process, t *guest.Thread) bool {
			return p.Sched.RunningTime()-start < wait
		})
		p.StopEngine()
	}
	p.Log.Infof("nanosleep(%#x, %#x) = 0", req, rem)
	ret(p, 0)
}

// sysTimes implements times(2) from host process times, in
// centiseconds.
func sysTimes(p *guest.Process, args [6]uint64) {
	buf := args[0]
	var tms unix.Tms
	ticks, err := unix.Times(&tms)
	rv := int64(-1)
	if err == nil {
		if buf != 0 {
			p.WriteU32(buf, uint32(tms.Utime))
			p.WriteU32(buf+4, uint32(tms.Stime))
			p.WriteU32(buf+8, uint32(tms.Cutime))
			p.WriteU32(buf+12, uint32(tms.Cstime))
		}
		rv = int64(ticks)
	}
	p.Log.Infof("times(%#x) = %d", buf, rv)
	ret(p, rv)
}
