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
	"github.com/guestkit/guestkit/pkg/abi"
	"github.com/guestkit/guestkit/pkg/guest"
)

// sysRtSigaction stores and retrieves the 5-word per-signal records.
// Signals are never delivered; the table only round-trips.
func sysRtSigaction(p *guest.Process, args [6]uint64) {
	signum, act, oldact := args[0], args[1], args[2]

	if oldact != 0 {
		if rec := p.SigactionEntry(signum); rec != nil {
			for i, w := range rec {
				p.WriteU32(oldact+4*uint64(i), w)
			}
		} else {
			p.CPU.MemWrite(oldact, make([]byte, 4*abi.SigactionWords))
		}
	}
	if act != 0 {
		var rec [abi.SigactionWords]uint32
		for i := range rec {
			w, err := p.ReadU32(act + 4*uint64(i))
			if err != nil {
				ret(p, -1)
				return
			}
			rec[i] = w
		}
		p.SetSigaction(signum, rec)
	}
	p.Log.Infof("rt_sigaction(%#x, %#x, %#x) = 0", signum, act, oldact)
	ret(p, 0)
}

// sysRtSigprocmask accepts mask changes without effect; nothing delivers
// signals.
func sysRtSigprocmask(p *guest.Process, args [6]uint64) {
	p.Log.Infof("rt_sigprocmask(%#x, %#x, %#x, %#x) = 0", args[0], args[1], args[2], args[3])
	ret(p, 0)
}

// sysAlarm accepts and ignores the timer.
func sysAlarm(p *guest.Process, args [6]uint64) {
	p.Log.Infof("alarm(%d) = 0", args[0])
	ret(p, 0)
}

// sysSetitimer accepts and ignores interval timers; there is no signal
// delivery to arm.
func sysSetitimer(p *guest.Process, args [6]uint64) {
	p.Log.Infof("setitimer(%d, %#x, %#x) = 0", args[0], args[1], args[2])
	ret(p, 0)
}
