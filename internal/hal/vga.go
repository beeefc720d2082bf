// Copyright 2025 Google LLC
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

package hal

import (
	"io"
	"sync"
)

// VGA renders text output onto the host writer, normally stdout.
type VGA struct {
	mu  sync.Mutex
	out io.Writer
}

func NewVGA(out io.Writer) *VGA {
	return &VGA{out: out}
}

func (v *VGA) Handle(regs *Registers) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch regs.RAX.H() {
	case VGAWriteControlChar:
		ch := regs.RDX.L()
		if ch == '\b' {
			// Erase the glyph under the cursor, the way text-mode BIOS
			// backspace behaves on a terminal.
			v.out.Write([]byte{'\b', ' ', '\b'})
		} else {
			v.out.Write([]byte{ch})
		}
		regs.Flags.Carry = false

	case VGAWriteString:
		length := regs.RCX.R
		buf := regs.Buffer
		if uint64(len(buf)) > length {
			buf = buf[:length]
		}
		v.out.Write(buf)
		regs.Flags.Carry = false

	default:
		regs.Flags.Carry = true
	}
}
