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
	"bufio"
	"io"
	"sync"
)

// Keyboard feeds characters from the host reader, normally stdin. Read_Char
// returns the character in RAX.L and reports "got a character" in the
// non-zero flag; once the host input is exhausted it keeps returning EOT
// with the flag clear.
type Keyboard struct {
	mu     sync.Mutex
	in     *bufio.Reader
	peeked *byte
	eof    bool
}

func NewKeyboard(in io.Reader) *Keyboard {
	return &Keyboard{in: bufio.NewReader(in)}
}

func (k *Keyboard) Handle(regs *Registers) {
	k.mu.Lock()
	defer k.mu.Unlock()

	switch regs.RAX.H() {
	case KeyboardPeekChar:
		ch, ok := k.peek()
		regs.RAX.SetL(ch)
		regs.Flags.NonZero = ok
		regs.Flags.Carry = false

	case KeyboardReadChar:
		ch, ok := k.read()
		regs.RAX.SetL(ch)
		regs.Flags.NonZero = ok
		regs.Flags.Carry = false

	default:
		regs.Flags.Carry = true
	}
}

func (k *Keyboard) peek() (byte, bool) {
	if k.peeked != nil {
		return *k.peeked, true
	}

	ch, ok := k.readHost()
	if !ok {
		return ControlCodeEOT, false
	}

	k.peeked = &ch
	return ch, true
}

func (k *Keyboard) read() (byte, bool) {
	if k.peeked != nil {
		ch := *k.peeked
		k.peeked = nil
		return ch, true
	}

	ch, ok := k.readHost()
	if !ok {
		return ControlCodeEOT, false
	}
	return ch, true
}

func (k *Keyboard) readHost() (byte, bool) {
	if k.eof {
		return 0, false
	}

	ch, err := k.in.ReadByte()
	if err != nil {
		k.eof = true
		return 0, false
	}

	// A terminal in line mode delivers '\n'; the simulated keyboard speaks
	// CR like the original console expects.
	if ch == '\n' {
		ch = '\r'
	}

	return ch, true
}
