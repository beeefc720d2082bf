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

// Package console implements the kernel console: a cooperating
// single-threaded line reader fed from the HAL keyboard, and a synchronous
// writer onto the HAL VGA.
package console

import (
	"context"
	"sync"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/hal"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/logger"
	"github.com/jacobsa/syncutil"
)

// Reader owns the keyboard. A dedicated worker goroutine starts lazily on
// the first read; it assembles complete lines and parks them on a queue for
// readers.
type Reader struct {
	hal *hal.HAL

	mu sync.Mutex

	// Signaled when a reader shows up.
	workerCond *sync.Cond

	// Signaled when a line lands on the queue or the reader shuts down.
	readerCond *sync.Cond

	// GUARDED_BY(mu)
	lineQueue []string

	// GUARDED_BY(mu)
	readerCount int

	// GUARDED_BY(mu)
	open bool

	// GUARDED_BY(mu)
	workerStarted bool

	bundle *syncutil.Bundle
}

func NewReader(h *hal.HAL) *Reader {
	r := &Reader{
		hal:  h,
		open: true,
	}
	r.workerCond = sync.NewCond(&r.mu)
	r.readerCond = sync.NewCond(&r.mu)
	r.bundle = syncutil.NewBundle(context.Background())

	return r
}

// LOCKS_EXCLUDED(r.mu)
func (r *Reader) ensureWorker() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.workerStarted || !r.open {
		return
	}
	r.workerStarted = true

	r.bundle.Add(func(ctx context.Context) error {
		r.workerLoop()
		return nil
	})
}

// Close shuts the reader down; blocked and future readers drain the queue
// and then see end-of-input.
//
// LOCKS_EXCLUDED(r.mu)
func (r *Reader) Close() {
	r.mu.Lock()
	r.open = false
	r.mu.Unlock()

	r.workerCond.Broadcast()
	r.readerCond.Broadcast()
}

// Join waits for the worker goroutine, if it ever started, to wind down.
func (r *Reader) Join() {
	r.bundle.Join()
}

func (r *Reader) workerLoop() {
	for r.waitForReader() {
		line, ok := r.readLineFromKeyboard()
		if !ok {
			logger.Infof("console: keyboard input exhausted")
			r.Close()
			return
		}

		r.pushLine(line)
	}
}

// waitForReader parks the worker until someone wants a line.
//
// LOCKS_EXCLUDED(r.mu)
func (r *Reader) waitForReader() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.open {
		if r.readerCount > 0 {
			return true
		}
		r.workerCond.Wait()
	}

	return false
}

// LOCKS_EXCLUDED(r.mu)
func (r *Reader) pushLine(line string) {
	r.mu.Lock()
	r.lineQueue = append(r.lineQueue, line)
	r.mu.Unlock()

	r.readerCond.Signal()
}

func (r *Reader) halReadChar() (byte, bool) {
	var regs hal.Registers
	regs.RAX.SetH(hal.KeyboardReadChar)

	r.hal.Call(hal.InterruptKeyboard, &regs)

	// The flag means "got a character"; EOT with the flag clear is
	// definitive end-of-input.
	return regs.RAX.L(), regs.Flags.NonZero
}

func (r *Reader) halEcho(ch byte) {
	var regs hal.Registers
	regs.RAX.SetH(hal.VGAWriteControlChar)
	regs.RDX.SetL(ch)

	r.hal.Call(hal.InterruptVGA, &regs)
}

// readLineFromKeyboard assembles one line, echoing as it goes. Backspace
// pops, LF is skipped, CR terminates the line with '\n', and the
// interactive control characters terminate the line as-is.
func (r *Reader) readLineFromKeyboard() (string, bool) {
	var line []byte

	for {
		ch, ok := r.halReadChar()
		if !ok {
			return "", false
		}

		switch ch {
		case 0:
			return string(line), true

		case '\b':
			if len(line) > 0 {
				line = line[:len(line)-1]
				r.halEcho('\b')
			}

		case '\n':
			// ignored

		case '\r':
			line = append(line, '\n')
			r.halEcho('\n')
			return string(line), true

		case 3, 4, 26, '\t': // Ctrl+C, Ctrl+D, Ctrl+Z, Tab
			line = append(line, ch)
			return string(line), true

		default:
			line = append(line, ch)
			r.halEcho(ch)
		}
	}
}

// ReadLine hands the caller at most one queued line, waking the worker if
// the queue is empty. A truncated line keeps its unread tail at the head
// of the queue. A closed, drained reader reports 0 bytes.
//
// LOCKS_EXCLUDED(r.mu)
func (r *Reader) ReadLine(buf []byte) int {
	r.ensureWorker()

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.lineQueue) == 0 && r.open {
		r.readerCount++

		// Wake the worker; something needs reading.
		r.workerCond.Signal()

		for len(r.lineQueue) == 0 && r.open {
			r.readerCond.Wait()
		}

		r.readerCount--
	}

	if len(r.lineQueue) == 0 {
		return 0
	}

	line := r.lineQueue[0]
	n := copy(buf, line)

	if n < len(line) {
		r.lineQueue[0] = line[n:]
	} else {
		r.lineQueue = r.lineQueue[1:]
	}

	return n
}
