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

// Package pipe implements a bounded ring buffer whose two endpoints are
// file handles. The ring state lives in the read end; the write end holds a
// back-pointer and forwards writes. Either side closing notifies the peer
// and clears the back-edge under lock.
package pipe

import (
	"sync"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/handle"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/vfs"
	"github.com/jacobsa/syncutil"
)

// BufferSize is the ring capacity in bytes.
const BufferSize = 1024

// New creates a connected endpoint pair and registers both in the table.
// On failure neither endpoint is registered.
func New(table *handle.Table) (readEnd, writeEnd handle.Reference, err error) {
	r := newReadEnd()
	w := &WriteEnd{readEnd: r}

	readEnd, err = table.Add(r)
	if err != nil {
		return
	}

	writeEnd, err = table.Add(w)
	if err != nil {
		readEnd.Release()
		readEnd = handle.Reference{}
		return
	}

	r.writeEnd = w

	return
}

// ReadEnd owns the ring buffer.
//
// INVARIANT: readerPos == writerPos && !full means the ring is empty;
// readerPos == writerPos && full means it holds BufferSize bytes.
type ReadEnd struct {
	mu syncutil.InvariantMutex

	// Signaled whenever bytes or space appear, or an endpoint goes away.
	cond *sync.Cond

	// GUARDED_BY(mu)
	buffer [BufferSize]byte

	// GUARDED_BY(mu)
	readerPos int

	// GUARDED_BY(mu)
	writerPos int

	// GUARDED_BY(mu)
	full bool

	// GUARDED_BY(mu)
	closed bool

	// The peer, or nil once it has closed.
	//
	// GUARDED_BY(mu)
	writeEnd *WriteEnd
}

var _ vfs.FileHandle = (*ReadEnd)(nil)

func newReadEnd() *ReadEnd {
	r := &ReadEnd{}
	r.mu = syncutil.NewInvariantMutex(r.checkInvariants)
	r.cond = sync.NewCond(&r.mu)

	return r
}

// LOCKS_REQUIRED(r.mu)
func (r *ReadEnd) checkInvariants() {
	if r.readerPos < 0 || r.readerPos >= BufferSize {
		panic("pipe reader position out of range")
	}
	if r.writerPos < 0 || r.writerPos >= BufferSize {
		panic("pipe writer position out of range")
	}
	if r.full && r.readerPos != r.writerPos {
		panic("pipe marked full with divergent positions")
	}
}

func (r *ReadEnd) HandleKind() handle.Kind {
	return handle.KindFile
}

// Destroy closes the endpoint when its last handle reference drops, so the
// peer learns about abandonment even without an explicit close.
func (r *ReadEnd) Destroy() {
	r.Close()
}

func (r *ReadEnd) FileKind() vfs.FileKind {
	return vfs.KindPipeReadEnd
}

// LOCKS_REQUIRED(r.mu)
func (r *ReadEnd) isEmpty() bool {
	return r.readerPos == r.writerPos && !r.full
}

// push is called by the write end. It blocks while the ring is full and a
// write end still exists, and consumes the whole input unless the write end
// is detached mid-wait, in which case it reports 0.
//
// LOCKS_EXCLUDED(r.mu)
func (r *ReadEnd) push(data []byte) int {
	r.mu.Lock()

	written := 0
	for written < len(data) {
		for r.full {
			if r.writeEnd == nil {
				r.mu.Unlock()
				return 0
			}
			r.cond.Signal()
			r.cond.Wait()
		}

		var length int
		if r.writerPos >= r.readerPos {
			length = BufferSize - r.writerPos
		} else {
			length = r.readerPos - r.writerPos
		}
		if length > len(data)-written {
			length = len(data) - written
		}

		copy(r.buffer[r.writerPos:], data[written:written+length])
		written += length

		r.writerPos += length
		if r.writerPos >= BufferSize {
			r.writerPos = 0
		}
		if r.writerPos == r.readerPos {
			r.full = true
		}
	}

	r.mu.Unlock()
	r.cond.Signal()

	return written
}

// LOCKS_EXCLUDED(r.mu)
func (r *ReadEnd) onWriteEndClosed() {
	r.mu.Lock()
	r.writeEnd = nil
	r.mu.Unlock()

	// Wake every reader waiting for more data; they will see EOF.
	r.cond.Broadcast()
}

// LOCKS_EXCLUDED(r.mu)
func (r *ReadEnd) Close() {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true

	w := r.writeEnd
	r.writeEnd = nil
	r.mu.Unlock()

	// Wake a pusher blocked on a full ring first; it must observe the
	// cleared back-edge before the write end's lock is taken below.
	r.cond.Broadcast()

	if w != nil {
		w.onReadEndClosed()
	}
}

// Read blocks while the ring is empty and a writer exists. EOF (writer gone,
// ring drained) reports success with 0 bytes.
//
// LOCKS_EXCLUDED(r.mu)
func (r *ReadEnd) Read(buf []byte) (int, status.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, status.InvalidArgument
	}

	for r.isEmpty() {
		if r.writeEnd == nil {
			return 0, status.Success
		}
		r.cond.Wait()

		if r.closed {
			return 0, status.InvalidArgument
		}
	}

	read := 0
	for !r.isEmpty() && read < len(buf) {
		var length int
		if r.readerPos < r.writerPos {
			length = r.writerPos - r.readerPos
		} else {
			length = BufferSize - r.readerPos
		}
		if length > len(buf)-read {
			length = len(buf) - read
		}

		copy(buf[read:], r.buffer[r.readerPos:r.readerPos+length])
		read += length

		r.readerPos += length
		if r.readerPos >= BufferSize {
			r.readerPos = 0
		}
		r.full = false
	}

	r.cond.Signal()

	return read, status.Success
}

// Write on the read end is invalid.
func (r *ReadEnd) Write(data []byte) (int, status.Status) {
	return 0, status.InvalidArgument
}

// WriteEnd is the writable endpoint.
type WriteEnd struct {
	mu sync.Mutex

	// GUARDED_BY(mu)
	closed bool

	// The peer, or nil once it has closed.
	//
	// GUARDED_BY(mu)
	readEnd *ReadEnd
}

var _ vfs.FileHandle = (*WriteEnd)(nil)

func (w *WriteEnd) HandleKind() handle.Kind {
	return handle.KindFile
}

// Destroy closes the endpoint when its last handle reference drops.
func (w *WriteEnd) Destroy() {
	w.Close()
}

func (w *WriteEnd) FileKind() vfs.FileKind {
	return vfs.KindPipeWriteEnd
}

// LOCKS_EXCLUDED(w.mu)
func (w *WriteEnd) onReadEndClosed() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.readEnd = nil
}

// LOCKS_EXCLUDED(w.mu)
func (w *WriteEnd) Close() {
	w.mu.Lock()
	w.closed = true
	r := w.readEnd
	w.readEnd = nil
	w.mu.Unlock()

	if r != nil {
		r.onWriteEndClosed()
	}
}

// Read on the write end is invalid.
func (w *WriteEnd) Read(buf []byte) (int, status.Status) {
	return 0, status.InvalidArgument
}

// Write forwards to the read end's push. A write after the reader closed
// succeeds with 0 bytes written; a write on a locally closed end is
// invalid.
//
// LOCKS_EXCLUDED(w.mu)
func (w *WriteEnd) Write(data []byte) (int, status.Status) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, status.InvalidArgument
	}
	if w.readEnd == nil {
		return 0, status.Success
	}

	return w.readEnd.push(data), status.Success
}
