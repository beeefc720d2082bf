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

package pipe

import (
	"bytes"
	"testing"
	"time"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/handle"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/vfs"
	"github.com/jacobsa/syncutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	syncutil.EnableInvariantChecking()
}

func newPipe(t *testing.T) (*ReadEnd, *WriteEnd, func()) {
	t.Helper()

	table := handle.NewTable()
	readRef, writeRef, err := New(table)
	require.NoError(t, err)

	r := readRef.Object().(*ReadEnd)
	w := writeRef.Object().(*WriteEnd)

	return r, w, func() {
		readRef.Release()
		writeRef.Release()
	}
}

func TestEndpointKinds(t *testing.T) {
	r, w, done := newPipe(t)
	defer done()

	assert.Equal(t, handle.KindFile, r.HandleKind())
	assert.Equal(t, handle.KindFile, w.HandleKind())
	assert.Equal(t, vfs.KindPipeReadEnd, r.FileKind())
	assert.Equal(t, vfs.KindPipeWriteEnd, w.FileKind())
}

func TestWriteThenReadThenEOF(t *testing.T) {
	r, w, done := newPipe(t)
	defer done()

	payload := []byte("hello\n")

	n, s := w.Write(payload)
	require.Equal(t, status.Success, s)
	require.Equal(t, len(payload), n)

	w.Close()

	buf := make([]byte, 64)
	n, s = r.Read(buf)
	require.Equal(t, status.Success, s)
	assert.Equal(t, payload, buf[:n])

	// EOF: success with zero bytes.
	n, s = r.Read(buf)
	require.Equal(t, status.Success, s)
	assert.Zero(t, n)
}

func TestBytesArriveInOrderAcrossWraparound(t *testing.T) {
	r, w, done := newPipe(t)
	defer done()

	// Much more data than the ring holds, so the writer must block and
	// wrap repeatedly.
	var sent []byte
	for i := 0; i < 4*BufferSize; i++ {
		sent = append(sent, byte(i))
	}

	go func() {
		for off := 0; off < len(sent); off += 100 {
			end := off + 100
			if end > len(sent) {
				end = len(sent)
			}
			w.Write(sent[off:end])
		}
		w.Close()
	}()

	var got bytes.Buffer
	buf := make([]byte, 333)
	for {
		n, s := r.Read(buf)
		require.Equal(t, status.Success, s)
		if n == 0 {
			break
		}
		got.Write(buf[:n])
	}

	assert.Equal(t, sent, got.Bytes())
}

func TestReadBlocksUntilDataArrives(t *testing.T) {
	r, w, done := newPipe(t)
	defer done()

	result := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := r.Read(buf)
		result <- buf[:n]
	}()

	// Give the reader time to park.
	time.Sleep(10 * time.Millisecond)

	_, s := w.Write([]byte("x"))
	require.Equal(t, status.Success, s)

	select {
	case got := <-result:
		assert.Equal(t, []byte("x"), got)
	case <-time.After(time.Second):
		t.Fatal("reader never woke up")
	}
}

func TestWriterBlockedOnFullRingDetachesWhenReaderCloses(t *testing.T) {
	r, w, done := newPipe(t)
	defer done()

	// Fill the ring completely.
	n, s := w.Write(make([]byte, BufferSize))
	require.Equal(t, status.Success, s)
	require.Equal(t, BufferSize, n)

	result := make(chan int, 1)
	go func() {
		n, _ := w.Write(make([]byte, 10))
		result <- n
	}()

	time.Sleep(10 * time.Millisecond)
	r.Close()

	select {
	case got := <-result:
		assert.Zero(t, got, "a write interrupted by the reader closing reports 0 bytes")
	case <-time.After(time.Second):
		t.Fatal("writer never woke up")
	}
}

func TestWriteAfterReaderClosedReportsZeroBytes(t *testing.T) {
	r, w, done := newPipe(t)
	defer done()

	r.Close()

	n, s := w.Write([]byte("dropped"))
	assert.Equal(t, status.Success, s)
	assert.Zero(t, n)
}

func TestOperationsOnLocallyClosedEndsAreInvalid(t *testing.T) {
	r, w, done := newPipe(t)
	defer done()

	r.Close()
	w.Close()

	_, s := r.Read(make([]byte, 4))
	assert.Equal(t, status.InvalidArgument, s)

	_, s = w.Write([]byte("x"))
	assert.Equal(t, status.InvalidArgument, s)
}

func TestReaderDrainsBufferedDataAfterWriterCloses(t *testing.T) {
	r, w, done := newPipe(t)
	defer done()

	w.Write([]byte("abc"))
	w.Close()

	buf := make([]byte, 2)

	n, s := r.Read(buf)
	require.Equal(t, status.Success, s)
	assert.Equal(t, []byte("ab"), buf[:n])

	n, s = r.Read(buf)
	require.Equal(t, status.Success, s)
	assert.Equal(t, []byte("c"), buf[:n])

	n, s = r.Read(buf)
	require.Equal(t, status.Success, s)
	assert.Zero(t, n)
}

func TestWrongDirectionIsInvalid(t *testing.T) {
	r, w, done := newPipe(t)
	defer done()

	_, s := r.Write([]byte("x"))
	assert.Equal(t, status.InvalidArgument, s)

	_, s = w.Read(make([]byte, 4))
	assert.Equal(t, status.InvalidArgument, s)
}
