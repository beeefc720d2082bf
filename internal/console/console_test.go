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

package console

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/hal"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lockedBuffer lets the test read VGA output without racing the worker.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestConsole(input io.Reader) (*Console, *lockedBuffer) {
	out := &lockedBuffer{}
	machine := hal.New(
		hal.NewDiskController(nil),
		hal.NewVGA(out),
		hal.NewKeyboard(input),
	)
	return New(machine), out
}

func TestWriteGoesToVGA(t *testing.T) {
	c, out := newTestConsole(strings.NewReader(""))
	defer c.Shutdown()

	n, s := c.Write([]byte("hello"))
	require.Equal(t, status.Success, s)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", out.String())
}

func TestKinds(t *testing.T) {
	c, _ := newTestConsole(strings.NewReader(""))
	defer c.Shutdown()

	assert.Equal(t, vfs.KindConsole, c.FileKind())
}

func TestReadLineReturnsOneLine(t *testing.T) {
	c, _ := newTestConsole(strings.NewReader("first\nsecond\n"))
	defer c.Shutdown()

	buf := make([]byte, 64)

	n, s := c.Read(buf)
	require.Equal(t, status.Success, s)
	assert.Equal(t, "first\n", string(buf[:n]))

	n, s = c.Read(buf)
	require.Equal(t, status.Success, s)
	assert.Equal(t, "second\n", string(buf[:n]))
}

func TestTruncatedLineKeepsTail(t *testing.T) {
	c, _ := newTestConsole(strings.NewReader("abcdef\n"))
	defer c.Shutdown()

	buf := make([]byte, 3)

	n, s := c.Read(buf)
	require.Equal(t, status.Success, s)
	assert.Equal(t, "abc", string(buf[:n]))

	n, s = c.Read(buf)
	require.Equal(t, status.Success, s)
	assert.Equal(t, "def", string(buf[:n]))

	big := make([]byte, 16)
	n, s = c.Read(big)
	require.Equal(t, status.Success, s)
	assert.Equal(t, "\n", string(big[:n]))
}

func TestBackspaceEditsLine(t *testing.T) {
	c, _ := newTestConsole(strings.NewReader("ab\bc\n"))
	defer c.Shutdown()

	buf := make([]byte, 16)
	n, s := c.Read(buf)
	require.Equal(t, status.Success, s)
	assert.Equal(t, "ac\n", string(buf[:n]))
}

func TestBackspaceOnEmptyLineIsIgnored(t *testing.T) {
	c, _ := newTestConsole(strings.NewReader("\bxy\n"))
	defer c.Shutdown()

	buf := make([]byte, 16)
	n, _ := c.Read(buf)
	assert.Equal(t, "xy\n", string(buf[:n]))
}

func TestControlCharactersTerminateLine(t *testing.T) {
	c, _ := newTestConsole(strings.NewReader("ab\x03rest\n"))
	defer c.Shutdown()

	buf := make([]byte, 16)

	n, s := c.Read(buf)
	require.Equal(t, status.Success, s)
	assert.Equal(t, "ab\x03", string(buf[:n]))

	n, s = c.Read(buf)
	require.Equal(t, status.Success, s)
	assert.Equal(t, "rest\n", string(buf[:n]))
}

func TestTabTerminatesLineAsIs(t *testing.T) {
	c, _ := newTestConsole(strings.NewReader("ab\tcd\n"))
	defer c.Shutdown()

	buf := make([]byte, 16)

	n, _ := c.Read(buf)
	assert.Equal(t, "ab\t", string(buf[:n]))

	n, _ = c.Read(buf)
	assert.Equal(t, "cd\n", string(buf[:n]))
}

func TestExhaustedInputReportsEOF(t *testing.T) {
	c, _ := newTestConsole(strings.NewReader(""))
	defer c.Shutdown()

	n, s := c.Read(make([]byte, 8))
	require.Equal(t, status.Success, s)
	assert.Zero(t, n)

	// And stays that way.
	n, s = c.Read(make([]byte, 8))
	require.Equal(t, status.Success, s)
	assert.Zero(t, n)
}

func TestInputIsEchoed(t *testing.T) {
	c, out := newTestConsole(strings.NewReader("hi\n"))
	defer c.Shutdown()

	buf := make([]byte, 16)
	c.Read(buf)

	assert.Equal(t, "hi\n", out.String())
}

func TestEmptyBufferIsInvalid(t *testing.T) {
	c, _ := newTestConsole(strings.NewReader(""))
	defer c.Shutdown()

	_, s := c.Read(nil)
	assert.Equal(t, status.InvalidArgument, s)
}
