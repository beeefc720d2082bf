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
	"sync"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/hal"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/handle"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/vfs"
)

// Console is the single kernel-wide console file handle. Reads go through
// the line reader; writes go straight to the VGA under a writer mutex. Many
// processes share the one handle, so closing it from a process is a no-op;
// the kernel shuts the console down at teardown.
type Console struct {
	hal    *hal.HAL
	reader *Reader

	writeMu sync.Mutex
}

var _ vfs.FileHandle = (*Console)(nil)

func New(h *hal.HAL) *Console {
	return &Console{
		hal:    h,
		reader: NewReader(h),
	}
}

func (c *Console) HandleKind() handle.Kind {
	return handle.KindFile
}

func (c *Console) FileKind() vfs.FileKind {
	return vfs.KindConsole
}

// Close is a no-op; see the type comment.
func (c *Console) Close() {
}

// Shutdown tears the console down for good at kernel exit.
func (c *Console) Shutdown() {
	c.reader.Close()
}

// Join waits for the reader worker to finish after Shutdown.
func (c *Console) Join() {
	c.reader.Join()
}

func (c *Console) Read(buf []byte) (int, status.Status) {
	if len(buf) == 0 {
		return 0, status.InvalidArgument
	}

	return c.reader.ReadLine(buf), status.Success
}

func (c *Console) Write(data []byte) (int, status.Status) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var regs hal.Registers
	regs.RAX.SetH(hal.VGAWriteString)
	regs.RCX.SetR(uint64(len(data)))
	regs.Buffer = data

	c.hal.Call(hal.InterruptVGA, &regs)
	if regs.Flags.Carry {
		return 0, status.IOError
	}

	return len(data), status.Success
}
