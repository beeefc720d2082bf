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

package process

import (
	"github.com/Cajova-Houba/kiv-os-simulator/internal/hal"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/handle"
)

// Registers is the register-packed parameter block of the syscall ABI. The
// numeric registers keep their original roles; each pointer-carrying
// argument of the original calling convention has a typed slot instead.
type Registers struct {
	RAX, RBX, RCX, RDX, RDI hal.Register
	Flags                   hal.Flags

	// Buffer carries the data-buffer argument of read/write style calls.
	Buffer []byte

	// Text carries the string argument: a path, a program symbol, or the
	// command line handed to a new process.
	Text string

	// Args carries the secondary string argument of Create_Process: the
	// child's command line.
	Args string

	// Handles carries handle-array arguments (Wait_For) and results
	// (Create_Pipe).
	Handles []handle.ID

	// Proc carries a function argument: the entry point of Create_Thread
	// or the handler of Register_Signal_Handler.
	Proc EntryFunc
}

// EntryFunc is the signature of every user-program entry point and signal
// handler. The environment is the thread-scoped context established by the
// kernel in the thread prologue; entry return values are advisory — exit
// codes travel through the Exit service.
type EntryFunc func(env *Env, regs *Registers) int32
