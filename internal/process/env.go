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

import "github.com/Cajova-Houba/kiv-os-simulator/internal/handle"

// Env is the thread-scoped environment: owning references to the current
// thread and its process, established in the thread prologue and torn down
// in the epilogue. A syscall arriving without one is from a thread the
// kernel does not know.
//
// The Env must only be used from the goroutine it was created for.
type Env struct {
	self    handle.Reference
	process handle.Reference
}

func (e *Env) teardown() {
	e.self.Release()
	e.process.Release()
}

func (e *Env) Thread() *Thread {
	return e.self.Object().(*Thread)
}

func (e *Env) ThreadID() handle.ID {
	return e.self.ID()
}

func (e *Env) Process() *Process {
	return e.process.Object().(*Process)
}

func (e *Env) ProcessID() handle.ID {
	return e.process.ID()
}

// Syscall traps into the kernel on behalf of the current thread.
func (e *Env) Syscall(regs *Registers) {
	e.Thread().sys.syscall(e, regs)
}

// SetExitCode records the exit code of the current thread. Termination
// itself happens when the entry function returns.
func (e *Env) SetExitCode(code int32) {
	e.Thread().exitCode.Store(code)
}

// SetSignalHandler installs the handler invoked for enabled pending
// signals at syscall boundaries.
func (e *Env) SetSignalHandler(handler EntryFunc) {
	e.Thread().signalHandler = handler
}

// SetSignalEnabled enables or disables one signal for the current thread.
// Any pending instance of the signal is discarded either way.
func (e *Env) SetSignalEnabled(sig Signal, enabled bool) {
	if sig == 0 || sig > maxSignal {
		return
	}

	t := e.Thread()
	bit := signalBit(sig)

	if enabled {
		t.signalMask |= bit
	} else {
		t.signalMask &^= bit
	}

	t.pendingSignals.And(^bit)
}

// HandleSignals delivers every pending enabled signal to the registered
// handler, once each, in ascending signal order. Called by the kernel on
// syscall entry and exit.
func (e *Env) HandleSignals() {
	t := e.Thread()

	if t.signalHandler == nil {
		return
	}

	pending := t.pendingSignals.Swap(0)
	if pending == 0 {
		return
	}

	for i := 0; i < maxSignal; i++ {
		bit := uint32(1) << i
		if pending&bit != 0 && t.signalMask&bit != 0 {
			regs := &Registers{}
			regs.RCX.SetE(uint32(i + 1))

			t.signalHandler(e, regs)
		}
	}
}
