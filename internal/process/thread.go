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

// Package process implements threads, processes, and the thread-scoped
// environment through which user code reaches the kernel. Each simulated
// thread is a goroutine; the environment created in its prologue replaces
// the thread-local storage of a native kernel.
package process

import (
	"sync/atomic"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/event"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/handle"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/logger"
)

// Signal numbers 1..32.
type Signal uint8

// SignalTerminate is raised on every live thread at kernel shutdown.
const SignalTerminate Signal = 15

const maxSignal = 32

func signalBit(sig Signal) uint32 {
	return 1 << (uint8(sig) - 1)
}

// Thread is the lifecycle wrapper over one goroutine. started and running
// are latched independently so that a THREAD_END wait fires exactly once on
// the transition to terminated and never before the thread has run.
type Thread struct {
	sys *System

	exitCode atomic.Int32
	running  atomic.Bool
	started  atomic.Bool

	// Pending-signal bitmask; bit N-1 is signal N.
	pendingSignals atomic.Uint32

	// Enabled-signal mask and handler. Only the owning thread touches
	// these, at syscall boundaries; no lock is needed.
	signalMask    uint32
	signalHandler EntryFunc
}

var _ event.Runner = (*Thread)(nil)

func (t *Thread) HandleKind() handle.Kind {
	return handle.KindThread
}

func (t *Thread) IsRunning() bool {
	return t.running.Load()
}

func (t *Thread) HasStarted() bool {
	return t.started.Load()
}

func (t *Thread) ExitCode() int32 {
	return t.exitCode.Load()
}

// RaiseSignal marks sig pending. The owning thread delivers it at its next
// syscall boundary. Safe from any thread.
func (t *Thread) RaiseSignal(sig Signal) {
	if sig == 0 || sig > maxSignal {
		return
	}
	t.pendingSignals.Or(signalBit(sig))
}

// NewThread registers a fresh thread object and runs entry on a new
// goroutine. The returned reference is the creator's.
func NewThread(sys *System, entry EntryFunc, regs *Registers, processID handle.ID) (handle.Reference, error) {
	t := &Thread{sys: sys}

	ref, err := sys.handles.Add(t)
	if err != nil {
		return handle.Reference{}, err
	}

	go t.run(entry, regs, ref.ID(), processID)

	return ref, nil
}

// run is the thread entry protocol: prologue, user code, epilogue.
func (t *Thread) run(entry EntryFunc, regs *Registers, threadID, processID handle.ID) {
	env := &Env{
		self:    t.sys.handles.Get(threadID),
		process: t.sys.handles.Get(processID),
	}
	defer env.teardown()

	proc := env.Process()

	t.running.Store(true)
	t.started.Store(true)

	t.sys.events.Dispatch(event.ThreadStart, threadID)

	if proc.incrementThreadCount() == 1 {
		proc.started.Store(true)
		t.sys.events.Dispatch(event.ProcessStart, processID)
	}

	entry(env, regs)

	t.running.Store(false)

	t.sys.events.Dispatch(event.ThreadEnd, threadID)

	if proc.decrementThreadCount() == 0 {
		logger.Debugf("process: pid %d terminated with code %d", processID, t.exitCode.Load())
		t.sys.events.Dispatch(event.ProcessEnd, processID)
	}
}
