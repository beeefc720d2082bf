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
	"sync/atomic"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/event"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/handle"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/logger"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/ospath"
	"github.com/jacobsa/syncutil"
)

// System bundles the kernel services the process layer depends on. Tests
// build a fresh one per kernel instance.
type System struct {
	handles *handle.Table
	events  *event.System

	// The installed syscall entry point; the moral equivalent of hooking
	// the system interrupt.
	syscall func(env *Env, regs *Registers)
}

func NewSystem(handles *handle.Table, events *event.System) *System {
	return &System{
		handles: handles,
		events:  events,
	}
}

// SetSyscallHandler installs the kernel's syscall entry point. Called once
// during kernel construction, before any user thread starts.
func (s *System) SetSyscallHandler(fn func(env *Env, regs *Registers)) {
	s.syscall = fn
}

func (s *System) Handles() *handle.Table {
	return s.handles
}

func (s *System) Events() *event.System {
	return s.events
}

// Process owns a handle set, a working directory, a command line, and its
// main thread. A process is running while its live-thread count is
// positive; the record outlives termination in the handle table so the
// exit code stays retrievable.
type Process struct {
	sys *System

	mu syncutil.InvariantMutex

	// The per-process handle set: every reference the process owns.
	//
	// GUARDED_BY(mu)
	handles map[handle.ID]handle.Reference

	// GUARDED_BY(mu)
	mainThreadID handle.ID

	// GUARDED_BY(mu)
	cwd ospath.Path

	threadCount atomic.Int32
	started     atomic.Bool

	// Never change after creation.
	name    string
	cmdLine string
}

var _ event.Runner = (*Process)(nil)
var _ event.HandleSet = (*Process)(nil)

func (p *Process) HandleKind() handle.Kind {
	return handle.KindProcess
}

// LOCKS_REQUIRED(p.mu)
func (p *Process) checkInvariants() {
	// INVARIANT: every reference in the set is valid and registered under
	// its own ID.
	for id, ref := range p.handles {
		if !ref.IsValid() || ref.ID() != id {
			panic("process handle set holds a stale reference")
		}
	}
}

func (p *Process) ThreadCount() uint16 {
	n := p.threadCount.Load()
	if n < 0 {
		n = 0
	}
	return uint16(n)
}

func (p *Process) IsRunning() bool {
	return p.threadCount.Load() > 0
}

func (p *Process) HasStarted() bool {
	return p.started.Load()
}

func (p *Process) Name() string {
	return p.name
}

func (p *Process) CmdLine() string {
	return p.cmdLine
}

func (p *Process) incrementThreadCount() int32 {
	return p.threadCount.Add(1)
}

func (p *Process) decrementThreadCount() int32 {
	return p.threadCount.Add(-1)
}

// WorkingDirectory returns the current working directory, always absolute.
//
// LOCKS_EXCLUDED(p.mu)
func (p *Process) WorkingDirectory() ospath.Path {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cwd
}

// SetWorkingDirectory stores an absolute path as the new cwd.
//
// LOCKS_EXCLUDED(p.mu)
func (p *Process) SetWorkingDirectory(cwd ospath.Path) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cwd = cwd
}

// MakeAbsolute rewrites a relative path against the cwd.
//
// LOCKS_EXCLUDED(p.mu)
func (p *Process) MakeAbsolute(path *ospath.Path) {
	p.mu.Lock()
	defer p.mu.Unlock()

	path.MakeAbsolute(p.cwd)
}

// MainThread resolves the process's main thread through the handle table.
//
// LOCKS_EXCLUDED(p.mu)
func (p *Process) MainThread() handle.Reference {
	// The main-thread ID is filled in after the thread exists, so this
	// must synchronize.
	p.mu.Lock()
	id := p.mainThreadID
	p.mu.Unlock()

	return p.sys.handles.Get(id)
}

// AddHandle transfers ownership of ref into the process's set. Invalid
// references are ignored.
//
// LOCKS_EXCLUDED(p.mu)
func (p *Process) AddHandle(ref handle.Reference) {
	if !ref.IsValid() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.handles[ref.ID()]; ok {
		old.Release()
	}
	p.handles[ref.ID()] = ref
}

// RemoveHandle drops the process's reference to id, if it holds one.
//
// LOCKS_EXCLUDED(p.mu)
func (p *Process) RemoveHandle(id handle.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ref, ok := p.handles[id]; ok {
		delete(p.handles, id)
		ref.Release()
	}
}

// GetHandle returns a fresh table reference for a handle in this process's
// set, or an invalid reference.
//
// LOCKS_EXCLUDED(p.mu)
func (p *Process) GetHandle(id handle.ID) handle.Reference {
	p.mu.Lock()
	_, ok := p.handles[id]
	p.mu.Unlock()

	if !ok {
		return handle.Reference{}
	}

	return p.sys.handles.Get(id)
}

// GetHandleOfKind is GetHandle restricted to one kind.
//
// LOCKS_EXCLUDED(p.mu)
func (p *Process) GetHandleOfKind(id handle.ID, kind handle.Kind) handle.Reference {
	p.mu.Lock()
	_, ok := p.handles[id]
	p.mu.Unlock()

	if !ok {
		return handle.Reference{}
	}

	return p.sys.handles.GetOfKind(id, kind)
}

// ForEachHandle resolves ids in order against the process's set, invoking
// cb for each. It returns false as soon as an ID is missing or cb does.
//
// LOCKS_EXCLUDED(p.mu)
func (p *Process) ForEachHandle(ids []handle.ID, cb func(ref *handle.Reference, index int) bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, id := range ids {
		ref, ok := p.handles[id]
		if !ok {
			return false
		}

		if !cb(&ref, i) {
			return false
		}
	}

	return true
}

// Destroy empties the handle set once the last reference to this process
// is gone, so handles owned only by a dead process do not outlive it.
func (p *Process) Destroy() {
	p.ReleaseAllHandles()
}

// ReleaseAllHandles empties the handle set; used when the kernel tears a
// process down.
//
// LOCKS_EXCLUDED(p.mu)
func (p *Process) ReleaseAllHandles() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, ref := range p.handles {
		delete(p.handles, id)
		ref.Release()
	}
}

// Create allocates a process, transfers stdIn and stdOut into its handle
// set, and starts the main thread running entry. With inCurrentThread the
// main thread runs on the calling goroutine and Create returns only after
// it finishes; the bootstrap uses that for the initial process.
func Create(sys *System, entry EntryFunc, name, cmdLine string, cwd ospath.Path,
	stdIn, stdOut handle.Reference, inCurrentThread bool) (handle.Reference, error) {
	p := &Process{
		sys:     sys,
		handles: make(map[handle.ID]handle.Reference),
		cwd:     cwd,
		name:    name,
		cmdLine: cmdLine,
	}
	p.mu = syncutil.NewInvariantMutex(p.checkInvariants)

	procRef, err := sys.handles.Add(p)
	if err != nil {
		stdIn.Release()
		stdOut.Release()
		return handle.Reference{}, err
	}

	// Prefill the child's register context: stdin and stdout IDs plus the
	// command line.
	regs := &Registers{Text: p.cmdLine}
	regs.RAX.SetX(uint16(stdIn.ID()))
	regs.RBX.SetX(uint16(stdOut.ID()))

	p.AddHandle(stdIn)
	p.AddHandle(stdOut)

	logger.Debugf("process: created %q (pid %d, cmdline %q)", name, procRef.ID(), cmdLine)

	if inCurrentThread {
		t := &Thread{sys: sys}

		mainThread, err := sys.handles.Add(t)
		if err != nil {
			p.ReleaseAllHandles()
			procRef.Release()
			return handle.Reference{}, err
		}

		p.mu.Lock()
		p.mainThreadID = mainThread.ID()
		p.mu.Unlock()

		threadID := mainThread.ID()
		p.AddHandle(mainThread)

		t.run(entry, regs, threadID, procRef.ID())
	} else {
		p.mu.Lock()

		mainThread, err := NewThread(sys, entry, regs, procRef.ID())
		if err != nil {
			p.mu.Unlock()
			p.ReleaseAllHandles()
			procRef.Release()
			return handle.Reference{}, err
		}

		p.mainThreadID = mainThread.ID()
		p.handles[mainThread.ID()] = mainThread

		p.mu.Unlock()
	}

	return procRef, nil
}
