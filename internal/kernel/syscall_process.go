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

package kernel

import (
	"github.com/Cajova-Houba/kiv-os-simulator/internal/event"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/handle"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/process"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
)

func (k *Kernel) handleProcess(env *process.Env, regs *process.Registers) status.Status {
	switch regs.RAX.L() {
	case SysClone:
		id, s := k.clone(env, regs)
		if s == status.Success {
			regs.RAX.SetX(uint16(id))
		}
		return s

	case SysWaitFor:
		index, s := k.waitFor(env, regs.Handles)
		if s == status.Success {
			regs.RAX.SetX(uint16(index))
		}
		return s

	case SysReadExitCode:
		code, s := k.readExitCode(env, handle.ID(regs.RDX.X()))
		if s == status.Success {
			regs.RAX.SetX(code)
		}
		return s

	case SysExit:
		if env == nil {
			return status.UnrecognizedThread
		}
		// Only the return code is recorded here; the thread terminates by
		// returning from its entry function.
		env.SetExitCode(int32(regs.RCX.X()))
		return status.Success

	case SysShutdown:
		k.Shutdown()
		return status.Success

	case SysRegisterSignalHandler:
		return k.registerSignalHandler(env, process.Signal(regs.RCX.L()), regs.Proc)
	}

	return status.InvalidArgument
}

func (k *Kernel) clone(env *process.Env, regs *process.Registers) (handle.ID, status.Status) {
	if env == nil {
		return 0, status.UnrecognizedThread
	}

	switch regs.RCX.L() {
	case CloneCreateProcess:
		stdIn := handle.ID(regs.RBX.E() >> 16)
		stdOut := handle.ID(regs.RBX.E())

		return k.createProcess(env, regs.Text, regs.Args, stdIn, stdOut)

	case CloneCreateThread:
		return k.createThread(env, regs.Proc, regs.RDI.R)
	}

	return 0, status.InvalidArgument
}

// createProcess resolves the program symbol, inherits stdin/stdout by
// transferring fresh references into the child's handle set, and clones
// the parent's working directory.
func (k *Kernel) createProcess(env *process.Env, program, cmdLine string,
	stdInID, stdOutID handle.ID) (handle.ID, status.Status) {
	entry := k.programs.Lookup(program)
	if entry == nil {
		return 0, status.FileNotFound
	}

	parent := env.Process()

	var stdIn, stdOut handle.Reference

	if stdInID != 0 {
		stdIn = parent.GetHandleOfKind(stdInID, handle.KindFile)
		if !stdIn.IsValid() {
			return 0, status.InvalidArgument
		}
	}

	if stdOutID != 0 {
		stdOut = parent.GetHandleOfKind(stdOutID, handle.KindFile)
		if !stdOut.IsValid() {
			stdIn.Release()
			return 0, status.InvalidArgument
		}
	}

	ref, err := process.Create(k.sys, entry, program, cmdLine, parent.WorkingDirectory(), stdIn, stdOut, false)
	if err != nil {
		return 0, status.OutOfMemory
	}

	id := ref.ID()
	parent.AddHandle(ref)

	return id, status.Success
}

func (k *Kernel) createThread(env *process.Env, entry process.EntryFunc, param uint64) (handle.ID, status.Status) {
	if entry == nil {
		return 0, status.InvalidArgument
	}

	regs := &process.Registers{}
	regs.RDI.SetR(param)

	ref, err := process.NewThread(k.sys, entry, regs, env.ProcessID())
	if err != nil {
		return 0, status.OutOfMemory
	}

	id := ref.ID()
	env.Process().AddHandle(ref)

	return id, status.Success
}

func (k *Kernel) waitFor(env *process.Env, ids []handle.ID) (int, status.Status) {
	if len(ids) == 0 {
		return 0, status.InvalidArgument
	}
	if env == nil {
		return 0, status.UnrecognizedThread
	}

	return k.events.WaitForAny(env.Process(), ids, event.ThreadEnd|event.ProcessEnd)
}

// readExitCode reports the exit code of a thread, or of a process via its
// main thread.
func (k *Kernel) readExitCode(env *process.Env, id handle.ID) (uint16, status.Status) {
	if env == nil {
		return 0, status.UnrecognizedThread
	}

	ref := env.Process().GetHandle(id)
	if !ref.IsValid() {
		return 0, status.InvalidArgument
	}
	defer ref.Release()

	switch obj := ref.Object().(type) {
	case *process.Thread:
		return uint16(obj.ExitCode()), status.Success

	case *process.Process:
		mainThread := obj.MainThread()
		if !mainThread.IsValid() {
			return 0, status.InvalidArgument
		}
		defer mainThread.Release()

		return uint16(mainThread.Object().(*process.Thread).ExitCode()), status.Success

	default:
		return 0, status.InvalidArgument
	}
}

func (k *Kernel) registerSignalHandler(env *process.Env, sig process.Signal, handler process.EntryFunc) status.Status {
	if env == nil {
		return status.UnrecognizedThread
	}

	if sig == 0 || sig > 32 {
		return status.InvalidArgument
	}

	if handler != nil {
		env.SetSignalEnabled(sig, true)
		env.SetSignalHandler(handler)
	} else {
		env.SetSignalEnabled(sig, false)
	}

	return status.Success
}
