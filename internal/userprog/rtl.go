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

package userprog

import (
	"github.com/Cajova-Houba/kiv-os-simulator/internal/handle"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/process"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
)

// This file is the user-side runtime library: thin wrappers that pack the
// register context for each syscall. User programs and tests speak to the
// kernel exclusively through these.

// Service numbers mirrored from the kernel's syscall surface.
const (
	serviceFileSystem uint8 = 1
	serviceProcess    uint8 = 2
)

const (
	sysOpenFile uint8 = iota + 1
	sysWriteFile
	sysReadFile
	sysSeek
	sysCloseHandle
	sysDeleteFile
	sysSetWorkingDir
	sysGetWorkingDir
	sysCreatePipe
)

const (
	sysClone uint8 = iota + 1
	sysWaitFor
	sysReadExitCode
	sysExit
	sysShutdown
	sysRegisterSignalHandler
)

const (
	cloneCreateProcess uint8 = 1
	cloneCreateThread  uint8 = 2
)

// OpenAlways requires the target of OpenFile to exist.
const OpenAlways uint8 = 1 << 0

func call(env *process.Env, regs *process.Registers) status.Status {
	env.Syscall(regs)
	if regs.Flags.Carry {
		return status.Status(regs.RAX.X())
	}
	return status.Success
}

func OpenFile(env *process.Env, path string, flags uint8, attributes uint16) (handle.ID, status.Status) {
	regs := &process.Registers{Text: path}
	regs.RAX.SetH(serviceFileSystem)
	regs.RAX.SetL(sysOpenFile)
	regs.RCX.SetL(flags)
	regs.RDI.SetX(attributes)

	if s := call(env, regs); s != status.Success {
		return 0, s
	}
	return handle.ID(regs.RAX.X()), status.Success
}

func WriteFile(env *process.Env, id handle.ID, data []byte) (int, status.Status) {
	regs := &process.Registers{Buffer: data}
	regs.RAX.SetH(serviceFileSystem)
	regs.RAX.SetL(sysWriteFile)
	regs.RDX.SetX(uint16(id))
	regs.RCX.SetR(uint64(len(data)))

	if s := call(env, regs); s != status.Success {
		return 0, s
	}
	return int(regs.RAX.R), status.Success
}

func ReadFile(env *process.Env, id handle.ID, buf []byte) (int, status.Status) {
	regs := &process.Registers{Buffer: buf}
	regs.RAX.SetH(serviceFileSystem)
	regs.RAX.SetL(sysReadFile)
	regs.RDX.SetX(uint16(id))
	regs.RCX.SetR(uint64(len(buf)))

	if s := call(env, regs); s != status.Success {
		return 0, s
	}
	return int(regs.RAX.R), status.Success
}

func Seek(env *process.Env, id handle.ID, command, base uint8, offset int64) (uint64, status.Status) {
	regs := &process.Registers{}
	regs.RAX.SetH(serviceFileSystem)
	regs.RAX.SetL(sysSeek)
	regs.RDX.SetX(uint16(id))
	regs.RCX.SetX(uint16(command)<<8 | uint16(base))
	regs.RDI.SetR(uint64(offset))

	if s := call(env, regs); s != status.Success {
		return 0, s
	}
	return regs.RAX.R, status.Success
}

func CloseHandle(env *process.Env, id handle.ID) status.Status {
	regs := &process.Registers{}
	regs.RAX.SetH(serviceFileSystem)
	regs.RAX.SetL(sysCloseHandle)
	regs.RDX.SetX(uint16(id))

	return call(env, regs)
}

func DeleteFile(env *process.Env, path string) status.Status {
	regs := &process.Registers{Text: path}
	regs.RAX.SetH(serviceFileSystem)
	regs.RAX.SetL(sysDeleteFile)

	return call(env, regs)
}

func SetWorkingDir(env *process.Env, path string) status.Status {
	regs := &process.Registers{Text: path}
	regs.RAX.SetH(serviceFileSystem)
	regs.RAX.SetL(sysSetWorkingDir)

	return call(env, regs)
}

func GetWorkingDir(env *process.Env, buf []byte) (int, status.Status) {
	regs := &process.Registers{Buffer: buf}
	regs.RAX.SetH(serviceFileSystem)
	regs.RAX.SetL(sysGetWorkingDir)
	regs.RCX.SetR(uint64(len(buf)))

	if s := call(env, regs); s != status.Success {
		return 0, s
	}
	return int(regs.RAX.R), status.Success
}

// CreatePipe returns the write end and the read end, in that order.
func CreatePipe(env *process.Env) (writeEnd, readEnd handle.ID, s status.Status) {
	out := make([]handle.ID, 2)

	regs := &process.Registers{Handles: out}
	regs.RAX.SetH(serviceFileSystem)
	regs.RAX.SetL(sysCreatePipe)

	if s = call(env, regs); s != status.Success {
		return 0, 0, s
	}
	return out[0], out[1], status.Success
}

func CreateProcess(env *process.Env, program, cmdLine string, stdIn, stdOut handle.ID) (handle.ID, status.Status) {
	regs := &process.Registers{Text: program, Args: cmdLine}
	regs.RAX.SetH(serviceProcess)
	regs.RAX.SetL(sysClone)
	regs.RCX.SetL(cloneCreateProcess)
	regs.RBX.SetE(uint32(stdIn)<<16 | uint32(stdOut))

	if s := call(env, regs); s != status.Success {
		return 0, s
	}
	return handle.ID(regs.RAX.X()), status.Success
}

func CreateThread(env *process.Env, entry process.EntryFunc, param uint64) (handle.ID, status.Status) {
	regs := &process.Registers{Proc: entry}
	regs.RAX.SetH(serviceProcess)
	regs.RAX.SetL(sysClone)
	regs.RCX.SetL(cloneCreateThread)
	regs.RDI.SetR(param)

	if s := call(env, regs); s != status.Success {
		return 0, s
	}
	return handle.ID(regs.RAX.X()), status.Success
}

// WaitFor blocks until one of the handles terminates and returns its index
// in ids.
func WaitFor(env *process.Env, ids []handle.ID) (int, status.Status) {
	regs := &process.Registers{Handles: ids}
	regs.RAX.SetH(serviceProcess)
	regs.RAX.SetL(sysWaitFor)
	regs.RCX.SetX(uint16(len(ids)))

	if s := call(env, regs); s != status.Success {
		return 0, s
	}
	return int(regs.RAX.X()), status.Success
}

func ReadExitCode(env *process.Env, id handle.ID) (uint16, status.Status) {
	regs := &process.Registers{}
	regs.RAX.SetH(serviceProcess)
	regs.RAX.SetL(sysReadExitCode)
	regs.RDX.SetX(uint16(id))

	if s := call(env, regs); s != status.Success {
		return 0, s
	}
	return regs.RAX.X(), status.Success
}

func Exit(env *process.Env, code uint16) status.Status {
	regs := &process.Registers{}
	regs.RAX.SetH(serviceProcess)
	regs.RAX.SetL(sysExit)
	regs.RCX.SetX(code)

	return call(env, regs)
}

func Shutdown(env *process.Env) status.Status {
	regs := &process.Registers{}
	regs.RAX.SetH(serviceProcess)
	regs.RAX.SetL(sysShutdown)

	return call(env, regs)
}

// RegisterSignalHandler installs handler for sig; a nil handler disables
// the signal.
func RegisterSignalHandler(env *process.Env, sig process.Signal, handler process.EntryFunc) status.Status {
	regs := &process.Registers{Proc: handler}
	regs.RAX.SetH(serviceProcess)
	regs.RAX.SetL(sysRegisterSignalHandler)
	regs.RCX.SetL(uint8(sig))

	return call(env, regs)
}

// StdIn and StdOut extract the inherited stream handles from a process's
// startup context.
func StdIn(regs *process.Registers) handle.ID {
	return handle.ID(regs.RAX.X())
}

func StdOut(regs *process.Registers) handle.ID {
	return handle.ID(regs.RBX.X())
}
