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
	"context"

	"github.com/Cajova-Houba/kiv-os-simulator/common"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/process"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
)

// Major service numbers, carried in RAX.H.
const (
	ServiceFileSystem uint8 = 1
	ServiceProcess    uint8 = 2
)

// File-system sub-commands, carried in RAX.L.
const (
	SysOpenFile uint8 = iota + 1
	SysWriteFile
	SysReadFile
	SysSeek
	SysCloseHandle
	SysDeleteFile
	SysSetWorkingDir
	SysGetWorkingDir
	SysCreatePipe
)

// Process sub-commands, carried in RAX.L.
const (
	SysClone uint8 = iota + 1
	SysWaitFor
	SysReadExitCode
	SysExit
	SysShutdown
	SysRegisterSignalHandler
)

// Clone variants, carried in RCX.L.
const (
	CloneCreateProcess uint8 = 1
	CloneCreateThread  uint8 = 2
)

// Syscall is the single entry point of the kernel. It drains the calling
// thread's pending signals, dispatches on the command registers, writes the
// result into the context (carry flag plus a status word on failure), and
// drains signals again before returning to user code.
func (k *Kernel) Syscall(env *process.Env, regs *process.Registers) {
	if env != nil {
		env.HandleSignals()
	}

	family := regs.RAX.H()
	op := regs.RAX.L()

	var s status.Status
	switch family {
	case ServiceFileSystem:
		s = k.handleIO(env, regs)
	case ServiceProcess:
		s = k.handleProcess(env, regs)
	default:
		s = status.InvalidArgument
	}

	attrs := []common.MetricAttr{
		{Key: "family", Value: familyName(family)},
		{Key: "op", Value: opName(family, op)},
	}
	k.metrics.SyscallCount(context.Background(), 1, attrs)

	if s == status.Success {
		regs.Flags.Carry = false
	} else {
		regs.Flags.Carry = true
		regs.RAX.SetX(uint16(s))

		k.metrics.SyscallErrorCount(context.Background(), 1,
			[]common.MetricAttr{{Key: "status", Value: s.String()}})
	}

	if env != nil {
		env.HandleSignals()
	}
}

func familyName(family uint8) string {
	switch family {
	case ServiceFileSystem:
		return "file_system"
	case ServiceProcess:
		return "process"
	default:
		return "unknown"
	}
}

func opName(family, op uint8) string {
	switch family {
	case ServiceFileSystem:
		switch op {
		case SysOpenFile:
			return "open_file"
		case SysWriteFile:
			return "write_file"
		case SysReadFile:
			return "read_file"
		case SysSeek:
			return "seek"
		case SysCloseHandle:
			return "close_handle"
		case SysDeleteFile:
			return "delete_file"
		case SysSetWorkingDir:
			return "set_working_dir"
		case SysGetWorkingDir:
			return "get_working_dir"
		case SysCreatePipe:
			return "create_pipe"
		}
	case ServiceProcess:
		switch op {
		case SysClone:
			return "clone"
		case SysWaitFor:
			return "wait_for"
		case SysReadExitCode:
			return "read_exit_code"
		case SysExit:
			return "exit"
		case SysShutdown:
			return "shutdown"
		case SysRegisterSignalHandler:
			return "register_signal_handler"
		}
	}
	return "unknown"
}
