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

package cmd

import (
	"strings"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/process"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/userprog"
)

// registerBuiltins installs the bundled user programs. The real shell and
// command set live in the user module; this minimal line loop only exists
// so a bare binary boots to a prompt.
func registerBuiltins(programs *userprog.Registry) {
	programs.Register("shell", shellMain)
	programs.Register("echo", echoMain)
}

func shellMain(env *process.Env, regs *process.Registers) int32 {
	stdIn := userprog.StdIn(regs)
	stdOut := userprog.StdOut(regs)

	buf := make([]byte, 256)
	cwd := make([]byte, 256)

	for {
		n, _ := userprog.GetWorkingDir(env, cwd)
		userprog.WriteFile(env, stdOut, append(cwd[:n:n], '>', ' '))

		n, s := userprog.ReadFile(env, stdIn, buf)
		if s != status.Success || n == 0 {
			return 0
		}

		line := strings.TrimSpace(string(buf[:n]))
		switch {
		case line == "":
			continue
		case line == "exit":
			return 0
		case line == "shutdown":
			userprog.Shutdown(env)
			return 0
		default:
			userprog.WriteFile(env, stdOut, []byte(line+"\n"))
		}
	}
}

func echoMain(env *process.Env, regs *process.Registers) int32 {
	stdOut := userprog.StdOut(regs)

	userprog.WriteFile(env, stdOut, []byte(regs.Text+"\n"))
	userprog.Exit(env, 0)

	return 0
}
