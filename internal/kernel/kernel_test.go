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
	"bytes"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/hal"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/handle"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/ospath"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/process"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/userprog"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/vfs"
	"github.com/jacobsa/syncutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	syncutil.EnableInvariantChecking()
}

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()

	machine := hal.New(
		hal.NewDiskController([]hal.Drive{hal.NewRAMDisk(1<<20, 512)}),
		hal.NewVGA(&bytes.Buffer{}),
		hal.NewKeyboard(strings.NewReader("")),
	)

	k, err := New(&Config{
		HAL:               machine,
		DriveCount:        1,
		FormatBlankDrives: true,
		Programs:          userprog.NewRegistry(),
	})
	require.NoError(t, err)

	return k
}

// runInProcess executes body as the main thread of a fresh process on the
// calling goroutine, with the console inherited as stdin and stdout.
func runInProcess(t *testing.T, k *Kernel, body func(env *process.Env, regs *process.Registers)) {
	t.Helper()

	entry := func(env *process.Env, regs *process.Registers) int32 {
		body(env, regs)
		return 0
	}

	stdIn := k.handles.Get(k.ConsoleID())
	stdOut := k.handles.Get(k.ConsoleID())

	ref, err := process.Create(k.sys, entry, "test", "test", ospath.Parse("A:\\"), stdIn, stdOut, true)
	require.NoError(t, err)
	ref.Release()
}

////////////////////////////////////////////////////////////////////////
// S1 — pipe copy
////////////////////////////////////////////////////////////////////////

func TestPipeCopyThroughSyscalls(t *testing.T) {
	k := newTestKernel(t)

	runInProcess(t, k, func(env *process.Env, regs *process.Registers) {
		writeEnd, readEnd, s := userprog.CreatePipe(env)
		require.Equal(t, status.Success, s)

		n, s := userprog.WriteFile(env, writeEnd, []byte("hello\n"))
		require.Equal(t, status.Success, s)
		require.Equal(t, 6, n)

		require.Equal(t, status.Success, userprog.CloseHandle(env, writeEnd))

		buf := make([]byte, 16)
		n, s = userprog.ReadFile(env, readEnd, buf)
		require.Equal(t, status.Success, s)
		assert.Equal(t, "hello\n", string(buf[:n]))

		n, s = userprog.ReadFile(env, readEnd, buf)
		require.Equal(t, status.Success, s)
		assert.Zero(t, n, "a drained pipe with no writer reports EOF")
	})
}

////////////////////////////////////////////////////////////////////////
// S2 — process lifecycle
////////////////////////////////////////////////////////////////////////

func TestProcessLifecycle(t *testing.T) {
	k := newTestKernel(t)

	k.programs.Register("child", func(env *process.Env, regs *process.Registers) int32 {
		userprog.Exit(env, 7)
		return 0
	})

	runInProcess(t, k, func(env *process.Env, regs *process.Registers) {
		child, s := userprog.CreateProcess(env, "child", "child", 0, 0)
		require.Equal(t, status.Success, s)

		index, s := userprog.WaitFor(env, []handle.ID{child})
		require.Equal(t, status.Success, s)
		assert.Equal(t, 0, index)

		code, s := userprog.ReadExitCode(env, child)
		require.Equal(t, status.Success, s)
		assert.EqualValues(t, 7, code)

		require.Equal(t, status.Success, userprog.CloseHandle(env, child))

		// The record disappears once the terminated child's own
		// references unwind.
		require.Eventually(t, func() bool {
			return !k.handles.Has(child)
		}, time.Second, time.Millisecond)
	})
}

func TestCreateProcessUnknownProgram(t *testing.T) {
	k := newTestKernel(t)

	runInProcess(t, k, func(env *process.Env, regs *process.Registers) {
		_, s := userprog.CreateProcess(env, "no-such-program", "", 0, 0)
		assert.Equal(t, status.FileNotFound, s)
	})
}

func TestChildInheritsCwdAndStreams(t *testing.T) {
	k := newTestKernel(t)

	cwdSeen := make(chan string, 1)
	k.programs.Register("child", func(env *process.Env, regs *process.Registers) int32 {
		buf := make([]byte, 128)
		n, _ := userprog.GetWorkingDir(env, buf)
		cwdSeen <- string(buf[:n])

		// The inherited stdout must resolve inside the child.
		_, s := userprog.WriteFile(env, userprog.StdOut(regs), []byte("from child\n"))
		if s != status.Success {
			cwdSeen <- "write failed"
		}
		return 0
	})

	runInProcess(t, k, func(env *process.Env, regs *process.Registers) {
		writeEnd, readEnd, s := userprog.CreatePipe(env)
		require.Equal(t, status.Success, s)

		child, s := userprog.CreateProcess(env, "child", "child", 0, writeEnd)
		require.Equal(t, status.Success, s)

		userprog.CloseHandle(env, writeEnd)

		buf := make([]byte, 32)
		n, s := userprog.ReadFile(env, readEnd, buf)
		require.Equal(t, status.Success, s)
		assert.Equal(t, "from child\n", string(buf[:n]))

		userprog.WaitFor(env, []handle.ID{child})
		assert.Equal(t, "A:\\", <-cwdSeen)
	})
}

////////////////////////////////////////////////////////////////////////
// S3 — FAT round trip through syscalls
////////////////////////////////////////////////////////////////////////

func TestFileRoundTripThroughSyscalls(t *testing.T) {
	k := newTestKernel(t)

	runInProcess(t, k, func(env *process.Env, regs *process.Registers) {
		fd, s := userprog.OpenFile(env, "A:\\f.txt", 0, 0)
		require.Equal(t, status.Success, s)

		payload := make([]byte, 3000)
		n, s := userprog.WriteFile(env, fd, payload)
		require.Equal(t, status.Success, s)
		require.Equal(t, 3000, n)

		pos, s := userprog.Seek(env, fd, vfs.SeekSetPosition, vfs.SeekBeginning, 0)
		require.Equal(t, status.Success, s)
		require.Zero(t, pos)

		// There is no way to seek forward past the current position, so
		// the sparse tail goes through the filesystem directly.
		tail := []byte{1, 2, 3, 4, 5}
		n, fsStatus := k.fs.Write(ospath.Parse("A:\\f.txt"), tail, 8000)
		require.Equal(t, status.Success, fsStatus)
		require.Equal(t, 5, n)

		var info vfs.FileInfo
		require.Equal(t, status.Success, k.fs.Query(ospath.Parse("A:\\f.txt"), &info))
		assert.EqualValues(t, 8005, info.Size)

		buf := make([]byte, 10000)
		n, s = userprog.ReadFile(env, fd, buf)
		require.Equal(t, status.Success, s)
		require.Equal(t, 8005, n)

		assert.Equal(t, payload, buf[:3000])
		assert.Equal(t, make([]byte, 5000), buf[3000:8000])
		assert.Equal(t, tail, buf[8000:8005])
	})
}

////////////////////////////////////////////////////////////////////////
// Open semantics
////////////////////////////////////////////////////////////////////////

func TestOpenAlwaysRequiresExistence(t *testing.T) {
	k := newTestKernel(t)

	runInProcess(t, k, func(env *process.Env, regs *process.Registers) {
		_, s := userprog.OpenFile(env, "A:\\missing", userprog.OpenAlways, 0)
		assert.Equal(t, status.FileNotFound, s)

		// Without the flag the file springs into existence.
		fd, s := userprog.OpenFile(env, "A:\\missing", 0, 0)
		require.Equal(t, status.Success, s)
		userprog.CloseHandle(env, fd)

		_, s = userprog.OpenFile(env, "A:\\missing", userprog.OpenAlways, 0)
		assert.Equal(t, status.Success, s)
	})
}

func TestOpenEnforcesAttributeConsistency(t *testing.T) {
	k := newTestKernel(t)

	runInProcess(t, k, func(env *process.Env, regs *process.Registers) {
		fd, s := userprog.OpenFile(env, "A:\\f", 0, 0)
		require.Equal(t, status.Success, s)
		userprog.CloseHandle(env, fd)

		// An existing file opened as a directory is a shape mismatch.
		_, s = userprog.OpenFile(env, "A:\\f", userprog.OpenAlways, vfs.AttrDirectory)
		assert.Equal(t, status.InvalidArgument, s)
	})
}

func TestReadOnlyFilePermissions(t *testing.T) {
	k := newTestKernel(t)

	runInProcess(t, k, func(env *process.Env, regs *process.Registers) {
		// A newly created read-only file is still writable through the
		// creating handle.
		fd, s := userprog.OpenFile(env, "A:\\ro", 0, vfs.AttrReadOnly)
		require.Equal(t, status.Success, s)

		_, s = userprog.WriteFile(env, fd, []byte("seed"))
		require.Equal(t, status.Success, s)
		userprog.CloseHandle(env, fd)

		// Reopening for writing is refused.
		_, s = userprog.OpenFile(env, "A:\\ro", userprog.OpenAlways, 0)
		assert.Equal(t, status.PermissionDenied, s)

		// Reopening read-only works, and writes through it are refused.
		fd, s = userprog.OpenFile(env, "A:\\ro", userprog.OpenAlways, vfs.AttrReadOnly)
		require.Equal(t, status.Success, s)

		_, s = userprog.WriteFile(env, fd, []byte("nope"))
		assert.Equal(t, status.PermissionDenied, s)

		buf := make([]byte, 4)
		n, s := userprog.ReadFile(env, fd, buf)
		require.Equal(t, status.Success, s)
		assert.Equal(t, "seed", string(buf[:n]))
	})
}

func TestDirectoryListingThroughReadFile(t *testing.T) {
	k := newTestKernel(t)

	runInProcess(t, k, func(env *process.Env, regs *process.Registers) {
		fd, s := userprog.OpenFile(env, "A:\\docs", 0, vfs.AttrDirectory)
		require.Equal(t, status.Success, s)
		userprog.CloseHandle(env, fd)

		fd, s = userprog.OpenFile(env, "A:\\docs\\a.txt", 0, 0)
		require.Equal(t, status.Success, s)
		userprog.CloseHandle(env, fd)

		dir, s := userprog.OpenFile(env, "A:\\docs", userprog.OpenAlways, vfs.AttrDirectory)
		require.Equal(t, status.Success, s)

		buf := make([]byte, 4*vfs.EntrySize)
		n, s := userprog.ReadFile(env, dir, buf)
		require.Equal(t, status.Success, s)
		require.Equal(t, vfs.EntrySize, n)

		entry := vfs.UnmarshalDirectoryEntry(buf)
		assert.Equal(t, "a.txt", entry.Name)
		assert.False(t, entry.IsDirectory())
	})
}

////////////////////////////////////////////////////////////////////////
// Working directory and relative paths
////////////////////////////////////////////////////////////////////////

func TestWorkingDirectorySyscalls(t *testing.T) {
	k := newTestKernel(t)

	runInProcess(t, k, func(env *process.Env, regs *process.Registers) {
		fd, s := userprog.OpenFile(env, "A:\\dir", 0, vfs.AttrDirectory)
		require.Equal(t, status.Success, s)
		userprog.CloseHandle(env, fd)

		require.Equal(t, status.Success, userprog.SetWorkingDir(env, "A:\\dir"))

		buf := make([]byte, 64)
		n, s := userprog.GetWorkingDir(env, buf)
		require.Equal(t, status.Success, s)
		assert.Equal(t, "A:\\dir", string(buf[:n]))

		// A relative open lands inside the new cwd.
		fd, s = userprog.OpenFile(env, "nested.txt", 0, 0)
		require.Equal(t, status.Success, s)
		userprog.CloseHandle(env, fd)

		assert.Equal(t, status.Success, k.fs.Query(ospath.Parse("A:\\dir\\nested.txt"), nil))

		// Setting cwd to a file is invalid.
		assert.Equal(t, status.InvalidArgument, userprog.SetWorkingDir(env, "A:\\dir\\nested.txt"))
	})
}

func TestDeleteFileSyscall(t *testing.T) {
	k := newTestKernel(t)

	runInProcess(t, k, func(env *process.Env, regs *process.Registers) {
		fd, s := userprog.OpenFile(env, "A:\\gone", 0, 0)
		require.Equal(t, status.Success, s)
		userprog.CloseHandle(env, fd)

		require.Equal(t, status.Success, userprog.DeleteFile(env, "A:\\gone"))
		assert.Equal(t, status.FileNotFound, k.fs.Query(ospath.Parse("A:\\gone"), nil))
	})
}

////////////////////////////////////////////////////////////////////////
// S5 — procfs through syscalls
////////////////////////////////////////////////////////////////////////

func TestProcFSThroughSyscalls(t *testing.T) {
	k := newTestKernel(t)

	k.programs.Register("parked", func(env *process.Env, regs *process.Registers) int32 {
		// Block until the parent closes the pipe.
		buf := make([]byte, 1)
		userprog.ReadFile(env, userprog.StdIn(regs), buf)
		return 0
	})

	runInProcess(t, k, func(env *process.Env, regs *process.Registers) {
		writeEnd, readEnd, s := userprog.CreatePipe(env)
		require.Equal(t, status.Success, s)

		child, s := userprog.CreateProcess(env, "parked", "parked", readEnd, 0)
		require.Equal(t, status.Success, s)

		// The root listing holds the two processes plus "self".
		dir, s := userprog.OpenFile(env, "0:", userprog.OpenAlways, vfs.AttrDirectory|vfs.AttrReadOnly)
		require.Equal(t, status.Success, s)

		buf := make([]byte, 16*vfs.EntrySize)
		n, s := userprog.ReadFile(env, dir, buf)
		require.Equal(t, status.Success, s)
		require.Equal(t, 3*vfs.EntrySize, n)

		var names []string
		for off := 0; off < n; off += vfs.EntrySize {
			names = append(names, vfs.UnmarshalDirectoryEntry(buf[off:]).Name)
		}
		assert.Contains(t, names, strconv.Itoa(int(child)))
		assert.Contains(t, names, strconv.Itoa(int(env.ProcessID())))
		assert.Contains(t, names, "self")

		// Reading 0:\self\name resolves to the calling process.
		nameFd, s := userprog.OpenFile(env, "0:\\self\\name", userprog.OpenAlways, vfs.AttrReadOnly)
		require.Equal(t, status.Success, s)

		n, s = userprog.ReadFile(env, nameFd, buf)
		require.Equal(t, status.Success, s)
		assert.Equal(t, "test\n", string(buf[:n]))

		// The child's thread count reads as one while it is parked.
		threadsFd, s := userprog.OpenFile(env, "0:\\"+strconv.Itoa(int(child))+"\\threads",
			userprog.OpenAlways, vfs.AttrReadOnly)
		require.Equal(t, status.Success, s)

		n, s = userprog.ReadFile(env, threadsFd, buf)
		require.Equal(t, status.Success, s)
		assert.Equal(t, "1\n", string(buf[:n]))

		// Writing anywhere under 0: is refused.
		_, s = userprog.WriteFile(env, nameFd, []byte("rename"))
		assert.Equal(t, status.PermissionDenied, s)

		userprog.CloseHandle(env, writeEnd)
		userprog.WaitFor(env, []handle.ID{child})
	})
}

////////////////////////////////////////////////////////////////////////
// S6 — shutdown signal
////////////////////////////////////////////////////////////////////////

func TestShutdownSignalsEveryThread(t *testing.T) {
	k := newTestKernel(t)

	var deliveries atomic.Int32

	worker := func(env *process.Env, regs *process.Registers) int32 {
		userprog.RegisterSignalHandler(env, process.SignalTerminate,
			func(env *process.Env, regs *process.Registers) int32 {
				deliveries.Add(1)
				return 0
			})

		// Block inside a syscall until the parent closes the pipe; the
		// Terminate raised meanwhile is delivered on syscall exit.
		buf := make([]byte, 1)
		userprog.ReadFile(env, handle.ID(regs.RDI.X()), buf)
		return 0
	}

	runInProcess(t, k, func(env *process.Env, regs *process.Registers) {
		writeEnd, readEnd, s := userprog.CreatePipe(env)
		require.Equal(t, status.Success, s)

		var workers []handle.ID
		for i := 0; i < 2; i++ {
			id, s := userprog.CreateThread(env, worker, uint64(readEnd))
			require.Equal(t, status.Success, s)
			workers = append(workers, id)
		}

		// Let both workers park inside the read syscall.
		time.Sleep(20 * time.Millisecond)

		require.Equal(t, status.Success, userprog.Shutdown(env))
		require.Equal(t, status.Success, userprog.CloseHandle(env, writeEnd))

		for _, id := range workers {
			_, s := userprog.WaitFor(env, []handle.ID{id})
			require.Equal(t, status.Success, s)
		}

		assert.EqualValues(t, 2, deliveries.Load())
	})
}

////////////////////////////////////////////////////////////////////////
// Dispatcher edges
////////////////////////////////////////////////////////////////////////

func TestSyscallWithoutEnvironmentIsUnrecognized(t *testing.T) {
	k := newTestKernel(t)

	regs := &process.Registers{Buffer: make([]byte, 8)}
	regs.RAX.SetH(ServiceFileSystem)
	regs.RAX.SetL(SysGetWorkingDir)

	k.Syscall(nil, regs)

	assert.True(t, regs.Flags.Carry)
	assert.Equal(t, status.UnrecognizedThread, status.Status(regs.RAX.X()))
}

func TestUnknownServiceIsInvalid(t *testing.T) {
	k := newTestKernel(t)

	runInProcess(t, k, func(env *process.Env, regs *process.Registers) {
		bad := &process.Registers{}
		bad.RAX.SetH(0x77)
		env.Syscall(bad)

		assert.True(t, bad.Flags.Carry)
		assert.Equal(t, status.InvalidArgument, status.Status(bad.RAX.X()))
	})
}

func TestMountTable(t *testing.T) {
	k := newTestKernel(t)

	letters := k.fs.MountedLetters()
	assert.Contains(t, letters, byte('0'))
	assert.Contains(t, letters, byte('A'))
}
