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
	"strconv"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/handle"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/ospath"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/pipe"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/process"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/procfs"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/vfs"
)

// OpenAlways is the Open_File flag bit requiring the target to exist.
const OpenAlways uint8 = 1 << 0

func (k *Kernel) handleIO(env *process.Env, regs *process.Registers) status.Status {
	switch regs.RAX.L() {
	case SysOpenFile:
		id, s := k.open(env, regs.Text, regs.RCX.L(), regs.RDI.X())
		if s == status.Success {
			regs.RAX.SetX(uint16(id))
		}
		return s

	case SysWriteFile:
		n, s := k.writeFile(env, handle.ID(regs.RDX.X()), regs.Buffer)
		if s == status.Success {
			regs.RAX.SetR(uint64(n))
		}
		return s

	case SysReadFile:
		n, s := k.readFile(env, handle.ID(regs.RDX.X()), regs.Buffer)
		if s == status.Success {
			regs.RAX.SetR(uint64(n))
		}
		return s

	case SysSeek:
		pos, s := k.seek(env, handle.ID(regs.RDX.X()), regs.RCX.X(), int64(regs.RDI.R))
		if s == status.Success {
			regs.RAX.SetR(pos)
		}
		return s

	case SysCloseHandle:
		return k.closeHandle(env, handle.ID(regs.RDX.X()))

	case SysDeleteFile:
		return k.deleteFile(env, regs.Text)

	case SysSetWorkingDir:
		return k.setWorkingDir(env, regs.Text)

	case SysGetWorkingDir:
		n, s := k.getWorkingDir(env, regs.Buffer)
		if s == status.Success {
			regs.RAX.SetR(uint64(n))
		}
		return s

	case SysCreatePipe:
		return k.createPipe(env, regs.Handles)
	}

	return status.InvalidArgument
}

// resolvePath parses text, makes it absolute against the caller's cwd, and
// rewrites the procfs "self" alias to the caller's process ID. Thread-local
// state ends at the syscall boundary, so the alias must be pinned here.
func (k *Kernel) resolvePath(env *process.Env, text string) (ospath.Path, status.Status) {
	p := ospath.Parse(text)
	if p.IsEmpty() {
		return ospath.Path{}, status.InvalidArgument
	}

	if !p.IsAbsolute() {
		env.Process().MakeAbsolute(&p)
	}

	if p.DiskLetter() == ProcFSLetter && p.ComponentCount() > 0 && p.Component(0) == procfs.SelfName {
		rewritten := string(ProcFSLetter) + ":\\" + strconv.Itoa(int(env.ProcessID()))
		for _, c := range p.Components()[1:] {
			rewritten += "\\" + c
		}
		p = ospath.Parse(rewritten)
	}

	return p, status.Success
}

// openExisting opens path if it exists, enforcing attribute consistency:
// the requested directory bit must match, and a read-only file cannot be
// opened for writing.
func (k *Kernel) openExisting(path ospath.Path, attributes uint16) (*vfs.File, status.Status) {
	wantsDirectory := attributes&vfs.AttrDirectory != 0
	wantsReadOnly := attributes&vfs.AttrReadOnly != 0

	var info vfs.FileInfo
	if s := k.fs.Query(path, &info); s != status.Success {
		return nil, s
	}

	if info.IsDirectory() != wantsDirectory {
		return nil, status.InvalidArgument
	}

	if info.IsReadOnly() && !wantsReadOnly {
		return nil, status.PermissionDenied
	}

	if wantsReadOnly {
		info.Attributes |= vfs.AttrReadOnly
	}

	return vfs.NewFile(k.fs, path, info), status.Success
}

// createNew creates path and opens it. A newly created file is always
// opened writable, whatever its stored attribute says.
func (k *Kernel) createNew(path ospath.Path, attributes uint16) (*vfs.File, status.Status) {
	info := vfs.FileInfo{Attributes: attributes}

	if s := k.fs.Create(path, info); s != status.Success {
		return nil, s
	}

	info.Attributes &^= vfs.AttrReadOnly

	return vfs.NewFile(k.fs, path, info), status.Success
}

func (k *Kernel) open(env *process.Env, text string, flags uint8, attributes uint16) (handle.ID, status.Status) {
	if env == nil {
		return 0, status.UnrecognizedThread
	}

	path, s := k.resolvePath(env, text)
	if s != status.Success {
		return 0, s
	}

	file, s := k.openExisting(path, attributes)
	if s != status.Success {
		if flags&OpenAlways != 0 || s != status.FileNotFound {
			return 0, s
		}

		file, s = k.createNew(path, attributes)
		if s != status.Success {
			return 0, s
		}
	}

	ref, err := k.handles.Add(file)
	if err != nil {
		return 0, status.OutOfMemory
	}

	id := ref.ID()
	env.Process().AddHandle(ref)

	return id, status.Success
}

func (k *Kernel) writeFile(env *process.Env, id handle.ID, data []byte) (int, status.Status) {
	if len(data) == 0 {
		return 0, status.InvalidArgument
	}
	if env == nil {
		return 0, status.UnrecognizedThread
	}

	ref := env.Process().GetHandleOfKind(id, handle.KindFile)
	if !ref.IsValid() {
		return 0, status.InvalidArgument
	}
	defer ref.Release()

	return ref.Object().(vfs.FileHandle).Write(data)
}

func (k *Kernel) readFile(env *process.Env, id handle.ID, buf []byte) (int, status.Status) {
	if len(buf) == 0 {
		return 0, status.InvalidArgument
	}
	if env == nil {
		return 0, status.UnrecognizedThread
	}

	ref := env.Process().GetHandleOfKind(id, handle.KindFile)
	if !ref.IsValid() {
		return 0, status.InvalidArgument
	}
	defer ref.Release()

	return ref.Object().(vfs.FileHandle).Read(buf)
}

func (k *Kernel) seek(env *process.Env, id handle.ID, seekType uint16, offset int64) (uint64, status.Status) {
	if env == nil {
		return 0, status.UnrecognizedThread
	}

	ref := env.Process().GetHandleOfKind(id, handle.KindFile)
	if !ref.IsValid() {
		return 0, status.InvalidArgument
	}
	defer ref.Release()

	file, ok := ref.Object().(*vfs.File)
	if !ok || file.FileKind() != vfs.KindRegularFile {
		return 0, status.InvalidArgument
	}

	command := uint8(seekType >> 8)
	base := uint8(seekType)

	return file.Seek(command, base, offset)
}

func (k *Kernel) closeHandle(env *process.Env, id handle.ID) status.Status {
	if env == nil {
		return status.UnrecognizedThread
	}

	ref := env.Process().GetHandle(id)
	if !ref.IsValid() {
		return status.InvalidArgument
	}

	if fh, ok := ref.Object().(vfs.FileHandle); ok {
		fh.Close()
	}
	ref.Release()

	env.Process().RemoveHandle(id)

	return status.Success
}

func (k *Kernel) deleteFile(env *process.Env, text string) status.Status {
	if env == nil {
		return status.UnrecognizedThread
	}

	path, s := k.resolvePath(env, text)
	if s != status.Success {
		return s
	}

	return k.fs.Remove(path)
}

func (k *Kernel) setWorkingDir(env *process.Env, text string) status.Status {
	if env == nil {
		return status.UnrecognizedThread
	}

	path, s := k.resolvePath(env, text)
	if s != status.Success {
		return s
	}

	var info vfs.FileInfo
	if s := k.fs.Query(path, &info); s != status.Success {
		return s
	}

	if !info.IsDirectory() {
		return status.InvalidArgument
	}

	env.Process().SetWorkingDirectory(path)

	return status.Success
}

func (k *Kernel) getWorkingDir(env *process.Env, buf []byte) (int, status.Status) {
	if len(buf) == 0 {
		return 0, status.InvalidArgument
	}
	if env == nil {
		return 0, status.UnrecognizedThread
	}

	cwd := env.Process().WorkingDirectory().String()

	return copy(buf, cwd), status.Success
}

// createPipe fills out[0] with the write end and out[1] with the read end.
func (k *Kernel) createPipe(env *process.Env, out []handle.ID) status.Status {
	if len(out) < 2 {
		return status.InvalidArgument
	}
	if env == nil {
		return status.UnrecognizedThread
	}

	readEnd, writeEnd, err := pipe.New(k.handles)
	if err != nil {
		return status.OutOfMemory
	}

	out[0] = writeEnd.ID()
	out[1] = readEnd.ID()

	env.Process().AddHandle(readEnd)
	env.Process().AddHandle(writeEnd)

	return status.Success
}
