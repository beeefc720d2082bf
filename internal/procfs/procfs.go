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

// Package procfs synthesises a read-only filesystem over the live process
// table: one directory per process, each holding small attribute files.
// The "self" alias is rewritten to the calling process's ID before a path
// reaches this package; listings still advertise it literally.
package procfs

import (
	"sort"
	"strconv"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/handle"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/ospath"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/process"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/vfs"
)

// SelfName is the literal alias for the calling process.
const SelfName = "self"

var attributeNames = [...]string{"args", "cwd", "name", "threads"}

// FileSystem serves the synthetic tree. It holds no state of its own;
// everything is derived from the handle table at call time.
type FileSystem struct {
	handles *handle.Table
}

var _ vfs.FileSystem = (*FileSystem)(nil)

func New(handles *handle.Table) *FileSystem {
	return &FileSystem{handles: handles}
}

func parseProcessID(text string) handle.ID {
	id, err := strconv.ParseUint(text, 10, 16)
	if err != nil {
		return 0
	}
	return handle.ID(id)
}

// getProcess resolves a path component to a live process.
func (fs *FileSystem) getProcess(component string) (*process.Process, handle.Reference, bool) {
	ref := fs.handles.GetOfKind(parseProcessID(component), handle.KindProcess)
	if !ref.IsValid() {
		return nil, handle.Reference{}, false
	}

	return ref.Object().(*process.Process), ref, true
}

// attributeValue renders one attribute file's contents, without the
// trailing newline the read path adds.
func attributeValue(p *process.Process, name string) (string, bool) {
	switch name {
	case "args":
		return p.CmdLine(), true
	case "cwd":
		return p.WorkingDirectory().String(), true
	case "name":
		return p.Name(), true
	case "threads":
		return strconv.Itoa(int(p.ThreadCount())), true
	default:
		return "", false
	}
}

func (fs *FileSystem) Query(p ospath.Path, info *vfs.FileInfo) status.Status {
	switch p.ComponentCount() {
	case 0:
		if info != nil {
			info.Attributes = vfs.AttrReadOnly | vfs.AttrDirectory
			info.Size = 0
		}
		return status.Success

	case 1:
		_, ref, ok := fs.getProcess(p.Component(0))
		if !ok {
			return status.FileNotFound
		}
		ref.Release()

		if info != nil {
			info.Attributes = vfs.AttrReadOnly | vfs.AttrDirectory
			info.Size = 0
		}
		return status.Success

	case 2:
		proc, ref, ok := fs.getProcess(p.Component(0))
		if !ok {
			return status.FileNotFound
		}
		defer ref.Release()

		value, ok := attributeValue(proc, p.Component(1))
		if !ok {
			return status.FileNotFound
		}

		if info != nil {
			info.Attributes = vfs.AttrReadOnly
			info.Size = uint64(len(value))
		}
		return status.Success

	default:
		return status.FileNotFound
	}
}

func (fs *FileSystem) Read(p ospath.Path, buf []byte, offset uint64) (int, status.Status) {
	if p.ComponentCount() != 2 {
		return 0, status.FileNotFound
	}

	proc, ref, ok := fs.getProcess(p.Component(0))
	if !ok {
		return 0, status.FileNotFound
	}
	defer ref.Release()

	value, ok := attributeValue(proc, p.Component(1))
	if !ok {
		return 0, status.FileNotFound
	}

	if offset > uint64(len(value)) {
		return 0, status.Success
	}

	n := copy(buf, value[offset:])
	if n < len(buf) {
		// Attribute files read back with a final newline.
		buf[n] = '\n'
		n++
	}

	return n, status.Success
}

func (fs *FileSystem) ReadDir(p ospath.Path, entries []vfs.DirectoryEntry, offset uint64) (int, status.Status) {
	switch p.ComponentCount() {
	case 0:
		names := fs.processNames()
		names = append(names, SelfName)

		n := 0
		for pos := int(offset); pos < len(names) && n < len(entries); pos++ {
			entries[n] = vfs.DirectoryEntry{
				Attributes: vfs.AttrReadOnly | vfs.AttrDirectory,
				Name:       names[pos],
			}
			n++
		}
		return n, status.Success

	case 1:
		_, ref, ok := fs.getProcess(p.Component(0))
		if !ok {
			return 0, status.FileNotFound
		}
		ref.Release()

		n := 0
		for pos := int(offset); pos < len(attributeNames) && n < len(entries); pos++ {
			entries[n] = vfs.DirectoryEntry{
				Attributes: vfs.AttrReadOnly,
				Name:       attributeNames[pos],
			}
			n++
		}
		return n, status.Success

	default:
		return 0, status.FileNotFound
	}
}

// processNames lists every live process by decimal ID, ascending.
func (fs *FileSystem) processNames() []string {
	refs := fs.handles.List(func(id handle.ID, obj handle.Object) bool {
		return obj.HandleKind() == handle.KindProcess
	})

	ids := make([]int, 0, len(refs))
	for i := range refs {
		ids = append(ids, int(refs[i].ID()))
		refs[i].Release()
	}
	sort.Ints(ids)

	names := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		names = append(names, strconv.Itoa(id))
	}

	return names
}

// The tree is read-only; every mutation is refused.

func (fs *FileSystem) Write(p ospath.Path, data []byte, offset uint64) (int, status.Status) {
	return 0, status.PermissionDenied
}

func (fs *FileSystem) Create(p ospath.Path, info vfs.FileInfo) status.Status {
	return status.PermissionDenied
}

func (fs *FileSystem) Resize(p ospath.Path, size uint64) status.Status {
	return status.PermissionDenied
}

func (fs *FileSystem) Remove(p ospath.Path) status.Status {
	return status.PermissionDenied
}
