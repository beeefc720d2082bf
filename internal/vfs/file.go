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

package vfs

import (
	"sync"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/handle"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/ospath"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
)

// Seek sub-commands and bases.
const (
	SeekSetPosition uint8 = iota
	SeekGetPosition
	SeekSetSize
)

const (
	SeekBeginning uint8 = iota
	SeekCurrent
	SeekEnd
)

// File is the handle object for a regular file or a directory on a mounted
// filesystem. The two share the type; attributes decide which one it is.
// Position and the open flag are guarded by a per-file mutex.
type File struct {
	dispatcher *Dispatcher

	mu sync.Mutex

	// GUARDED_BY(mu)
	pos uint64

	// GUARDED_BY(mu)
	info FileInfo

	// GUARDED_BY(mu)
	open bool

	// Never changes after construction.
	path ospath.Path
}

var _ FileHandle = (*File)(nil)

func NewFile(dispatcher *Dispatcher, path ospath.Path, info FileInfo) *File {
	return &File{
		dispatcher: dispatcher,
		info:       info,
		open:       true,
		path:       path,
	}
}

func (f *File) HandleKind() handle.Kind {
	return handle.KindFile
}

func (f *File) FileKind() FileKind {
	// Attributes never change, no lock needed.
	if f.info.IsDirectory() {
		return KindDirectory
	}
	return KindRegularFile
}

func (f *File) Path() ospath.Path {
	return f.path
}

// LOCKS_EXCLUDED(f.mu)
func (f *File) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.open = false
}

// Read fills buf from the current position. On a directory handle the
// buffer receives packed DirectoryEntry records and the position advances
// by whole entries.
//
// LOCKS_EXCLUDED(f.mu)
func (f *File) Read(buf []byte) (int, status.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return 0, status.InvalidArgument
	}

	if f.info.IsDirectory() {
		entries := make([]DirectoryEntry, len(buf)/EntrySize)
		if len(entries) == 0 {
			return 0, status.InvalidArgument
		}

		n, s := f.dispatcher.ReadDir(f.path, entries, f.pos)
		if s != status.Success {
			return 0, s
		}
		f.pos += uint64(n)

		for i := 0; i < n; i++ {
			entries[i].Marshal(buf[i*EntrySize:])
		}

		return n * EntrySize, status.Success
	}

	n, s := f.dispatcher.Read(f.path, buf, f.pos)
	if s != status.Success {
		return 0, s
	}
	f.pos += uint64(n)

	return n, status.Success
}

// LOCKS_EXCLUDED(f.mu)
func (f *File) Write(data []byte) (int, status.Status) {
	if f.info.IsReadOnly() {
		return 0, status.PermissionDenied
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return 0, status.InvalidArgument
	}

	n, s := f.dispatcher.Write(f.path, data, f.pos)
	if s != status.Success {
		return 0, s
	}
	f.pos += uint64(n)

	return n, status.Success
}

// revalidate refreshes the cached size from the filesystem; another process
// may have changed or removed the file behind this handle.
//
// LOCKS_REQUIRED(f.mu)
func (f *File) revalidate() status.Status {
	var current FileInfo
	if s := f.dispatcher.Query(f.path, &current); s != status.Success {
		return s
	}

	if f.info.IsDirectory() != current.IsDirectory() {
		return status.InvalidArgument
	}

	f.info.Size = current.Size
	return status.Success
}

// Seek implements the Seek syscall on this handle: position get/set and
// size set. Seeking a directory or a read-only file is invalid.
//
// LOCKS_EXCLUDED(f.mu)
func (f *File) Seek(command, base uint8, offset int64) (uint64, status.Status) {
	if f.info.IsReadOnly() || f.info.IsDirectory() {
		return 0, status.InvalidArgument
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return 0, status.InvalidArgument
	}

	if s := f.revalidate(); s != status.Success {
		// The file vanished underneath us; the handle is dead.
		f.open = false
		return 0, s
	}

	switch command {
	case SeekGetPosition:
		if base != SeekBeginning {
			return 0, status.InvalidArgument
		}
		return f.pos, status.Success

	case SeekSetPosition, SeekSetSize:
		var newPos uint64

		switch base {
		case SeekBeginning:
			if offset > 0 {
				newPos = uint64(offset)
			}
		case SeekCurrent:
			newPos = addClamped(f.pos, offset)
		case SeekEnd:
			newPos = addClamped(f.info.Size, offset)
		default:
			return 0, status.InvalidArgument
		}

		if command == SeekSetSize {
			if s := f.dispatcher.Resize(f.path, newPos); s != status.Success {
				return 0, s
			}
		} else if newPos > f.pos {
			newPos = f.pos
		}

		f.pos = newPos
		return f.pos, status.Success
	}

	return 0, status.InvalidArgument
}

func addClamped(base uint64, offset int64) uint64 {
	if offset < 0 && uint64(-offset) > base {
		return 0
	}
	return base + uint64(offset)
}
