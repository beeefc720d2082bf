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

// Package vfs defines the file abstraction of the kernel: attribute bits,
// file metadata, the directory-entry wire format, the filesystem interface,
// and the dispatcher that routes paths to mounted filesystems.
package vfs

import (
	"encoding/binary"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/handle"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/ospath"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
)

// File attribute bits.
const (
	AttrReadOnly uint16 = 1 << iota
	AttrHidden
	AttrSystemFile
	AttrVolumeID
	AttrDirectory
	AttrArchive
)

type FileInfo struct {
	Attributes uint16
	Size       uint64
}

func (i FileInfo) IsReadOnly() bool {
	return i.Attributes&AttrReadOnly != 0
}

func (i FileInfo) IsDirectory() bool {
	return i.Attributes&AttrDirectory != 0
}

// DirectoryEntry is one record of the syscall-surface directory listing.
const (
	// EntryNameSize is the capacity of the NUL-terminated name field.
	EntryNameSize = 62

	// EntrySize is the packed size of one entry: attributes plus name.
	EntrySize = 2 + EntryNameSize
)

type DirectoryEntry struct {
	Attributes uint16
	Name       string
}

func (e DirectoryEntry) IsDirectory() bool {
	return e.Attributes&AttrDirectory != 0
}

// Marshal packs the entry into buf, which must hold EntrySize bytes. Names
// longer than the field are truncated; the terminating NUL always fits.
func (e DirectoryEntry) Marshal(buf []byte) {
	binary.LittleEndian.PutUint16(buf, e.Attributes)

	name := e.Name
	if len(name) > EntryNameSize-1 {
		name = name[:EntryNameSize-1]
	}

	n := copy(buf[2:], name)
	for i := 2 + n; i < EntrySize; i++ {
		buf[i] = 0
	}
}

// UnmarshalDirectoryEntry is the inverse of Marshal.
func UnmarshalDirectoryEntry(buf []byte) DirectoryEntry {
	e := DirectoryEntry{
		Attributes: binary.LittleEndian.Uint16(buf),
	}

	name := buf[2:EntrySize]
	for i, b := range name {
		if b == 0 {
			name = name[:i]
			break
		}
	}
	e.Name = string(name)

	return e
}

// FileKind distinguishes the file-object variants behind a file handle.
type FileKind int

const (
	KindRegularFile FileKind = iota
	KindDirectory
	KindConsole
	KindPipeReadEnd
	KindPipeWriteEnd
)

// FileHandle is the interface of every file-like object in the handle
// table: regular files and directories, the console, and pipe ends.
type FileHandle interface {
	handle.Object

	FileKind() FileKind

	// Close marks the handle closed. Closing is idempotent; operations on
	// a closed handle fail with INVALID_ARGUMENT.
	Close()

	Read(buf []byte) (int, status.Status)
	Write(data []byte) (int, status.Status)
}

// FileSystem is implemented by every mounted filesystem. Paths arriving
// here are absolute and already stripped to their component list; offsets
// are in bytes except for ReadDir, where they count entries.
type FileSystem interface {
	Query(p ospath.Path, info *FileInfo) status.Status

	Read(p ospath.Path, buf []byte, offset uint64) (int, status.Status)
	ReadDir(p ospath.Path, entries []DirectoryEntry, offset uint64) (int, status.Status)
	Write(p ospath.Path, data []byte, offset uint64) (int, status.Status)

	Create(p ospath.Path, info FileInfo) status.Status
	Resize(p ospath.Path, size uint64) status.Status
	Remove(p ospath.Path) status.Status
}
