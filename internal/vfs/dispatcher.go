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
	"github.com/Cajova-Houba/kiv-os-simulator/internal/logger"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/ospath"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
)

// Dispatcher routes path operations to the filesystem mounted at the
// path's disk letter. The mount table is populated during kernel init and
// read-only afterwards, so lookups need no lock.
type Dispatcher struct {
	filesystems map[byte]FileSystem
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		filesystems: make(map[byte]FileSystem),
	}
}

// Mount registers fs at the given disk letter. Init-time only.
func (d *Dispatcher) Mount(letter byte, fs FileSystem) {
	logger.Infof("vfs: mounting filesystem at %c:", letter)
	d.filesystems[letter] = fs
}

// MountedLetters reports the populated mount points.
func (d *Dispatcher) MountedLetters() []byte {
	letters := make([]byte, 0, len(d.filesystems))
	for letter := range d.filesystems {
		letters = append(letters, letter)
	}
	return letters
}

func (d *Dispatcher) resolve(p ospath.Path) (FileSystem, status.Status) {
	fs, ok := d.filesystems[p.DiskLetter()]
	if !ok {
		return nil, status.FileNotFound
	}
	return fs, status.Success
}

func (d *Dispatcher) Query(p ospath.Path, info *FileInfo) status.Status {
	fs, s := d.resolve(p)
	if s != status.Success {
		return s
	}
	return fs.Query(p, info)
}

func (d *Dispatcher) Read(p ospath.Path, buf []byte, offset uint64) (int, status.Status) {
	fs, s := d.resolve(p)
	if s != status.Success {
		return 0, s
	}
	return fs.Read(p, buf, offset)
}

func (d *Dispatcher) ReadDir(p ospath.Path, entries []DirectoryEntry, offset uint64) (int, status.Status) {
	fs, s := d.resolve(p)
	if s != status.Success {
		return 0, s
	}
	return fs.ReadDir(p, entries, offset)
}

func (d *Dispatcher) Write(p ospath.Path, data []byte, offset uint64) (int, status.Status) {
	fs, s := d.resolve(p)
	if s != status.Success {
		return 0, s
	}
	return fs.Write(p, data, offset)
}

func (d *Dispatcher) Create(p ospath.Path, info FileInfo) status.Status {
	fs, s := d.resolve(p)
	if s != status.Success {
		return s
	}
	return fs.Create(p, info)
}

func (d *Dispatcher) Resize(p ospath.Path, size uint64) status.Status {
	fs, s := d.resolve(p)
	if s != status.Success {
		return s
	}
	return fs.Resize(p, size)
}

func (d *Dispatcher) Remove(p ospath.Path) status.Status {
	fs, s := d.resolve(p)
	if s != status.Success {
		return s
	}
	return fs.Remove(p)
}
