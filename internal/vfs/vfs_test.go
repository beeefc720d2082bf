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
	"strings"
	"testing"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/ospath"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

////////////////////////////////////////////////////////////////////////
// DirectoryEntry codec
////////////////////////////////////////////////////////////////////////

func TestDirectoryEntryRoundTrip(t *testing.T) {
	e := DirectoryEntry{
		Attributes: AttrDirectory | AttrReadOnly,
		Name:       "subdir",
	}

	buf := make([]byte, EntrySize)
	e.Marshal(buf)

	got := UnmarshalDirectoryEntry(buf)
	assert.Equal(t, e, got)
	assert.True(t, got.IsDirectory())
}

func TestDirectoryEntryNameTruncation(t *testing.T) {
	e := DirectoryEntry{Name: strings.Repeat("x", 100)}

	buf := make([]byte, EntrySize)
	e.Marshal(buf)

	got := UnmarshalDirectoryEntry(buf)
	assert.Len(t, got.Name, EntryNameSize-1)
	assert.Zero(t, buf[EntrySize-1], "terminating NUL must survive")
}

////////////////////////////////////////////////////////////////////////
// Dispatcher
////////////////////////////////////////////////////////////////////////

// memFS is a minimal in-memory filesystem: one flat file per path string.
type memFS struct {
	files map[string][]byte
	dirs  map[string][]DirectoryEntry
}

func newMemFS() *memFS {
	return &memFS{
		files: make(map[string][]byte),
		dirs:  make(map[string][]DirectoryEntry),
	}
}

func (m *memFS) Query(p ospath.Path, info *FileInfo) status.Status {
	if entries, ok := m.dirs[p.String()]; ok {
		if info != nil {
			info.Attributes = AttrDirectory
			info.Size = uint64(len(entries))
		}
		return status.Success
	}

	data, ok := m.files[p.String()]
	if !ok {
		return status.FileNotFound
	}
	if info != nil {
		info.Attributes = 0
		info.Size = uint64(len(data))
	}
	return status.Success
}

func (m *memFS) Read(p ospath.Path, buf []byte, offset uint64) (int, status.Status) {
	data, ok := m.files[p.String()]
	if !ok {
		return 0, status.FileNotFound
	}
	if offset >= uint64(len(data)) {
		return 0, status.Success
	}
	return copy(buf, data[offset:]), status.Success
}

func (m *memFS) ReadDir(p ospath.Path, entries []DirectoryEntry, offset uint64) (int, status.Status) {
	all, ok := m.dirs[p.String()]
	if !ok {
		return 0, status.FileNotFound
	}
	n := 0
	for pos := int(offset); pos < len(all) && n < len(entries); pos++ {
		entries[n] = all[pos]
		n++
	}
	return n, status.Success
}

func (m *memFS) Write(p ospath.Path, data []byte, offset uint64) (int, status.Status) {
	existing := m.files[p.String()]
	end := offset + uint64(len(data))
	if uint64(len(existing)) < end {
		grown := make([]byte, end)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:], data)
	m.files[p.String()] = existing
	return len(data), status.Success
}

func (m *memFS) Create(p ospath.Path, info FileInfo) status.Status {
	m.files[p.String()] = nil
	return status.Success
}

func (m *memFS) Resize(p ospath.Path, size uint64) status.Status {
	data := m.files[p.String()]
	resized := make([]byte, size)
	copy(resized, data)
	m.files[p.String()] = resized
	return status.Success
}

func (m *memFS) Remove(p ospath.Path) status.Status {
	delete(m.files, p.String())
	return status.Success
}

func TestDispatcherRoutesByDiskLetter(t *testing.T) {
	a := newMemFS()
	b := newMemFS()
	a.files["A:\\f"] = []byte("on a")
	b.files["B:\\f"] = []byte("on b")

	d := NewDispatcher()
	d.Mount('A', a)
	d.Mount('B', b)

	buf := make([]byte, 8)
	n, s := d.Read(ospath.Parse("B:\\f"), buf, 0)
	require.Equal(t, status.Success, s)
	assert.Equal(t, "on b", string(buf[:n]))
}

func TestDispatcherUnknownLetterIsFileNotFound(t *testing.T) {
	d := NewDispatcher()
	d.Mount('A', newMemFS())

	assert.Equal(t, status.FileNotFound, d.Query(ospath.Parse("Z:\\x"), nil))
	_, s := d.Read(ospath.Parse("Z:\\x"), make([]byte, 1), 0)
	assert.Equal(t, status.FileNotFound, s)
	_, s = d.Write(ospath.Parse("Z:\\x"), []byte("x"), 0)
	assert.Equal(t, status.FileNotFound, s)
	assert.Equal(t, status.FileNotFound, d.Create(ospath.Parse("Z:\\x"), FileInfo{}))
	assert.Equal(t, status.FileNotFound, d.Resize(ospath.Parse("Z:\\x"), 0))
	assert.Equal(t, status.FileNotFound, d.Remove(ospath.Parse("Z:\\x")))
}

////////////////////////////////////////////////////////////////////////
// File object
////////////////////////////////////////////////////////////////////////

func newTestFile(t *testing.T, data []byte) (*File, *memFS) {
	t.Helper()

	fs := newMemFS()
	fs.files["A:\\f"] = data

	d := NewDispatcher()
	d.Mount('A', fs)

	return NewFile(d, ospath.Parse("A:\\f"), FileInfo{Size: uint64(len(data))}), fs
}

func TestFileSequentialReads(t *testing.T) {
	f, _ := newTestFile(t, []byte("0123456789"))

	buf := make([]byte, 4)

	n, s := f.Read(buf)
	require.Equal(t, status.Success, s)
	assert.Equal(t, "0123", string(buf[:n]))

	n, s = f.Read(buf)
	require.Equal(t, status.Success, s)
	assert.Equal(t, "4567", string(buf[:n]))
}

func TestFileWriteAdvancesPosition(t *testing.T) {
	f, fs := newTestFile(t, nil)

	_, s := f.Write([]byte("ab"))
	require.Equal(t, status.Success, s)
	_, s = f.Write([]byte("cd"))
	require.Equal(t, status.Success, s)

	assert.Equal(t, []byte("abcd"), fs.files["A:\\f"])
}

func TestClosedFileRejectsIO(t *testing.T) {
	f, _ := newTestFile(t, []byte("x"))
	f.Close()

	_, s := f.Read(make([]byte, 1))
	assert.Equal(t, status.InvalidArgument, s)
	_, s = f.Write([]byte("y"))
	assert.Equal(t, status.InvalidArgument, s)
}

func TestReadOnlyFileRejectsWriteAndSeek(t *testing.T) {
	fs := newMemFS()
	fs.files["A:\\f"] = []byte("x")
	d := NewDispatcher()
	d.Mount('A', fs)

	f := NewFile(d, ospath.Parse("A:\\f"), FileInfo{Attributes: AttrReadOnly, Size: 1})

	_, s := f.Write([]byte("y"))
	assert.Equal(t, status.PermissionDenied, s)

	_, s = f.Seek(SeekGetPosition, SeekBeginning, 0)
	assert.Equal(t, status.InvalidArgument, s)
}

func TestSeekGetAndSetPosition(t *testing.T) {
	f, _ := newTestFile(t, []byte("0123456789"))

	buf := make([]byte, 6)
	f.Read(buf)

	pos, s := f.Seek(SeekGetPosition, SeekBeginning, 0)
	require.Equal(t, status.Success, s)
	assert.EqualValues(t, 6, pos)

	// Rewind and read again.
	pos, s = f.Seek(SeekSetPosition, SeekBeginning, 2)
	require.Equal(t, status.Success, s)
	assert.EqualValues(t, 2, pos)

	n, s := f.Read(buf[:2])
	require.Equal(t, status.Success, s)
	assert.Equal(t, "23", string(buf[:n]))
}

func TestSeekSetSizeResizes(t *testing.T) {
	f, fs := newTestFile(t, []byte("0123456789"))

	pos, s := f.Seek(SeekSetSize, SeekBeginning, 4)
	require.Equal(t, status.Success, s)
	assert.EqualValues(t, 4, pos)
	assert.Len(t, fs.files["A:\\f"], 4)
}

func TestSeekOnVanishedFileClosesHandle(t *testing.T) {
	f, fs := newTestFile(t, []byte("abc"))
	delete(fs.files, "A:\\f")

	_, s := f.Seek(SeekGetPosition, SeekBeginning, 0)
	assert.Equal(t, status.FileNotFound, s)

	// The handle is dead now.
	_, s = f.Read(make([]byte, 1))
	assert.Equal(t, status.InvalidArgument, s)
}

func TestDirectoryReadPacksEntries(t *testing.T) {
	fs := newMemFS()
	fs.dirs["A:\\d"] = []DirectoryEntry{
		{Attributes: AttrDirectory, Name: "sub"},
		{Name: "file.txt"},
		{Name: "other"},
	}
	d := NewDispatcher()
	d.Mount('A', fs)

	f := NewFile(d, ospath.Parse("A:\\d"), FileInfo{Attributes: AttrDirectory})
	require.Equal(t, KindDirectory, f.FileKind())

	// Room for two entries; the third arrives on the next read.
	buf := make([]byte, 2*EntrySize+10)

	n, s := f.Read(buf)
	require.Equal(t, status.Success, s)
	require.Equal(t, 2*EntrySize, n)

	first := UnmarshalDirectoryEntry(buf)
	second := UnmarshalDirectoryEntry(buf[EntrySize:])
	assert.Equal(t, "sub", first.Name)
	assert.True(t, first.IsDirectory())
	assert.Equal(t, "file.txt", second.Name)

	n, s = f.Read(buf)
	require.Equal(t, status.Success, s)
	require.Equal(t, EntrySize, n)
	assert.Equal(t, "other", UnmarshalDirectoryEntry(buf).Name)
}

func TestDirectoryReadNeedsRoomForOneEntry(t *testing.T) {
	fs := newMemFS()
	fs.dirs["A:\\d"] = []DirectoryEntry{{Name: "x"}}
	d := NewDispatcher()
	d.Mount('A', fs)

	f := NewFile(d, ospath.Parse("A:\\d"), FileInfo{Attributes: AttrDirectory})

	_, s := f.Read(make([]byte, EntrySize-1))
	assert.Equal(t, status.InvalidArgument, s)
}
