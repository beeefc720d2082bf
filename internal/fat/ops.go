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

package fat

import (
	"github.com/Cajova-Houba/kiv-os-simulator/internal/ospath"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/vfs"
)

// entryAttributes maps an on-disk entry to the attribute bitmask of the
// syscall surface. The directory bit always reflects the entry type.
func entryAttributes(e dirEntry) uint16 {
	attrs := uint16(e.Flags)
	if e.IsFile {
		attrs &^= vfs.AttrDirectory
	} else {
		attrs |= vfs.AttrDirectory
	}
	return attrs
}

// load prepares one operation: boot record plus allocation table.
//
// LOCKS_REQUIRED(v.mu)
func (v *Volume) load() (bootRecord, []int32, error) {
	br, err := v.loadBootRecord()
	if err != nil {
		return bootRecord{}, nil, err
	}
	if !br.isValid(v.params.BytesPerSector) {
		return bootRecord{}, nil, ErrNoFileSystem
	}

	table, err := v.loadFAT(&br)
	if err != nil {
		return bootRecord{}, nil, err
	}

	return br, table, nil
}

////////////////////////////////////////////////////////////////////////
// vfs.FileSystem
////////////////////////////////////////////////////////////////////////

// LOCKS_EXCLUDED(v.mu)
func (v *Volume) Query(p ospath.Path, info *vfs.FileInfo) status.Status {
	v.mu.Lock()
	defer v.mu.Unlock()

	br, _, err := v.load()
	if err != nil {
		return toStatus(err)
	}

	found, _, _, err := v.findFile(&br, p.Components())
	if err != nil {
		return toStatus(err)
	}

	if info != nil {
		info.Attributes = entryAttributes(found)
		info.Size = uint64(found.Size)
	}

	return status.Success
}

// LOCKS_EXCLUDED(v.mu)
func (v *Volume) Read(p ospath.Path, buf []byte, offset uint64) (int, status.Status) {
	v.mu.Lock()
	defer v.mu.Unlock()

	br, table, err := v.load()
	if err != nil {
		return 0, toStatus(err)
	}

	found, _, _, err := v.findFile(&br, p.Components())
	if err != nil {
		return 0, toStatus(err)
	}

	n, err := v.readFile(&br, table, found, buf, offset)
	return n, toStatus(err)
}

// LOCKS_EXCLUDED(v.mu)
func (v *Volume) ReadDir(p ospath.Path, entries []vfs.DirectoryEntry, offset uint64) (int, status.Status) {
	v.mu.Lock()
	defer v.mu.Unlock()

	br, _, err := v.load()
	if err != nil {
		return 0, toStatus(err)
	}

	found, _, _, err := v.findFile(&br, p.Components())
	if err != nil {
		return 0, toStatus(err)
	}

	slots, err := v.loadDirSlots(&br, found)
	if err != nil {
		return 0, toStatus(err)
	}

	var items []dirEntry
	for _, slot := range slots {
		if slot.Name != "" {
			items = append(items, slot)
		}
	}

	n := 0
	for pos := int(offset); pos < len(items) && n < len(entries); pos++ {
		entries[n] = vfs.DirectoryEntry{
			Attributes: entryAttributes(items[pos]),
			Name:       items[pos].Name,
		}
		n++
	}

	return n, status.Success
}

// LOCKS_EXCLUDED(v.mu)
func (v *Volume) Write(p ospath.Path, data []byte, offset uint64) (int, status.Status) {
	v.mu.Lock()
	defer v.mu.Unlock()

	br, table, err := v.load()
	if err != nil {
		return 0, toStatus(err)
	}

	found, parent, _, err := v.findFile(&br, p.Components())
	if err != nil {
		return 0, toStatus(err)
	}

	n, err := v.writeFile(&br, table, found, parent, data, offset)
	return n, toStatus(err)
}

// LOCKS_EXCLUDED(v.mu)
func (v *Volume) Create(p ospath.Path, info vfs.FileInfo) status.Status {
	v.mu.Lock()
	defer v.mu.Unlock()

	components := p.Components()

	// The root cannot be created again.
	if len(components) == 0 {
		return toStatus(ErrFileAlreadyExists)
	}

	name := components[len(components)-1]
	if len(name) > MaxNameLen-1 {
		return toStatus(ErrFileNameTooLong)
	}

	br, table, err := v.load()
	if err != nil {
		return toStatus(err)
	}

	_, parent, matched, err := v.findFile(&br, components)
	if err == nil {
		return toStatus(ErrFileAlreadyExists)
	}
	if err != ErrFileNotFound || matched != len(components)-1 {
		return toStatus(err)
	}

	return toStatus(v.createFile(&br, table, parent, dirEntry{
		Name:   name,
		IsFile: !info.IsDirectory(),
		Flags:  uint8(info.Attributes),
	}))
}

// LOCKS_EXCLUDED(v.mu)
func (v *Volume) Resize(p ospath.Path, size uint64) status.Status {
	v.mu.Lock()
	defer v.mu.Unlock()

	if p.ComponentCount() == 0 {
		return toStatus(ErrNotAFile)
	}

	br, table, err := v.load()
	if err != nil {
		return toStatus(err)
	}

	found, parent, _, err := v.findFile(&br, p.Components())
	if err != nil {
		return toStatus(err)
	}

	return toStatus(v.resizeFile(&br, table, found, parent, size))
}

// LOCKS_EXCLUDED(v.mu)
func (v *Volume) Remove(p ospath.Path) status.Status {
	v.mu.Lock()
	defer v.mu.Unlock()

	if p.ComponentCount() == 0 {
		return toStatus(ErrNotAFile)
	}

	br, table, err := v.load()
	if err != nil {
		return toStatus(err)
	}

	found, parent, _, err := v.findFile(&br, p.Components())
	if err != nil {
		return toStatus(err)
	}

	return toStatus(v.deleteFile(&br, table, found, parent))
}

////////////////////////////////////////////////////////////////////////
// File data
////////////////////////////////////////////////////////////////////////

// readFile copies up to min(len(buf), size-offset) bytes starting at
// offset, transferring physically contiguous clusters in single runs.
//
// LOCKS_REQUIRED(v.mu)
func (v *Volume) readFile(br *bootRecord, table []int32, file dirEntry, buf []byte, offset uint64) (int, error) {
	if !file.IsFile {
		return 0, ErrNotAFile
	}

	size := uint64(file.Size)
	if offset >= size || len(buf) == 0 {
		return 0, nil
	}

	limit := size - offset
	if uint64(len(buf)) < limit {
		limit = uint64(len(buf))
	}

	cb := br.bytesPerCluster()
	startCluster := clusterByOffset(table, file.StartCluster, offset, cb)
	intra := offset % cb

	var total uint64
	for _, ch := range splitChunks(table, startCluster) {
		if total == limit {
			break
		}

		chunkBytes := uint64(ch.count)*cb - intra
		if total+chunkBytes > limit {
			chunkBytes = limit - total
		}

		tmp := make([]byte, uint64(ch.count)*cb)
		if err := v.readClusters(br, ch.start, ch.count, tmp); err != nil {
			return int(total), err
		}

		copy(buf[total:], tmp[intra:intra+chunkBytes])
		total += chunkBytes
		intra = 0
	}

	return int(total), nil
}

// writeFile writes data at offset, allocating clusters as needed. Clusters
// newly allocated ahead of the offset are zero-filled; bytes between the old
// end of file and the end of its last allocated cluster are left as they
// are on disk. Both
// the data clusters and the updated directory entry are persisted before
// success is reported.
//
// LOCKS_REQUIRED(v.mu)
func (v *Volume) writeFile(br *bootRecord, table []int32, file, parent dirEntry, data []byte, offset uint64) (int, error) {
	if !file.IsFile {
		return 0, ErrNotAFile
	}

	if len(data) == 0 {
		return 0, nil
	}

	cb := br.bytesPerCluster()
	allocated := countFileClusters(table, file.StartCluster) * cb
	end := offset + uint64(len(data))

	var fillBytes, newBytes uint64
	if end > allocated {
		if offset > allocated {
			// The offset lies past the allocated span; the gap is filled
			// with zero clusters.
			fillBytes = offset - allocated
			newBytes = fillBytes + uint64(len(data))
		} else {
			newBytes = end - allocated
		}
	}

	tail := lastFileCluster(table, file.StartCluster)
	if err := allocateClusters(table, tail, divCeil(newBytes, cb)); err != nil {
		return 0, err
	}

	if fillBytes > 0 {
		zero := make([]byte, cb)
		cluster := clusterByOffset(table, file.StartCluster, allocated, cb)

		for written := uint64(0); written < fillBytes; written += cb {
			if err := v.writeClusters(br, cluster, 1, zero); err != nil {
				return 0, err
			}
			cluster = table[cluster]
		}
	}

	// First cluster: read-modify-write around the intra-cluster offset.
	cluster := clusterByOffset(table, file.StartCluster, offset, cb)
	intra := offset % cb

	clusterBuf := make([]byte, cb)

	first := cb - intra
	if first > uint64(len(data)) {
		first = uint64(len(data))
	}

	if err := v.readClusters(br, cluster, 1, clusterBuf); err != nil {
		return 0, err
	}
	copy(clusterBuf[intra:], data[:first])
	if err := v.writeClusters(br, cluster, 1, clusterBuf); err != nil {
		return 0, err
	}

	written := first

	// Middle: whole clusters straight from the caller's buffer.
	for uint64(len(data))-written >= cb {
		cluster = table[cluster]
		if err := v.writeClusters(br, cluster, 1, data[written:written+cb]); err != nil {
			return int(written), err
		}
		written += cb
	}

	// Tail: read-modify-write the final partial cluster.
	if written < uint64(len(data)) {
		cluster = table[cluster]

		if err := v.readClusters(br, cluster, 1, clusterBuf); err != nil {
			return int(written), err
		}
		copy(clusterBuf, data[written:])
		if err := v.writeClusters(br, cluster, 1, clusterBuf); err != nil {
			return int(written), err
		}
		written = uint64(len(data))
	}

	if end > uint64(file.Size) {
		file.Size = uint32(end)
	}

	if err := v.updateEntryInDir(br, parent, file.Name, file); err != nil {
		return int(written), err
	}

	if err := v.updateFAT(br, table); err != nil {
		return int(written), err
	}

	return int(written), nil
}

// resizeFile grows or shrinks the cluster chain to cover size. Truncated
// clusters are freed without zeroing; a file resized to zero keeps its
// start cluster.
//
// LOCKS_REQUIRED(v.mu)
func (v *Volume) resizeFile(br *bootRecord, table []int32, file, parent dirEntry, size uint64) error {
	if !file.IsFile {
		return ErrNotAFile
	}

	cb := br.bytesPerCluster()
	current := countFileClusters(table, file.StartCluster)

	needed := divCeil(size, cb)
	if needed == 0 {
		needed = 1
	}

	switch {
	case needed > current:
		tail := lastFileCluster(table, file.StartCluster)
		if err := allocateClusters(table, tail, needed-current); err != nil {
			return err
		}

	case needed < current:
		// Walk to the new final cluster, terminate the chain there, and
		// free the remainder.
		cluster := file.StartCluster
		for i := uint64(1); i < needed; i++ {
			cluster = table[cluster]
		}

		next := table[cluster]
		table[cluster] = fatFileEnd

		for isDataCluster(next) {
			tmp := table[next]
			table[next] = fatUnused
			next = tmp
		}
	}

	file.Size = uint32(size)

	if err := v.updateEntryInDir(br, parent, file.Name, file); err != nil {
		return err
	}

	return v.updateFAT(br, table)
}

// deleteFile frees the entry's directory slot and its cluster chain. A
// directory must be empty.
//
// LOCKS_REQUIRED(v.mu)
func (v *Volume) deleteFile(br *bootRecord, table []int32, file, parent dirEntry) error {
	if !file.IsFile {
		slots, err := v.loadDirSlots(br, file)
		if err != nil {
			return err
		}
		for _, slot := range slots {
			if slot.Name != "" {
				return ErrDirNotEmpty
			}
		}
	}

	// Zero the slot in the parent directory.
	if err := v.updateEntryInDir(br, parent, file.Name, dirEntry{}); err != nil {
		return err
	}

	// Free the chain.
	cluster := file.StartCluster
	for cluster != noCluster {
		next := table[cluster]
		table[cluster] = fatUnused
		if !isDataCluster(next) {
			break
		}
		cluster = next
	}

	return v.updateFAT(br, table)
}

// createFile inserts a fresh entry into the first free slot of the parent
// directory, seeds its start cluster, and records it in the table.
//
// LOCKS_REQUIRED(v.mu)
func (v *Volume) createFile(br *bootRecord, table []int32, parent dirEntry, newFile dirEntry) error {
	start := freeCluster(table)
	if start == noCluster {
		return ErrFullDisk
	}

	newFile.StartCluster = start
	newFile.Size = 0

	cb := br.bytesPerCluster()
	buf := make([]byte, cb)
	if err := v.readClusters(br, parent.StartCluster, 1, buf); err != nil {
		return err
	}

	slot := -1
	for i := 0; i < br.maxItemsInDirectory(); i++ {
		if buf[i*dirEntrySize] == 0 {
			slot = i
			break
		}
	}
	if slot < 0 {
		return ErrFullDir
	}

	newFile.marshal(buf[slot*dirEntrySize:])
	if err := v.writeClusters(br, parent.StartCluster, 1, buf); err != nil {
		return err
	}

	// A fresh cluster starts zeroed whether it backs a file or a
	// directory's empty slot array.
	for i := range buf {
		buf[i] = 0
	}
	if err := v.writeClusters(br, newFile.StartCluster, 1, buf); err != nil {
		return err
	}

	if newFile.IsFile {
		table[newFile.StartCluster] = fatFileEnd
	} else {
		table[newFile.StartCluster] = fatDirectory
	}

	return v.updateFAT(br, table)
}
