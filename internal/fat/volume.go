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
	"context"
	"encoding/binary"
	"sync"

	"github.com/Cajova-Houba/kiv-os-simulator/common"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/hal"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/logger"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/vfs"
)

// Volume is one FAT filesystem on one HAL drive. All operations are
// serialised by the volume mutex; the simulated disk has no parallelism to
// exploit, so the lock stays held across HAL transfers.
type Volume struct {
	mu sync.Mutex

	hal     *hal.HAL
	disk    uint8
	params  hal.DriveParameters
	metrics common.MetricHandle

	driveAttr []common.MetricAttr
}

var _ vfs.FileSystem = (*Volume)(nil)

func NewVolume(h *hal.HAL, disk uint8, params hal.DriveParameters, metrics common.MetricHandle) *Volume {
	return &Volume{
		hal:     h,
		disk:    disk,
		params:  params,
		metrics: metrics,
		driveAttr: []common.MetricAttr{
			{Key: "drive", Value: string('0' + rune(disk))},
		},
	}
}

////////////////////////////////////////////////////////////////////////
// Sector and cluster transfer
////////////////////////////////////////////////////////////////////////

func (v *Volume) readSectors(lba, count uint64, buf []byte) error {
	var regs hal.Registers
	regs.RAX.SetH(hal.DiskReadSectors)
	regs.RDX.SetL(v.disk)
	regs.Packet = &hal.DiskAddressPacket{LBAIndex: lba, Count: count, Buffer: buf}

	v.hal.Call(hal.InterruptDiskIO, &regs)
	if regs.Flags.Carry {
		logger.Errorf("fat: reading %d sectors at %d from drive %d failed (status %d)",
			count, lba, v.disk, regs.RAX.X())
		return ErrDiskOperation
	}

	v.metrics.DiskReadBytesCount(context.Background(), int64(count)*int64(v.params.BytesPerSector), v.driveAttr)
	return nil
}

func (v *Volume) writeSectors(lba, count uint64, data []byte) error {
	var regs hal.Registers
	regs.RAX.SetH(hal.DiskWriteSectors)
	regs.RDX.SetL(v.disk)
	regs.Packet = &hal.DiskAddressPacket{LBAIndex: lba, Count: count, Buffer: data}

	v.hal.Call(hal.InterruptDiskIO, &regs)
	if regs.Flags.Carry {
		logger.Errorf("fat: writing %d sectors at %d to drive %d failed (status %d)",
			count, lba, v.disk, regs.RAX.X())
		return ErrDiskOperation
	}

	v.metrics.DiskWriteBytesCount(context.Background(), int64(count)*int64(v.params.BytesPerSector), v.driveAttr)
	return nil
}

func (v *Volume) readClusters(br *bootRecord, cluster int32, count uint32, buf []byte) error {
	lba := br.firstDataSector() + uint64(cluster)*uint64(br.ClusterSize)
	return v.readSectors(lba, uint64(count)*uint64(br.ClusterSize), buf)
}

func (v *Volume) writeClusters(br *bootRecord, cluster int32, count uint32, data []byte) error {
	lba := br.firstDataSector() + uint64(cluster)*uint64(br.ClusterSize)
	return v.writeSectors(lba, uint64(count)*uint64(br.ClusterSize), data)
}

////////////////////////////////////////////////////////////////////////
// Metadata
////////////////////////////////////////////////////////////////////////

func (v *Volume) loadBootRecord() (bootRecord, error) {
	bps := uint64(v.params.BytesPerSector)
	sectors := divCeil(alignedBootRecSize, bps)

	buf := make([]byte, sectors*bps)
	if err := v.readSectors(0, sectors, buf); err != nil {
		return bootRecord{}, err
	}

	return unmarshalBootRecord(buf), nil
}

func (v *Volume) loadFAT(br *bootRecord) ([]int32, error) {
	bps := uint64(v.params.BytesPerSector)
	fatBytes := 4 * uint64(br.UsableClusterCount)
	sectors := divCeil(alignedBootRecSize+fatBytes, bps)

	buf := make([]byte, sectors*bps)
	if err := v.readSectors(0, sectors, buf); err != nil {
		return nil, err
	}

	table := make([]int32, br.UsableClusterCount)
	for i := range table {
		table[i] = int32(binary.LittleEndian.Uint32(buf[alignedBootRecSize+4*i:]))
	}

	return table, nil
}

// updateFAT persists the boot record and every table copy in one transfer.
func (v *Volume) updateFAT(br *bootRecord, table []int32) error {
	bps := uint64(v.params.BytesPerSector)
	sectors := br.firstDataSector()

	buf := make([]byte, sectors*bps)
	br.marshal(buf)

	for copyIdx := 0; copyIdx < int(br.FatCopies); copyIdx++ {
		base := alignedBootRecSize + copyIdx*4*len(table)
		for i, entry := range table {
			binary.LittleEndian.PutUint32(buf[base+4*i:], uint32(entry))
		}
	}

	return v.writeSectors(0, sectors, buf)
}

////////////////////////////////////////////////////////////////////////
// Directory access
////////////////////////////////////////////////////////////////////////

// loadDirSlots reads a directory cluster and returns all of its entry
// slots, free ones included.
func (v *Volume) loadDirSlots(br *bootRecord, dir dirEntry) ([]dirEntry, error) {
	if dir.IsFile {
		return nil, ErrNotADir
	}

	buf := make([]byte, br.bytesPerCluster())
	if err := v.readClusters(br, dir.StartCluster, 1, buf); err != nil {
		return nil, err
	}

	slots := make([]dirEntry, br.maxItemsInDirectory())
	for i := range slots {
		slots[i] = unmarshalDirEntry(buf[i*dirEntrySize:])
	}

	return slots, nil
}

// updateEntryInDir rewrites the slot named originalName inside the parent
// directory cluster. Writing a zeroed entry frees the slot.
func (v *Volume) updateEntryInDir(br *bootRecord, parent dirEntry, originalName string, entry dirEntry) error {
	buf := make([]byte, br.bytesPerCluster())
	if err := v.readClusters(br, parent.StartCluster, 1, buf); err != nil {
		return err
	}

	maxItems := br.maxItemsInDirectory()
	slot := -1
	for i := 0; i < maxItems; i++ {
		if cString(buf[i*dirEntrySize:i*dirEntrySize+MaxNameLen]) == originalName {
			slot = i
			break
		}
	}
	if slot < 0 {
		return ErrFileNotFound
	}

	entry.marshal(buf[slot*dirEntrySize:])

	return v.writeClusters(br, parent.StartCluster, 1, buf)
}

func rootEntry() dirEntry {
	return dirEntry{
		IsFile:       false,
		Flags:        uint8(vfs.AttrDirectory),
		StartCluster: RootCluster,
	}
}

// findFile walks the component list from the root. On FILE_NOT_FOUND the
// match counter tells the caller how many leading components resolved, so
// create can distinguish "parent missing" from "file missing".
func (v *Volume) findFile(br *bootRecord, components []string) (found, parent dirEntry, matched int, err error) {
	parent = rootEntry()

	if len(components) == 0 {
		found = rootEntry()
		return
	}

	slots, err := v.loadDirSlots(br, parent)
	if err != nil {
		return
	}

	for i, name := range components {
		entry, ok := findInSlots(slots, name)
		if !ok {
			err = ErrFileNotFound
			return
		}

		last := i == len(components)-1
		if last {
			matched++
			found = entry
			return
		}

		if entry.IsFile {
			err = ErrNotADir
			return
		}

		matched++
		parent = entry

		slots, err = v.loadDirSlots(br, parent)
		if err != nil {
			return
		}
	}

	return
}

func findInSlots(slots []dirEntry, name string) (dirEntry, bool) {
	for _, e := range slots {
		if e.Name != "" && e.Name == name {
			return e, true
		}
	}
	return dirEntry{}, false
}

////////////////////////////////////////////////////////////////////////
// Cluster chains
////////////////////////////////////////////////////////////////////////

func clusterByOffset(table []int32, start int32, offset, clusterBytes uint64) int32 {
	cluster := start
	for skip := offset / clusterBytes; skip > 0 && cluster != fatFileEnd; skip-- {
		cluster = table[cluster]
	}
	return cluster
}

func lastFileCluster(table []int32, start int32) int32 {
	cluster := start
	for isDataCluster(table[cluster]) {
		cluster = table[cluster]
	}
	return cluster
}

func countFileClusters(table []int32, start int32) uint64 {
	count := uint64(1)
	cluster := start
	for isDataCluster(table[cluster]) {
		cluster = table[cluster]
		count++
	}
	return count
}

func countFreeClusters(table []int32) uint64 {
	var count uint64
	for _, entry := range table {
		if entry == fatUnused {
			count++
		}
	}
	return count
}

func freeCluster(table []int32) int32 {
	for i, entry := range table {
		if entry == fatUnused {
			return int32(i)
		}
	}
	return noCluster
}

// allocateClusters links count fresh clusters onto the chain ending at
// lastCluster, terminating with FILE_END.
func allocateClusters(table []int32, lastCluster int32, count uint64) error {
	if countFreeClusters(table) < count {
		return ErrFullDisk
	}

	tail := lastCluster
	for i := uint64(0); i < count; i++ {
		next := freeCluster(table)
		table[tail] = next
		table[next] = fatFileEnd
		tail = next
	}

	return nil
}

// chunk is a run of physically contiguous clusters.
type chunk struct {
	start int32
	count uint32
}

// splitChunks groups the chain starting at startCluster into contiguous
// runs, each at most maxClustersPerRun long. The chain terminates at the
// first reserved marker.
func splitChunks(table []int32, startCluster int32) []chunk {
	if startCluster == noCluster {
		return nil
	}

	var chunks []chunk

	runStart := startCluster
	var runLen uint32 = 1
	curr := startCluster

	for {
		next := table[curr]
		if isDataCluster(next) && next == curr+1 && runLen < maxClustersPerRun {
			runLen++
			curr = next
			continue
		}

		chunks = append(chunks, chunk{start: runStart, count: runLen})

		if !isDataCluster(next) {
			break
		}
		runStart = next
		runLen = 1
		curr = next
	}

	return chunks
}
