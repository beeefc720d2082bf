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
	"fmt"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/logger"
	"github.com/google/uuid"
	"github.com/jacobsa/timeutil"
)

// Probe reports whether the drive carries a valid filesystem.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) Probe() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	br, err := v.loadBootRecord()
	if err != nil {
		return err
	}

	if !br.isValid(v.params.BytesPerSector) {
		return ErrNoFileSystem
	}

	return nil
}

// Format initialises a fresh filesystem on the drive: boot record, the
// allocation-table copies, and a zeroed root cluster. Everything the drive
// held before is gone.
//
// LOCKS_EXCLUDED(v.mu)
func (v *Volume) Format(label string, clock timeutil.Clock) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	diskBytes := v.params.AbsoluteNumberOfSectors * uint64(v.params.BytesPerSector)
	bps := uint64(v.params.BytesPerSector)

	sectorsPerCluster := preferredClusterBytes / bps
	if sectorsPerCluster == 0 {
		sectorsPerCluster = 1
	}
	if sectorsPerCluster > 0xFFFF {
		sectorsPerCluster = 0xFFFF
	}
	clusterBytes := sectorsPerCluster * bps

	// The largest cluster count satisfying
	//   bootRecord + fatCopies*4*count + count*clusterBytes <= diskBytes.
	var count int64
	if diskBytes > alignedBootRecSize {
		count = int64((diskBytes - alignedBootRecSize) / (clusterBytes + 4*defaultFatCopies))
	}

	// The metadata region is sector aligned; trim the count until the
	// aligned layout fits the medium.
	for count > 0 {
		metaSectors := divCeil(alignedBootRecSize+4*defaultFatCopies*uint64(count), bps)
		dataSectors := uint64(count) * sectorsPerCluster
		if metaSectors+dataSectors <= v.params.AbsoluteNumberOfSectors {
			break
		}
		count--
	}

	if count <= 0 {
		return ErrIncompatibleDisk
	}

	signature := uuid.New().String()[:signatureLen]

	br := bootRecord{
		VolumeDescriptor:   fmt.Sprintf("%s (formatted %s)", label, clock.Now().UTC().Format("2006-01-02 15:04:05")),
		FatType:            fatTypeID,
		FatCopies:          defaultFatCopies,
		ClusterSize:        uint16(sectorsPerCluster),
		UsableClusterCount: int32(count),
		BytesPerSector:     v.params.BytesPerSector,
		Signature:          signature,
	}

	table := make([]int32, count)
	table[RootCluster] = fatDirectory
	for i := 1; i < len(table); i++ {
		table[i] = fatUnused
	}

	if err := v.updateFAT(&br, table); err != nil {
		return err
	}

	// The root directory starts with every slot free.
	rootCluster := make([]byte, br.bytesPerCluster())
	if err := v.writeClusters(&br, RootCluster, 1, rootCluster); err != nil {
		return err
	}

	logger.Infof("fat: formatted drive %d: %d clusters of %d bytes, signature %s",
		v.disk, count, clusterBytes, signature)

	return nil
}
