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

// Package fat implements the FAT-like on-disk filesystem: a boot record,
// one or more copies of a 32-bit allocation table, and a data area of
// fixed-size clusters, with cluster 0 holding the root directory.
package fat

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
)

// On-disk layout constants. The boot record is padded to a fixed size so
// the allocation table always starts at the same byte offset.
const (
	descriptionLen     = 250
	signatureLen       = 9
	alignedBootRecSize = 272

	// dirEntrySize is the packed size of one directory record.
	dirEntrySize = 24

	// MaxNameLen is the capacity of the on-disk name field, including the
	// terminating NUL.
	MaxNameLen = 12

	// RootCluster holds the root directory.
	RootCluster = 0

	noCluster = -1

	defaultFatCopies = 1
	fatTypeID        = 8

	// preferredClusterBytes drives the sectors-per-cluster choice at
	// format time.
	preferredClusterBytes = 1024

	// maxClustersPerRun caps how many physically contiguous clusters are
	// read in a single disk transfer.
	maxClustersPerRun = 1000
)

// Reserved allocation-table entries.
const (
	fatUnused    int32 = math.MaxInt32 - 1
	fatFileEnd   int32 = math.MaxInt32 - 2
	fatBad       int32 = math.MaxInt32 - 3
	fatDirectory int32 = math.MaxInt32 - 4
)

// Internal error set. Mapped onto the syscall status taxonomy at the
// filesystem boundary by toStatus.
var (
	ErrNoFileSystem      = errors.New("no file system on disk")
	ErrDiskOperation     = errors.New("disk operation failed")
	ErrNotADir           = errors.New("not a directory")
	ErrNotAFile          = errors.New("not a file")
	ErrFileNotFound      = errors.New("file not found")
	ErrFullDisk          = errors.New("no free cluster left")
	ErrFullDir           = errors.New("no free directory slot left")
	ErrIncompatibleDisk  = errors.New("disk is too small or misshaped for a filesystem")
	ErrFileAlreadyExists = errors.New("file already exists")
	ErrFileNameTooLong   = errors.New("file name too long")
	ErrDirNotEmpty       = errors.New("directory not empty")
)

func toStatus(err error) status.Status {
	switch {
	case err == nil:
		return status.Success
	case errors.Is(err, ErrNotADir),
		errors.Is(err, ErrNotAFile),
		errors.Is(err, ErrFileAlreadyExists),
		errors.Is(err, ErrFileNameTooLong):
		return status.InvalidArgument
	case errors.Is(err, ErrFileNotFound):
		return status.FileNotFound
	case errors.Is(err, ErrDirNotEmpty):
		return status.DirectoryNotEmpty
	case errors.Is(err, ErrFullDisk), errors.Is(err, ErrFullDir):
		return status.NotEnoughDiskSpace
	case errors.Is(err, ErrNoFileSystem),
		errors.Is(err, ErrDiskOperation),
		errors.Is(err, ErrIncompatibleDisk):
		return status.IOError
	default:
		return status.UnknownError
	}
}

// bootRecord describes the volume. It occupies the first
// alignedBootRecSize bytes of the disk.
type bootRecord struct {
	VolumeDescriptor   string
	FatType            uint8
	FatCopies          uint8
	ClusterSize        uint16 // sectors per cluster
	UsableClusterCount int32
	BytesPerSector     uint16
	Signature          string
}

func (br *bootRecord) marshal(buf []byte) {
	for i := range buf[:alignedBootRecSize] {
		buf[i] = 0
	}

	copy(buf[:descriptionLen], br.VolumeDescriptor)
	buf[250] = br.FatType
	buf[251] = br.FatCopies
	binary.LittleEndian.PutUint16(buf[252:], br.ClusterSize)
	binary.LittleEndian.PutUint32(buf[254:], uint32(br.UsableClusterCount))
	binary.LittleEndian.PutUint16(buf[258:], br.BytesPerSector)
	copy(buf[260:260+signatureLen], br.Signature)
}

func unmarshalBootRecord(buf []byte) bootRecord {
	return bootRecord{
		VolumeDescriptor:   cString(buf[:descriptionLen]),
		FatType:            buf[250],
		FatCopies:          buf[251],
		ClusterSize:        binary.LittleEndian.Uint16(buf[252:]),
		UsableClusterCount: int32(binary.LittleEndian.Uint32(buf[254:])),
		BytesPerSector:     binary.LittleEndian.Uint16(buf[258:]),
		Signature:          cString(buf[260 : 260+signatureLen]),
	}
}

func (br *bootRecord) isValid(bytesPerSector uint16) bool {
	return br.UsableClusterCount > 0 &&
		br.ClusterSize > 0 &&
		br.FatCopies > 0 &&
		br.BytesPerSector == bytesPerSector
}

func (br *bootRecord) bytesPerCluster() uint64 {
	return uint64(br.BytesPerSector) * uint64(br.ClusterSize)
}

// firstDataSector returns the sector where the data area (cluster 0)
// starts: the boot record plus every table copy, rounded up.
func (br *bootRecord) firstDataSector() uint64 {
	metadata := uint64(alignedBootRecSize) +
		4*uint64(br.UsableClusterCount)*uint64(br.FatCopies)

	return divCeil(metadata, uint64(br.BytesPerSector))
}

func (br *bootRecord) maxItemsInDirectory() int {
	return int(br.bytesPerCluster() / dirEntrySize)
}

// dirEntry is one record of an on-disk directory. A slot is free iff the
// first name byte is NUL.
type dirEntry struct {
	Name         string
	IsFile       bool
	Flags        uint8
	Size         uint32
	StartCluster int32
}

func (e *dirEntry) marshal(buf []byte) {
	for i := range buf[:dirEntrySize] {
		buf[i] = 0
	}

	name := e.Name
	if len(name) > MaxNameLen-1 {
		name = name[:MaxNameLen-1]
	}
	copy(buf[:MaxNameLen], name)

	if e.IsFile {
		buf[12] = 1
	}
	buf[13] = e.Flags
	binary.LittleEndian.PutUint32(buf[16:], e.Size)
	binary.LittleEndian.PutUint32(buf[20:], uint32(e.StartCluster))
}

func unmarshalDirEntry(buf []byte) dirEntry {
	return dirEntry{
		Name:         cString(buf[:MaxNameLen]),
		IsFile:       buf[12] != 0,
		Flags:        buf[13],
		Size:         binary.LittleEndian.Uint32(buf[16:]),
		StartCluster: int32(binary.LittleEndian.Uint32(buf[20:])),
	}
}

func cString(buf []byte) string {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}

func divCeil(numerator, denominator uint64) uint64 {
	return numerator/denominator + boolToUint64(numerator%denominator != 0)
}

func boolToUint64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// isDataCluster reports whether v links to another cluster of the chain,
// as opposed to a reserved marker.
func isDataCluster(v int32) bool {
	return v != fatUnused && v != fatFileEnd && v != fatBad && v != fatDirectory
}
