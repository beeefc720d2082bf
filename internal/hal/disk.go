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

package hal

import (
	"fmt"
	"os"
	"sync"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/logger"
)

// Drive is one sector-addressable medium behind the disk controller.
type Drive interface {
	ReadSectors(lba uint64, count uint64, buf []byte) DiskStatus
	WriteSectors(lba uint64, count uint64, data []byte) DiskStatus

	// BytesPerSector and Size describe the medium; Size is in bytes.
	BytesPerSector() uint16
	Size() uint64
}

// DiskController serves the Disk_IO interrupt for a fixed set of drives.
// The drive index travels in RDX.L.
type DiskController struct {
	mu     sync.Mutex
	drives []Drive
}

func NewDiskController(drives []Drive) *DiskController {
	return &DiskController{drives: drives}
}

func (c *DiskController) DriveCount() int {
	return len(c.drives)
}

func (c *DiskController) Handle(regs *Registers) {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := int(regs.RDX.L())
	if index >= len(c.drives) {
		setDiskStatus(regs, DiskDriveNotReady)
		return
	}
	drive := c.drives[index]

	switch regs.RAX.H() {
	case DiskReadSectors:
		dap := regs.Packet
		if dap == nil {
			setDiskStatus(regs, DiskBadCommand)
			return
		}
		setDiskStatus(regs, drive.ReadSectors(dap.LBAIndex, dap.Count, dap.Buffer))

	case DiskWriteSectors:
		dap := regs.Packet
		if dap == nil {
			setDiskStatus(regs, DiskBadCommand)
			return
		}
		setDiskStatus(regs, drive.WriteSectors(dap.LBAIndex, dap.Count, dap.Buffer))

	case DiskDriveParameters:
		if regs.Params == nil {
			setDiskStatus(regs, DiskBadCommand)
			return
		}
		fillDriveParameters(regs.Params, drive)
		setDiskStatus(regs, DiskNoError)

	default:
		setDiskStatus(regs, DiskBadCommand)
	}
}

func setDiskStatus(regs *Registers, s DiskStatus) {
	if s == DiskNoError {
		regs.Flags.Carry = false
		return
	}
	regs.Flags.Carry = true
	regs.RAX.SetX(uint16(s))
}

// fillDriveParameters synthesises CHS geometry from the disk size, the way
// BIOS-assisted translation would.
func fillDriveParameters(p *DriveParameters, d Drive) {
	const mb = 1024 * 1024
	size := d.Size()

	assisted := true
	switch {
	case size < 504*mb:
		p.Heads = 16
	case size < 1008*mb:
		p.Heads = 32
	case size < 2016*mb:
		p.Heads = 64
	case size < 4032*mb:
		p.Heads = 128
	case size < 8032*mb:
		p.Heads = 255
	default:
		p.SectorsPerTrack = 0xFFFFFFFF
		p.Heads = 0xFFFFFFFF
		p.Cylinders = 0xFFFFFFFF
		assisted = false
	}

	if assisted {
		p.SectorsPerTrack = 63
		sum := uint64(p.SectorsPerTrack) * uint64(p.Heads) * uint64(d.BytesPerSector())
		p.Cylinders = uint32(size / sum)
	}

	p.BytesPerSector = d.BytesPerSector()
	p.AbsoluteNumberOfSectors = size / uint64(d.BytesPerSector())
}

////////////////////////////////////////////////////////////////////////
// RAM disk
////////////////////////////////////////////////////////////////////////

// RAMDisk is a volatile in-memory drive.
type RAMDisk struct {
	bytesPerSector uint16
	data           []byte
}

func NewRAMDisk(sizeBytes uint64, bytesPerSector uint16) *RAMDisk {
	return &RAMDisk{
		bytesPerSector: bytesPerSector,
		data:           make([]byte, sizeBytes),
	}
}

func (d *RAMDisk) BytesPerSector() uint16 { return d.bytesPerSector }
func (d *RAMDisk) Size() uint64           { return uint64(len(d.data)) }

func (d *RAMDisk) checkRange(lba, count uint64) bool {
	bps := uint64(d.bytesPerSector)
	return (lba+count)*bps <= uint64(len(d.data))
}

func (d *RAMDisk) ReadSectors(lba uint64, count uint64, buf []byte) DiskStatus {
	if !d.checkRange(lba, count) {
		return DiskSectorNotFound
	}
	n := count * uint64(d.bytesPerSector)
	if uint64(len(buf)) < n {
		return DiskBadCommand
	}
	copy(buf[:n], d.data[lba*uint64(d.bytesPerSector):])
	return DiskNoError
}

func (d *RAMDisk) WriteSectors(lba uint64, count uint64, data []byte) DiskStatus {
	if !d.checkRange(lba, count) {
		return DiskSectorNotFound
	}
	n := count * uint64(d.bytesPerSector)
	if uint64(len(data)) < n {
		return DiskBadCommand
	}
	copy(d.data[lba*uint64(d.bytesPerSector):], data[:n])
	return DiskNoError
}

////////////////////////////////////////////////////////////////////////
// Image-backed disk
////////////////////////////////////////////////////////////////////////

// ImageDisk is a drive backed by a raw image file on the host.
type ImageDisk struct {
	bytesPerSector uint16
	size           uint64
	readOnly       bool
	file           *os.File
}

func OpenImageDisk(path string, bytesPerSector uint16, readOnly bool) (*ImageDisk, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}

	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("opening disk image: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat disk image: %w", err)
	}

	logger.Infof("hal: disk image %q attached (%d bytes, read-only=%v)", path, info.Size(), readOnly)

	return &ImageDisk{
		bytesPerSector: bytesPerSector,
		size:           uint64(info.Size()),
		readOnly:       readOnly,
		file:           f,
	}, nil
}

func (d *ImageDisk) Close() error {
	return d.file.Close()
}

func (d *ImageDisk) BytesPerSector() uint16 { return d.bytesPerSector }
func (d *ImageDisk) Size() uint64           { return d.size }

func (d *ImageDisk) checkRange(lba, count uint64) bool {
	return (lba+count)*uint64(d.bytesPerSector) <= d.size
}

func (d *ImageDisk) ReadSectors(lba uint64, count uint64, buf []byte) DiskStatus {
	if !d.checkRange(lba, count) {
		return DiskSectorNotFound
	}
	n := count * uint64(d.bytesPerSector)
	if uint64(len(buf)) < n {
		return DiskBadCommand
	}
	if _, err := d.file.ReadAt(buf[:n], int64(lba)*int64(d.bytesPerSector)); err != nil {
		logger.Errorf("hal: disk image read failed: %v", err)
		return DiskAddressMarkNotFoundOrBadSector
	}
	return DiskNoError
}

func (d *ImageDisk) WriteSectors(lba uint64, count uint64, data []byte) DiskStatus {
	if d.readOnly {
		return DiskFixedDiskWriteFaultOnSelectedDrive
	}
	if !d.checkRange(lba, count) {
		return DiskSectorNotFound
	}
	n := count * uint64(d.bytesPerSector)
	if uint64(len(data)) < n {
		return DiskBadCommand
	}
	if _, err := d.file.WriteAt(data[:n], int64(lba)*int64(d.bytesPerSector)); err != nil {
		logger.Errorf("hal: disk image write failed: %v", err)
		return DiskFixedDiskWriteFaultOnSelectedDrive
	}
	return DiskNoError
}
