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

// Package hal exposes the downward interface of the kernel: disk sectors,
// VGA text output, and keyboard input, modelled after BIOS-era interrupt
// services. Devices are register-driven; success travels out of band in the
// carry flag, with a status word in RAX on failure.
package hal

// Register is one 64-bit register. Accessors follow the x86 naming: L and H
// are the low two bytes, X the low word, E the low double word, R the whole
// register.
type Register struct {
	R uint64
}

func (r Register) L() uint8  { return uint8(r.R) }
func (r Register) H() uint8  { return uint8(r.R >> 8) }
func (r Register) X() uint16 { return uint16(r.R) }
func (r Register) E() uint32 { return uint32(r.R) }

func (r *Register) SetL(v uint8)  { r.R = r.R&^0xFF | uint64(v) }
func (r *Register) SetH(v uint8)  { r.R = r.R&^0xFF00 | uint64(v)<<8 }
func (r *Register) SetX(v uint16) { r.R = r.R&^0xFFFF | uint64(v) }
func (r *Register) SetE(v uint32) { r.R = r.R&^0xFFFFFFFF | uint64(v) }
func (r *Register) SetR(v uint64) { r.R = v }

type Flags struct {
	// Carry signals failure of the requested service.
	Carry bool

	// NonZero is a secondary out-of-band result bit; the keyboard uses it
	// to report "got a character".
	NonZero bool
}

// DiskAddressPacket addresses a run of sectors. Buffer stands in for the
// sector-buffer pointer of the original ABI; its length must be at least
// Count sectors.
type DiskAddressPacket struct {
	LBAIndex uint64
	Count    uint64
	Buffer   []byte
}

// DriveParameters is the Drive_Parameters result block.
type DriveParameters struct {
	Cylinders               uint32
	Heads                   uint32
	SectorsPerTrack         uint32
	BytesPerSector          uint16
	AbsoluteNumberOfSectors uint64
}

// Registers is the parameter block passed to every HAL service. The original
// packs pointers into general-purpose registers; here each pointer-carrying
// argument has a typed slot next to the numeric registers.
type Registers struct {
	RAX, RBX, RCX, RDX, RDI Register
	Flags                   Flags

	// Packet carries the disk-address-packet argument of the disk services.
	Packet *DiskAddressPacket

	// Params receives the Drive_Parameters result.
	Params *DriveParameters

	// Buffer carries the string argument of VGA Write_String.
	Buffer []byte
}

// Interrupt numbers.
type Interrupt uint8

const (
	InterruptDiskIO Interrupt = iota
	InterruptVGA
	InterruptKeyboard
)

// Disk sub-commands, selected by RAX.H.
const (
	DiskReadSectors uint8 = iota
	DiskWriteSectors
	DiskDriveParameters
)

// Disk status words.
type DiskStatus uint16

const (
	DiskNoError DiskStatus = iota
	DiskSectorNotFound
	DiskAddressMarkNotFoundOrBadSector
	DiskFixedDiskWriteFaultOnSelectedDrive
	DiskDriveNotReady
	DiskBadCommand
)

// VGA sub-commands, selected by RAX.H.
const (
	VGAWriteControlChar uint8 = iota
	VGAWriteString
)

// Keyboard sub-commands, selected by RAX.H.
const (
	KeyboardPeekChar uint8 = iota
	KeyboardReadChar
)

// ControlCodeEOT is the end-of-transmission character; the keyboard reports
// it when its input is exhausted.
const ControlCodeEOT = 4

// Device handles one interrupt's register traffic.
type Device interface {
	Handle(regs *Registers)
}

// HAL routes interrupts to devices. The handler table is fixed at
// construction; Call is safe for concurrent use as long as the devices are.
type HAL struct {
	devices map[Interrupt]Device
}

func New(disk *DiskController, vga *VGA, keyboard *Keyboard) *HAL {
	return &HAL{
		devices: map[Interrupt]Device{
			InterruptDiskIO:   disk,
			InterruptVGA:      vga,
			InterruptKeyboard: keyboard,
		},
	}
}

// Call dispatches one interrupt. An unknown interrupt sets the carry flag
// and a Bad_Command status, like firmware would.
func (h *HAL) Call(interrupt Interrupt, regs *Registers) {
	device, ok := h.devices[interrupt]
	if !ok {
		regs.Flags.Carry = true
		regs.RAX.SetX(uint16(DiskBadCommand))
		return
	}

	device.Handle(regs)
}
