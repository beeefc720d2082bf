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

// Package kernel wires the simulator together: the handle table, the event
// system, the filesystem dispatcher, the console, and the user-program
// registry, plus the syscall entry point user code calls into.
package kernel

import (
	"fmt"

	"github.com/Cajova-Houba/kiv-os-simulator/common"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/console"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/event"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/fat"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/hal"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/handle"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/logger"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/ospath"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/procfs"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/process"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/userprog"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/vfs"
	"github.com/jacobsa/timeutil"
)

// ProcFSLetter is the fixed mount point of the process filesystem.
const ProcFSLetter = '0'

// Config carries everything a kernel instance needs. Tests build fresh
// kernels rather than sharing one.
type Config struct {
	// The HAL backing disk, VGA, and keyboard access.
	HAL *hal.HAL

	// How many drives to probe, starting at drive 0.
	DriveCount int

	// Format drives that carry no recognisable filesystem.
	FormatBlankDrives bool

	// The user-program symbol table.
	Programs *userprog.Registry

	// A clock used for format timestamps.
	Clock timeutil.Clock

	// Metrics sink; nil means no-op.
	Metrics common.MetricHandle
}

// Kernel owns the singletons of one simulated machine.
type Kernel struct {
	hal      *hal.HAL
	handles  *handle.Table
	events   *event.System
	sys      *process.System
	fs       *vfs.Dispatcher
	programs *userprog.Registry
	metrics  common.MetricHandle

	console    *console.Console
	consoleRef handle.Reference
}

// New builds a kernel: it creates the singletons, registers the console
// handle, and mounts procfs plus every drive with a usable filesystem.
func New(cfg *Config) (*Kernel, error) {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = common.NewNoopMetrics()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock()
	}

	programs := cfg.Programs
	if programs == nil {
		programs = userprog.NewRegistry()
	}

	k := &Kernel{
		hal:      cfg.HAL,
		handles:  handle.NewTable(),
		events:   event.NewSystem(),
		fs:       vfs.NewDispatcher(),
		programs: programs,
		metrics:  metrics,
	}
	k.sys = process.NewSystem(k.handles, k.events)
	k.sys.SetSyscallHandler(k.Syscall)

	k.console = console.New(cfg.HAL)
	ref, err := k.handles.Add(k.console)
	if err != nil {
		return nil, fmt.Errorf("registering console handle: %w", err)
	}
	k.consoleRef = ref

	k.fs.Mount(ProcFSLetter, procfs.New(k.handles))

	if err := k.mountDrives(cfg, clock); err != nil {
		return nil, err
	}

	return k, nil
}

func (k *Kernel) mountDrives(cfg *Config, clock timeutil.Clock) error {
	for drive := 0; drive < cfg.DriveCount; drive++ {
		var regs hal.Registers
		regs.RAX.SetH(hal.DiskDriveParameters)
		regs.RDX.SetL(uint8(drive))
		regs.Params = &hal.DriveParameters{}

		k.hal.Call(hal.InterruptDiskIO, &regs)
		if regs.Flags.Carry {
			logger.Warnf("kernel: drive %d not present, skipping", drive)
			continue
		}

		volume := fat.NewVolume(k.hal, uint8(drive), *regs.Params, k.metrics)

		if err := volume.Probe(); err != nil {
			if !cfg.FormatBlankDrives {
				logger.Warnf("kernel: drive %d carries no filesystem, skipping", drive)
				continue
			}

			label := fmt.Sprintf("KIV/OS volume %c", 'A'+drive)
			if err := volume.Format(label, clock); err != nil {
				return fmt.Errorf("formatting drive %d: %w", drive, err)
			}
		}

		k.fs.Mount(byte('A'+drive), volume)
	}

	return nil
}

func (k *Kernel) Handles() *handle.Table {
	return k.handles
}

func (k *Kernel) Events() *event.System {
	return k.events
}

func (k *Kernel) FileSystem() *vfs.Dispatcher {
	return k.fs
}

func (k *Kernel) Programs() *userprog.Registry {
	return k.programs
}

// ConsoleID returns the handle ID of the shared console.
func (k *Kernel) ConsoleID() handle.ID {
	return k.consoleRef.ID()
}

// Run executes the boot program as the initial process on the calling
// goroutine, with the console as its stdin and stdout, and returns once it
// terminates. The kernel is shut down afterwards.
func (k *Kernel) Run(program, cmdLine string) error {
	entry := k.programs.Lookup(program)
	if entry == nil {
		return fmt.Errorf("boot program %q not found", program)
	}

	cwd, err := k.defaultWorkingDirectory()
	if err != nil {
		return err
	}

	logger.Infof("kernel: booting %q (cwd %s)", program, cwd)

	stdIn := k.handles.Get(k.consoleRef.ID())
	stdOut := k.handles.Get(k.consoleRef.ID())

	ref, err := process.Create(k.sys, entry, program, cmdLine, cwd, stdIn, stdOut, true)
	if err != nil {
		return fmt.Errorf("creating the initial process: %w", err)
	}
	ref.Release()

	k.Shutdown()
	k.Teardown()

	return nil
}

// defaultWorkingDirectory picks the root of the first mounted FAT volume,
// falling back to the procfs root on a diskless machine.
func (k *Kernel) defaultWorkingDirectory() (ospath.Path, error) {
	var best byte
	for _, letter := range k.fs.MountedLetters() {
		if letter == ProcFSLetter {
			continue
		}
		if best == 0 || letter < best {
			best = letter
		}
	}
	if best == 0 {
		best = ProcFSLetter
	}

	return ospath.Parse(string(best) + ":\\"), nil
}

// Shutdown raises the Terminate signal on every live thread. Delivery is
// cooperative: each thread sees it on its next syscall.
func (k *Kernel) Shutdown() {
	logger.Infof("kernel: shutdown requested")

	threads := k.handles.List(func(id handle.ID, obj handle.Object) bool {
		return obj.HandleKind() == handle.KindThread
	})

	for i := range threads {
		threads[i].Object().(*process.Thread).RaiseSignal(process.SignalTerminate)
		threads[i].Release()
	}
}

// Teardown releases kernel-owned resources after the last user thread the
// kernel cares about is gone.
func (k *Kernel) Teardown() {
	k.console.Shutdown()
	k.console.Join()
	k.consoleRef.Release()
}
