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

// Package status defines the error taxonomy visible on the syscall surface.
// Inside the kernel these codes travel as plain values; they are written to
// the result register together with the carry flag at the syscall boundary.
package status

import "fmt"

type Status uint16

const (
	Success Status = iota
	InvalidArgument
	FileNotFound
	DirectoryNotEmpty
	NotEnoughDiskSpace
	OutOfMemory
	PermissionDenied
	IOError

	// UnrecognizedThread is reported for a syscall arriving from a thread
	// the kernel did not create.
	UnrecognizedThread Status = 0xA000

	UnknownError Status = 0xFFFF
)

func (s Status) String() string {
	switch s {
	case Success:
		return "SUCCESS"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case FileNotFound:
		return "FILE_NOT_FOUND"
	case DirectoryNotEmpty:
		return "DIRECTORY_NOT_EMPTY"
	case NotEnoughDiskSpace:
		return "NOT_ENOUGH_DISK_SPACE"
	case OutOfMemory:
		return "OUT_OF_MEMORY"
	case PermissionDenied:
		return "PERMISSION_DENIED"
	case IOError:
		return "IO_ERROR"
	case UnrecognizedThread:
		return "UNRECOGNIZED_THREAD"
	case UnknownError:
		return "UNKNOWN_ERROR"
	default:
		return fmt.Sprintf("Status(%d)", uint16(s))
	}
}
