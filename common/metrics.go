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

// Package common holds cross-cutting helpers shared by the kernel and the
// CLI, chiefly the metrics handle.
package common

import "context"

// MetricAttr is one attribute attached to a metric update.
type MetricAttr struct {
	Key   string
	Value string
}

// MetricHandle is the kernel's view of the metrics backend.
type MetricHandle interface {
	// SyscallCount counts dispatched syscalls, attributed by family and
	// operation.
	SyscallCount(ctx context.Context, value int64, attrs []MetricAttr)

	// SyscallErrorCount counts syscalls that set the carry flag,
	// attributed by status.
	SyscallErrorCount(ctx context.Context, value int64, attrs []MetricAttr)

	// DiskReadBytesCount and DiskWriteBytesCount count bytes moved
	// through the HAL disk services, attributed by drive.
	DiskReadBytesCount(ctx context.Context, value int64, attrs []MetricAttr)
	DiskWriteBytesCount(ctx context.Context, value int64, attrs []MetricAttr)
}
