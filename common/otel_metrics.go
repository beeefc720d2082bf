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

package common

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "kivos"

// NewOTelMetrics builds a MetricHandle backed by the given meter provider.
func NewOTelMetrics(provider metric.MeterProvider) (MetricHandle, error) {
	meter := provider.Meter(meterName)

	syscallCount, err := meter.Int64Counter("kernel/syscall_count",
		metric.WithDescription("The number of syscalls dispatched by the kernel."),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("creating syscall_count: %w", err)
	}

	syscallErrorCount, err := meter.Int64Counter("kernel/syscall_error_count",
		metric.WithDescription("The number of syscalls that failed, by status."),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("creating syscall_error_count: %w", err)
	}

	diskReadBytes, err := meter.Int64Counter("hal/disk_read_bytes_count",
		metric.WithDescription("The number of bytes read from simulated disks."),
		metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("creating disk_read_bytes_count: %w", err)
	}

	diskWriteBytes, err := meter.Int64Counter("hal/disk_write_bytes_count",
		metric.WithDescription("The number of bytes written to simulated disks."),
		metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("creating disk_write_bytes_count: %w", err)
	}

	return &otelMetrics{
		syscallCount:      syscallCount,
		syscallErrorCount: syscallErrorCount,
		diskReadBytes:     diskReadBytes,
		diskWriteBytes:    diskWriteBytes,
	}, nil
}

type otelMetrics struct {
	syscallCount      metric.Int64Counter
	syscallErrorCount metric.Int64Counter
	diskReadBytes     metric.Int64Counter
	diskWriteBytes    metric.Int64Counter
}

func (m *otelMetrics) SyscallCount(ctx context.Context, value int64, attrs []MetricAttr) {
	m.syscallCount.Add(ctx, value, toOptions(attrs)...)
}

func (m *otelMetrics) SyscallErrorCount(ctx context.Context, value int64, attrs []MetricAttr) {
	m.syscallErrorCount.Add(ctx, value, toOptions(attrs)...)
}

func (m *otelMetrics) DiskReadBytesCount(ctx context.Context, value int64, attrs []MetricAttr) {
	m.diskReadBytes.Add(ctx, value, toOptions(attrs)...)
}

func (m *otelMetrics) DiskWriteBytesCount(ctx context.Context, value int64, attrs []MetricAttr) {
	m.diskWriteBytes.Add(ctx, value, toOptions(attrs)...)
}

func toOptions(attrs []MetricAttr) []metric.AddOption {
	if len(attrs) == 0 {
		return nil
	}

	kv := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		kv = append(kv, attribute.String(a.Key, a.Value))
	}

	return []metric.AddOption{metric.WithAttributes(kv...)}
}
