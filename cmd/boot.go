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

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/Cajova-Houba/kiv-os-simulator/cfg"
	"github.com/Cajova-Houba/kiv-os-simulator/common"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/hal"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/kernel"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/logger"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/userprog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/sync/errgroup"
)

// boot assembles the machine from its config and runs it to completion.
func boot(c *cfg.Config) error {
	drives, cleanup, err := buildDrives(c)
	if err != nil {
		return err
	}
	defer cleanup()

	machine := hal.New(
		hal.NewDiskController(drives),
		hal.NewVGA(os.Stdout),
		hal.NewKeyboard(os.Stdin),
	)

	metrics, flushMetrics, err := buildMetrics(c)
	if err != nil {
		return err
	}
	defer flushMetrics()

	programs := userprog.NewRegistry()
	registerBuiltins(programs)

	k, err := kernel.New(&kernel.Config{
		HAL:               machine,
		DriveCount:        len(drives),
		FormatBlankDrives: c.Boot.FormatBlankDrives,
		Programs:          programs,
		Metrics:           metrics,
	})
	if err != nil {
		return fmt.Errorf("building the kernel: %w", err)
	}

	// The initial process runs on the group's goroutine and Wait returns
	// Run's error. Run tears the console down only when it returns
	// normally; the group adds no teardown of its own.
	group, _ := errgroup.WithContext(context.Background())
	group.Go(func() error {
		return k.Run(c.Boot.Program, c.Boot.CmdLine)
	})

	return group.Wait()
}

func buildDrives(c *cfg.Config) (drives []hal.Drive, cleanup func(), err error) {
	var images []*hal.ImageDisk
	cleanup = func() {
		for _, img := range images {
			img.Close()
		}
	}

	for i, d := range c.Drives {
		switch d.Type {
		case "ram":
			drives = append(drives,
				hal.NewRAMDisk(uint64(d.SizeMb)*1024*1024, uint16(d.BytesPerSector)))

		case "image":
			img, err := hal.OpenImageDisk(d.Path, uint16(d.BytesPerSector), d.ReadOnly)
			if err != nil {
				cleanup()
				return nil, func() {}, fmt.Errorf("attaching drive %d: %w", i, err)
			}
			images = append(images, img)
			drives = append(drives, img)
		}
	}

	return drives, cleanup, nil
}

func buildMetrics(c *cfg.Config) (common.MetricHandle, func(), error) {
	if !c.Metrics.Enable {
		return common.NewNoopMetrics(), func() {}, nil
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return nil, nil, fmt.Errorf("building the metric exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)

	handle, err := common.NewOTelMetrics(provider)
	if err != nil {
		return nil, nil, fmt.Errorf("building the metric handle: %w", err)
	}

	flush := func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warnf("flushing metrics: %v", err)
		}
	}

	return handle, flush, nil
}
