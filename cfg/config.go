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

// Package cfg defines the typed configuration of the simulator and its
// flag bindings. The config file plays the role the CMOS played for the
// original machine: it enumerates the drives the HAL presents to the
// kernel.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	Boot BootConfig `yaml:"boot" mapstructure:"boot"`

	// Drives are attached in order; drive 0 becomes A:.
	Drives []DriveConfig `yaml:"drives" mapstructure:"drives"`
}

type LoggingConfig struct {
	// Severity is one of trace, debug, info, warning, error, off.
	Severity string `yaml:"severity" mapstructure:"severity"`

	// Format is text or json.
	Format string `yaml:"format" mapstructure:"format"`
}

type MetricsConfig struct {
	// Enable turns the OTel pipeline on; metrics are dumped to stderr at
	// exit.
	Enable bool `yaml:"enable" mapstructure:"enable"`
}

type BootConfig struct {
	// Program is the user-program symbol started as the initial process.
	Program string `yaml:"program" mapstructure:"program"`

	// CmdLine is handed to the boot program verbatim.
	CmdLine string `yaml:"cmd-line" mapstructure:"cmd-line"`

	// FormatBlankDrives formats any attached drive without a filesystem.
	FormatBlankDrives bool `yaml:"format-blank-drives" mapstructure:"format-blank-drives"`
}

type DriveConfig struct {
	// Type is "ram" or "image".
	Type string `yaml:"type" mapstructure:"type"`

	// Path of the backing image; image drives only.
	Path string `yaml:"path" mapstructure:"path"`

	// SizeMb of the medium; ram drives only.
	SizeMb int `yaml:"size-mb" mapstructure:"size-mb"`

	// BytesPerSector of the medium.
	BytesPerSector int `yaml:"bytes-per-sector" mapstructure:"bytes-per-sector"`

	// ReadOnly write-protects an image drive.
	ReadOnly bool `yaml:"read-only" mapstructure:"read-only"`
}

// BindFlags declares every scalar flag and binds it into viper; the drive
// list is file-only.
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.String("log-severity", "info", "Minimum log severity: trace, debug, info, warning, error, off.")
	if err := viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.String("log-format", "text", "Log format: text or json.")
	if err := viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.Bool("enable-metrics", false, "Collect OTel metrics and dump them at exit.")
	if err := viper.BindPFlag("metrics.enable", flagSet.Lookup("enable-metrics")); err != nil {
		return err
	}

	flagSet.String("boot-program", "shell", "User-program symbol to run as the initial process.")
	if err := viper.BindPFlag("boot.program", flagSet.Lookup("boot-program")); err != nil {
		return err
	}

	flagSet.String("boot-cmd-line", "", "Command line handed to the boot program.")
	if err := viper.BindPFlag("boot.cmd-line", flagSet.Lookup("boot-cmd-line")); err != nil {
		return err
	}

	flagSet.Bool("format-blank-drives", true, "Format attached drives that carry no filesystem.")
	if err := viper.BindPFlag("boot.format-blank-drives", flagSet.Lookup("format-blank-drives")); err != nil {
		return err
	}

	flagSet.Int("ram-disk-mb", 1, "Size of the default RAM disk when no drives are configured.")
	if err := viper.BindPFlag("ram-disk-mb", flagSet.Lookup("ram-disk-mb")); err != nil {
		return err
	}

	return nil
}
