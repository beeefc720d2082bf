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

package cfg

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsDeclaresEverything(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(fs))

	for _, name := range []string{
		"log-severity", "log-format", "enable-metrics",
		"boot-program", "boot-cmd-line", "format-blank-drives", "ram-disk-mb",
	} {
		assert.NotNil(t, fs.Lookup(name), "flag %q missing", name)
	}
}

func TestRationalizeFillsDefaults(t *testing.T) {
	var c Config
	Rationalize(&c, 4)

	assert.Equal(t, "info", c.Logging.Severity)
	assert.Equal(t, "text", c.Logging.Format)
	assert.Equal(t, "shell", c.Boot.Program)

	require.Len(t, c.Drives, 1)
	assert.Equal(t, "ram", c.Drives[0].Type)
	assert.Equal(t, 4, c.Drives[0].SizeMb)
	assert.Equal(t, 512, c.Drives[0].BytesPerSector)
}

func TestRationalizeKeepsExplicitDrives(t *testing.T) {
	c := Config{
		Drives: []DriveConfig{{Type: "image", Path: "disk.img"}},
	}
	Rationalize(&c, 4)

	require.Len(t, c.Drives, 1)
	assert.Equal(t, "image", c.Drives[0].Type)
	assert.Equal(t, 512, c.Drives[0].BytesPerSector)
}

func TestValidateAcceptsRationalizedConfig(t *testing.T) {
	var c Config
	Rationalize(&c, 1)

	assert.NoError(t, Validate(&c))
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"ram drive without size", func(c *Config) { c.Drives[0].SizeMb = 0 }},
		{"image drive without path", func(c *Config) {
			c.Drives[0] = DriveConfig{Type: "image", BytesPerSector: 512}
		}},
		{"unknown drive type", func(c *Config) { c.Drives[0].Type = "floppy" }},
		{"tiny sector size", func(c *Config) { c.Drives[0].BytesPerSector = 128 }},
		{"unaligned sector size", func(c *Config) { c.Drives[0].BytesPerSector = 500 }},
		{"too many drives", func(c *Config) {
			for i := 0; i < maxDrives+1; i++ {
				c.Drives = append(c.Drives, DriveConfig{Type: "ram", SizeMb: 1, BytesPerSector: 512})
			}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var c Config
			Rationalize(&c, 1)
			tc.mutate(&c)

			assert.Error(t, Validate(&c))
		})
	}
}
