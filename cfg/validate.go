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

import "fmt"

const (
	defaultBytesPerSector = 512
	maxDrives             = 10
)

// Rationalize fills defaults into a freshly unmarshalled config.
func Rationalize(c *Config, ramDiskMb int) {
	if c.Logging.Severity == "" {
		c.Logging.Severity = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Boot.Program == "" {
		c.Boot.Program = "shell"
	}

	if len(c.Drives) == 0 {
		c.Drives = []DriveConfig{{
			Type:   "ram",
			SizeMb: ramDiskMb,
		}}
	}

	for i := range c.Drives {
		if c.Drives[i].BytesPerSector == 0 {
			c.Drives[i].BytesPerSector = defaultBytesPerSector
		}
	}
}

// Validate rejects configs the HAL cannot realise.
func Validate(c *Config) error {
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Logging.Format)
	}

	if len(c.Drives) > maxDrives {
		return fmt.Errorf("at most %d drives are supported, got %d", maxDrives, len(c.Drives))
	}

	for i, d := range c.Drives {
		switch d.Type {
		case "ram":
			if d.SizeMb <= 0 {
				return fmt.Errorf("drive %d: ram drives need a positive size-mb", i)
			}
		case "image":
			if d.Path == "" {
				return fmt.Errorf("drive %d: image drives need a path", i)
			}
		default:
			return fmt.Errorf("drive %d: unsupported type %q", i, d.Type)
		}

		if d.BytesPerSector < 256 || d.BytesPerSector&(d.BytesPerSector-1) != 0 {
			return fmt.Errorf("drive %d: bytes-per-sector must be a power of two >= 256, got %d",
				i, d.BytesPerSector)
		}
	}

	return nil
}
