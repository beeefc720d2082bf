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

// Package ospath implements the textual path form of the simulated OS:
// an optional single-character disk prefix ("C:"), backslash or slash
// separators, and ".."/"." handling at parse time. Unsupported characters
// are replaced with '_' rather than rejected.
package ospath

import "strings"

// Path is a parsed path. The zero value is the empty path.
//
// A path is absolute iff it carries a disk letter and no leading ".."
// components; parentCount counts the ".." prefixes of a relative path.
type Path struct {
	diskLetter  byte
	parentCount uint32
	components  []string
}

func (p Path) IsEmpty() bool {
	return !p.HasDiskLetter() && p.parentCount == 0 && len(p.components) == 0
}

func (p Path) IsAbsolute() bool {
	return p.HasDiskLetter() && p.parentCount == 0
}

func (p Path) IsRelative() bool {
	return !p.IsAbsolute()
}

func (p Path) HasDiskLetter() bool {
	return p.diskLetter != 0
}

func (p Path) DiskLetter() byte {
	return p.diskLetter
}

func (p Path) ParentCount() uint32 {
	return p.parentCount
}

func (p Path) ComponentCount() int {
	return len(p.components)
}

// Components returns the component list. Callers must not modify it.
func (p Path) Components() []string {
	return p.components
}

func (p Path) Component(i int) string {
	return p.components[i]
}

// Compare orders paths: relative before absolute, then by disk letter or
// parent count, then component-wise; a prefix sorts before its extension.
func (p Path) Compare(other Path) int {
	if p.IsRelative() != other.IsRelative() {
		if p.IsRelative() {
			return -1
		}
		return 1
	}

	if p.IsAbsolute() {
		if p.diskLetter != other.diskLetter {
			if p.diskLetter < other.diskLetter {
				return -1
			}
			return 1
		}
	} else {
		if p.parentCount != other.parentCount {
			if p.parentCount < other.parentCount {
				return -1
			}
			return 1
		}
	}

	n := min(len(p.components), len(other.components))
	for i := 0; i < n; i++ {
		if c := strings.Compare(p.components[i], other.components[i]); c != 0 {
			return c
		}
	}

	switch {
	case len(p.components) < len(other.components):
		return -1
	case len(p.components) > len(other.components):
		return 1
	}

	return 0
}

func (p Path) Equal(other Path) bool {
	return p.Compare(other) == 0
}

// String renders with backslash separators; absolute paths begin "X:\",
// relative ones with zero or more "..\" prefixes.
func (p Path) String() string {
	var sb strings.Builder

	if p.IsAbsolute() {
		sb.WriteByte(p.diskLetter)
		sb.WriteString(":\\")
	} else {
		for i := uint32(0); i < p.parentCount; i++ {
			sb.WriteString("..\\")
		}
	}

	for i, component := range p.components {
		if i > 0 {
			sb.WriteByte('\\')
		}
		sb.WriteString(component)
	}

	return sb.String()
}

// Append joins other onto p: other's ".." prefixes pop components of p
// (or accumulate when p is relative and empty), then other's components
// are appended.
func (p *Path) Append(other Path) {
	for i := uint32(0); i < other.parentCount; i++ {
		if len(p.components) > 0 {
			p.components = p.components[:len(p.components)-1]
		} else if p.IsRelative() {
			p.parentCount++
		} else {
			break
		}
	}

	merged := make([]string, 0, len(p.components)+len(other.components))
	merged = append(merged, p.components...)
	merged = append(merged, other.components...)
	p.components = merged
}

// MakeAbsolute rewrites a relative p against an absolute base. It reports
// false when p is already absolute or base is not.
func (p *Path) MakeAbsolute(base Path) bool {
	if p.IsAbsolute() || !base.IsAbsolute() {
		return false
	}

	keep := 0
	if uint32(len(base.components)) > p.parentCount {
		keep = len(base.components) - int(p.parentCount)
	}

	merged := make([]string, 0, keep+len(p.components))
	merged = append(merged, base.components[:keep]...)
	merged = append(merged, p.components...)

	p.diskLetter = base.diskLetter
	p.parentCount = 0
	p.components = merged

	return true
}

func isAlnum(ch byte) bool {
	return ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z'
}

func isSeparator(ch byte) bool {
	return ch == '/' || ch == '\\' || ch == 0
}

func toUpper(ch byte) byte {
	if ch >= 'a' && ch <= 'z' {
		ch -= 'a' - 'A'
	}
	return ch
}

func byteAt(s string, i int) byte {
	if i >= len(s) {
		return 0
	}
	return s[i]
}

// Parse builds a Path from text. "." is discarded, ".." pops a component
// (or counts as a parent on a relative path), a leading "X:" sets the disk
// letter, quotes are stripped, and any other unsupported character becomes
// '_'.
func Parse(text string) Path {
	var result Path
	var component strings.Builder

	finishComponent := func() {
		if component.Len() > 0 {
			result.components = append(result.components, component.String())
			component.Reset()
		}
	}

	for i := 0; i < len(text); i++ {
		ch := text[i]

		switch ch {
		case ':':
			if i == 1 && isAlnum(text[0]) {
				result.diskLetter = toUpper(text[0])
				component.Reset()
			} else {
				component.WriteByte('_')
			}

		case '/', '\\':
			finishComponent()

		case '\'', '"':
			// stripped

		case '.':
			if i > 0 && !isSeparator(text[i-1]) {
				component.WriteByte('.')
				break
			}

			next := byteAt(text, i+1)
			if isSeparator(next) {
				// A solitary "." is dropped.
				break
			}

			if next == '.' && isSeparator(byteAt(text, i+2)) {
				if len(result.components) > 0 {
					result.components = result.components[:len(result.components)-1]
				} else if result.IsRelative() {
					result.parentCount++
				}
				i++
			} else {
				// The character after the dot is handled on its own.
				component.WriteByte('.')
			}

		case ' ', ',', '+', '-', '_', '!', '(', ')', '[', ']', '~':
			component.WriteByte(ch)

		default:
			if isAlnum(ch) {
				component.WriteByte(ch)
			} else {
				component.WriteByte('_')
			}
		}
	}

	finishComponent()

	return result
}
