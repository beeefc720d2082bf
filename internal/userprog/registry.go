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

// Package userprog holds the user-program symbol table: named entry points
// the kernel resolves when cloning a process. It stands in for the
// dynamically loaded user module of a native system.
package userprog

import (
	"sync"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/process"
)

type Registry struct {
	mu      sync.RWMutex
	symbols map[string]process.EntryFunc
}

func NewRegistry() *Registry {
	return &Registry{
		symbols: make(map[string]process.EntryFunc),
	}
}

// Register binds a symbol to its entry point, replacing any previous
// binding.
func (r *Registry) Register(symbol string, entry process.EntryFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.symbols[symbol] = entry
}

// Lookup resolves a symbol, returning nil when it is not present.
func (r *Registry) Lookup(symbol string) process.EntryFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.symbols[symbol]
}
