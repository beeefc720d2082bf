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

package handle

import (
	"errors"
	"fmt"

	"github.com/jacobsa/syncutil"
)

// ErrTableFull is returned by Add when the table already holds
// MaxHandleCount records.
var ErrTableFull = errors.New("handle table is full")

type record struct {
	obj Object

	// Number of live references to this record. Erased at zero.
	refCount uint32
}

// Table is the process-wide handle registry. IDs come from a monotonically
// advancing counter that wraps around zero and skips live records.
type Table struct {
	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	records map[ID]*record

	// The most recently issued ID.
	//
	// INVARIANT: lastID is zero only before the first Add.
	//
	// GUARDED_BY(mu)
	lastID ID
}

func NewTable() *Table {
	t := &Table{
		records: make(map[ID]*record),
	}
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)

	return t
}

// LOCKS_REQUIRED(t.mu)
func (t *Table) checkInvariants() {
	// INVARIANT: No record is registered under ID zero.
	if _, ok := t.records[0]; ok {
		panic("record registered under ID zero")
	}

	// INVARIANT: For each record r, r.refCount > 0.
	for id, rec := range t.records {
		if rec.refCount == 0 {
			panic(fmt.Sprintf("zero refCount for live record %d", id))
		}
	}

	// INVARIANT: len(records) <= MaxHandleCount.
	if len(t.records) > MaxHandleCount {
		panic("handle table overflow")
	}
}

// Add registers obj and returns the first reference to it. It fails with
// ErrTableFull when no ID is free.
//
// LOCKS_EXCLUDED(t.mu)
func (t *Table) Add(obj Object) (Reference, error) {
	if obj == nil {
		return Reference{}, errors.New("nil handle object")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.records) == MaxHandleCount {
		return Reference{}, ErrTableFull
	}

	// Advance the counter, skipping zero and collisions with live records.
	for {
		t.lastID++
		if t.lastID == 0 {
			continue
		}
		if _, taken := t.records[t.lastID]; !taken {
			break
		}
	}

	id := t.lastID
	t.records[id] = &record{obj: obj, refCount: 1}

	return Reference{id: id, obj: obj, table: t}, nil
}

// Get returns an owning reference, or an invalid reference when the ID is
// not live.
//
// LOCKS_EXCLUDED(t.mu)
func (t *Table) Get(id ID) Reference {
	if id == 0 {
		return Reference{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok {
		return Reference{}
	}

	rec.refCount++
	return Reference{id: id, obj: rec.obj, table: t}
}

// GetOfKind is Get restricted to one object kind.
//
// LOCKS_EXCLUDED(t.mu)
func (t *Table) GetOfKind(id ID, kind Kind) Reference {
	if id == 0 {
		return Reference{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	if !ok || rec.obj.HandleKind() != kind {
		return Reference{}
	}

	rec.refCount++
	return Reference{id: id, obj: rec.obj, table: t}
}

// LOCKS_EXCLUDED(t.mu)
func (t *Table) Has(id ID) bool {
	if id == 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.records[id]
	return ok
}

// LOCKS_EXCLUDED(t.mu)
func (t *Table) HasOfKind(id ID, kind Kind) bool {
	if id == 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[id]
	return ok && rec.obj.HandleKind() == kind
}

// List returns owning references to every record accepted by the
// predicate. The predicate runs with the table lock held and must not call
// back into the table.
//
// LOCKS_EXCLUDED(t.mu)
func (t *Table) List(predicate func(ID, Object) bool) []Reference {
	t.mu.Lock()
	defer t.mu.Unlock()

	var result []Reference
	for id, rec := range t.records {
		if predicate(id, rec.obj) {
			rec.refCount++
			result = append(result, Reference{id: id, obj: rec.obj, table: t})
		}
	}

	return result
}

// Count returns the number of live records.
//
// LOCKS_EXCLUDED(t.mu)
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.records)
}

// LOCKS_EXCLUDED(t.mu)
func (t *Table) releaseRef(id ID) {
	t.mu.Lock()

	rec, ok := t.records[id]
	if !ok {
		t.mu.Unlock()
		return
	}

	rec.refCount--

	var destroyed Object
	if rec.refCount == 0 {
		delete(t.records, id)
		destroyed = rec.obj
	}

	t.mu.Unlock()

	// The destroy hook may release further references, so it must run
	// without the table lock.
	if d, ok := destroyed.(Destroyer); ok {
		d.Destroy()
	}
}
