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

// Package handle implements the kernel-wide registry mapping numeric IDs to
// reference-counted objects. User code only ever sees the IDs; the kernel
// resolves them to owning references whose drop decrements the count.
package handle

// ID identifies a live object in the table. Zero is never issued and
// denotes "no handle".
type ID uint16

// MaxHandleCount bounds the number of simultaneously live records.
const MaxHandleCount = 65535

type Kind int

const (
	KindFile Kind = iota
	KindThread
	KindProcess
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindThread:
		return "thread"
	case KindProcess:
		return "process"
	default:
		return "unknown"
	}
}

// Object is anything the table can hold.
type Object interface {
	HandleKind() Kind
}

// Destroyer is implemented by objects that own resources beyond their own
// memory: a process's handle set, a pipe end's peer link. The table invokes
// it, outside its lock, when the object's record is erased.
type Destroyer interface {
	Destroy()
}

// Reference is an owning reference to a table record. The zero value is
// invalid. A valid reference keeps the record alive until Release is
// called; Release is idempotent.
type Reference struct {
	id    ID
	obj   Object
	table *Table
}

func (r *Reference) IsValid() bool {
	return r.id != 0 && r.obj != nil
}

func (r *Reference) ID() ID {
	return r.id
}

func (r *Reference) Object() Object {
	return r.obj
}

// Release drops this reference's count in the table. The record is erased
// when the last reference goes away.
func (r *Reference) Release() {
	if !r.IsValid() {
		return
	}

	r.table.releaseRef(r.id)
	r.id = 0
	r.obj = nil
	r.table = nil
}
