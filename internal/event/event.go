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

// Package event lets a thread sleep until one of N handles signals one of a
// set of lifecycle events. Validation and wait registration happen under one
// lock, so no event can slip between the existence check and the sleep.
package event

import (
	"sync"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/handle"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/status"
)

// Mask is a bitmask of events.
type Mask int

const (
	ThreadStart Mask = 1 << iota
	ThreadEnd
	ProcessStart
	ProcessEnd
)

// Runner is implemented by thread and process objects; the wait path asks it
// whether the start event has already happened and the end event therefore
// either has or has not.
type Runner interface {
	IsRunning() bool
}

// HandleSet resolves handle IDs on behalf of the waiting thread; only
// handles in the calling process's set may be waited on. The callback
// receives each resolved handle in order and returns false to stop the walk;
// the walk itself returns false if any ID failed to resolve.
type HandleSet interface {
	ForEachHandle(ids []handle.ID, cb func(ref *handle.Reference, index int) bool) bool
}

type waitInfo struct {
	events        Mask
	handles       []handle.ID
	signaledIndex int
	cond          *sync.Cond
}

// System is the event-wait multiplexer.
type System struct {
	mu sync.Mutex

	// GUARDED_BY(mu)
	waiting []*waitInfo
}

func NewSystem() *System {
	return &System{}
}

// checkHandle reports 1 when one of the requested events has already
// occurred on ref, 0 when waiting is needed, and -1 when the handle kind
// cannot be waited on.
func checkHandle(ref *handle.Reference, events Mask) int {
	var startEvent, endEvent Mask

	switch ref.Object().HandleKind() {
	case handle.KindThread:
		startEvent, endEvent = ThreadStart, ThreadEnd
	case handle.KindProcess:
		startEvent, endEvent = ProcessStart, ProcessEnd
	default:
		return -1
	}

	if ref.Object().(Runner).IsRunning() {
		if events&startEvent != 0 {
			return 1
		}
	} else if s, ok := ref.Object().(interface{ HasStarted() bool }); !ok || s.HasStarted() {
		// An object that reports HasStarted has not ended before it started.
		if events&endEvent != 0 {
			return 1
		}
	}

	return 0
}

// WaitForAny blocks the calling thread until one of the requested events
// occurs on one of the handles, and returns the index of the handle that
// signaled. Ties go to the lowest index. An empty mask, an unknown handle,
// or a handle of a non-waitable kind fails with INVALID_ARGUMENT.
//
// LOCKS_EXCLUDED(s.mu)
func (s *System) WaitForAny(handles HandleSet, ids []handle.ID, events Mask) (int, status.Status) {
	if events == 0 || len(ids) == 0 {
		return 0, status.InvalidArgument
	}

	// Incoming events must be held off while the handles are inspected;
	// registration and validation are atomic with respect to Dispatch.
	s.mu.Lock()
	defer s.mu.Unlock()

	alreadySignaled := -1
	valid := handles.ForEachHandle(ids, func(ref *handle.Reference, index int) bool {
		switch checkHandle(ref, events) {
		case 1:
			alreadySignaled = index
			return false
		case -1:
			return false
		}
		return true
	})

	if !valid {
		if alreadySignaled >= 0 {
			return alreadySignaled, status.Success
		}
		return 0, status.InvalidArgument
	}

	info := &waitInfo{
		events:        events,
		handles:       ids,
		signaledIndex: -1,
		cond:          sync.NewCond(&s.mu),
	}
	s.waiting = append(s.waiting, info)

	for info.signaledIndex < 0 {
		info.cond.Wait()
	}

	s.removeWaiter(info)

	return info.signaledIndex, status.Success
}

// LOCKS_REQUIRED(s.mu)
func (s *System) removeWaiter(info *waitInfo) {
	for i, w := range s.waiting {
		if w == info {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			return
		}
	}
}

// Dispatch wakes every waiter whose mask contains the event and whose
// handle list contains id; the first matching position wins.
//
// LOCKS_EXCLUDED(s.mu)
func (s *System) Dispatch(e Mask, id handle.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, info := range s.waiting {
		if info.events&e == 0 || info.signaledIndex >= 0 {
			continue
		}
		for i, h := range info.handles {
			if h == id {
				info.signaledIndex = i
				info.cond.Signal()
				break
			}
		}
	}
}
