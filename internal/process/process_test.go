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

package process

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/Cajova-Houba/kiv-os-simulator/internal/event"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/handle"
	"github.com/Cajova-Houba/kiv-os-simulator/internal/ospath"
	"github.com/jacobsa/syncutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	syncutil.EnableInvariantChecking()
}

func newSystem() *System {
	return NewSystem(handle.NewTable(), event.NewSystem())
}

// tableSet adapts the whole handle table to event.HandleSet, standing in
// for a process's handle set.
type tableSet struct {
	table *handle.Table
}

func (s tableSet) ForEachHandle(ids []handle.ID, cb func(ref *handle.Reference, index int) bool) bool {
	for i, id := range ids {
		ref := s.table.Get(id)
		if !ref.IsValid() {
			return false
		}
		ok := cb(&ref, i)
		ref.Release()
		if !ok {
			return false
		}
	}
	return true
}

func waitForProcessEnd(t *testing.T, sys *System, ref handle.Reference) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		sys.events.WaitForAny(tableSet{sys.handles}, []handle.ID{ref.ID()}, event.ProcessEnd)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process never terminated")
	}
}

func TestLifecycleEventsAndCounts(t *testing.T) {
	sys := newSystem()

	var sawRunning atomic.Bool
	var threads atomic.Int32

	entry := func(env *Env, regs *Registers) int32 {
		sawRunning.Store(env.Thread().IsRunning())
		threads.Store(int32(env.Process().ThreadCount()))
		env.SetExitCode(7)
		return 0
	}

	ref, err := Create(sys, entry, "prog", "prog arg", ospath.Parse("A:\\"), handle.Reference{}, handle.Reference{}, false)
	require.NoError(t, err)
	defer ref.Release()

	waitForProcessEnd(t, sys, ref)

	proc := ref.Object().(*Process)
	assert.False(t, proc.IsRunning())
	assert.True(t, proc.HasStarted())
	assert.EqualValues(t, 0, proc.ThreadCount())
	assert.True(t, sawRunning.Load())
	assert.EqualValues(t, 1, threads.Load())
	assert.Equal(t, "prog", proc.Name())
	assert.Equal(t, "prog arg", proc.CmdLine())

	mainThread := proc.MainThread()
	require.True(t, mainThread.IsValid())
	assert.EqualValues(t, 7, mainThread.Object().(*Thread).ExitCode())
	mainThread.Release()
}

func TestCreateInCurrentThreadRunsSynchronously(t *testing.T) {
	sys := newSystem()

	ran := false
	entry := func(env *Env, regs *Registers) int32 {
		ran = true
		return 0
	}

	ref, err := Create(sys, entry, "boot", "", ospath.Parse("A:\\"), handle.Reference{}, handle.Reference{}, true)
	require.NoError(t, err)
	defer ref.Release()

	// Synchronous creation returns only after the entry finished.
	assert.True(t, ran)
	assert.False(t, ref.Object().(*Process).IsRunning())
}

func TestRegisterPrefillCarriesStreamsAndCmdLine(t *testing.T) {
	sys := newSystem()

	stdInObj := &fakeFile{}
	stdOutObj := &fakeFile{}

	stdIn, err := sys.handles.Add(stdInObj)
	require.NoError(t, err)
	stdOut, err := sys.handles.Add(stdOutObj)
	require.NoError(t, err)

	stdInID := stdIn.ID()
	stdOutID := stdOut.ID()

	type seen struct {
		stdIn, stdOut uint16
		cmdLine       string
	}
	got := make(chan seen, 1)

	entry := func(env *Env, regs *Registers) int32 {
		got <- seen{regs.RAX.X(), regs.RBX.X(), regs.Text}
		return 0
	}

	ref, err := Create(sys, entry, "prog", "hello world", ospath.Parse("A:\\"), stdIn, stdOut, false)
	require.NoError(t, err)
	defer ref.Release()

	select {
	case s := <-got:
		assert.EqualValues(t, stdInID, s.stdIn)
		assert.EqualValues(t, stdOutID, s.stdOut)
		assert.Equal(t, "hello world", s.cmdLine)
	case <-time.After(5 * time.Second):
		t.Fatal("entry never ran")
	}

	// The streams were transferred into the child's set.
	child := ref.Object().(*Process)
	in := child.GetHandle(stdInID)
	assert.True(t, in.IsValid())
	in.Release()
}

type fakeFile struct{}

func (f *fakeFile) HandleKind() handle.Kind { return handle.KindFile }

func TestWorkingDirectory(t *testing.T) {
	sys := newSystem()

	done := make(chan struct{})
	entry := func(env *Env, regs *Registers) int32 {
		<-done
		return 0
	}

	ref, err := Create(sys, entry, "prog", "", ospath.Parse("C:\\home"), handle.Reference{}, handle.Reference{}, false)
	require.NoError(t, err)
	defer ref.Release()
	defer close(done)

	proc := ref.Object().(*Process)
	assert.Equal(t, "C:\\home", proc.WorkingDirectory().String())

	rel := ospath.Parse("docs")
	proc.MakeAbsolute(&rel)
	assert.Equal(t, "C:\\home\\docs", rel.String())

	proc.SetWorkingDirectory(ospath.Parse("C:\\other"))
	assert.Equal(t, "C:\\other", proc.WorkingDirectory().String())
}

func TestSignalBitsRoundTrip(t *testing.T) {
	sys := newSystem()

	var deliveries atomic.Int32

	entry := func(env *Env, regs *Registers) int32 {
		env.SetSignalHandler(func(env *Env, regs *Registers) int32 {
			if regs.RCX.E() == uint32(SignalTerminate) {
				deliveries.Add(1)
			}
			return 0
		})
		env.SetSignalEnabled(SignalTerminate, true)

		env.Thread().RaiseSignal(SignalTerminate)

		// A syscall boundary would do this; deliver by hand twice to
		// prove the pending bit is consumed.
		env.HandleSignals()
		env.HandleSignals()

		return 0
	}

	ref, err := Create(sys, entry, "prog", "", ospath.Parse("A:\\"), handle.Reference{}, handle.Reference{}, true)
	require.NoError(t, err)
	defer ref.Release()

	assert.EqualValues(t, 1, deliveries.Load())
}

func TestDisabledSignalIsNotDelivered(t *testing.T) {
	sys := newSystem()

	var deliveries atomic.Int32

	entry := func(env *Env, regs *Registers) int32 {
		env.SetSignalHandler(func(env *Env, regs *Registers) int32 {
			deliveries.Add(1)
			return 0
		})
		env.SetSignalEnabled(SignalTerminate, true)
		env.SetSignalEnabled(SignalTerminate, false)

		env.Thread().RaiseSignal(SignalTerminate)
		env.HandleSignals()

		return 0
	}

	ref, err := Create(sys, entry, "prog", "", ospath.Parse("A:\\"), handle.Reference{}, handle.Reference{}, true)
	require.NoError(t, err)
	defer ref.Release()

	assert.Zero(t, deliveries.Load())
}

func TestForEachHandleStopsOnUnknownID(t *testing.T) {
	sys := newSystem()

	done := make(chan struct{})
	entry := func(env *Env, regs *Registers) int32 {
		<-done
		return 0
	}

	ref, err := Create(sys, entry, "prog", "", ospath.Parse("A:\\"), handle.Reference{}, handle.Reference{}, false)
	require.NoError(t, err)
	defer ref.Release()
	defer close(done)

	proc := ref.Object().(*Process)

	fileRef, err := sys.handles.Add(&fakeFile{})
	require.NoError(t, err)
	id := fileRef.ID()
	proc.AddHandle(fileRef)

	ok := proc.ForEachHandle([]handle.ID{id, 9999}, func(ref *handle.Reference, index int) bool {
		return true
	})
	assert.False(t, ok)

	var visited int
	ok = proc.ForEachHandle([]handle.ID{id}, func(ref *handle.Reference, index int) bool {
		visited++
		return true
	})
	assert.True(t, ok)
	assert.Equal(t, 1, visited)

	proc.RemoveHandle(id)
	assert.False(t, sys.handles.Has(id))
}
