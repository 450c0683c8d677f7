// Copyright 2026 The Voltrans Authors
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

package fop

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/voltrans/voltrans/internal/iatt"
	"github.com/voltrans/voltrans/internal/loc"
)

type stubTranslator struct{ name string }

func (t *stubTranslator) Name() string          { return t.name }
func (t *stubTranslator) FirstChild() Translator { return nil }

func newTestFrame() *Frame {
	this := &stubTranslator{name: "root"}
	return NewFrame(NewRoot(0, 0, 0), this)
}

func TestResumeInvokesContinuationWithEqualArgs(t *testing.T) {
	fr := newTestFrame()
	args := Args{
		Loc:  loc.Loc{Name: "foo.txt", Gfid: iatt.NewGfid()},
		Size: 4096,
	}

	var gotKind Kind
	var gotName string
	var gotSize uint32
	stub, err := MakeCallStub(fr, KindReadv, args, func(fr *Frame, k Kind, a Args) {
		gotKind = k
		gotName = a.Loc.Name
		gotSize = a.Size
	})
	require.NoError(t, err)

	Resume(stub)

	assert.Equal(t, KindReadv, gotKind)
	assert.Equal(t, "foo.txt", gotName)
	assert.Equal(t, uint32(4096), gotSize)
}

func TestResumeIsExactlyOnce(t *testing.T) {
	fr := newTestFrame()
	var calls int32
	stub, err := MakeCallStub(fr, KindFlush, Args{}, func(*Frame, Kind, Args) {
		atomic.AddInt32(&calls, 1)
	})
	require.NoError(t, err)

	Resume(stub)
	Resume(stub) // second call must be a no-op, not a double-invoke

	assert.Equal(t, int32(1), calls)
}

func TestConcurrentReplyStubsResumeExactlyOnceEach(t *testing.T) {
	const n = 64
	var delivered int32
	var wg sync.WaitGroup

	stubs := make([]*Stub, n)
	for i := 0; i < n; i++ {
		i := i
		fr := newTestFrame()
		stub, err := MakeReplyStub(fr, KindWritev, OK(0), func(*Frame, Kind, Reply) {
			atomic.AddInt32(&delivered, 1)
		})
		require.NoError(t, err)
		stubs[i] = stub
	}

	for _, s := range stubs {
		wg.Add(1)
		s := s
		go func() {
			defer wg.Done()
			Resume(s)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(n), delivered)
}

func TestUnwindErrorOverridesStatus(t *testing.T) {
	fr := newTestFrame()
	var gotErrno unix.Errno
	stub, err := MakeReplyStub(fr, KindOpen, OK(0), func(_ *Frame, _ Kind, r Reply) {
		gotErrno = r.OpErrno
	})
	require.NoError(t, err)

	UnwindError(stub, unix.ENOSPC)

	assert.Equal(t, unix.ENOSPC, gotErrno)
}

func TestResumeKeepAllowsSubsequentDestroy(t *testing.T) {
	fr := newTestFrame()
	var calls int32
	stub, err := MakeCallStub(fr, KindFsync, Args{}, func(*Frame, Kind, Args) {
		atomic.AddInt32(&calls, 1)
	})
	require.NoError(t, err)

	ResumeKeep(stub)
	assert.Equal(t, int32(1), calls)

	// Destroy after ResumeKeep must not panic or double-invoke.
	Destroy(stub)
}

func TestMakeCallStubRejectsUnknownKind(t *testing.T) {
	fr := newTestFrame()
	_, err := MakeCallStub(fr, Kind(999), Args{}, func(*Frame, Kind, Args) {})
	assert.Error(t, err)
}

func TestMakeCallStubRejectsNilContinuation(t *testing.T) {
	fr := newTestFrame()
	_, err := MakeCallStub(fr, KindFlush, Args{}, nil)
	assert.Error(t, err)
}

func TestReplyStubPreservesExactKindAcrossFgetxattrAndGetxattr(t *testing.T) {
	// Design note (spec.md §9 open question): FGETXATTR replies must not be
	// re-tagged as GETXATTR.
	fr := newTestFrame()
	var gotKind Kind
	stub, err := MakeReplyStub(fr, KindFgetxattr, OK(0), func(_ *Frame, k Kind, _ Reply) {
		gotKind = k
	})
	require.NoError(t, err)

	Resume(stub)

	assert.Equal(t, KindFgetxattr, gotKind)
	assert.NotEqual(t, KindGetxattr, gotKind)
}

func TestAllKindsHaveDistinctNames(t *testing.T) {
	seen := make(map[string]Kind)
	for _, k := range AllKinds() {
		assert.True(t, k.Valid())
		if other, ok := seen[k.String()]; ok {
			t.Fatalf("kinds %v and %v share name %q", other, k, k.String())
		}
		seen[k.String()] = k
	}
	assert.Len(t, seen, 49)
}
