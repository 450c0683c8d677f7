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

package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltrans/voltrans/internal/fop"
)

type leafTranslator struct {
	*Base
}

func newLeaf(name string) *leafTranslator {
	return &leafTranslator{Base: NewBase(name)}
}

func TestBaseDefaultWindReachesEveryKindAtTheLeaf(t *testing.T) {
	top := newLeaf("top")
	bottom := newLeaf("bottom")
	Link(top, bottom)

	var seen []fop.Kind
	for _, k := range fop.AllKinds() {
		k := k
		bottom.OnWind(k, func(fr *fop.Frame, k fop.Kind, args fop.Args) {
			seen = append(seen, k)
			UnwindUp(bottom, fr, k, fop.OK(0))
		})
	}

	for _, k := range fop.AllKinds() {
		root := fop.NewRoot(0, 0, 0)
		fr := fop.NewFrame(root, top)
		WindDown(top, fr, k, fop.Args{})
	}

	assert.Len(t, seen, len(fop.AllKinds()))
}

func TestBaseUnwindsToParentByDefault(t *testing.T) {
	top := newLeaf("top")
	bottom := newLeaf("bottom")
	Link(top, bottom)

	var gotErrno int
	top.OnUnwind(fop.KindFstat, func(_ *fop.Frame, _ fop.Kind, r fop.Reply) {
		gotErrno = int(r.OpErrno)
	})

	root := fop.NewRoot(0, 0, 0)
	fr := fop.NewFrame(root, top)
	UnwindUp(bottom, fr, fop.KindFstat, fop.Err(5))

	assert.Equal(t, 5, gotErrno)
}

func TestOnWindOverridesDefaultPassThrough(t *testing.T) {
	top := newLeaf("top")
	bottom := newLeaf("bottom")
	Link(top, bottom)

	called := false
	top.OnWind(fop.KindOpen, func(fr *fop.Frame, k fop.Kind, args fop.Args) {
		called = true
	})

	root := fop.NewRoot(0, 0, 0)
	fr := fop.NewFrame(root, top)
	WindDown(top, fr, fop.KindOpen, fop.Args{})

	assert.True(t, called)
}

func TestWindAtBottomOfStackAnswersUnknownInsteadOfPanicking(t *testing.T) {
	bottom := newLeaf("bottom")

	root := fop.NewRoot(0, 0, 0)
	fr := fop.NewFrame(root, bottom)

	require.NotPanics(t, func() {
		WindDown(bottom, fr, fop.KindStat, fop.Args{})
	})
}
