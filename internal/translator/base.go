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
	"sync"

	"github.com/voltrans/voltrans/internal/fop"
)

// WindFunc and UnwindFunc are per-kind overrides registered against a
// Base. Leaving a kind unregistered keeps Base's default pass-through
// behavior for it -- the "every translator handles every kind, most by
// forwarding untouched" shape spec.md §4.1 describes.
type WindFunc func(fr *fop.Frame, k fop.Kind, args fop.Args)
type UnwindFunc func(fr *fop.Frame, k fop.Kind, reply fop.Reply)

// Base is an embeddable pass-through translator. A concrete translator
// embeds Base, calls OnWind/OnUnwind in its constructor to register the
// kinds it actually implements, and otherwise inherits transparent
// forwarding for the rest -- mirroring how gluster's xlator.c default_fops
// table works, but expressed as a Go map instead of a 49-entry C struct
// literal.
type Base struct {
	mu sync.RWMutex

	name   string
	child  Translator
	parent Translator

	winds   map[fop.Kind]WindFunc
	unwinds map[fop.Kind]UnwindFunc
}

// NewBase constructs a Base identified by name. Call OnWind/OnUnwind
// afterward to register overrides before the translator is linked into a
// stack and starts receiving traffic.
func NewBase(name string) *Base {
	return &Base{
		name:    name,
		winds:   make(map[fop.Kind]WindFunc),
		unwinds: make(map[fop.Kind]UnwindFunc),
	}
}

func (b *Base) Name() string { return b.name }

func (b *Base) FirstChild() fop.Translator {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.child == nil {
		return nil
	}
	return b.child
}

func (b *Base) Parent() Translator {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.parent
}

func (b *Base) SetChild(t Translator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.child = t
}

func (b *Base) SetParent(t Translator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parent = t
}

// OnWind registers fn as the handler for k, overriding the default
// pass-through-to-child behavior.
func (b *Base) OnWind(k fop.Kind, fn WindFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.winds[k] = fn
}

// OnUnwind registers fn as the handler for k, overriding the default
// pass-through-to-parent behavior.
func (b *Base) OnUnwind(k fop.Kind, fn UnwindFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unwinds[k] = fn
}

func (b *Base) Wind(fr *fop.Frame, k fop.Kind, args fop.Args) {
	b.mu.RLock()
	fn, ok := b.winds[k]
	b.mu.RUnlock()
	if ok {
		fn(fr, k, args)
		return
	}
	b.defaultWind(fr, k, args)
}

func (b *Base) Unwind(fr *fop.Frame, k fop.Kind, reply fop.Reply) {
	b.mu.RLock()
	fn, ok := b.unwinds[k]
	b.mu.RUnlock()
	if ok {
		fn(fr, k, reply)
		return
	}
	b.defaultUnwind(fr, k, reply)
}

// defaultWind forwards args to the first child untouched. A translator
// with no child (the bottom of the stack) answers with
// fop.UnknownKindReply (EINVAL) instead of dereferencing a nil child.
func (b *Base) defaultWind(fr *fop.Frame, k fop.Kind, args fop.Args) {
	b.mu.RLock()
	child := b.child
	b.mu.RUnlock()
	if child == nil {
		b.defaultUnwind(fr, k, fop.UnknownKindReply())
		return
	}
	child.Wind(fr, k, args)
}

// defaultUnwind forwards reply to the parent untouched. At the top of the
// stack (parent nil) the reply is simply dropped -- the front end
// translator overrides Unwind for every kind it cares about and never
// relies on this default.
func (b *Base) defaultUnwind(fr *fop.Frame, k fop.Kind, reply fop.Reply) {
	b.mu.RLock()
	parent := b.parent
	b.mu.RUnlock()
	if parent == nil {
		return
	}
	parent.Unwind(fr, k, reply)
}
