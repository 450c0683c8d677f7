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

// Package translator builds the stack out of package fop's call-stub
// primitives: a Translator is anything that can wind a call one hop down
// and unwind a reply one hop up, for every fop.Kind. Base gives every
// concrete translator (internal/blockdevice, internal/iocache,
// internal/upcall) a pass-through default so it only has to override the
// kinds it actually cares about.
package translator

import (
	"github.com/voltrans/voltrans/internal/fop"
)

// Translator is one member of the stack. It extends fop.Translator (the
// identity/topology surface the stub engine dispatches against) with the
// two directions of traffic every stack member must handle.
type Translator interface {
	fop.Translator

	// Wind is called when a call stub resumes at this translator: it
	// receives the (already deep-cloned) Args and decides whether to
	// forward them to FirstChild, answer immediately with Unwind, or queue
	// the stub for later (e.g. internal/iocache coalescing a page fault).
	Wind(fr *fop.Frame, k fop.Kind, args fop.Args)

	// Unwind is called when a reply stub resumes at this translator: same
	// three choices, but travelling upward toward Parent.
	Unwind(fr *fop.Frame, k fop.Kind, reply fop.Reply)

	// Parent returns the translator above this one in the stack, or nil at
	// the top. Unwind's default implementation forwards replies here.
	Parent() Translator
}

// Link sets child as parent's first (and, in this single-child stack
// model, only) child, and records parent as child's parent -- the graph
// wiring spec.md §4 describes translators needing for frame.Caller
// routing once a call has wound past the originator.
func Link(parent, child Translator) {
	if setter, ok := parent.(interface{ SetChild(Translator) }); ok {
		setter.SetChild(child)
	}
	if setter, ok := child.(interface{ SetParent(Translator) }); ok {
		setter.SetParent(parent)
	}
}

// WindDown makes a call stub at fr and resumes it against this.Wind --
// the entry point used to hand a call to a translator, whether that's the
// front end handing the very first call to the top of the stack or a
// translator handing a call to itself after deciding to retry.
func WindDown(this Translator, fr *fop.Frame, k fop.Kind, args fop.Args) {
	stub, err := fop.MakeCallStub(fr, k, args, func(fr *fop.Frame, k fop.Kind, args fop.Args) {
		this.Wind(fr, k, args)
	})
	if err != nil {
		return
	}
	fop.Resume(stub)
}

// UnwindUp makes a reply stub at fr and resumes it against this.Parent's
// Unwind, or drops it silently at the top of the stack (the fuse front end
// owns the topmost Parent() == nil translator and reads replies off its
// own channel instead of through this path).
func UnwindUp(this Translator, fr *fop.Frame, k fop.Kind, reply fop.Reply) {
	stub, err := fop.MakeReplyStub(fr, k, reply, func(fr *fop.Frame, k fop.Kind, reply fop.Reply) {
		parent := this.Parent()
		if parent == nil {
			return
		}
		parent.Unwind(fr, k, reply)
	})
	if err != nil {
		return
	}
	fop.Resume(stub)
}
