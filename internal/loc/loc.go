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

// Package loc implements the directory-relative addressing tuple (loc)
// used by every namespace-shaped FOP (lookup, mkdir, unlink, rename, ...).
package loc

import "github.com/voltrans/voltrans/internal/iatt"

// Loc addresses a name inside a parent directory, plus (once resolved) the
// target itself. Path is optional scaffolding for logging/debugging; the
// authoritative address is (ParentGfid, Name).
type Loc struct {
	ParentGfid iatt.Gfid
	Name       string
	Path       string // optional, full path for diagnostics only

	Gfid iatt.Gfid // target gfid, zero if not yet resolved
}

// DeepClone returns an independent copy, safe to embed in a call stub.
// Loc contains no shared mutable backing storage (strings are immutable in
// Go), so this is a plain value copy, but it exists as its own method so
// call sites don't need to know that -- and so future fields that do own
// backing storage only need a change here.
func (l Loc) DeepClone() Loc {
	return l
}

func (l Loc) IsResolved() bool {
	return !l.Gfid.IsNil()
}
