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

package inode

import "sync"

// ctxTable is the per-translator context slot table carried by both Inode
// and Fd (spec.md §3: "a per-translator context slot table"). Each
// translator in the stack owns one slot, keyed by its own name, so a
// translator never sees another's private state.
type ctxTable struct {
	mu    sync.Mutex
	slots map[string]any
}

func newCtxTable() ctxTable {
	return ctxTable{slots: make(map[string]any)}
}

// Get returns the slot registered under translator name, if any.
func (t *ctxTable) Get(translator string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.slots[translator]
	return v, ok
}

// Set installs or replaces the slot registered under translator name.
func (t *ctxTable) Set(translator string, v any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[translator] = v
}

// Delete clears the slot registered under translator name.
func (t *ctxTable) Delete(translator string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.slots, translator)
}
