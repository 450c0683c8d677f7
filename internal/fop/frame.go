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
	"time"
)

// Translator is the minimal shape a stack member must expose for the
// call-stub engine to route resumed stubs: its own identity (for context
// slot lookups and logging) and a pointer to the next hop down the stack.
// The FOP-method surface itself lives in package translator, which embeds
// this interface -- fop stays decoupled from any concrete FOP method set so
// it can dispatch purely by Kind.
type Translator interface {
	Name() string
	FirstChild() Translator
}

var callIDs int64

// Root carries the information that stays constant for a request's entire
// trip down and back up the stack: caller identity, time of arrival, and a
// unique id (spec.md §3 "Request identity").
type Root struct {
	Uid uint32
	Gid uint32
	Pid uint32

	// ClientID identifies the connection this request arrived on, for
	// translators that track per-client state across requests (e.g.
	// internal/upcall's registered-watcher table). Left empty for
	// requests with no distinct client identity.
	ClientID string

	ArrivalTime time.Time
	CallID      int64
}

// NewRoot stamps a fresh root frame with a unique call id and the current
// arrival time.
func NewRoot(uid, gid, pid uint32) *Root {
	return &Root{
		Uid:         uid,
		Gid:         gid,
		Pid:         pid,
		ArrivalTime: time.Now(),
		CallID:      atomic.AddInt64(&callIDs, 1),
	}
}

// Frame is the runtime request context that travels down and back up the
// stack (spec.md §3 "frame"): caller identity via Root, the current
// position in the stack (This), and a per-frame scratch slot (Local) a
// translator can use to stash state between wind and unwind.
type Frame struct {
	mu sync.Mutex

	Root *Root
	This Translator
	// Caller is the translator that originally wound this call; upward
	// (reply) resumes are routed here per spec.md §4.1's tie-break rule.
	Caller Translator

	Local any
}

// NewFrame creates a frame positioned at this, descending from root.
func NewFrame(root *Root, this Translator) *Frame {
	return &Frame{Root: root, This: this, Caller: this}
}

// SetThis atomically repositions the frame (used when winding a call down
// to a child) and returns the previous value, so callers can restore it.
func (fr *Frame) SetThis(t Translator) Translator {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	prev := fr.This
	fr.This = t
	return prev
}

func (fr *Frame) GetThis() Translator {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return fr.This
}
