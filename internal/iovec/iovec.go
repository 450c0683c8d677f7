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

// Package iovec provides a reference-counted I/O-vector buffer, so that
// capturing a reply's data into a call stub (spec.md §4.1: "deep-copy all
// reply payloads, including I/O-vector buffers via reference counting of
// their backing buffer pool (no byte copy)") never needs to copy bytes --
// only bump a refcount.
package iovec

import "sync/atomic"

// Buffer is a refcounted handle onto a backing byte slice. The zero value
// is not usable; use New.
type Buffer struct {
	data []byte
	refs *int32
}

// New wraps data (taking ownership of it) in a Buffer with refcount 1.
func New(data []byte) *Buffer {
	one := int32(1)
	return &Buffer{data: data, refs: &one}
}

// Bytes returns the backing slice. Callers must not retain it past the
// matching Release unless they've taken their own Ref.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Ref increments the refcount and returns the same buffer -- this is the
// "no byte copy" clone used when a buffer is captured into a call stub.
func (b *Buffer) Ref() *Buffer {
	if b == nil {
		return nil
	}
	atomic.AddInt32(b.refs, 1)
	return b
}

// Release decrements the refcount. Returns the count after decrementing;
// callers that want to detect "last release" check for 0. There is no
// separate free step because the backing array is garbage collected once
// unreachable -- Release's role is purely bookkeeping/ownership tracking.
func (b *Buffer) Release() int32 {
	if b == nil {
		return 0
	}
	return atomic.AddInt32(b.refs, -1)
}

// Vector is an ordered list of Buffers, the scatter/gather shape readv and
// writev pass around.
type Vector []*Buffer

// TotalLen returns the sum of all buffer lengths.
func (v Vector) TotalLen() int {
	n := 0
	for _, b := range v {
		n += b.Len()
	}
	return n
}

// RefAll bumps every buffer's refcount by one and returns a new Vector
// header sharing the same backing buffers -- the whole-vector analogue of
// Buffer.Ref, used when a stub captures a readv/writev reply.
func (v Vector) RefAll() Vector {
	out := make(Vector, len(v))
	for i, b := range v {
		out[i] = b.Ref()
	}
	return out
}

// ReleaseAll releases every buffer in the vector.
func (v Vector) ReleaseAll() {
	for _, b := range v {
		b.Release()
	}
}

// Flatten copies the vector's contents into one contiguous slice. This is
// the one place a byte copy happens, and only on demand (e.g. to hand data
// back across the FUSE boundary), never while merely owning/cloning the
// vector inside a stub.
func (v Vector) Flatten() []byte {
	out := make([]byte, 0, v.TotalLen())
	for _, b := range v {
		out = append(out, b.Bytes()...)
	}
	return out
}
