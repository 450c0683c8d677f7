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

// Package dict implements the dynamic, refcounted xattr map every FOP's
// dict-shaped argument or reply (setxattr/getxattr/fxattrop values, the
// upcall invalidation payload, readdirp per-entry attributes) is built on.
package dict

import (
	"fmt"
	"sync/atomic"

	"github.com/voltrans/voltrans/internal/iatt"
)

// ValueKind discriminates the tagged value stored under a dict key.
type ValueKind int

const (
	KindInt ValueKind = iota
	KindBin
	KindDynStr
	KindStaticStr
	KindPtr
	KindIatt
)

// Value is a single tagged entry in a Dict.
type Value struct {
	Kind ValueKind

	Int   int64
	Bin   []byte
	Str   string
	Ptr   any
	Iatt  iatt.Iatt
}

func IntValue(v int64) Value        { return Value{Kind: KindInt, Int: v} }
func BinValue(v []byte) Value       { return Value{Kind: KindBin, Bin: v} }
func StrValue(v string) Value       { return Value{Kind: KindDynStr, Str: v} }
func StaticStrValue(v string) Value { return Value{Kind: KindStaticStr, Str: v} }
func PtrValue(v any) Value          { return Value{Kind: KindPtr, Ptr: v} }
func IattValue(v iatt.Iatt) Value   { return Value{Kind: KindIatt, Iatt: v} }

// clone deep-copies a Value's owned bytes. Strings and iatt are copied by
// Go's value semantics already; only the Bin slice needs an explicit copy.
func (v Value) clone() Value {
	if v.Kind == KindBin && v.Bin != nil {
		b := make([]byte, len(v.Bin))
		copy(b, v.Bin)
		v.Bin = b
	}
	return v
}

// Dict is a string-keyed map of tagged values with a map-level refcount, so
// that capturing a dict into a call stub (Ref) is cheap and releasing it
// (Unref) is exactly-once. A Dict must be built with New, which starts it
// at refcount 1; the zero Dict has neither a map nor a refcount, so Set,
// Ref and Unref on it panic.
type Dict struct {
	values map[string]Value
	refs   *int32
}

// New returns an empty Dict with refcount 1.
func New() *Dict {
	one := int32(1)
	return &Dict{values: make(map[string]Value), refs: &one}
}

// Ref increments the refcount and returns the same dict, mirroring
// dict_ref(). Safe to call concurrently with other Ref/Unref calls.
func (d *Dict) Ref() *Dict {
	if d == nil {
		return nil
	}
	atomic.AddInt32(d.refs, 1)
	return d
}

// Unref decrements the refcount; the backing map becomes unusable once it
// reaches zero. Returns the count after decrementing.
func (d *Dict) Unref() int32 {
	if d == nil {
		return 0
	}
	return atomic.AddInt32(d.refs, -1)
}

// Set stores a value under key, overwriting any previous value.
func (d *Dict) Set(key string, v Value) {
	d.values[key] = v
}

// Get returns the value under key and whether it was present.
func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Del removes key, if present.
func (d *Dict) Del(key string) {
	delete(d.values, key)
}

// Keys returns the dict's keys in no particular order.
func (d *Dict) Keys() []string {
	keys := make([]string, 0, len(d.values))
	for k := range d.values {
		keys = append(keys, k)
	}
	return keys
}

func (d *Dict) Len() int {
	return len(d.values)
}

// DeepClone returns a new Dict (refcount 1) whose values are independently
// owned copies of d's, suitable for embedding in a call stub per spec.md
// §3: "A stub owns strong references to every argument container... so the
// frame can be released while the stub lives."
func (d *Dict) DeepClone() *Dict {
	clone := New()
	if d == nil {
		return clone
	}
	for k, v := range d.values {
		clone.values[k] = v.clone()
	}
	return clone
}

func (d *Dict) String() string {
	return fmt.Sprintf("dict{%d keys}", d.Len())
}
