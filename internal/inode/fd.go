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

// Fd is a reference-counted handle bound to one inode and a set of open
// flags. Like Inode, ownership is shared and the last release triggers a
// downward release (ReleaseFunc).
type Fd struct {
	mu sync.Mutex

	inode *Inode
	flags uint32

	ctx ctxTable

	refs refCount
}

// ReleaseFunc is invoked exactly once, when an fd's reference count
// reaches zero.
type ReleaseFunc func(*Fd)

// NewFd creates an fd bound to inode with refcount 1.
func NewFd(in *Inode, flags uint32, release ReleaseFunc) *Fd {
	fd := &Fd{
		inode: in,
		flags: flags,
		ctx:   newCtxTable(),
	}
	fd.refs = refCount{count: 1, destroy: func() {
		if release != nil {
			release(fd)
		}
	}}
	return fd
}

func (fd *Fd) Lock()   { fd.mu.Lock() }
func (fd *Fd) Unlock() { fd.mu.Unlock() }

func (fd *Fd) Inode() *Inode { return fd.inode }
func (fd *Fd) Flags() uint32 { return fd.flags }

// Ref increments the fd's reference count (e.g. dup-like sharing across
// concurrent FOPs holding the same handle).
func (fd *Fd) Ref() {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.refs.inc()
}

// Unref decrements the fd's reference count; at zero the release callback
// runs and destroyed is true.
func (fd *Fd) Unref() (destroyed bool) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.refs.dec(1)
}

func (fd *Fd) Context(translator string) (any, bool) {
	return fd.ctx.Get(translator)
}

func (fd *Fd) SetContext(translator string, v any) {
	fd.ctx.Set(translator, v)
}

func (fd *Fd) ClearContext(translator string) {
	fd.ctx.Delete(translator)
}
