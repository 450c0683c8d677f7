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

// Package inode implements the reference-counted inode and file-descriptor
// handles shared by every translator: gfid identity, per-translator
// context slots, and shared ownership with forget/release-on-zero
// semantics (spec.md §3).
package inode

import (
	"fmt"

	"github.com/jacobsa/fuse"

	"github.com/voltrans/voltrans/internal/iatt"
	"github.com/voltrans/voltrans/internal/invariant"
)

// Inode is a reference-counted handle identified by a gfid. Ownership is
// shared: the last release triggers a downward forget (ForgetFunc).
type Inode struct {
	// mu checks checkInvariants on every unlock, the same role
	// github.com/jacobsa/syncutil.InvariantMutex plays around
	// fs/inode/file.go's lookupCount and itype fields.
	mu invariant.Mutex

	id    fuse.InodeID
	gfid  iatt.Gfid
	itype iatt.IType

	ctx ctxTable

	lookups refCount
}

// checkInvariants panics if this inode has been left in an impossible
// state; it must only be called with mu held (invariant.Mutex calls it
// from Unlock, before releasing the underlying lock).
func (in *Inode) checkInvariants() {
	switch in.itype {
	case iatt.ITypeRegular, iatt.ITypeDirectory, iatt.ITypeSymlink, iatt.ITypeDevice:
	default:
		panic(fmt.Sprintf("inode: gfid %s has invalid itype %d", in.gfid, in.itype))
	}
}

// ForgetFunc is invoked exactly once, when an inode's lookup count reaches
// zero. It must not block for long; translators that need to do I/O on
// forget should dispatch it asynchronously.
type ForgetFunc func(*Inode)

// New creates an inode with lookup count 1 (the initial lookup that
// produced it). forget is called when the count returns to zero.
func New(id fuse.InodeID, gfid iatt.Gfid, itype iatt.IType, forget ForgetFunc) *Inode {
	in := &Inode{
		id:    id,
		gfid:  gfid,
		itype: itype,
		ctx:   newCtxTable(),
	}
	in.lookups = refCount{count: 1, destroy: func() {
		if forget != nil {
			forget(in)
		}
	}}
	in.mu = invariant.New(in.checkInvariants)
	return in
}

func (in *Inode) Lock()   { in.mu.Lock() }
func (in *Inode) Unlock() { in.mu.Unlock() }

func (in *Inode) ID() fuse.InodeID   { return in.id }
func (in *Inode) Gfid() iatt.Gfid    { return in.gfid }
func (in *Inode) Type() iatt.IType   { return in.itype }

// IncrementLookupCount records an additional lookup (e.g. a second
// LookUpInode resolving to the same gfid).
func (in *Inode) IncrementLookupCount() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.lookups.inc()
}

// DecrementLookupCount decrements by n; if the count hits zero, the
// forget callback runs and destroyed is true. The inode must not be used
// after that.
func (in *Inode) DecrementLookupCount(n uint64) (destroyed bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.lookups.dec(n)
}

// Context returns the slot this translator previously installed via
// SetContext, if any.
func (in *Inode) Context(translator string) (any, bool) {
	return in.ctx.Get(translator)
}

// SetContext installs this translator's private slot on the inode.
func (in *Inode) SetContext(translator string, v any) {
	in.ctx.Set(translator, v)
}

// ClearContext removes this translator's private slot, e.g. on forget.
func (in *Inode) ClearContext(translator string) {
	in.ctx.Delete(translator)
}
