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
	"os"

	"golang.org/x/sys/unix"

	"github.com/voltrans/voltrans/internal/dict"
	"github.com/voltrans/voltrans/internal/iatt"
	"github.com/voltrans/voltrans/internal/inode"
	"github.com/voltrans/voltrans/internal/iovec"
	"github.com/voltrans/voltrans/internal/loc"
)

// Args is the fixed argument tuple shared by every FOP kind, mirrored
// after original_source/libglusterfs/src/call-stub.c's call_stub_t: one
// struct with every field a FOP kind might need, used opportunistically
// per Kind rather than one bespoke struct per Kind (default-args.h shows
// the real tuples are heavily overlapping -- loc+fd+dict covers the large
// majority of FOPs; only readv/writev/lk/lease/seek need the extra
// fields below).
type Args struct {
	Loc     loc.Loc
	Loc2    loc.Loc // rename/link destination, entrylk basename owner, etc.
	Fd      *inode.Fd

	Offset int64
	Size   uint32
	Flags  uint32
	Mode   os.FileMode
	Umask  os.FileMode
	Dev    uint64 // mknod device number

	Name  string // xattr key / symlink target / getxattr key
	Value []byte // xattr value for setxattr/fsetxattr

	Vector iovec.Vector // writev payload

	Xdata *dict.Dict // the generic "extra xattr" dict nearly every FOP carries

	// lk/inodelk/entrylk/lease/getactivelk/setactivelk
	Cmd      int32
	CmdFlock any
	Domain   string

	// setattr/fsetattr: the caller-supplied replacement attributes and
	// which fields of it are meaningful, mirrored from default-args.h's
	// (struct iatt *stbuf, int32_t valid) pair.
	Stbuf iatt.Iatt
	Valid SetattrValid
}

// SetattrValid is the bitmask naming which Args.Stbuf fields a setattr/
// fsetattr call actually wants applied, taken from the original's
// GF_SET_ATTR_* bit layout (libglusterfs/src/glusterfs/iatt.h).
type SetattrValid uint32

const (
	SetattrMode SetattrValid = 1 << iota
	SetattrUID
	SetattrGID
	SetattrSize
	SetattrAtime
	SetattrMtime
)

// DeepClone deep-copies every argument that has a lifetime independent of
// the originating frame, per spec.md §4.1's contract for make_call_stub /
// make_reply_stub. Buffers are cloned by refcount bump (iovec.Buffer.Ref),
// never by byte copy.
func (a Args) DeepClone() Args {
	clone := a
	clone.Loc = a.Loc.DeepClone()
	clone.Loc2 = a.Loc2.DeepClone()
	clone.Xdata = a.Xdata.DeepClone()

	if a.Value != nil {
		clone.Value = append([]byte(nil), a.Value...)
	}
	if a.Vector != nil {
		clone.Vector = a.Vector.RefAll()
	}

	// Fd is shared-ownership (refcounted) by design; the stub takes its own
	// reference rather than copying it.
	if a.Fd != nil {
		a.Fd.Ref()
	}
	return clone
}

// Release drops the references DeepClone took, called from Destroy.
func (a Args) Release() {
	a.Xdata.Unref()
	a.Vector.ReleaseAll()
	if a.Fd != nil {
		a.Fd.Unref()
	}
}

// Reply is the fixed reply tuple shared by every FOP kind: status plus
// whichever of iatt/dict/vector/inode/fd the specific Kind produces.
type Reply struct {
	OpRet   int64
	OpErrno unix.Errno

	PreOp  iatt.Iatt
	PostOp iatt.Iatt

	ParentPreOp  iatt.Iatt
	ParentPostOp iatt.Iatt

	Xdata *dict.Dict

	Vector iovec.Vector

	Inode *inode.Inode
	Fd    *inode.Fd

	Gen int64 // generation number, for lookup/mkdir/create/symlink/mknod

	// rchecksum: weak (rolling) and strong (MD5) checksums of the
	// requested range, mirrored from bd_rchecksum_cbk's
	// (weak_checksum, strong_checksum) reply pair.
	WeakChecksum   uint32
	StrongChecksum []byte
}

func (r Reply) DeepClone() Reply {
	clone := r
	clone.Xdata = r.Xdata.DeepClone()
	if r.Vector != nil {
		clone.Vector = r.Vector.RefAll()
	}
	if r.Fd != nil {
		r.Fd.Ref()
	}
	return clone
}

func (r Reply) Release() {
	r.Xdata.Unref()
	r.Vector.ReleaseAll()
	if r.Fd != nil {
		r.Fd.Unref()
	}
}

// OK builds a success reply with op_ret set to n (bytes transferred, or 0).
func OK(n int64) Reply {
	return Reply{OpRet: n}
}

// Err builds a failure reply carrying errno.
func Err(errno unix.Errno) Reply {
	return Reply{OpRet: -1, OpErrno: errno}
}
