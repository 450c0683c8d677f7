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

// Package iatt defines the file-attribute struct (iatt) and the globally
// unique file identifier (gfid) shared by every translator in the stack.
// Field shapes mirror github.com/jacobsa/fuse.InodeAttributes, the
// vocabulary the rest of this module's eventual FUSE frontend would speak
// (see internal/inode, which reuses fuse.InodeID directly).
package iatt

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Gfid is a 16-byte globally unique file identifier, canonicalized as a
// 36-character hyphenated UUID string for device paths and xattrs.
type Gfid uuid.UUID

// NilGfid is the zero-value gfid, used for "no gfid yet assigned".
var NilGfid Gfid

// NewGfid generates a fresh random gfid.
func NewGfid() Gfid {
	return Gfid(uuid.New())
}

// ParseGfid parses a canonical hyphenated UUID string into a Gfid.
func ParseGfid(s string) (Gfid, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NilGfid, fmt.Errorf("iatt: parse gfid %q: %w", s, err)
	}
	return Gfid(id), nil
}

// String returns the canonical 36-character hyphenated form, as used for LV
// device paths ("/dev/<vg>/<gfid>") and xattr values.
func (g Gfid) String() string {
	return uuid.UUID(g).String()
}

// Bytes returns the 16-byte wire form.
func (g Gfid) Bytes() []byte {
	b := uuid.UUID(g)
	return b[:]
}

func (g Gfid) IsNil() bool {
	return g == NilGfid
}

// IType is the inode's filesystem object type.
type IType int

const (
	ITypeUnknown IType = iota
	ITypeRegular
	ITypeDirectory
	ITypeSymlink
	ITypeDevice
)

func (t IType) String() string {
	switch t {
	case ITypeRegular:
		return "regular"
	case ITypeDirectory:
		return "directory"
	case ITypeSymlink:
		return "symlink"
	case ITypeDevice:
		return "device"
	default:
		return "unknown"
	}
}

// Iatt is the attribute struct exchanged on every stat-shaped FOP reply:
// size, block count, mode, uid/gid, ctime/mtime/atime with nanosecond
// precision, nlink, and the owning gfid.
type Iatt struct {
	Gfid  Gfid
	Type  IType
	Size  uint64
	Blocks uint64 // 512-byte blocks, posix st_blocks convention
	Mode  os.FileMode
	Uid   uint32
	Gid   uint32
	Nlink uint32

	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// WithSize returns a copy of a with Size (and derived Blocks, 512-byte
// units rounded up) replaced. Used by the block-device backend to override
// posix size/blocks with the LV's.
func (a Iatt) WithSize(size uint64) Iatt {
	a.Size = size
	a.Blocks = (size + 511) / 512
	return a
}
