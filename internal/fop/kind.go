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

// Package fop implements the call-stub / translator-dispatch core: a
// closed enumeration of filesystem operations (FOPs), a frame abstraction
// carrying call context down and reply context back up the translator
// stack, and a stub mechanism that freezes any FOP call or reply into a
// value that can be queued, transported across goroutines, and resumed.
package fop

// Kind is the closed enumeration of filesystem operations every translator
// implements. One Kind exists per entry in spec.md §3 "FOP kind".
type Kind int

const (
	KindLookup Kind = iota
	KindStat
	KindFstat
	KindStatfs
	KindTruncate
	KindFtruncate
	KindAccess
	KindReadlink
	KindMknod
	KindMkdir
	KindUnlink
	KindRmdir
	KindSymlink
	KindRename
	KindLink
	KindCreate
	KindOpen
	KindReadv
	KindWritev
	KindFlush
	KindFsync
	KindOpendir
	KindFsyncdir
	KindSetxattr
	KindGetxattr
	KindFsetxattr
	KindFgetxattr
	KindRemovexattr
	KindFremovexattr
	KindLk
	KindInodelk
	KindFinodelk
	KindEntrylk
	KindFentrylk
	KindReaddir
	KindReaddirp
	KindRchecksum
	KindXattrop
	KindFxattrop
	KindSetattr
	KindFsetattr
	KindFallocate
	KindDiscard
	KindZerofill
	KindIpc
	KindLease
	KindSeek
	KindGetactivelk
	KindSetactivelk

	numKinds
)

var kindNames = [numKinds]string{
	KindLookup:        "lookup",
	KindStat:          "stat",
	KindFstat:         "fstat",
	KindStatfs:        "statfs",
	KindTruncate:      "truncate",
	KindFtruncate:     "ftruncate",
	KindAccess:        "access",
	KindReadlink:      "readlink",
	KindMknod:         "mknod",
	KindMkdir:         "mkdir",
	KindUnlink:        "unlink",
	KindRmdir:         "rmdir",
	KindSymlink:       "symlink",
	KindRename:        "rename",
	KindLink:          "link",
	KindCreate:        "create",
	KindOpen:          "open",
	KindReadv:         "readv",
	KindWritev:        "writev",
	KindFlush:         "flush",
	KindFsync:         "fsync",
	KindOpendir:       "opendir",
	KindFsyncdir:      "fsyncdir",
	KindSetxattr:      "setxattr",
	KindGetxattr:      "getxattr",
	KindFsetxattr:     "fsetxattr",
	KindFgetxattr:     "fgetxattr",
	KindRemovexattr:   "removexattr",
	KindFremovexattr:  "fremovexattr",
	KindLk:            "lk",
	KindInodelk:       "inodelk",
	KindFinodelk:      "finodelk",
	KindEntrylk:       "entrylk",
	KindFentrylk:      "fentrylk",
	KindReaddir:       "readdir",
	KindReaddirp:      "readdirp",
	KindRchecksum:     "rchecksum",
	KindXattrop:       "xattrop",
	KindFxattrop:      "fxattrop",
	KindSetattr:       "setattr",
	KindFsetattr:      "fsetattr",
	KindFallocate:     "fallocate",
	KindDiscard:       "discard",
	KindZerofill:      "zerofill",
	KindIpc:           "ipc",
	KindLease:         "lease",
	KindSeek:          "seek",
	KindGetactivelk:   "getactivelk",
	KindSetactivelk:   "setactivelk",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "unknown-fop"
	}
	return kindNames[k]
}

func (k Kind) Valid() bool {
	return k >= 0 && k < numKinds
}

// AllKinds returns every defined Kind, in declaration order. Used by tests
// to assert exhaustiveness --
// the compile-time exhaustiveness spec.md §9 asks for isn't expressible
// over a map in Go, so a table-driven "every kind has a handler" test
// stands in for it (see internal/translator).
func AllKinds() []Kind {
	out := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		out = append(out, k)
	}
	return out
}
