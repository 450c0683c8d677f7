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

package blockdevice

import "github.com/pkg/xattr"

// XattrStore abstracts the real extended-attribute syscalls this
// translator issues against a bd-bound file's posix placeholder --
// setting, and on failure reverting, the "trusted.glusterfs.bd" xattr
// that is the sole on-disk record of the LV binding (spec.md §4.2
// "Setxattr"/"Lookup", §7 "Validation failures"). Swappable the same way
// CommandRunner lets tests substitute lvm2 without a real VG: production
// wires pkg/xattr, tests wire an in-memory fake instead of requiring
// CAP_SYS_ADMIN and a trusted.*-xattr-capable filesystem.
type XattrStore interface {
	Set(path, name string, value []byte) error
	Remove(path, name string) error
}

// pkgXattrStore is the production XattrStore, backed by
// github.com/pkg/xattr.
type pkgXattrStore struct{}

func (pkgXattrStore) Set(path, name string, value []byte) error {
	return xattr.Set(path, name, value)
}

func (pkgXattrStore) Remove(path, name string) error {
	return xattr.Remove(path, name)
}
