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

// Package quotacodec decodes and encodes the fixed-width big-endian
// records the quota subsystem stores in dict values and the quota
// config file, grounded directly on
// original_source/libglusterfs/src/quota-common-utils.c.
package quotacodec

import (
	"encoding/binary"
	"fmt"
)

// Meta is the {size, file_count, dir_count} triple quota tracks per
// inode, quota_meta_t in the original.
type Meta struct {
	Size      int64
	FileCount int64
	DirCount  int64
}

// IsNull reports whether every field is zero, quota_meta_is_null.
func (m Meta) IsNull() bool {
	return m.Size == 0 && m.FileCount == 0 && m.DirCount == 0
}

const (
	fieldWidth = 8 // int64
	fileRecord = fieldWidth * 2
	fullRecord = fieldWidth * 3
)

// DecodeMeta parses a dict value into a Meta, reproducing
// quota_data_to_meta's three on-wire shapes:
//
//   - legacy 8-byte value: a lone big-endian size, no counts. Returned
//     with ErrLegacyMeta so callers can tell the difference (the
//     original treats this as "needs healing", not a hard error).
//   - 16-byte value: size + file_count, no dir_count (the on-disk shape
//     used for regular files, since they have no directory count to
//     track).
//   - 24-byte value: size + file_count + dir_count, the shape used for
//     directories.
func DecodeMeta(data []byte) (Meta, error) {
	var m Meta

	switch {
	case len(data) > fieldWidth:
		m.Size = int64(binary.BigEndian.Uint64(data[0:8]))
		m.FileCount = int64(binary.BigEndian.Uint64(data[8:16]))
		if len(data) > fileRecord {
			m.DirCount = int64(binary.BigEndian.Uint64(data[16:24]))
		}
		return m, nil
	case len(data) == fieldWidth:
		m.Size = int64(binary.BigEndian.Uint64(data[0:8]))
		return m, ErrLegacyMeta
	default:
		return m, fmt.Errorf("quotacodec: short meta record: %d bytes", len(data))
	}
}

// ErrLegacyMeta marks a decoded value that carried only a size field,
// the shape left behind by a pre-upgrade glusterfs that didn't yet
// track inode counts. Decoding still succeeds (Size is valid); callers
// should treat FileCount/DirCount as needing a heal, matching the
// original's ret == -2 "return failure, this will be healed as part of
// lookup" path.
var ErrLegacyMeta = fmt.Errorf("quotacodec: legacy size-only meta, counts need healing")

// EncodeMeta serializes m for storage, trimming the dir_count field
// for non-directory inodes the way quota_dict_set_meta does ("for a
// file we don't need to store dir_count... so the posix xattrop only
// operates on size and file_count").
func EncodeMeta(m Meta, isDir bool) []byte {
	buf := make([]byte, fullRecord)
	binary.BigEndian.PutUint64(buf[0:8], uint64(m.Size))
	binary.BigEndian.PutUint64(buf[8:16], uint64(m.FileCount))
	binary.BigEndian.PutUint64(buf[16:24], uint64(m.DirCount))

	if isDir {
		return buf
	}
	return buf[:fileRecord]
}
