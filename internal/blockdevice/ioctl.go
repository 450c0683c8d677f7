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

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// alignSize is bd.h's ALIGN_SIZE: the page/sector alignment O_DIRECT
// I/O and the discard/zerofill ioctls require.
const alignSize = 4096

// alignUp rounds n up to the next alignSize boundary.
func alignUp(n uint64) uint64 {
	return (n + alignSize - 1) &^ (alignSize - 1)
}

// isAligned reports whether both offset and length already satisfy
// alignSize, the condition page_aligned_alloc's callers check before
// deciding whether O_DIRECT can be used for a given request without a
// bounce buffer.
func isAligned(offset int64, length int) bool {
	return uint64(offset)%alignSize == 0 && uint64(length)%alignSize == 0
}

// blkDiscard issues BLKDISCARD over [offset, offset+length) on the block
// device backing f, the ioctl bd_do_zerofill's sibling discard path uses
// instead of writing zero pages (spec.md §4.2 "discard/zerofill via
// ioctl, not a byte-by-byte write").
func blkDiscard(f *os.File, offset, length uint64) error {
	rng := [2]uint64{offset, length}
	return ioctlBlkRange(f, unix.BLKDISCARD, &rng)
}

// blkZeroout issues BLKZEROOUT over [offset, offset+length), the
// hardware-accelerated zero-fill path bd_do_zerofill prefers over a
// regular write when the device supports it.
func blkZeroout(f *os.File, offset, length uint64) error {
	rng := [2]uint64{offset, length}
	return ioctlBlkRange(f, unix.BLKZEROOUT, &rng)
}

func ioctlBlkRange(f *os.File, req uint, rng *[2]uint64) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(req), uintptr(unsafe.Pointer(rng)))
	if errno != 0 {
		return errno
	}
	return nil
}

// openODirect opens path with O_DIRECT when the caller believes the
// device honors aligned I/O, falling back to a buffered fd transparently
// if the kernel rejects O_DIRECT outright (some loopback/thin-pool
// configurations do) -- bd_open's "try O_DIRECT, retry without it" dance.
func openODirect(path string, flags int, wantDirect bool) (*os.File, bool, error) {
	if wantDirect {
		f, err := os.OpenFile(path, flags|unix.O_DIRECT, 0)
		if err == nil {
			return f, true, nil
		}
	}
	f, err := os.OpenFile(path, flags, 0)
	return f, false, err
}
