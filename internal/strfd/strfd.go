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

// Package strfd is a lightweight in-memory fd stand-in for synthetic
// file content, grounded on
// original_source/libglusterfs/src/strfd.c. The block-device
// translator's capsString builds the capability list of its startup log
// line with a Buf instead of a real backing file.
package strfd

import (
	"fmt"
	"io"
)

// Buf is an in-memory string-backed io.ReadWriteSeeker, strfd_t
// reduced to what a garbage-collected runtime needs: append growth is
// handled by Go's own slice growth instead of strfd.c's manual
// GF_REALLOC/round-up-to-power-of-two dance.
type Buf struct {
	data []byte
	pos  int64
}

// New returns an empty Buf, strfd_open.
func New() *Buf {
	return &Buf{}
}

// NewFromString seeds a Buf with the given content, position at 0.
func NewFromString(s string) *Buf {
	return &Buf{data: []byte(s)}
}

// Printf appends the formatted string to the buffer, strprintf. It
// does not move the read/write cursor used by Read/Seek -- content is
// always appended at the end, matching the original always growing
// strfd->size regardless of where a prior read left off.
func (b *Buf) Printf(format string, args ...any) (int, error) {
	s := fmt.Sprintf(format, args...)
	b.data = append(b.data, s...)
	return len(s), nil
}

// String returns the buffer's full contents, the safe "use strfd->data
// as a string" use case the original's trailing NUL byte exists for.
func (b *Buf) String() string {
	return string(b.data)
}

// Len reports the number of bytes written so far.
func (b *Buf) Len() int {
	return len(b.data)
}

// Read implements io.Reader, advancing the cursor.
func (b *Buf) Read(p []byte) (int, error) {
	if b.pos >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += int64(n)
	return n, nil
}

// Write implements io.Writer, writing at the cursor and extending the
// buffer as needed (unlike Printf, which always appends at the end).
func (b *Buf) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	n := copy(b.data[b.pos:end], p)
	b.pos += int64(n)
	return n, nil
}

// Seek implements io.Seeker.
func (b *Buf) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = b.pos + offset
	case io.SeekEnd:
		newPos = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("strfd: invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("strfd: negative position %d", newPos)
	}
	b.pos = newPos
	return newPos, nil
}

// Close is a no-op satisfying io.Closer for callers that treat Buf as
// a full file handle, strfd_close's Go analogue (GC reclaims data, no
// explicit free needed).
func (b *Buf) Close() error {
	return nil
}
