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

package strfd

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintfAccumulatesAcrossCalls(t *testing.T) {
	b := New()
	_, err := b.Printf("volume.type=%s\n", "thin")
	require.NoError(t, err)
	_, err = b.Printf("volume.caps=%d\n", 3)
	require.NoError(t, err)

	assert.Equal(t, "volume.type=thin\nvolume.caps=3\n", b.String())
}

func TestReadDrainsToEOF(t *testing.T) {
	b := NewFromString("hello world")
	got := make([]byte, 5)

	n, err := b.Read(got)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got[:n]))

	rest, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, " world", string(rest))
}

func TestSeekAndWriteInPlace(t *testing.T) {
	b := NewFromString("0123456789")

	_, err := b.Seek(4, io.SeekStart)
	require.NoError(t, err)
	_, err = b.Write([]byte("XYZ"))
	require.NoError(t, err)

	assert.Equal(t, "0123XYZ789", b.String())
}

func TestWriteExtendsBufferPastEnd(t *testing.T) {
	b := New()
	_, err := b.Seek(3, io.SeekStart)
	require.NoError(t, err)
	_, err = b.Write([]byte("ab"))
	require.NoError(t, err)

	assert.Equal(t, 5, b.Len())
}

func TestSeekRejectsNegativePosition(t *testing.T) {
	b := New()
	_, err := b.Seek(-1, io.SeekStart)
	assert.Error(t, err)
}
