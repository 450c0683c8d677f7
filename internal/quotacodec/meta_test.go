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

package quotacodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeMetaRoundTripsForDirectory(t *testing.T) {
	m := Meta{Size: 1 << 20, FileCount: 3, DirCount: 2}

	encoded := EncodeMeta(m, true)
	assert.Len(t, encoded, 24)

	got, err := DecodeMeta(encoded)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestEncodeDecodeMetaTrimsDirCountForFiles(t *testing.T) {
	m := Meta{Size: 4096, FileCount: 1, DirCount: 99}

	encoded := EncodeMeta(m, false)
	assert.Len(t, encoded, 16)

	got, err := DecodeMeta(encoded)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), got.Size)
	assert.Equal(t, int64(1), got.FileCount)
	assert.Zero(t, got.DirCount)
}

func TestDecodeMetaDetectsLegacySizeOnlyRecord(t *testing.T) {
	legacy := make([]byte, 8)
	legacy[7] = 42

	m, err := DecodeMeta(legacy)
	assert.ErrorIs(t, err, ErrLegacyMeta)
	assert.Equal(t, int64(42), m.Size)
	assert.Zero(t, m.FileCount)
}

func TestDecodeMetaRejectsShortRecord(t *testing.T) {
	_, err := DecodeMeta([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestMetaIsNull(t *testing.T) {
	assert.True(t, Meta{}.IsNull())
	assert.False(t, Meta{Size: 1}.IsNull())
}
