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
	"fmt"

	"github.com/voltrans/voltrans/internal/dict"
)

// GetMeta pulls key out of d and decodes it as a Meta, mirroring
// quota_dict_get_meta: a legacy size-only record is tolerated (ret == 0
// after the -2 remap in the original) rather than surfaced as an
// error, since the caller is expected to heal the missing counts on
// its own.
func GetMeta(d *dict.Dict, key string) (Meta, error) {
	v, ok := d.Get(key)
	if !ok {
		return Meta{}, fmt.Errorf("quotacodec: key %q not set", key)
	}
	if v.Kind != dict.KindBin {
		return Meta{}, fmt.Errorf("quotacodec: key %q is not binary", key)
	}

	m, err := DecodeMeta(v.Bin)
	if err != nil && err != ErrLegacyMeta {
		return Meta{}, err
	}
	return m, nil
}

// SetMeta stores m under key in d, trimming the dir_count field for
// non-directory inodes per EncodeMeta/quota_dict_set_meta.
func SetMeta(d *dict.Dict, key string, m Meta, isDir bool) {
	d.Set(key, dict.BinValue(EncodeMeta(m, isDir)))
}
