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

package cfg

import "time"

// Config is the fully bound configuration tree, read through viper
// after BindFlags registers every flag against a pflag.FlagSet --
// gcsfuse's cfg.Config shape, narrowed to this module's own option
// table (spec.md §6).
type Config struct {
	BlockDevice BlockDeviceConfig `yaml:"bd"`
	Cache       CacheConfig       `yaml:"cache"`
	Upcall      UpcallConfig      `yaml:"upcall"`
}

// BlockDeviceConfig binds the "bd.*" keys.
type BlockDeviceConfig struct {
	Export   string `yaml:"export"`
	Device   string `yaml:"device"`
	Pool     string `yaml:"pool"`
	BDAIO    bool   `yaml:"bd-aio"`
	VolumeID string `yaml:"volume-id"`
}

// CacheConfig binds the "cache.*" keys.
type CacheConfig struct {
	CacheSize    int64         `yaml:"cache-size"`
	CacheTimeout time.Duration `yaml:"cache-timeout"`
	MinFileSize  int64         `yaml:"min-file-size"`
	MaxFileSize  int64         `yaml:"max-file-size"`
	Priority     string        `yaml:"priority"`
}

// UpcallConfig binds the "upcall.*" keys.
type UpcallConfig struct {
	CacheInvalidation        bool          `yaml:"cache-invalidation"`
	CacheInvalidationTimeout time.Duration `yaml:"cache-invalidation-timeout"`
}
