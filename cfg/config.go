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

// Package cfg binds the command-line/YAML configuration surface
// (spec.md §6's option table) through spf13/pflag and spf13/viper,
// the same two-package combination gcsfuse's own (generator-produced)
// cfg package binds flags with.
package cfg

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// BindFlags registers every flag this module understands against
// flagSet and wires each one to viper so a later Config load picks up
// flag, env, and YAML-file values with flag taking precedence --
// gcsfuse's BindFlags shape, hand-written here in place of its
// generator since SPEC_FULL's option table is a fixed, small set.
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.String("bd.export", "", "Volume group to export as the block-device backing store.")
	flagSet.String("bd.device", "vg", "Block-device backend; only \"vg\" is supported.")
	flagSet.String("bd.pool", "", "Thin pool LV name within the exported volume group; empty disables thin provisioning.")
	flagSet.Bool("bd.bd-aio", false, "Route block-device reads/writes through the async I/O engine.")
	flagSet.String("bd.volume-id", "", "UUID the exported volume group must be tagged with (trusted.glusterfs.volume-id); empty skips the check.")

	flagSet.Int64("cache.cache-size", 32<<20, "Upper bound, in bytes, on in-memory cached pages.")
	flagSet.Duration("cache.cache-timeout", time.Second, "Freshness window for a cached page (0-60s).")
	flagSet.Int64("cache.min-file-size", 0, "Files smaller than this are never cached.")
	flagSet.Int64("cache.max-file-size", 0, "Files larger than this are never cached; 0 means no max.")
	flagSet.String("cache.priority", "", "Comma-separated pattern:priority pairs, e.g. \"*.gz:5,/var/log/*:1\".")

	flagSet.Bool("upcall.cache-invalidation", false, "Push cache-invalidation notifications to registered clients.")
	flagSet.Duration("upcall.cache-invalidation-timeout", 0, "Clients idle longer than 2x this are dropped.")

	for _, name := range []string{
		"bd.export", "bd.device", "bd.pool", "bd.bd-aio", "bd.volume-id",
		"cache.cache-size", "cache.cache-timeout", "cache.min-file-size", "cache.max-file-size", "cache.priority",
		"upcall.cache-invalidation", "upcall.cache-invalidation-timeout",
	} {
		if err := viper.BindPFlag(name, flagSet.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

// viperDecoderOpt points viper's mapstructure decoder at Config's yaml
// tags (Config carries no mapstructure tags, so the decoder's default tag
// name would match none of its fields) and adds the hook the decoder is
// missing for this tree: string-to-time.Duration, needed because
// cache.cache-timeout/upcall.cache-invalidation-timeout arrive as
// Duration-flag values but may also come from a YAML string like "2s"
// when set through a config file instead of a flag.
var viperDecoderOpt viper.DecoderConfigOption = func(c *mapstructure.DecoderConfig) {
	c.TagName = "yaml"
	c.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

// Load reads the currently bound viper state into a Config.
func Load() (Config, error) {
	var c Config
	if err := viper.Unmarshal(&c, viperDecoderOpt); err != nil {
		return Config{}, err
	}
	return c, nil
}

// DumpYAML renders c in the same "bd:"/"cache:"/"upcall:" shape a
// --config-file expects, so an operator can capture the effective
// configuration (flags, env, and file merged by viper) as a file to
// replay later -- Config's yaml tags are the same ones viper decodes a
// config file through, so round-tripping through DumpYAML and back into
// --config-file is lossless.
func DumpYAML(c Config) ([]byte, error) {
	return yaml.Marshal(c)
}
