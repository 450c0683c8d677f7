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

// Command voltransd wires the translator graph described by spec.md §2
// from parsed configuration and keeps it running until signaled --
// mount helpers, wire-protocol framing, and the management-plane daemon
// are out of scope (spec.md §1's "out of scope" list) so this entrypoint
// stops at graph construction rather than serving a filesystem.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voltrans/voltrans/cfg"
	"github.com/voltrans/voltrans/internal/blockdevice"
	"github.com/voltrans/voltrans/internal/iocache"
	"github.com/voltrans/voltrans/internal/logger"
	"github.com/voltrans/voltrans/internal/metrics"
	"github.com/voltrans/voltrans/internal/translator"
	"github.com/voltrans/voltrans/internal/upcall"
)

var (
	cfgFile    string
	severity   string
	logFmt     string
	dumpConfig bool
)

var rootCmd = &cobra.Command{
	Use:   "voltransd",
	Short: "Run the block-device and page-cache translator stack",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	rootCmd.PersistentFlags().StringVar(&severity, "log-severity", "INFO", "TRACE|DEBUG|INFO|WARNING|ERROR")
	rootCmd.PersistentFlags().StringVar(&logFmt, "log-format", "text", "text|json")
	rootCmd.PersistentFlags().BoolVar(&dumpConfig, "dump-config", false, "Print the effective configuration as YAML and exit.")
	if err := cfg.BindFlags(rootCmd.PersistentFlags()); err != nil {
		panic(fmt.Sprintf("voltransd: binding flags: %v", err))
	}
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "voltransd: reading config file %s: %v\n", cfgFile, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger.Init(logger.Config{
		Format:   logger.Format(logFmt),
		Severity: severity,
	})

	c, err := cfg.Load()
	if err != nil {
		return fmt.Errorf("voltransd: loading config: %w", err)
	}

	if dumpConfig {
		out, err := cfg.DumpYAML(c)
		if err != nil {
			return fmt.Errorf("voltransd: dumping config: %w", err)
		}
		fmt.Fprint(os.Stdout, string(out))
		return nil
	}

	top, reg, err := wireGraph(ctx, c)
	if err != nil {
		return err
	}

	if reg != nil {
		reg.Start()
		defer reg.Stop()
	}

	logger.Infof("voltransd: translator graph ready, head=%q (export=%s device=%s cache-size=%d upcall=%t)",
		top.Name(), c.BlockDevice.Export, c.BlockDevice.Device, c.Cache.CacheSize, c.Upcall.CacheInvalidation)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		logger.Infof("voltransd: received %s, shutting down", sig)
	}
	return nil
}

// wireGraph builds the three in-scope subsystems and links them
// bottom-up: block-device backend at the bottom, page cache above it,
// the upcall invalidation layer on top -- spec.md §2's diagram, with
// upcall positioned to see every FOP's reply before the front end does
// so it can broadcast invalidations off a confirmed success.
func wireGraph(ctx context.Context, c cfg.Config) (translator.Translator, *upcall.Registry, error) {
	promReg := metrics.New(prometheus.DefaultRegisterer)

	vg, err := blockdevice.OpenVolumeGroup(ctx, c.BlockDevice.Export, c.BlockDevice.Pool, c.BlockDevice.VolumeID)
	if err != nil {
		return nil, nil, fmt.Errorf("voltransd: opening volume group: %w", err)
	}

	var aio *blockdevice.AIOEngine
	if c.BlockDevice.BDAIO {
		aio = blockdevice.NewAIOEngine(4, 128)
		aio.WithMetrics(promReg)
	}
	bd := blockdevice.New("bd", vg, aio)

	priorities, err := iocache.ParsePriorities(c.Cache.Priority)
	if err != nil {
		return nil, nil, fmt.Errorf("voltransd: parsing cache.priority: %w", err)
	}
	table := iocache.NewTable(iocache.Config{
		MaxSizeBytes: c.Cache.CacheSize,
		Timeout:      c.Cache.CacheTimeout,
		MinFileSize:  uint64(c.Cache.MinFileSize),
		MaxFileSize:  uint64(c.Cache.MaxFileSize),
		Priorities:   priorities,
	})
	cache := iocache.New("iocache", table)
	cache.WithMetrics(promReg)
	translator.Link(cache, bd)

	var reg *upcall.Registry
	var top translator.Translator = cache
	if c.Upcall.CacheInvalidation {
		reg = upcall.NewRegistry(c.Upcall.CacheInvalidationTimeout)
		reg.WithMetrics(promReg)
		up := upcall.NewTranslator("upcall", reg)
		translator.Link(up, cache)
		top = up
	}

	return top, reg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
