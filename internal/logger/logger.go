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

// Package logger is the structured, leveled logger every translator logs
// through -- never bare fmt.Println or the stdlib log package. Mirrors
// gcsfuse's internal/logger: a slog.Logger underneath, five severities
// (TRACE below DEBUG, then the usual INFO/WARNING/ERROR), and either a
// human-readable text handler or a JSON handler, with optional rotation
// via lumberjack for production deployments.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity below slog.LevelDebug so "trace" sits beneath the standard four.
const levelTrace = slog.Level(-8)

const (
	timeFormat = "02/01/2006 15:04:05.000000"
)

var (
	defaultLevel  = new(slog.LevelVar)
	defaultLogger = slog.New(newTextHandler(os.Stderr, defaultLevel))
)

// Format selects the on-wire shape of log lines.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config controls where and how logger output is written.
type Config struct {
	Format     Format
	Severity   string // TRACE|DEBUG|INFO|WARNING|ERROR
	FilePath   string // empty: stderr
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init (re)configures the package-level default logger. Safe to call
// again later, e.g. after config reload.
func Init(cfg Config) {
	var w io.Writer = os.Stderr
	if cfg.FilePath != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 512),
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
	}

	setLevel(cfg.Severity)

	var h slog.Handler
	if cfg.Format == FormatJSON {
		h = newJSONHandler(w, defaultLevel)
	} else {
		h = newTextHandler(w, defaultLevel)
	}
	defaultLogger = slog.New(h)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func setLevel(severity string) {
	switch severity {
	case "TRACE":
		defaultLevel.Set(levelTrace)
	case "DEBUG":
		defaultLevel.Set(slog.LevelDebug)
	case "WARNING":
		defaultLevel.Set(slog.LevelWarn)
	case "ERROR":
		defaultLevel.Set(slog.LevelError)
	default:
		defaultLevel.Set(slog.LevelInfo)
	}
}

func severityName(l slog.Level) string {
	switch {
	case l < slog.LevelDebug:
		return "TRACE"
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

func newTextHandler(w io.Writer, level *slog.LevelVar) slog.Handler {
	return &leveledHandler{w: w, level: level, json: false}
}

func newJSONHandler(w io.Writer, level *slog.LevelVar) slog.Handler {
	return &leveledHandler{w: w, level: level, json: true}
}

// leveledHandler is a minimal slog.Handler rendering lines in either
// text ("time=... severity=... message=...") or JSON
// ({"timestamp":{...},"severity":"...","message":"..."}), matching the
// two formats gcsfuse's logger test suite exercises.
type leveledHandler struct {
	w     io.Writer
	level *slog.LevelVar
	json  bool
}

func (h *leveledHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *leveledHandler) Handle(_ context.Context, r slog.Record) error {
	sev := severityName(r.Level)
	if h.json {
		_, err := fmt.Fprintf(h.w, `{"timestamp":{"seconds":%d,"nanos":%d},"severity":%q,"message":%q}`+"\n",
			r.Time.Unix(), r.Time.Nanosecond(), sev, r.Message)
		return err
	}
	_, err := fmt.Fprintf(h.w, "time=%q severity=%s message=%q\n", r.Time.Format(timeFormat), sev, r.Message)
	return err
}

func (h *leveledHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *leveledHandler) WithGroup(_ string) slog.Handler      { return h }

func log(level slog.Level, format string, args ...any) {
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, args...), slog.Time("logged_at", time.Now()))
}

func Tracef(format string, args ...any)   { log(levelTrace, format, args...) }
func Debugf(format string, args ...any)   { log(slog.LevelDebug, format, args...) }
func Infof(format string, args ...any)    { log(slog.LevelInfo, format, args...) }
func Warnf(format string, args ...any)    { log(slog.LevelWarn, format, args...) }
func Errorf(format string, args ...any)   { log(slog.LevelError, format, args...) }
