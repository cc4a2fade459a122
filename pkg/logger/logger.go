// Copyright 2025 Kadir Pekel
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

package logger

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

var defaultLogger *slog.Logger

const modulePackagePrefix = "github.com/kadirpekel/persona-core"

// ParseLevel converts a string log level to slog.Level. Unknown strings
// collapse to Warn so a bad config value never blocks the turn pipeline
// from starting.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// filteringHandler wraps a slog handler and hides third-party library logs
// unless the level is DEBUG.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.minLevel {
		return false
	}
	return h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug {
		return h.handler.Handle(ctx, record)
	}
	if h.isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	return strings.Contains(fn.Name(), modulePackagePrefix)
}

// Init configures the process-wide logger. format "json" emits
// slog.JSONHandler records; anything else uses slog.TextHandler.
func Init(levelStr, format string, output *os.File) {
	if output == nil {
		output = os.Stderr
	}
	level := ParseLevel(levelStr)
	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}

	var base slog.Handler
	if strings.EqualFold(format, "json") {
		base = slog.NewJSONHandler(output, opts)
	} else {
		base = slog.NewTextHandler(output, opts)
	}

	defaultLogger = slog.New(&filteringHandler{handler: base, minLevel: level})
	slog.SetDefault(defaultLogger)
}

// GetLogger returns the process-wide logger, lazily initializing it with
// sane defaults (info/text/stderr) if Init was never called.
func GetLogger() *slog.Logger {
	if defaultLogger == nil {
		Init("info", "text", os.Stderr)
	}
	return defaultLogger
}

// Turn scopes a logger to one pipeline turn with the identifiers every
// stage should attach to its own log lines.
func Turn(turnID, botID, userID string) *slog.Logger {
	return GetLogger().With("turn_id", turnID, "bot_id", botID, "user_id", userID)
}

// Stage further scopes a turn logger to a single pipeline node, named after
// the component ids used throughout spec section 4 (e.g. "C3", "lats.select").
func Stage(l *slog.Logger, stage string) *slog.Logger {
	return l.With("stage", stage)
}
