// Copyright 2025 Google LLC
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

// Package logger provides the process-wide structured logger used by every
// kernel subsystem. Log output goes to stderr so that it never interleaves
// with the simulated VGA console on stdout.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Severity levels, ordered. TRACE and OFF are not native slog levels, so
// they are mapped onto custom values below; WARNING is slog's LevelWarn.
const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelOff     = slog.Level(12)
)

var (
	defaultLogger        *slog.Logger
	defaultLoggerFactory *loggerFactory
	programLevel         = new(slog.LevelVar)
)

func init() {
	defaultLoggerFactory = &loggerFactory{
		out:    os.Stderr,
		format: "text",
	}
	programLevel.Set(LevelInfo)
	defaultLogger = defaultLoggerFactory.newLogger(programLevel)
}

// SetLogFormat selects "text" or "json" output for the default logger.
func SetLogFormat(format string) {
	if format == defaultLoggerFactory.format {
		return
	}
	defaultLoggerFactory.format = format
	defaultLogger = defaultLoggerFactory.newLogger(programLevel)
}

// SetLogSeverity sets the minimum severity; one of "trace", "debug", "info",
// "warning", "error", "off". Unknown names fall back to info.
func SetLogSeverity(severity string) {
	programLevel.Set(severityToLevel(severity))
}

func severityToLevel(severity string) slog.Level {
	switch strings.ToLower(severity) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warning":
		return LevelWarning
	case "error":
		return LevelError
	case "off":
		return LevelOff
	default:
		return LevelInfo
	}
}

type loggerFactory struct {
	out    io.Writer
	format string
}

func (f *loggerFactory) newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(f.createJsonOrTextHandler(f.out, level))
}

func (f *loggerFactory) createJsonOrTextHandler(writer io.Writer, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceSeverity,
	}
	if f.format == "json" {
		return slog.NewJSONHandler(writer, opts)
	}
	return slog.NewTextHandler(writer, opts)
}

// replaceSeverity renames the level attribute to "severity" and gives the
// custom levels their proper names.
func replaceSeverity(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	a.Key = "severity"
	switch a.Value.Any().(slog.Level) {
	case LevelTrace:
		a.Value = slog.StringValue("TRACE")
	case LevelDebug:
		a.Value = slog.StringValue("DEBUG")
	case LevelInfo:
		a.Value = slog.StringValue("INFO")
	case LevelWarning:
		a.Value = slog.StringValue("WARNING")
	case LevelError:
		a.Value = slog.StringValue("ERROR")
	}
	return a
}

func Tracef(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelDebug, fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelInfo, fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelWarning, fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelError, fmt.Sprintf(format, v...))
}
