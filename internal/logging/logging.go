// Package logging provides per-module structured loggers shared across the
// agent, mirroring the teacher's convention of a single logger constructed
// once per package (var log = logging.Module("...")) rather than a global
// log.Printf.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	baseOnce sync.Once
	base     *zap.Logger
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func buildBase() *zap.Logger {
	if os.Getenv("MYDATA_DEBUG") != "" {
		level.SetLevel(zapcore.DebugLevel)
	}

	cfg := zap.Config{
		Level:            level,
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := cfg.Build()
	if err != nil {
		// Logging setup failing is not itself fatal to the run; fall back
		// to a no-op logger rather than panicking at import time.
		return zap.NewNop()
	}

	return l
}

// Module returns a sugared logger scoped to the named component, e.g.
// logging.Module("pipeline"). Safe to call at package init time.
func Module(name string) *zap.SugaredLogger {
	baseOnce.Do(func() {
		base = buildBase()
	})

	return base.Named(name).Sugar()
}

// SetLevel adjusts the minimum severity for all loggers handed out by
// Module, present and future, since they share the same atomic level.
// Called by the CLI's --debug flag.
func SetLevel(debug bool) {
	baseOnce.Do(func() {
		base = buildBase()
	})

	if debug {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
}
