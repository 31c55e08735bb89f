package rhi

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
)

// nopHandler drops every record. Enabled reports false for all levels, so
// disabled log calls skip attribute formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var silent = slog.New(nopHandler{})

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(silent)
}

// SetLogger installs l as the logger of rhi, its backends, and the wgpu
// HAL underneath them. A nil l silences logging again, which is also the
// initial state.
//
// Levels:
//   - [slog.LevelDebug]: resource creation, submissions, staging ring reuse
//   - [slog.LevelInfo]: opened render systems and the adapter in use
//   - [slog.LevelWarn]: skipped backends, sample count fallbacks, release errors
//
// SetLogger may be called while other goroutines log.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = silent
	}
	current.Store(l)
	hal.SetLogger(l)
}

// Logger returns the logger installed by SetLogger.
func Logger() *slog.Logger {
	return current.Load()
}
