// Package buildlog provides the compiler's internal progress/statistics
// logging: phase entries (without timestamps), per-unit cache hit/miss
// events, the unit count, and two-phase-linker symbol counters. It is
// deliberately separate from
// internal/diag, which is the user-facing diagnostic channel named by
// spec §7 -- buildlog is for an operator watching `-vb` verbose output,
// never for CE/CW/RE diagnostics.
package buildlog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a *zap.Logger, exposing the small fixed vocabulary of
// structured fields the pipeline stages actually emit.
type Logger struct {
	z *zap.Logger
}

// New returns a Logger writing to stdout at InfoLevel when verbose is
// true, or a no-op logger otherwise. A no-op logger still satisfies every
// call site at effectively zero cost, so stages never branch on verbose
// themselves.
func New(verbose bool) *Logger {
	if !verbose {
		return &Logger{z: zap.NewNop()}
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = "" // phase timestamps are not meaningful across a single short-lived process.
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(os.Stdout), zapcore.InfoLevel)
	return &Logger{z: zap.New(core)}
}

// Phase logs entry into one of the five pipeline stages of spec §2.
func (l *Logger) Phase(name string, fields ...zap.Field) {
	l.z.Info("phase", append([]zap.Field{zap.String("name", name)}, fields...)...)
}

// Stat logs a single named counter, used for the pipeline's unit count and
// two-phase-linker symbol tallies (spec §4.5).
func (l *Logger) Stat(name string, value int) {
	l.z.Info("stat", zap.String("name", name), zap.Int("value", value))
}

// Sync flushes any buffered log entries. Call before process exit.
func (l *Logger) Sync() {
	_ = l.z.Sync()
}
