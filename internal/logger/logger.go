// Package logger provides the process-wide structured logger. Packages grab
// a named child at init time; Init later swaps in the configured sinks, so
// early loggers pick up the real configuration retroactively.
package logger

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// swappableCore delegates to an atomically replaceable inner core. Loggers
// built on it see configuration changes made after their creation.
type swappableCore struct {
	inner atomic.Pointer[zapcore.Core]
}

func (s *swappableCore) get() zapcore.Core { return *s.inner.Load() }

func (s *swappableCore) Enabled(l zapcore.Level) bool        { return s.get().Enabled(l) }
func (s *swappableCore) With(f []zapcore.Field) zapcore.Core { return s.get().With(f) }
func (s *swappableCore) Sync() error                         { return s.get().Sync() }

func (s *swappableCore) Write(e zapcore.Entry, f []zapcore.Field) error {
	return s.get().Write(e, f)
}

func (s *swappableCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if s.Enabled(e.Level) {
		return ce.AddCore(e, s)
	}
	return ce
}

var root = newRoot()

type rootLogger struct {
	core *swappableCore
	base *zap.SugaredLogger
}

func newRoot() *rootLogger {
	core := &swappableCore{}
	fallback := zapcore.Core(zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stdout),
		zap.DebugLevel,
	))
	core.inner.Store(&fallback)
	return &rootLogger{
		core: core,
		base: zap.New(core, zap.AddCaller()).Sugar(),
	}
}

// Init configures the process-wide sinks: a rotated JSON file at Info level
// plus console output, human-readable unless isProd is set.
func Init(logFilePath string, isProd bool) {
	rotator := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig)
	fileCore := zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator), zap.InfoLevel)

	var consoleEncoder zapcore.Encoder
	if isProd {
		consoleEncoder = jsonEncoder
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	consoleCore := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), zap.DebugLevel)

	core := zapcore.NewTee(fileCore, consoleCore)
	root.core.inner.Store(&core)
}

// Named returns a child logger scoped to the given component name. Safe to
// call before Init.
func Named(name string) *zap.SugaredLogger {
	return root.base.Named(name)
}

func Sync() {
	_ = root.base.Sync()
}
