// Package logger is the process-wide structured logger for the host side:
// the simulator and its command console. The motion core reaches it
// through the core debug writer. It writes to the console and, when a
// file is configured, to a size-rotated log file.
package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Logger *zap.Logger
)

type LogLevel int8

const (
	DebugLevel LogLevel = iota - 1
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Options configures InitLogger. A zero MaxSize keeps lumberjack's 100MB default.
type Options struct {
	Level        LogLevel
	File         string // empty: console only
	SupportColor bool
	MaxSize      int // megabytes
	MaxBackups   int
	MaxAge       int // days
}

// ParseLevel maps "debug", "info", "warn" and "error" to a LogLevel
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

func newEncoder(color bool) zapcore.Encoder {
	encodeLevel := zapcore.CapitalLevelEncoder
	if color {
		encodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:       "message",
		LevelKey:         "level",
		TimeKey:          "time",
		CallerKey:        "caller",
		EncodeLevel:      encodeLevel,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: " ",
	})
}

func newFileCore(level zapcore.Level, opts Options) zapcore.Core {
	logFile := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAge,
		LocalTime:  true,
	}
	// Never colorize the file
	return zapcore.NewCore(newEncoder(false), zapcore.AddSync(logFile), level)
}

// InitLogger installs the global logger
func InitLogger(opts Options) {
	level := zapcore.Level(opts.Level)
	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(opts.SupportColor), zapcore.Lock(os.Stdout), level),
	}
	if opts.File != "" {
		cores = append(cores, newFileCore(level, opts))
	}
	Logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
}

// SetLogger replaces the global logger. Tests install an observer here.
func SetLogger(l *zap.Logger) {
	Logger = l
}

func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Infof(format, args...)
	}
}

func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Debugf(format, args...)
	}
}

func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Warnf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Errorf(format, args...)
	}
}

// Infow logs with structured key/value pairs
func Infow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Infow(msg, keysAndValues...)
	}
}

// Warnw logs with structured key/value pairs
func Warnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		Logger.Sugar().Warnw(msg, keysAndValues...)
	}
}

func Fatalf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	if Logger != nil {
		Logger.Error(message)
		_ = Logger.Sync()
	} else {
		fmt.Fprintln(os.Stderr, message)
	}
	os.Exit(1)
}
