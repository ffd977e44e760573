// Package logger provides component-tagged structured logging.
//
// Every entry carries a component name ("store", "remote", "telegram", ...)
// and an optional map of fields. Output goes through a zap console core on
// stderr.
package logger

import (
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  = newLogger(zapcore.AddSync(os.Stderr))
)

func newLogger(ws zapcore.WriteSyncer) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		NameKey:      "component",
		MessageKey:   "msg",
		LineEnding:   zapcore.DefaultLineEnding,
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.CapitalLevelEncoder,
		EncodeName:   zapcore.FullNameEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), ws, level)
	return zap.New(core)
}

// SetOutput redirects log output, mainly for tests and the console command.
func SetOutput(ws zapcore.WriteSyncer) {
	mu.Lock()
	defer mu.Unlock()
	base = newLogger(ws)
}

func SetLevel(l LogLevel) {
	level.SetLevel(toZap(l))
}

func GetLevel() LogLevel {
	switch level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel:
		return ERROR
	default:
		return INFO
	}
}

func toZap(l LogLevel) zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func logf(l LogLevel, component, message string, fields map[string]any) {
	mu.RLock()
	lg := base
	mu.RUnlock()

	if component != "" {
		lg = lg.Named(component)
	}

	// Sorted so identical field sets render identically.
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	zf := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		zf = append(zf, zap.Any(k, fields[k]))
	}

	switch l {
	case DEBUG:
		lg.Debug(message, zf...)
	case WARN:
		lg.Warn(message, zf...)
	case ERROR:
		lg.Error(message, zf...)
	default:
		lg.Info(message, zf...)
	}
}

func Debug(message string) { logf(DEBUG, "", message, nil) }
func Info(message string)  { logf(INFO, "", message, nil) }
func Warn(message string)  { logf(WARN, "", message, nil) }
func Error(message string) { logf(ERROR, "", message, nil) }

func DebugC(component, message string) { logf(DEBUG, component, message, nil) }
func InfoC(component, message string)  { logf(INFO, component, message, nil) }
func WarnC(component, message string)  { logf(WARN, component, message, nil) }
func ErrorC(component, message string) { logf(ERROR, component, message, nil) }

func DebugCF(component, message string, fields map[string]any) {
	logf(DEBUG, component, message, fields)
}

func InfoCF(component, message string, fields map[string]any) {
	logf(INFO, component, message, fields)
}

func WarnCF(component, message string, fields map[string]any) {
	logf(WARN, component, message, fields)
}

func ErrorCF(component, message string, fields map[string]any) {
	logf(ERROR, component, message, fields)
}

// Sync flushes buffered entries. Call before exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}
