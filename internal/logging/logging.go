// Package logging builds the process wide zap logger.
package logging

import (
	"os"
	"strings"

	"github.com/ustoz-edu/apiserver/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a JSON logger writing to stdout and, when cfg.File is set, to
// a rotating log file.
func New(cfg config.LogConfig) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		CallerKey:      "file",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00"),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	writes := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if strings.TrimSpace(cfg.File) != "" {
		writes = append(writes, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    128, // MB
			MaxAge:     30,  // days
			MaxBackups: 30,
		}))
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(writes...),
		zap.NewAtomicLevelAt(ParseLevel(cfg.Level)),
	)

	return zap.New(core, zap.AddCaller(), zap.Fields(zap.String("app", "ustoz-apiserver")))
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(raw string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "d", "dbg", "debug":
		return zap.DebugLevel
	case "w", "wrn", "warn", "warning":
		return zap.WarnLevel
	case "e", "err", "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
