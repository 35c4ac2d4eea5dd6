package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

type Field = zap.Field

func StringField(key, value string) Field { return zap.String(key, value) }
func ErrorField(key string, err error) Field { return zap.NamedError(key, err) }
func AnyField(key string, value interface{}) Field { return zap.Any(key, value) }
func Int64Field(key string, value int64) Field { return zap.Int64(key, value) }
func IntField(key string, value int) Field { return zap.Int(key, value) }
func DurationField(key string, value time.Duration) Field { return zap.Duration(key, value) }
func TimeField(key string, value time.Time) Field { return zap.Time(key, value) }

// UserField logs an abbreviated user identity instead of the full id.
func UserField(id uuid.UUID) Field {
	s := id.String()
	return zap.String("user", "user_"+s[:8])
}

// NewLogger writes info and below to info.log and warnings and above to error.log inside dir.
func NewLogger(dir string) (*zap.Logger, func(), error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	infoFile, err := os.OpenFile(filepath.Join(dir, "info.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open info log file: %w", err)
	}

	errorFile, err := os.OpenFile(filepath.Join(dir, "error.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		infoFile.Close()
		return nil, nil, fmt.Errorf("failed to open error log file: %w", err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	infoCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(infoFile),
		zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lvl <= zapcore.InfoLevel
		}),
	)

	errorCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(errorFile),
		zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lvl >= zapcore.WarnLevel
		}),
	)

	core := zapcore.NewTee(infoCore, errorCore)

	logger := zap.New(core, zap.AddCaller())

	cleanup := func() {
		_ = logger.Sync()
		infoFile.Close()
		errorFile.Close()
	}

	return logger, cleanup, nil
}
