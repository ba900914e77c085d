// Package logger is the bot's structured JSON logger. The scoped helpers
// attach the identifiers every log line about a user, flow, team or stage
// should carry.
package logger

import (
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.Logger
}

// New builds a JSON logger on stdout. environment is attached to every line.
func New(level, environment string) (*Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(os.Stdout), parseLogLevel(level))
	return FromCore(core).With(zap.String("env", environment)), nil
}

// FromCore wraps an existing core. Tests pass an observer core.
func FromCore(core zapcore.Core) *Logger {
	return &Logger{Logger: zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))}
}

func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Component names the subsystem, e.g. "tgbot" or "reminders".
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

func (l *Logger) ForUser(telegramID int64) *Logger {
	return l.With(zap.Int64("telegram_id", telegramID))
}

// ForFlow tags the conversation flow and, when known, its step.
func (l *Logger) ForFlow(flow, step string) *Logger {
	fields := []zap.Field{zap.String("flow", flow)}
	if step != "" {
		fields = append(fields, zap.String("step", step))
	}
	return l.With(fields...)
}

func (l *Logger) ForTeam(id uuid.UUID) *Logger {
	return l.With(zap.String("team_id", id.String()))
}

func (l *Logger) ForStage(id uuid.UUID) *Logger {
	return l.With(zap.String("stage_id", id.String()))
}

func (l *Logger) WithError(err error) *Logger {
	return l.With(zap.Error(err))
}
