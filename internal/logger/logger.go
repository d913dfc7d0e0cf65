// Package logger wraps logrus so call sites never import it directly.
package logger

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey string

const fieldsKey ctxKey = "logger_fields"

var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	base.SetLevel(logrus.InfoLevel)
	base.SetOutput(os.Stdout)
}

// Configure wires the rotating file sink and level requested at startup.
func Configure(level string, logFile string, maxSizeMB, maxBackups, maxAgeDays int) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		base.SetLevel(lvl)
	}
	if logFile == "" {
		return
	}
	writer := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	base.SetOutput(io.MultiWriter(os.Stdout, writer))
}

// GetLogger returns a logrus entry carrying any fields attached to ctx.
func GetLogger(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return logrus.NewEntry(base)
	}
	if fields, ok := ctx.Value(fieldsKey).(logrus.Fields); ok {
		return base.WithFields(fields)
	}
	return logrus.NewEntry(base)
}

// WithField attaches a single field to ctx, merging with any existing fields.
func WithField(ctx context.Context, key string, value interface{}) context.Context {
	fields := logrus.Fields{}
	if existing, ok := ctx.Value(fieldsKey).(logrus.Fields); ok {
		for k, v := range existing {
			fields[k] = v
		}
	}
	fields[key] = value
	return context.WithValue(ctx, fieldsKey, fields)
}

// WithFields attaches multiple fields at once.
func WithFields(ctx context.Context, fields map[string]interface{}) context.Context {
	for k, v := range fields {
		ctx = WithField(ctx, k, v)
	}
	return ctx
}

// CloneContext copies the logger fields of src onto a background context,
// used when a goroutine outlives the HTTP request context it was spawned from.
func CloneContext(src context.Context) context.Context {
	ctx := context.Background()
	if fields, ok := src.Value(fieldsKey).(logrus.Fields); ok {
		ctx = context.WithValue(ctx, fieldsKey, fields)
	}
	return ctx
}

func Info(ctx context.Context, args ...interface{})  { GetLogger(ctx).Info(args...) }
func Infof(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Infof(format, args...)
}
func Warn(ctx context.Context, args ...interface{}) { GetLogger(ctx).Warn(args...) }
func Warnf(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Warnf(format, args...)
}
func Error(ctx context.Context, args ...interface{}) { GetLogger(ctx).Error(args...) }
func Errorf(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Errorf(format, args...)
}

// ErrorWithFields logs an error enriched with ad-hoc fields without mutating ctx.
func ErrorWithFields(ctx context.Context, msg string, fields map[string]interface{}) {
	GetLogger(ctx).WithFields(fields).Error(msg)
}

// WarnWithFields logs a warning enriched with ad-hoc fields without mutating ctx.
func WarnWithFields(ctx context.Context, msg string, fields map[string]interface{}) {
	GetLogger(ctx).WithFields(fields).Warn(msg)
}
