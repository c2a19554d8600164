// Package logging provides structured logging with trace/event context.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys used to carry logging fields.
type ContextKey string

const (
	// TraceIDKey is the context key for a request/task trace id.
	TraceIDKey ContextKey = "trace_id"
	// EventIDKey is the context key for the event an operation is acting on.
	EventIDKey ContextKey = "event_id"
	// SourceIDKey is the context key for the source a fetch/extract task belongs to.
	SourceIDKey ContextKey = "source_id"
)

// Logger wraps logrus.Logger with service-scoped fields.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger for the given service, level, and format ("json" or "text").
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv builds a Logger from LOG_LEVEL/LOG_FORMAT/APP_ENV, defaulting to
// info/json, and to the text formatter when APP_ENV=local.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
		if strings.EqualFold(strings.TrimSpace(os.Getenv("APP_ENV")), "local") {
			format = "text"
		}
	}
	return New(service, level, format)
}

// WithContext returns a logrus.Entry enriched with any trace/event/source id
// found on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if v := ctx.Value(TraceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(EventIDKey); v != nil {
		entry = entry.WithField("event_id", v)
	}
	if v := ctx.Value(SourceIDKey); v != nil {
		entry = entry.WithField("source_id", v)
	}
	return entry
}

// WithTraceID returns an entry carrying a trace id, for code paths without a
// context value already set (e.g. at task dequeue).
func (l *Logger) WithTraceID(traceID string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"service": l.service, "trace_id": traceID})
}

// ContextWithTraceID returns a child context carrying traceID for downstream
// WithContext calls.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// ContextWithEventID returns a child context carrying eventID.
func ContextWithEventID(ctx context.Context, eventID int64) context.Context {
	return context.WithValue(ctx, EventIDKey, eventID)
}
