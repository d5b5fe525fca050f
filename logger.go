package refdb

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/refdb/model"
)

// Logger wraps slog.Logger with refdb-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithEntity adds an entity type field to the logger.
func (l *Logger) WithEntity(entityType string) *Logger {
	return &Logger{
		Logger: l.Logger.With("entity", entityType),
	}
}

// WithReference adds a reference field to the logger.
func (l *Logger) WithReference(ref model.Reference) *Logger {
	return &Logger{
		Logger: l.Logger.With("ref", ref.String()),
	}
}

// LogSave logs a save operation.
func (l *Logger) LogSave(ctx context.Context, entityType string, ref model.Reference, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"entity", entityType,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "save completed",
			"entity", entityType,
			"ref", ref.String(),
		)
	}
}

// LogSaveAll logs a batch save. saved counts the records stored before a
// failure.
func (l *Logger) LogSaveAll(ctx context.Context, entityType string, saved int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "batch save failed",
			"entity", entityType,
			"saved", saved,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "batch save completed",
		"entity", entityType,
		"saved", saved,
	)
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, entityType string, ref model.Reference, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"entity", entityType,
			"ref", ref.String(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"entity", entityType,
			"ref", ref.String(),
		)
	}
}

// LogScan logs a query scan.
func (l *Logger) LogScan(ctx context.Context, entityType string, criteria string, results int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "scan failed",
			"entity", entityType,
			"criteria", criteria,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "scan completed",
			"entity", entityType,
			"criteria", criteria,
			"results", results,
		)
	}
}

// LogBackup logs a backup or restore.
func (l *Logger) LogBackup(ctx context.Context, op, name string, files int, err error) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed",
			"backup", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, op+" completed",
			"backup", name,
			"files", files,
		)
	}
}

// LogReplay logs a journal replay.
func (l *Logger) LogReplay(ctx context.Context, path string, entriesReplayed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "journal replay failed",
			"path", path,
			"entries_replayed", entriesReplayed,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "journal replay completed",
			"path", path,
			"entries_replayed", entriesReplayed,
		)
	}
}
