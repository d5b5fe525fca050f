package store

import (
	"io"
	"log/slog"

	"github.com/hupe1980/refdb/internal/fs"
)

type options struct {
	fs     fs.FileSystem
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*options)

// WithFileSystem sets the file system used to open the volume file.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fs = fsys
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		fs:     fs.Default,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
