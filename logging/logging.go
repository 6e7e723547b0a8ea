// Package logging owns the two named loggers of the service and the runtime
// control of their levels.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	RequestLogger = "request-logger"
	TodoLogger    = "todo-logger"

	// RequestField carries the request number on every entry.
	RequestField = "reqId"
)

var (
	ErrUnknownLogger = errors.New("unknown logger")
	ErrInvalidLevel  = errors.New("invalid level")
)

var logFiles = map[string]string{
	RequestLogger: "requests.log",
	TodoLogger:    "todos.log",
}

// Registry keeps loggers keyed by name. Levels are read and changed through
// the registry only.
type Registry struct {
	loggers map[string]*log.Logger
	closers []io.Closer
}

// NewRegistry wraps already configured loggers.
func NewRegistry(loggers map[string]*log.Logger) *Registry {
	return &Registry{loggers: loggers}
}

// Open creates both loggers. Each writes to its own file inside dir, truncated
// on open, and to mirror. Initial level is INFO.
func Open(dir string, mirror io.Writer) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	r := &Registry{loggers: make(map[string]*log.Logger, len(logFiles))}
	for name, file := range logFiles {
		f, err := os.OpenFile(filepath.Join(dir, file), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o664)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("open %s: %w", file, err)
		}
		r.closers = append(r.closers, f)

		var out io.Writer = f
		if mirror != nil {
			out = io.MultiWriter(mirror, f)
		}
		r.loggers[name] = New(out)
	}
	return r, nil
}

// New returns a logger using the line format at INFO level.
func New(out io.Writer) *log.Logger {
	l := log.New()
	l.SetOutput(out)
	l.SetFormatter(&LineFormatter{})
	l.SetLevel(log.InfoLevel)
	return l
}

// Logger returns the logger registered under name.
func (r *Registry) Logger(name string) (*log.Logger, error) {
	l, ok := r.loggers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLogger, name)
	}
	return l, nil
}

// MustLogger is Logger for names known at compile time.
func (r *Registry) MustLogger(name string) *log.Logger {
	l, err := r.Logger(name)
	if err != nil {
		panic(err)
	}
	return l
}

// Level reports the current level of the named logger in upper case.
func (r *Registry) Level(name string) (string, error) {
	l, err := r.Logger(name)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(l.GetLevel().String()), nil
}

// SetLevel changes the level of the named logger. Only INFO, DEBUG and ERROR
// are accepted.
func (r *Registry) SetLevel(name, level string) error {
	l, err := r.Logger(name)
	if err != nil {
		return err
	}
	lvl, ok := ParseLevel(level)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidLevel, level)
	}
	l.SetLevel(lvl)
	return nil
}

// Close releases the log files.
func (r *Registry) Close() error {
	var err error
	for _, c := range r.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	r.closers = nil
	return err
}

// ParseLevel maps the externally visible level names to logrus levels.
func ParseLevel(s string) (log.Level, bool) {
	switch s {
	case "INFO":
		return log.InfoLevel, true
	case "DEBUG":
		return log.DebugLevel, true
	case "ERROR":
		return log.ErrorLevel, true
	}
	return 0, false
}

type requestKey struct{}

// WithRequest stores the request number used to correlate log lines.
func WithRequest(ctx context.Context, n uint64) context.Context {
	return context.WithValue(ctx, requestKey{}, n)
}

// RequestNumber returns the request number stored in ctx, or 0.
func RequestNumber(ctx context.Context) uint64 {
	n, _ := ctx.Value(requestKey{}).(uint64)
	return n
}

// Entry returns an entry of l tagged with the request number found in ctx.
func Entry(ctx context.Context, l *log.Logger) *log.Entry {
	return l.WithContext(ctx).WithField(RequestField, RequestNumber(ctx))
}
