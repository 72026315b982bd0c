// Package logger provides the structured logger of the operator surfaces
// (HTTP access log and skillctl) and builds the *slog.Logger handed to
// infrastructure components.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Slog maps the level onto log/slog.
func (l Level) Slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel parses a string into a Level. Unknown strings mean info.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format selects the output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

func String(key, value string) Field          { return Field{Key: key, Value: value} }
func Int(key string, value int) Field         { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field     { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Err creates an error field.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Entry is one encoded log line.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Caller    string         `json:"caller,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Logger writes structured entries to an io.Writer.
type Logger struct {
	mu        *sync.Mutex
	output    io.Writer
	level     Level
	format    Format
	fields    []Field
	addCaller bool
	now       func() time.Time
}

// Options configures the logger.
type Options struct {
	Output    io.Writer
	Level     Level
	Format    Format
	AddCaller bool
}

// New creates a new Logger with the given options.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	return &Logger{
		mu:        &sync.Mutex{},
		output:    opts.Output,
		level:     opts.Level,
		format:    opts.Format,
		addCaller: opts.AddCaller,
		now:       time.Now,
	}
}

// Default creates an info-level JSON logger on stderr.
func Default() *Logger {
	return New(Options{Level: LevelInfo})
}

// With returns a logger that adds fields to every entry. The copy shares
// the output lock with its parent.
func (l *Logger) With(fields ...Field) *Logger {
	child := *l
	child.fields = make([]Field, 0, len(l.fields)+len(fields))
	child.fields = append(child.fields, l.fields...)
	child.fields = append(child.fields, fields...)
	return &child
}

func (l *Logger) log(level Level, msg string, fields ...Field) {
	if level < l.level {
		return
	}

	entry := Entry{
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
	}
	if l.addCaller {
		if _, file, line, ok := runtime.Caller(2); ok {
			if idx := strings.LastIndex(file, "/"); idx >= 0 {
				file = file[idx+1:]
			}
			entry.Caller = fmt.Sprintf("%s:%d", file, line)
		}
	}
	if n := len(l.fields) + len(fields); n > 0 {
		entry.Fields = make(map[string]any, n)
		for _, f := range l.fields {
			entry.Fields[f.Key] = f.Value
		}
		for _, f := range fields {
			entry.Fields[f.Key] = f.Value
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == FormatText {
		fmt.Fprintln(l.output, entry.text())
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.output, "%s [%s] %s\n", entry.Timestamp, entry.Level, msg)
		return
	}
	l.output.Write(append(data, '\n'))
}

func (e Entry) text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", e.Timestamp, e.Level, e.Message)
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields...) }

// ══════════════════════════════════════════════════════════════════════════════
// SLOG
// ══════════════════════════════════════════════════════════════════════════════

// NewSlog builds the *slog.Logger used by infrastructure components from the
// same level and format settings.
func NewSlog(w io.Writer, level Level, format Format) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level.Slog()}
	if format == FormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

type ctxKey struct{}

// WithContext returns a new context with the logger attached.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the logger from context, or returns a default logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return Default()
}

// RequestIDKey is the field key for request tracing.
const RequestIDKey = "request_id"

// WithRequestID returns a logger with request ID field added.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With(String(RequestIDKey, requestID))
}

// Engine field helpers.
func ActorID(id string) Field       { return String("actor_id", id) }
func SkillID(id string) Field       { return String("skill_id", id) }
func TreeName(name string) Field    { return String("tree", name) }
func GroupKey(key string) Field     { return String("group_key", key) }
func XPAmount(xp int64) Field       { return Int64("xp_amount", xp) }
func Component(name string) Field   { return String("component", name) }
func Operation(name string) Field   { return String("operation", name) }
func Latency(d time.Duration) Field { return Duration("latency", d) }
