// Package logging provides structured logging for brokerstats components.
//
// Loggers are cheap immutable views: With, Named and WithRequestID return
// children that share the parent's output and level.
package logging

import (
	"encoding/json"
	"io"
	"os"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	// LevelDebug is for detailed debugging information.
	LevelDebug Level = iota
	// LevelInfo is for general information messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level. Unknown strings map to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format represents the output format for log messages.
type Format int

const (
	// FormatJSON outputs logs as JSON objects.
	FormatJSON Format = iota
	// FormatText outputs logs as human-readable text.
	FormatText
)

// ParseFormat converts a string to a Format. Unknown strings map to FormatJSON.
func ParseFormat(s string) Format {
	switch s {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		return FormatJSON
	}
}

// Entry represents a single log entry.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	RequestID string         `json:"requestId,omitempty"`
	File      string         `json:"file,omitempty"`
	Line      int            `json:"line,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// sink is shared by a logger and all of its children so that concurrent
// writers never interleave partial lines.
type sink struct {
	mu  sync.Mutex
	out io.Writer
}

func (s *sink) write(p []byte) {
	s.mu.Lock()
	_, _ = s.out.Write(p)
	s.mu.Unlock()
}

// Logger provides structured logging with configurable levels and formats.
type Logger struct {
	sink *sink

	mu        sync.Mutex
	level     Level
	format    Format
	addCaller bool
	component string
	requestID string
	fields    map[string]any
}

// Config holds configuration for a Logger.
type Config struct {
	Level     Level
	Format    Format
	Output    io.Writer
	AddCaller bool
}

// New creates a new Logger with the given configuration.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	return &Logger{
		sink:      &sink{out: out},
		level:     cfg.Level,
		format:    cfg.Format,
		addCaller: cfg.AddCaller,
		fields:    make(map[string]any),
	}
}

// DefaultLogger returns a JSON logger at info level writing to stderr.
func DefaultLogger() *Logger {
	return New(Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: os.Stderr,
	})
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return New(Config{Level: LevelError + 1, Output: io.Discard})
}

// SetLevel updates the minimum logging level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level.
func (l *Logger) GetLevel() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.GetLevel()
}

func (l *Logger) clone(mutate func(*Logger)) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	child := &Logger{
		sink:      l.sink,
		level:     l.level,
		format:    l.format,
		addCaller: l.addCaller,
		component: l.component,
		requestID: l.requestID,
		fields:    make(map[string]any, len(l.fields)),
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	mutate(child)
	return child
}

// With returns a new Logger with the given fields added.
func (l *Logger) With(fields map[string]any) *Logger {
	return l.clone(func(c *Logger) {
		for k, v := range fields {
			c.fields[k] = v
		}
	})
}

// Named returns a child logger for a sub-component. Names nest with a dot,
// so Named("stats").Named("reporter") logs as "stats.reporter".
func (l *Logger) Named(name string) *Logger {
	return l.clone(func(c *Logger) {
		if c.component == "" {
			c.component = name
		} else {
			c.component = c.component + "." + name
		}
	})
}

// WithRequestID returns a new Logger that tags every entry with id.
func (l *Logger) WithRequestID(id string) *Logger {
	return l.clone(func(c *Logger) {
		c.requestID = id
	})
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.log(LevelDebug, msg, nil)
}

// Debugf logs a debug message with fields.
func (l *Logger) Debugf(msg string, fields map[string]any) {
	l.log(LevelDebug, msg, fields)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.log(LevelInfo, msg, nil)
}

// Infof logs an info message with fields.
func (l *Logger) Infof(msg string, fields map[string]any) {
	l.log(LevelInfo, msg, fields)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.log(LevelWarn, msg, nil)
}

// Warnf logs a warning message with fields.
func (l *Logger) Warnf(msg string, fields map[string]any) {
	l.log(LevelWarn, msg, fields)
}

// Error logs an error message.
func (l *Logger) Error(msg string) {
	l.log(LevelError, msg, nil)
}

// Errorf logs an error message with fields.
func (l *Logger) Errorf(msg string, fields map[string]any) {
	l.log(LevelError, msg, fields)
}

func (l *Logger) log(level Level, msg string, extraFields map[string]any) {
	l.mu.Lock()
	currentLevel := l.level
	format := l.format
	addCaller := l.addCaller
	entry := Entry{
		Level:     level.String(),
		Component: l.component,
		Message:   msg,
		RequestID: l.requestID,
	}
	if len(l.fields) > 0 || len(extraFields) > 0 {
		entry.Fields = make(map[string]any, len(l.fields)+len(extraFields))
		for k, v := range l.fields {
			entry.Fields[k] = v
		}
	}
	l.mu.Unlock()

	if level < currentLevel {
		return
	}

	entry.Timestamp = time.Now().UTC()
	for k, v := range extraFields {
		entry.Fields[k] = v
	}

	if addCaller {
		if _, file, line, ok := runtime.Caller(2); ok {
			entry.File = file
			entry.Line = line
		}
	}

	var data []byte
	switch format {
	case FormatText:
		data = formatText(entry)
	default:
		data, _ = json.Marshal(entry)
		data = append(data, '\n')
	}
	l.sink.write(data)
}

func formatText(e Entry) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, e.Timestamp.Format(time.RFC3339)...)
	buf = append(buf, " ["...)
	buf = append(buf, e.Level...)
	buf = append(buf, "] "...)
	if e.Component != "" {
		buf = append(buf, e.Component...)
		buf = append(buf, ": "...)
	}
	buf = append(buf, e.Message...)

	if e.RequestID != "" {
		buf = append(buf, " requestId="...)
		buf = append(buf, e.RequestID...)
	}
	if e.File != "" {
		buf = append(buf, " file="...)
		buf = append(buf, e.File...)
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, int64(e.Line), 10)
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		buf = append(buf, ' ')
		buf = append(buf, k...)
		buf = append(buf, '=')
		switch val := e.Fields[k].(type) {
		case string:
			buf = append(buf, val...)
		default:
			data, _ := json.Marshal(val)
			buf = append(buf, data...)
		}
	}
	buf = append(buf, '\n')
	return buf
}
