package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// StdLogger implements the ports.Logger interface on top of the standard log package.
// It writes either human readable lines or one JSON object per line.
type StdLogger struct {
	mu     sync.Mutex
	logger *log.Logger
	out    io.Writer
	level  LogLevel
	format Format
	now    func() time.Time
}

// LogLevel defines the logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
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

// ParseLevel converts a string level to LogLevel.
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo // Default to Info
	}
}

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat converts a string to Format, defaulting to text.
func ParseFormat(s string) Format {
	if strings.EqualFold(s, string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}

// entry is one JSON log line.
type entry struct {
	Time    time.Time              `json:"time"`
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Error   string                 `json:"error,omitempty"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// NewStdLogger creates a new text logger writing to os.Stderr.
func NewStdLogger(level LogLevel) *StdLogger {
	return New(level, FormatText, os.Stderr)
}

// New creates a logger with the given format. A nil writer selects os.Stderr.
func New(level LogLevel, format Format, out io.Writer) *StdLogger {
	if out == nil {
		out = os.Stderr
	}
	return &StdLogger{
		logger: log.New(out, "", log.LstdFlags|log.Lmicroseconds),
		out:    out,
		level:  level,
		format: format,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *StdLogger) log(ctx context.Context, level LogLevel, msg string, err error, fields ...map[string]interface{}) {
	if level < l.level {
		return
	}

	var merged map[string]interface{}
	for _, f := range fields {
		for k, v := range f {
			if merged == nil {
				merged = make(map[string]interface{}, len(f))
			}
			merged[k] = v
		}
	}

	if l.format == FormatJSON {
		l.writeJSON(level, msg, err, merged)
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", level.String(), msg))
	if err != nil {
		sb.WriteString(fmt.Sprintf(" | error: %v", err))
	}
	if len(merged) > 0 {
		keys := make([]string, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" |")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf(" %s=%v", k, merged[k]))
		}
	}
	l.logger.Println(sb.String())
}

func (l *StdLogger) writeJSON(level LogLevel, msg string, err error, fields map[string]interface{}) {
	e := entry{Time: l.now(), Level: level.String(), Message: msg, Fields: fields}
	if err != nil {
		e.Error = err.Error()
	}

	data, mErr := json.Marshal(e)
	if mErr != nil {
		data, _ = json.Marshal(entry{Time: e.Time, Level: e.Level, Message: msg, Error: fmt.Sprintf("marshal log fields: %v", mErr)})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(data, '\n'))
}

// Debug logs a message at Debug level.
func (l *StdLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, LevelDebug, msg, nil, fields...)
}

// Info logs a message at Info level.
func (l *StdLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, LevelInfo, msg, nil, fields...)
}

// Warn logs a message at Warning level.
func (l *StdLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, LevelWarn, msg, nil, fields...)
}

// Error logs an error message at Error level.
func (l *StdLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.log(ctx, LevelError, msg, err, fields...)
}
