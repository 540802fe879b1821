package hibiki

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LogLevel represents the severity level of log messages
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Err creates an error field
func Err(err error) Field {
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger is the structured logging interface used throughout the
// library. Embedders can plug in their own implementation; the console
// logger below is the default.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// ConsoleLogger implements Logger with leveled, colorized console output
type ConsoleLogger struct {
	level  LogLevel
	output io.Writer
	fields map[string]interface{}
	mu     sync.Mutex
}

var levelColors = map[LogLevel]*color.Color{
	DebugLevel: color.New(color.FgHiBlack),
	InfoLevel:  color.New(color.FgCyan),
	WarnLevel:  color.New(color.FgYellow),
	ErrorLevel: color.New(color.FgRed, color.Bold),
}

// NewConsoleLogger creates a console logger writing to stderr at the
// given level. Level strings follow the usual debug/info/warn/error set.
func NewConsoleLogger(level string) *ConsoleLogger {
	return &ConsoleLogger{
		level:  parseLogLevel(level),
		output: os.Stderr,
		fields: make(map[string]interface{}),
	}
}

// parseLogLevel converts a string log level to LogLevel
func parseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Debug logs a debug message
func (l *ConsoleLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields...) }

// Info logs an info message
func (l *ConsoleLogger) Info(msg string, fields ...Field) { l.log(InfoLevel, msg, fields...) }

// Warn logs a warning message
func (l *ConsoleLogger) Warn(msg string, fields ...Field) { l.log(WarnLevel, msg, fields...) }

// Error logs an error message
func (l *ConsoleLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields...) }

// With creates a new logger with additional persistent fields
func (l *ConsoleLogger) With(fields ...Field) Logger {
	l.mu.Lock()
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	l.mu.Unlock()

	for _, field := range fields {
		newFields[field.Key] = field.Value
	}

	return &ConsoleLogger{
		level:  l.level,
		output: l.output,
		fields: newFields,
	}
}

func (l *ConsoleLogger) log(level LogLevel, msg string, fields ...Field) {
	if level < l.level {
		return
	}

	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}

	var builder strings.Builder
	builder.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	builder.WriteString(" ")
	builder.WriteString(levelColors[level].Sprintf("[%s]", level))
	builder.WriteString(" ")
	builder.WriteString(msg)

	if len(merged) > 0 {
		keys := make([]string, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		builder.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				builder.WriteString(", ")
			}
			builder.WriteString(k)
			builder.WriteString("=")
			builder.WriteString(fmt.Sprintf("%v", merged[k]))
		}
		builder.WriteString("}")
	}
	builder.WriteString("\n")

	l.mu.Lock()
	l.output.Write([]byte(builder.String()))
	l.mu.Unlock()
}

// NullLogger creates a logger that discards all output (useful for testing)
func NullLogger() Logger {
	return &ConsoleLogger{
		level:  ErrorLevel + 1,
		output: io.Discard,
		fields: make(map[string]interface{}),
	}
}
