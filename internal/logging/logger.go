package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level задаёт минимальный уровень сообщений, которые попадут в лог.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel преобразует строковое значение из конфигурации в Level.
// Неизвестное значение даёт info.
func ParseLevel(value string) Level {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(value))]; ok {
		return lvl
	}
	return LevelInfo
}

func (lvl Level) String() string {
	switch lvl {
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

// sink общий для логгера и всех его именованных потомков.
type sink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	now    func() time.Time
}

// Logger представляет потокобезопасный логгер с уровнями. Потомки из Named пишут в тот же приёмник
// с префиксом компонента.
type Logger struct {
	out       *sink
	minLevel  Level
	component string
}

// New открывает лог-файл на дозапись. Пустой путь означает stderr.
func New(path string, level Level) (*Logger, error) {
	if path == "" {
		return NewWriter(os.Stderr, level), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for %s: %w", path, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return &Logger{out: &sink{w: file, closer: file, now: time.Now}, minLevel: level}, nil
}

// NewWriter создаёт логгер поверх произвольного writer (stdout dev-сервера, буфер в тестах).
func NewWriter(w io.Writer, level Level) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{out: &sink{w: w, now: time.Now}, minLevel: level}
}

// Discard возвращает логгер, который ничего не пишет.
func Discard() *Logger {
	return NewWriter(io.Discard, LevelError)
}

// Named возвращает логгер компонента. Вложенные имена склеиваются через точку.
func (l *Logger) Named(component string) *Logger {
	if l == nil {
		return nil
	}
	component = strings.TrimSpace(component)
	if l.component != "" && component != "" {
		component = l.component + "." + component
	} else if component == "" {
		component = l.component
	}
	return &Logger{out: l.out, minLevel: l.minLevel, component: component}
}

// Close закрывает файл лога. Для логгеров поверх writer ничего не делает.
func (l *Logger) Close() error {
	if l == nil || l.out == nil || l.out.closer == nil {
		return nil
	}
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	closer := l.out.closer
	l.out.closer = nil
	l.out.w = io.Discard
	return closer.Close()
}

func (l *Logger) Debugf(format string, args ...any) {
	l.write(LevelDebug, format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.write(LevelInfo, format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.write(LevelWarn, format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.write(LevelError, format, args...)
}

// Enabled сообщает, попадёт ли в лог сообщение уровня level.
func (l *Logger) Enabled(level Level) bool {
	return l != nil && l.out != nil && level >= l.minLevel
}

func (l *Logger) write(level Level, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	var b strings.Builder
	b.WriteString(l.out.now().UTC().Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("] ")
	if l.component != "" {
		b.WriteString(l.component)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, format, args...)
	b.WriteByte('\n')

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	io.WriteString(l.out.w, b.String())
}

// Level возвращает минимальный уровень логгера.
func (l *Logger) Level() Level {
	if l == nil {
		return LevelInfo
	}
	return l.minLevel
}

// MaskToken оставляет только начало токена.
func MaskToken(token string) string {
	token = strings.TrimSpace(token)
	if len(token) <= 10 {
		return strings.Repeat("*", len(token))
	}
	return token[:10] + "..."
}

type loggerKey struct{}

// WithContext кладёт логгер в контекст.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext достаёт логгер из контекста.
func FromContext(ctx context.Context) (*Logger, bool) {
	logger, ok := ctx.Value(loggerKey{}).(*Logger)
	return logger, ok && logger != nil
}
