package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// Format 指定日志行的编码格式。
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var (
	levelVar slog.LevelVar

	mu      sync.RWMutex
	format  = FormatText
	outputs = []io.Writer{os.Stdout}
	base    *slog.Logger
)

func init() {
	levelVar.Set(slog.LevelInfo)
	base = build()
}

// build 根据当前格式与输出目标组装 logger，调用方需持有 mu 或处于 init 阶段。
func build() *slog.Logger {
	opts := &slog.HandlerOptions{Level: &levelVar}
	handlers := make([]slog.Handler, 0, len(outputs))
	for _, w := range outputs {
		if w == nil {
			continue
		}
		if format == FormatJSON {
			handlers = append(handlers, slog.NewJSONHandler(w, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(w, opts))
		}
	}
	switch len(handlers) {
	case 0:
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	case 1:
		return slog.New(handlers[0])
	default:
		return slog.New(slogmulti.Fanout(handlers...))
	}
}

// SetOutput 替换输出目标，每个 writer 都会收到全部日志。
func SetOutput(writers ...io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if len(writers) == 0 {
		writers = []io.Writer{os.Stdout}
	}
	outputs = append([]io.Writer(nil), writers...)
	base = build()
}

// SetFormat switches between text and json lines. Unknown values fall back to text.
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	if Format(strings.ToLower(strings.TrimSpace(f))) == FormatJSON {
		format = FormatJSON
	} else {
		format = FormatText
	}
	base = build()
}

// ParseLevel accepts debug, info, warn (or warning) and error.
func ParseLevel(level string) (slog.Level, error) {
	s := strings.ToLower(strings.TrimSpace(level))
	if s == "warning" {
		s = "warn"
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
	return l, nil
}

// SetLevel 设置日志级别，无法解析时回退到 info。
func SetLevel(level string) {
	l, _ := ParseLevel(level)
	levelVar.Set(l)
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// With 返回带 component 字段的结构化 logger。
func With(component string) *slog.Logger {
	return current().With("component", component)
}

func Debugf(format string, v ...any) { current().Debug(fmt.Sprintf(format, v...)) }

func Infof(format string, v ...any) { current().Info(fmt.Sprintf(format, v...)) }

func Warnf(format string, v ...any) { current().Warn(fmt.Sprintf(format, v...)) }

func Errorf(format string, v ...any) { current().Error(fmt.Sprintf(format, v...)) }

// InfoBlock logs a multi-line block one line per record.
func InfoBlock(block string) {
	for _, line := range strings.Split(strings.TrimSpace(block), "\n") {
		if line = strings.TrimRight(line, " \t"); line != "" {
			Infof("%s", line)
		}
	}
}
