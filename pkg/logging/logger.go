// Package logging 结构化日志
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"time"
)

// ContextKey 上下文键类型
type ContextKey string

const (
	TraceIDKey     ContextKey = "trace_id"
	RequesterIDKey ContextKey = "requester_id"
	WorkItemIDKey  ContextKey = "workitem_id"
)

// Logger 结构化日志器
type Logger struct {
	*slog.Logger
	component string
}

// Config 日志配置
type Config struct {
	Level     string `json:"level"`
	Format    string `json:"format"` // json or text
	Output    string `json:"output"` // stdout, stderr, or file path
	Component string `json:"component"`
}

// New 创建新的日志器
func New(cfg Config) *Logger {
	var output io.Writer
	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			output = os.Stdout
		} else {
			output = f
		}
	}
	return NewWithWriter(cfg, output)
}

// NewWithWriter 输出到指定 writer（测试用）
func NewWithWriter(cfg Config, output io.Writer) *Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		Logger:    slog.New(handler).With(slog.String("component", cfg.Component)),
		component: cfg.Component,
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default 创建默认日志器
func Default(component string) *Logger {
	return New(Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		Output:    "stdout",
		Component: component,
	})
}

// Discard 丢弃全部输出
func Discard() *Logger {
	return NewWithWriter(Config{}, io.Discard)
}

// WithContext 从上下文提取追踪信息
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var attrs []any
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if id, ok := ctx.Value(RequesterIDKey).(string); ok && id != "" {
		attrs = append(attrs, slog.String("requester_id", id))
	}
	if id, ok := ctx.Value(WorkItemIDKey).(string); ok && id != "" {
		attrs = append(attrs, slog.String("workitem_id", id))
	}
	if len(attrs) == 0 {
		return l
	}
	return l.with(attrs...)
}

func (l *Logger) with(attrs ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(attrs...),
		component: l.component,
	}
}

// WithRequester 添加请求方连接 ID
func (l *Logger) WithRequester(id string) *Logger {
	return l.with(slog.String("requester_id", id))
}

// WithWorkItem 添加 WorkItem ID
func (l *Logger) WithWorkItem(id string) *Logger {
	return l.with(slog.String("workitem_id", id))
}

// WithErrorKind 添加错误分类
func (l *Logger) WithErrorKind(kind string) *Logger {
	return l.with(slog.String("error_kind", kind))
}

// WithError 添加错误信息
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with(slog.String("error", err.Error()))
}

// WithDuration 添加持续时间
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.with(slog.Float64("duration_ms", float64(d.Milliseconds())))
}

// HTTPRequestLog HTTP 请求日志
func (l *Logger) HTTPRequestLog(method, path string, status int, duration time.Duration, clientIP string) {
	l.Logger.Info("HTTP request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
		slog.String("client_ip", clientIP),
	)
}

// CallbackStepLog 回调处理步骤日志
func (l *Logger) CallbackStepLog(step string, err error, extra ...any) {
	attrs := []any{slog.String("step", step)}
	attrs = append(attrs, extra...)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		l.Logger.Error("Callback step failed", attrs...)
		return
	}
	l.Logger.Debug("Callback step done", attrs...)
}

// GetCaller 获取调用者信息
func GetCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}
	return short + ":" + strconv.Itoa(line)
}
