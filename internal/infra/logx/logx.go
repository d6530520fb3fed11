package logx

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
)

// nopHandler 丢弃所有日志记录。Enabled 恒为 false，调用方不会格式化消息。
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger 设置全局诊断日志（默认静默）。传 nil 恢复静默。
//
// 诊断日志只写 stderr，与 stdout 的 JSON report 以及交互进度输出互不干扰。
// 可并发调用。
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger 返回当前诊断日志。
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// NewText 构造 --verbose 使用的文本日志（debug 级别）。
func NewText(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
