package srcset

import (
	"errors"
	"fmt"
)

// ErrorKind 是严格模式校验失败的分类（稳定字符串，可直接写入 report 的 error_code）。
type ErrorKind string

const (
	MalformedCount        ErrorKind = "malformed_count"
	FallbackConflict      ErrorKind = "fallback_conflict"
	NotANumber            ErrorKind = "not_a_number"
	InvalidWidth          ErrorKind = "invalid_width"
	InvalidDensity        ErrorKind = "invalid_density"
	UnsupportedDescriptor ErrorKind = "unsupported_descriptor"
	DuplicateDescriptor   ErrorKind = "duplicate_descriptor"
)

// Error 描述严格模式下第一个违反规则的 candidate。
type Error struct {
	Kind  ErrorKind
	Index int    // candidate 在输入中的序号（从 0 开始）
	URL   string // 出错 candidate 的 URL
	Token string // 出错的 descriptor 原文；无 descriptor 的规则为空
	Msg   string
}

func (e *Error) Error() string {
	if e.URL == "" {
		return "srcset: " + e.Msg
	}
	return fmt.Sprintf("srcset: candidate %d (%q): %s", e.Index+1, e.URL, e.Msg)
}

// KindOf 从 error 中提取 ErrorKind；若不是 *Error 则返回空串。
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
