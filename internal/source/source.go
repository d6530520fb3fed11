package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/John-Robertt/srcpick/internal/domain"
)

// maxPageBytes 限制单个页面的读取上限，避免误把大文件当 HTML 读入内存。
const maxPageBytes = 32 << 20

// Loader 把“从哪里拿到 HTML”限制在 source 包内部；核心流程只依赖统一接口与 domain.Page。
//
// 约束：
// - Match 只看引用的形态（URL / "-" / 路径），不做 I/O
// - Load 返回的 HTML 必须已解码为 UTF-8
type Loader interface {
	Name() string
	Match(ref string) bool
	Load(ctx context.Context, ref string) (domain.Page, error)
}

// Error 是加载阶段的可追溯错误。
// 上层可以据此把失败归类为 unsupported_source / load_failed，并写入 report。
type Error struct {
	Loader string // loader name；Stage=="resolve" 时为空
	Stage  string // "resolve" 或 "load"
	Ref    string
	Err    error
}

func (e *Error) Error() string {
	if e.Stage == "resolve" {
		return fmt.Sprintf("无法识别的来源 %q：%v", e.Ref, e.Err)
	}
	return fmt.Sprintf("loader=%s source=%s: %v", e.Loader, e.Ref, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Load 按注册顺序找到第一个匹配的 loader 并加载 ref。
func Load(ctx context.Context, reg Registry, ref string) (domain.Page, error) {
	l, ok := reg.Resolve(ref)
	if !ok {
		return domain.Page{}, &Error{Stage: "resolve", Ref: ref, Err: fmt.Errorf("没有可用的 loader")}
	}
	p, err := l.Load(ctx, ref)
	if err != nil {
		return domain.Page{}, &Error{Loader: l.Name(), Stage: "load", Ref: ref, Err: err}
	}
	if p.Source == "" {
		p.Source = ref
	}
	if p.Loader == "" {
		p.Loader = l.Name()
	}
	return p, nil
}

// decodeHTML 按 Content-Type 与文档内 <meta charset> 嗅探编码，统一转为 UTF-8。
func decodeHTML(b []byte, contentType string) ([]byte, error) {
	r, err := charset.NewReader(bytes.NewReader(b), contentType)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func readLimited(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxPageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxPageBytes {
		return nil, fmt.Errorf("页面超过 %d MiB 上限", maxPageBytes>>20)
	}
	return b, nil
}

func normRef(ref string) string { return strings.TrimSpace(ref) }
