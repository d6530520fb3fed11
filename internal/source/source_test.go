package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/John-Robertt/srcpick/internal/domain"
	"github.com/John-Robertt/srcpick/internal/infra/cache"
)

type stubLoader struct {
	name  string
	match func(string) bool
}

func (s stubLoader) Name() string          { return s.name }
func (s stubLoader) Match(ref string) bool { return s.match(ref) }
func (s stubLoader) Load(context.Context, string) (domain.Page, error) {
	return domain.Page{HTML: []byte("<p>stub</p>")}, nil
}

func TestRegistry_ResolveOrderAndDuplicates(t *testing.T) {
	all := func(string) bool { return true }
	reg, err := NewRegistry(stubLoader{name: "a", match: all}, stubLoader{name: "b", match: all})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	l, ok := reg.Resolve("x")
	if !ok || l.Name() != "a" {
		t.Fatalf("应按注册顺序命中第一个 loader：%v %v", l, ok)
	}
	if _, ok := reg.Resolve("   "); ok {
		t.Fatalf("空引用不应命中")
	}

	if _, err := NewRegistry(stubLoader{name: "a", match: all}, stubLoader{name: "A", match: all}); err == nil {
		t.Fatalf("重复名称应报错")
	}
	if _, err := NewRegistry(stubLoader{name: " ", match: all}); err == nil {
		t.Fatalf("空名称应报错")
	}
}

func TestLoad_FillsSourceAndLoader(t *testing.T) {
	reg, err := NewRegistry(stubLoader{name: "stub", match: func(string) bool { return true }})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	p, err := Load(context.Background(), reg, "ref-1")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if p.Source != "ref-1" || p.Loader != "stub" {
		t.Fatalf("Page 元信息不正确：%+v", p)
	}
}

func TestLoad_ResolveError(t *testing.T) {
	reg, _ := NewRegistry(Stdin{})
	_, err := Load(context.Background(), reg, "page.html")
	var se *Error
	if !errors.As(err, &se) || se.Stage != "resolve" {
		t.Fatalf("期望 resolve 阶段错误，实际 %v", err)
	}
}

func TestFile_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	if err := os.WriteFile(path, []byte(`<img srcset="a.jpg 1x">`), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	reg, _ := NewRegistry(Stdin{}, Web{Client: http.DefaultClient}, File{})
	p, err := Load(context.Background(), reg, path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if p.Loader != "file" || !strings.Contains(string(p.HTML), "srcset") {
		t.Fatalf("读取结果不正确：%+v", p)
	}

	_, err = Load(context.Background(), reg, dir)
	var se *Error
	if !errors.As(err, &se) || se.Stage != "load" || se.Loader != "file" {
		t.Fatalf("目录应在 load 阶段失败：%v", err)
	}

	_, err = Load(context.Background(), reg, filepath.Join(dir, "missing.html"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("缺失文件应可用 errors.Is 判定：%v", err)
	}
}

func TestFile_DecodesMetaCharset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latin1.html")
	// 0xE9 在 ISO-8859-1 中是 é。
	body := []byte("<html><head><meta charset=\"iso-8859-1\"><title>caf\xe9</title></head></html>")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	p, err := File{}.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !strings.Contains(string(p.HTML), "café") {
		t.Fatalf("应按 meta charset 解码为 UTF-8：%q", p.HTML)
	}
}

func TestStdin_Load(t *testing.T) {
	s := Stdin{R: strings.NewReader(`<img src="a.jpg">`)}
	if !s.Match("-") || s.Match("page.html") {
		t.Fatalf("stdin 只匹配 \"-\"")
	}
	p, err := s.Load(context.Background(), "-")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if p.Loader != "stdin" || string(p.HTML) != `<img src="a.jpg">` {
		t.Fatalf("读取结果不正确：%+v", p)
	}
}

func TestWeb_LoadAndCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/old":
			http.Redirect(w, r, "/gallery/", http.StatusFound)
		case "/gallery/":
			hits.Add(1)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<title>Gallery</title><img srcset="a.jpg 1x, b.jpg 2x">`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := cache.New(t.TempDir())
	web := Web{Client: srv.Client(), Cache: store}

	p, err := web.Load(context.Background(), srv.URL+"/old")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if p.URL != srv.URL+"/gallery/" {
		t.Fatalf("重定向后应使用最终 URL：%q", p.URL)
	}
	if !strings.Contains(string(p.HTML), "b.jpg 2x") {
		t.Fatalf("页面内容不正确：%q", p.HTML)
	}

	// 第二次应命中缓存，不再请求站点。
	p2, err := web.Load(context.Background(), srv.URL+"/old")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if string(p2.HTML) != string(p.HTML) {
		t.Fatalf("缓存内容不一致")
	}
	if p2.URL != p.URL {
		t.Fatalf("命中缓存时文档 URL 应与首次抓取一致：%q vs %q", p2.URL, p.URL)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("期望只请求 1 次，实际 %d", got)
	}
}

func TestWeb_CacheHitKeepsRedirectBase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a":
			http.Redirect(w, r, "/dir/b", http.StatusMovedPermanently)
		case "/dir/b":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<img srcset="x.jpg 1x, y.jpg 2x">`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	web := Web{Client: srv.Client(), Cache: cache.New(t.TempDir())}
	want := srv.URL + "/dir/b"

	var resolved []string
	for i := 0; i < 2; i++ {
		p, err := web.Load(context.Background(), srv.URL+"/a")
		if err != nil {
			t.Fatalf("第 %d 次加载失败：%v", i+1, err)
		}
		if p.URL != want {
			t.Fatalf("第 %d 次文档 URL 不正确：期望 %q，实际 %q", i+1, want, p.URL)
		}
		base, err := url.Parse(p.URL)
		if err != nil {
			t.Fatalf("解析文档 URL 失败：%v", err)
		}
		ref, _ := url.Parse("y.jpg")
		resolved = append(resolved, base.ResolveReference(ref).String())
	}
	if resolved[0] != resolved[1] || resolved[0] != srv.URL+"/dir/y.jpg" {
		t.Fatalf("相对候选的解析结果应与是否命中缓存无关：%v", resolved)
	}
}

func TestWeb_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	reg, _ := NewRegistry(Web{Client: srv.Client()})
	_, err := Load(context.Background(), reg, srv.URL+"/x")
	var he *HTTPStatusError
	if !errors.As(err, &he) || he.StatusCode != http.StatusForbidden {
		t.Fatalf("期望 HTTP 403，实际 %v", err)
	}
	if !strings.Contains(err.Error(), "loader=http") {
		t.Fatalf("错误信息应包含 loader：%q", err.Error())
	}
}

func TestWeb_NilClient(t *testing.T) {
	if _, err := (Web{}).Load(context.Background(), "https://example.test/"); err == nil {
		t.Fatalf("client 为空应报错")
	}
}
