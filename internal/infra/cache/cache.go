package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/srcpick/internal/infra/fsx"
)

// Store 提供 <cache_dir>/pages/ 下的页面缓存读写（按 URL 索引）。
//
// 约束：
// - Root 为空表示未启用缓存：读总是 miss，写返回 ErrDisabled
// - 缓存的是已解码为 UTF-8 的 HTML，命中后不再走网络
type Store struct {
	Root string
}

var ErrDisabled = errors.New("cache: disabled")

func New(root string) Store {
	root = strings.TrimSpace(root)
	if root == "" {
		return Store{}
	}
	return Store{Root: filepath.Clean(root)}
}

func (s Store) Enabled() bool { return s.Root != "" }

// PagePath 返回页面缓存的绝对路径。
// 文件名取规范化 URL 的 sha256 前缀：避免路径穿越，也避免超长文件名。
func (s Store) PagePath(rawURL string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	key, err := pageKey(rawURL)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "pages", key+".html"), nil
}

// Page 是一条页面缓存：HTML 与跟随重定向后的最终 URL。
// 最终 URL 决定相对候选 URL 的解析基准，必须与 HTML 一起保存。
type Page struct {
	URL  string
	HTML []byte
}

// ReadPage 读取缓存；旧缓存缺少 .url 旁文件时，URL 退回 rawURL。
func (s Store) ReadPage(rawURL string) (Page, bool, error) {
	if !s.Enabled() {
		return Page{}, false, nil
	}
	path, err := s.PagePath(rawURL)
	if err != nil {
		return Page{}, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Page{}, false, nil
		}
		return Page{}, false, err
	}
	p := Page{URL: strings.TrimSpace(rawURL), HTML: b}
	u, err := os.ReadFile(urlPath(path))
	switch {
	case err == nil:
		if v := strings.TrimSpace(string(u)); v != "" {
			p.URL = v
		}
	case !os.IsNotExist(err):
		return Page{}, false, err
	}
	return p, true, nil
}

// WritePage 先写 .url 再写 .html：读者看到 HTML 时最终 URL 已就位。
func (s Store) WritePage(rawURL string, p Page) error {
	path, err := s.PagePath(rawURL)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	finalURL := strings.TrimSpace(p.URL)
	if finalURL == "" {
		finalURL = strings.TrimSpace(rawURL)
	}
	if err := fsx.WriteFileAtomic(dir, filepath.Base(urlPath(path)), []byte(finalURL+"\n")); err != nil {
		return err
	}
	return fsx.WriteFileAtomic(dir, filepath.Base(path), p.HTML)
}

func urlPath(htmlPath string) string {
	return strings.TrimSuffix(htmlPath, ".html") + ".url"
}

// pageKey 去掉 fragment 后取 sha256：同一文档的不同锚点共享缓存。
func pageKey(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("url 不能为空")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	u.Fragment = ""
	u.RawFragment = ""
	sum := sha256.Sum256([]byte(u.String()))
	return hex.EncodeToString(sum[:16]), nil
}
