package source

import (
	"context"
	"errors"
	"net/http"

	"github.com/John-Robertt/srcpick/internal/config"
	"github.com/John-Robertt/srcpick/internal/domain"
	"github.com/John-Robertt/srcpick/internal/infra/cache"
	"github.com/John-Robertt/srcpick/internal/infra/logx"
)

// Web 抓取 http/https 页面。
//
// 约束：
// - 只抓取输入页面本身；页面里选出的图片 URL 从不请求
// - Cache 启用时先读缓存，命中则不打网络；抓取成功后 best-effort 写回
type Web struct {
	Client *http.Client
	Cache  cache.Store
}

func (Web) Name() string { return "http" }

func (Web) Match(ref string) bool { return config.IsRemote(ref) }

func (w Web) Load(ctx context.Context, ref string) (domain.Page, error) {
	if w.Client == nil {
		return domain.Page{}, errors.New("http client 不能为空")
	}
	ref = normRef(ref)

	if c, ok, err := w.Cache.ReadPage(ref); err == nil && ok {
		logx.Logger().Debug("page cache hit", "url", ref, "final_url", c.URL)
		return domain.Page{Source: ref, Loader: "http", URL: c.URL, HTML: c.HTML}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return domain.Page{}, err
	}
	resp, err := w.Client.Do(req)
	if err != nil {
		return domain.Page{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Page{}, &HTTPStatusError{URL: ref, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}

	raw, err := readLimited(resp.Body)
	if err != nil {
		return domain.Page{}, err
	}
	h, err := decodeHTML(raw, resp.Header.Get("Content-Type"))
	if err != nil {
		return domain.Page{}, err
	}

	// 重定向后以最终地址作为文档 URL（相对地址按它解析）。
	pageURL := ref
	if resp.Request != nil && resp.Request.URL != nil {
		pageURL = resp.Request.URL.String()
	}

	if w.Cache.Enabled() {
		if err := w.Cache.WritePage(ref, cache.Page{URL: pageURL, HTML: h}); err != nil {
			logx.Logger().Warn("page cache write failed", "url", ref, "err", err)
		}
	}
	logx.Logger().Debug("page fetched", "url", ref, "final_url", pageURL, "bytes", len(h))
	return domain.Page{Source: ref, Loader: "http", URL: pageURL, HTML: h}, nil
}
