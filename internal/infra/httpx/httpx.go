package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

const (
	defaultTimeout  = 20 * time.Second
	defaultRetryMax = 2
	defaultBackoff  = 300 * time.Millisecond
)

// 页面里的 srcset 往往按 UA 区分桌面/移动端，这里只轮换桌面 UA。
var desktopUAs = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
}

// Transport 给页面请求补齐浏览器头，并对可重放请求做有界重试。
//
// 重试条件：连接层错误，或 502/503/504。其余状态码原样交给调用方。
// 两次尝试之间按 Backoff*attempt 等待；ctx 取消时立即返回。
type Transport struct {
	Base http.RoundTripper

	// RetryMax 不含首次尝试：2 表示最多 3 次请求。
	RetryMax int
	Backoff  time.Duration

	next atomic.Uint32
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	attempts := 1
	if (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil && t.RetryMax > 0 {
		attempts += t.RetryMax
	}

	ctx := req.Context()
	for i := 1; ; i++ {
		resp, err := base.RoundTrip(t.prepare(req))
		if i >= attempts || !retryable(resp, err) || ctx.Err() != nil {
			return resp, err
		}
		if resp != nil {
			// 丢弃本次响应体，让连接可复用。
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			resp.Body.Close()
		}
		if err := sleep(ctx, t.Backoff*time.Duration(i)); err != nil {
			return nil, err
		}
	}
}

func (t *Transport) prepare(req *http.Request) *http.Request {
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		n := t.next.Add(1)
		r.Header.Set("User-Agent", desktopUAs[int(n)%len(desktopUAs)])
	}
	if r.Header.Get("Accept") == "" {
		r.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	}
	return r
}

func retryable(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	tm := time.NewTimer(d)
	defer tm.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tm.C:
		return nil
	}
}

// NewPageClient 构造抓取输入页面用的 client；proxyURL 为空时直连。
func NewPageClient(proxyURL string) (*http.Client, error) {
	base := &http.Transport{
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
	if proxyURL = strings.TrimSpace(proxyURL); proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
	}
	return &http.Client{
		Transport: &Transport{Base: base, RetryMax: defaultRetryMax, Backoff: defaultBackoff},
		Timeout:   defaultTimeout,
	}, nil
}
