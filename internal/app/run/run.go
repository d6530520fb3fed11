package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/srcpick/internal/config"
	"github.com/John-Robertt/srcpick/internal/domain"
	"github.com/John-Robertt/srcpick/internal/infra/cache"
	"github.com/John-Robertt/srcpick/internal/infra/httpx"
	"github.com/John-Robertt/srcpick/internal/infra/logx"
	"github.com/John-Robertt/srcpick/internal/inspect"
	"github.com/John-Robertt/srcpick/internal/scan"
	"github.com/John-Robertt/srcpick/internal/source"
)

// NewRegistry 按生效配置构造默认 loader 表：stdin、http（带代理与页面缓存）、本地文件。
func NewRegistry(eff config.EffectiveConfig) (source.Registry, error) {
	c, err := httpx.NewPageClient(eff.ProxyURL)
	if err != nil {
		return source.Registry{}, &config.Error{Code: config.ErrCodeInvalid, Path: eff.ConfigPath, Err: fmt.Errorf("proxy.url 无效：%w", err)}
	}
	return source.NewRegistry(
		source.Stdin{},
		source.Web{Client: c, Cache: cache.New(eff.CacheDir)},
		source.File{},
	)
}

// Execute 执行一次 run，并返回对外稳定的 RunReport。
// 单个来源的失败只记录在该来源的 SourceResult 里，不影响其他来源。
func Execute(ctx context.Context, eff config.EffectiveConfig, reg source.Registry) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, reg, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, reg source.Registry, obs Observer) domain.RunReport {
	log := logx.Logger()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		Strict:    eff.Strict,
		Selector:  eff.Selector,
		Like:      eff.Like,
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.SourceResult, 0, len(eff.Sources)),
	}

	expandStarted := time.Now()
	refs, synthetic := expand(eff)
	rr.Items = append(rr.Items, synthetic...)
	if obs != nil {
		obs.OnPhaseDone("expand", map[string]any{
			"sources": len(eff.Sources),
			"pages":   len(refs),
		}, time.Since(expandStarted))
	}
	log.Debug("sources expanded", "sources", len(eff.Sources), "pages", len(refs))

	opts := inspect.Options{
		Selector: eff.Selector,
		Like:     eff.Like,
		BaseURL:  eff.BaseURL,
		Strict:   eff.Strict,
	}

	// 按来源并发（worker pool），来源内串行。
	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}
	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers":     workers,
			"total_items": len(refs),
		}, 0)
	}

	type execResult struct {
		res domain.SourceResult
		dur time.Duration
	}

	jobs := make(chan string)
	results := make(chan execResult, len(refs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range jobs {
				oneStarted := time.Now()
				r := processOne(ctx, reg, ref, opts)
				results <- execResult{res: r, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
		for _, ref := range refs {
			jobs <- ref
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	done := 0
	for it := range results {
		done++
		rr.Items = append(rr.Items, it.res)
		log.Debug("source done", "source", it.res.Source, "status", it.res.Status, "images", len(it.res.Images), "dur", it.dur)
		if obs != nil {
			obs.OnItemDone(done, len(refs), it.res, it.dur)
		}
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

// Inspect 加载并检查单个来源（CLI 与测试直接复用）。
func Inspect(ctx context.Context, reg source.Registry, ref string, opts inspect.Options) domain.SourceResult {
	return processOne(ctx, reg, ref, opts)
}

// expand 把目录来源展开为其中的 HTML 文件，并按首次出现去重。
// 目录扫描失败或为空时生成一条以目录为 source 的合成条目。
func expand(eff config.EffectiveConfig) ([]string, []domain.SourceResult) {
	var exclude []string
	if eff.CacheDir != "" {
		exclude = append(exclude, eff.CacheDir)
	}

	seen := make(map[string]struct{}, len(eff.Sources))
	refs := make([]string, 0, len(eff.Sources))
	add := func(ref string) {
		if _, ok := seen[ref]; ok {
			return
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}

	var synthetic []domain.SourceResult
	for _, s := range eff.Sources {
		if s == "-" || config.IsRemote(s) {
			add(s)
			continue
		}
		fi, err := os.Stat(s)
		if err != nil || !fi.IsDir() {
			// 不存在等错误交给 file loader，保证错误落在该来源自己的条目上。
			add(s)
			continue
		}
		pages, err := scan.ScanPages(s, eff.Exts, exclude)
		if err != nil {
			synthetic = append(synthetic, failedSource(s, "", domain.ErrCodeIOFailed, fmt.Sprintf("扫描目录失败：%v", err)))
			continue
		}
		if len(pages) == 0 {
			r := emptySource(s, "scan")
			r.ErrorMsg = fmt.Sprintf("目录中没有 %s 文件", strings.Join(eff.Exts, "/"))
			synthetic = append(synthetic, r)
			continue
		}
		for _, p := range pages {
			add(p)
		}
	}
	return refs, synthetic
}

func processOne(ctx context.Context, reg source.Registry, ref string, opts inspect.Options) domain.SourceResult {
	page, err := source.Load(ctx, reg, ref)
	if err != nil {
		return loadFailed(ref, err)
	}

	res, err := inspect.Inspect(page, opts)
	if err != nil {
		code := inspect.Code(err)
		if code == "" {
			code = domain.ErrCodeParseFailed
		}
		out := failedSource(ref, page.Loader, code, err.Error())
		out.BaseURL = page.URL
		return out
	}
	return res
}

func loadFailed(ref string, err error) domain.SourceResult {
	var se *source.Error
	if errors.As(err, &se) {
		if se.Stage == "resolve" {
			return failedSource(ref, "", domain.ErrCodeUnsupportedSource, err.Error())
		}
		return failedSource(ref, se.Loader, domain.ErrCodeLoadFailed, humanizeLoadError(se.Loader, se.Err))
	}
	return failedSource(ref, "", domain.ErrCodeLoadFailed, err.Error())
}

func failedSource(ref, loader, code, msg string) domain.SourceResult {
	return domain.SourceResult{
		Source:    ref,
		Loader:    loader,
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
		Images:    []domain.ImageResult{},
		URLs:      []string{},
	}
}

func emptySource(ref, loader string) domain.SourceResult {
	return domain.SourceResult{
		Source: ref,
		Loader: loader,
		Status: domain.StatusEmpty,
		Images: []domain.ImageResult{},
		URLs:   []string{},
	}
}

// SyntheticFailed 生成 source=="" 的合成失败条目（配置错误等无法归属到具体来源的失败）。
func SyntheticFailed(code, msg string) domain.SourceResult {
	return failedSource("", "", code, msg)
}

func humanizeLoadError(loader string, err error) string {
	if err == nil {
		return loader + " 加载失败"
	}

	if errors.Is(err, os.ErrNotExist) {
		return fmt.Sprintf("文件不存在：%v", err)
	}
	if errors.Is(err, os.ErrPermission) {
		return fmt.Sprintf("没有读取权限：%v", err)
	}

	// HTTP 非 2xx：尽量给出可操作提示（反爬/限流是最常见问题）。
	var hs *source.HTTPStatusError
	if errors.As(err, &hs) {
		switch hs.StatusCode {
		case 403, 429:
			return fmt.Sprintf("站点返回 HTTP %d（可能触发反爬/限流）。建议降低并发或配置 proxy.url。", hs.StatusCode)
		case 404:
			return "站点返回 HTTP 404（页面不存在）。"
		default:
			if loc := strings.TrimSpace(hs.Location); loc != "" {
				return fmt.Sprintf("站点返回 HTTP %d（重定向）：%s", hs.StatusCode, loc)
			}
			return fmt.Sprintf("站点返回 HTTP %d。", hs.StatusCode)
		}
	}

	if errors.Is(err, context.Canceled) {
		return "已取消"
	}
	low := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(low, "timeout") {
		return "抓取超时。建议检查网络/代理，或降低并发后重试。"
	}
	if strings.Contains(low, "tls") || strings.Contains(low, "handshake") || strings.Contains(low, "ssl") {
		return "连接失败（TLS/SSL）。建议配置 proxy.url 或稍后重试。"
	}
	return fmt.Sprintf("%s 加载失败：%v", loader, err)
}
