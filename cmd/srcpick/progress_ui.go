package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/John-Robertt/srcpick/internal/app/run"
	"github.com/John-Robertt/srcpick/internal/config"
	"github.com/John-Robertt/srcpick/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的简洁进度输出。
//
// 约束：
// - 所有过程信息写到 w（stderr 优先），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间无来源完成时定期输出一行进度
type progressUI struct {
	w  io.Writer
	st styles

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	ok      int
	fail    int
	empty   int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

// styles 绑定到输出 writer 的 renderer：非终端 writer 自动降级为纯文本。
type styles struct {
	title lipgloss.Style
	muted lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	fail  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title: r.NewStyle().Bold(true),
		muted: r.NewStyle().Foreground(lipgloss.Color("8")),
		ok:    r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		warn:  r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		fail:  r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		st:                 newStyles(w),
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "non-strict"
	if eff.Strict {
		mode = "strict"
	}

	fmt.Fprintf(p.w, "%s %s\n", p.st.muted.Render("["+now.Format("15:04:05")+"]"), p.st.title.Render("srcpick run ("+mode+")"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  config: %s\n", orDash(eff.ConfigPath))
	fmt.Fprintf(p.w, "  sources: %d\n", len(eff.Sources))
	if eff.Like != "" {
		fmt.Fprintf(p.w, "  like: %s\n", truncate(eff.Like, 120))
	} else {
		fmt.Fprintf(p.w, "  selector: %s\n", truncate(eff.Selector, 120))
	}
	fmt.Fprintf(p.w, "  base: %s\n", orDash(eff.BaseURL))
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(p.w, "  cache: %s\n", orDash(eff.CacheDir))
	fmt.Fprintf(p.w, "  exts: %s\n", strings.Join(eff.Exts, ","))
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "expand":
		fmt.Fprintf(p.w, "展开: sources=%d pages=%d (%s)\n",
			intField(fields, "sources"), intField(fields, "pages"), formatShortDuration(dur),
		)
	case "exec":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total_items")
		fmt.Fprintf(p.w, "执行: workers=%d total_items=%d\n\n", p.workers, p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, res domain.SourceResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	switch res.Status {
	case domain.StatusProcessed:
		p.ok++
	case domain.StatusFailed:
		p.fail++
	case domain.StatusEmpty:
		p.empty++
	}

	fmt.Fprintln(p.w, p.itemLine(idx, total, res, dur))
	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) itemLine(idx, total int, res domain.SourceResult, dur time.Duration) string {
	head := fmt.Sprintf("[%d/%d] %s", idx, total, truncate(res.Source, 100))
	switch res.Status {
	case domain.StatusFailed:
		return fmt.Sprintf("%s %s %s: %s (%s)",
			head, p.st.fail.Render("FAIL"), res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	case domain.StatusEmpty:
		return fmt.Sprintf("%s %s (没有匹配的元素) (%s)", head, p.st.warn.Render("EMPTY"), formatShortDuration(dur))
	}

	var picked, none, failed, skipped int
	for _, img := range res.Images {
		switch img.Status {
		case domain.ImageStatusPicked:
			picked++
		case domain.ImageStatusNone:
			none++
		case domain.ImageStatusFailed:
			failed++
		case domain.ImageStatusSkipped:
			skipped++
		}
	}
	status := p.st.ok.Render("OK")
	if failed > 0 {
		status = p.st.warn.Render("WARN")
	}
	title := ""
	if res.Title != "" {
		title = " " + p.st.muted.Render(fmt.Sprintf("%q", truncate(res.Title, 60)))
	}
	return fmt.Sprintf("%s %s images=%d picked=%d none=%d failed=%d skipped=%d%s (%s)",
		head, status, len(res.Images), picked, none, failed, skipped, title, formatShortDuration(dur),
	)
}

func (p *progressUI) OnProgress(done, total, ok, fail, empty, active int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printProgressLocked(done, total, ok, fail, empty, active, elapsed)
}

func (p *progressUI) printProgressLocked(done, total, ok, fail, empty, active int, elapsed time.Duration) {
	fmt.Fprintln(p.w, p.st.muted.Render(fmt.Sprintf("进度: done=%d/%d ok=%d fail=%d empty=%d active=%d elapsed=%s",
		done, total, ok, fail, empty, active, formatElapsed(elapsed),
	)))
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					active := p.workers
					if remain := p.total - p.done; remain < active {
						active = remain
					}
					p.printProgressLocked(p.done, p.total, p.ok, p.fail, p.empty, active, time.Since(p.startedAt))
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
