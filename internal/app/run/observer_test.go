package run

import (
	"context"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/srcpick/internal/config"
	"github.com/John-Robertt/srcpick/internal/domain"
)

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	phases     []string
	items      []string
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnItemDone(idx, total int, res domain.SourceResult, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, filepath.Base(res.Source))
}

func (o *recordObserver) OnProgress(done, total, ok, fail, empty, active int, elapsed time.Duration) {
	// keepalive 由 CLI 触发；这里无需断言。
}

func TestExecuteWithObserver_EmitsPhaseAndItemEvents(t *testing.T) {
	root := t.TempDir()
	writePage(t, filepath.Join(root, "a.html"), galleryHTML)
	writePage(t, filepath.Join(root, "b.html"), `<img src="x.jpg">`)

	eff := effFor(root)
	obs := &recordObserver{}
	_ = ExecuteWithObserver(context.Background(), eff, mustRegistry(t, eff), obs)

	if obs.startCalls != 1 {
		t.Fatalf("期望 OnStart 调用 1 次，实际 %d", obs.startCalls)
	}
	wantPhases := []string{"expand", "exec"}
	if !reflect.DeepEqual(obs.phases, wantPhases) {
		t.Fatalf("阶段事件不符合预期：got=%v want=%v", obs.phases, wantPhases)
	}
	// worker 并发完成顺序不确定：排序后比较。
	sort.Strings(obs.items)
	if !reflect.DeepEqual(obs.items, []string{"a.html", "b.html"}) {
		t.Fatalf("条目事件不符合预期：items=%v", obs.items)
	}
}

func TestExecuteWithObserver_NilObserver_SameResultAsExecute(t *testing.T) {
	root := t.TempDir()
	writePage(t, filepath.Join(root, "a.html"), galleryHTML)
	writePage(t, filepath.Join(root, "b.html"), `<img srcset="p.jpg 1x, p.jpg 1x">`)

	eff := effFor(root)
	eff.Strict = true
	reg := mustRegistry(t, eff)

	a := Execute(context.Background(), eff, reg)
	b := ExecuteWithObserver(context.Background(), eff, reg, nil)

	// 时间字段本身允许有微小差异；对比时归零。
	a.StartedAt, a.FinishedAt = time.Time{}, time.Time{}
	b.StartedAt, b.FinishedAt = time.Time{}, time.Time{}

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("nil observer 不应改变结果：\nExecute=%+v\nWithObs=%+v", a, b)
	}
}
