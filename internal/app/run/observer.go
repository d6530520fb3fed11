package run

import (
	"time"

	"github.com/John-Robertt/srcpick/internal/config"
	"github.com/John-Robertt/srcpick/internal/domain"
)

// Observer 用于把“运行进度/阶段/来源结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：事件可能来自多个 goroutine。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用（expand、exec）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在某个来源检查完成时调用。
	OnItemDone(idx, total int, res domain.SourceResult, dur time.Duration)
	// OnProgress 用于 keepalive（通常由 CLI 自己 ticker 触发；run 层不强制调用）。
	OnProgress(done, total, ok, fail, empty, active int, elapsed time.Duration)
}
