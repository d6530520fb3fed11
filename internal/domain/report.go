package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusEmpty     = "empty"
	StatusFailed    = "failed"
)

const (
	ImageStatusPicked  = "picked"
	ImageStatusNone    = "none"
	ImageStatusFailed  = "failed"
	ImageStatusSkipped = "skipped"
)

// ImageResult.From 的取值：URL 来自哪个属性。
const (
	FromSrcset = "srcset"
	FromSrc    = "src"
)

// 来源级与图片级的 error_code。
// 图片级的 srcset 校验失败直接使用 srcset.ErrorKind 的字符串值（例如 fallback_conflict）。
const (
	ErrCodeUnsupportedSource    = "unsupported_source"
	ErrCodeLoadFailed           = "load_failed"
	ErrCodeParseFailed          = "parse_failed"
	ErrCodeSelectorInvalid      = "selector_invalid"
	ErrCodeLikeNotFound         = "like_not_found"
	ErrCodeNotImage             = "not_image"
	ErrCodeIOFailed             = "io_failed"
	ErrCodeConfigInvalid        = "config_invalid"
	ErrCodeConfigMissingSources = "config_missing_sources"
)

// RunReport 是对外稳定输出（--out 文件 / stdout JSON）的结构。
type RunReport struct {
	Strict   bool   `json:"strict"`
	Selector string `json:"selector"`
	Like     string `json:"like,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary  `json:"summary"`
	Items   []SourceResult `json:"items"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Empty     int `json:"empty"`
	Failed    int `json:"failed"`

	ImagesPicked  int `json:"images_picked"`
	ImagesNone    int `json:"images_none"`
	ImagesFailed  int `json:"images_failed"`
	ImagesSkipped int `json:"images_skipped"`
}

// SourceResult 是一个 HTML 来源（文件 / stdin / URL）的检查结果。
//
// URLs 是按文档顺序选出的图片 URL 列表（跳过未选出的图片），与 Title 一起构成交给下游的载荷。
type SourceResult struct {
	Source   string `json:"source"`
	Loader   string `json:"loader"`
	Title    string `json:"title"`
	BaseURL  string `json:"base_url"`
	Selector string `json:"selector"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Images []ImageResult `json:"images"`
	URLs   []string      `json:"urls"`
}

type ImageResult struct {
	Index int    `json:"index"`
	Tag   string `json:"tag"`
	Path  string `json:"path"` // 结构化选择器，例如 body > div.gallery > img.thumb

	Src    string `json:"src"`
	Srcset string `json:"srcset"`
	URL    string `json:"url"`
	From   string `json:"from"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 source 字典序；source=="" 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Source
		b := r.Items[j].Source
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusEmpty:
			s.Empty++
		case StatusFailed:
			s.Failed++
		}
		for _, img := range it.Images {
			switch img.Status {
			case ImageStatusPicked:
				s.ImagesPicked++
			case ImageStatusNone:
				s.ImagesNone++
			case ImageStatusFailed:
				s.ImagesFailed++
			case ImageStatusSkipped:
				s.ImagesSkipped++
			}
		}
	}
	r.Summary = s
}

// OK 表示本次运行没有来源级或图片级失败（CLI 据此决定退出码）。
func (r RunReport) OK() bool {
	return r.Summary.Failed == 0 && r.Summary.ImagesFailed == 0
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
