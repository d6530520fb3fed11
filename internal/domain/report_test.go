package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRunReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := RunReport{
		Selector:   "img",
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Items: []SourceResult{
			{Source: "b.html", Status: StatusEmpty},
			{Source: "", Status: StatusFailed}, // config 等合成项
			{Source: "a.html", Status: StatusProcessed, Images: []ImageResult{
				{Status: ImageStatusPicked},
				{Status: ImageStatusPicked},
				{Status: ImageStatusFailed},
				{Status: ImageStatusNone},
				{Status: ImageStatusSkipped},
			}},
		},
	}

	r.Finalize()

	// source=="" 必须排在最后。
	if r.Items[0].Source != "a.html" || r.Items[1].Source != "b.html" || r.Items[2].Source != "" {
		t.Fatalf("items 排序不符合契约：%v", []string{r.Items[0].Source, r.Items[1].Source, r.Items[2].Source})
	}
	want := ReportSummary{Processed: 1, Empty: 1, Failed: 1, ImagesPicked: 2, ImagesNone: 1, ImagesFailed: 1, ImagesSkipped: 1}
	if r.Summary != want {
		t.Fatalf("summary 统计不正确：%+v", r.Summary)
	}
	if r.OK() {
		t.Fatalf("存在失败时 OK() 应为 false")
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	// time.Time 在 UTC 下应输出 'Z' 后缀。
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
	if bytes.Contains(b, []byte("\"like\"")) {
		t.Fatalf("like 为空时不应输出：%s", string(b))
	}
}

func TestRunReport_OK(t *testing.T) {
	r := RunReport{Items: []SourceResult{
		{Source: "a.html", Status: StatusProcessed, Images: []ImageResult{{Status: ImageStatusNone}}},
		{Source: "b.html", Status: StatusEmpty},
	}}
	r.Finalize()
	if !r.OK() {
		t.Fatalf("none/empty 不算失败：%+v", r.Summary)
	}
}
