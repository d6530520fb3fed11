package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/John-Robertt/srcpick/internal/domain"
)

func TestParseRunArgs(t *testing.T) {
	ra, err := parseRunArgs([]string{"a.html", "--selector", "img.x", "--like=.g img", "--base", "https://e.test/", "--strict=false", "-", "--out", "r.json", "-v"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(ra.CLI.Sources) != 2 || ra.CLI.Sources[1] != "-" {
		t.Fatalf("sources 不正确：%v", ra.CLI.Sources)
	}
	if ra.CLI.Selector != "img.x" || ra.CLI.Like != ".g img" || ra.CLI.BaseURL != "https://e.test/" {
		t.Fatalf("值参数不正确：%+v", ra.CLI)
	}
	if ra.CLI.Strict || !ra.CLI.StrictSet {
		t.Fatalf("--strict=false 应被记录为显式设置")
	}
	if ra.Out != "r.json" || !ra.Verbose {
		t.Fatalf("out/verbose 不正确：%+v", ra)
	}

	for _, bad := range [][]string{
		{"--selector"},
		{"--strict=yes"},
		{"--nope"},
		{"--out="},
	} {
		if _, err := parseRunArgs(bad); err == nil {
			t.Fatalf("期望参数错误：%v", bad)
		}
	}
}

func TestParseCmd(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := parseCmd([]string{"a.jpg 1x, b.jpg 2x"}, &stdout, &stderr); code != 0 {
		t.Fatalf("期望退出码 0，实际 %d：%s", code, stderr.String())
	}
	var raw map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		t.Fatalf("输出不是合法 JSON：%v\n%s", err, stdout.String())
	}
	if raw["best"] != "b.jpg" || raw["ok"] != true {
		t.Fatalf("best 不正确：%v", raw)
	}
	if n := len(raw["candidates"].([]any)); n != 2 {
		t.Fatalf("期望 2 个候选，实际 %d", n)
	}
}

func TestParseCmd_StrictError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := parseCmd([]string{"--strict", "a.jpg 1x, b.jpg"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("严格校验失败应返回 1，实际 %d", code)
	}
	if !strings.Contains(stdout.String(), `"error_code": "fallback_conflict"`) {
		t.Fatalf("输出应包含 error_code：%s", stdout.String())
	}
}

func TestParseCmd_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := parseCmd(nil, &stdout, &stderr); code != 2 {
		t.Fatalf("缺少输入应返回 2，实际 %d", code)
	}
	if code := parseCmd([]string{"--bogus", "x"}, &stdout, &stderr); code != 2 {
		t.Fatalf("未知参数应返回 2，实际 %d", code)
	}
}

// brokenPipe 模拟下游已关闭的 stdout。
type brokenPipe struct{}

func (brokenPipe) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestParseCmd_StdoutWriteError(t *testing.T) {
	var stderr bytes.Buffer
	code := parseCmd([]string{"a.jpg 1x, b.jpg 2x"}, brokenPipe{}, &stderr)
	if code != 1 {
		t.Fatalf("stdout 写入失败应返回 1，实际 %d", code)
	}
	if !strings.Contains(stderr.String(), "broken pipe") {
		t.Fatalf("stderr 应说明写入失败：%q", stderr.String())
	}
}

func TestWriteReport_StdoutWriteError(t *testing.T) {
	var stderr bytes.Buffer
	if err := writeReport(brokenPipe{}, &stderr, false, domain.RunReport{}); err == nil {
		t.Fatalf("JSON 写入失败应返回错误")
	}
	if err := writeReport(brokenPipe{}, &stderr, true, domain.RunReport{}); err == nil {
		t.Fatalf("摘要写入失败应返回错误")
	}
}

func TestWriteReport_JSONOnStdout(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := writeReport(&stdout, &stderr, false, domain.RunReport{}); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	var v map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &v); err != nil {
		t.Fatalf("stdout 应只有一个 JSON：%v\n%s", err, stdout.String())
	}
	if !strings.Contains(stderr.String(), "完成：") {
		t.Fatalf("摘要应写到 stderr：%q", stderr.String())
	}
}
