package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/srcpick/internal/domain"
)

func TestCLI_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	// stdout 非 TTY 时只能输出一个 RunReport JSON（进度/配置必须走 stderr 或直接禁用）。
	root := t.TempDir()
	page := filepath.Join(root, "index.html")
	if err := os.WriteFile(page, []byte(`<title>T</title><img srcset="s.jpg 1x, l.jpg 2x">`), 0o644); err != nil {
		t.Fatalf("写入页面失败：%v", err)
	}
	outPath := filepath.Join(root, "report", "r.json")

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("读取 cwd 失败：%v", err)
	}
	repoRoot := filepath.Clean(filepath.Join(wd, "..", ".."))

	cmd := exec.Command("go", "run", "./cmd/srcpick", "run", page, "--strict", "--out", outPath)
	cmd.Dir = repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("命令执行失败：%v\nstderr=%s\nstdout=%s", err, stderr.String(), stdout.String())
	}

	var rr domain.RunReport
	if err := json.Unmarshal(stdout.Bytes(), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout.String())
	}
	if !rr.Strict || len(rr.Items) != 1 || len(rr.Items[0].URLs) != 1 || rr.Items[0].URLs[0] != "l.jpg" {
		t.Fatalf("report 内容不正确：%+v", rr)
	}
	if strings.Contains(stdout.String(), "配置（生效）") || strings.Contains(stdout.String(), "进度:") {
		t.Fatalf("stdout 不应包含进度/配置输出：%q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "完成：processed=1") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr.String())
	}

	b, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("--out 文件未写入：%v", err)
	}
	var fromFile domain.RunReport
	if err := json.Unmarshal(b, &fromFile); err != nil || len(fromFile.Items) != 1 {
		t.Fatalf("--out 文件内容不正确：%v\n%s", err, b)
	}
}

func TestCLI_ConfigErrorExitCode(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("读取 cwd 失败：%v", err)
	}
	repoRoot := filepath.Clean(filepath.Join(wd, "..", ".."))

	cmd := exec.Command("go", "run", "./cmd/srcpick", "run", "x.html", "--selector", "img[[")
	cmd.Dir = repoRoot
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	ee, ok := err.(*exec.ExitError)
	if !ok || ee.ExitCode() != 1 {
		t.Fatalf("期望退出码 1，实际 err=%v\nstderr=%s", err, stderr.String())
	}
	var rr domain.RunReport
	if err := json.Unmarshal(stdout.Bytes(), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v", err)
	}
	if len(rr.Items) != 1 || rr.Items[0].ErrorCode != domain.ErrCodeConfigInvalid {
		t.Fatalf("期望合成的 config_invalid 条目：%+v", rr.Items)
	}
}
