package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/John-Robertt/srcpick/internal/app/run"
	"github.com/John-Robertt/srcpick/internal/config"
	"github.com/John-Robertt/srcpick/internal/domain"
	"github.com/John-Robertt/srcpick/internal/infra/fsx"
	"github.com/John-Robertt/srcpick/internal/infra/logx"
	"github.com/John-Robertt/srcpick/internal/srcset"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage(os.Stdout)
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	case "parse":
		if code := parseCmd(args[1:], os.Stdout, os.Stderr); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage(os.Stderr)
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage(os.Stdout)
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage(os.Stderr)
		return 2
	}
	if ra.Verbose {
		logx.SetLogger(logx.NewText(os.Stderr))
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, ra.CLI)
	if err != nil {
		_ = emitReport(reportForError(ra.CLI, config.Code(err), err))
		return 1
	}
	logx.Logger().Debug("config loaded", "config", eff.ConfigPath, "sources", len(eff.Sources), "strict", eff.Strict, "concurrency", eff.Concurrency)

	reg, err := run.NewRegistry(eff)
	if err != nil {
		_ = emitReport(reportForError(ra.CLI, config.Code(err), err))
		return 1
	}

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rr := run.ExecuteWithObserver(ctx, eff, reg, obs)

	if ra.Out != "" {
		if err := writeReportFile(ra.Out, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 report 失败：%v\n", err)
			_ = emitReport(rr)
			return 1
		}
	}

	if err := emitReport(rr); err != nil {
		fmt.Fprintf(os.Stderr, "写入 report 失败：%v\n", err)
		return 1
	}
	if interactive && ra.Out != "" {
		fmt.Fprintf(progressW, "report: %s\n", ra.Out)
	}
	if rr.OK() {
		return 0
	}
	return 1
}

type runArgs struct {
	CLI     config.CLIArgs
	Out     string
	Verbose bool
}

// parseRunArgs 解析 run 的参数：位置参数都是来源，值参数同时支持 "--k v" 与 "--k=v"。
func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	value := func(i *int, a, name string) (string, error) {
		if strings.HasPrefix(a, name+"=") {
			return strings.TrimPrefix(a, name+"="), nil
		}
		if *i+1 >= len(args) {
			return "", fmt.Errorf("%s 需要一个值", name)
		}
		*i++
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		name := a
		if k, _, ok := strings.Cut(a, "="); ok {
			name = k
		}
		switch {
		case name == "--selector" || name == "--like" || name == "--base" || name == "--out":
			v, err := value(&i, a, name)
			if err != nil {
				return runArgs{}, err
			}
			if strings.TrimSpace(v) == "" {
				return runArgs{}, fmt.Errorf("%s 不能为空", name)
			}
			switch name {
			case "--selector":
				ra.CLI.Selector = v
			case "--like":
				ra.CLI.Like = v
			case "--base":
				ra.CLI.BaseURL = v
			case "--out":
				ra.Out = v
			}
		case a == "--strict":
			ra.CLI.Strict = true
			ra.CLI.StrictSet = true
		case strings.HasPrefix(a, "--strict="):
			b, err := parseBool("--strict", strings.TrimPrefix(a, "--strict="))
			if err != nil {
				return runArgs{}, err
			}
			ra.CLI.Strict = b
			ra.CLI.StrictSet = true
		case a == "-v" || a == "--verbose":
			ra.Verbose = true
		case a == "-":
			ra.CLI.Sources = append(ra.CLI.Sources, a)
		case strings.HasPrefix(a, "-"):
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			ra.CLI.Sources = append(ra.CLI.Sources, a)
		}
	}
	return ra, nil
}

func parseBool(name, v string) (bool, error) {
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", name, v)
	}
}

// parseCmd 解析单个 srcset 字符串并输出候选列表与选中的 URL。
func parseCmd(args []string, stdout, stderr io.Writer) int {
	strict := false
	var input []string
	for _, a := range args {
		switch {
		case isHelp(a):
			printParseUsage(stdout)
			return 0
		case a == "--strict":
			strict = true
		case strings.HasPrefix(a, "--strict="):
			b, err := parseBool("--strict", strings.TrimPrefix(a, "--strict="))
			if err != nil {
				fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
				printParseUsage(stderr)
				return 2
			}
			strict = b
		case strings.HasPrefix(a, "--"):
			fmt.Fprintf(stderr, "参数错误：未知参数 %q\n\n", a)
			printParseUsage(stderr)
			return 2
		default:
			input = append(input, a)
		}
	}
	if len(input) != 1 {
		fmt.Fprintf(stderr, "参数错误：需要且只需要一个 srcset 字符串（实际 %d 个）\n\n", len(input))
		printParseUsage(stderr)
		return 2
	}

	out := parseOutput{Input: input[0], Strict: strict, Candidates: srcset.List{}}
	list, err := srcset.Parse(input[0], srcset.Options{Strict: strict})
	if err != nil {
		out.ErrorCode = string(srcset.KindOf(err))
		out.ErrorMsg = err.Error()
	} else {
		out.Candidates = list
		out.Best, out.OK = srcset.PickBest(list)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if werr := enc.Encode(out); werr != nil {
		fmt.Fprintf(stderr, "写入输出失败：%v\n", werr)
		return 1
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

type parseOutput struct {
	Input      string      `json:"input"`
	Strict     bool        `json:"strict"`
	Candidates srcset.List `json:"candidates"`
	Best       string      `json:"best"`
	OK         bool        `json:"ok"`
	ErrorCode  string      `json:"error_code,omitempty"`
	ErrorMsg   string      `json:"error_msg,omitempty"`
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  srcpick run [source...] [--selector CSS | --like CSS] [--base URL] [--strict[=true|false]] [--out FILE] [-v]
  srcpick parse [--strict] <srcset>

命令：
  run    检查 HTML 来源（文件/目录/URL/"-"），为每张图片从 srcset 中选出最大的候选
  parse  解析单个 srcset 字符串，输出候选列表与选中的 URL

使用 "srcpick run --help" 查看详细说明。
`)
}

func printRunUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  srcpick run [source...] [flags]

来源：
  本地 HTML 文件、目录（按 exts 递归收集）、http/https URL，或 "-" 表示 stdin。
  未给出来源时读取 srcpick.json / srcpick.toml 的 sources。

参数：
  --selector  收集图片的 CSS 选择器（默认 img）
  --like      样例选择器：取第一个匹配元素的结构路径，收集所有相似元素
  --base      解析相对 URL 的基准地址（覆盖 <base href> 与页面 URL）
  --strict    严格校验 srcset；支持 --strict=false 覆盖配置中的 strict=true
  --out       把 report JSON 原子写入该文件
  -v, --verbose  诊断日志输出到 stderr
  -h, --help  显示帮助
`)
}

func printParseUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  srcpick parse [--strict[=true|false]] <srcset>

示例：
  srcpick parse "a.jpg 1x, b.jpg 2x"
`)
}

// emitReport 的错误只来自写 stdout（例如下游管道已关闭）。
func emitReport(rr domain.RunReport) error {
	return writeReport(os.Stdout, os.Stderr, isTTY(os.Stdout), rr)
}

func writeReport(stdout, stderr io.Writer, tty bool, rr domain.RunReport) error {
	if tty {
		_, err := fmt.Fprintln(stdout, summaryLine(rr))
		emitFailures(stderr, rr)
		return err
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	if err := json.NewEncoder(stdout).Encode(rr); err != nil {
		return err
	}
	fmt.Fprintln(stderr, summaryLine(rr))
	return nil
}

func summaryLine(rr domain.RunReport) string {
	s := rr.Summary
	return fmt.Sprintf("完成：processed=%d empty=%d failed=%d images: picked=%d none=%d failed=%d skipped=%d",
		s.Processed, s.Empty, s.Failed, s.ImagesPicked, s.ImagesNone, s.ImagesFailed, s.ImagesSkipped,
	)
}

func emitFailures(w io.Writer, rr domain.RunReport) {
	for _, it := range rr.Items {
		key := it.Source
		if key == "" {
			key = "<config>"
		}
		if it.Status == domain.StatusFailed {
			fmt.Fprintf(w, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		for _, img := range it.Images {
			if img.Status == domain.ImageStatusFailed {
				fmt.Fprintf(w, "%s #%d %s: %s\n", key, img.Index, img.ErrorCode, img.ErrorMsg)
			}
		}
	}
}

func reportForError(cli config.CLIArgs, code string, err error) domain.RunReport {
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	now := time.Now().UTC()
	rr := domain.RunReport{
		Strict:     cli.StrictSet && cli.Strict,
		Selector:   cli.Selector,
		Like:       cli.Like,
		StartedAt:  now,
		FinishedAt: now,
		Items:      []domain.SourceResult{run.SyntheticFailed(code, err.Error())},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFile(path, b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}
