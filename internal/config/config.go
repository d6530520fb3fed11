package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/cascadia"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingSources 表示 CLI 与配置文件都没有给出任何来源。
	ErrCodeMissingSources = "config_missing_sources"
)

const (
	// DefaultSelector 是未指定 selector/like 时收集图片的 CSS 选择器。
	DefaultSelector = "img"
	// DefaultConcurrency 是并发的内置默认值（当配置未指定时）。
	DefaultConcurrency = 4
)

// 配置文件按顺序查找；两者都存在时 JSON 优先。
var fileNames = []string{"srcpick.json", "srcpick.toml"}

// DefaultExts 是目录来源展开时收集的文件扩展名。
var DefaultExts = []string{".html", ".htm"}

// CLIArgs 是 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --strict=false 必须能覆盖 config.strict=true。
type CLIArgs struct {
	Sources  []string
	Selector string
	Like     string
	BaseURL  string

	Strict    bool
	StrictSet bool
}

// FileConfig 对应 srcpick.json / srcpick.toml 的解析结构。
type FileConfig struct {
	Sources     []string     `json:"sources" toml:"sources"`
	Selector    string       `json:"selector" toml:"selector"`
	Like        string       `json:"like" toml:"like"`
	Strict      *bool        `json:"strict" toml:"strict"`
	BaseURL     string       `json:"base_url" toml:"base_url"`
	Concurrency int          `json:"concurrency" toml:"concurrency"`
	Proxy       *ProxyConfig `json:"proxy" toml:"proxy"`
	CacheDir    string       `json:"cache_dir" toml:"cache_dir"`
	Exts        []string     `json:"exts" toml:"exts"`
}

type ProxyConfig struct {
	URL string `json:"url" toml:"url"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigPath 是实际读取的配置文件；未找到时为空。
	ConfigPath string

	// Sources 中的本地路径已是 clean + absolute；URL 与 "-" 原样保留。
	Sources []string

	Selector string
	Like     string
	Strict   bool
	BaseURL  string

	Concurrency int
	ProxyURL    string
	CacheDir    string
	Exts        []string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeMissingSources:
		if e.Path != "" {
			return fmt.Sprintf("%s：未指定来源（CLI 参数与配置文件 %q 的 sources 均为空）", e.Code, e.Path)
		}
		return fmt.Sprintf("%s：未指定来源（CLI 参数为空且未找到配置文件）", e.Code)
	case ErrCodeInvalid:
		if e.Path == "" {
			// 没有配置文件：错误只可能来自 CLI 参数。
			return fmt.Sprintf("%s：参数无效：%v", e.Code, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 在 cwd 下发现并读取可选的配置文件，然后与 CLI 参数合并为最终配置。
//
// 覆盖优先级（固定）：
// - sources：CLI 非空 > config
// - selector/like/base_url：CLI > config > 默认
// - strict：CLI --strict/--strict=false > config > 默认 false
// - 其他字段：仅由 config 控制（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	fc, cfgPath, err := discover(cwdAbs)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	return merge(cwdAbs, cli, fc, cfgPath)
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	raw := cli.Sources
	if len(raw) == 0 {
		raw = fc.Sources
	}
	sources := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		sources = append(sources, normSource(cwdAbs, s))
	}
	if len(sources) == 0 {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingSources, Path: cfgPath}
	}

	selector := firstNonEmpty(cli.Selector, fc.Selector, DefaultSelector)
	if err := validateSelector("selector", selector); err != nil {
		return EffectiveConfig{}, invalid(err)
	}
	like := firstNonEmpty(cli.Like, fc.Like)
	if like != "" {
		if err := validateSelector("like", like); err != nil {
			return EffectiveConfig{}, invalid(err)
		}
	}

	// strict：CLI > config > 默认 false
	strict := false
	if cli.StrictSet {
		strict = cli.Strict
	} else if fc.Strict != nil {
		strict = *fc.Strict
	}

	baseURL := firstNonEmpty(cli.BaseURL, fc.BaseURL)
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, invalid(fmt.Errorf("base_url 无效：%q", baseURL))
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return EffectiveConfig{}, invalid(fmt.Errorf("base_url 必须是 http/https：%q", baseURL))
		}
	}

	concurrency := fc.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	// 范围 [1, 32]；超出截断。
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 32 {
		concurrency = 32
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, invalid(fmt.Errorf("proxy.url 无效：%w", err))
		}
	}

	cacheDir := ""
	if strings.TrimSpace(fc.CacheDir) != "" {
		cacheDir = absCleanFrom(cwdAbs, fc.CacheDir)
	}

	exts, err := normExts(fc.Exts)
	if err != nil {
		return EffectiveConfig{}, invalid(err)
	}

	return EffectiveConfig{
		ConfigPath:  cfgPath,
		Sources:     sources,
		Selector:    selector,
		Like:        like,
		Strict:      strict,
		BaseURL:     baseURL,
		Concurrency: concurrency,
		ProxyURL:    proxyURL,
		CacheDir:    cacheDir,
		Exts:        exts,
	}, nil
}

// IsRemote 判断来源是否是 http/https URL。
func IsRemote(s string) bool {
	low := strings.ToLower(s)
	return strings.HasPrefix(low, "http://") || strings.HasPrefix(low, "https://")
}

func normSource(cwdAbs, s string) string {
	if s == "-" || IsRemote(s) {
		return s
	}
	return absCleanFrom(cwdAbs, s)
}

func validateSelector(field, sel string) error {
	if _, err := cascadia.Compile(sel); err != nil {
		return fmt.Errorf("%s 不是合法的 CSS 选择器 %q：%w", field, sel, err)
	}
	return nil
}

func normExts(in []string) ([]string, error) {
	if len(in) == 0 {
		return append([]string(nil), DefaultExts...), nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.ContainsAny(e, `/\`) {
			return nil, fmt.Errorf("exts 含非法扩展名：%q", e)
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultExts...), nil
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// discover 按 fileNames 顺序查找配置文件；都不存在时返回零值且 cfgPath 为空。
func discover(dir string) (FileConfig, string, error) {
	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		fc, exists, err := readFileConfig(path)
		if err != nil {
			return FileConfig{}, path, err
		}
		if exists {
			return fc, path, nil
		}
	}
	return FileConfig{}, "", nil
}

// readFileConfig 读取并解析配置文件（按扩展名选择 JSON 或 TOML）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	switch filepath.Ext(path) {
	case ".toml":
		err = toml.Unmarshal(b, &fc)
	default:
		err = json.Unmarshal(b, &fc)
	}
	if err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
