package srcset

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Options 控制 Parse 的校验强度。
type Options struct {
	// Strict=true：任何规则违反立即失败，不返回部分结果。
	// Strict=false：只做宽松切分 + best-effort 解码，永不失败。
	Strict bool
}

// ws 与浏览器正则里的 \s 一致（RE2 的 \s 只覆盖 ASCII）。
const ws = `\t\n\v\f\r \x{a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}`

// candidateRE 是 "image candidate string" 的宽松规则：
//  1. 任意前导空白
//  2. 非空 URL：不含空白，且不以 ',' 开头或结尾
//  3. 可选：空白 + 一段不含 ',' 的 descriptor 文本（可能含多个 token，交给校验阶段报错）
//  4. 任意尾随空白
//  5. 以 ',' 或字符串结尾终止
//
// 这里故意放宽，让严格校验能给出可定位的错误，而不是静默丢弃。
var candidateRE = regexp.MustCompile(
	`[` + ws + `]*([^,` + ws + `](?:[^` + ws + `]*[^,` + ws + `])?)(?:[` + ws + `]+([^,]+))?[` + ws + `]*(?:,|$)`,
)

// numberRE 对齐 parseFloat 的前缀语义：只取开头的十进制数，其余忽略。
var numberRE = regexp.MustCompile(`^[+-]?(?:Infinity|(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?)`)

// rawCandidate 是切分阶段的产物：尚未解码、尚未校验。
type rawCandidate struct {
	url         string
	descriptors []string
}

type descriptor struct {
	token string
	kind  rune
	value float64
}

// Parse 把 candidate list 字符串解析为有序的 Candidate 列表。
//
// 两阶段：tokenize 只负责宽松切分；assemble 负责解码与（严格模式下的）语义校验。
// 严格模式的校验账本只存在于本次调用内，调用结束即丢弃。
func Parse(input string, opts Options) (List, error) {
	raws := tokenize(input)

	var lg *ledger
	if opts.Strict {
		lg = newLedger()
	}

	out := make(List, 0, len(raws))
	for i, rc := range raws {
		c, err := assemble(i, rc, lg)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func tokenize(input string) []rawCandidate {
	matches := candidateRE.FindAllStringSubmatch(input, -1)
	out := make([]rawCandidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, rawCandidate{
			url:         m[1],
			descriptors: strings.FieldsFunc(m[2], isSpace),
		})
	}
	return out
}

func isSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ', 0xa0, 0x1680, 0x2028, 0x2029, 0x202f, 0x205f, 0x3000, 0xfeff:
		return true
	}
	return r >= 0x2000 && r <= 0x200a
}

// lg==nil 表示非严格模式。
func assemble(idx int, rc rawCandidate, lg *ledger) (Candidate, error) {
	c := Candidate{URL: rc.url}

	if lg != nil {
		if err := lg.checkCount(idx, rc); err != nil {
			return Candidate{}, err
		}
	}

	for _, tok := range rc.descriptors {
		d := decode(tok)
		if lg != nil {
			if err := lg.checkDescriptor(idx, rc.url, d); err != nil {
				return Candidate{}, err
			}
		}
		c = withDescriptor(c, d)
	}
	return c, nil
}

func decode(tok string) descriptor {
	kind, size := utf8.DecodeLastRuneInString(tok)
	return descriptor{
		token: tok,
		kind:  kind,
		value: parseNumber(tok[:len(tok)-size]),
	}
}

// parseNumber 取 s 开头的十进制数；没有数字前缀时返回 NaN。
func parseNumber(s string) float64 {
	m := numberRE.FindString(s)
	if m == "" {
		return math.NaN()
	}
	m = strings.Replace(m, "Infinity", "Inf", 1)
	v, err := strconv.ParseFloat(m, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	return v
}

func dimensionOf(kind rune) Dimension {
	switch kind {
	case 'w':
		return Width
	case 'h':
		return Height
	case 'x':
		return Density
	default:
		return NoDescriptor
	}
}

// withDescriptor 把 d 合入 c，保持“至多一个 descriptor”。
// 只有非严格模式会遇到多个 descriptor：保留选择器优先读取的那一种（width > height > density），
// 同种重复时后者覆盖前者。未知种类直接忽略。
func withDescriptor(c Candidate, d descriptor) Candidate {
	dim := dimensionOf(d.kind)
	if dim == NoDescriptor {
		return c
	}
	if c.Dimension == NoDescriptor || dim <= c.Dimension {
		c.Dimension = dim
		c.Value = d.value
	}
	return c
}

// ledger 是严格模式下单次 Parse 的校验账本：记录已出现的 (kind, value) 与 fallback。
type ledger struct {
	seen     map[rune]map[float64]bool
	fallback bool
}

func newLedger() *ledger {
	return &ledger{seen: make(map[rune]map[float64]bool, 2)}
}

func (l *ledger) checkCount(idx int, rc rawCandidate) error {
	switch n := len(rc.descriptors); {
	case n == 0:
		// 无 descriptor 的 candidate 等价于 1x。
		if l.fallback {
			return &Error{Kind: FallbackConflict, Index: idx, URL: rc.url, Msg: "only one fallback image candidate is allowed"}
		}
		if l.seen['x'][1] {
			return &Error{Kind: FallbackConflict, Index: idx, URL: rc.url, Msg: "a fallback image is equivalent to a 1x descriptor, providing both is invalid"}
		}
		l.fallback = true
	case n > 1:
		return &Error{
			Kind:  MalformedCount,
			Index: idx,
			URL:   rc.url,
			Token: strings.Join(rc.descriptors, " "),
			Msg:   fmt.Sprintf("image candidate may have no more than one descriptor, found %d: %s", n, strings.Join(rc.descriptors, " ")),
		}
	}
	return nil
}

func (l *ledger) checkDescriptor(idx int, url string, d descriptor) error {
	fail := func(kind ErrorKind, msg string) error {
		return &Error{Kind: kind, Index: idx, URL: url, Token: d.token, Msg: msg}
	}

	if math.IsNaN(d.value) {
		return fail(NotANumber, d.token+" is not a valid number")
	}

	switch d.kind {
	case 'w':
		if d.value <= 0 {
			return fail(InvalidWidth, "width descriptor must be > 0")
		}
		if math.IsInf(d.value, 0) || d.value != math.Trunc(d.value) {
			return fail(InvalidWidth, "width descriptor must be an integer")
		}
	case 'x':
		if d.value <= 0 {
			return fail(InvalidDensity, "pixel density descriptor must be > 0")
		}
		if d.value == 1 && l.fallback {
			return fail(FallbackConflict, "a fallback image is equivalent to a 1x descriptor, providing both is invalid")
		}
	case 'h':
		return fail(UnsupportedDescriptor, "height descriptor is no longer allowed")
	default:
		return fail(UnsupportedDescriptor, "invalid descriptor: "+d.token)
	}

	byValue := l.seen[d.kind]
	if byValue == nil {
		byValue = make(map[float64]bool)
		l.seen[d.kind] = byValue
	}
	if byValue[d.value] {
		return fail(DuplicateDescriptor, fmt.Sprintf("no more than one image candidate is allowed for a given descriptor: %s%c",
			strconv.FormatFloat(d.value, 'f', -1, 64), d.kind))
	}
	byValue[d.value] = true
	return nil
}
