package inspect

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"

	"github.com/John-Robertt/srcpick/internal/domain"
	"github.com/John-Robertt/srcpick/internal/srcset"
)

// Options 控制一次页面检查。
type Options struct {
	// Selector 为空时使用 "img"。Like 非空时忽略 Selector。
	Selector string
	// Like 选中“样例”元素：取第一个匹配元素的结构路径作为选择器，收集所有相似元素。
	Like string
	// BaseURL 非空时覆盖 <base href> 与页面 URL。
	BaseURL string
	Strict  bool
}

// Error 是来源级的检查失败（图片级失败记录在 ImageResult 里，不走 error）。
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s：%v", e.Code, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Inspect 解析页面 HTML，按选择器收集图片并为每张图选出最终 URL。
//
// 约束：
// - 纯函数：只依赖 page 与 opts，不做任何 I/O
// - 单张图片的 srcset 失败只影响该图片（status=failed），不影响来源整体
func Inspect(page domain.Page, opts Options) (domain.SourceResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.HTML))
	if err != nil {
		return domain.SourceResult{}, &Error{Code: domain.ErrCodeParseFailed, Err: err}
	}

	sel, err := resolveSelector(doc, opts)
	if err != nil {
		return domain.SourceResult{}, err
	}
	m, err := cascadia.Compile(sel)
	if err != nil {
		return domain.SourceResult{}, &Error{Code: domain.ErrCodeSelectorInvalid, Err: fmt.Errorf("%q：%w", sel, err)}
	}

	base := baseURL(doc, page.URL, opts.BaseURL)

	res := domain.SourceResult{
		Source:   page.Source,
		Loader:   page.Loader,
		Title:    normTitle(doc.Find("title").First().Text()),
		BaseURL:  base,
		Selector: sel,
		Status:   domain.StatusProcessed,
		Images:   []domain.ImageResult{},
		URLs:     []string{},
	}

	doc.FindMatcher(m).Each(func(i int, s *goquery.Selection) {
		img := inspectOne(i, s, base, opts.Strict)
		res.Images = append(res.Images, img)
		if img.Status == domain.ImageStatusPicked {
			res.URLs = append(res.URLs, img.URL)
		}
	})
	if len(res.Images) == 0 {
		res.Status = domain.StatusEmpty
	}
	return res, nil
}

func resolveSelector(doc *goquery.Document, opts Options) (string, error) {
	like := strings.TrimSpace(opts.Like)
	if like == "" {
		sel := strings.TrimSpace(opts.Selector)
		if sel == "" {
			sel = "img"
		}
		return sel, nil
	}

	m, err := cascadia.Compile(like)
	if err != nil {
		return "", &Error{Code: domain.ErrCodeSelectorInvalid, Err: fmt.Errorf("like %q：%w", like, err)}
	}
	sample := doc.FindMatcher(m).First()
	if sample.Length() == 0 {
		return "", &Error{Code: domain.ErrCodeLikeNotFound, Err: fmt.Errorf("页面中没有匹配 %q 的元素", like)}
	}
	return StructuralPath(sample.Nodes[0]), nil
}

func inspectOne(idx int, s *goquery.Selection, base string, strict bool) domain.ImageResult {
	n := s.Nodes[0]
	out := domain.ImageResult{
		Index: idx,
		Tag:   n.Data,
		Path:  StructuralPath(n),
	}
	out.Src, _ = s.Attr("src")
	out.Srcset, _ = s.Attr("srcset")

	if n.DataAtom != atom.Img {
		out.Status = domain.ImageStatusSkipped
		out.ErrorCode = domain.ErrCodeNotImage
		out.ErrorMsg = fmt.Sprintf("<%s> 不是 img 元素", n.Data)
		return out
	}

	if strings.TrimSpace(out.Srcset) != "" {
		best, ok, err := srcset.Best(out.Srcset, srcset.Options{Strict: strict})
		switch {
		case err != nil:
			out.Status = domain.ImageStatusFailed
			out.ErrorCode = string(srcset.KindOf(err))
			out.ErrorMsg = err.Error()
		case !ok:
			out.Status = domain.ImageStatusNone
		default:
			out.Status = domain.ImageStatusPicked
			out.From = domain.FromSrcset
			out.URL = resolveURL(base, best)
		}
		return out
	}

	if src := strings.TrimSpace(out.Src); src != "" {
		out.Status = domain.ImageStatusPicked
		out.From = domain.FromSrc
		out.URL = resolveURL(base, src)
		return out
	}
	out.Status = domain.ImageStatusNone
	return out
}

// baseURL 按 override > <base href> > 页面 URL 的顺序取基准地址；都没有时返回空串。
func baseURL(doc *goquery.Document, pageURL, override string) string {
	if s := strings.TrimSpace(override); s != "" {
		return s
	}
	pageURL = strings.TrimSpace(pageURL)
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if href = strings.TrimSpace(href); href != "" {
			if r := resolveURL(pageURL, href); isAbs(r) {
				return r
			}
		}
	}
	return pageURL
}

func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == "" {
		return ref
	}
	bu, err := url.Parse(base)
	if err != nil {
		return ref
	}
	ru, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return bu.ResolveReference(ru).String()
}

func isAbs(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.IsAbs()
}

// StructuralPath 生成元素的结构选择器：每层 tag.class#id，自 <html> 之下到元素本身，以 " > " 连接。
func StructuralPath(n *html.Node) string {
	var parts []string
	for ; n != nil && n.Type == html.ElementNode && n.DataAtom != atom.Html; n = n.Parent {
		parts = append(parts, segment(n))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func segment(n *html.Node) string {
	var b strings.Builder
	b.WriteString(n.Data)
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				b.WriteByte('.')
				b.WriteString(cssEscape(c))
			}
		}
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "id" && a.Val != "" {
			b.WriteByte('#')
			b.WriteString(cssEscape(a.Val))
		}
	}
	return b.String()
}

// cssEscape 把任意字符串转成合法的 CSS 标识符（CSS.escape 的子集）。
func cssEscape(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == 0:
			b.WriteRune('\ufffd')
		case r >= 0x80 || r == '_' || r == '-' && !(i == 0 && len(s) == 1) ||
			r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 || i == 1 && s[0] == '-' {
				fmt.Fprintf(&b, "\\%x ", r)
			} else {
				b.WriteRune(r)
			}
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, "\\%x ", r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normTitle 折叠空白并做 NFC 规范化（同一标题的组合/预组合写法输出一致）。不做文件名清洗。
func normTitle(s string) string { return norm.NFC.String(strings.Join(strings.Fields(s), " ")) }
