package srcset

import (
	"encoding/json"
	"math"
)

// Dimension 标记 Candidate 携带的 descriptor 种类。
// 一个 Candidate 至多携带一个 descriptor：Dimension 决定 Value 的含义。
type Dimension uint8

const (
	NoDescriptor Dimension = iota
	Width
	Height
	Density
)

func (d Dimension) String() string {
	switch d {
	case Width:
		return "width"
	case Height:
		return "height"
	case Density:
		return "density"
	default:
		return "none"
	}
}

// Candidate 是 candidate list 中的一项：URL + 至多一个 descriptor。
//
// URL 对本包是不透明字符串（不做 URL 校验）。
// Dimension==NoDescriptor 时 Value 无意义（恒为 0）。
type Candidate struct {
	URL       string
	Dimension Dimension
	Value     float64
}

// List 保持输入中的出现顺序，不合并、不去重。
type List []Candidate

// Width 返回 width descriptor；未携带时 ok=false。
func (c Candidate) Width() (float64, bool) { return c.valueOf(Width) }

// Height 返回 height descriptor（仅非严格模式可能出现）。
func (c Candidate) Height() (float64, bool) { return c.valueOf(Height) }

// Density 返回 pixel density descriptor。
func (c Candidate) Density() (float64, bool) { return c.valueOf(Density) }

func (c Candidate) valueOf(d Dimension) (float64, bool) {
	if c.Dimension != d || d == NoDescriptor {
		return 0, false
	}
	return c.Value, true
}

// MarshalJSON 输出 {"url":..., "<dimension>":value}。
// 非严格模式下 Value 可能是 NaN/Inf（JSON 无法表示），此时输出 null。
func (c Candidate) MarshalJSON() ([]byte, error) {
	m := map[string]any{"url": c.URL}
	if c.Dimension != NoDescriptor {
		var v any
		if !math.IsNaN(c.Value) && !math.IsInf(c.Value, 0) {
			v = c.Value
		}
		m[c.Dimension.String()] = v
	}
	return json.Marshal(m)
}
