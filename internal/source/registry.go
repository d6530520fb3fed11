package source

import (
	"fmt"
	"strings"
)

// Registry 是 loader 的只读注册表，Resolve 按注册顺序匹配。
type Registry struct {
	loaders []Loader
}

func NewRegistry(loaders ...Loader) (Registry, error) {
	seen := make(map[string]struct{}, len(loaders))
	out := make([]Loader, 0, len(loaders))
	for _, l := range loaders {
		if l == nil {
			return Registry{}, fmt.Errorf("loader 不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(l.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("loader.Name 不能为空")
		}
		if _, ok := seen[name]; ok {
			return Registry{}, fmt.Errorf("重复的 loader：%q", name)
		}
		seen[name] = struct{}{}
		out = append(out, l)
	}
	return Registry{loaders: out}, nil
}

func (r Registry) Resolve(ref string) (Loader, bool) {
	ref = normRef(ref)
	if ref == "" {
		return nil, false
	}
	for _, l := range r.loaders {
		if l.Match(ref) {
			return l, true
		}
	}
	return nil, false
}
