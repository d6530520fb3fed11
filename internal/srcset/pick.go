package srcset

// PickBest 选出 descriptor 最大的 candidate URL。
//
// 规则：
// - 由首个 candidate 的 Dimension 决定整个列表按哪一维比较；首项无 descriptor => 无法选择
// - 运行最大值从 0 起步，只有严格大于才更新（并列时保留最早的那个）
// - 与首项维度不同的 candidate 直接跳过，不做跨维比较（混合列表属于输入错误，这里不检测）
//
// 没有任何值超过 0 时 ok=false，调用方应视为“没有找到图片”而不是错误。
func PickBest(list List) (url string, ok bool) {
	if len(list) == 0 {
		return "", false
	}
	dim := list[0].Dimension
	if dim == NoDescriptor {
		return "", false
	}

	max := 0.0
	for _, c := range list {
		v, has := c.valueOf(dim)
		if !has {
			continue
		}
		// NaN 与任何值比较都为 false，天然不会胜出。
		if v > max {
			max = v
			url = c.URL
			ok = true
		}
	}
	return url, ok
}

// Best 是 Parse + PickBest 的便捷组合。
// 严格模式下的校验错误原样返回；解析成功但选不出结果时 ok=false、err=nil。
func Best(input string, opts Options) (url string, ok bool, err error) {
	list, err := Parse(input, opts)
	if err != nil {
		return "", false, err
	}
	url, ok = PickBest(list)
	return url, ok, nil
}
