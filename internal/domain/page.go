package domain

// Page 是加载器读到的一份 HTML 文档（已解码为 UTF-8）。
type Page struct {
	Source string // 用户给出的原始引用：文件路径 / "-" / URL
	Loader string // 实际使用的加载器名（file / stdin / http）
	URL    string // 文档地址（仅 http 来源），用于解析相对 URL
	HTML   []byte
}
