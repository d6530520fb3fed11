package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/John-Robertt/srcpick/internal/config"
	"github.com/John-Robertt/srcpick/internal/domain"
)

// File 读取本地 HTML 文件。目录由 scan 展开，不在这里处理。
type File struct{}

func (File) Name() string { return "file" }

func (File) Match(ref string) bool {
	return ref != "-" && !config.IsRemote(ref)
}

func (File) Load(ctx context.Context, ref string) (domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return domain.Page{}, err
	}
	path := filepath.Clean(normRef(ref))
	fi, err := os.Stat(path)
	if err != nil {
		return domain.Page{}, err
	}
	if fi.IsDir() {
		return domain.Page{}, errors.New("来源是目录（应先展开为文件）")
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.Page{}, err
	}
	defer f.Close()

	b, err := readLimited(f)
	if err != nil {
		return domain.Page{}, err
	}
	h, err := decodeHTML(b, "")
	if err != nil {
		return domain.Page{}, err
	}
	return domain.Page{Source: ref, Loader: "file", HTML: h}, nil
}

// Stdin 从标准输入读取一份 HTML（引用固定为 "-"）。
type Stdin struct {
	// R 为空时使用 os.Stdin；测试可注入。
	R io.Reader
}

func (Stdin) Name() string { return "stdin" }

func (Stdin) Match(ref string) bool { return ref == "-" }

func (s Stdin) Load(ctx context.Context, ref string) (domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return domain.Page{}, err
	}
	r := s.R
	if r == nil {
		r = os.Stdin
	}
	b, err := readLimited(r)
	if err != nil {
		return domain.Page{}, err
	}
	h, err := decodeHTML(b, "")
	if err != nil {
		return domain.Page{}, err
	}
	return domain.Page{Source: ref, Loader: "stdin", HTML: h}, nil
}
