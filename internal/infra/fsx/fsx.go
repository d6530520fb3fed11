package fsx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// 测试替换它来模拟 rename 失败。
var renameFunc = os.Rename

// PathTypeConflictError：目标已存在但不是普通文件（常见于 --out 指向目录）。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// WriteFileAtomic 把 data 写到 dir/name：先写同目录的隐藏临时文件，再 rename 覆盖。
// report 和页面缓存都走这里，读者不会看到写了一半的文件。
func WriteFileAtomic(dir, name string, data []byte) (err error) {
	dir = filepath.Clean(dir)
	dst := filepath.Join(dir, name)
	if err := checkRegular(dst); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = renameFunc(tmp.Name(), dst); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

// WriteFile 按完整路径写入，父目录不存在时创建。
func WriteFile(path string, data []byte) error {
	path = filepath.Clean(path)
	return WriteFileAtomic(filepath.Dir(path), filepath.Base(path), data)
}

func checkRegular(path string) error {
	fi, err := os.Lstat(path)
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return err
	case fi.IsDir():
		return &PathTypeConflictError{Path: path, Want: "file", Got: "dir"}
	case !fi.Mode().IsRegular():
		return &PathTypeConflictError{Path: path, Want: "regular file", Got: fi.Mode().Type().String()}
	}
	return nil
}

// 仅 unix 上有意义；失败不影响结果。
func syncDir(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	if f, err := os.Open(dir); err == nil {
		_ = f.Sync()
		_ = f.Close()
	}
}
