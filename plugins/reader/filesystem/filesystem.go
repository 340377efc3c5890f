// Package filesystem 从本地文件或 STDIN 打开输入文档。
package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"htmlsplit/pkg/contract"
)

// StdinID: STDIN 输入的 FileID。
const StdinID contract.FileID = "stdin"

// Options 为 FileSystem Reader 的配置。
type Options struct {
	// BufSize: 读缓冲；<=0 为 64KiB。
	BufSize int `json:"buf_size"`
	// Index: root 为目录时打开的文件名。为空使用 "index.html"。
	Index string `json:"index"`
}

// FileSystem 实现 contract.Reader。
type FileSystem struct {
	bufSize int
	index   string
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	r := &FileSystem{bufSize: 64 * 1024, index: "index.html"}
	if opts != nil && opts.BufSize > 0 {
		r.bufSize = opts.BufSize
	}
	if opts != nil && opts.Index != "" {
		r.index = opts.Index
	}
	return r
}

var _ contract.Reader = (*FileSystem)(nil)

// Open 打开 root 指向的文档："" 或 "-" 为 STDIN；目录则打开其中的 Index 文件；
// 符号链接只跟随到常规文件。
func (r *FileSystem) Open(ctx context.Context, root string) (contract.FileID, io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if root == "" || root == "-" {
		// STDIN 不由我们关闭。
		return StdinID, newBufferedCloser(io.NopCloser(os.Stdin), r.bufSize), nil
	}
	root, err := r.Resolve(root)
	if err != nil {
		return "", nil, err
	}
	f, err := os.Open(root)
	if err != nil {
		return "", nil, err
	}
	return contract.NormalizeFileID(root), newBufferedCloser(f, r.bufSize), nil
}

// Resolve 返回 root 实际对应的文件路径（目录取其 Index 文件），并确认其为常规文件。
func (r *FileSystem) Resolve(root string) (string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		root = filepath.Join(root, r.index)
		if info, err = os.Stat(root); err != nil {
			return "", err
		}
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s: not a regular file: %w", root, contract.ErrInvalidInput)
	}
	return root, nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
