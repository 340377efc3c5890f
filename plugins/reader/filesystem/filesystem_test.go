package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"htmlsplit/pkg/contract"
)

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}

// TestOpenFile 读取单文件，FileID 已规范化。
func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "page.html")
	if err := os.WriteFile(fp, []byte("<html></html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	id, rc, err := New(nil).Open(context.Background(), fp)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := readAll(t, rc); got != "<html></html>" {
		t.Fatalf("content %q", got)
	}
	if id != contract.NormalizeFileID(fp) {
		t.Fatalf("file id mismatch %s", id)
	}
}

// TestOpenDirIndex 目录输入打开其中的 index 文件。
func TestOpenDirIndex(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "index.html"), []byte("i"), 0o644)
	os.WriteFile(filepath.Join(dir, "other.html"), []byte("o"), 0o644)

	_, rc, err := New(nil).Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := readAll(t, rc); got != "i" {
		t.Fatalf("want index.html, got %q", got)
	}

	id, rc, err := New(&Options{Index: "other.html"}).Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := readAll(t, rc); got != "o" || filepath.Base(string(id)) != "other.html" {
		t.Fatalf("want other.html, got %q (%s)", got, id)
	}
}

// TestOpenMissing 不存在的路径与缺少 index 的目录都报错。
func TestOpenMissing(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := New(nil).Open(context.Background(), filepath.Join(dir, "nope.html")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expect not exist, got %v", err)
	}
	if _, _, err := New(nil).Open(context.Background(), dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expect not exist for dir without index, got %v", err)
	}
}

// TestOpenSymlink 符号链接跟随到常规文件。
func TestOpenSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink requires privileges on windows")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "t.html")
	os.WriteFile(target, []byte("ok"), 0o644)
	link := filepath.Join(dir, "l.html")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	id, rc, err := New(nil).Open(context.Background(), link)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := readAll(t, rc); got != "ok" || filepath.Base(string(id)) != "l.html" {
		t.Fatalf("unexpected %q %s", got, id)
	}
}

// TestOpenStdin "-" 返回 STDIN 标识。
func TestOpenStdin(t *testing.T) {
	id, rc, err := New(&Options{BufSize: 16}).Open(context.Background(), "-")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	if id != StdinID {
		t.Fatalf("want stdin id, got %s", id)
	}
}

// TestOpenCtxCancel 取消的上下文直接返回。
func TestOpenCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := New(nil).Open(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect canceled, got %v", err)
	}
}

// TestResolve 目录解析到 index 文件；目录缺少 index 时报错。
func TestResolve(t *testing.T) {
	dir := t.TempDir()
	if _, err := New(nil).Resolve(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("want not exist, got %v", err)
	}
	os.WriteFile(filepath.Join(dir, "index.html"), []byte("i"), 0o644)
	p, err := New(nil).Resolve(dir)
	if err != nil || p != filepath.Join(dir, "index.html") {
		t.Fatalf("resolve: %q %v", p, err)
	}
	p, err = New(nil).Resolve(filepath.Join(dir, "index.html"))
	if err != nil || filepath.Base(p) != "index.html" {
		t.Fatalf("resolve file: %q %v", p, err)
	}
}
