package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"htmlsplit/pkg/contract"
)

// TestMemoryWriter 记录内容与写入顺序，重复写覆盖内容但不改变顺序。
func TestMemoryWriter(t *testing.T) {
	m := New(nil)
	ctx := context.Background()
	for _, w := range []struct{ id, body string }{
		{"js/utils.js", "a"}, {"css\\main.css", "b"}, {"js/utils.js", "c"},
	} {
		if err := m.Write(ctx, contract.ArtifactID(w.id), strings.NewReader(w.body)); err != nil {
			t.Fatalf("write %s: %v", w.id, err)
		}
	}
	got := m.Written()
	if len(got) != 2 || got[0] != "js/utils.js" || got[1] != "css/main.css" {
		t.Fatalf("unexpected order %v", got)
	}
	if s := m.Sorted(); s[0] != "css/main.css" {
		t.Fatalf("unexpected sorted %v", s)
	}
	if b, ok := m.Get("js/utils.js"); !ok || string(b) != "c" {
		t.Fatalf("unexpected content %q", b)
	}
}

// TestMemoryWriterFailOn 注入失败且不记录内容。
func TestMemoryWriterFailOn(t *testing.T) {
	m := New(&Options{FailOn: []string{"index.html"}})
	err := m.Write(context.Background(), "index.html", strings.NewReader("x"))
	if !errors.Is(err, ErrInjected) {
		t.Fatalf("expect injected error, got %v", err)
	}
	if _, ok := m.Get("index.html"); ok {
		t.Fatalf("failed write must not be recorded")
	}
}
