package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"htmlsplit/internal/diag"
	"htmlsplit/internal/engine"
	"htmlsplit/internal/manifest"
	"htmlsplit/pkg/contract"
	wfs "htmlsplit/plugins/writer/filesystem"
	wmem "htmlsplit/plugins/writer/memory"
)

// 通用桩件 ----------------------------------------------------
type stubReader struct {
	id  contract.FileID
	doc string
}

func (s stubReader) Open(ctx context.Context, root string) (contract.FileID, io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	return s.id, io.NopCloser(strings.NewReader(s.doc)), nil
}

type failingReader struct{}

func (failingReader) Open(ctx context.Context, root string) (contract.FileID, io.ReadCloser, error) {
	return "", nil, &os.PathError{Op: "open", Path: root, Err: os.ErrNotExist}
}

const page = "<html><head></head><body>\n" +
	"<script>class Foo{}</script>\n" +
	"<style>.a{}</style>\n" +
	"<script>helper()</script>\n" +
	"</body></html>"

func settings() Settings {
	return Settings{
		Input: "page.html",
		Engine: engine.Options{
			Modules: []contract.ModuleSpec{
				{Name: "config", Path: "js/config.js", Kind: contract.Script, Role: contract.RoleConfig, External: true},
				{Name: "mod-a", Path: "js/modules/a.js", Kind: contract.Script, Role: contract.RoleFeature},
				{Name: "utils", Path: "js/utils.js", Kind: contract.Script, Role: contract.RoleFeature},
				{Name: "styles", Path: "css/main.css", Kind: contract.Style, Role: contract.RoleFeature},
				{Name: "app", Path: "js/app.js", Kind: contract.Script, Role: contract.RoleEntry, External: true},
			},
			Rules: []contract.ClassificationRule{
				{Module: "mod-a", Match: func(c string) bool { return strings.Contains(c, "class Foo") }},
			},
			CatchAll: map[contract.BlockKind]string{contract.Script: "utils", contract.Style: "styles"},
			Dedent:   true,
		},
	}
}

type syncBuffer struct{ bytes.Buffer }

func (*syncBuffer) Sync() error { return nil }

// UT-PIP-01: 生成模块按声明顺序写出，文档最后
func TestRunWritesModulesThenDocument(t *testing.T) {
	w := wmem.New(nil)
	var logs syncBuffer
	logger := diag.NewLoggerTo(&logs, "c", "debug")
	rep, err := Run(context.Background(), Components{Reader: stubReader{id: "site/page.html", doc: page}, Writer: w}, settings(), logger)
	require.NoError(t, err)

	want := []contract.ArtifactID{"js/modules/a.js", "js/utils.js", "css/main.css", "page.html"}
	require.Equal(t, want, rep.Written)
	require.Equal(t, want, w.Written(), "memory writer is not a Locator, no manifest expected")
	require.Empty(t, rep.Skipped)
	require.Equal(t, contract.ArtifactID("page.html"), rep.Document)

	a, _ := w.Get("js/modules/a.js")
	require.Equal(t, "class Foo{}\n", string(a))
	doc, _ := w.Get("page.html")
	require.NotContains(t, string(doc), "<script>")
	require.Contains(t, string(doc), `<script src="js/config.js"></script>`)
	require.Less(t, strings.Index(string(doc), "js/utils.js"), strings.Index(string(doc), "js/app.js"))

	require.Contains(t, logs.String(), `"comp":"writer"`)
	require.Contains(t, logs.String(), `"artifact":"css/main.css"`)
}

// UT-PIP-02: 单工件写失败返回 WriteError，先前工件保持
func TestRunWriteErrorKeepsSiblings(t *testing.T) {
	w := wmem.New(&wmem.Options{FailOn: []string{"js/utils.js"}})
	_, err := Run(context.Background(), Components{Reader: stubReader{id: "page.html", doc: page}, Writer: w}, settings(), nil)
	var we *contract.WriteError
	require.ErrorAs(t, err, &we)
	require.Equal(t, contract.ArtifactID("js/utils.js"), we.Artifact)
	require.ErrorIs(t, err, wmem.ErrInjected)
	require.Equal(t, diag.CodeIO, diag.Classify(err))

	require.Equal(t, []contract.ArtifactID{"js/modules/a.js"}, w.Written())
	_, ok := w.Get("page.html")
	require.False(t, ok)
}

// UT-PIP-03: 分解失败不写出任何工件
func TestRunEngineErrorWritesNothing(t *testing.T) {
	w := wmem.New(nil)
	doc := "<body><script>class Foo{}</body>"
	_, err := Run(context.Background(), Components{Reader: stubReader{id: "page.html", doc: doc}, Writer: w}, settings(), nil)
	var se *contract.ScanError
	require.ErrorAs(t, err, &se)
	require.Equal(t, strings.Index(doc, "<script>"), se.Offset)
	require.True(t, strings.HasPrefix(err.Error(), "engine: "))
	require.Empty(t, w.Written())
}

// UT-PIP-04: 清单使重复运行跳过未变工件
func TestRunManifestSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	fw, err := wfs.New(&wfs.Options{OutputDir: dir})
	require.NoError(t, err)
	set := settings()
	set.Manifest = true
	set.Document = "index.html"
	comp := Components{Reader: stubReader{id: "page.html", doc: page}, Writer: fw}

	rep, err := Run(context.Background(), comp, set, nil)
	require.NoError(t, err)
	require.Len(t, rep.Written, 4)
	require.FileExists(t, filepath.Join(dir, ".htmlsplit-manifest.json"))
	require.FileExists(t, filepath.Join(dir, "js", "modules", "a.js"))
	require.FileExists(t, filepath.Join(dir, "index.html"))

	rep, err = Run(context.Background(), comp, set, nil)
	require.NoError(t, err)
	require.Empty(t, rep.Written)
	require.Len(t, rep.Skipped, 4)

	comp.Reader = stubReader{id: "page.html", doc: strings.Replace(page, "helper()", "helper(2)", 1)}
	rep, err = Run(context.Background(), comp, set, nil)
	require.NoError(t, err)
	require.Equal(t, []contract.ArtifactID{"js/utils.js"}, rep.Written)
	require.Equal(t, []contract.ArtifactID{"js/modules/a.js", "css/main.css", "index.html"}, rep.Skipped)

	// 磁盘上被改动的工件会重新写出
	require.NoError(t, os.WriteFile(filepath.Join(dir, "css", "main.css"), []byte("tampered"), 0o644))
	rep, err = Run(context.Background(), comp, set, nil)
	require.NoError(t, err)
	require.Equal(t, []contract.ArtifactID{"css/main.css"}, rep.Written)
	b, err := os.ReadFile(filepath.Join(dir, "css", "main.css"))
	require.NoError(t, err)
	require.Equal(t, ".a{}\n", string(b))

	// 同长度改动同样被识别
	require.NoError(t, os.WriteFile(filepath.Join(dir, "css", "main.css"), []byte(".b{}\n"), 0o644))
	rep, err = Run(context.Background(), comp, set, nil)
	require.NoError(t, err)
	require.Equal(t, []contract.ArtifactID{"css/main.css"}, rep.Written)

	m, err := manifest.Load(filepath.Join(dir, string(manifest.ID)), "page.html")
	require.NoError(t, err)
	require.Len(t, m.Artifacts, 4)
}

// flakyFS 在指定工件上写失败的文件系统 Writer（保留 Locate）。
type flakyFS struct {
	*wfs.FS
	fail map[contract.ArtifactID]bool
}

func (f flakyFS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if f.fail[id] {
		return errors.New("disk full")
	}
	return f.FS.Write(ctx, id, r)
}

// UT-PIP-04b: 写失败时已写出的工件仍登记进清单；清单也写失败时两个错误都返回
func TestRunWriteErrorSavesManifest(t *testing.T) {
	dir := t.TempDir()
	fw, err := wfs.New(&wfs.Options{OutputDir: dir})
	require.NoError(t, err)
	set := settings()
	set.Manifest = true

	w := flakyFS{FS: fw, fail: map[contract.ArtifactID]bool{"js/utils.js": true}}
	_, err = Run(context.Background(), Components{Reader: stubReader{id: "page.html", doc: page}, Writer: w}, set, nil)
	var we *contract.WriteError
	require.ErrorAs(t, err, &we)
	require.Equal(t, contract.ArtifactID("js/utils.js"), we.Artifact)
	require.NotContains(t, err.Error(), "manifest")
	m, err := manifest.Load(filepath.Join(dir, string(manifest.ID)), "page.html")
	require.NoError(t, err)
	require.Contains(t, m.Artifacts, "js/modules/a.js")
	require.NotContains(t, m.Artifacts, "js/utils.js")

	w.fail[manifest.ID] = true
	_, err = Run(context.Background(), Components{Reader: stubReader{id: "page.html", doc: page}, Writer: w}, set, nil)
	require.ErrorAs(t, err, &we)
	require.Equal(t, contract.ArtifactID("js/utils.js"), we.Artifact)
	require.ErrorContains(t, err, "manifest: ")
	require.ErrorContains(t, err, string(manifest.ID))
}

// UT-PIP-05: 关闭清单时总是写出
func TestRunManifestDisabled(t *testing.T) {
	dir := t.TempDir()
	fw, err := wfs.New(&wfs.Options{OutputDir: dir})
	require.NoError(t, err)
	comp := Components{Reader: stubReader{id: "page.html", doc: page}, Writer: fw}
	for i := 0; i < 2; i++ {
		rep, err := Run(context.Background(), comp, settings(), nil)
		require.NoError(t, err)
		require.Len(t, rep.Written, 4)
	}
	require.NoFileExists(t, filepath.Join(dir, ".htmlsplit-manifest.json"))
}

func TestRunMaxBytes(t *testing.T) {
	set := settings()
	set.MaxBytes = 10
	_, err := Run(context.Background(), Components{Reader: stubReader{id: "page.html", doc: page}, Writer: wmem.New(nil)}, set, nil)
	require.ErrorIs(t, err, contract.ErrInvalidInput)

	set.MaxBytes = int64(len(page))
	_, err = Run(context.Background(), Components{Reader: stubReader{id: "page.html", doc: page}, Writer: wmem.New(nil)}, set, nil)
	require.NoError(t, err)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := wmem.New(nil)
	_, err := Run(ctx, Components{Reader: stubReader{id: "page.html", doc: page}, Writer: w}, settings(), nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, diag.CodeCancel, diag.Classify(err))
	require.Empty(t, w.Written())
}

func TestRunReaderError(t *testing.T) {
	var logs syncBuffer
	logger := diag.NewLoggerTo(&logs, "c", zapcore.InfoLevel.String())
	_, err := Run(context.Background(), Components{Reader: failingReader{}, Writer: wmem.New(nil)}, settings(), logger)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Contains(t, logs.String(), `"code":"io"`)
}

func TestSanity(t *testing.T) {
	_, err := Run(context.Background(), Components{}, settings(), nil)
	require.Error(t, err)
	_, err = Run(context.Background(), Components{Reader: stubReader{}, Writer: wmem.New(nil)}, Settings{}, nil)
	require.Error(t, err)
}

func TestDecomposeOnly(t *testing.T) {
	fid, res, err := Decompose(context.Background(), stubReader{id: "page.html", doc: page}, settings(), nil)
	require.NoError(t, err)
	require.Equal(t, contract.FileID("page.html"), fid)
	require.Len(t, res.Blocks, 3)

	_, _, err = Decompose(context.Background(), stubReader{id: "x", doc: "<script>"}, settings(), nil)
	require.True(t, errors.Is(err, contract.ErrScan))
}

func TestDocumentID(t *testing.T) {
	cases := []struct {
		set  contract.ArtifactID
		fid  contract.FileID
		want contract.ArtifactID
	}{
		{"", "site/index.html", "index.html"},
		{"", "about.htm", "about.htm"},
		{"", "stdin", DefaultDocument},
		{"out\\page.html", "stdin", "out/page.html"},
		{"", "/", DefaultDocument},
	}
	for _, tt := range cases {
		require.Equal(t, tt.want, documentID(tt.set, tt.fid), "%q %q", tt.set, tt.fid)
	}
}
