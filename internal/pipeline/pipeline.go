package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"htmlsplit/internal/diag"
	"htmlsplit/internal/engine"
	"htmlsplit/internal/manifest"
	"htmlsplit/pkg/contract"
)

// - 单文档、同步：一次 Run 只处理一个输入文档，组件均为同步实现。
// - 先算后写：分解完整成功后才开始写出；分解失败不产生任何工件。
// - 写出顺序：生成模块按声明顺序，重写后的文档最后，清单收尾。
// - 单工件失败：立即返回 *contract.WriteError；已写出的兄弟工件保持不变。

// DefaultDocument: 输入来自 STDIN 且未指定文档名时使用。
const DefaultDocument contract.ArtifactID = "index.html"

// stdinID 与 reader/filesystem.StdinID 一致。
const stdinID contract.FileID = "stdin"

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader contract.Reader
	Writer contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	// Input: 输入路径（文件/目录/"-"）；输出根由 Writer 的 options 决定。
	Input string
	// Document: 重写后文档的工件名；空则取输入文件基名。
	Document contract.ArtifactID
	// MaxBytes: 输入大小上限；<=0 不限制。
	MaxBytes int64
	// Manifest: Writer 实现 contract.Locator 时维护摘要清单并跳过未变工件。
	Manifest bool
	Engine   engine.Options
}

// Report 汇总一次运行。
type Report struct {
	FileID   contract.FileID
	Document contract.ArtifactID
	// Written/Skipped: 按写出顺序；不含清单自身。
	Written []contract.ArtifactID
	Skipped []contract.ArtifactID
	Result  *engine.Result
}

type artifact struct {
	id   contract.ArtifactID
	data []byte
}

// Run 执行完整流水线：Reader → 分解引擎 → Writer。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (*Report, error) {
	if err := sanity(comp, set); err != nil {
		return nil, fmt.Errorf("sanity: %w", err)
	}

	// 读取
	rtimer := logger.Start("reader", "open")
	fid, doc, err := readDocument(ctx, comp.Reader, set)
	if err != nil {
		logFail(logger, "reader", "read failed", "", "", err)
		return nil, fmt.Errorf("reader: %w", err)
	}
	rtimer.Finish("read", int64(len(doc)))
	diag.IncOp("reader", "finish", "success")

	// 分解
	etimer := logger.StartWith("engine", "decompose", string(fid), "")
	res, err := engine.Decompose(string(doc), set.Engine)
	if err != nil {
		logFail(logger, "engine", "decompose failed", string(fid), "", err)
		return nil, fmt.Errorf("engine: %w", err)
	}
	etimer.Finish("decompose", int64(len(res.Blocks)))
	diag.IncOp("engine", "finish", "success")
	logger.DebugStart("engine", "summary", string(fid), "", map[string]string{
		"passes":  strconv.Itoa(res.Passes),
		"blocks":  strconv.Itoa(len(res.Blocks)),
		"modules": strconv.Itoa(len(res.Modules)),
		"kept":    strconv.Itoa(res.Kept),
		"dropped": strconv.Itoa(res.Dropped),
	})
	for _, is := range res.OutputIssues {
		logger.Warn("validate", string(diag.CodeBalance), string(is.Kind), string(fid), map[string]string{
			"offset": strconv.Itoa(is.Offset),
			"tag":    is.TagName,
		})
	}
	for _, l := range res.Lints {
		logger.Warn("lint", "quotes", l.Message, string(fid), map[string]string{"offset": strconv.Itoa(l.Offset)})
	}

	// 写出
	rep := &Report{FileID: fid, Document: documentID(set.Document, fid), Result: res}
	arts := artifacts(res, rep.Document)
	if t := diag.GetTerminal(); t != nil {
		t.FileStart(string(fid), len(arts))
	}
	fileStart := time.Now()
	ok := false
	defer func() {
		if t := diag.GetTerminal(); t != nil {
			t.FileFinish(ok, time.Since(fileStart))
		}
	}()

	loc, prev := openManifest(comp.Writer, set, fid, logger)
	var next *manifest.Manifest
	if prev != nil {
		next = manifest.New(string(fid))
	}
	for _, a := range arts {
		if err := ctx.Err(); err != nil {
			logFail(logger, "writer", "canceled", string(fid), string(a.id), err)
			return rep, fmt.Errorf("writer: %w", err)
		}
		if prev != nil {
			if p, lerr := loc.Locate(a.id); lerr == nil && prev.Unchanged(a.id, a.data, p) {
				next.Record(a.id, a.data)
				rep.Skipped = append(rep.Skipped, a.id)
				diag.IncOp("writer", "finish", "skip")
				logger.DebugStart("writer", "unchanged", string(fid), string(a.id), nil)
				progress(rep, len(res.OutputIssues))
				continue
			}
		}
		if err := write(ctx, comp.Writer, a, string(fid), logger); err != nil {
			// 已写出的兄弟工件仍登记进清单
			if merr := saveManifest(ctx, comp.Writer, next, string(fid), logger); merr != nil {
				err = errors.Join(err, fmt.Errorf("manifest: %w", merr))
			}
			return rep, fmt.Errorf("writer: %w", err)
		}
		if next != nil {
			next.Record(a.id, a.data)
		}
		rep.Written = append(rep.Written, a.id)
		progress(rep, len(res.OutputIssues))
	}
	if err := saveManifest(ctx, comp.Writer, next, string(fid), logger); err != nil {
		return rep, fmt.Errorf("writer: %w", err)
	}
	ok = true
	return rep, nil
}

// Decompose 只读取并分解，不写出（check 子命令使用）。
func Decompose(ctx context.Context, r contract.Reader, set Settings, logger *diag.Logger) (contract.FileID, *engine.Result, error) {
	fid, doc, err := readDocument(ctx, r, set)
	if err != nil {
		logFail(logger, "reader", "read failed", "", "", err)
		return "", nil, fmt.Errorf("reader: %w", err)
	}
	t := logger.StartWith("engine", "decompose", string(fid), "")
	res, err := engine.Decompose(string(doc), set.Engine)
	if err != nil {
		logFail(logger, "engine", "decompose failed", string(fid), "", err)
		return fid, nil, fmt.Errorf("engine: %w", err)
	}
	t.Finish("decompose", int64(len(res.Blocks)))
	diag.IncOp("engine", "finish", "success")
	return fid, res, nil
}

func readDocument(ctx context.Context, r contract.Reader, set Settings) (contract.FileID, []byte, error) {
	fid, rc, err := r.Open(ctx, set.Input)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()
	var src io.Reader = rc
	if set.MaxBytes > 0 {
		src = io.LimitReader(rc, set.MaxBytes+1)
	}
	doc, err := io.ReadAll(src)
	if err != nil {
		return fid, nil, err
	}
	if set.MaxBytes > 0 && int64(len(doc)) > set.MaxBytes {
		return fid, nil, fmt.Errorf("%s exceeds max_bytes (%d): %w", fid, set.MaxBytes, contract.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return fid, nil, err
	}
	return fid, doc, nil
}

// artifacts: 生成模块（声明顺序，跳过 External）后接文档。
func artifacts(res *engine.Result, doc contract.ArtifactID) []artifact {
	out := make([]artifact, 0, len(res.Modules)+1)
	for _, m := range res.Modules {
		if m.External {
			continue
		}
		out = append(out, artifact{id: contract.NormalizeFileID(m.Path), data: []byte(m.Content)})
	}
	return append(out, artifact{id: doc, data: []byte(res.Document)})
}

func documentID(set contract.ArtifactID, fid contract.FileID) contract.ArtifactID {
	if set != "" {
		return contract.NormalizeFileID(string(set))
	}
	if fid == stdinID {
		return DefaultDocument
	}
	base := path.Base(string(fid))
	if base == "." || base == "/" || base == "" {
		return DefaultDocument
	}
	return contract.ArtifactID(base)
}

func write(ctx context.Context, w contract.Writer, a artifact, fid string, logger *diag.Logger) error {
	t := logger.StartWith("writer", "write", fid, string(a.id))
	if err := w.Write(ctx, a.id, bytes.NewReader(a.data)); err != nil {
		werr := &contract.WriteError{Artifact: a.id, Err: err}
		logFail(logger, "writer", "write failed", fid, string(a.id), werr)
		return werr
	}
	t.Finish("write", int64(len(a.data)))
	diag.IncOp("writer", "finish", "success")
	return nil
}

// openManifest 返回 Locator 与上一次的清单；不适用或读取失败时返回 nil 清单。
func openManifest(w contract.Writer, set Settings, fid contract.FileID, logger *diag.Logger) (contract.Locator, *manifest.Manifest) {
	if !set.Manifest {
		return nil, nil
	}
	loc, ok := w.(contract.Locator)
	if !ok {
		return nil, nil
	}
	p, err := loc.Locate(manifest.ID)
	if err != nil {
		logFail(logger, "manifest", "locate failed", string(fid), string(manifest.ID), err)
		return nil, nil
	}
	m, err := manifest.Load(p, string(fid))
	if err != nil {
		// 损坏的清单按空处理：全部重写并覆盖
		logger.Warn("manifest", string(diag.Classify(err)), err.Error(), string(fid), nil)
		m = manifest.New(string(fid))
	}
	return loc, m
}

func saveManifest(ctx context.Context, w contract.Writer, m *manifest.Manifest, fid string, logger *diag.Logger) error {
	if m == nil {
		return nil
	}
	b, err := m.Encode()
	if err != nil {
		logFail(logger, "manifest", "encode failed", fid, string(manifest.ID), err)
		return err
	}
	return write(ctx, w, artifact{id: manifest.ID, data: b}, fid, logger)
}

func progress(rep *Report, issues int) {
	if t := diag.GetTerminal(); t != nil {
		t.FileProgress(len(rep.Written), len(rep.Skipped), issues)
	}
}

// logFail 记录 error 事件并累加错误指标；偏移类错误附带 offset。
func logFail(logger *diag.Logger, comp, msg, fid, artifact string, err error) {
	code := diag.Classify(err)
	kv := map[string]string{"err": err.Error()}
	var se *contract.ScanError
	var ce *contract.ClassificationError
	switch {
	case errors.As(err, &se):
		kv["offset"] = strconv.Itoa(se.Offset)
	case errors.As(err, &ce):
		kv["offset"] = strconv.Itoa(ce.Offset)
	}
	logger.ErrorWithKV(comp, string(code), msg, nil, fid, artifact, kv)
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if len(s.Engine.Modules) == 0 {
		return errors.New("pipeline: no modules declared")
	}
	return nil
}
