package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"

	"htmlsplit/pkg/contract"
)

// UT-DIAG-01: 日志轮转写入
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 30)
	defer w.Close()
	if err := w.WriteLine([]byte("first line that is very long")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := w.WriteLine([]byte("second")); err != nil {
		t.Fatalf("第二次写入失败: %v", err)
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("应存在轮转文件, got %d", len(files))
	}
}

// 进一步覆盖：当前文件名与时间戳文件存在
func TestRotatingFileRotateFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 10)
	defer w.Close()
	for i := 0; i < 5; i++ {
		if err := w.WriteLine([]byte("xxxxxxxxxxxxxxxxxx")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	hasCurrent, hasRotated := false, false
	for _, e := range ents {
		if e.Name() == currentName {
			hasCurrent = true
		} else if strings.HasPrefix(e.Name(), rotatePrefix) && strings.HasSuffix(e.Name(), ".txt") {
			hasRotated = true
		}
	}
	if !hasCurrent || !hasRotated {
		t.Fatalf("expect both current and rotated files, got current=%v rotated=%v", hasCurrent, hasRotated)
	}
}

// 直接覆盖 ensureOpen 与 rotate 内部分支
func TestRotatingFileEnsureAndRotate(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 1024)
	defer w.Close()
	if err := w.ensureOpen(); err != nil {
		t.Fatalf("ensureOpen: %v", err)
	}
	if w.f == nil {
		t.Fatalf("file should be opened")
	}
	if err := w.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(ents) < 2 {
		t.Fatalf("expect >=2 files, got %d", len(ents))
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
}

// 触发默认 maxBytes 分支与 rotate 在 f==nil 分支
func TestRotatingFileDefaultsAndRotateNoOpen(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 0)
	defer w.Close()
	if w.maxBytes != 10*1024*1024 {
		t.Fatalf("默认上限错误: %d", w.maxBytes)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("未打开时 Sync 应为 no-op: %v", err)
	}
	if err := w.WriteLine([]byte("a")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w.f.Close()
	w.f = nil
	if err := w.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
}

// UT-DIAG-02: 指标计数与快照
func TestMetricsSnapshot(t *testing.T) {
	ResetMetrics()
	IncOp("writer", "finish", "success")
	IncOp("writer", "finish", "success")
	IncError("engine", "scan")
	ObserveDuration("pipeline", "finish", 7)
	got := map[string]int64{}
	for _, m := range Snapshot() {
		got[m.Name] = m.Value
	}
	want := map[string]int64{
		"op_total{writer,finish,success}":  2,
		"error_total{engine,scan}":         1,
		"op_duration_ms{pipeline,finish}": 7,
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %d, want %d (%v)", k, got[k], v, got)
		}
	}
	ResetMetrics()
	if len(Snapshot()) != 0 {
		t.Fatalf("reset 后应为空")
	}
}

// 补充覆盖: 错误分类
func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{nil, CodeUnknown},
		{context.Canceled, CodeCancel},
		{fmt.Errorf("run: %w", context.DeadlineExceeded), CodeCancel},
		{fmt.Errorf("strip: %w", &contract.ScanError{Offset: 1}), CodeScan},
		{&contract.BalanceError{}, CodeBalance},
		{&contract.ClassificationError{Offset: 3, Kind: contract.Script}, CodeRoute},
		{&contract.ConvergenceError{Passes: 2}, CodeConverge},
		{contract.ErrInvalidInput, CodeInvariant},
		{contract.ErrPathInvalid, CodeInvariant},
		{&contract.WriteError{Artifact: "a.js", Err: errors.New("disk")}, CodeIO},
		{&fs.PathError{Op: "open", Path: "/", Err: errors.New("x")}, CodeIO},
		{errors.New("other"), CodeUnknown},
	}
	for _, tt := range cases {
		if got := Classify(tt.err); got != tt.want {
			t.Fatalf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

type syncBuffer struct{ bytes.Buffer }

func (*syncBuffer) Sync() error { return nil }

func decodeLines(t *testing.T, b []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(b), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err != nil {
			t.Fatalf("非 JSON 行 %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

// UT-DIAG-03: 事件字段与级别过滤
func TestLoggerEvents(t *testing.T) {
	var buf syncBuffer
	l := NewLoggerTo(&buf, "corr", "info")
	tm := l.StartWith("writer", "write", "index.html", "js/app.js")
	tm.Finish("write", 3)
	l.DebugStart("config", "effective", "", "", map[string]string{"k": "v"})
	start := time.Now().Add(-5 * time.Millisecond)
	l.ErrorWithKV("engine", "scan", "decompose failed", &start, "index.html", "", map[string]string{"offset": "42"})
	l.Warn("engine", "balance", "unmatched_close", "index.html", nil)

	evs := decodeLines(t, buf.Bytes())
	if len(evs) != 4 {
		t.Fatalf("debug 事件应被过滤，got %d 条: %s", len(evs), buf.String())
	}
	first := evs[0]
	for k, v := range map[string]string{"level": "info", "corr_id": "corr", "comp": "writer", "stage": "start", "file_id": "index.html", "artifact": "js/app.js", "msg": "write"} {
		if first[k] != v {
			t.Fatalf("字段 %s = %v, want %s", k, first[k], v)
		}
	}
	if _, err := time.Parse(time.RFC3339, first["ts"].(string)); err != nil {
		t.Fatalf("ts 非 RFC3339: %v", first["ts"])
	}
	if evs[1]["stage"] != "finish" || evs[1]["count"] != float64(3) {
		t.Fatalf("finish 事件错误: %v", evs[1])
	}
	if evs[2]["level"] != "error" || evs[2]["code"] != "scan" {
		t.Fatalf("error 事件错误: %v", evs[2])
	}
	if kv, ok := evs[2]["kv"].(map[string]any); !ok || kv["offset"] != "42" {
		t.Fatalf("kv 缺失: %v", evs[2])
	}
	if evs[3]["level"] != "warn" || evs[3]["stage"] != "warn" {
		t.Fatalf("warn 事件错误: %v", evs[3])
	}
}

// 补充覆盖: 其余入口与 nil 接收者
func TestLoggerMisc(t *testing.T) {
	var buf syncBuffer
	l := NewLoggerTo(&buf, "", "debug")
	l.Start("comp", "msg").Finish("ok", 0)
	l.StartWithKV("comp", "msg", "f", "a", map[string]string{"k": "v"}).Finish("ok", 1)
	l.Error("comp", "code", "msg", nil)
	l.ErrorWith("comp", "code", "msg", nil, "f", "a")
	l.InfoFinish("comp", "msg", time.Now(), 1)
	l.DebugStart("comp", "msg", "f", "a", nil)
	if n := len(decodeLines(t, buf.Bytes())); n != 8 {
		t.Fatalf("debug 级别应输出全部 8 条，got %d", n)
	}
	if strings.Contains(buf.String(), "corr_id") {
		t.Fatalf("空 corrID 不应输出字段")
	}

	var nl *Logger
	nl.Start("x", "y").Finish("z", 0)
	nl.Warn("x", "y", "z", "", nil)
	if err := nl.Sync(); err != nil {
		t.Fatalf("nil Sync: %v", err)
	}
	var tnil *Timer
	tnil.Finish("x", 0)
	(&Timer{}).Finish("x", 0)
}

// 覆盖 Logger 文件 sink 路径
func TestLoggerWithSink(t *testing.T) {
	dir := t.TempDir()
	l := NewLoggerIn(dir, "corr", "info")
	l.Start("comp", "msg").Finish("ok", 1)
	l.Error("comp", "code", "msg", nil)
	if err := l.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, currentName))
	if err != nil {
		t.Fatalf("log file not found: %v", err)
	}
	if n := len(decodeLines(t, b)); n != 3 {
		t.Fatalf("want 3 lines, got %d", n)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel, " WARN ": zapcore.WarnLevel, "error": zapcore.ErrorLevel,
		"info": zapcore.InfoLevel, "": zapcore.InfoLevel, "verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

// 补充覆盖: NowUTC
func TestNowUTC(t *testing.T) {
	if _, err := time.Parse(time.RFC3339, NowUTC()); err != nil {
		t.Fatalf("应返回 RFC3339: %v", err)
	}
}

// UT-DIAG-04: 终端（非 TTY）关键节点输出
func TestTerminalNonTTYFlow(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	if term.isTTY {
		t.Fatalf("expect non-tty")
	}
	term.RunStart("fs")
	term.FileStart("site/index.html", 4)
	term.FileProgress(2, 1, 0) // 非 TTY：只记录不输出
	term.FileFinish(true, 5100*time.Millisecond)
	term.RunFinish(true, 41300*time.Millisecond)

	out := sb.String()
	if strings.Contains(out, "\r") {
		t.Fatalf("non-tty should not contain carriage returns: %q", out)
	}
	for _, want := range []string{
		"[run] writer=fs",
		"[file] index.html | 计划工件=4",
		"[done] index.html | 工件 2 | 未变 1 | 总用时 5.1s",
		"[ok] 全部完成 | 文档 1 | 总用时 41.3s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

// UT-DIAG-05: 终端（TTY）进度节流与清尾
func TestTerminalTTYProgressThrottleAndClear(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	term.isTTY = true
	term.RunStart("memory")
	term.FileStart("/a/b/c/longfilename.html", 3)

	term.FileProgress(1, 0, 0)
	first := sb.String()
	if !strings.Contains(first, "\r[") {
		t.Fatalf("first progress should be inline with CR: %q", first)
	}
	term.FileProgress(2, 0, 1)
	second := sb.String()
	if second != first {
		t.Fatalf("second progress should be throttled; got changed output")
	}
	time.Sleep(120 * time.Millisecond)
	term.FileProgress(2, 0, 1)
	third := sb.String()
	if len(third) <= len(second) {
		t.Fatalf("third progress should append output")
	}
	term.FileFinish(false, 2200*time.Millisecond)
	final := sb.String()
	idx := strings.LastIndex(final, "[fail]")
	if idx < 0 {
		t.Fatalf("finish should include fail line: %q", final)
	}
	seg := final[:idx]
	cr := strings.LastIndex(seg, "\r")
	if cr < 0 || !strings.Contains(seg[cr+1:], " ") {
		t.Fatalf("clear tail should write spaces after CR: %q", seg)
	}
}

// UT-DIAG-06: 写失败降级为禁用态
type flakyWriter struct{ fail bool }

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fail {
		w.fail = false
		return 0, fmt.Errorf("boom")
	}
	return len(p), nil
}

func TestTerminalDisableOnWriteError(t *testing.T) {
	fw := &flakyWriter{fail: true}
	term := NewTerminal(fw, true)
	term.isTTY = false
	term.RunStart("fs")
	if term.enabled {
		t.Fatalf("terminal should be disabled after write error")
	}
	term.FileStart("a", 0)
	term.FileProgress(0, 0, 0)
	term.FileFinish(true, 0)
	term.RunFinish(true, 0)
}

func TestTerminalInlineWriteError(t *testing.T) {
	fw := &flakyWriter{fail: true}
	term := NewTerminal(fw, true)
	term.isTTY = true
	term.FileStart("f.html", 2)
	term.FileProgress(1, 0, 0)
	if term.enabled {
		t.Fatalf("terminal should be disabled after inline error")
	}
}

func TestNewTerminalCIEnv(t *testing.T) {
	t.Setenv("CI", "true")
	var sb strings.Builder
	if NewTerminal(&sb, true).isTTY {
		t.Fatalf("CI env should force non-tty")
	}
}

func TestTerminalNilReceiverNoop(t *testing.T) {
	var tn *Terminal
	tn.RunStart("x")
	tn.FileStart("a", 1)
	tn.FileProgress(0, 0, 0)
	tn.FileFinish(true, 0)
	tn.RunFinish(true, 0)
}

// UT-DIAG-07: 工具函数
func TestHelpers(t *testing.T) {
	if got := shortenBase("/x/y/这是一个很长的文件名用于截断测试abcdefghijk.html", 10); visLen(got) != 10 || !strings.HasSuffix(got, "…") {
		t.Fatalf("shortenBase 截断错误: %q", got)
	}
	if shortenBase("x", 0) != "" {
		t.Fatalf("shortenBase limit<=0 should be empty")
	}
	if safe("a\nb\rc") != "a b c" {
		t.Fatalf("safe replace failed")
	}
	if formatDur(0) != "0ms" || formatDur(1500*time.Millisecond) != "1.5s" {
		t.Fatalf("formatDur failed")
	}
	SetTerminal(nil)
	if GetTerminal() != nil {
		t.Fatalf("expected nil terminal")
	}
	SetTerminal(NewTerminal(os.Stderr, false))
	if GetTerminal() == nil {
		t.Fatalf("expected non-nil terminal")
	}
	SetTerminal(nil)
}
