package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"htmlsplit/internal/diag"
	"htmlsplit/internal/pipeline"
	wmem "htmlsplit/plugins/writer/memory"
)

var pipelineRun = pipeline.Run

// 退出码：0 成功；1 运行失败；2 check 发现问题；3 配置错误。
const (
	exitOK       = 0
	exitRun      = 1
	exitIssues   = 2
	exitConfig   = 3
	defaultLevel = "info"
)

// exitError 携带退出码；RunE 返回它以区分失败类别。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error { return &exitError{code: code, err: err} }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run 执行 CLI 并返回退出码（测试入口）。
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && !errors.Is(ee.err, context.Canceled) {
			fprintf(stderr, "%v\n", ee.err)
		}
		return ee.code
	}
	// cobra 自身的参数/旗标错误
	fprintf(stderr, "%v\n", err)
	return exitConfig
}

// 简化的 CLI：默认子命令 run。
// 位置参数为输入（文件/目录 或 "-" 表示 STDIN）。
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	gf := &globalFlags{}
	root := &cobra.Command{
		Use:           "htmlsplit [input]",
		Short:         "把单个 HTML 文档中的内联脚本与样式拆分为外部模块并重写引用",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecompose(cmd.Context(), gf, args, stdout, stderr)
		},
	}
	gf.register(root)

	runCmd := &cobra.Command{
		Use:   "run [input]",
		Short: "分解输入文档并写出模块与重写后的文档（默认子命令）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecompose(cmd.Context(), gf, args, stdout, stderr)
		},
	}
	root.AddCommand(runCmd, newCheckCmd(gf, stdout, stderr), newInitCmd(stdout, stderr), newWatchCmd(gf, stdout, stderr))
	return root
}

func runDecompose(ctx context.Context, gf *globalFlags, args []string, stdout, stderr io.Writer) error {
	start := time.Now()
	env, err := prepare(gf, args, stderr)
	if err != nil {
		return err
	}
	defer env.close()

	if err := preflightCheckOutputDir(env.cfg); err != nil {
		env.logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		return withCode(exitConfig, fmt.Errorf("输出目录不可写或无法创建: %w", err))
	}

	term := diag.NewTerminal(stderr, gf.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	term.RunStart(env.cfg.Components.Writer)

	ok := runOnce(ctx, env, stdout, start)
	term.RunFinish(ok == nil, time.Since(start))
	return ok
}

// runOnce 执行一次流水线并记录结果；watch 模式复用。
func runOnce(ctx context.Context, env *runEnv, stdout io.Writer, start time.Time) error {
	t := env.logger.Start("pipeline", "run")
	rep, err := pipelineRun(ctx, env.comp, env.set, env.logger)
	if err != nil {
		code := string(diag.Classify(err))
		env.logger.Error("pipeline", code, "first error", &start)
		diag.IncOp("pipeline", "error", "error")
		if code != string(diag.CodeUnknown) {
			diag.IncError("pipeline", code)
		}
		return withCode(exitRun, fmt.Errorf("运行失败: %w", err))
	}
	var n int64
	if rep != nil {
		n = int64(len(rep.Written))
	}
	t.Finish("run", n)
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	if mem, ok := env.comp.Writer.(*wmem.Memory); ok {
		printDryRun(stdout, mem)
	}
	env.logMetrics()
	return nil
}

// printDryRun 列出 dry-run 中"写出"的工件及其大小。
func printDryRun(w io.Writer, mem *wmem.Memory) {
	for _, id := range mem.Written() {
		b, _ := mem.Get(id)
		fprintf(w, "%s\t%d\n", id, len(b))
	}
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }
