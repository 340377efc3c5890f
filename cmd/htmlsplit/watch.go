package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"htmlsplit/internal/diag"
	"htmlsplit/internal/watch"
	rfs "htmlsplit/plugins/reader/filesystem"
)

func newWatchCmd(gf *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var debounce time.Duration
	c := &cobra.Command{
		Use:   "watch [input]",
		Short: "先运行一次，然后在输入文档变更时重新运行，直到中断",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			start := time.Now()
			env, err := prepare(gf, args, stderr)
			if err != nil {
				return err
			}
			defer env.close()

			in := strings.TrimSpace(env.cfg.Input)
			fsr, ok := env.comp.Reader.(*rfs.FileSystem)
			if !ok || in == "-" {
				return withCode(exitConfig, errors.New("watch 需要 fs reader 与文件/目录输入"))
			}
			target, err := fsr.Resolve(in)
			if err != nil {
				return withCode(exitConfig, fmt.Errorf("watch: %w", err))
			}
			if err := preflightCheckOutputDir(env.cfg); err != nil {
				return withCode(exitConfig, fmt.Errorf("输出目录不可写或无法创建: %w", err))
			}

			term := diag.NewTerminal(stderr, gf.status)
			diag.SetTerminal(term)
			defer diag.SetTerminal(nil)
			term.RunStart(env.cfg.Components.Writer)

			// 首次运行失败不退出：修正输入后的下一次保存会重试
			if err := runOnce(ctx, env, stdout, start); err != nil {
				fprintf(stderr, "%v\n", err)
			}
			w, err := watch.New(target, func(ctx context.Context) error {
				diag.ResetMetrics()
				return runOnce(ctx, env, stdout, time.Now())
			}, watch.Options{Debounce: debounce, Logger: env.logger})
			if err != nil {
				return withCode(exitConfig, err)
			}
			if err := w.Run(ctx, nil); err != nil {
				return withCode(exitRun, fmt.Errorf("watch: %w", err))
			}
			term.RunFinish(true, time.Since(start))
			return nil
		},
	}
	c.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "变更去抖窗口")
	return c
}
