package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"htmlsplit/internal/classify"
	"htmlsplit/internal/diag"
	"htmlsplit/internal/engine"
	"htmlsplit/internal/pipeline"
	"htmlsplit/pkg/contract"
)

func newCheckCmd(gf *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "check [input]",
		Short: "只分解不写出：报告块的归属、结构问题与提示；有问题时退出码 2",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			env, err := prepare(gf, args, stderr)
			if err != nil {
				return err
			}
			defer env.close()

			fid, res, err := pipeline.Decompose(cmd.Context(), env.comp.Reader, env.set, env.logger)
			if err != nil {
				env.logger.Error("check", string(diag.Classify(err)), "first error", &start)
				if isFinding(err) {
					fprintf(stdout, "%s: %v\n", fid, err)
					return withCode(exitIssues, nil)
				}
				return withCode(exitRun, err)
			}
			n := printReport(stdout, fid, res, env.set.Engine.Modules)
			env.logMetrics()
			if n > 0 {
				return withCode(exitIssues, nil)
			}
			return nil
		},
	}
}

// isFinding: 文档自身的问题（而非 I/O 或取消）。
func isFinding(err error) bool {
	for _, s := range []error{contract.ErrScan, contract.ErrUnbalanced, contract.ErrUnrouted, contract.ErrConvergence} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// printReport 输出检查报告，返回结构问题数（提示不计）。
func printReport(w io.Writer, fid contract.FileID, res *engine.Result, mods []contract.ModuleSpec) int {
	fprintf(w, "file: %s\n", fid)
	fprintf(w, "blocks: %d (passes %d, kept %d, dropped %d)\n", len(res.Blocks), res.Passes, res.Kept, res.Dropped)
	for _, a := range res.Assignments {
		b := res.Blocks[a.Block]
		rule := fmt.Sprintf("rule %d", a.Rule)
		if a.Rule == classify.CatchAll {
			rule = "catch-all"
		}
		fprintf(w, "  %s @%d-%d -> %s (%s)\n", b.Kind, b.OriginStart, b.OriginEnd, a.Module, rule)
	}
	for _, m := range res.Modules {
		if m.External {
			fprintf(w, "module %s: %s (external)\n", m.Name, m.Path)
			continue
		}
		fprintf(w, "module %s: %s (%d bytes)\n", m.Name, m.Path, len(m.Content))
	}
	if len(res.Modules) < len(mods) {
		fprintf(w, "unreferenced modules: %d\n", len(mods)-len(res.Modules))
	}
	printIssues(w, "input", res.InputIssues)
	printIssues(w, "output", res.OutputIssues)
	for _, l := range res.Lints {
		fprintf(w, "lint @%d: %s\n", l.Offset, l.Message)
	}
	return len(res.InputIssues) + len(res.OutputIssues)
}

func printIssues(w io.Writer, side string, issues []contract.ValidationIssue) {
	fprintf(w, "%s issues: %d\n", side, len(issues))
	for _, is := range issues {
		if is.TagName != "" {
			fprintf(w, "  %s <%s> @%d\n", is.Kind, is.TagName, is.Offset)
			continue
		}
		fprintf(w, "  %s @%d\n", is.Kind, is.Offset)
	}
}
