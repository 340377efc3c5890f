// Package engine 串联分解流程：扫描/平衡诊断 → 不动点剥离 → 分类 → 聚合 → 引用重写 → 结构校验。
//
// 约束：
//  1. 纯内存、同步、无 I/O；一次调用的全部中间状态随调用结束丢弃；
//  2. 任何致命错误立即返回，不产出部分结果；
//  3. 输出文档通过校验闸门后才返回，调用方可以直接写出。
package engine

import (
	"fmt"
	"sort"

	"htmlsplit/internal/aggregate"
	"htmlsplit/internal/classify"
	"htmlsplit/internal/markup"
	"htmlsplit/internal/rewrite"
	"htmlsplit/internal/strip"
	"htmlsplit/internal/validate"
	"htmlsplit/pkg/contract"
)

// Options 描述一次分解所需的全部输入（均为只读）。
type Options struct {
	// Scan: 扫描器选项，剥离、重写与校验共用。
	Scan  *markup.Options
	Strip strip.Options
	// Modules: 声明顺序即引用顺序。
	Modules  []contract.ModuleSpec
	Rules    []contract.ClassificationRule
	CatchAll map[contract.BlockKind]string
	Dedent   bool
	// StyleInHead: 样式引用插在 </head> 之前。
	StyleInHead   bool
	StrictBalance bool
}

// Result 为一次分解的全部产出。
type Result struct {
	Stripped    string
	Blocks      []contract.ExtractedBlock
	Assignments []classify.Assignment
	// Modules: 需要引用的模块（声明顺序）；External 模块内容为空且不应写出。
	Modules      []contract.Module
	References   []contract.ReferenceInsertion
	Document     string
	InputIssues  []contract.ValidationIssue
	OutputIssues []contract.ValidationIssue
	Lints        []contract.Lint
	Passes       int
	Kept         int
	// Dropped: 规范化后为空而被丢弃的块数。
	Dropped int
}

// Decompose 对 doc 执行完整分解。
func Decompose(doc string, opts Options) (*Result, error) {
	so := opts.Strip
	so.Scan = opts.Scan

	// 输入诊断：失衡不致命，未闭合定界符致命。
	inIssues, err := validate.Check(doc, opts.Scan)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	sr, err := strip.Strip(doc, so)
	if err != nil {
		return nil, fmt.Errorf("strip: %w", err)
	}

	cl, err := classify.New(opts.Modules, opts.Rules, opts.CatchAll)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	asg, err := cl.ClassifyAll(sr.Blocks)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	agg, err := aggregate.New(opts.Modules, aggregate.Options{Dedent: opts.Dedent})
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	// 模块内片段按原文顺序排列；嵌套块的提取顺序可能与之不同。
	order := make([]classify.Assignment, len(asg))
	copy(order, asg)
	sort.SliceStable(order, func(i, j int) bool {
		return sr.Blocks[order[i].Block].OriginStart < sr.Blocks[order[j].Block].OriginStart
	})
	dropped := 0
	for _, a := range order {
		ok, err := agg.Append(a.Module, sr.Blocks[a.Block].Content)
		if err != nil {
			return nil, fmt.Errorf("aggregate: %w", err)
		}
		if !ok {
			dropped++
		}
	}
	mods := agg.Finalize()

	rw, err := rewrite.Rewrite(sr.Stripped, mods, rewrite.Options{StyleInHead: opts.StyleInHead, Scan: opts.Scan})
	if err != nil {
		return nil, fmt.Errorf("rewrite: %w", err)
	}

	outIssues, err := validate.Check(rw.Document, opts.Scan)
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	if err := validate.Gate(inIssues, outIssues, opts.StrictBalance); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	return &Result{
		Stripped:     sr.Stripped,
		Blocks:       sr.Blocks,
		Assignments:  asg,
		Modules:      mods,
		References:   rw.References,
		Document:     rw.Document,
		InputIssues:  inIssues,
		OutputIssues: outIssues,
		Lints:        validate.Lint(sr.Blocks),
		Passes:       sr.Passes,
		Kept:         sr.Kept,
		Dropped:      dropped,
	}, nil
}
