// Package strip 以不动点迭代移除文档中的内联 script/style 元素。
//
// 每轮从头扫描工作副本，只移除"最内层"的目标元素对（其内部不再包含目标元素对），
// 一轮中移除的元素对互不重叠；直到某一轮没有任何移除为止。
// 扫描轮数受 MaxPasses 约束，超出即 *contract.ConvergenceError。
package strip

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"htmlsplit/internal/markup"
	"htmlsplit/pkg/contract"
)

// Scope 决定剥离的作用区间。
type Scope string

const (
	// ScopeBody: 存在 body 容器时只处理其内部，否则处理全文。
	ScopeBody Scope = "body"
	// ScopeDocument: 处理全文。
	ScopeDocument Scope = "document"
)

// DefaultTargets: 默认目标元素名。
var DefaultTargets = []string{"script", "style"}

// Options 剥离选项；零值可用。
type Options struct {
	// Targets: 目标元素名（大小写不敏感）。空使用 DefaultTargets。
	Targets []string
	Scope   Scope
	// MaxPasses: 扫描轮数上限（含最后一轮确认无移除的扫描）。<=0 使用 len(doc)+1。
	MaxPasses int
	// KeepExternal: 带 src 属性的元素视为外部引用，原位保留。
	KeepExternal bool
	// Scan: 透传给扫描器。
	Scan *markup.Options
}

// Result 为一次剥离的产出。
type Result struct {
	Stripped string
	// Blocks: 按提取顺序（先按轮次，再按文档顺序）。
	Blocks []contract.ExtractedBlock
	Passes int
	// Kept: 原位保留的外部引用元素数（最后一轮统计）。
	Kept int
}

type span struct{ start, end int }

type frame struct {
	open     contract.Tag
	external bool
	child    bool
}

type removal struct {
	span
	open  contract.Tag
	close contract.Tag
}

// Strip 对 doc 执行不动点剥离。
func Strip(doc string, opts Options) (*Result, error) {
	targets := opts.Targets
	if len(targets) == 0 {
		targets = DefaultTargets
	}
	want := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		want[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	limit := opts.MaxPasses
	if limit <= 0 {
		limit = len(doc) + 1
	}

	res := &Result{}
	work := doc
	var m offsetMap
	for pass := 1; ; pass++ {
		if pass > limit {
			return nil, &contract.ConvergenceError{Passes: limit}
		}
		res.Passes = pass
		tags, err := markup.ScanAll(work, opts.Scan)
		if err != nil {
			var se *contract.ScanError
			if errors.As(err, &se) {
				return nil, &contract.ScanError{Offset: m.start(se.Offset), Tag: se.Tag}
			}
			return nil, err
		}
		lo, hi := scope(tags, len(work), opts.Scope)
		rs, orphans, kept := pairs(work, tags, want, lo, hi, opts.KeepExternal)
		res.Kept = kept
		if len(rs) == 0 {
			if len(orphans) > 0 {
				o := orphans[0]
				return nil, &contract.ScanError{Offset: m.start(o.Start), Tag: o.Key()}
			}
			break
		}

		var b strings.Builder
		b.Grow(len(work))
		prev, shift := 0, 0
		spans := make([]span, 0, len(rs))
		for _, r := range rs {
			b.WriteString(work[prev:r.start])
			prev = r.end
			res.Blocks = append(res.Blocks, contract.ExtractedBlock{
				OriginStart: m.start(r.start),
				OriginEnd:   m.end(r.end),
				Content:     work[r.open.End:r.close.Start],
				Kind:        contract.BlockKindOf(r.open.Name),
				Raw:         work[r.start:r.end],
				At:          r.start - shift,
				Pass:        pass,
				OpenTag:     work[r.open.Start:r.open.End],
			})
			shift += r.end - r.start
			spans = append(spans, r.span)
		}
		b.WriteString(work[prev:])
		m = m.apply(spans)
		work = b.String()
	}
	res.Stripped = work
	return res, nil
}

// scope 返回作用区间 [lo, hi)。
func scope(tags []contract.Tag, n int, mode Scope) (int, int) {
	if mode == ScopeDocument {
		return 0, n
	}
	lo, hi := -1, n
	for _, t := range tags {
		if t.Key() != "body" {
			continue
		}
		switch {
		case t.Kind == contract.Opening && lo < 0:
			lo = t.End
		case t.Kind == contract.Closing && lo >= 0 && t.Start >= lo:
			hi = t.Start
		}
	}
	if lo < 0 {
		return 0, n
	}
	return lo, hi
}

// pairs 找出本轮可移除的最内层元素对（按文档顺序），以及没有闭标签的目标开标签。
func pairs(src string, tags []contract.Tag, want map[string]struct{}, lo, hi int, keepExternal bool) ([]removal, []contract.Tag, int) {
	var (
		stack   []frame
		out     []removal
		orphans []contract.Tag
		kept    int
	)
	for _, t := range tags {
		if t.Start < lo || t.End > hi {
			continue
		}
		if _, ok := want[t.Key()]; !ok {
			continue
		}
		switch t.Kind {
		case contract.Opening:
			f := frame{open: t}
			if keepExternal && markup.HasAttr(src[t.Start:t.End], "src") {
				f.external = true
			}
			stack = append(stack, f)
		case contract.Closing:
			k := len(stack) - 1
			for k >= 0 && stack[k].open.Key() != t.Key() {
				k--
			}
			if k < 0 {
				continue
			}
			f := stack[k]
			// 中间有未闭合的开标签：本轮不动该对，最终由孤儿开标签报错。
			for _, o := range stack[k+1:] {
				orphans = append(orphans, o.open)
				f.child = true
			}
			stack = stack[:k]
			pending := true
			switch {
			case f.child:
			case f.external:
				kept++
				pending = false
			default:
				out = append(out, removal{span: span{f.open.Start, t.End}, open: f.open, close: t})
			}
			if pending && len(stack) > 0 {
				stack[len(stack)-1].child = true
			}
		}
	}
	for _, f := range stack {
		orphans = append(orphans, f.open)
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].Start < orphans[j].Start })
	return out, orphans, kept
}

// Restore 把 blocks 按提取逆序插回 stripped，得到原始文档。
func Restore(stripped string, blocks []contract.ExtractedBlock) (string, error) {
	out := stripped
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		if b.At < 0 || b.At > len(out) {
			return "", fmt.Errorf("restore block %d: position %d out of range [0,%d]: %w", i, b.At, len(out), contract.ErrInvariantViolation)
		}
		out = out[:b.At] + b.Raw + out[b.At:]
	}
	return out, nil
}
