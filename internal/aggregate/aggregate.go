// Package aggregate 按模块累积分类后的内容。
//
// 约束：
//  1. 只追加，不修改已追加的片段；同一模块的片段按调用顺序以一个空行连接；
//  2. Finalize 按模块声明顺序返回，未收到任何片段的生成模块不出现在结果中；
//  3. External 模块只被引用、不生成，始终出现在结果中且内容为空；
//  4. 聚合器由单次运行独占，非并发安全。
package aggregate

import (
	"fmt"
	"strings"

	"htmlsplit/pkg/contract"
)

// Separator: 片段之间的分隔（一个空行）。
const Separator = "\n\n"

// Options 聚合选项。
type Options struct {
	// Dedent: 去除片段的公共缩进。
	Dedent bool
}

// Aggregator 为单次运行的模块缓冲集合。
type Aggregator struct {
	specs  []contract.ModuleSpec
	index  map[string]int
	segs   [][]string
	blocks []int
	dedent bool
}

// New 以声明顺序的模块表构造聚合器；模块名与路径必须唯一。
func New(specs []contract.ModuleSpec, opts Options) (*Aggregator, error) {
	a := &Aggregator{
		specs:  append([]contract.ModuleSpec(nil), specs...),
		index:  make(map[string]int, len(specs)),
		segs:   make([][]string, len(specs)),
		blocks: make([]int, len(specs)),
		dedent: opts.Dedent,
	}
	paths := make(map[string]struct{}, len(specs))
	for i, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("module %d: empty name: %w", i, contract.ErrInvalidInput)
		}
		if _, dup := a.index[s.Name]; dup {
			return nil, fmt.Errorf("module %q declared twice: %w", s.Name, contract.ErrInvalidInput)
		}
		if _, dup := paths[s.Path]; dup {
			return nil, fmt.Errorf("module %q: path %q already used: %w", s.Name, s.Path, contract.ErrInvalidInput)
		}
		a.index[s.Name] = i
		paths[s.Path] = struct{}{}
	}
	return a, nil
}

// Append 追加一段内容。规范化后为空的内容被丢弃并返回 false。
func (a *Aggregator) Append(module, content string) (bool, error) {
	i, ok := a.index[module]
	if !ok {
		return false, fmt.Errorf("append to unknown module %q: %w", module, contract.ErrInvariantViolation)
	}
	if a.specs[i].External {
		return false, fmt.Errorf("append to external module %q: %w", module, contract.ErrInvariantViolation)
	}
	a.blocks[i]++
	seg := Normalize(content, a.dedent)
	if seg == "" {
		return false, nil
	}
	a.segs[i] = append(a.segs[i], seg)
	return true, nil
}

// Finalize 按声明顺序返回需要引用的模块。生成模块的内容以换行结尾。
func (a *Aggregator) Finalize() []contract.Module {
	out := make([]contract.Module, 0, len(a.specs))
	for i, s := range a.specs {
		switch {
		case s.External:
			out = append(out, contract.Module{ModuleSpec: s})
		case len(a.segs[i]) > 0:
			out = append(out, contract.Module{
				ModuleSpec: s,
				Content:    strings.Join(a.segs[i], Separator) + "\n",
				Blocks:     a.blocks[i],
			})
		}
	}
	return out
}

// Normalize 清理单个块的内容：去掉首尾空行与 HTML 注释包裹（<!-- ... -->），
// 可选地去除公共缩进（保留首行相对缩进），否则裁掉首尾空白。
func Normalize(content string, dedent bool) string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	lines = trimBlank(lines)
	if len(lines) == 0 {
		return ""
	}
	if first := strings.TrimSpace(lines[0]); strings.HasPrefix(first, "<!--") {
		lines[0] = strings.Replace(lines[0], "<!--", "", 1)
	}
	last := len(lines) - 1
	if l := strings.TrimRight(lines[last], " \t"); strings.HasSuffix(l, "-->") {
		lines[last] = strings.TrimSuffix(l, "-->")
	}
	lines = trimBlank(lines)
	if len(lines) == 0 {
		return ""
	}
	if dedent {
		return strings.TrimRight(strings.Join(dedentLines(lines), "\n"), " \t\n")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func trimBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// dedentLines 去除所有非空行共有的前导空白；仅含空白的行变为空行。
func dedentLines(lines []string) []string {
	prefix := ""
	first := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		ws := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		if first {
			prefix, first = ws, false
			continue
		}
		n := 0
		for n < len(prefix) && n < len(ws) && prefix[n] == ws[n] {
			n++
		}
		prefix = prefix[:n]
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out[i] = strings.TrimPrefix(l, prefix)
	}
	return out
}
