// Package classify 按有序规则表把提取出的块分配到目标模块。
//
// 约束：
//  1. 规则按声明顺序求值，首个命中者胜出（顺序即优先级）；
//  2. 规则只对与目标模块同类别的块生效（script 规则不会把样式块路由到脚本模块）；
//  3. 无规则命中时落入该类别的兜底模块；未配置兜底模块则返回 *contract.ClassificationError；
//  4. 判定只依赖块内容，与位置和其他块无关。
package classify

import (
	"fmt"

	"htmlsplit/pkg/contract"
)

// CatchAll: 兜底规则在 Assignment.Rule 中的取值。
const CatchAll = -1

// Assignment: 单个块的分类结果。
type Assignment struct {
	// Block: 块在提取序列中的下标。
	Block  int
	Module string
	// Rule: 命中规则的下标；兜底为 CatchAll。
	Rule int
}

// Classifier 为不可变的规则表，可被多次复用。
type Classifier struct {
	rules    []contract.ClassificationRule
	kinds    []contract.BlockKind
	catchAll map[contract.BlockKind]string
}

// New 校验规则与模块表后构造分类器。
// catchAll 的键为块类别，值为模块名；缺失的类别在无命中时报错。
func New(modules []contract.ModuleSpec, rules []contract.ClassificationRule, catchAll map[contract.BlockKind]string) (*Classifier, error) {
	byName := make(map[string]contract.ModuleSpec, len(modules))
	for _, m := range modules {
		byName[m.Name] = m
	}
	c := &Classifier{
		rules:    make([]contract.ClassificationRule, 0, len(rules)),
		kinds:    make([]contract.BlockKind, 0, len(rules)),
		catchAll: make(map[contract.BlockKind]string, len(catchAll)),
	}
	for i, r := range rules {
		m, ok := byName[r.Module]
		if !ok {
			return nil, fmt.Errorf("rule %d: unknown module %q: %w", i, r.Module, contract.ErrInvalidInput)
		}
		if m.External {
			return nil, fmt.Errorf("rule %d: module %q is external: %w", i, r.Module, contract.ErrInvalidInput)
		}
		if r.Match == nil {
			return nil, fmt.Errorf("rule %d: nil predicate: %w", i, contract.ErrInvalidInput)
		}
		c.rules = append(c.rules, r)
		c.kinds = append(c.kinds, m.Kind)
	}
	for kind, name := range catchAll {
		if name == "" {
			continue
		}
		m, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("catch-all %s: unknown module %q: %w", kind, name, contract.ErrInvalidInput)
		}
		if m.Kind != kind || m.External {
			return nil, fmt.Errorf("catch-all %s: module %q must be a generated %s module: %w", kind, name, kind, contract.ErrInvalidInput)
		}
		c.catchAll[kind] = name
	}
	return c, nil
}

// Classify 返回块的目标模块与命中规则下标。
func (c *Classifier) Classify(b contract.ExtractedBlock) (string, int, error) {
	for i, r := range c.rules {
		if c.kinds[i] != b.Kind {
			continue
		}
		if r.Match(b.Content) {
			return r.Module, i, nil
		}
	}
	if name, ok := c.catchAll[b.Kind]; ok {
		return name, CatchAll, nil
	}
	return "", CatchAll, &contract.ClassificationError{Offset: b.OriginStart, Kind: b.Kind}
}

// ClassifyAll 依次分类全部块；遇到首个错误即返回。
func (c *Classifier) ClassifyAll(blocks []contract.ExtractedBlock) ([]Assignment, error) {
	out := make([]Assignment, 0, len(blocks))
	for i, b := range blocks {
		mod, rule, err := c.Classify(b)
		if err != nil {
			return nil, err
		}
		out = append(out, Assignment{Block: i, Module: mod, Rule: rule})
	}
	return out, nil
}
