package markup

import (
	"strings"

	"htmlsplit/pkg/contract"
)

// voidElements: 不需要闭合的结构元素，永不入栈。
var voidElements = map[string]struct{}{
	"area": {}, "base": {}, "br": {}, "col": {}, "embed": {}, "hr": {}, "img": {}, "input": {},
	"keygen": {}, "link": {}, "meta": {}, "param": {}, "source": {}, "track": {}, "wbr": {},
}

// IsVoid 报告元素名是否属于空元素集合（大小写不敏感）。
func IsVoid(name string) bool {
	_, ok := voidElements[strings.ToLower(name)]
	return ok
}

type openTag struct {
	key    string
	name   string
	offset int
}

// Tracker 维护显式的开标签栈，仅做诊断，从不修改文档。
// 闭标签与栈顶不符时报告 UnmatchedClose 且不出栈，避免一处错配引发后续连锁误报。
type Tracker struct {
	stack  []openTag
	issues []contract.ValidationIssue
}

// Push 消费一个标签。注释、自闭合、空元素与哨兵被忽略。
func (t *Tracker) Push(tag contract.Tag) {
	switch tag.Kind {
	case contract.Opening:
		if IsVoid(tag.Name) {
			return
		}
		t.stack = append(t.stack, openTag{key: tag.Key(), name: tag.Name, offset: tag.Start})
	case contract.Closing:
		if IsVoid(tag.Name) {
			return
		}
		if n := len(t.stack); n > 0 && t.stack[n-1].key == tag.Key() {
			t.stack = t.stack[:n-1]
			return
		}
		t.issues = append(t.issues, contract.ValidationIssue{Kind: contract.UnmatchedClose, Offset: tag.Start, TagName: tag.Key()})
	}
}

// Depth 返回当前栈深。
func (t *Tracker) Depth() int { return len(t.stack) }

// Top 返回栈顶元素的小写名；空栈返回空串。
func (t *Tracker) Top() string {
	if len(t.stack) == 0 {
		return ""
	}
	return t.stack[len(t.stack)-1].key
}

// Finish 返回全部问题：过程中的 UnmatchedClose 按出现顺序，随后是栈中剩余的 UnmatchedOpen（自底向上）。
func (t *Tracker) Finish() []contract.ValidationIssue {
	out := make([]contract.ValidationIssue, 0, len(t.issues)+len(t.stack))
	out = append(out, t.issues...)
	for _, o := range t.stack {
		out = append(out, contract.ValidationIssue{Kind: contract.UnmatchedOpen, Offset: o.offset, TagName: o.key})
	}
	return out
}

// Balance 扫描 src 并返回标签平衡问题；扫描失败返回 *contract.ScanError。
func Balance(src string, opts *Options) ([]contract.ValidationIssue, error) {
	tags, err := ScanAll(src, opts)
	if err != nil {
		return nil, err
	}
	var tr Tracker
	for _, tag := range tags {
		tr.Push(tag)
	}
	return tr.Finish(), nil
}
