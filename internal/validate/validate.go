// Package validate 对最终文档做结构校验，作为写出前的验收闸门。
package validate

import (
	"fmt"
	"sort"
	"strings"

	"htmlsplit/internal/markup"
	"htmlsplit/pkg/contract"
)

// Check 重新扫描 doc 并返回结构问题：先是标签失衡（见 markup.Tracker），随后是悬挂文本。
// 结果只依赖 doc，重复调用得到相同列表。
//
// 悬挂文本：文档包含 <html> 时，位于根元素之外或直接位于 <html> 之下的非空白文本。
func Check(doc string, opts *markup.Options) ([]contract.ValidationIssue, error) {
	tags, err := markup.ScanAll(doc, opts)
	if err != nil {
		return nil, err
	}
	rooted := false
	for _, t := range tags {
		if t.Kind == contract.Opening && t.Key() == "html" {
			rooted = true
			break
		}
	}

	var (
		tr       markup.Tracker
		dangling []contract.ValidationIssue
		prev     int
	)
	text := func(end int) {
		if !rooted || (tr.Depth() > 0 && tr.Top() != "html") {
			return
		}
		seg := doc[prev:end]
		if trimmed := strings.TrimLeft(seg, " \t\r\n\f"); trimmed != "" {
			dangling = append(dangling, contract.ValidationIssue{Kind: contract.DanglingText, Offset: end - len(trimmed)})
		}
	}
	for _, t := range tags {
		text(t.Start)
		tr.Push(t)
		prev = t.End
	}
	text(len(doc))
	return append(tr.Finish(), dangling...), nil
}

// Gate 比较输入与输出文档的问题列表。
// 输出中出现输入没有的问题（按 类别+标签名 的多重集合比较）即返回 *contract.BalanceError；
// strict 时输出上的任何问题都是致命的。
func Gate(input, output []contract.ValidationIssue, strict bool) error {
	if strict {
		if len(output) > 0 {
			return &contract.BalanceError{Issues: output}
		}
		return nil
	}
	seen := make(map[string]int, len(input))
	for _, is := range input {
		seen[issueKey(is)]++
	}
	var fresh []contract.ValidationIssue
	for _, is := range output {
		k := issueKey(is)
		if seen[k] > 0 {
			seen[k]--
			continue
		}
		fresh = append(fresh, is)
	}
	if len(fresh) > 0 {
		return &contract.BalanceError{Issues: fresh}
	}
	return nil
}

func issueKey(is contract.ValidationIssue) string { return string(is.Kind) + "\x00" + is.TagName }

// Lint 对脚本块做引号奇偶检查（单引号、双引号、反引号，忽略反斜杠转义）。
// 仅为提示：注释中的撇号同样会被计入。
func Lint(blocks []contract.ExtractedBlock) []contract.Lint {
	var out []contract.Lint
	for _, b := range blocks {
		if b.Kind != contract.Script {
			continue
		}
		counts := map[byte]int{}
		for i := 0; i < len(b.Content); i++ {
			switch c := b.Content[i]; c {
			case '\\':
				i++
			case '\'', '"', '`':
				counts[c]++
			}
		}
		var odd []string
		for _, q := range []byte{'\'', '"', '`'} {
			if counts[q]%2 != 0 {
				odd = append(odd, string(q))
			}
		}
		if len(odd) > 0 {
			out = append(out, contract.Lint{
				Offset:  b.OriginStart,
				Message: fmt.Sprintf("odd number of %s quotes, possible unterminated string", strings.Join(odd, " ")),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}
