// Package rewrite 在剥离后的文档中插入外部引用。
//
// 约束：
//  1. 每个模块一行引用，按模块声明顺序，与提取顺序无关；
//  2. 脚本引用插在最后一个 </body> 之前；没有 body 容器时追加到文末；
//  3. StyleInHead 时样式引用插在首个 </head> 之前；没有 head 时与脚本引用同处；
//  4. 插入点所在行只有缩进时，引用整行插在该行之前并沿用其缩进。
package rewrite

import (
	"strings"

	"golang.org/x/net/html"

	"htmlsplit/internal/markup"
	"htmlsplit/pkg/contract"
)

// Markers
const (
	BodyMarker = "</body>"
	HeadMarker = "</head>"
)

// Options 重写选项。
type Options struct {
	StyleInHead bool
	// Scan: 透传给扫描器。
	Scan *markup.Options
}

// Result 为重写结果。
type Result struct {
	Document   string
	References []contract.ReferenceInsertion
}

// TagText 返回模块的引用标签文本。
func TagText(m contract.ModuleSpec) string {
	href := html.EscapeString(m.Path)
	if m.Kind == contract.Style {
		return `<link rel="stylesheet" href="` + href + `">`
	}
	return `<script src="` + href + `"></script>`
}

type point struct {
	at     int
	indent string
	marker string
}

// Rewrite 在 stripped 中为 modules（声明顺序）插入引用。
func Rewrite(stripped string, modules []contract.Module, opts Options) (*Result, error) {
	tags, err := markup.ScanAll(stripped, opts.Scan)
	if err != nil {
		return nil, err
	}
	body := point{at: len(stripped)}
	var head *point
	for _, t := range tags {
		if t.Kind != contract.Closing {
			continue
		}
		switch t.Key() {
		case "body":
			body = at(stripped, t.Start, BodyMarker)
		case "head":
			if head == nil {
				p := at(stripped, t.Start, HeadMarker)
				head = &p
			}
		}
	}
	if !opts.StyleInHead || head == nil || head.at > body.at {
		head = nil
	}

	res := &Result{References: make([]contract.ReferenceInsertion, 0, len(modules))}
	var headRefs, bodyRefs strings.Builder
	for _, m := range modules {
		text := TagText(m.ModuleSpec)
		p, b := body, &bodyRefs
		if m.Kind == contract.Style && head != nil {
			p, b = *head, &headRefs
		}
		b.WriteString(p.indent)
		b.WriteString(text)
		b.WriteString("\n")
		res.References = append(res.References, contract.ReferenceInsertion{AfterMarker: p.marker, TagText: text, Module: m.Name})
	}

	var out strings.Builder
	out.Grow(len(stripped) + headRefs.Len() + bodyRefs.Len())
	prev := 0
	if head != nil {
		out.WriteString(stripped[:head.at])
		out.WriteString(headRefs.String())
		prev = head.at
	}
	out.WriteString(stripped[prev:body.at])
	if body.at == len(stripped) && body.at > 0 && !strings.HasSuffix(stripped, "\n") && bodyRefs.Len() > 0 {
		out.WriteString("\n")
	}
	out.WriteString(bodyRefs.String())
	out.WriteString(stripped[body.at:])
	res.Document = out.String()
	return res, nil
}

// at 计算标记处的插入点：标记前同一行只有空白时，回退到行首并记录缩进。
func at(src string, start int, marker string) point {
	ls := strings.LastIndexByte(src[:start], '\n') + 1
	if strings.TrimLeft(src[ls:start], " \t") == "" {
		return point{at: ls, indent: src[ls:start], marker: marker}
	}
	return point{at: start, marker: marker}
}
