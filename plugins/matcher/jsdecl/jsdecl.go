// Package jsdecl 提供基于语法树的分类判定：脚本块是否声明了指定名字的类/函数/变量。
// 与子串匹配不同，注释或字符串字面量中出现的名字不会误命中。
package jsdecl

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"htmlsplit/pkg/contract"
)

// Options 为 declares 判定的配置。
type Options struct {
	// Name: 被声明的标识符（大小写敏感）。
	Name string `json:"name"`
	// Kinds: 参与匹配的声明类别，取值 class/function/variable。为空时为 [class, function]。
	Kinds []string `json:"kinds"`
}

var nodeKinds = map[string][]string{
	"class":    {"class_declaration"},
	"function": {"function_declaration", "generator_function_declaration"},
	"variable": {"variable_declarator"},
}

// New 构造 declares 判定。
func New(opts *Options) (contract.Predicate, error) {
	if opts == nil || opts.Name == "" {
		return nil, errors.New("declares: name is required")
	}
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = []string{"class", "function"}
	}
	want := make(map[string]struct{})
	for _, k := range kinds {
		nodes, ok := nodeKinds[k]
		if !ok {
			return nil, fmt.Errorf("declares: unknown kind %q", k)
		}
		for _, n := range nodes {
			want[n] = struct{}{}
		}
	}
	name := opts.Name
	return func(content string) bool {
		found, err := Declares(context.Background(), []byte(content), name, want)
		return err == nil && found
	}, nil
}

// Declares 解析 src 并报告是否存在名字为 name、节点类型属于 nodeTypes 的声明。
func Declares(ctx context.Context, src []byte, name string, nodeTypes map[string]struct{}) (bool, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return false, err
	}
	defer tree.Close()
	return walk(tree.RootNode(), src, name, nodeTypes), nil
}

func walk(node *sitter.Node, src []byte, name string, nodeTypes map[string]struct{}) bool {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if _, ok := nodeTypes[child.Type()]; ok {
			if id := child.ChildByFieldName("name"); id != nil && string(src[id.StartByte():id.EndByte()]) == name {
				return true
			}
		}
		if walk(child, src, name, nodeTypes) {
			return true
		}
	}
	return false
}
