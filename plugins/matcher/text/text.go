// Package text 提供基于文本的分类判定：子串、尾部窗口子串与正则。
package text

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"htmlsplit/pkg/contract"
)

// ContainsOptions: 内容包含 Value 即命中。
type ContainsOptions struct {
	Value string `json:"value"`
}

// TailOptions: Value 出现在内容最后 Window 个字节内即命中。
// 用于识别追加在脚本末尾的工具函数（例如 polyfill）。
type TailOptions struct {
	Value string `json:"value"`
	// Window: 尾部窗口字节数；<=0 使用 DefaultWindow。
	Window int `json:"window"`
}

// RegexpOptions: 内容匹配 Pattern（RE2 语法）即命中。
type RegexpOptions struct {
	Pattern string `json:"pattern"`
}

// DefaultWindow: 尾部窗口默认大小。
const DefaultWindow = 1000

// Contains 构造子串判定。
func Contains(opts *ContainsOptions) (contract.Predicate, error) {
	if opts == nil || opts.Value == "" {
		return nil, errors.New("contains: value is required")
	}
	v := opts.Value
	return func(content string) bool { return strings.Contains(content, v) }, nil
}

// Tail 构造尾部窗口判定。
func Tail(opts *TailOptions) (contract.Predicate, error) {
	if opts == nil || opts.Value == "" {
		return nil, errors.New("tail: value is required")
	}
	v, w := opts.Value, opts.Window
	if w <= 0 {
		w = DefaultWindow
	}
	return func(content string) bool {
		if len(content) > w {
			content = content[len(content)-w:]
		}
		return strings.Contains(content, v)
	}, nil
}

// Regexp 构造正则判定。
func Regexp(opts *RegexpOptions) (contract.Predicate, error) {
	if opts == nil || opts.Pattern == "" {
		return nil, errors.New("regexp: pattern is required")
	}
	re, err := regexp.Compile(opts.Pattern)
	if err != nil {
		return nil, fmt.Errorf("regexp: %w", err)
	}
	return re.MatchString, nil
}
