package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// 键使用 snake_case；JSON 与 YAML 均在解析期拒绝未知字段。
type Config struct {
	// Input: 输入文档路径；目录取其 index 文件；"-" 表示 STDIN。
	Input string `json:"input"`
	// Document: 重写后文档的工件名（相对输出根）。空则沿用输入文件名，STDIN 时为 index.html。
	Document string `json:"document"`
	// MaxBytes: 输入文档大小上限（字节）。
	MaxBytes int64 `json:"max_bytes"`
	// Manifest: 是否维护摘要清单以跳过未变化的工件。
	Manifest *bool   `json:"manifest,omitempty"`
	Logging  Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`
	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`

	Engine Engine `json:"engine"`
}

// Logging: 日志等级与目录；文件名与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader string `json:"reader"`
	Writer string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader json.RawMessage `json:"reader"`
	Writer json.RawMessage `json:"writer"`
}

// Engine: 分解引擎配置。
type Engine struct {
	// Targets: 剥离的元素名；空为 script+style。
	Targets []string `json:"targets"`
	// RawText: 内容不解释的元素名；空为扫描器默认集合。
	RawText []string `json:"raw_text"`
	// Scope: body | document。
	Scope     string `json:"scope"`
	MaxPasses int    `json:"max_passes"`
	// 指针字段区分"未设置"与显式 false。
	KeepExternal  *bool `json:"keep_external,omitempty"`
	Dedent        *bool `json:"dedent,omitempty"`
	// StyleInHead: nil 默认 false，样式引用与脚本一起插在 </body> 之前。
	StyleInHead   *bool `json:"style_in_head,omitempty"`
	StrictBalance bool  `json:"strict_balance"`

	// Modules: 声明顺序即引用顺序。
	Modules []Module `json:"modules"`
	// Rules: 有序规则表，首个命中者胜出。
	Rules    []Rule   `json:"rules"`
	CatchAll CatchAll `json:"catch_all"`
}

// Module: 输出模块声明。
type Module struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	Role     string `json:"role"`
	External bool   `json:"external,omitempty"`
}

// Rule: 分类规则；Matcher 为注册表中的判定名，Options 原样传入其工厂。
type Rule struct {
	Module  string          `json:"module"`
	Matcher string          `json:"matcher"`
	Options json.RawMessage `json:"options"`
}

// CatchAll: 各块类别的兜底模块名；空表示严格模式。
type CatchAll struct {
	Script string `json:"script"`
	Style  string `json:"style"`
}
