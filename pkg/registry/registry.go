package registry

import (
	"bytes"
	"encoding/json"

	"htmlsplit/pkg/contract"
	jsdecl "htmlsplit/plugins/matcher/jsdecl"
	mtext "htmlsplit/plugins/matcher/text"
	rfs "htmlsplit/plugins/reader/filesystem"
	wfs "htmlsplit/plugins/writer/filesystem"
	wmem "htmlsplit/plugins/writer/memory"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// NewMatcher 工厂签名：接收规则的原样 JSON Options，返回分类判定。
type NewMatcher func(raw json.RawMessage) (contract.Predicate, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 单文件/目录 index/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（默认原子替换、保留子目录）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
	// memory: 不落盘（dry-run）
	"memory": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wmem.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wmem.New(&opts), nil
	},
}

// Matcher 分类判定注册表；规则的 matcher 字段取这里的键。
var Matcher = map[string]NewMatcher{
	// contains: 子串
	"contains": func(raw json.RawMessage) (contract.Predicate, error) {
		var opts mtext.ContainsOptions
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return mtext.Contains(&opts)
	},
	// tail: 尾部窗口内的子串
	"tail": func(raw json.RawMessage) (contract.Predicate, error) {
		var opts mtext.TailOptions
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return mtext.Tail(&opts)
	},
	// regexp: RE2 正则
	"regexp": func(raw json.RawMessage) (contract.Predicate, error) {
		var opts mtext.RegexpOptions
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return mtext.Regexp(&opts)
	},
	// declares: 语法树中的类/函数/变量声明
	"declares": func(raw json.RawMessage) (contract.Predicate, error) {
		var opts jsdecl.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return jsdecl.New(&opts)
	},
}
