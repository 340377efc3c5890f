package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix: 环境变量覆盖的统一前缀。
const EnvPrefix = "HTMLSPLIT_"

// DefaultMaxBytes: 默认输入大小上限（64 MiB）。
const DefaultMaxBytes int64 = 64 << 20

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：Input 与模块表不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		MaxBytes: DefaultMaxBytes,
		Logging:  Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Reader: "fs",
			Writer: "fs",
		},
		Engine: Engine{Scope: "body"},
	}
}

// LoadFile 按扩展名选择解码器：.yaml/.yml 走 YAML，其余按 JSON。
func LoadFile(path string) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path, nil)
	default:
		return LoadJSON(path, nil)
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	r, closeFn, err := source(path, raw)
	if err != nil {
		return cfg, err
	}
	defer closeFn()
	if err := strictDecode(r, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadYAML 从文件路径或原始 YAML 解析 Config。
// YAML 先解码为通用树再转为 JSON，复用同一套严格解码与 snake_case 键名。
func LoadYAML(path string, raw []byte) (Config, error) {
	var cfg Config
	r, closeFn, err := source(path, raw)
	if err != nil {
		return cfg, err
	}
	defer closeFn()
	var tree any
	if err := yaml.NewDecoder(r).Decode(&tree); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("yaml: %w", err)
	}
	js, err := json.Marshal(tree)
	if err != nil {
		return cfg, fmt.Errorf("yaml: %w", err)
	}
	if err := strictDecode(bytes.NewReader(js), &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func source(path string, raw []byte) (io.Reader, func(), error) {
	switch {
	case len(raw) > 0:
		return bytes.NewReader(raw), func() {}, nil
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Close() }, nil
	default:
		return nil, nil, errors.New("no config source provided")
	}
}

func strictDecode(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON/整表为"替换"；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	// 顶层
	if strings.TrimSpace(over.Input) != "" {
		out.Input = strings.TrimSpace(over.Input)
	}
	if strings.TrimSpace(over.Document) != "" {
		out.Document = strings.TrimSpace(over.Document)
	}
	if over.MaxBytes != 0 {
		out.MaxBytes = over.MaxBytes
	}
	if over.Manifest != nil {
		out.Manifest = cloneBool(over.Manifest)
	}
	// Logging
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}
	if strings.TrimSpace(over.Logging.Dir) != "" {
		out.Logging.Dir = strings.TrimSpace(over.Logging.Dir)
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}

	out.Engine = mergeEngine(base.Engine, over.Engine)
	return out
}

func mergeEngine(base, over Engine) Engine {
	out := base
	if len(over.Targets) > 0 {
		out.Targets = cloneStrings(over.Targets)
	}
	if len(over.RawText) > 0 {
		out.RawText = cloneStrings(over.RawText)
	}
	if strings.TrimSpace(over.Scope) != "" {
		out.Scope = strings.TrimSpace(over.Scope)
	}
	if over.MaxPasses != 0 {
		out.MaxPasses = over.MaxPasses
	}
	if over.KeepExternal != nil {
		out.KeepExternal = cloneBool(over.KeepExternal)
	}
	if over.Dedent != nil {
		out.Dedent = cloneBool(over.Dedent)
	}
	if over.StyleInHead != nil {
		out.StyleInHead = cloneBool(over.StyleInHead)
	}
	if over.StrictBalance {
		out.StrictBalance = true
	}
	// 模块表与规则表整体替换。
	if len(over.Modules) > 0 {
		out.Modules = append([]Module(nil), over.Modules...)
	}
	if len(over.Rules) > 0 {
		out.Rules = make([]Rule, len(over.Rules))
		for i, r := range over.Rules {
			r.Options = cloneRaw(r.Options)
			out.Rules[i] = r
		}
	}
	if over.CatchAll.Script != "" {
		out.CatchAll.Script = over.CatchAll.Script
	}
	if over.CatchAll.Style != "" {
		out.CatchAll.Style = over.CatchAll.Style
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 HTMLSPLIT_；集合之外的键忽略；数值/布尔解析失败返回错误。
// 支持：INPUT, DOCUMENT, MAX_BYTES, MANIFEST, LOG_LEVEL, LOG_DIR, COMPONENTS_{READER,WRITER},
// OPTIONS_{READER,WRITER}_JSON, OUTPUT_DIR，
// 以及 ENGINE_{SCOPE,MAX_PASSES,TARGETS,KEEP_EXTERNAL,DEDENT,STYLE_IN_HEAD,STRICT_BALANCE,CATCH_ALL_SCRIPT,CATCH_ALL_STYLE}
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := kv[len(EnvPrefix):eq]
		val := strings.TrimSpace(kv[eq+1:])
		if val == "" {
			// 空值视为未设置，避免清空配置文件中的值
			continue
		}
		var err error
		switch key {
		case "INPUT":
			over.Input = val
		case "DOCUMENT":
			over.Document = val
		case "MAX_BYTES":
			over.MaxBytes, err = strconv.ParseInt(val, 10, 64)
		case "MANIFEST":
			over.Manifest, err = parseBool(val)
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LOG_DIR":
			over.Logging.Dir = val
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "OPTIONS_READER_JSON":
			over.Options.Reader = json.RawMessage(val)
		case "OPTIONS_WRITER_JSON":
			over.Options.Writer = json.RawMessage(val)
		case "OUTPUT_DIR":
			over.Options.Writer, err = json.Marshal(map[string]string{"output_dir": val})
		case "ENGINE_SCOPE":
			over.Engine.Scope = val
		case "ENGINE_MAX_PASSES":
			over.Engine.MaxPasses, err = atoi(val)
		case "ENGINE_TARGETS":
			over.Engine.Targets = splitComma(val)
		case "ENGINE_KEEP_EXTERNAL":
			over.Engine.KeepExternal, err = parseBool(val)
		case "ENGINE_DEDENT":
			over.Engine.Dedent, err = parseBool(val)
		case "ENGINE_STYLE_IN_HEAD":
			over.Engine.StyleInHead, err = parseBool(val)
		case "ENGINE_STRICT_BALANCE":
			var b *bool
			if b, err = parseBool(val); err == nil {
				over.Engine.StrictBalance = *b
			}
		case "ENGINE_CATCH_ALL_SCRIPT":
			over.Engine.CatchAll.Script = val
		case "ENGINE_CATCH_ALL_STYLE":
			over.Engine.CatchAll.Style = val
		}
		if err != nil {
			return Config{}, fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
		}
	}
	return over, nil
}

func parseBool(s string) (*bool, error) {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func cloneBool(in *bool) *bool {
	if in == nil {
		return nil
	}
	v := *in
	return &v
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
