package config

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultTemplateConfig 返回一个"可运行"的默认配置模板：
// - 输入为当前目录的 index.html，输出到 ./out；
// - 模块表按站点布局：config.js 在前，六个功能模块，utils.js 兜底脚本，app.js 在后；
// - 样式统一进入 css/main.css 并在 head 中引用；
// - 选项给出安全中性默认值，键齐全便于编辑。
func DefaultTemplateConfig() Config {
	d := Defaults()
	yes := true
	cfg := Config{
		Input:      "index.html",
		Document:   "index.html",
		MaxBytes:   d.MaxBytes,
		Manifest:   &yes,
		Logging:    d.Logging,
		Components: d.Components,
	}
	cfg.Options.Reader = json.RawMessage(`{"buf_size":65536,"index":"index.html"}`)
	cfg.Options.Writer = json.RawMessage(`{"output_dir":"out","atomic":true,"flat":false,"buf_size":65536}`)

	eng := Engine{
		Targets:      []string{"script", "style"},
		Scope:        "body",
		KeepExternal: &yes,
		Dedent:       &yes,
		StyleInHead:  &yes,
		Modules: []Module{
			{Name: "config", Path: "js/config.js", Kind: "script", Role: "config", External: true},
		},
		CatchAll: CatchAll{Script: "utils", Style: "styles"},
	}
	features := []struct{ name, class string }{
		{"ProjectManagement", "ProjectManagementSystem"},
		{"CRMService", "CRMService"},
		{"FinancialManagement", "FinancialManagementSystem"},
		{"CollaborationSystem", "CollaborationSystem"},
		{"DataAnalyticsSystem", "DataAnalyticsSystem"},
		{"APIIntegrationSystem", "APIIntegrationSystem"},
	}
	for _, f := range features {
		eng.Modules = append(eng.Modules, Module{Name: f.name, Path: "js/modules/" + f.name + ".js", Kind: "script", Role: "feature"})
		eng.Rules = append(eng.Rules, Rule{Module: f.name, Matcher: "contains", Options: json.RawMessage(fmt.Sprintf(`{"value":"class %s"}`, f.class))})
	}
	eng.Modules = append(eng.Modules,
		Module{Name: "utils", Path: "js/utils.js", Kind: "script", Role: "feature"},
		Module{Name: "styles", Path: "css/main.css", Kind: "style", Role: "feature"},
		Module{Name: "app", Path: "js/app.js", Kind: "script", Role: "entry", External: true},
	)
	eng.Rules = append(eng.Rules,
		Rule{Module: "utils", Matcher: "contains", Options: json.RawMessage(`{"value":"Element.prototype.closest"}`)},
		Rule{Module: "utils", Matcher: "contains", Options: json.RawMessage(`{"value":"Array.prototype"}`)},
	)
	cfg.Engine = eng
	return cfg
}

// EncodeYAML 以块风格 YAML 输出 cfg，键顺序与结构体字段顺序一致。
// 经由 JSON 中转，保证与 LoadYAML 读取的键名一致。
func EncodeYAML(cfg Config) ([]byte, error) {
	js, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(js, &doc); err != nil {
		return nil, err
	}
	blockStyle(&doc)
	return yaml.Marshal(&doc)
}

// blockStyle 清除 JSON 源带来的 flow/引号风格。
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
