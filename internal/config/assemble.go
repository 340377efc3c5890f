package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"htmlsplit/internal/engine"
	"htmlsplit/internal/markup"
	"htmlsplit/internal/pipeline"
	"htmlsplit/internal/strip"
	"htmlsplit/pkg/contract"
	"htmlsplit/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Input) == "" {
		return errors.New("config: input empty")
	}
	if cfg.MaxBytes < 0 {
		return errors.New("config: max_bytes must be >= 0")
	}
	if cfg.Document != "" {
		if err := contract.CheckArtifactPath(cfg.Document); err != nil {
			return fmt.Errorf("config: document: %w", err)
		}
	}
	if name := effName(cfg.Components.Reader, Defaults().Components.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, Defaults().Components.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	return validateEngine(cfg.Engine, cfg.Document)
}

// validateEngine 校验模块表、规则表与兜底。
// 约束：
//  1. 模块名与路径唯一；路径相对且不越界；
//  2. 角色顺序：config 在前，entry 在后；
//  3. 兜底模块存在、类别一致且不是 External；
//  4. 规则指向已声明的生成模块，matcher 已注册。
func validateEngine(e Engine, document string) error {
	switch e.Scope {
	case "", string(strip.ScopeBody), string(strip.ScopeDocument):
	default:
		return fmt.Errorf("config: engine.scope %q must be body or document", e.Scope)
	}
	if e.MaxPasses < 0 {
		return errors.New("config: engine.max_passes must be >= 0")
	}
	for _, t := range e.Targets {
		if contract.BlockKindOf(t) == "" {
			return fmt.Errorf("config: engine.targets: %q is not script or style", t)
		}
	}
	if len(e.Modules) == 0 {
		return errors.New("config: engine.modules empty")
	}

	byName := make(map[string]Module, len(e.Modules))
	paths := make(map[string]string, len(e.Modules))
	rank := -1
	for i, m := range e.Modules {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("config: engine.modules[%d]: name empty", i)
		}
		if _, dup := byName[m.Name]; dup {
			return fmt.Errorf("config: module %q declared twice", m.Name)
		}
		if err := contract.CheckArtifactPath(m.Path); err != nil {
			return fmt.Errorf("config: module %q: %w", m.Name, err)
		}
		p := string(contract.NormalizeFileID(m.Path))
		if other, dup := paths[p]; dup {
			return fmt.Errorf("config: modules %q and %q share path %q", other, m.Name, p)
		}
		if document != "" && p == string(contract.NormalizeFileID(document)) {
			return fmt.Errorf("config: module %q path collides with document", m.Name)
		}
		if contract.BlockKindOf(m.Kind) == "" {
			return fmt.Errorf("config: module %q: kind %q must be script or style", m.Name, m.Kind)
		}
		r, ok := roleRank[contract.Role(m.Role)]
		if !ok {
			return fmt.Errorf("config: module %q: role %q must be config, feature or entry", m.Name, m.Role)
		}
		if r < rank {
			return fmt.Errorf("config: module %q: role %s declared after a later role", m.Name, m.Role)
		}
		rank = r
		byName[m.Name] = m
		paths[p] = m.Name
	}

	for kind, name := range map[contract.BlockKind]string{contract.Script: e.CatchAll.Script, contract.Style: e.CatchAll.Style} {
		if name == "" {
			continue
		}
		m, ok := byName[name]
		switch {
		case !ok:
			return fmt.Errorf("config: catch_all.%s: module %q not declared", kind, name)
		case m.External:
			return fmt.Errorf("config: catch_all.%s: module %q is external", kind, name)
		case contract.BlockKindOf(m.Kind) != kind:
			return fmt.Errorf("config: catch_all.%s: module %q has kind %s", kind, name, m.Kind)
		}
	}

	for i, r := range e.Rules {
		m, ok := byName[r.Module]
		if !ok {
			return fmt.Errorf("config: rules[%d]: module %q not declared", i, r.Module)
		}
		if m.External {
			return fmt.Errorf("config: rules[%d]: module %q is external", i, r.Module)
		}
		if registry.Matcher[r.Matcher] == nil {
			return fmt.Errorf("config: rules[%d]: matcher %q not registered", i, r.Matcher)
		}
	}
	return nil
}

var roleRank = map[contract.Role]int{
	contract.RoleConfig:  0,
	contract.RoleFeature: 1,
	contract.RoleEntry:   2,
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry （工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	d := Defaults()
	rn := effName(cfg.Components.Reader, d.Components.Reader)
	wn := effName(cfg.Components.Writer, d.Components.Writer)

	r, err := registry.Reader[rn](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: reader options: %w", err)
	}
	w, err := registry.Writer[wn](cfg.Options.Writer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: writer options: %w", err)
	}

	eo, err := EngineOptions(cfg.Engine)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	manifest := true
	if cfg.Manifest != nil {
		manifest = *cfg.Manifest
	}
	set := pipeline.Settings{
		Input:    strings.TrimSpace(cfg.Input),
		Document: contract.ArtifactID(cfg.Document),
		MaxBytes: cfg.MaxBytes,
		Manifest: manifest,
		Engine:   eo,
	}
	return pipeline.Components{Reader: r, Writer: w}, set, nil
}

// EngineOptions 将引擎配置翻译为 engine.Options，规则判定经注册表构造。
func EngineOptions(e Engine) (engine.Options, error) {
	var scan *markup.Options
	if len(e.RawText) > 0 {
		scan = &markup.Options{RawText: cloneStrings(e.RawText)}
	}
	mods := make([]contract.ModuleSpec, 0, len(e.Modules))
	for _, m := range e.Modules {
		mods = append(mods, contract.ModuleSpec{
			Name:     m.Name,
			Path:     string(contract.NormalizeFileID(m.Path)),
			Kind:     contract.BlockKindOf(m.Kind),
			Role:     contract.Role(m.Role),
			External: m.External,
		})
	}
	rules := make([]contract.ClassificationRule, 0, len(e.Rules))
	for i, r := range e.Rules {
		newMatcher := registry.Matcher[r.Matcher]
		if newMatcher == nil {
			return engine.Options{}, fmt.Errorf("config: rules[%d]: matcher %q not registered", i, r.Matcher)
		}
		pred, err := newMatcher(r.Options)
		if err != nil {
			return engine.Options{}, fmt.Errorf("config: rules[%d]: %w", i, err)
		}
		rules = append(rules, contract.ClassificationRule{
			Module:    r.Module,
			Signature: signature(r),
			Match:     pred,
		})
	}
	catchAll := map[contract.BlockKind]string{}
	if e.CatchAll.Script != "" {
		catchAll[contract.Script] = e.CatchAll.Script
	}
	if e.CatchAll.Style != "" {
		catchAll[contract.Style] = e.CatchAll.Style
	}

	return engine.Options{
		Scan: scan,
		Strip: strip.Options{
			Targets:      cloneStrings(e.Targets),
			Scope:        strip.Scope(e.Scope),
			MaxPasses:    e.MaxPasses,
			KeepExternal: boolOr(e.KeepExternal, true),
		},
		Modules:       mods,
		Rules:         rules,
		CatchAll:      catchAll,
		Dedent:        boolOr(e.Dedent, true),
		StyleInHead:   boolOr(e.StyleInHead, false),
		StrictBalance: e.StrictBalance,
	}, nil
}

// signature: matcher 名加紧凑 JSON 选项，例如 `contains {"value":"class CRMService"}`。
func signature(r Rule) string {
	if len(r.Options) == 0 {
		return r.Matcher
	}
	var b bytes.Buffer
	if err := json.Compact(&b, r.Options); err != nil {
		return r.Matcher
	}
	return r.Matcher + " " + b.String()
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
