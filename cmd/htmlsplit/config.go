package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	cfgpkg "htmlsplit/internal/config"
	"htmlsplit/internal/diag"
	"htmlsplit/internal/pipeline"
)

// 配置来源的环境变量（不进入 EnvOverlay 的键集合）。
const (
	envConfigFile = cfgpkg.EnvPrefix + "CONFIG_FILE"
	envConfigJSON = cfgpkg.EnvPrefix + "CONFIG_JSON"
)

// defaultConfigFiles: 未指定 --config 时在工作目录依次查找。
var defaultConfigFiles = []string{"htmlsplit.yaml", "htmlsplit.yml", "htmlsplit.json"}

// globalFlags: 所有子命令共享的旗标（最小集）。
type globalFlags struct {
	config     string
	output     string
	document   string
	logLevel   string
	status     bool
	dryRun     bool
	noManifest bool
	strict     bool
}

func (g *globalFlags) register(c *cobra.Command) {
	pf := c.PersistentFlags()
	pf.StringVar(&g.config, "config", "", "配置文件路径（.yaml/.yml/.json）；缺省查找 ./htmlsplit.yaml 等")
	pf.StringVarP(&g.output, "output", "o", "", "输出根目录（覆盖 fs writer 的 output_dir）")
	pf.StringVar(&g.document, "document", "", "重写后文档的工件名（相对输出根）")
	pf.StringVar(&g.logLevel, "log-level", "", "日志级别 debug|info|warn|error（覆盖配置）")
	pf.BoolVar(&g.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	pf.BoolVar(&g.dryRun, "dry-run", false, "只在内存中生成工件并列出，不写盘")
	pf.BoolVar(&g.noManifest, "no-manifest", false, "不读写摘要清单，总是重写全部工件")
	pf.BoolVar(&g.strict, "strict-balance", false, "输出文档不得出现任何失衡（默认只要求不新增）")
}

// runEnv: 一次调用的已装配状态。
type runEnv struct {
	corrID string
	cfg    cfgpkg.Config
	comp   pipeline.Components
	set    pipeline.Settings
	logger *diag.Logger
}

func (e *runEnv) close() { _ = e.logger.Sync() }

// logMetrics 以 debug 事件输出进程内指标快照。
func (e *runEnv) logMetrics() {
	snap := diag.Snapshot()
	if len(snap) == 0 {
		return
	}
	kv := make(map[string]string, len(snap))
	for _, m := range snap {
		kv[m.Name] = strconv.FormatInt(m.Value, 10)
	}
	e.logger.DebugStart("metrics", "snapshot", "", "", kv)
}

// prepare: .env → 配置解析/合并/校验 → 以最终级别重建 logger → 装配。
// 任何失败都归为配置错误（退出码 3）。
func prepare(gf *globalFlags, args []string, stderr io.Writer) (*runEnv, error) {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = godotenv.Load()
	// 先以默认级别占位，配置解析后重建
	logger := diag.NewLogger(corrID, defaultLevel)

	cfg, err := loadConfig(gf, args)
	if err != nil {
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		_ = logger.Sync()
		return nil, withCode(exitConfig, fmt.Errorf("配置解析失败: %w", err))
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		// 打印有效配置，便于诊断
		_ = dumpConfig(stderr, cfg)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		_ = logger.Sync()
		return nil, withCode(exitConfig, fmt.Errorf("配置校验失败: %w", err))
	}
	_ = logger.Sync()

	level := defaultLevel
	if s := strings.TrimSpace(cfg.Logging.Level); s != "" {
		level = s
	}
	logger = diag.NewLoggerIn(cfg.Logging.Dir, corrID, level)

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		_ = logger.Sync()
		return nil, withCode(exitConfig, fmt.Errorf("装配失败: %w", err))
	}
	logger.DebugStart("config", "effective", "", "", map[string]string{
		"input":    cfg.Input,
		"document": string(set.Document),
		"reader":   cfg.Components.Reader,
		"writer":   cfg.Components.Writer,
		"modules":  strconv.Itoa(len(cfg.Engine.Modules)),
		"rules":    strconv.Itoa(len(cfg.Engine.Rules)),
		"scope":    cfg.Engine.Scope,
		"manifest": strconv.FormatBool(set.Manifest),
		"strict":   strconv.FormatBool(set.Engine.StrictBalance),
	})
	return &runEnv{corrID: corrID, cfg: cfg, comp: comp, set: set, logger: logger}, nil
}

// loadConfig 按优先级合并：默认 → 文件 → HTMLSPLIT_CONFIG_JSON → ENV → CLI。
func loadConfig(gf *globalFlags, args []string) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()

	path := gf.config
	if path == "" {
		path = os.Getenv(envConfigFile)
	}
	if path == "" {
		path = defaultConfigFile()
	}
	if path != "" {
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	if s := os.Getenv(envConfigJSON); s != "" {
		base, err := cfgpkg.LoadJSON("", []byte(s))
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", envConfigJSON, err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	over, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, err
	}
	cfg = cfgpkg.Merge(cfg, over)
	return applyFlags(cfg, gf, args)
}

func defaultConfigFile() string {
	for _, name := range defaultConfigFiles {
		if st, err := os.Stat(name); err == nil && !st.IsDir() {
			return name
		}
	}
	return ""
}

// applyFlags: CLI 覆盖（最高优先级）。
func applyFlags(cfg cfgpkg.Config, gf *globalFlags, args []string) (cfgpkg.Config, error) {
	var over cfgpkg.Config
	if len(args) > 0 {
		over.Input = args[0]
	}
	over.Document = gf.document
	over.Logging.Level = gf.logLevel
	if gf.noManifest {
		off := false
		over.Manifest = &off
	}
	over.Engine.StrictBalance = gf.strict
	cfg = cfgpkg.Merge(cfg, over)

	if gf.dryRun {
		cfg.Components.Writer = "memory"
		cfg.Options.Writer = nil
		return cfg, nil
	}
	if strings.TrimSpace(gf.output) != "" {
		raw, err := setOutputDir(cfg.Options.Writer, strings.TrimSpace(gf.output))
		if err != nil {
			return cfg, err
		}
		cfg.Options.Writer = raw
	}
	return cfg, nil
}

// setOutputDir 在 writer options 中设置 output_dir，保留其余键。
func setOutputDir(raw json.RawMessage, dir string) (json.RawMessage, error) {
	m := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("options.writer: %w", err)
		}
	}
	v, err := json.Marshal(dir)
	if err != nil {
		return nil, err
	}
	m["output_dir"] = v
	return json.Marshal(m)
}

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := cfgpkg.EncodeYAML(c)
	if err != nil {
		return err
	}
	fprintf(w, "有效配置:\n%s\n", b)
	return nil
}

// preflightCheckOutputDir: 当 Writer 使用文件系统实现(fs)时，启动前检查输出目录可写性。
// 规则：
// - 若目录已存在：尝试创建并删除临时文件；失败则判为不可写。
// - 若目录不存在：检查父目录是否可写（尝试在父目录创建并删除临时目录）。
// 仅针对 fs writer 生效；其他 writer 跳过。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	def := cfgpkg.Defaults()
	writerName := cfg.Components.Writer
	if strings.TrimSpace(writerName) == "" {
		writerName = def.Components.Writer
	}
	if strings.TrimSpace(writerName) != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		// 未指定时无法可靠检查，让装配阶段按实现自行报错
		return nil
	}
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	} else if err == nil && !st.IsDir() {
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	// 目录不存在：向上找到第一个已存在的祖先并检查其可写性
	parent := filepath.Dir(dir)
	for {
		if _, err := os.Stat(parent); err == nil {
			break
		}
		next := filepath.Dir(parent)
		if next == parent {
			return fmt.Errorf("无法确定父目录: %s", dir)
		}
		parent = next
	}
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
