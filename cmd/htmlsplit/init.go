package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "htmlsplit/internal/config"
)

// initConfigName: init-config 生成的配置文件名。
const initConfigName = "htmlsplit.yaml"

func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "在指定目录生成默认配置 htmlsplit.yaml 和 .env 模板（已存在则不覆盖）；缺省为当前目录",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return withCode(exitConfig, err)
			}
			cfgPath := filepath.Join(dir, initConfigName)
			if err := writeConfig(cfgPath, cfgpkg.DefaultTemplateConfig(), stdout); err != nil {
				return withCode(exitConfig, err)
			}
			// .env 生成失败不影响退出码
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				fprintf(stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			fprintf(stdout, "已生成 %s\n", cfgPath)
			return nil
		},
	}
}

// writeConfig 以 YAML 写出配置；path 为 "-" 时写到 stdout。不覆盖已存在文件。
func writeConfig(path string, c cfgpkg.Config, stdout io.Writer) error {
	b, err := cfgpkg.EncodeYAML(c)
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = stdout.Write(b)
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(b)
	return err
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
// 仅创建文件；不覆盖，不合并。
func writeDotEnv(path string) error {
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		return nil
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	p := cfgpkg.EnvPrefix
	var b strings.Builder
	b.WriteString("# htmlsplit .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString(p + "CONFIG_FILE=\n")
	b.WriteString(p + "CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"INPUT", "DOCUMENT", "OUTPUT_DIR", "MAX_BYTES", "MANIFEST", "LOG_LEVEL", "LOG_DIR"} {
		b.WriteString(p + k + "=\n")
	}
	b.WriteString("\n# 组件选择与 Options\n")
	for _, k := range []string{"COMPONENTS_READER", "COMPONENTS_WRITER", "OPTIONS_READER_JSON", "OPTIONS_WRITER_JSON"} {
		b.WriteString(p + k + "=\n")
	}
	b.WriteString("\n# 引擎\n")
	for _, k := range []string{"ENGINE_SCOPE", "ENGINE_TARGETS", "ENGINE_MAX_PASSES", "ENGINE_KEEP_EXTERNAL",
		"ENGINE_DEDENT", "ENGINE_STYLE_IN_HEAD", "ENGINE_STRICT_BALANCE", "ENGINE_CATCH_ALL_SCRIPT", "ENGINE_CATCH_ALL_STYLE"} {
		b.WriteString(p + k + "=\n")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
