package contract

import (
	"fmt"
	"path"
	"strings"
)

// NormalizeFileID 规范化路径，统一为跨平台稳定的 FileID。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}

// CheckArtifactPath 校验模块/文档路径：必须为输出根下的相对路径。
// 拒绝空串、绝对路径、盘符、以及规范化后越出根目录的路径。
func CheckArtifactPath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("%w: empty path", ErrPathInvalid)
	}
	n := string(NormalizeFileID(p))
	if path.IsAbs(n) || n == "." || n == ".." || strings.HasPrefix(n, "../") || strings.Contains(n, ":") {
		return fmt.Errorf("%w: %q", ErrPathInvalid, p)
	}
	return nil
}
