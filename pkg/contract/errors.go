package contract

import (
	"errors"
	"fmt"
	"strings"
)

// 最小错误分类（哨兵），用于上层策略判定与日志分类。
var (
	// ErrScan: 开定界符到文本末尾都没有对应的闭定界符。
	ErrScan = errors.New("scan error")
	// ErrUnbalanced: 变换输出出现了新的标签失衡。
	ErrUnbalanced = errors.New("unbalanced markup")
	// ErrUnrouted: 没有规则命中且未配置兜底模块。
	ErrUnrouted = errors.New("block not routed")
	// ErrConvergence: 不动点剥离超出迭代上限。
	ErrConvergence = errors.New("fixpoint did not converge")
	// ErrPathInvalid: 工件标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvalidInput: 输入或选项不满足前置条件。
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)

// ScanError 携带出错定界符在原始文档中的字节偏移。
type ScanError struct {
	Offset int
	// Tag: 出错处的标签名（可能为空，例如未闭合的注释）。
	Tag string
}

func (e *ScanError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("scan error: unterminated delimiter at offset %d", e.Offset)
	}
	return fmt.Sprintf("scan error: unterminated <%s> at offset %d", e.Tag, e.Offset)
}

func (e *ScanError) Unwrap() error { return ErrScan }

// BalanceError 汇总输出文档上的结构问题。
type BalanceError struct {
	Issues []ValidationIssue
}

func (e *BalanceError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for i, is := range e.Issues {
		if i == 5 {
			parts = append(parts, fmt.Sprintf("... (+%d)", len(e.Issues)-i))
			break
		}
		if is.TagName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s> @%d", is.Kind, is.TagName, is.Offset))
		} else {
			parts = append(parts, fmt.Sprintf("%s @%d", is.Kind, is.Offset))
		}
	}
	return "unbalanced markup: " + strings.Join(parts, ", ")
}

func (e *BalanceError) Unwrap() error { return ErrUnbalanced }

// ClassificationError: 严格模式下块无处可去。
type ClassificationError struct {
	Offset int
	Kind   BlockKind
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("block not routed: %s block at offset %d matched no rule and no catch-all is configured", e.Kind, e.Offset)
}

func (e *ClassificationError) Unwrap() error { return ErrUnrouted }

// ConvergenceError: 迭代次数超过上限。
type ConvergenceError struct {
	Passes int
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("fixpoint did not converge within %d passes", e.Passes)
}

func (e *ConvergenceError) Unwrap() error { return ErrConvergence }

// WriteError: 单个目标写出失败；已写出的兄弟工件保持不变。
type WriteError struct {
	Artifact ArtifactID
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Artifact, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
