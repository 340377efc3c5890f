package diag

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"htmlsplit/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeScan      Code = "scan"
	CodeBalance   Code = "balance"
	CodeRoute     Code = "route"
	CodeConverge  Code = "converge"
	CodeInvariant Code = "invariant"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	switch {
	case errors.Is(err, contract.ErrScan):
		return CodeScan
	case errors.Is(err, contract.ErrUnbalanced):
		return CodeBalance
	case errors.Is(err, contract.ErrUnrouted):
		return CodeRoute
	case errors.Is(err, contract.ErrConvergence):
		return CodeConverge
	case errors.Is(err, contract.ErrInvariantViolation),
		errors.Is(err, contract.ErrInvalidInput),
		errors.Is(err, contract.ErrPathInvalid):
		return CodeInvariant
	}
	// I/O：写出失败或文件系统错误
	var werr *contract.WriteError
	if errors.As(err, &werr) {
		return CodeIO
	}
	var perr *fs.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// NowUTC 返回 RFC3339 UTC 时间字符串。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
