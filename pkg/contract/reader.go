package contract

import (
	"context"
	"io"
)

// Reader: 输入文档来源（单文件或 STDIN）。
// 约束：
// 1) 一次运行只打开一个文档；
// 2) FileID 稳定且去平台差异化；
// 3) 不做解码/业务解析，仅提供字节流；
// 4) 调用方负责 Close。
type Reader interface {
	Open(ctx context.Context, root string) (FileID, io.ReadCloser, error)
}
