package contract

import (
	"context"
	"io"
)

// ArtifactID: 输出工件的相对路径标识（模块文件、样式文件、重写后的文档）。
// 实现上与 FileID 复用同一表示，避免不必要的类型分裂。
type ArtifactID = FileID

// Writer: 将一个工件的完整内容持久化到目标介质。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 作用域获取：打开 → 写入全部 → 任何路径上都关闭；失败不得留下截断的目标；
//  3. ctx 取消需尽快返回；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}

// Locator: 可选能力，返回工件在本地介质上的位置（用于清单比对）。
// 不落盘的 Writer 不实现该接口。
type Locator interface {
	Locate(id ArtifactID) (string, error)
}
