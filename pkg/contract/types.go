package contract

import "strings"

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// TagKind: 标签边界的分类。
type TagKind int

const (
	Opening TagKind = iota
	Closing
	SelfClosing
	// Comment: <!-- ... --> 以及 <!DOCTYPE ...> / <?xml ...?> 之类的不透明片段。
	Comment
	// Unterminated: 扫描器哨兵，表示从 Start 起到文本末尾都找不到结束定界符。
	// 扫描器产出该值后即停止；是否致命由调用方决定。
	Unterminated
)

func (k TagKind) String() string {
	switch k {
	case Opening:
		return "opening"
	case Closing:
		return "closing"
	case SelfClosing:
		return "self_closing"
	case Comment:
		return "comment"
	case Unterminated:
		return "unterminated"
	default:
		return "unknown"
	}
}

// Tag: 文本中的一个标签边界 [Start, End)。
// 约束：
//  1. Start < End；
//  2. Name 为尖括号内首个名字记号，保留原始大小写；匹配一律使用 Key()。
type Tag struct {
	Name  string
	Start int
	End   int
	Kind  TagKind
}

// Key 返回用于匹配的小写名。
func (t Tag) Key() string { return strings.ToLower(t.Name) }

// BlockKind: 内联块类别。
type BlockKind string

const (
	Script BlockKind = "script"
	Style  BlockKind = "style"
)

// BlockKindOf 根据元素名推导块类别；未知元素名返回空串。
func BlockKindOf(name string) BlockKind {
	switch strings.ToLower(name) {
	case "script":
		return Script
	case "style":
		return Style
	default:
		return ""
	}
}

// ExtractedBlock: 由剥离器移除的一个内联元素。创建后只读，由下游阶段各消费一次。
type ExtractedBlock struct {
	// OriginStart/OriginEnd: 整个元素（含开闭标签）在原始文档中的区间。
	OriginStart int
	OriginEnd   int
	// Content: 去掉开闭标签后的内容（原样，不做清洗）。
	Content string
	Kind    BlockKind
	// Raw: 被移除的完整元素文本（移除发生时的工作副本视角）。
	Raw string
	// At: 移除后该元素在本轮结果中的位置；按提取逆序回插 Raw 可还原原文。
	At int
	// Pass: 第几轮（从 1 开始）完成移除。
	Pass int
	// OpenTag: 开标签原文，例如 `<script type="module">`。
	OpenTag string
}

// Predicate: 分类签名的判定函数，仅依赖块内容。
type Predicate func(content string) bool

// ClassificationRule: 有序规则表中的一项（首个命中者胜出）。
type ClassificationRule struct {
	Module string
	// Signature: 人类可读的签名描述，仅用于日志。
	Signature string
	Match     Predicate
}

// Role: 模块在加载顺序中的角色。
type Role string

const (
	RoleConfig  Role = "config"
	RoleFeature Role = "feature"
	RoleEntry   Role = "entry"
)

// ModuleSpec: 声明的输出模块。声明顺序即引用顺序。
type ModuleSpec struct {
	Name string
	// Path: 相对输出根的工件路径，同时用作文档中的引用地址。
	Path string
	Kind BlockKind
	Role Role
	// External: 仅引用，不生成（例如站点中已存在的入口脚本）。
	External bool
}

// Module: 聚合完成的模块（只包含非空或 External 的模块）。
type Module struct {
	ModuleSpec
	Content string
	// Blocks: 该模块收到的块数。
	Blocks int
}

// ReferenceInsertion: 在最终文档中插入的一条外部引用。
type ReferenceInsertion struct {
	// AfterMarker: 插入点的标记，引用紧贴该标记之前写入（例如 "</body>"）。
	AfterMarker string
	TagText     string
	Module      string
}

// IssueKind: 结构校验问题类别。
type IssueKind string

const (
	UnmatchedOpen  IssueKind = "unmatched_open"
	UnmatchedClose IssueKind = "unmatched_close"
	DanglingText   IssueKind = "dangling_text"
)

// ValidationIssue: 单条结构问题。TagName 对 DanglingText 为空。
type ValidationIssue struct {
	Kind    IssueKind
	Offset  int
	TagName string
}

// Lint: 非致命提示（例如脚本块引号奇数）。
type Lint struct {
	Offset  int
	Message string
}
