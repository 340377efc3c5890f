package markup

import (
	"strings"

	"htmlsplit/pkg/contract"
)

// - 只识别标签边界，不建树、不解码实体；
// - "<" 之后必须紧跟合法标签名记号（字母开头，后接字母/数字/-_:.，再接空白、'/' 或 '>'），
//   否则按普通文本跳过，例如 `if(a<b){}` 中的 "<"；
// - 原始文本元素（默认 script/style）的内容不解释，直接跳到首个大小写不敏感的 "</name"；
// - 找不到结束定界符时产出 Unterminated 哨兵并停止，由调用方决定是否致命。

// DefaultRawText: 内容按原始文本处理的元素名。
var DefaultRawText = []string{"script", "style"}

// Options: 扫描器选项；nil 使用默认值。
type Options struct {
	// RawText: 内容不解释的元素名（大小写不敏感）。nil 使用 DefaultRawText，显式空切片表示不启用。
	RawText []string
}

// Scanner 为惰性、可从任意偏移重启的标签序列。
type Scanner struct {
	src  string
	pos  int
	raw  map[string]struct{}
	done bool

	// 刚产出的原始文本开标签；下一次 Next 直接定位其闭标签。
	rawName  string
	rawStart int
}

// NewScanner 从 from 偏移开始扫描 src。
func NewScanner(src string, from int, opts *Options) *Scanner {
	names := DefaultRawText
	if opts != nil && opts.RawText != nil {
		names = opts.RawText
	}
	raw := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			raw[n] = struct{}{}
		}
	}
	if from < 0 {
		from = 0
	}
	return &Scanner{src: src, pos: from, raw: raw}
}

// Next 返回下一个标签；序列结束时返回 false。
// 产出 Unterminated 之后序列即结束。
func (s *Scanner) Next() (contract.Tag, bool) {
	if s.done {
		return contract.Tag{}, false
	}
	if s.rawName != "" {
		return s.rawClose()
	}
	for s.pos < len(s.src) {
		i := strings.IndexByte(s.src[s.pos:], '<')
		if i < 0 {
			break
		}
		i += s.pos
		tag, ok := s.tagAt(i)
		if !ok {
			s.pos = i + 1
			continue
		}
		if tag.Kind == contract.Unterminated {
			s.done = true
			return tag, true
		}
		s.pos = tag.End
		if tag.Kind == contract.Opening {
			if _, isRaw := s.raw[tag.Key()]; isRaw {
				s.rawName = tag.Name
				s.rawStart = tag.Start
			}
		}
		return tag, true
	}
	s.pos = len(s.src)
	s.done = true
	return contract.Tag{}, false
}

// Offset 返回下一次扫描的起点。
func (s *Scanner) Offset() int { return s.pos }

// tagAt 尝试把 i 处的 '<' 解释为标签；不是标签时返回 false。
func (s *Scanner) tagAt(i int) (contract.Tag, bool) {
	src := s.src
	j := i + 1
	if j >= len(src) {
		return contract.Tag{}, false
	}
	switch c := src[j]; {
	case strings.HasPrefix(src[j:], "!--"):
		end := strings.Index(src[j+3:], "-->")
		if end < 0 {
			return contract.Tag{Name: "!--", Start: i, End: len(src), Kind: contract.Unterminated}, true
		}
		return contract.Tag{Name: "!--", Start: i, End: j + 3 + end + 3, Kind: contract.Comment}, true
	case c == '!' || c == '?':
		if j+1 >= len(src) || !(isLetter(src[j+1]) || src[j+1] == '[') {
			return contract.Tag{}, false
		}
		name := string(c) + src[j+1:nameEnd(src, j+1)]
		end := strings.IndexByte(src[j:], '>')
		if end < 0 {
			return contract.Tag{Name: name, Start: i, End: len(src), Kind: contract.Unterminated}, true
		}
		return contract.Tag{Name: name, Start: i, End: j + end + 1, Kind: contract.Comment}, true
	case c == '/':
		if j+1 >= len(src) || !isLetter(src[j+1]) {
			return contract.Tag{}, false
		}
		ne := nameEnd(src, j+1)
		if ne < len(src) && !isBoundary(src[ne]) {
			return contract.Tag{}, false
		}
		name := src[j+1 : ne]
		end := tagEnd(src, ne)
		if end < 0 {
			return contract.Tag{Name: name, Start: i, End: len(src), Kind: contract.Unterminated}, true
		}
		return contract.Tag{Name: name, Start: i, End: end, Kind: contract.Closing}, true
	case isLetter(c):
		ne := nameEnd(src, j)
		if ne < len(src) && !isBoundary(src[ne]) {
			return contract.Tag{}, false
		}
		name := src[j:ne]
		end := tagEnd(src, ne)
		if end < 0 {
			return contract.Tag{Name: name, Start: i, End: len(src), Kind: contract.Unterminated}, true
		}
		kind := contract.Opening
		if selfClosed(src[ne : end-1]) {
			kind = contract.SelfClosing
		}
		return contract.Tag{Name: name, Start: i, End: end, Kind: kind}, true
	default:
		return contract.Tag{}, false
	}
}

// rawClose 定位原始文本元素的闭标签。
func (s *Scanner) rawClose() (contract.Tag, bool) {
	name := s.rawName
	s.rawName = ""
	src := s.src
	for k := s.pos; k < len(src); {
		i := strings.Index(src[k:], "</")
		if i < 0 {
			break
		}
		i += k
		ne := i + 2 + len(name)
		if ne <= len(src) && strings.EqualFold(src[i+2:ne], name) && (ne == len(src) || isBoundary(src[ne])) {
			end := tagEnd(src, ne)
			if end < 0 {
				break
			}
			s.pos = end
			return contract.Tag{Name: src[i+2 : ne], Start: i, End: end, Kind: contract.Closing}, true
		}
		k = i + 2
	}
	s.done = true
	return contract.Tag{Name: name, Start: s.rawStart, End: len(src), Kind: contract.Unterminated}, true
}

// ScanAll 扫描整个文本；遇到 Unterminated 哨兵时返回 *contract.ScanError。
func ScanAll(src string, opts *Options) ([]contract.Tag, error) {
	sc := NewScanner(src, 0, opts)
	var tags []contract.Tag
	for {
		t, ok := sc.Next()
		if !ok {
			return tags, nil
		}
		if t.Kind == contract.Unterminated {
			return tags, &contract.ScanError{Offset: t.Start, Tag: t.Key()}
		}
		tags = append(tags, t)
	}
}

// tagEnd 从 i 起寻找不在引号属性值内的 '>'，返回其后一位；找不到返回 -1。
// 只有紧跟 '=' 的引号才开启属性值。
func tagEnd(src string, i int) int {
	var q byte
	var prev byte
	for ; i < len(src); i++ {
		c := src[i]
		if q != 0 {
			if c == q {
				q = 0
				prev = c
			}
			continue
		}
		switch {
		case c == '>':
			return i + 1
		case (c == '"' || c == '\'') && prev == '=':
			q = c
			continue
		}
		if !isSpace(c) {
			prev = c
		}
	}
	return -1
}

func selfClosed(attrs string) bool {
	attrs = strings.TrimRight(attrs, " \t\r\n\f")
	return strings.HasSuffix(attrs, "/")
}

func nameEnd(src string, i int) int {
	for i < len(src) && isNameChar(src[i]) {
		i++
	}
	return i
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

func isNameChar(c byte) bool {
	return isLetter(c) || c >= '0' && c <= '9' || c == '-' || c == '_' || c == ':' || c == '.'
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' }

func isBoundary(c byte) bool { return isSpace(c) || c == '/' || c == '>' }
