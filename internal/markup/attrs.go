package markup

import (
	"strings"

	"golang.org/x/net/html"
)

// Attrs 解析单个开标签文本的属性。键为小写，值已做实体解码；不是开标签时返回 nil。
// 重复属性保留首次出现的值（与浏览器一致）。
func Attrs(tagText string) map[string]string {
	z := html.NewTokenizer(strings.NewReader(tagText))
	switch z.Next() {
	case html.StartTagToken, html.SelfClosingTagToken:
	default:
		return nil
	}
	tok := z.Token()
	out := make(map[string]string, len(tok.Attr))
	for _, a := range tok.Attr {
		if _, seen := out[a.Key]; seen {
			continue
		}
		out[a.Key] = a.Val
	}
	return out
}

// HasAttr 报告开标签是否带有指定属性（大小写不敏感）。
func HasAttr(tagText, key string) bool {
	_, ok := Attrs(tagText)[strings.ToLower(key)]
	return ok
}
