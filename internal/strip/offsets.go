package strip

// seg: 工作副本坐标 at 处之前曾移除过 n 个原始字节。
type seg struct {
	at int
	n  int
}

// offsetMap 把当前工作副本中的偏移映射回原始文档。按 at 升序。
type offsetMap []seg

// start 映射起始偏移：恰好位于 x 处的已移除内容在原文中排在 x 之前。
func (m offsetMap) start(x int) int {
	o := x
	for _, s := range m {
		if s.at > x {
			break
		}
		o += s.n
	}
	return o
}

// end 映射不含端点的结束偏移：恰好位于 x 处的已移除内容在原文中排在 x 之后。
func (m offsetMap) end(x int) int {
	o := x
	for _, s := range m {
		if s.at >= x {
			break
		}
		o += s.n
	}
	return o
}

// apply 返回本轮移除（按起点升序、互不重叠）之后的新映射。
// 区间内部的旧记录被吸收进新记录。
func (m offsetMap) apply(rs []span) offsetMap {
	out := make(offsetMap, 0, len(m)+len(rs))
	i, shift := 0, 0
	for _, r := range rs {
		for i < len(m) && m[i].at <= r.start {
			out = append(out, seg{at: m[i].at - shift, n: m[i].n})
			i++
		}
		absorbed := 0
		for i < len(m) && m[i].at < r.end {
			absorbed += m[i].n
			i++
		}
		out = append(out, seg{at: r.start - shift, n: r.end - r.start + absorbed})
		shift += r.end - r.start
	}
	for ; i < len(m); i++ {
		out = append(out, seg{at: m[i].at - shift, n: m[i].n})
	}
	return out
}
