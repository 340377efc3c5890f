package diag

import (
	"sort"
	"sync"
)

// 进程内指标（无导出端点）：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}（累计）
// 运行结束时由 CLI 以 debug 事件输出快照。

var (
	metricsMu sync.Mutex
	counters  = map[string]int64{}
)

func add(key string, v int64) {
	metricsMu.Lock()
	counters[key] += v
	metricsMu.Unlock()
}

// IncOp 累加操作计数（result=success|error|skip）。
func IncOp(comp, stage, result string) {
	add("op_total{"+comp+","+stage+","+result+"}", 1)
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	add("error_total{"+comp+","+code+"}", 1)
}

// ObserveDuration 累加阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	add("op_duration_ms{"+comp+","+stage+"}", durMS)
}

// Metric 为快照中的一项。
type Metric struct {
	Name  string
	Value int64
}

// Snapshot 返回按名称排序的当前计数。
func Snapshot() []Metric {
	metricsMu.Lock()
	out := make([]Metric, 0, len(counters))
	for k, v := range counters {
		out = append(out, Metric{Name: k, Value: v})
	}
	metricsMu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResetMetrics 清空计数（watch 模式每轮开始时调用）。
func ResetMetrics() {
	metricsMu.Lock()
	counters = map[string]int64{}
	metricsMu.Unlock()
}
