package stress

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	cfgpkg "htmlsplit/internal/config"
	"htmlsplit/internal/pipeline"
)

// baseConfig 与 testdata 相同，构造可运行的最小配置。
func baseConfig(input, outDir string) cfgpkg.Config {
	cfg := cfgpkg.Merge(cfgpkg.Defaults(), cfgpkg.DefaultTemplateConfig())
	cfg.Input = input
	cfg.Logging.Level = "error"
	cfg.Options.Writer = json.RawMessage(fmt.Sprintf(`{"output_dir":%q,"atomic":false,"flat":false,"perm_file":0,"perm_dir":0,"buf_size":65536}`, outDir))
	return cfg
}

// runPipeline 执行完整流水线。
func runPipeline(t *testing.T, cfg cfgpkg.Config) (*pipeline.Report, error) {
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return nil, err
	}
	return pipeline.Run(context.Background(), comp, set, nil)
}

var features = []string{
	"ProjectManagementSystem", "CRMService", "FinancialManagementSystem",
	"CollaborationSystem", "DataAnalyticsSystem", "APIIntegrationSystem",
}

// genPage 生成 n 个区块的文档；每隔 depth 个区块额外放一个包在 noscript 中的 style。
func genPage(n, depth int) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head><title>stress</title></head>\n<body>\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "  <section id=\"s%d\">\n", i)
		switch {
		case i%7 == 6:
			fmt.Fprintf(&b, "    <script>\n      function helper%d() { return %d; }\n    </script>\n", i, i)
		case depth > 0 && i%depth == 0:
			fmt.Fprintf(&b, "    <noscript><style>.s%d { display: none; }</style></noscript>\n", i)
			fmt.Fprintf(&b, "    <script>\n      class %s%d extends Array {}\n    </script>\n", features[i%len(features)], i)
		default:
			fmt.Fprintf(&b, "    <script>\n      class %s { id() { return %d; } }\n    </script>\n", features[i%len(features)], i)
		}
		fmt.Fprintf(&b, "    <style>\n      #s%d { margin: %dpx; }\n    </style>\n", i, i%10)
		b.WriteString("  </section>\n")
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// TestStress 在不同文档规模下运行流水线并记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("stress")
	}
	sizes := []int{10, 100, 1000, 5000}
	for _, n := range sizes {
		t.Run(fmt.Sprintf("blocks_%d", n), func(t *testing.T) {
			const runs = 5
			dataDir := t.TempDir()
			in := filepath.Join(dataDir, "index.html")
			if err := os.WriteFile(in, []byte(genPage(n, 5)), 0o644); err != nil {
				t.Fatalf("write input: %v", err)
			}
			successes := 0
			latencies := make([]time.Duration, 0, runs)
			for i := 0; i < runs; i++ {
				outDir := t.TempDir()
				start := time.Now()
				rep, err := runPipeline(t, baseConfig(in, outDir))
				dur := time.Since(start)
				if err != nil {
					t.Errorf("run %d: %v", i, err)
					continue
				}
				if got := len(rep.Result.Blocks); got < 2*n {
					t.Errorf("run %d: want >= %d blocks, got %d", i, 2*n, got)
				}
				successes++
				latencies = append(latencies, dur)
			}
			if successes == 0 {
				t.Fatalf("全部运行失败")
			}
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var total time.Duration
			for _, d := range latencies {
				total += d
			}
			avg := total / time.Duration(len(latencies))
			idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
			if idx < 0 {
				idx = 0
			}
			p95 := latencies[idx]
			t.Logf("区块%d 成功率%.2f 平均%v 95%%延迟%v", n, float64(successes)/float64(runs), avg, p95)
		})
	}
}
