// Package watch 监视输入文档，内容变更后（去抖）重新执行回调。
//
// 约束：
//  1. 监视输入所在目录而非文件本身，编辑器"写临时文件再 rename"的保存方式同样触发；
//  2. 只关心与输入同名的 Write/Create/Rename 事件；Chmod 等忽略；
//  3. 去抖窗口内的多次事件合并为一次回调；回调串行执行，不与自身重入；
//  4. ctx 取消即停止并释放 fsnotify 句柄；回调错误只记录，不终止监视。
package watch

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"htmlsplit/internal/diag"
)

// DefaultDebounce: 默认去抖窗口。
const DefaultDebounce = 300 * time.Millisecond

// Func 为变更后执行的回调。
type Func func(ctx context.Context) error

// Options 监视选项。
type Options struct {
	// Debounce: <=0 使用 DefaultDebounce。
	Debounce time.Duration
	Logger   *diag.Logger
}

// Stats 为监视期间的计数（测试与诊断用）。
type Stats struct {
	Events int
	Runs   int
	Errors int
}

// Watcher 监视单个输入文件。
type Watcher struct {
	path     string
	dir      string
	base     string
	debounce time.Duration
	logger   *diag.Logger
	fn       Func

	mu    sync.Mutex
	stats Stats
}

// New 创建监视器；path 必须是普通文件路径（STDIN 不可监视）。
func New(path string, fn Func, opts Options) (*Watcher, error) {
	if path == "" || path == "-" {
		return nil, errors.New("watch: input must be a file path")
	}
	if fn == nil {
		return nil, errors.New("watch: nil callback")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	d := opts.Debounce
	if d <= 0 {
		d = DefaultDebounce
	}
	return &Watcher{
		path:     abs,
		dir:      filepath.Dir(abs),
		base:     filepath.Base(abs),
		debounce: d,
		logger:   opts.Logger,
		fn:       fn,
	}, nil
}

// Stats 返回当前计数快照。
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Run 阻塞监视直到 ctx 取消；返回 nil 表示正常停止。
// ready 非空时在监视建立后关闭，调用方可据此开始修改文件。
func (w *Watcher) Run(ctx context.Context, ready chan<- struct{}) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.logger.StartWithKV("watch", "watching", w.path, "", map[string]string{"debounce_ms": strconv.FormatInt(w.debounce.Milliseconds(), 10)})
	if ready != nil {
		close(ready)
	}

	// go1.23 计时器语义：Stop/Reset 之后不会收到过期值。
	started := time.Now()
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoFinish("watch", "stopped", started, int64(w.Stats().Runs))
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.mu.Lock()
			w.stats.Events++
			w.mu.Unlock()
			w.logger.DebugStart("watch", "event", w.path, "", map[string]string{"op": ev.Op.String()})
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			w.logger.ErrorWith("watch", string(diag.CodeIO), err.Error(), nil, w.path, "")

		case <-timer.C:
			w.fire(ctx)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Base(ev.Name) != w.base || filepath.Dir(filepath.Clean(ev.Name)) != w.dir {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	err := w.fn(ctx)
	w.mu.Lock()
	w.stats.Runs++
	if err != nil {
		w.stats.Errors++
	}
	w.mu.Unlock()
	if err != nil {
		w.logger.ErrorWith("watch", string(diag.Classify(err)), "rerun failed: "+err.Error(), nil, w.path, "")
	}
}
