// Package memory 为不落盘的 Writer（dry-run），记录每个工件的最终内容。
package memory

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"htmlsplit/pkg/contract"
)

// Options 为内存 Writer 的配置。
type Options struct {
	// FailOn: 写这些工件时返回错误（用于演练写失败路径）。
	FailOn []string `json:"fail_on,omitempty"`
}

// ErrInjected 为 FailOn 命中时返回的错误。
var ErrInjected = errors.New("memory writer: injected failure")

// Memory 实现 contract.Writer。
type Memory struct {
	mu    sync.Mutex
	files map[contract.ArtifactID][]byte
	order []contract.ArtifactID
	fail  map[contract.ArtifactID]struct{}
}

// New 创建内存 Writer。
func New(opts *Options) *Memory {
	m := &Memory{files: map[contract.ArtifactID][]byte{}, fail: map[contract.ArtifactID]struct{}{}}
	if opts != nil {
		for _, f := range opts.FailOn {
			m.fail[contract.NormalizeFileID(f)] = struct{}{}
		}
	}
	return m
}

var _ contract.Writer = (*Memory)(nil)

// Write 读取 r 的全部内容；失败时不改变已记录的内容。
func (m *Memory) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id = contract.NormalizeFileID(string(id))
	if _, bad := m.fail[id]; bad {
		return ErrInjected
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.files[id]; !seen {
		m.order = append(m.order, id)
	}
	m.files[id] = b
	return nil
}

// Get 返回工件内容。
func (m *Memory) Get(id contract.ArtifactID) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[contract.NormalizeFileID(string(id))]
	return b, ok
}

// Written 按首次写入顺序返回工件标识。
func (m *Memory) Written() []contract.ArtifactID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]contract.ArtifactID(nil), m.order...)
}

// Sorted 按字典序返回工件标识。
func (m *Memory) Sorted() []contract.ArtifactID {
	ids := m.Written()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
