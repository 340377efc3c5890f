// Package manifest 记录上一次运行写出的工件摘要（BLAKE3），
// 使重复运行跳过内容未变的工件。
package manifest

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"htmlsplit/pkg/contract"
)

// ID: 清单自身的工件标识（位于输出根）。
const ID contract.ArtifactID = ".htmlsplit-manifest.json"

// Version: 当前清单格式版本；版本不符的清单被视为空。
const Version = 1

// Entry: 单个工件的摘要。
type Entry struct {
	BLAKE3 string `json:"blake3"`
	Size   int64  `json:"size"`
}

// Manifest 为输出根下的工件清单。
type Manifest struct {
	Version   int              `json:"version"`
	Source    string           `json:"source,omitempty"`
	Artifacts map[string]Entry `json:"artifacts"`
}

// New 返回空清单。
func New(source string) *Manifest {
	return &Manifest{Version: Version, Source: source, Artifacts: map[string]Entry{}}
}

// Digest 返回 data 的 BLAKE3-256 十六进制摘要。
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Load 读取 path 处的清单；文件不存在或版本不符时返回空清单。
func Load(path, source string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(source), nil
	}
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	if m.Version != Version || m.Artifacts == nil {
		return New(source), nil
	}
	m.Source = source
	return &m, nil
}

// Unchanged 报告 id 的新内容是否与清单一致，且磁盘上 path 处文件的摘要仍是记录值。
// 磁盘文件被改动（即使大小不变）时返回 false，重复运行会把它恢复。
func (m *Manifest) Unchanged(id contract.ArtifactID, data []byte, path string) bool {
	e, ok := m.Artifacts[string(id)]
	if !ok || e.Size != int64(len(data)) || e.BLAKE3 != Digest(data) {
		return false
	}
	sum, size, err := DigestFile(path)
	return err == nil && size == e.Size && sum == e.BLAKE3
}

// DigestFile 流式计算常规文件的 BLAKE3-256 摘要与大小。
func DigestFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", 0, err
	}
	if !info.Mode().IsRegular() {
		return "", 0, fmt.Errorf("%s: not a regular file", path)
	}
	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Record 登记 id 的当前内容。
func (m *Manifest) Record(id contract.ArtifactID, data []byte) {
	m.Artifacts[string(id)] = Entry{BLAKE3: Digest(data), Size: int64(len(data))}
}

// Encode 序列化清单（键有序，结果稳定）。
func (m *Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
