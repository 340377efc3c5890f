//go:build !windows

package filesystem

import "os"

// replaceFile: POSIX rename 在同一文件系统内是原子的。
func replaceFile(tmpPath, dest string) error { return os.Rename(tmpPath, dest) }

// syncParent 持久化目录项（rename 的元数据）。
func syncParent(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
