//go:build windows

package filesystem

import (
	"syscall"
	"unsafe"
)

const (
	moveReplaceExisting = 0x1
	moveWriteThrough    = 0x8
)

var procMoveFileExW = syscall.NewLazyDLL("kernel32.dll").NewProc("MoveFileExW")

// replaceFile: MoveFileExW(REPLACE_EXISTING|WRITE_THROUGH)，替换完成后才返回。
func replaceFile(tmpPath, dest string) error {
	from, err := syscall.UTF16PtrFromString(tmpPath)
	if err != nil {
		return err
	}
	to, err := syscall.UTF16PtrFromString(dest)
	if err != nil {
		return err
	}
	ok, _, callErr := procMoveFileExW.Call(
		uintptr(unsafe.Pointer(from)),
		uintptr(unsafe.Pointer(to)),
		uintptr(moveReplaceExisting|moveWriteThrough),
	)
	if ok != 0 {
		return nil
	}
	if errno, isErrno := callErr.(syscall.Errno); isErrno && errno != 0 {
		return errno
	}
	return syscall.EINVAL
}

// syncParent: Windows 上目录无法 fsync。
func syncParent(string) error { return nil }
