// Package lockfile 基于 flock(2) 的非阻塞进程级互斥锁。
// 持有进程退出时内核自动释放，崩溃的调度进程不会留下残留锁。
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// ErrLocked 锁已被其他进程持有
var ErrLocked = errors.New("lock already held")

// Lock 已获取的锁文件
type Lock struct {
	file *os.File
	path string
}

// Acquire 非阻塞地获取 path 上的锁，目录和文件不存在时自动创建
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create lock directory for %s", path)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open lock file %s", path)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			err = errors.WithDetailf(ErrLocked, "held by %s", Holder(path))
			return nil, errors.Wrapf(err, "lock %s", path)
		}
		return nil, errors.Wrapf(err, "flock %s", path)
	}

	// 写入持有者信息，便于排查
	if err := file.Truncate(0); err == nil {
		_, _ = file.WriteAt([]byte(fmt.Sprintf("pid=%d\n", os.Getpid())), 0)
	}

	return &Lock{file: file, path: path}, nil
}

// Path 锁文件路径
func (l *Lock) Path() string {
	return l.path
}

// Release 解锁并关闭文件，文件保留在磁盘上，保证所有进程锁的是同一个 inode。可重复调用
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil

	unlockErr := unix.Flock(int(file.Fd()), unix.LOCK_UN)
	closeErr := file.Close()
	if unlockErr != nil {
		return errors.Wrapf(unlockErr, "unlock %s", l.path)
	}
	return errors.Wrapf(closeErr, "close %s", l.path)
}

// Holder 读取锁文件中记录的持有者 pid，用于日志
func Holder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	content := strings.TrimSpace(string(data))
	if pid, ok := strings.CutPrefix(content, "pid="); ok {
		if _, err := strconv.Atoi(pid); err == nil {
			return "pid " + pid
		}
	}
	return "unknown"
}
