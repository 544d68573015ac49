package fs

import (
	"fmt"
	"os"

	"github.com/bft-labs/logship/internal/domain"
)

// FileLock holds an exclusive lock on "<base>.lock" for the lifetime of a
// durable queue. It implements ports.BufferLock.
type FileLock struct {
	f *os.File
}

// AcquireLock takes the buffer lock without waiting. It returns
// domain.ErrBufferLocked when another process or queue holds it.
func AcquireLock(basePath string) (*FileLock, error) {
	path := basePath + ".lock"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s", domain.ErrBufferLocked, path)
	}
	return &FileLock{f: f}, nil
}

// Release unlocks and closes the lock file. The file itself is kept.
func (l *FileLock) Release() error {
	if l.f == nil {
		return nil
	}
	unlockFile(l.f)
	err := l.f.Close()
	l.f = nil
	return err
}
