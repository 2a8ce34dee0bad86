// Package lock provides the two mutual-exclusion primitives the axe
// daemon relies on: a per-key mutex map that serializes record
// mutations by ChangeSpec name, and an advisory file lock that makes
// the daemon a singleton per .axe directory.
package lock

import (
	"fmt"
	"os"
	"sync"
	"syscall"
)

// MutexMap hands out one mutex per key, so mutations of different
// records proceed in parallel while same-name mutations serialize.
// Mutexes are never evicted; the record namespace is small.
type MutexMap struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

func NewMutexMap() *MutexMap {
	return &MutexMap{
		mutexes: make(map[string]*sync.Mutex),
	}
}

func (m *MutexMap) Lock(key string) {
	m.getMutex(key).Lock()
}

func (m *MutexMap) Unlock(key string) {
	m.getMutex(key).Unlock()
}

func (m *MutexMap) getMutex(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mu, ok := m.mutexes[key]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	m.mutexes[key] = mu
	return mu
}

// FileLock is an advisory flock guarding .axe/state/daemon.lock. The
// flock is authoritative; the PID written into the file is for
// operator inspection only.
type FileLock struct {
	path string
	file *os.File
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// TryLock acquires the lock without blocking. Failure usually means
// another daemon holds it.
func (fl *FileLock) TryLock() error {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("acquire lock (another daemon may be running): %w", err)
	}

	if err := writeHolderPID(f); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return err
	}

	fl.file = f
	return nil
}

// writeHolderPID records who holds the lock. Informational only — the
// kernel drops the flock when the holder dies, PID file or not.
func writeHolderPID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("seek lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("write holder pid: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync lock file: %w", err)
	}
	return nil
}

// Unlock releases the flock and removes the lock file. Unlocking an
// unheld lock is a no-op.
func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}

	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		fl.file.Close()
		return fmt.Errorf("release lock: %w", err)
	}

	if err := fl.file.Close(); err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}

	os.Remove(fl.path)
	fl.file = nil
	return nil
}
