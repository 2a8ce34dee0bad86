package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// WritePID records the daemon's PID in pid.txt.
func (s *Store) WritePID(pid int) error {
	path := filepath.Join(s.stateDir, pidFile)
	content := strconv.Itoa(pid) + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// ReadPID returns the recorded daemon PID, or 0 when no pid file
// exists or it does not parse.
func (s *Store) ReadPID() int {
	content, err := os.ReadFile(filepath.Join(s.stateDir, pidFile))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// ClearPID removes pid.txt.
func (s *Store) ClearPID() {
	_ = os.Remove(filepath.Join(s.stateDir, pidFile))
}

// PIDAlive probes whether pid names a live process using signal 0.
// On Linux FindProcess always succeeds, so the signal probe is the
// real check. EPERM means the process exists but belongs to someone
// else, which still counts as alive.
func PIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
