package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// Process is a started child the pool can observe and signal.
type Process interface {
	PID() int
	Wait() error
	Signal(sig os.Signal) error
	Kill() error
}

// Executor starts tasks. The production executor forks real processes;
// tests substitute a fake so pool behavior is testable without exec.
type Executor interface {
	Start(ctx context.Context, id string, task Task) (Process, error)
}

// ExecExecutor runs tasks as real child processes. Each child gets its
// own process group so cancellation reaches the whole tree, and its
// combined output lands in <logsDir>/<handle-id>.log.
type ExecExecutor struct {
	logsDir string
}

func NewExecExecutor(logsDir string) *ExecExecutor {
	return &ExecExecutor{logsDir: logsDir}
}

// Start forks the task. The context gates admission only — a pool
// that has begun shutdown must not fork late children. A started
// child's lifetime is driven by Signal/Kill on its process group, not
// by the context, so cancellation can escalate SIGTERM → SIGKILL with
// a grace window instead of killing outright.
func (e *ExecExecutor) Start(ctx context.Context, id string, task Task) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}
	if len(task.Argv) == 0 {
		return nil, fmt.Errorf("task %s has empty argv", id)
	}

	cmd := exec.Command(task.Argv[0], task.Argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = nil

	logPath := filepath.Join(e.logsDir, id+".log")
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open runner log %s: %w", logPath, err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("start %q: %w", task.Argv[0], err)
	}

	return &execProcess{cmd: cmd, logFile: logFile}, nil
}

// HookArgv wraps a hook's shell command line for execution. Hooks are
// free-form shell text, so they go through the shell; the other task
// kinds are pre-split argv templates and bypass it.
func HookArgv(command string) []string {
	return []string{"/bin/sh", "-c", command}
}

type execProcess struct {
	cmd     *exec.Cmd
	logFile *os.File
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	_ = p.logFile.Close()
	return err
}

// Signal delivers sig to the whole process group.
func (p *execProcess) Signal(sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return p.cmd.Process.Signal(sig)
	}
	return syscall.Kill(-p.cmd.Process.Pid, s)
}

func (p *execProcess) Kill() error {
	return syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
}
