// Package runner provides the bounded pool that executes background
// work items (hooks, status checks, comment polls, mentor runs) as
// child processes, with FIFO admission, per-entry coalescing, and
// forced reclaim for zombies.
package runner

import (
	"sync"
	"time"

	"github.com/bbugyi200/axe/internal/model"
)

// TaskKind identifies what a work item does.
type TaskKind string

const (
	KindHook        TaskKind = "hook"
	KindStatusCheck TaskKind = "status_check"
	KindCommentPoll TaskKind = "comment_poll"
	KindMentor      TaskKind = "mentor"
)

// Task is one unit of work submitted to the pool. Argv is the fully
// expanded command line; EntryKey is the coalescing identity — at most
// one in-flight task per key.
type Task struct {
	Kind     TaskKind
	SpecName string
	List     string
	Index    int
	EntryKey string
	Argv     []string
}

// HandleState is the lifecycle of a submitted task.
type HandleState string

const (
	StateQueued    HandleState = "queued"
	StateRunning   HandleState = "running"
	StateSucceeded HandleState = "succeeded"
	StateFailed    HandleState = "failed"
	StateKilled    HandleState = "killed"
)

// Terminal reports whether the state is final.
func (s HandleState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateKilled
}

// Handle tracks one submitted task through the pool. All fields behind
// mu; the release once guards the semaphore slot so the normal wait
// path and a forced reclaim can both fire without double-releasing.
type Handle struct {
	ID   string
	Task Task

	mu        sync.Mutex
	state     HandleState
	pid       int
	startedAt time.Time
	exitErr   error
	proc      Process

	release sync.Once
	done    chan struct{}
}

func newHandle(task Task) *Handle {
	// crypto/rand only fails when the OS entropy source is broken; an
	// empty ID then only hurts log readability.
	id, _ := model.GenerateID(model.IDTypeRunner)
	return &Handle{
		ID:    id,
		Task:  task,
		state: StateQueued,
		done:  make(chan struct{}),
	}
}

// Done is closed once the handle's slot and bookkeeping are released.
func (h *Handle) Done() <-chan struct{} { return h.done }

// markDone runs under the release once, so the close never races.
func (h *Handle) markDone() { close(h.done) }

// State returns the current lifecycle state.
func (h *Handle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// PID returns the child's process ID, 0 before the task starts.
func (h *Handle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pid
}

// StartedAt returns when the child began running (zero while queued).
func (h *Handle) StartedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.startedAt
}

// ExitError returns the failure recorded at finalization, nil on
// success or while the task is still live.
func (h *Handle) ExitError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

func (h *Handle) markRunning(proc Process) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = StateRunning
	h.proc = proc
	h.pid = proc.PID()
	h.startedAt = time.Now()
}

// finalize records the terminal state. First caller wins: a reclaim
// that races the normal wait-return keeps whichever verdict landed
// first.
func (h *Handle) finalize(state HandleState, err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Terminal() {
		return false
	}
	h.state = state
	h.exitErr = err
	return true
}

func (h *Handle) process() Process {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.proc
}
