package runner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"
)

// LogLevel controls logging verbosity.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// ParseLogLevel maps a config string to a LogLevel, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Pool runs submitted tasks through a fixed number of slots. Admission
// is strict FIFO, enforced by a single dispatch goroutine that acquires
// a slot before popping the queue head. One in-flight task per
// EntryKey: duplicate submissions coalesce onto the live handle.
type Pool struct {
	executor Executor
	logger   *log.Logger
	logLevel LogLevel

	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	wake   chan struct{}

	mu       sync.Mutex
	queue    []*Handle
	inflight map[string]*Handle // EntryKey → live handle
	running  map[string]*Handle // handle ID → running handle
	started  []*Handle
	finished []*Handle
	closed   bool
}

// NewPool creates a pool with maxRunners slots and starts its dispatch
// loop.
func NewPool(maxRunners int, executor Executor, logger *log.Logger, logLevel LogLevel) *Pool {
	if maxRunners <= 0 {
		maxRunners = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		executor: executor,
		logger:   logger,
		logLevel: logLevel,
		sem:      semaphore.NewWeighted(int64(maxRunners)),
		ctx:      ctx,
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
		inflight: make(map[string]*Handle),
		running:  make(map[string]*Handle),
	}
	p.wg.Add(1)
	go p.dispatchLoop()
	return p
}

// Submit enqueues a task. When a task for the same EntryKey is already
// queued or running, the live handle comes back with coalesced=true and
// nothing new is enqueued. A closed pool returns (nil, false).
func (p *Pool) Submit(task Task) (*Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false
	}
	if live, ok := p.inflight[task.EntryKey]; ok {
		p.log(LogLevelDebug, "submit_coalesced key=%s onto=%s", task.EntryKey, live.ID)
		return live, true
	}

	h := newHandle(task)
	p.inflight[task.EntryKey] = h
	p.queue = append(p.queue, h)
	p.log(LogLevelDebug, "submit id=%s kind=%s key=%s queue_len=%d", h.ID, task.Kind, task.EntryKey, len(p.queue))

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return h, false
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// Queued returns the number of tasks waiting for a slot.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// RunningHandles snapshots the currently executing handles.
func (p *Pool) RunningHandles() []*Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Handle, 0, len(p.running))
	for _, h := range p.running {
		out = append(out, h)
	}
	return out
}

// Tracks reports whether a queued or running handle exists for the
// entry key.
func (p *Pool) Tracks(entryKey string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[entryKey]
	return ok
}

// TakeStarted drains and returns the handles that began running since
// the previous call.
func (p *Pool) TakeStarted() []*Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.started
	p.started = nil
	return out
}

// TakeFinished drains and returns the handles that reached a terminal
// state since the previous call.
func (p *Pool) TakeFinished() []*Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.finished
	p.finished = nil
	return out
}

func (p *Pool) dispatchLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.wake:
		}
		for {
			p.mu.Lock()
			empty := len(p.queue) == 0
			p.mu.Unlock()
			if empty {
				break
			}

			// Slot first, then head: keeps start order strictly FIFO.
			if err := p.sem.Acquire(p.ctx, 1); err != nil {
				return
			}
			p.mu.Lock()
			if len(p.queue) == 0 {
				p.mu.Unlock()
				p.sem.Release(1)
				break
			}
			h := p.queue[0]
			p.queue = p.queue[1:]
			p.mu.Unlock()

			p.startTask(h)
		}
	}
}

func (p *Pool) startTask(h *Handle) {
	proc, err := p.executor.Start(p.ctx, h.ID, h.Task)
	if err != nil {
		p.log(LogLevelError, "task_start_failed id=%s kind=%s spec=%s error=%v", h.ID, h.Task.Kind, h.Task.SpecName, err)
		h.finalize(StateFailed, err)
		p.complete(h, true)
		return
	}

	h.markRunning(proc)
	p.mu.Lock()
	p.running[h.ID] = h
	p.started = append(p.started, h)
	p.mu.Unlock()
	p.log(LogLevelInfo, "task_started id=%s kind=%s spec=%s pid=%d", h.ID, h.Task.Kind, h.Task.SpecName, proc.PID())

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.onExit(h, proc.Wait())
	}()
}

func (p *Pool) onExit(h *Handle, err error) {
	if err == nil {
		h.finalize(StateSucceeded, nil)
	} else {
		// A cancel or reclaim may have already recorded killed; the
		// first verdict stands.
		h.finalize(StateFailed, err)
	}
	p.complete(h, true)
	p.log(LogLevelInfo, "task_finished id=%s kind=%s spec=%s state=%s", h.ID, h.Task.Kind, h.Task.SpecName, h.State())
}

// complete releases the handle's bookkeeping exactly once: slot,
// inflight entry, running entry, and (for everything except a zombie
// reclaim, which writes its own record) the finished drain queue.
func (p *Pool) complete(h *Handle, addFinished bool) {
	h.release.Do(func() {
		p.mu.Lock()
		delete(p.running, h.ID)
		if p.inflight[h.Task.EntryKey] == h {
			delete(p.inflight, h.Task.EntryKey)
		}
		if addFinished {
			p.finished = append(p.finished, h)
		}
		p.mu.Unlock()
		h.markDone()
		p.sem.Release(1)
	})
}

// Cancel stops a task: queued tasks are dropped, running tasks get
// SIGTERM to their process group with a SIGKILL escalation after grace.
func (p *Pool) Cancel(h *Handle, grace time.Duration) {
	p.mu.Lock()
	for i, queued := range p.queue {
		if queued == h {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			p.mu.Unlock()
			h.finalize(StateKilled, fmt.Errorf("cancelled while queued"))
			// Queued handles never acquired a slot; burn the once
			// without releasing.
			h.release.Do(func() {
				p.mu.Lock()
				if p.inflight[h.Task.EntryKey] == h {
					delete(p.inflight, h.Task.EntryKey)
				}
				p.finished = append(p.finished, h)
				p.mu.Unlock()
				h.markDone()
			})
			p.log(LogLevelInfo, "task_cancelled id=%s state=queued", h.ID)
			return
		}
	}
	p.mu.Unlock()

	proc := h.process()
	if proc == nil {
		return
	}
	h.finalize(StateKilled, fmt.Errorf("cancelled"))
	p.log(LogLevelInfo, "task_cancelling id=%s pid=%d grace=%s", h.ID, h.PID(), grace)
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		p.log(LogLevelWarn, "task_sigterm_failed id=%s error=%v", h.ID, err)
	}
	time.AfterFunc(grace, func() {
		select {
		case <-h.done:
			return
		default:
		}
		p.log(LogLevelWarn, "task_escalating id=%s pid=%d signal=SIGKILL", h.ID, h.PID())
		_ = proc.Kill()
	})
}

// Reclaim force-releases a running handle whose process is dead or
// being written off as a zombie. The slot frees immediately even if
// the waiter goroutine never returns; the caller owns the record
// updates, so the handle does not enter the finished queue.
func (p *Pool) Reclaim(h *Handle) {
	if proc := h.process(); proc != nil {
		_ = proc.Kill()
	}
	h.finalize(StateKilled, fmt.Errorf("reclaimed"))
	p.complete(h, false)
	p.log(LogLevelInfo, "task_reclaimed id=%s kind=%s spec=%s", h.ID, h.Task.Kind, h.Task.SpecName)
}

// Shutdown stops admission, cancels queued work, terminates running
// tasks with grace, and waits for the waiters until ctx expires.
func (p *Pool) Shutdown(ctx context.Context, grace time.Duration) error {
	p.mu.Lock()
	p.closed = true
	queued := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, h := range queued {
		h.finalize(StateKilled, fmt.Errorf("pool shutting down"))
		h.release.Do(func() {
			p.mu.Lock()
			if p.inflight[h.Task.EntryKey] == h {
				delete(p.inflight, h.Task.EntryKey)
			}
			p.finished = append(p.finished, h)
			p.mu.Unlock()
			h.markDone()
		})
	}

	for _, h := range p.RunningHandles() {
		p.Cancel(h, grace)
	}

	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool shutdown timed out: %w", ctx.Err())
	}
}

func (p *Pool) log(level LogLevel, format string, args ...any) {
	if level < p.logLevel || p.logger == nil {
		return
	}
	levelStr := "INFO"
	switch level {
	case LogLevelDebug:
		levelStr = "DEBUG"
	case LogLevelWarn:
		levelStr = "WARN"
	case LogLevelError:
		levelStr = "ERROR"
	}
	msg := fmt.Sprintf(format, args...)
	p.logger.Printf("%s %s runner: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}
