package daemon

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bbugyi200/axe/internal/events"
	"github.com/bbugyi200/axe/internal/model"
	"github.com/bbugyi200/axe/internal/notify"
	"github.com/bbugyi200/axe/internal/runner"
	"github.com/bbugyi200/axe/internal/specfile"
	"github.com/bbugyi200/axe/internal/state"
)

// ZombieDetector reclaims pool slots held by runners past the zombie
// timeout. Runs on its own cadence, independent of both check timers.
//
// Reclaim is two-step for live processes: the first overdue sweep only
// downgrades the entry to pending_dead_process; a later sweep that
// still finds it pending force-kills and reclaims. Dead PIDs (the
// process exited but something still holds the slot, e.g. an orphaned
// grandchild inherited the pipe) reclaim immediately.
type ZombieDetector struct {
	specs    *specfile.Store
	pool     *runner.Pool
	timeout  time.Duration
	alive    func(pid int) bool
	bus      *events.Bus
	notifier *notify.Notifier
	logger   *log.Logger
	logLevel LogLevel

	mu     sync.Mutex
	warned map[string]bool // handle ID → pending-dead warning issued
}

func NewZombieDetector(specs *specfile.Store, pool *runner.Pool, cfg model.Config, bus *events.Bus, notifier *notify.Notifier, logger *log.Logger, logLevel LogLevel) *ZombieDetector {
	return &ZombieDetector{
		specs:    specs,
		pool:     pool,
		timeout:  time.Duration(cfg.Scheduler.ZombieTimeoutSec) * time.Second,
		alive:    state.PIDAlive,
		bus:      bus,
		notifier: notifier,
		logger:   logger,
		logLevel: logLevel,
		warned:   make(map[string]bool),
	}
}

// SetAliveProbe overrides the PID liveness probe for testing.
func (z *ZombieDetector) SetAliveProbe(alive func(pid int) bool) {
	z.alive = alive
}

// Sweep inspects every running handle once, reconciles stored running
// markers that no handle backs, and returns counter deltas.
func (z *ZombieDetector) Sweep() model.Counters {
	var counters model.Counters

	handles := z.pool.RunningHandles()
	live := make(map[string]bool, len(handles))
	for _, h := range handles {
		live[h.ID] = true
		z.check(h, &counters)
	}

	z.mu.Lock()
	for id := range z.warned {
		if !live[id] {
			delete(z.warned, id)
		}
	}
	z.mu.Unlock()

	z.reconcileOrphans(&counters)

	return counters
}

// reconcileOrphans cleans up what a crashed daemon, kill -9, or host
// reboot leaves behind: entries still marked running on disk with no
// handle in the pool. Without this pass the full check would skip the
// record as in-flight forever. A dead or unprobeable PID reclaims
// straight to the killed form; a live one is a process that outlived
// the old daemon and is left to finish — a later sweep picks it up
// once it exits.
func (z *ZombieDetector) reconcileOrphans(counters *model.Counters) {
	specs, _, err := z.specs.LoadAll()
	if err != nil {
		z.log(LogLevelWarn, "orphan reconcile: load records: %v", err)
		return
	}
	for _, spec := range specs {
		name := spec.Name
		spec.EachEntry(func(list string, index int, e *model.Entry) bool {
			if !e.Suffix.Running() || z.pool.Tracks(spec.EntryKey(list, index)) {
				return true
			}
			if e.Suffix.PID != 0 && z.alive(e.Suffix.PID) {
				return true
			}
			z.reclaimOrphan(name, list, index, e.Suffix, counters)
			return true
		})
	}
}

func (z *ZombieDetector) reclaimOrphan(name, list string, index int, old *model.Suffix, counters *model.Counters) {
	msg := "reclaimed zombie"
	if old.PID != 0 {
		msg = fmt.Sprintf("reclaimed zombie; was pid %d", old.PID)
	}
	suffix := &model.Suffix{Kind: model.KilledKindFor(old.Kind), Message: msg}
	err := z.specs.Update(name, func(spec *model.ChangeSpec) error {
		if !spec.SetSuffix(list, index, suffix) {
			return fmt.Errorf("entry %s/%s/%d no longer exists", name, list, index)
		}
		return nil
	})
	if err != nil {
		z.log(LogLevelWarn, "orphan reclaim %s/%s/%d: %v", name, list, index, err)
		return
	}
	counters.ZombiesReclaimed++
	z.log(LogLevelWarn, "reclaimed orphaned runner spec=%s entry=%s/%d pid=%d", name, list, index, old.PID)

	z.bus.Publish(events.EventZombieReclaimed, map[string]interface{}{
		"spec_name": name,
		"entry":     fmt.Sprintf("%s/%d", list, index),
		"pid":       old.PID,
	})
	if err := z.notifier.Notify("axe: zombie reclaimed", fmt.Sprintf("%s (pid %d)", name, old.PID)); err != nil {
		z.log(LogLevelWarn, "notification failed: %v", err)
	}
}

func (z *ZombieDetector) check(h *runner.Handle, counters *model.Counters) {
	age := time.Since(h.StartedAt())
	if age <= z.timeout {
		return
	}
	pid := h.PID()

	if !z.alive(pid) {
		z.log(LogLevelWarn, "reclaiming dead runner id=%s spec=%s pid=%d age=%s", h.ID, h.Task.SpecName, pid, age.Round(time.Second))
		z.reclaim(h, counters)
		return
	}

	z.mu.Lock()
	alreadyWarned := z.warned[h.ID]
	z.warned[h.ID] = true
	z.mu.Unlock()

	if !alreadyWarned {
		z.log(LogLevelWarn, "runner overdue id=%s spec=%s pid=%d age=%s, marking pending-dead", h.ID, h.Task.SpecName, pid, age.Round(time.Second))
		z.setSuffix(h, &model.Suffix{Kind: model.SuffixPendingDeadProcess, PID: pid})
		return
	}

	z.log(LogLevelWarn, "runner still overdue id=%s spec=%s pid=%d age=%s, force-reclaiming", h.ID, h.Task.SpecName, pid, age.Round(time.Second))
	z.reclaim(h, counters)
}

// reclaim frees the slot and writes the terminal killed suffix,
// preserving the old PID in the message.
func (z *ZombieDetector) reclaim(h *runner.Handle, counters *model.Counters) {
	pid := h.PID()
	z.pool.Reclaim(h)
	counters.ZombiesReclaimed++
	counters.TasksKilled++

	kind := model.SuffixKilledProcess
	if h.Task.Kind == runner.KindMentor {
		kind = model.SuffixKilledAgent
	}
	msg := "reclaimed zombie"
	if pid != 0 {
		msg = fmt.Sprintf("reclaimed zombie; was pid %d", pid)
	}
	z.setSuffix(h, &model.Suffix{Kind: kind, Message: msg})

	z.bus.Publish(events.EventZombieReclaimed, map[string]interface{}{
		"runner_id": h.ID,
		"spec_name": h.Task.SpecName,
		"kind":      string(h.Task.Kind),
		"pid":       pid,
	})
	if err := z.notifier.Notify("axe: zombie reclaimed", fmt.Sprintf("%s (pid %d)", h.Task.SpecName, pid)); err != nil {
		z.log(LogLevelWarn, "notification failed: %v", err)
	}
}

func (z *ZombieDetector) setSuffix(h *runner.Handle, suffix *model.Suffix) {
	task := h.Task
	if task.List == "" {
		return
	}
	err := z.specs.Update(task.SpecName, func(spec *model.ChangeSpec) error {
		if !spec.SetSuffix(task.List, task.Index, suffix) {
			return fmt.Errorf("entry %s no longer exists", task.EntryKey)
		}
		return nil
	})
	if err != nil {
		z.log(LogLevelWarn, "suffix update id=%s key=%s: %v", h.ID, task.EntryKey, err)
	}
}

func (z *ZombieDetector) log(level LogLevel, format string, args ...any) {
	if level < z.logLevel {
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
	z.logger.Printf("%s %s zombie_sweep: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}
