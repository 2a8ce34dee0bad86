package daemon

import (
	"fmt"
	"log"
	"time"

	"github.com/bbugyi200/axe/internal/events"
	"github.com/bbugyi200/axe/internal/model"
	"github.com/bbugyi200/axe/internal/notify"
	"github.com/bbugyi200/axe/internal/runner"
	"github.com/bbugyi200/axe/internal/specfile"
)

// HookChecker drains the pool's started/finished queues each tick and
// applies the corresponding suffix updates, without rescanning the
// full record set.
type HookChecker struct {
	specs    *specfile.Store
	pool     *runner.Pool
	bus      *events.Bus
	notifier *notify.Notifier
	logger   *log.Logger
	logLevel LogLevel
}

func NewHookChecker(specs *specfile.Store, pool *runner.Pool, bus *events.Bus, notifier *notify.Notifier, logger *log.Logger, logLevel LogLevel) *HookChecker {
	return &HookChecker{
		specs:    specs,
		pool:     pool,
		bus:      bus,
		notifier: notifier,
		logger:   logger,
		logLevel: logLevel,
	}
}

// Process handles one hook-check tick and returns the counter deltas.
func (h *HookChecker) Process() model.Counters {
	counters := model.Counters{HookChecks: 1}

	for _, handle := range h.pool.TakeStarted() {
		h.applyStarted(handle)
	}
	for _, handle := range h.pool.TakeFinished() {
		h.applyFinished(handle, &counters)
	}

	return counters
}

// applyStarted marks the entry as in flight: mentor runs carry the
// agent suffix, everything else the process suffix, both with the PID.
func (h *HookChecker) applyStarted(handle *runner.Handle) {
	task := handle.Task
	if task.List == "" {
		return
	}

	kind := model.SuffixRunningProcess
	if task.Kind == runner.KindMentor {
		kind = model.SuffixRunningAgent
	}
	suffix := &model.Suffix{Kind: kind, PID: handle.PID()}

	err := h.specs.Update(task.SpecName, func(spec *model.ChangeSpec) error {
		if !spec.SetSuffix(task.List, task.Index, suffix) {
			return fmt.Errorf("entry %s no longer exists", task.EntryKey)
		}
		return nil
	})
	if err != nil {
		h.log(LogLevelWarn, "mark started id=%s key=%s: %v", handle.ID, task.EntryKey, err)
		return
	}
	h.log(LogLevelDebug, "marked running id=%s key=%s pid=%d", handle.ID, task.EntryKey, handle.PID())
	h.bus.Publish(events.EventTaskStarted, map[string]interface{}{
		"runner_id": handle.ID,
		"spec_name": task.SpecName,
		"kind":      string(task.Kind),
		"pid":       handle.PID(),
	})
}

// applyFinished replaces the entry's in-flight suffix with its outcome:
// cleared on success, an error suffix on failure, a killed suffix (with
// the prior context preserved) on cancellation.
func (h *HookChecker) applyFinished(handle *runner.Handle, counters *model.Counters) {
	task := handle.Task
	finalState := handle.State()

	switch finalState {
	case runner.StateSucceeded:
		counters.TasksCompleted++
	case runner.StateFailed:
		counters.TasksFailed++
	case runner.StateKilled:
		counters.TasksKilled++
	}

	if task.List == "" {
		// Status checks and comment polls have no backing entry; their
		// failures only hit the log and the counters.
		if finalState != runner.StateSucceeded {
			h.log(LogLevelWarn, "task id=%s kind=%s spec=%s finished state=%s err=%v",
				handle.ID, task.Kind, task.SpecName, finalState, handle.ExitError())
		}
		h.publishFinished(handle, finalState)
		return
	}

	err := h.specs.Update(task.SpecName, func(spec *model.ChangeSpec) error {
		entries := spec.EntryList(task.List)
		if task.Index < 0 || task.Index >= len(entries) {
			return fmt.Errorf("entry %s no longer exists", task.EntryKey)
		}
		prior := entries[task.Index].Suffix

		var suffix *model.Suffix
		switch finalState {
		case runner.StateSucceeded:
			suffix = nil
		case runner.StateKilled:
			kind := model.SuffixKilledProcess
			if task.Kind == runner.KindMentor {
				kind = model.SuffixKilledAgent
			}
			msg := "killed"
			if ctx := prior.Context(); ctx != "" {
				msg = "killed; was " + ctx
			}
			suffix = &model.Suffix{Kind: kind, Message: msg}
		default:
			suffix = &model.Suffix{Kind: model.SuffixError, Message: handle.ExitError().Error()}
		}
		spec.SetSuffix(task.List, task.Index, suffix)
		return nil
	})
	if err != nil {
		h.log(LogLevelWarn, "mark finished id=%s key=%s: %v", handle.ID, task.EntryKey, err)
		return
	}

	if finalState == runner.StateFailed {
		h.log(LogLevelWarn, "task failed id=%s key=%s err=%v", handle.ID, task.EntryKey, handle.ExitError())
		if nerr := h.notifier.Notify("axe: runner failed", fmt.Sprintf("%s (%s)", task.SpecName, task.Kind)); nerr != nil {
			h.log(LogLevelWarn, "notification failed: %v", nerr)
		}
	} else {
		h.log(LogLevelDebug, "task finished id=%s key=%s state=%s", handle.ID, task.EntryKey, finalState)
	}
	h.publishFinished(handle, finalState)
}

func (h *HookChecker) publishFinished(handle *runner.Handle, finalState runner.HandleState) {
	h.bus.Publish(events.EventTaskFinished, map[string]interface{}{
		"runner_id": handle.ID,
		"spec_name": handle.Task.SpecName,
		"kind":      string(handle.Task.Kind),
		"state":     string(finalState),
	})
}

func (h *HookChecker) log(level LogLevel, format string, args ...any) {
	if level < h.logLevel {
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
	h.logger.Printf("%s %s hook_check: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}
