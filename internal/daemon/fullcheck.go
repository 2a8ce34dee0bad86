package daemon

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/bbugyi200/axe/internal/events"
	"github.com/bbugyi200/axe/internal/model"
	"github.com/bbugyi200/axe/internal/query"
	"github.com/bbugyi200/axe/internal/runner"
	"github.com/bbugyi200/axe/internal/specfile"
)

// FullChecker runs one full scheduling cycle: load every record,
// select the monitored subset, and submit the due work to the pool.
type FullChecker struct {
	config       model.Config
	specs        *specfile.Store
	pool         *runner.Pool
	monitorQuery *query.Node
	bus          *events.Bus
	logger       *log.Logger
	logLevel     LogLevel
}

func NewFullChecker(cfg model.Config, specs *specfile.Store, pool *runner.Pool, monitorQuery *query.Node, bus *events.Bus, logger *log.Logger, logLevel LogLevel) *FullChecker {
	return &FullChecker{
		config:       cfg,
		specs:        specs,
		pool:         pool,
		monitorQuery: monitorQuery,
		bus:          bus,
		logger:       logger,
		logLevel:     logLevel,
	}
}

// RunCycle executes one full check and returns the cycle result plus
// the counter deltas to fold into the persisted metrics.
func (f *FullChecker) RunCycle() (model.CycleResult, model.Counters) {
	cycleID, _ := model.GenerateID(model.IDTypeCycle)
	start := time.Now()
	result := model.CycleResult{
		CycleID:   cycleID,
		StartedAt: start.UTC().Format(time.RFC3339),
	}
	counters := model.Counters{FullChecks: 1}

	specs, corrupt, err := f.specs.LoadAll()
	counters.FilesQuarantined += corrupt
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("load records: %v", err))
	}
	result.Scanned = len(specs)

	forest := model.NewForest(specs)
	matched := query.Select(f.monitorQuery, forest)
	result.Matched = len(matched)

	// Error-marked specs go first; Select already yields name order, so
	// a stable partition keeps it within each group.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].HasMarker(model.SuffixError) && !matched[j].HasMarker(model.SuffixError)
	})

	for _, spec := range matched {
		if spec.HasRunningWork() {
			f.log(LogLevelDebug, "cycle=%s spec=%s skipped: work in flight", cycleID, spec.Name)
			result.Skipped++
			continue
		}
		for _, task := range f.buildTasks(spec) {
			if _, coalesced := f.pool.Submit(task); coalesced {
				counters.TasksCoalesced++
				result.Coalesced++
			} else {
				counters.TasksSubmitted++
				result.Submitted++
			}
		}
	}

	end := time.Now()
	result.FinishedAt = end.UTC().Format(time.RFC3339)
	result.DurationMs = end.Sub(start).Milliseconds()

	f.log(LogLevelInfo, "cycle=%s scanned=%d matched=%d submitted=%d coalesced=%d skipped=%d duration=%dms",
		cycleID, result.Scanned, result.Matched, result.Submitted, result.Coalesced, result.Skipped, result.DurationMs)
	f.bus.Publish(events.EventCycleCompleted, map[string]interface{}{
		"cycle_id":  cycleID,
		"scanned":   result.Scanned,
		"matched":   result.Matched,
		"submitted": result.Submitted,
	})

	return result, counters
}

// buildTasks computes the work due for one eligible spec: one task per
// non-running hooks entry, one status check and one comment poll (when
// configured), and one task per non-running mentors entry.
func (f *FullChecker) buildTasks(spec *model.ChangeSpec) []runner.Task {
	var tasks []runner.Task

	for i, e := range spec.Hooks {
		if e.Suffix.Running() {
			continue
		}
		tasks = append(tasks, runner.Task{
			Kind:     runner.KindHook,
			SpecName: spec.Name,
			List:     model.ListHooks,
			Index:    i,
			EntryKey: spec.EntryKey(model.ListHooks, i),
			Argv:     runner.HookArgv(e.Text),
		})
	}

	if argv := expandArgv(f.config.Commands.StatusCheck, spec.Name, ""); len(argv) > 0 {
		tasks = append(tasks, runner.Task{
			Kind:     runner.KindStatusCheck,
			SpecName: spec.Name,
			Index:    -1,
			EntryKey: spec.Name + "/#status_check",
			Argv:     argv,
		})
	}
	if argv := expandArgv(f.config.Commands.CommentPoll, spec.Name, ""); len(argv) > 0 {
		tasks = append(tasks, runner.Task{
			Kind:     runner.KindCommentPoll,
			SpecName: spec.Name,
			Index:    -1,
			EntryKey: spec.Name + "/#comment_poll",
			Argv:     argv,
		})
	}

	for i, e := range spec.Mentors {
		if e.Suffix.Running() {
			continue
		}
		argv := expandArgv(f.config.Commands.Mentor, spec.Name, e.Text)
		if len(argv) == 0 {
			continue
		}
		tasks = append(tasks, runner.Task{
			Kind:     runner.KindMentor,
			SpecName: spec.Name,
			List:     model.ListMentors,
			Index:    i,
			EntryKey: spec.EntryKey(model.ListMentors, i),
			Argv:     argv,
		})
	}

	return tasks
}

// expandArgv substitutes {name} and {entry} in an argv template. An
// empty template means the task type is not configured.
func expandArgv(template []string, name, entry string) []string {
	if len(template) == 0 {
		return nil
	}
	argv := make([]string, len(template))
	for i, arg := range template {
		arg = strings.ReplaceAll(arg, "{name}", name)
		arg = strings.ReplaceAll(arg, "{entry}", entry)
		argv[i] = arg
	}
	return argv
}

func (f *FullChecker) log(level LogLevel, format string, args ...any) {
	if level < f.logLevel {
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
	f.logger.Printf("%s %s full_check: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}
