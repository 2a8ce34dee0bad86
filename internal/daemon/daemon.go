// Package daemon implements the axe scheduler: three independent
// cadences (full check, hook check, zombie sweep) over a bounded
// runner pool, with a UDS control socket and on-disk state snapshots.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bbugyi200/axe/internal/events"
	"github.com/bbugyi200/axe/internal/lock"
	"github.com/bbugyi200/axe/internal/model"
	"github.com/bbugyi200/axe/internal/notify"
	"github.com/bbugyi200/axe/internal/query"
	"github.com/bbugyi200/axe/internal/runner"
	"github.com/bbugyi200/axe/internal/specfile"
	"github.com/bbugyi200/axe/internal/state"
	"github.com/bbugyi200/axe/internal/uds"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func parseLogLevel(s string) LogLevel {
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

// debounceDelay batches bursts of specs-directory writes into one
// early full check.
const debounceDelay = 500 * time.Millisecond

// cancelGrace is the SIGTERM→SIGKILL escalation window.
const cancelGrace = 5 * time.Second

// Daemon is the axe scheduler process.
type Daemon struct {
	axeDir   string
	config   model.Config
	logLevel LogLevel
	logger   *log.Logger
	logFile  io.Closer

	fileLock *lock.FileLock
	server   *uds.Server
	watcher  *fsnotify.Watcher

	specs    *specfile.Store
	states   *state.Store
	pool     *runner.Pool
	bus      *events.Bus
	audit    *events.AuditLogger
	notifier *notify.Notifier

	fullChecker *FullChecker
	hookChecker *HookChecker
	zombies     *ZombieDetector

	monitorQuery *query.Node
	startedAt    time.Time

	phaseMu sync.Mutex
	phase   model.DaemonPhase

	fullCheckCh chan struct{}
	debounceMu  sync.Mutex
	debounce    *time.Timer

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once

	forceExit atomic.Bool
}

// New creates a Daemon rooted at axeDir. The daemon logger tees stderr
// and .axe/state/logs/output.log.
func New(axeDir string, cfg model.Config) (*Daemon, error) {
	states, err := state.NewStore(axeDir)
	if err != nil {
		return nil, err
	}

	logFile, err := os.OpenFile(states.OutputLogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open daemon log: %w", err)
	}

	return newDaemon(axeDir, cfg, states, io.MultiWriter(os.Stderr, logFile), logFile)
}

// newDaemon is the internal constructor for testing.
func newDaemon(axeDir string, cfg model.Config, states *state.Store, w io.Writer, closer io.Closer) (*Daemon, error) {
	node, err := query.Parse(cfg.Scheduler.MonitoringQuery)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("monitoring query: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		axeDir:       axeDir,
		config:       cfg,
		logLevel:     parseLogLevel(cfg.Logging.Level),
		logger:       log.New(w, "", 0),
		logFile:      closer,
		fileLock:     lock.NewFileLock(filepath.Join(states.Dir(), "daemon.lock")),
		server:       uds.NewServer(filepath.Join(states.Dir(), uds.DefaultSocketName)),
		specs:        specfile.NewStore(axeDir),
		states:       states,
		bus:          events.NewBus(100),
		notifier:     notify.NewNotifier(cfg.Notifications.Enabled),
		monitorQuery: node,
		phase:        model.PhaseStopped,
		fullCheckCh:  make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
	}

	return d, nil
}

// Run starts the daemon and blocks until shutdown completes.
func (d *Daemon) Run() error {
	if err := d.setPhase(model.PhaseStarting); err != nil {
		return err
	}

	// Step 1: singleton guard. flock is authoritative; a recorded PID
	// that is no longer alive just means the previous daemon died hard.
	if err := d.fileLock.TryLock(); err != nil {
		return fmt.Errorf("daemon lock: %w", err)
	}
	if old := d.states.ReadPID(); old != 0 && old != os.Getpid() && !state.PIDAlive(old) {
		d.log(LogLevelWarn, "stale pid file (pid=%d is dead), taking over", old)
	}
	if err := d.states.WritePID(os.Getpid()); err != nil {
		d.cleanup()
		return err
	}
	d.log(LogLevelInfo, "daemon starting pid=%d query=%q", os.Getpid(), d.config.Scheduler.MonitoringQuery)

	// Step 2: fsnotify watch on the records directory.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.cleanup()
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	d.watcher = watcher
	specsDir := d.specs.SpecsDir()
	if err := os.MkdirAll(specsDir, 0755); err != nil {
		d.cleanup()
		return fmt.Errorf("ensure specs dir: %w", err)
	}
	if err := watcher.Add(specsDir); err != nil {
		d.cleanup()
		return fmt.Errorf("watch %s: %w", specsDir, err)
	}

	// Step 3: runner pool and check components.
	executor := runner.NewExecExecutor(filepath.Join(d.states.Dir(), "logs"))
	d.pool = runner.NewPool(d.config.Scheduler.MaxRunners, executor, d.logger, runner.LogLevel(d.logLevel))
	d.fullChecker = NewFullChecker(d.config, d.specs, d.pool, d.monitorQuery, d.bus, d.logger, d.logLevel)
	d.hookChecker = NewHookChecker(d.specs, d.pool, d.bus, d.notifier, d.logger, d.logLevel)
	d.zombies = NewZombieDetector(d.specs, d.pool, d.config, d.bus, d.notifier, d.logger, d.logLevel)

	// Step 4: audit trail subscribed to every bus event.
	audit, err := events.NewAuditLogger(d.states.EventLogPath(), 0)
	if err != nil {
		d.cleanup()
		return fmt.Errorf("open audit log: %w", err)
	}
	d.audit = audit
	d.subscribeAudit()

	// Step 5: UDS control socket.
	d.registerHandlers()
	if err := d.server.Start(); err != nil {
		d.cleanup()
		return fmt.Errorf("start UDS server: %w", err)
	}
	d.log(LogLevelInfo, "UDS server listening on %s", filepath.Join(d.states.Dir(), uds.DefaultSocketName))

	d.startedAt = time.Now()
	if err := d.setPhase(model.PhaseRunning); err != nil {
		d.cleanup()
		return err
	}
	d.writeSnapshot()

	// Step 6: the three independent cadences plus the watch loop.
	d.wg.Add(4)
	go d.fsnotifyLoop()
	go d.fullCheckLoop()
	go d.hookCheckLoop()
	go d.zombieLoop()

	// Step 7: reconcile runners orphaned by a previous daemon before
	// the initial full check, which would otherwise skip their records
	// as in-flight.
	if err := d.states.MergeMetrics(d.zombies.Sweep()); err != nil {
		d.log(LogLevelWarn, "merge metrics: %v", err)
	}
	d.triggerFullCheck()
	d.log(LogLevelInfo, "daemon ready")

	// Step 8: wait for signals.
	d.waitSignals()

	return nil
}

func (d *Daemon) setPhase(to model.DaemonPhase) error {
	d.phaseMu.Lock()
	defer d.phaseMu.Unlock()
	if err := model.ValidatePhaseTransition(d.phase, to); err != nil {
		return err
	}
	from := d.phase
	d.phase = to
	d.log(LogLevelInfo, "phase %s → %s", from, to)
	d.bus.Publish(events.EventPhaseTransition, map[string]interface{}{
		"from": string(from),
		"to":   string(to),
	})
	return nil
}

// Phase returns the current daemon lifecycle phase.
func (d *Daemon) Phase() model.DaemonPhase {
	d.phaseMu.Lock()
	defer d.phaseMu.Unlock()
	return d.phase
}

func (d *Daemon) subscribeAudit() {
	for _, et := range []events.EventType{
		events.EventCycleCompleted,
		events.EventTaskStarted,
		events.EventTaskFinished,
		events.EventZombieReclaimed,
		events.EventPhaseTransition,
	} {
		eventType := et
		d.bus.Subscribe(eventType, func(ev events.Event) {
			if err := d.audit.Log(string(eventType), ev.Data); err != nil {
				d.log(LogLevelWarn, "audit write failed: %v", err)
			}
		})
	}
}

func (d *Daemon) writeSnapshot() {
	snap := model.StatusSnapshot{
		Phase:           d.Phase(),
		PID:             os.Getpid(),
		StartedAt:       d.startedAt.UTC().Format(time.RFC3339),
		Heartbeat:       time.Now().UTC().Format(time.RFC3339),
		MonitoringQuery: d.config.Scheduler.MonitoringQuery,
	}
	if d.pool != nil {
		snap.Running = d.pool.Running()
		snap.Queued = d.pool.Queued()
	}
	if err := d.states.WriteStatus(snap); err != nil {
		d.log(LogLevelWarn, "write status snapshot: %v", err)
	}
}

func (d *Daemon) triggerFullCheck() {
	select {
	case d.fullCheckCh <- struct{}{}:
	default:
	}
}

// fsnotifyLoop debounces record writes into early full checks. The
// full-check timer remains the fallback when events are missed.
func (d *Daemon) fsnotifyLoop() {
	defer d.wg.Done()
	defer d.recoverCrash("fsnotify")

	for {
		select {
		case <-d.ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				d.log(LogLevelDebug, "fsnotify event=%s file=%s", event.Op, event.Name)
				d.debounceMu.Lock()
				if d.debounce != nil {
					d.debounce.Stop()
				}
				d.debounce = time.AfterFunc(debounceDelay, d.triggerFullCheck)
				d.debounceMu.Unlock()
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log(LogLevelError, "fsnotify error=%v", err)
		}
	}
}

func (d *Daemon) fullCheckLoop() {
	defer d.wg.Done()
	defer d.recoverCrash("full_check")

	ticker := time.NewTicker(time.Duration(d.config.Scheduler.FullCheckIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
		case <-d.fullCheckCh:
		}

		result, counters := d.fullChecker.RunCycle()
		if err := d.states.WriteCycleResult(result); err != nil {
			d.log(LogLevelWarn, "write cycle result: %v", err)
		}
		if err := d.states.MergeMetrics(counters); err != nil {
			d.log(LogLevelWarn, "merge metrics: %v", err)
		}
		for _, msg := range result.Errors {
			d.recordError("full_check", msg)
		}
	}
}

func (d *Daemon) hookCheckLoop() {
	defer d.wg.Done()
	defer d.recoverCrash("hook_check")

	ticker := time.NewTicker(time.Duration(d.config.Scheduler.HookCheckIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			counters := d.hookChecker.Process()
			if err := d.states.MergeMetrics(counters); err != nil {
				d.log(LogLevelWarn, "merge metrics: %v", err)
			}
			d.writeSnapshot()
		}
	}
}

func (d *Daemon) zombieLoop() {
	defer d.wg.Done()
	defer d.recoverCrash("zombie_sweep")

	ticker := time.NewTicker(time.Duration(d.config.Scheduler.ZombieCheckIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			counters := d.zombies.Sweep()
			if err := d.states.MergeMetrics(counters); err != nil {
				d.log(LogLevelWarn, "merge metrics: %v", err)
			}
		}
	}
}

func (d *Daemon) recordError(source, msg string) {
	if err := d.states.AppendError(model.ErrorRecord{
		At:      time.Now().UTC().Format(time.RFC3339),
		Source:  source,
		Message: msg,
	}); err != nil {
		d.log(LogLevelWarn, "append error record: %v", err)
	}
}

// recoverCrash converts an unhandled loop panic into the crashed
// phase, best-effort clearing pid/status so a restart starts clean.
func (d *Daemon) recoverCrash(loop string) {
	r := recover()
	if r == nil {
		return
	}
	d.log(LogLevelError, "panic in %s loop: %v\n%s", loop, r, debug.Stack())

	d.phaseMu.Lock()
	d.phase = model.PhaseCrashed
	d.phaseMu.Unlock()

	d.writeSnapshot()
	d.states.Clear()
	d.cleanup()
	os.Exit(1)
}

// waitSignals blocks until a shutdown signal is received.
func (d *Daemon) waitSignals() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	d.log(LogLevelInfo, "received signal=%s, initiating graceful shutdown", sig)

	// Second signal → force exit
	go func() {
		<-sigCh
		d.log(LogLevelWarn, "received second signal, forcing exit")
		d.forceExit.Store(true)
		os.Exit(1)
	}()

	d.Shutdown()
}

// Shutdown performs graceful shutdown (idempotent via sync.Once).
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		if err := d.setPhase(model.PhaseStopping); err != nil {
			d.log(LogLevelWarn, "shutdown: %v", err)
		}
		d.writeSnapshot()

		// 1. Stop the loops and producers.
		d.cancel()
		if d.watcher != nil {
			_ = d.watcher.Close()
		}
		if d.server != nil {
			_ = d.server.Stop()
		}
		d.debounceMu.Lock()
		if d.debounce != nil {
			d.debounce.Stop()
		}
		d.debounceMu.Unlock()

		// 2. Drain the pool with the configured timeout.
		timeout := d.config.Daemon.ShutdownTimeoutSec
		if timeout <= 0 {
			timeout = 30
		}
		if d.pool != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
			if err := d.pool.Shutdown(ctx, cancelGrace); err != nil {
				d.log(LogLevelWarn, "pool shutdown: %v", err)
			}
			cancel()
		}

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			d.log(LogLevelInfo, "all loops drained")
		case <-time.After(time.Duration(timeout) * time.Second):
			d.log(LogLevelWarn, "shutdown timeout after %ds, some operations may be incomplete", timeout)
		}

		// 3. Clean shutdown clears pid and status.
		d.states.Clear()
		if err := d.setPhase(model.PhaseStopped); err != nil {
			d.log(LogLevelWarn, "shutdown: %v", err)
		}
		d.cleanup()
		d.log(LogLevelInfo, "daemon stopped")
	})
}

// cleanup releases resources.
func (d *Daemon) cleanup() {
	_ = os.Remove(filepath.Join(d.states.Dir(), uds.DefaultSocketName))
	_ = d.fileLock.Unlock()
	if d.audit != nil {
		_ = d.audit.Close()
	}
	d.bus.Close()
	if d.logFile != nil {
		_ = d.logFile.Close()
	}
}

func (d *Daemon) log(level LogLevel, format string, args ...any) {
	if level < d.logLevel {
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
	d.logger.Printf("%s %s daemon: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}
