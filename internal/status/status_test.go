package status

import (
	"os"
	"testing"

	"github.com/bbugyi200/axe/internal/model"
	"github.com/bbugyi200/axe/internal/state"
)

func newStateDir(t *testing.T) (*state.Store, string) {
	t.Helper()
	axeDir := t.TempDir()
	store, err := state.NewStore(axeDir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, axeDir
}

func TestCheckDaemon_NoSocketNoPID(t *testing.T) {
	store, _ := newStateDir(t)
	ds := checkDaemon(store)
	if ds.Running {
		t.Errorf("no socket and no pid file should report stopped, got %+v", ds)
	}
}

// A pid file alone is trusted only when the process is actually alive.
func TestCheckDaemon_LivePIDFallback(t *testing.T) {
	store, _ := newStateDir(t)
	if err := store.WritePID(os.Getpid()); err != nil {
		t.Fatal(err)
	}
	ds := checkDaemon(store)
	if !ds.Running || ds.PID != os.Getpid() {
		t.Errorf("live pid should report running, got %+v", ds)
	}
}

func TestCheckDaemon_StalePID(t *testing.T) {
	store, _ := newStateDir(t)
	// PIDs just below the default pid_max are effectively never in use
	// in a test environment.
	if err := store.WritePID(4194000); err != nil {
		t.Fatal(err)
	}
	ds := checkDaemon(store)
	if ds.Running {
		t.Errorf("dead pid should report stopped, got %+v", ds)
	}
}

func TestRun_ReportsStateFiles(t *testing.T) {
	store, axeDir := newStateDir(t)
	if err := store.WriteStatus(model.StatusSnapshot{Phase: model.PhaseRunning, Running: 2}); err != nil {
		t.Fatal(err)
	}
	if err := store.MergeMetrics(model.Counters{FullChecks: 3, TasksCompleted: 7}); err != nil {
		t.Fatal(err)
	}
	if err := store.WriteCycleResult(model.CycleResult{CycleID: "cycle_1771722000_a3f2b7c1", Submitted: 4}); err != nil {
		t.Fatal(err)
	}

	// Both output modes must render without error against real files.
	if err := Run(axeDir, true); err != nil {
		t.Errorf("Run(json): %v", err)
	}
	if err := Run(axeDir, false); err != nil {
		t.Errorf("Run(text): %v", err)
	}
}

func TestRun_EmptyStateDir(t *testing.T) {
	axeDir := t.TempDir()
	if err := Run(axeDir, true); err != nil {
		t.Errorf("Run on fresh dir should still report: %v", err)
	}
}
