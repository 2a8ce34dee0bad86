// Package status implements the axe status report: daemon liveness
// via the control socket plus the on-disk state snapshots.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bbugyi200/axe/internal/model"
	"github.com/bbugyi200/axe/internal/state"
	"github.com/bbugyi200/axe/internal/uds"
)

// Report is the aggregate status output.
type Report struct {
	Daemon    DaemonStatus          `json:"daemon"`
	Snapshot  *model.StatusSnapshot `json:"snapshot,omitempty"`
	Metrics   model.Metrics         `json:"metrics"`
	LastCycle *model.CycleResult    `json:"last_cycle,omitempty"`
	Errors    []model.ErrorRecord   `json:"recent_errors,omitempty"`
}

type DaemonStatus struct {
	Running bool `json:"running"`
	PID     int  `json:"pid,omitempty"`
}

// Run builds the status report for axeDir and prints it.
func Run(axeDir string, jsonOutput bool) error {
	states, err := state.NewStore(axeDir)
	if err != nil {
		return err
	}

	report := Report{
		Daemon:  checkDaemon(states),
		Metrics: states.ReadMetrics(),
	}
	if snap, ok := states.ReadStatus(); ok {
		report.Snapshot = &snap
	}
	if cycle, ok := states.ReadCycleResult(); ok {
		report.LastCycle = &cycle
	}
	report.Errors = states.ReadErrors()

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printReport(report)
	return nil
}

// checkDaemon pings the socket; the pid file alone is only trusted
// when the recorded process is actually alive.
func checkDaemon(states *state.Store) DaemonStatus {
	client := uds.NewClient(filepath.Join(states.Dir(), uds.DefaultSocketName))
	if resp, err := client.SendCommand("ping", nil); err == nil && resp.Success {
		return DaemonStatus{Running: true, PID: states.ReadPID()}
	}
	if pid := states.ReadPID(); pid != 0 && state.PIDAlive(pid) {
		return DaemonStatus{Running: true, PID: pid}
	}
	return DaemonStatus{Running: false}
}

func printReport(r Report) {
	if r.Daemon.Running {
		fmt.Printf("Daemon: running (pid %d)\n", r.Daemon.PID)
	} else {
		fmt.Println("Daemon: stopped")
	}

	if r.Snapshot != nil {
		s := r.Snapshot
		fmt.Printf("  phase=%s  query=%q  running=%d  queued=%d\n",
			s.Phase, s.MonitoringQuery, s.Running, s.Queued)
		fmt.Printf("  started=%s  heartbeat=%s\n", s.StartedAt, s.Heartbeat)
	}

	c := r.Metrics.Counters
	fmt.Println("\nCounters:")
	fmt.Printf("  full_checks=%d  hook_checks=%d\n", c.FullChecks, c.HookChecks)
	fmt.Printf("  submitted=%d  coalesced=%d  completed=%d  failed=%d  killed=%d\n",
		c.TasksSubmitted, c.TasksCoalesced, c.TasksCompleted, c.TasksFailed, c.TasksKilled)
	fmt.Printf("  zombies_reclaimed=%d  files_quarantined=%d\n",
		c.ZombiesReclaimed, c.FilesQuarantined)

	if r.LastCycle != nil {
		lc := r.LastCycle
		fmt.Println("\nLast cycle:")
		fmt.Printf("  %s  scanned=%d  matched=%d  submitted=%d  skipped=%d  duration=%dms\n",
			lc.CycleID, lc.Scanned, lc.Matched, lc.Submitted, lc.Skipped, lc.DurationMs)
	}

	if len(r.Errors) > 0 {
		fmt.Println("\nRecent errors:")
		for _, e := range r.Errors {
			fmt.Printf("  %s  [%s]  %s\n", e.At, e.Source, e.Message)
		}
	}
}
