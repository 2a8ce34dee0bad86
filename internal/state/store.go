// Package state owns the daemon's on-disk state directory: one JSON
// file per concern under .axe/state/, all written atomically, plus the
// PID file and its liveness probe. Snapshots are regenerable, so a
// file that fails to parse is quarantined and recreated rather than
// crashing anything.
package state

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/bbugyi200/axe/internal/model"
)

const (
	pidFile         = "pid.txt"
	statusFile      = "status.json"
	metricsFile     = "metrics.json"
	errorsFile      = "errors.json"
	cycleResultFile = "cycle_result.json"
	logsDir         = "logs"
	outputLogFile   = "output.log"
)

// Store manages .axe/state/.
type Store struct {
	axeDir   string
	stateDir string
}

// NewStore creates the state and logs directories under axeDir.
func NewStore(axeDir string) (*Store, error) {
	stateDir := filepath.Join(axeDir, "state")
	if err := os.MkdirAll(filepath.Join(stateDir, logsDir), 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{axeDir: axeDir, stateDir: stateDir}, nil
}

// Dir returns the state directory path.
func (s *Store) Dir() string { return s.stateDir }

// OutputLogPath is the append-only daemon log.
func (s *Store) OutputLogPath() string {
	return filepath.Join(s.stateDir, logsDir, outputLogFile)
}

// EventLogPath is the structured JSONL audit trail.
func (s *Store) EventLogPath() string {
	return filepath.Join(s.stateDir, logsDir, "events.jsonl")
}

// atomicWriteJSON writes v as indented JSON via temp + fsync + rename.
// Snapshots carry no .bak: they are overwritten every cycle anyway.
func (s *Store) atomicWriteJSON(name string, v any) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	content = append(content, '\n')

	tmp, err := os.CreateTemp(s.stateDir, ".axe-tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(s.stateDir, name)); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

// readJSON reads a state file into v. A missing file returns
// os.ErrNotExist untouched. A corrupt file is quarantined and reported
// as missing so the caller recreates it on the next write.
func (s *Store) readJSON(name string, v any) error {
	path := filepath.Join(s.stateDir, name)
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(content, v); err != nil {
		log.Printf("state: corrupt %s: %v — quarantining and recreating", name, err)
		s.quarantine(path)
		return os.ErrNotExist
	}
	return nil
}

func (s *Store) quarantine(path string) {
	dir := filepath.Join(s.axeDir, "quarantine")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("state: create quarantine dir: %v", err)
		return
	}
	name := fmt.Sprintf("%s.%s.corrupt", filepath.Base(path), time.Now().Format("20060102T150405"))
	if err := os.Rename(path, filepath.Join(dir, name)); err != nil {
		log.Printf("state: quarantine %s: %v", path, err)
	}
}

// WriteStatus overwrites status.json.
func (s *Store) WriteStatus(snap model.StatusSnapshot) error {
	return s.atomicWriteJSON(statusFile, snap)
}

// ReadStatus loads status.json. Missing or corrupt → zero snapshot
// with phase stopped and ok=false.
func (s *Store) ReadStatus() (model.StatusSnapshot, bool) {
	var snap model.StatusSnapshot
	if err := s.readJSON(statusFile, &snap); err != nil {
		return model.StatusSnapshot{Phase: model.PhaseStopped}, false
	}
	return snap, true
}

// WriteMetrics overwrites metrics.json.
func (s *Store) WriteMetrics(m model.Metrics) error {
	return s.atomicWriteJSON(metricsFile, m)
}

// ReadMetrics loads metrics.json, zero-valued when missing or corrupt.
func (s *Store) ReadMetrics() model.Metrics {
	var m model.Metrics
	if err := s.readJSON(metricsFile, &m); err != nil {
		return model.Metrics{}
	}
	return m
}

// MergeMetrics folds delta into the persisted counters.
func (s *Store) MergeMetrics(delta model.Counters) error {
	m := s.ReadMetrics()
	m.Counters.Merge(delta)
	m.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return s.WriteMetrics(m)
}

// AppendError pushes one record onto the bounded recent-error ring.
func (s *Store) AppendError(rec model.ErrorRecord) error {
	var ring []model.ErrorRecord
	if err := s.readJSON(errorsFile, &ring); err != nil && !os.IsNotExist(err) {
		return err
	}
	ring = append(ring, rec)
	if len(ring) > model.ErrorRingSize {
		ring = ring[len(ring)-model.ErrorRingSize:]
	}
	return s.atomicWriteJSON(errorsFile, ring)
}

// ReadErrors returns the recent-error ring, oldest first.
func (s *Store) ReadErrors() []model.ErrorRecord {
	var ring []model.ErrorRecord
	if err := s.readJSON(errorsFile, &ring); err != nil {
		return nil
	}
	return ring
}

// WriteCycleResult overwrites cycle_result.json.
func (s *Store) WriteCycleResult(res model.CycleResult) error {
	return s.atomicWriteJSON(cycleResultFile, res)
}

// ReadCycleResult loads the most recent full-cycle outcome.
func (s *Store) ReadCycleResult() (model.CycleResult, bool) {
	var res model.CycleResult
	if err := s.readJSON(cycleResultFile, &res); err != nil {
		return model.CycleResult{}, false
	}
	return res, true
}

// Clear removes the pid and status files. Called on clean shutdown and
// on the crash path so a restart starts from a clean slate.
func (s *Store) Clear() {
	_ = os.Remove(filepath.Join(s.stateDir, pidFile))
	_ = os.Remove(filepath.Join(s.stateDir, statusFile))
}
