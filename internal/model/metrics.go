package model

// Daemon state snapshots, serialized as JSON under .axe/state/. These
// are continuously overwritten during the run loop and regenerable, so
// unlike ChangeSpec records they carry no .bak chain: a corrupt file is
// quarantined and recreated.

// StatusSnapshot is the current daemon status (status.json).
type StatusSnapshot struct {
	Phase           DaemonPhase `json:"phase"`
	PID             int         `json:"pid"`
	StartedAt       string      `json:"started_at"`
	Heartbeat       string      `json:"heartbeat"`
	MonitoringQuery string      `json:"monitoring_query"`
	Running         int         `json:"running"`
	Queued          int         `json:"queued"`
}

// Counters are the cumulative daemon counters (metrics.json).
type Counters struct {
	FullChecks       int `json:"full_checks"`
	HookChecks       int `json:"hook_checks"`
	TasksSubmitted   int `json:"tasks_submitted"`
	TasksCoalesced   int `json:"tasks_coalesced"`
	TasksCompleted   int `json:"tasks_completed"`
	TasksFailed      int `json:"tasks_failed"`
	TasksKilled      int `json:"tasks_killed"`
	ZombiesReclaimed int `json:"zombies_reclaimed"`
	FilesQuarantined int `json:"files_quarantined"`
}

// Merge adds other's counts into c.
func (c *Counters) Merge(other Counters) {
	c.FullChecks += other.FullChecks
	c.HookChecks += other.HookChecks
	c.TasksSubmitted += other.TasksSubmitted
	c.TasksCoalesced += other.TasksCoalesced
	c.TasksCompleted += other.TasksCompleted
	c.TasksFailed += other.TasksFailed
	c.TasksKilled += other.TasksKilled
	c.ZombiesReclaimed += other.ZombiesReclaimed
	c.FilesQuarantined += other.FilesQuarantined
}

// Metrics is the metrics.json document.
type Metrics struct {
	Counters  Counters `json:"counters"`
	UpdatedAt string   `json:"updated_at"`
}

// ErrorRecord is one entry of the bounded recent-error ring
// (errors.json).
type ErrorRecord struct {
	At      string `json:"at"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

// ErrorRingSize bounds errors.json to the most recent entries.
const ErrorRingSize = 50

// CycleResult is the outcome of the most recent full check
// (cycle_result.json).
type CycleResult struct {
	CycleID    string   `json:"cycle_id"`
	StartedAt  string   `json:"started_at"`
	FinishedAt string   `json:"finished_at"`
	DurationMs int64    `json:"duration_ms"`
	Scanned    int      `json:"scanned"`
	Matched    int      `json:"matched"`
	Submitted  int      `json:"submitted"`
	Coalesced  int      `json:"coalesced"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
}
