package model

import (
	"fmt"
	"strings"
)

// Status is the stored lifecycle state of a ChangeSpec. Blocked is absent
// from the stored set on purpose: it is a computed overlay (Forest.Blocked)
// and must never be written to disk.
type Status string

const (
	StatusUnstarted        Status = "unstarted"
	StatusInProgress       Status = "in_progress"
	StatusFailedToCreateCL Status = "failed_to_create_cl"
	StatusTDDCLCreated     Status = "tdd_cl_created"
	StatusFixingTests      Status = "fixing_tests"
	StatusFailedToFixTests Status = "failed_to_fix_tests"
	StatusDrafted          Status = "drafted"
	StatusMailed           Status = "mailed"
	StatusSubmitted        Status = "submitted"
	StatusReverted         Status = "reverted"

	// StatusBlocked is the overlay value: valid in queries and display
	// output, never storable.
	StatusBlocked Status = "blocked"
)

var storedStatuses = map[Status]bool{
	StatusUnstarted:        true,
	StatusInProgress:       true,
	StatusFailedToCreateCL: true,
	StatusTDDCLCreated:     true,
	StatusFixingTests:      true,
	StatusFailedToFixTests: true,
	StatusDrafted:          true,
	StatusMailed:           true,
	StatusSubmitted:        true,
	StatusReverted:         true,
}

var statusDisplay = map[Status]string{
	StatusUnstarted:        "Unstarted",
	StatusInProgress:       "In Progress",
	StatusFailedToCreateCL: "Failed to Create CL",
	StatusTDDCLCreated:     "TDD CL Created",
	StatusFixingTests:      "Fixing Tests",
	StatusFailedToFixTests: "Failed to Fix Tests",
	StatusDrafted:          "Drafted",
	StatusMailed:           "Mailed",
	StatusSubmitted:        "Submitted",
	StatusReverted:         "Reverted",
	StatusBlocked:          "Blocked",
}

// Forward edges of the lifecycle:
//
//	unstarted → in_progress → {tdd_cl_created → fixing_tests → {drafted | failed_to_fix_tests}} | failed_to_create_cl
//	drafted → mailed → submitted
//	reverted → unstarted (explicit restore only)
//
// Revert edges (any non-submitted → reverted) fan in from almost every
// state and are handled directly in ValidateStatusTransition.
var validStatusTransitions = map[Status]map[Status]bool{
	StatusUnstarted: {
		StatusInProgress: true,
	},
	StatusInProgress: {
		StatusTDDCLCreated:     true,
		StatusFailedToCreateCL: true,
	},
	StatusTDDCLCreated: {
		StatusFixingTests: true,
	},
	StatusFixingTests: {
		StatusDrafted:          true,
		StatusFailedToFixTests: true,
	},
	StatusDrafted: {
		StatusMailed: true,
	},
	StatusMailed: {
		StatusSubmitted: true,
	},
	StatusReverted: {
		StatusUnstarted: true,
	},
}

func (s Status) Valid() bool {
	return storedStatuses[s]
}

// Display returns the human-readable form ("in_progress" → "In Progress").
func (s Status) Display() string {
	if d, ok := statusDisplay[s]; ok {
		return d
	}
	return string(s)
}

// NormalizeStatus folds user input into canonical form: lower-cased, spaces
// and hyphens collapsed to underscores. "DRAFTED", "Drafted" and "drafted"
// all normalize to StatusDrafted. Unknown inputs pass through normalized so
// callers can compare without a second lookup.
func NormalizeStatus(raw string) Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return Status(s)
}

// ParseStatus normalizes raw and requires it to name a storable status.
func ParseStatus(raw string) (Status, error) {
	s := NormalizeStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// DaemonPhase is the axe daemon's own lifecycle state.
type DaemonPhase string

const (
	PhaseStopped  DaemonPhase = "stopped"
	PhaseStarting DaemonPhase = "starting"
	PhaseRunning  DaemonPhase = "running"
	PhaseStopping DaemonPhase = "stopping"
	PhaseCrashed  DaemonPhase = "crashed"
)

var validPhaseTransitions = map[DaemonPhase]map[DaemonPhase]bool{
	PhaseStopped:  {PhaseStarting: true},
	PhaseStarting: {PhaseRunning: true, PhaseStopping: true, PhaseCrashed: true},
	PhaseRunning:  {PhaseStopping: true, PhaseCrashed: true},
	PhaseStopping: {PhaseStopped: true},
	PhaseCrashed:  {PhaseStarting: true},
}

// ValidatePhaseTransition checks that from → to is a reachable daemon
// lifecycle edge.
func ValidatePhaseTransition(from, to DaemonPhase) error {
	if !validPhaseTransitions[from][to] {
		return fmt.Errorf("invalid daemon phase transition: %q → %q", from, to)
	}
	return nil
}

// ValidateStatusTransition checks that from → to is a reachable edge.
// Invalid requests are rejected, never coerced.
func ValidateStatusTransition(from, to Status) error {
	if !from.Valid() {
		return fmt.Errorf("unknown status %q", from)
	}
	if !to.Valid() {
		return fmt.Errorf("unknown status %q", to)
	}
	// Explicit revert: reachable from any non-submitted, non-reverted state.
	if to == StatusReverted {
		if from == StatusSubmitted {
			return fmt.Errorf("invalid changespec transition: %q → %q (submitted is absorbing)", from, to)
		}
		if from == StatusReverted {
			return fmt.Errorf("invalid changespec transition: %q → %q (already reverted)", from, to)
		}
		return nil
	}
	if !validStatusTransitions[from][to] {
		return fmt.Errorf("invalid changespec transition: %q → %q", from, to)
	}
	return nil
}
