package model

import (
	"strings"
	"testing"
)

func TestStatusValid(t *testing.T) {
	for s := range storedStatuses {
		if !s.Valid() {
			t.Errorf("Valid(%q) = false, want true", s)
		}
	}
	for _, s := range []Status{StatusBlocked, "bogus", ""} {
		if s.Valid() {
			t.Errorf("Valid(%q) = true, want false", s)
		}
	}
}

func TestStatusDisplay(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusUnstarted, "Unstarted"},
		{StatusInProgress, "In Progress"},
		{StatusFailedToCreateCL, "Failed to Create CL"},
		{StatusTDDCLCreated, "TDD CL Created"},
		{StatusBlocked, "Blocked"},
		{"mystery", "mystery"},
	}
	for _, tt := range tests {
		if got := tt.status.Display(); got != tt.want {
			t.Errorf("Display(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"drafted", StatusDrafted},
		{"Drafted", StatusDrafted},
		{"DRAFTED", StatusDrafted},
		{"In Progress", StatusInProgress},
		{"in-progress", StatusInProgress},
		{"  mailed  ", StatusMailed},
		{"TDD CL Created", StatusTDDCLCreated},
	}
	for _, tt := range tests {
		if got := NormalizeStatus(tt.raw); got != tt.want {
			t.Errorf("NormalizeStatus(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus("Fixing Tests"); err != nil || s != StatusFixingTests {
		t.Errorf("ParseStatus(\"Fixing Tests\") = %q, %v", s, err)
	}
	if _, err := ParseStatus("blocked"); err == nil {
		t.Error("ParseStatus(\"blocked\") should fail: blocked is never storable")
	}
	if _, err := ParseStatus("nonsense"); err == nil {
		t.Error("ParseStatus(\"nonsense\") should fail")
	}
}

func TestValidateStatusTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusUnstarted, StatusInProgress, true},
		{StatusInProgress, StatusTDDCLCreated, true},
		{StatusInProgress, StatusFailedToCreateCL, true},
		{StatusTDDCLCreated, StatusFixingTests, true},
		{StatusFixingTests, StatusDrafted, true},
		{StatusFixingTests, StatusFailedToFixTests, true},
		{StatusDrafted, StatusMailed, true},
		{StatusMailed, StatusSubmitted, true},
		{StatusReverted, StatusUnstarted, true},

		{StatusUnstarted, StatusMailed, false},
		{StatusDrafted, StatusSubmitted, false},
		{StatusSubmitted, StatusMailed, false},
		{StatusMailed, StatusDrafted, false},
		{StatusReverted, StatusInProgress, false},
	}
	for _, tt := range tests {
		err := ValidateStatusTransition(tt.from, tt.to)
		if tt.ok && err != nil {
			t.Errorf("ValidateStatusTransition(%q, %q) failed: %v", tt.from, tt.to, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("ValidateStatusTransition(%q, %q) succeeded, want error", tt.from, tt.to)
		}
	}
}

func TestValidateStatusTransition_Revert(t *testing.T) {
	// Revert fans in from every state except the two it cannot leave.
	for from := range storedStatuses {
		err := ValidateStatusTransition(from, StatusReverted)
		switch from {
		case StatusSubmitted:
			if err == nil || !strings.Contains(err.Error(), "absorbing") {
				t.Errorf("submitted → reverted should fail as absorbing, got %v", err)
			}
		case StatusReverted:
			if err == nil {
				t.Error("reverted → reverted should fail")
			}
		default:
			if err != nil {
				t.Errorf("%q → reverted failed: %v", from, err)
			}
		}
	}
}

func TestValidateStatusTransition_UnknownStatus(t *testing.T) {
	if err := ValidateStatusTransition("bogus", StatusDrafted); err == nil {
		t.Error("unknown from-status should fail")
	}
	if err := ValidateStatusTransition(StatusDrafted, StatusBlocked); err == nil {
		t.Error("blocked is an overlay, never a transition target")
	}
}

func TestValidatePhaseTransition(t *testing.T) {
	tests := []struct {
		from, to DaemonPhase
		ok       bool
	}{
		{PhaseStopped, PhaseStarting, true},
		{PhaseStarting, PhaseRunning, true},
		{PhaseStarting, PhaseStopping, true},
		{PhaseStarting, PhaseCrashed, true},
		{PhaseRunning, PhaseStopping, true},
		{PhaseRunning, PhaseCrashed, true},
		{PhaseStopping, PhaseStopped, true},
		{PhaseCrashed, PhaseStarting, true},

		{PhaseStopped, PhaseRunning, false},
		{PhaseRunning, PhaseStarting, false},
		{PhaseStopping, PhaseRunning, false},
		{PhaseStopped, PhaseStopped, false},
	}
	for _, tt := range tests {
		err := ValidatePhaseTransition(tt.from, tt.to)
		if tt.ok && err != nil {
			t.Errorf("ValidatePhaseTransition(%q, %q) failed: %v", tt.from, tt.to, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("ValidatePhaseTransition(%q, %q) succeeded, want error", tt.from, tt.to)
		}
	}
}
