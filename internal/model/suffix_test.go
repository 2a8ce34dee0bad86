package model

import "testing"

func TestSplitSuffix(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		text string
		want *Suffix
	}{
		{"no suffix", "./run_tests.sh", "./run_tests.sh", nil},
		{"error with message", "./run_tests.sh (!: exit status 2)", "./run_tests.sh",
			&Suffix{Kind: SuffixError, Message: "exit status 2"}},
		{"bare error", "./run_tests.sh (!)", "./run_tests.sh",
			&Suffix{Kind: SuffixError}},
		{"running agent", "fix the tests (@)", "fix the tests",
			&Suffix{Kind: SuffixRunningAgent}},
		{"running agent pid", "fix the tests (@: 1234)", "fix the tests",
			&Suffix{Kind: SuffixRunningAgent, PID: 1234}},
		{"running process pid", "./long_job.sh ($: 4242)", "./long_job.sh",
			&Suffix{Kind: SuffixRunningProcess, PID: 4242}},
		{"pending dead pid", "./long_job.sh (?$: 4242)", "./long_job.sh",
			&Suffix{Kind: SuffixPendingDeadProcess, PID: 4242}},
		{"killed process message", "./long_job.sh (k$: reclaimed zombie; was pid 4242)", "./long_job.sh",
			&Suffix{Kind: SuffixKilledProcess, Message: "reclaimed zombie; was pid 4242"}},
		{"killed agent", "review this (k@: killed)", "review this",
			&Suffix{Kind: SuffixKilledAgent, Message: "killed"}},
		{"rejected proposal", "proposal text (x)", "proposal text",
			&Suffix{Kind: SuffixRejectedProposal}},
		{"summarize complete", "long thread (s)", "long thread",
			&Suffix{Kind: SuffixSummarizeComplete}},
		{"entry ref", "see earlier (>: hooks/2)", "see earlier",
			&Suffix{Kind: SuffixEntryRef, Message: "hooks/2"}},
		// Digits are a PID only on running kinds; elsewhere they are a
		// plain message.
		{"digits on error stay message", "./run_tests.sh (!: 127)", "./run_tests.sh",
			&Suffix{Kind: SuffixError, Message: "127"}},
		{"digits on killed stay message", "./job.sh (k$: 4242)", "./job.sh",
			&Suffix{Kind: SuffixKilledProcess, Message: "4242"}},
		// Only the last parenthesized group is the suffix.
		{"earlier group is text", "run (fast) tests (!)", "run (fast) tests",
			&Suffix{Kind: SuffixError}},
		// Malformed groups are plain text, never an error.
		{"unknown tag", "./run_tests.sh (z)", "./run_tests.sh (z)", nil},
		{"no space before group", "./run_tests.sh(!)", "./run_tests.sh(!)", nil},
		{"missing space after colon", "./run_tests.sh (!:msg)", "./run_tests.sh (!:msg)", nil},
		{"empty payload after colon", "./run_tests.sh (!: )", "./run_tests.sh (!: )", nil},
		{"empty payload on running kind", "./long_job.sh ($: )", "./long_job.sh ($: )", nil},
		{"trailing garbage", "./run_tests.sh (!) extra", "./run_tests.sh (!) extra", nil},
		{"empty string", "", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, suffix := SplitSuffix(tt.raw)
			if text != tt.text {
				t.Errorf("text = %q, want %q", text, tt.text)
			}
			if (suffix == nil) != (tt.want == nil) {
				t.Fatalf("suffix = %+v, want %+v", suffix, tt.want)
			}
			if suffix != nil && *suffix != *tt.want {
				t.Errorf("suffix = %+v, want %+v", *suffix, *tt.want)
			}
		})
	}
}

func TestSuffixRoundTrip(t *testing.T) {
	raws := []string{
		"./run_tests.sh (!: exit status 2)",
		"./run_tests.sh (!)",
		"fix the tests (@: 1234)",
		"./long_job.sh ($: 4242)",
		"./long_job.sh (?$: 4242)",
		"./long_job.sh (k$: killed; was pid 4242)",
		"review this (k@)",
		"proposal text (x)",
		"long thread (s)",
		"see earlier (>: hooks/2)",
		// Malformed groups survive as plain text.
		"./run_tests.sh (!: )",
		"./run_tests.sh (z)",
	}
	for _, raw := range raws {
		e := NewEntry(raw)
		if got := e.Raw(); got != raw {
			t.Errorf("Raw() = %q, want %q", got, raw)
		}
	}
}

func TestSuffixRunning(t *testing.T) {
	running := []SuffixKind{SuffixRunningAgent, SuffixRunningProcess, SuffixPendingDeadProcess}
	for _, k := range running {
		if !(&Suffix{Kind: k}).Running() {
			t.Errorf("Running(%q) = false, want true", k)
		}
	}
	done := []SuffixKind{SuffixError, SuffixKilledAgent, SuffixKilledProcess,
		SuffixRejectedProposal, SuffixSummarizeComplete, SuffixEntryRef}
	for _, k := range done {
		if (&Suffix{Kind: k}).Running() {
			t.Errorf("Running(%q) = true, want false", k)
		}
	}
	var nilSuffix *Suffix
	if nilSuffix.Running() {
		t.Error("nil suffix must not report running")
	}
}

func TestSuffixContext(t *testing.T) {
	tests := []struct {
		suffix *Suffix
		want   string
	}{
		{nil, ""},
		{&Suffix{Kind: SuffixRunningProcess, PID: 4242}, "pid 4242"},
		{&Suffix{Kind: SuffixRunningAgent, Message: "busy"}, "busy"},
		{&Suffix{Kind: SuffixRunningAgent}, ""},
	}
	for _, tt := range tests {
		if got := tt.suffix.Context(); got != tt.want {
			t.Errorf("Context() = %q, want %q", got, tt.want)
		}
	}
}

func TestKilledKindFor(t *testing.T) {
	tests := []struct {
		in, want SuffixKind
	}{
		{SuffixRunningAgent, SuffixKilledAgent},
		{SuffixKilledAgent, SuffixKilledAgent},
		{SuffixRunningProcess, SuffixKilledProcess},
		{SuffixPendingDeadProcess, SuffixKilledProcess},
	}
	for _, tt := range tests {
		if got := KilledKindFor(tt.in); got != tt.want {
			t.Errorf("KilledKindFor(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
