package model

import (
	"fmt"
	"regexp"
	"strconv"
)

// SuffixKind tags the transient state carried by a sub-entry suffix.
type SuffixKind string

const (
	SuffixError              SuffixKind = "error"
	SuffixRunningAgent       SuffixKind = "running_agent"
	SuffixKilledAgent        SuffixKind = "killed_agent"
	SuffixRunningProcess     SuffixKind = "running_process"
	SuffixPendingDeadProcess SuffixKind = "pending_dead_process"
	SuffixKilledProcess      SuffixKind = "killed_process"
	SuffixRejectedProposal   SuffixKind = "rejected_proposal"
	SuffixSummarizeComplete  SuffixKind = "summarize_complete"
	SuffixEntryRef           SuffixKind = "entry_ref"
)

// Suffix is the tagged-variant form of a sub-entry annotation. Raw text
// is parsed exactly once, at the unmarshal boundary; downstream code
// works with this struct and never re-parses strings.
type Suffix struct {
	Kind    SuffixKind
	Message string
	PID     int // 0 when the payload is not a PID
}

// Concrete suffix syntax: a trailing " (<tag>)" or " (<tag>: <payload>)"
// group. Tag ↔ kind:
//
//	!   error                 k$  killed_process
//	@   running_agent         x   rejected_proposal
//	k@  killed_agent          s   summarize_complete
//	$   running_process       >   entry_ref
//	?$  pending_dead_process
//
// An all-digits payload on a running kind is a PID; everything else is a
// message. Anything that does not match the grammar is plain text.
var suffixTags = map[string]SuffixKind{
	"!":  SuffixError,
	"@":  SuffixRunningAgent,
	"k@": SuffixKilledAgent,
	"$":  SuffixRunningProcess,
	"?$": SuffixPendingDeadProcess,
	"k$": SuffixKilledProcess,
	"x":  SuffixRejectedProposal,
	"s":  SuffixSummarizeComplete,
	">":  SuffixEntryRef,
}

var tagsByKind = map[SuffixKind]string{
	SuffixError:              "!",
	SuffixRunningAgent:       "@",
	SuffixKilledAgent:        "k@",
	SuffixRunningProcess:     "$",
	SuffixPendingDeadProcess: "?$",
	SuffixKilledProcess:      "k$",
	SuffixRejectedProposal:   "x",
	SuffixSummarizeComplete:  "s",
	SuffixEntryRef:           ">",
}

// The leading group is greedy, so the suffix is always the last
// parenthesized group on the line.
var suffixRegex = regexp.MustCompile(`^(.*) \((!|@|k@|\$|\?\$|k\$|x|s|>)(: (.*))?\)$`)

var runningKinds = map[SuffixKind]bool{
	SuffixRunningAgent:       true,
	SuffixRunningProcess:     true,
	SuffixPendingDeadProcess: true,
}

// SplitSuffix separates an entry's raw string into its text and an
// optional suffix. Malformed suffixes are never an error: the whole raw
// string comes back as text with a nil suffix.
func SplitSuffix(raw string) (string, *Suffix) {
	m := suffixRegex.FindStringSubmatch(raw)
	if m == nil {
		return raw, nil
	}
	// A colon with an empty payload, "(!: )", is malformed: the bare
	// form renders without the colon, so accepting it would make the
	// round trip through Raw() lossy.
	if m[3] != "" && m[4] == "" {
		return raw, nil
	}
	kind := suffixTags[m[2]]
	s := &Suffix{Kind: kind}
	if payload := m[4]; payload != "" {
		if pid, err := strconv.Atoi(payload); err == nil && runningKinds[kind] {
			s.PID = pid
		} else {
			s.Message = payload
		}
	}
	return m[1], s
}

// Render reconstructs the on-disk form of the suffix group.
func (s *Suffix) Render() string {
	tag := tagsByKind[s.Kind]
	switch {
	case s.PID != 0:
		return fmt.Sprintf("(%s: %d)", tag, s.PID)
	case s.Message != "":
		return fmt.Sprintf("(%s: %s)", tag, s.Message)
	default:
		return fmt.Sprintf("(%s)", tag)
	}
}

// Context returns the payload worth preserving when this suffix is
// replaced by a terminal one: the PID when set, else the message.
func (s *Suffix) Context() string {
	if s == nil {
		return ""
	}
	if s.PID != 0 {
		return fmt.Sprintf("pid %d", s.PID)
	}
	return s.Message
}

// Running reports whether the suffix marks work in flight (including
// the pending-dead warning state, which still holds a pool slot).
func (s *Suffix) Running() bool {
	return s != nil && runningKinds[s.Kind]
}

// KilledKindFor maps an in-flight suffix kind to its terminal killed
// form: agent work dies as killed_agent, process work as killed_process.
func KilledKindFor(kind SuffixKind) SuffixKind {
	if kind == SuffixRunningAgent || kind == SuffixKilledAgent {
		return SuffixKilledAgent
	}
	return SuffixKilledProcess
}
