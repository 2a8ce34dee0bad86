// Package model defines the ChangeSpec record, its suffix-annotation
// grammar, the status state machine, and the daemon's state snapshots.
package model

import (
	"fmt"
	"strings"
	"time"

	yamlv3 "gopkg.in/yaml.v3"
)

const (
	CurrentSchemaVersion = 1
	FileTypeChangeSpec   = "changespec"
)

// Entry is one sub-entry of a ChangeSpec list. On disk it is a single
// raw string; the suffix is split off during unmarshal so nothing else
// ever parses raw text.
type Entry struct {
	Text   string
	Suffix *Suffix
}

// NewEntry parses a raw entry string.
func NewEntry(raw string) Entry {
	text, suffix := SplitSuffix(raw)
	return Entry{Text: text, Suffix: suffix}
}

// Raw reconstructs the on-disk form.
func (e Entry) Raw() string {
	if e.Suffix == nil {
		return e.Text
	}
	return e.Text + " " + e.Suffix.Render()
}

func (e *Entry) UnmarshalYAML(value *yamlv3.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("entry must be a string: %w", err)
	}
	*e = NewEntry(raw)
	return nil
}

func (e Entry) MarshalYAML() (any, error) {
	return e.Raw(), nil
}

// List names of the four entry lists, in their fixed order.
const (
	ListCommits  = "commits"
	ListHooks    = "hooks"
	ListComments = "comments"
	ListMentors  = "mentors"
)

// ChangeSpec is one tracked change-request record, stored as YAML at
// .axe/specs/<name>.yaml.
type ChangeSpec struct {
	SchemaVersion int     `yaml:"schema_version"`
	FileType      string  `yaml:"file_type"`
	Name          string  `yaml:"name"`
	Parent        *string `yaml:"parent"`
	Status        Status  `yaml:"status"`
	Title         string  `yaml:"title"`
	Body          string  `yaml:"body,omitempty"`
	BugID         string  `yaml:"bug_id,omitempty"`
	CLID          string  `yaml:"cl_id,omitempty"`
	Commits       []Entry `yaml:"commits"`
	Hooks         []Entry `yaml:"hooks"`
	Comments      []Entry `yaml:"comments"`
	Mentors       []Entry `yaml:"mentors"`
	CreatedAt     string  `yaml:"created_at"`
	UpdatedAt     string  `yaml:"updated_at"`
}

// NewChangeSpec creates a fresh unstarted record.
func NewChangeSpec(name, title string, parent *string) *ChangeSpec {
	now := time.Now().UTC().Format(time.RFC3339)
	return &ChangeSpec{
		SchemaVersion: CurrentSchemaVersion,
		FileType:      FileTypeChangeSpec,
		Name:          name,
		Parent:        parent,
		Status:        StatusUnstarted,
		Title:         title,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Project derives the project prefix: everything before the first
// underscore, or the whole name when it has none. Never stored.
func (c *ChangeSpec) Project() string {
	if i := strings.IndexByte(c.Name, '_'); i > 0 {
		return c.Name[:i]
	}
	return c.Name
}

// EntryList returns the named list, or nil for an unknown name.
func (c *ChangeSpec) EntryList(list string) []Entry {
	switch list {
	case ListCommits:
		return c.Commits
	case ListHooks:
		return c.Hooks
	case ListComments:
		return c.Comments
	case ListMentors:
		return c.Mentors
	}
	return nil
}

// EachEntry calls fn for every entry across all four lists, passing a
// pointer so callers can mutate suffixes in place. Iteration stops when
// fn returns false.
func (c *ChangeSpec) EachEntry(fn func(list string, index int, e *Entry) bool) {
	lists := []struct {
		name    string
		entries []Entry
	}{
		{ListCommits, c.Commits},
		{ListHooks, c.Hooks},
		{ListComments, c.Comments},
		{ListMentors, c.Mentors},
	}
	for _, l := range lists {
		for i := range l.entries {
			if !fn(l.name, i, &l.entries[i]) {
				return
			}
		}
	}
}

// HasMarker reports whether any entry carries a suffix of the given kind.
func (c *ChangeSpec) HasMarker(kind SuffixKind) bool {
	found := false
	c.EachEntry(func(_ string, _ int, e *Entry) bool {
		if e.Suffix != nil && e.Suffix.Kind == kind {
			found = true
			return false
		}
		return true
	})
	return found
}

// HasRunningWork reports whether any entry is marked in flight.
func (c *ChangeSpec) HasRunningWork() bool {
	return c.HasMarker(SuffixRunningAgent) || c.HasMarker(SuffixRunningProcess) ||
		c.HasMarker(SuffixPendingDeadProcess)
}

// SetSuffix replaces (never accumulates) the suffix on one entry.
// Returns false when the entry does not exist.
func (c *ChangeSpec) SetSuffix(list string, index int, s *Suffix) bool {
	entries := c.EntryList(list)
	if index < 0 || index >= len(entries) {
		return false
	}
	entries[index].Suffix = s
	return true
}

// EntryKey identifies one entry for task coalescing and suffix
// linearization: at most one in-flight task per key.
func (c *ChangeSpec) EntryKey(list string, index int) string {
	return fmt.Sprintf("%s/%s/%d", c.Name, list, index)
}

// SearchBlob concatenates every text field a plain-text query term can
// match against: name, project, title, body, bug, CL, and all raw
// sub-entry text.
func (c *ChangeSpec) SearchBlob() string {
	var b strings.Builder
	for _, s := range []string{c.Name, c.Project(), c.Title, c.Body, c.BugID, c.CLID} {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	c.EachEntry(func(_ string, _ int, e *Entry) bool {
		b.WriteString(e.Raw())
		b.WriteByte('\n')
		return true
	})
	return b.String()
}

// Touch bumps the record's modification timestamp.
func (c *ChangeSpec) Touch() {
	c.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

// Validate checks the structural invariants a record must satisfy
// before it is written or trusted after a read.
func (c *ChangeSpec) Validate() error {
	if c.SchemaVersion < 1 {
		return fmt.Errorf("invalid schema_version %d (must be >= 1)", c.SchemaVersion)
	}
	if c.SchemaVersion > CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema_version %d (max supported: %d)", c.SchemaVersion, CurrentSchemaVersion)
	}
	if c.FileType != FileTypeChangeSpec {
		return fmt.Errorf("file_type mismatch: got %q, expected %q", c.FileType, FileTypeChangeSpec)
	}
	if c.Name == "" {
		return fmt.Errorf("missing name")
	}
	if !c.Status.Valid() {
		return fmt.Errorf("unstorable status %q", c.Status)
	}
	if c.Parent != nil && *c.Parent == c.Name {
		return fmt.Errorf("changespec %q is its own parent", c.Name)
	}
	return nil
}
