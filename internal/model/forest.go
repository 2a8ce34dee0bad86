package model

import "sort"

// Forest is an immutable index over one load of all ChangeSpecs. The
// parent links form a forest; the index answers the relationship
// questions the evaluator needs (blocked overlay, ancestor walks,
// siblings) plus caches search blobs. Build once per scan, share
// read-only across goroutines.
type Forest struct {
	specs map[string]*ChangeSpec
	order []string
	blobs map[string]string
}

func NewForest(specs []*ChangeSpec) *Forest {
	f := &Forest{
		specs: make(map[string]*ChangeSpec, len(specs)),
		blobs: make(map[string]string, len(specs)),
	}
	for _, s := range specs {
		f.specs[s.Name] = s
		f.order = append(f.order, s.Name)
		f.blobs[s.Name] = s.SearchBlob()
	}
	sort.Strings(f.order)
	return f
}

func (f *Forest) Len() int { return len(f.order) }

func (f *Forest) Get(name string) (*ChangeSpec, bool) {
	s, ok := f.specs[name]
	return s, ok
}

// All returns every spec in name order.
func (f *Forest) All() []*ChangeSpec {
	out := make([]*ChangeSpec, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, f.specs[name])
	}
	return out
}

// Blob returns the cached search blob for name.
func (f *Forest) Blob(name string) string {
	return f.blobs[name]
}

// Blocked computes the overlay: a spec is blocked iff its parent link is
// set and the parent's stored status is not submitted. A parent link
// naming a record that no longer exists also blocks — an unknown parent
// cannot be proven submitted.
func (f *Forest) Blocked(spec *ChangeSpec) bool {
	if spec.Parent == nil || *spec.Parent == "" {
		return false
	}
	parent, ok := f.specs[*spec.Parent]
	if !ok {
		return true
	}
	return parent.Status != StatusSubmitted
}

// EffectiveStatus is the display status: the blocked overlay when it
// applies, the stored status otherwise.
func (f *Forest) EffectiveStatus(spec *ChangeSpec) Status {
	if f.Blocked(spec) {
		return StatusBlocked
	}
	return spec.Status
}

// IsAncestor walks the parent chain from spec to the forest root looking
// for name. A visited set defends against parent cycles from corrupted
// records: a cycle terminates the walk as "no match", never loops.
func (f *Forest) IsAncestor(name string, spec *ChangeSpec) bool {
	visited := map[string]bool{spec.Name: true}
	cur := spec
	for cur.Parent != nil && *cur.Parent != "" {
		parentName := *cur.Parent
		if visited[parentName] {
			return false
		}
		if parentName == name {
			return true
		}
		visited[parentName] = true
		parent, ok := f.specs[parentName]
		if !ok {
			return false
		}
		cur = parent
	}
	return false
}

// IsSibling reports whether spec and the record named other are
// siblings: distinct specs that either share the same non-empty parent,
// or are both parentless and share the same project.
func (f *Forest) IsSibling(spec *ChangeSpec, other string) bool {
	if other == spec.Name {
		return false
	}
	o, ok := f.specs[other]
	if !ok {
		return false
	}
	sp := parentName(spec)
	op := parentName(o)
	if sp != "" || op != "" {
		return sp != "" && sp == op
	}
	return spec.Project() == o.Project()
}

func parentName(s *ChangeSpec) string {
	if s.Parent == nil {
		return ""
	}
	return *s.Parent
}
