package model

import "testing"

func specWithParent(name string, status Status, parent string) *ChangeSpec {
	var p *string
	if parent != "" {
		p = &parent
	}
	spec := NewChangeSpec(name, name, p)
	spec.Status = status
	return spec
}

func TestForestAllNameOrder(t *testing.T) {
	forest := NewForest([]*ChangeSpec{
		specWithParent("zeta_one", StatusDrafted, ""),
		specWithParent("alpha_one", StatusDrafted, ""),
		specWithParent("mid_one", StatusDrafted, ""),
	})
	if forest.Len() != 3 {
		t.Fatalf("Len = %d", forest.Len())
	}
	want := []string{"alpha_one", "mid_one", "zeta_one"}
	for i, spec := range forest.All() {
		if spec.Name != want[i] {
			t.Errorf("All()[%d] = %q, want %q", i, spec.Name, want[i])
		}
	}
}

func TestForestBlocked(t *testing.T) {
	parent := specWithParent("core_api", StatusMailed, "")
	child := specWithParent("core_client", StatusDrafted, "core_api")
	orphan := specWithParent("core_orphan", StatusDrafted, "core_gone")
	root := specWithParent("core_root", StatusDrafted, "")
	forest := NewForest([]*ChangeSpec{parent, child, orphan, root})

	if forest.Blocked(root) {
		t.Error("parentless spec must not be blocked")
	}
	if !forest.Blocked(child) {
		t.Error("child of a non-submitted parent must be blocked")
	}
	if !forest.Blocked(orphan) {
		t.Error("a missing parent cannot be proven submitted, so the child blocks")
	}

	parent.Status = StatusSubmitted
	if forest.Blocked(child) {
		t.Error("child of a submitted parent must not be blocked")
	}
}

func TestForestEffectiveStatus(t *testing.T) {
	parent := specWithParent("core_api", StatusMailed, "")
	child := specWithParent("core_client", StatusDrafted, "core_api")
	forest := NewForest([]*ChangeSpec{parent, child})

	if got := forest.EffectiveStatus(child); got != StatusBlocked {
		t.Errorf("EffectiveStatus(child) = %q, want blocked", got)
	}
	if got := forest.EffectiveStatus(parent); got != StatusMailed {
		t.Errorf("EffectiveStatus(parent) = %q, want mailed", got)
	}
}

func TestForestIsAncestor(t *testing.T) {
	forest := NewForest([]*ChangeSpec{
		specWithParent("gen_root", StatusSubmitted, ""),
		specWithParent("gen_mid", StatusSubmitted, "gen_root"),
		specWithParent("gen_leaf", StatusDrafted, "gen_mid"),
	})
	leaf, _ := forest.Get("gen_leaf")
	root, _ := forest.Get("gen_root")

	if !forest.IsAncestor("gen_root", leaf) {
		t.Error("transitive ancestor not found")
	}
	if !forest.IsAncestor("gen_mid", leaf) {
		t.Error("direct parent not found")
	}
	if forest.IsAncestor("gen_leaf", leaf) {
		t.Error("spec is not its own ancestor")
	}
	if forest.IsAncestor("gen_leaf", root) {
		t.Error("descendant is not an ancestor")
	}
}

func TestForestIsAncestorCycleTerminates(t *testing.T) {
	forest := NewForest([]*ChangeSpec{
		specWithParent("loop_a", StatusDrafted, "loop_b"),
		specWithParent("loop_b", StatusDrafted, "loop_a"),
	})
	a, _ := forest.Get("loop_a")
	if forest.IsAncestor("missing_name", a) {
		t.Error("cycle walk must terminate as non-match")
	}
}

func TestForestIsSibling(t *testing.T) {
	forest := NewForest([]*ChangeSpec{
		specWithParent("fam_parent", StatusSubmitted, ""),
		specWithParent("fam_one", StatusDrafted, "fam_parent"),
		specWithParent("fam_two", StatusDrafted, "fam_parent"),
		specWithParent("fam_cousin", StatusDrafted, ""),
		specWithParent("fam_other", StatusDrafted, ""),
		specWithParent("away_root", StatusDrafted, ""),
	})
	one, _ := forest.Get("fam_one")
	cousin, _ := forest.Get("fam_cousin")

	if !forest.IsSibling(one, "fam_two") {
		t.Error("shared parent makes siblings")
	}
	if forest.IsSibling(one, "fam_one") {
		t.Error("never a sibling of itself")
	}
	if forest.IsSibling(one, "fam_cousin") {
		t.Error("parented and parentless specs are not siblings")
	}
	if !forest.IsSibling(cousin, "fam_other") {
		t.Error("parentless specs sharing a project are siblings")
	}
	if forest.IsSibling(cousin, "away_root") {
		t.Error("different project roots are not siblings")
	}
	if forest.IsSibling(one, "no_such_spec") {
		t.Error("unknown name is never a sibling")
	}
}
