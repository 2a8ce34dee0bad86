package query

import (
	"strings"

	"github.com/bbugyi200/axe/internal/model"
)

// Evaluate walks the AST against one ChangeSpec snapshot. Pure: no side
// effects, safe to call concurrently against the same forest. A nil
// node matches everything. The forest supplies relationship answers
// (blocked overlay, ancestors, siblings) and cached search blobs; it
// may be nil, in which case relationship filters fall back to what the
// spec alone can answer.
func Evaluate(n *Node, spec *model.ChangeSpec, forest *model.Forest) bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case KindAnd:
		return Evaluate(n.Left, spec, forest) && Evaluate(n.Right, spec, forest)
	case KindOr:
		return Evaluate(n.Left, spec, forest) || Evaluate(n.Right, spec, forest)
	case KindNot:
		return !Evaluate(n.Expr, spec, forest)
	case KindText:
		return strings.Contains(searchBlob(spec, forest), n.Text)
	case KindMarker:
		return evalMarker(n.Mark, spec)
	case KindProperty:
		return evalProperty(n.Field, n.Value, spec, forest)
	default:
		return false
	}
}

func searchBlob(spec *model.ChangeSpec, forest *model.Forest) string {
	if forest != nil {
		if blob := forest.Blob(spec.Name); blob != "" {
			return blob
		}
	}
	return spec.SearchBlob()
}

var markerKinds = map[Marker]model.SuffixKind{
	MarkerError:          model.SuffixError,
	MarkerRunningAgent:   model.SuffixRunningAgent,
	MarkerRunningProcess: model.SuffixRunningProcess,
}

func evalMarker(m Marker, spec *model.ChangeSpec) bool {
	kind, ok := markerKinds[m]
	if !ok {
		return false
	}
	return spec.HasMarker(kind)
}

func evalProperty(field, value string, spec *model.ChangeSpec, forest *model.Forest) bool {
	switch field {
	case FieldStatus:
		// status: filters match the effective (blocked-overlaid)
		// status, so status:blocked is queryable.
		want := model.NormalizeStatus(value)
		if forest != nil {
			return forest.EffectiveStatus(spec) == want
		}
		return spec.Status == want
	case FieldProject:
		return spec.Project() == value
	case FieldName:
		return spec.Name == value
	case FieldAncestor:
		if forest == nil {
			return spec.Parent != nil && *spec.Parent == value
		}
		return forest.IsAncestor(value, spec)
	case FieldSibling:
		if forest == nil {
			return false
		}
		return forest.IsSibling(spec, value)
	default:
		return false
	}
}

// Select evaluates n against every spec in the forest and returns the
// matching subset in name order.
func Select(n *Node, forest *model.Forest) []*model.ChangeSpec {
	var out []*model.ChangeSpec
	for _, spec := range forest.All() {
		if Evaluate(n, spec, forest) {
			out = append(out, spec)
		}
	}
	return out
}
