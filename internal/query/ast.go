// Package query implements the ChangeSpec filter language: shorthand
// expansion, tokenizer, recursive-descent parser, and a pure evaluator.
package query

import (
	"fmt"
	"strconv"
)

// Kind identifies the node variant of a parsed query expression.
type Kind int

const (
	KindAnd Kind = iota
	KindOr
	KindNot
	KindText
	KindProperty
	KindMarker
)

// Marker names the suffix classes queryable through marker: filters.
type Marker string

const (
	MarkerError          Marker = "error"
	MarkerRunningAgent   Marker = "running_agent"
	MarkerRunningProcess Marker = "running_process"
)

var validMarkers = map[Marker]bool{
	MarkerError:          true,
	MarkerRunningAgent:   true,
	MarkerRunningProcess: true,
}

// Node is one immutable node of a query AST. A nil *Node is the empty
// query and matches every ChangeSpec.
type Node struct {
	Kind  Kind
	Left  *Node  // And, Or
	Right *Node  // And, Or
	Expr  *Node  // Not
	Text  string // Text: substring to match
	Field string // Property: field name
	Value string // Property: filter value
	Mark  Marker // Marker
}

// Property fields the evaluator understands. Anything else is folded
// back into a plain text match by the lexer.
const (
	FieldStatus   = "status"
	FieldProject  = "project"
	FieldName     = "name"
	FieldAncestor = "ancestor"
	FieldSibling  = "sibling"
	FieldMarker   = "marker"
)

var knownFields = map[string]bool{
	FieldStatus:   true,
	FieldProject:  true,
	FieldName:     true,
	FieldAncestor: true,
	FieldSibling:  true,
	FieldMarker:   true,
}

// String renders the canonical s-expression form. Two queries parse to
// structurally equal ASTs iff their renders are equal.
func (n *Node) String() string {
	if n == nil {
		return "(all)"
	}
	switch n.Kind {
	case KindAnd:
		return fmt.Sprintf("(and %s %s)", n.Left, n.Right)
	case KindOr:
		return fmt.Sprintf("(or %s %s)", n.Left, n.Right)
	case KindNot:
		return fmt.Sprintf("(not %s)", n.Expr)
	case KindText:
		return fmt.Sprintf("(text %s)", strconv.Quote(n.Text))
	case KindProperty:
		return fmt.Sprintf("(prop %s %s)", n.Field, strconv.Quote(n.Value))
	case KindMarker:
		return fmt.Sprintf("(marker %s)", n.Mark)
	default:
		return fmt.Sprintf("(unknown kind=%d)", n.Kind)
	}
}

// SyntaxError reports a malformed query. Queries are user-typed, so the
// message is written for display, not for log grepping.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("query syntax error at offset %d: %s", e.Pos, e.Msg)
}

func syntaxErrorf(pos int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
