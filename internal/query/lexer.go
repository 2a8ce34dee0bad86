package query

import (
	"strings"
	"unicode"
)

// Shorthand tokens rewrite textually before tokenization, longest match
// first so `!!!` wins over `!!` wins over `!`. Quoted regions are copied
// verbatim. The pass is a plain substitution: the expanded forms are
// ordinary query syntax and combine with literally written AND/OR/NOT.
var shorthandRules = []struct {
	token     string
	expansion string
}{
	{"!!!", "marker:error"},
	{"!!", "NOT marker:error"},
	{"!", "marker:error"},
	{"*", "(marker:error OR marker:running_agent OR marker:running_process)"},
	{"%fc", "status:failed_to_create_cl"},
	{"%ff", "status:failed_to_fix_tests"},
	{"%b", "status:blocked"},
	{"%u", "status:unstarted"},
	{"%i", "status:in_progress"},
	{"%t", "status:tdd_cl_created"},
	{"%f", "status:fixing_tests"},
	{"%d", "status:drafted"},
	{"%m", "status:mailed"},
	{"%s", "status:submitted"},
	{"%r", "status:reverted"},
}

// Sigils prefix a bareword and rewrite to a property filter on it.
var sigilFields = map[byte]string{
	'+': FieldProject,
	'^': FieldAncestor,
	'~': FieldSibling,
	'&': FieldName,
}

// ExpandShorthand rewrites all shorthand tokens in raw into their long
// forms. Idempotent on input containing no shorthand tokens.
func ExpandShorthand(raw string) string {
	var b strings.Builder
	i := 0
	for i < len(raw) {
		c := raw[i]

		if c == '"' {
			end := strings.IndexByte(raw[i+1:], '"')
			if end < 0 {
				b.WriteString(raw[i:])
				break
			}
			b.WriteString(raw[i : i+end+2])
			i += end + 2
			continue
		}

		if field, ok := sigilFields[c]; ok {
			j := i + 1
			for j < len(raw) && isWordByte(raw[j]) {
				j++
			}
			if j > i+1 {
				b.WriteString(field)
				b.WriteByte(':')
				b.WriteString(raw[i+1 : j])
				i = j
				continue
			}
		}

		matched := false
		for _, rule := range shorthandRules {
			if strings.HasPrefix(raw[i:], rule.token) {
				b.WriteString(rule.expansion)
				i += len(rule.token)
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		b.WriteByte(c)
		i++
	}
	return b.String()
}

func isWordByte(c byte) bool {
	if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
		return true
	}
	return c == '_' || c == '-' || c == '.' || c == '/'
}

type tokenKind int

const (
	tokTerm tokenKind = iota // quoted text or bareword
	tokProperty              // field:value with a known field
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind  tokenKind
	pos   int
	text  string // tokTerm: match text
	field string // tokProperty
	value string // tokProperty
}

// tokenize splits an already-expanded query into terms, property
// filters, boolean operators, and parentheses. A bareword containing a
// colon whose field part is unknown stays a single text term: queries
// are user-typed and must never hard-fail on an unrecognized filter.
func tokenize(raw string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(raw) {
		c := rune(raw[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, pos: i})
			i++
		case c == '"':
			end := strings.IndexByte(raw[i+1:], '"')
			if end < 0 {
				return nil, syntaxErrorf(i, "unterminated quoted string")
			}
			toks = append(toks, token{kind: tokTerm, pos: i, text: raw[i+1 : i+1+end]})
			i += end + 2
		default:
			j := i
			for j < len(raw) && !strings.ContainsRune(`() "`, rune(raw[j])) && !unicode.IsSpace(rune(raw[j])) {
				j++
			}
			word := raw[i:j]
			toks = append(toks, classifyWord(word, i))
			i = j
		}
	}
	return toks, nil
}

func classifyWord(word string, pos int) token {
	switch word {
	case "AND":
		return token{kind: tokAnd, pos: pos}
	case "OR":
		return token{kind: tokOr, pos: pos}
	case "NOT":
		return token{kind: tokNot, pos: pos}
	}
	if k := strings.IndexByte(word, ':'); k > 0 {
		field := word[:k]
		if knownFields[field] {
			return token{kind: tokProperty, pos: pos, field: field, value: word[k+1:]}
		}
	}
	return token{kind: tokTerm, pos: pos, text: word}
}
