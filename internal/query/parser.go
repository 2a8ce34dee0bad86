package query

// Parse expands shorthand, tokenizes, and parses raw into an AST with
// standard precedence NOT > AND > OR. Adjacent terms with no operator
// between them are joined with an implicit AND. An empty or
// all-whitespace query parses to a nil AST, which matches everything.
// The returned error is always a *SyntaxError.
func Parse(raw string) (*Node, error) {
	toks, err := tokenize(ExpandShorthand(raw))
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, nil
	}
	p := &parser{toks: toks}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, syntaxErrorf(p.peek().pos, "unexpected %s", p.describe(p.peek()))
	}
	return node, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) done() bool    { return p.i >= len(p.toks) }
func (p *parser) peek() token   { return p.toks[p.i] }
func (p *parser) advance() token {
	t := p.toks[p.i]
	p.i++
	return t
}

func (p *parser) describe(t token) string {
	switch t.kind {
	case tokAnd:
		return `"AND"`
	case tokOr:
		return `"OR"`
	case tokNot:
		return `"NOT"`
	case tokLParen:
		return `"("`
	case tokRParen:
		return `")"`
	case tokProperty:
		return `filter "` + t.field + ":" + t.value + `"`
	default:
		return `term "` + t.text + `"`
	}
}

func (p *parser) parseOr() (*Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for !p.done() && p.peek().kind == tokOr {
		op := p.advance()
		if p.done() {
			return nil, syntaxErrorf(op.pos, "dangling OR")
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (*Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for !p.done() {
		switch p.peek().kind {
		case tokAnd:
			op := p.advance()
			if p.done() {
				return nil, syntaxErrorf(op.pos, "dangling AND")
			}
		case tokNot, tokLParen, tokTerm, tokProperty:
			// Implicit AND between adjacent operands.
		default:
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (*Node, error) {
	if p.done() {
		return nil, syntaxErrorf(0, "unexpected end of query")
	}
	if p.peek().kind == tokNot {
		op := p.advance()
		if p.done() {
			return nil, syntaxErrorf(op.pos, "dangling NOT")
		}
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindNot, Expr: expr}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (*Node, error) {
	if p.done() {
		return nil, syntaxErrorf(0, "unexpected end of query")
	}
	t := p.advance()
	switch t.kind {
	case tokLParen:
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.done() || p.peek().kind != tokRParen {
			return nil, syntaxErrorf(t.pos, "unbalanced parenthesis")
		}
		p.advance()
		return node, nil
	case tokRParen:
		return nil, syntaxErrorf(t.pos, "unbalanced parenthesis")
	case tokTerm:
		return &Node{Kind: KindText, Text: t.text}, nil
	case tokProperty:
		if t.field == FieldMarker {
			m := Marker(t.value)
			if !validMarkers[m] {
				return nil, syntaxErrorf(t.pos, "unknown marker %q", t.value)
			}
			return &Node{Kind: KindMarker, Mark: m}, nil
		}
		return &Node{Kind: KindProperty, Field: t.field, Value: t.value}, nil
	default:
		return nil, syntaxErrorf(t.pos, "unexpected %s", p.describe(t))
	}
}
