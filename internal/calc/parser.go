package calc

// Grammar, loosest binding first:
//
//	sum      = [+|-] product { (+|-) product }
//	product  = parallel { (*|/) parallel }
//	parallel = power { || power }
//	power    = signed { ^ signed }        right associative
//	signed   = [-] postfix
//	postfix  = atom { ! }
//	atom     = number | ident ( sum ) | ident | ( sum )

type node interface{}

type numNode struct{ v float64 }

type varNode struct{ name string }

type callNode struct {
	name string
	arg  node
}

type negNode struct{ x node }

type factNode struct{ x node }

type binNode struct {
	op   byte
	l, r node
}

type parNode struct{ xs []node }

type parser struct {
	toks []token
	pos  int
}

func parse(src string) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.sum()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, &SyntaxError{Pos: t.pos, Msg: "unexpected " + describe(t)}
	}
	return n, nil
}

func describe(t token) string {
	if t.kind == tokEOF {
		return "end of input"
	}
	return "'" + t.text + "'"
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(s string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == s
}

func (p *parser) sum() (node, error) {
	neg := false
	if p.isOp("+") || p.isOp("-") {
		neg = p.next().text == "-"
	}
	left, err := p.product()
	if err != nil {
		return nil, err
	}
	if neg {
		left = negNode{left}
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.next().text[0]
		right, err := p.product()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) product() (node, error) {
	left, err := p.parallel()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") {
		op := p.next().text[0]
		right, err := p.parallel()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, l: left, r: right}
	}
	return left, nil
}

func (p *parser) parallel() (node, error) {
	first, err := p.power()
	if err != nil {
		return nil, err
	}
	if !p.isOp("||") {
		return first, nil
	}
	xs := []node{first}
	for p.isOp("||") {
		p.next()
		x, err := p.power()
		if err != nil {
			return nil, err
		}
		xs = append(xs, x)
	}
	return parNode{xs}, nil
}

func (p *parser) power() (node, error) {
	base, err := p.signed()
	if err != nil {
		return nil, err
	}
	if !p.isOp("^") {
		return base, nil
	}
	p.next()
	exp, err := p.power()
	if err != nil {
		return nil, err
	}
	return binNode{op: '^', l: base, r: exp}, nil
}

func (p *parser) signed() (node, error) {
	if p.isOp("-") {
		p.next()
		x, err := p.postfix()
		if err != nil {
			return nil, err
		}
		return negNode{x}, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (node, error) {
	x, err := p.atom()
	if err != nil {
		return nil, err
	}
	for p.isOp("!") {
		p.next()
		x = factNode{x}
	}
	return x, nil
}

func (p *parser) atom() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return numNode{t.num}, nil
	case tokIdent:
		if !p.isOp("(") {
			return varNode{t.text}, nil
		}
		p.next()
		arg, err := p.sum()
		if err != nil {
			return nil, err
		}
		if !p.isOp(")") {
			return nil, &SyntaxError{Pos: p.peek().pos, Msg: "expected ')' after argument of " + t.text}
		}
		p.next()
		return callNode{name: t.text, arg: arg}, nil
	case tokOp:
		if t.text == "(" {
			x, err := p.sum()
			if err != nil {
				return nil, err
			}
			if !p.isOp(")") {
				return nil, &SyntaxError{Pos: p.peek().pos, Msg: "expected ')'"}
			}
			p.next()
			return x, nil
		}
	}
	return nil, &SyntaxError{Pos: t.pos, Msg: "unexpected " + describe(t)}
}

// walk visits every variable and function name in n.
func walk(n node, onVar, onFunc func(string)) {
	switch x := n.(type) {
	case varNode:
		onVar(x.name)
	case callNode:
		onFunc(x.name)
		walk(x.arg, onVar, onFunc)
	case negNode:
		walk(x.x, onVar, onFunc)
	case factNode:
		walk(x.x, onVar, onFunc)
	case binNode:
		walk(x.l, onVar, onFunc)
		walk(x.r, onVar, onFunc)
	case parNode:
		for _, e := range x.xs {
			walk(e, onVar, onFunc)
		}
	}
}
