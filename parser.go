package mellow

import "strconv"

// Parser turns a token stream into a Program following the Pratt
// precedence ladder of spec §4.2: or, and, equality, comparison,
// additive, multiplicative, unary, postfix, primary. Grounded on
// original_source/src/parser/mod.rs's function-per-precedence-level
// structure (parse_or -> parse_and -> ... -> parse_primary).
//
// Errors never attempt recovery: the first one terminates parsing,
// matching the original.
type Parser struct {
	toks  []Token
	pos   int
	lines *LineIndex
}

func NewParser(toks []Token, input []byte) *Parser {
	return &Parser{toks: toks, lines: NewLineIndex(input)}
}

// Parse lexes and parses source in one step.
func Parse(source []byte) (*Program, error) {
	toks, err := Tokenize(source)
	if err != nil {
		return nil, err
	}
	p := NewParser(toks, source)
	return p.ParseProgram()
}

func (p *Parser) cur() Token          { return p.toks[p.pos] }
func (p *Parser) at(k TokenKind) bool { return p.cur().Kind == k }

func (p *Parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) span(start Token) Range {
	end := start
	if p.pos > 0 {
		end = p.toks[p.pos-1]
	}
	return NewRange(start.Range.Start, end.Range.End)
}

func (p *Parser) errSpan(r Range) Span { return p.lines.Span(r) }

func (p *Parser) expect(k TokenKind, label string) (Token, error) {
	if !p.at(k) {
		return Token{}, ParseError{
			Expected: label,
			Found:    p.cur().Literal,
			Span:     p.errSpan(p.cur().Range),
		}
	}
	return p.advance(), nil
}

// ParseProgram parses the whole token stream as a Program.
func (p *Parser) ParseProgram() (*Program, error) {
	start := p.cur()
	var items []TopLevelItem
	for !p.at(TokEOF) {
		item, err := p.parseTopLevelItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return &Program{Items: items, Span: p.span(start)}, nil
}

func (p *Parser) parseTopLevelItem() (TopLevelItem, error) {
	start := p.cur()
	switch {
	case p.at(TokTo):
		return p.parseFunctionDef()
	case p.at(TokWorker):
		return p.parseWorkerDef()
	case p.at(TokSide):
		return p.parseSideQuestDef()
	case p.at(TokSuperpower):
		return p.parseSuperpowerDecl()
	case p.at(TokThanks):
		return p.parseGratitudeDecl()
	case p.at(TokAt):
		return p.parsePragma()
	case p.at(TokHash):
		return p.parseHashPragma()
	case p.at(TokType):
		return p.parseTypeDef()
	case p.at(TokConst):
		return p.parseConstDef()
	case p.at(TokUse), p.at(TokShare):
		return p.parseModuleImport()
	case p.at(TokMust):
		return p.parseConsentBlockTop()
	default:
		return nil, ParseError{
			Expected: "top-level item",
			Found:    start.Literal,
			Span:     p.errSpan(start.Range),
		}
	}
}

func (p *Parser) parseTypeAnnotation() (*TypeAnnotation, error) {
	start := p.cur()
	var name string
	switch {
	case p.at(TokIntType):
		name = "Int"
	case p.at(TokFloatType):
		name = "Float"
	case p.at(TokStringType):
		name = "String"
	case p.at(TokBoolType):
		name = "Bool"
	case p.at(TokMaybeType):
		name = "Maybe"
	case p.at(TokIdent):
		name = p.cur().Literal
	default:
		return nil, ParseError{Expected: "type", Found: p.cur().Literal, Span: p.errSpan(p.cur().Range)}
	}
	p.advance()
	return &TypeAnnotation{Name: name, Span: p.span(start)}, nil
}

func (p *Parser) parseParamList() ([]Parameter, error) {
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	var params []Parameter
	for !p.at(TokRParen) {
		start := p.cur()
		nameTok, err := p.expect(TokIdent, "parameter name")
		if err != nil {
			return nil, err
		}
		var typ *TypeAnnotation
		if p.at(TokColon) {
			p.advance()
			typ, err = p.parseTypeAnnotation()
			if err != nil {
				return nil, err
			}
		}
		params = append(params, Parameter{Name: nameTok.Literal, Type: typ, Span: p.span(start)})
		if p.at(TokComma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseFunctionDef() (*FunctionDef, error) {
	start := p.cur()
	p.advance() // to
	nameTok, err := p.expect(TokIdent, "function name")
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	var ret *TypeAnnotation
	if p.at(TokArrow) || p.at(TokArrowU) {
		p.advance()
		ret, err = p.parseTypeAnnotation()
		if err != nil {
			return nil, err
		}
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &FunctionDef{Name: nameTok.Literal, Params: params, ReturnType: ret, Body: body, Span: p.span(start)}, nil
}

func (p *Parser) parseWorkerDef() (*WorkerDef, error) {
	start := p.cur()
	p.advance() // worker
	nameTok, err := p.expect(TokIdent, "worker name")
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WorkerDef{Name: nameTok.Literal, Body: body, Span: p.span(start)}, nil
}

func (p *Parser) parseSideQuestDef() (*SideQuestDef, error) {
	start := p.cur()
	p.advance() // side
	if _, err := p.expect(TokQuest, "quest"); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(TokIdent, "quest name")
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &SideQuestDef{Name: nameTok.Literal, Body: body, Span: p.span(start)}, nil
}

func (p *Parser) parseSuperpowerDecl() (*SuperpowerDecl, error) {
	start := p.cur()
	p.advance() // superpower
	nameTok, err := p.expect(TokIdent, "capability name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokSemicolon, ";"); err != nil {
		return nil, err
	}
	return &SuperpowerDecl{Name: nameTok.Literal, Span: p.span(start)}, nil
}

func (p *Parser) parseGratitudeDecl() (*GratitudeDecl, error) {
	start := p.cur()
	p.advance() // thanks
	if _, err := p.expect(TokLParen, "("); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(TokString, "gratitude name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	var entries []GratitudeEntry
	if p.at(TokLBrace) {
		p.advance()
		for !p.at(TokRBrace) {
			keyTok, err := p.expect(TokIdent, "entry key")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokColon, ":"); err != nil {
				return nil, err
			}
			valTok, err := p.expect(TokString, "entry value")
			if err != nil {
				return nil, err
			}
			entries = append(entries, GratitudeEntry{Key: keyTok.Literal, Value: valTok.Literal})
			if p.at(TokComma) {
				p.advance()
			}
		}
		if _, err := p.expect(TokRBrace, "}"); err != nil {
			return nil, err
		}
	} else if _, err := p.expect(TokSemicolon, ";"); err != nil {
		return nil, err
	}
	return &GratitudeDecl{Name: nameTok.Literal, Entries: entries, Span: p.span(start)}, nil
}

func (p *Parser) parsePragma() (*Pragma, error) {
	start := p.cur()
	p.advance() // @
	nameTok := p.cur()
	if !p.at(TokIdent) && !p.at(TokCare) && !p.at(TokStrict) && !p.at(TokVerbose) {
		return nil, ParseError{Expected: "pragma name", Found: nameTok.Literal, Span: p.errSpan(nameTok.Range)}
	}
	p.advance()
	var args []string
	if p.at(TokLParen) {
		p.advance()
		for !p.at(TokRParen) {
			args = append(args, p.advance().Literal)
			if p.at(TokComma) {
				p.advance()
			}
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokSemicolon, ";"); err != nil {
		return nil, err
	}
	return &Pragma{Name: nameTok.Literal, Args: args, Span: p.span(start)}, nil
}

// parseHashPragma parses `# directive on|off;` — the bit-exact `#`
// form of a pragma, distinct from the `@name(args);` form above.
func (p *Parser) parseHashPragma() (*Pragma, error) {
	start := p.cur()
	p.advance() // #

	var name string
	switch {
	case p.at(TokCare):
		name = "care"
	case p.at(TokStrict):
		name = "strict"
	case p.at(TokVerbose):
		name = "verbose"
	default:
		return nil, ParseError{Expected: "pragma directive (care, strict, verbose)", Found: p.cur().Literal, Span: p.errSpan(p.cur().Range)}
	}
	p.advance()

	// `on` is a keyword (TokOn); `off` is a plain identifier.
	onOff := p.cur()
	if !p.at(TokOn) && !(p.at(TokIdent) && onOff.Literal == "off") {
		return nil, ParseError{Expected: "'on' or 'off'", Found: onOff.Literal, Span: p.errSpan(onOff.Range)}
	}
	p.advance()

	if _, err := p.expect(TokSemicolon, ";"); err != nil {
		return nil, err
	}
	return &Pragma{Name: name, Args: []string{onOff.Literal}, Span: p.span(start)}, nil
}

func (p *Parser) parseTypeDef() (*TypeDef, error) {
	start := p.cur()
	p.advance() // type
	nameTok, err := p.expect(TokIdent, "type name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return nil, err
	}
	var variants []TypeVariant
	for !p.at(TokRBrace) {
		vname, err := p.expect(TokIdent, "variant name")
		if err != nil {
			return nil, err
		}
		var fields []Parameter
		if p.at(TokLParen) {
			fields, err = p.parseParamList()
			if err != nil {
				return nil, err
			}
		}
		variants = append(variants, TypeVariant{Name: vname.Literal, Fields: fields})
		if p.at(TokComma) {
			p.advance()
		}
	}
	if _, err := p.expect(TokRBrace, "}"); err != nil {
		return nil, err
	}
	return &TypeDef{Name: nameTok.Literal, Variants: variants, Span: p.span(start)}, nil
}

func (p *Parser) parseConstDef() (*ConstDef, error) {
	start := p.cur()
	p.advance() // const
	nameTok, err := p.expect(TokIdent, "const name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokAssign, "="); err != nil {
		return nil, err
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokSemicolon, ";"); err != nil {
		return nil, err
	}
	return &ConstDef{Name: nameTok.Literal, Expr: expr, Span: p.span(start)}, nil
}

func (p *Parser) parseModuleImport() (*ModuleImport, error) {
	start := p.cur()
	p.advance() // use | share
	pathTok, err := p.expect(TokString, "module path")
	if err != nil {
		return nil, err
	}
	var alias string
	if p.at(TokRenamed) {
		p.advance()
		aliasTok, err := p.expect(TokString, "alias")
		if err != nil {
			return nil, err
		}
		alias = aliasTok.Literal
	}
	if _, err := p.expect(TokSemicolon, ";"); err != nil {
		return nil, err
	}
	return &ModuleImport{Path: pathTok.Literal, Alias: alias, Span: p.span(start)}, nil
}

// parseConsentBlockTop parses `must have CAPABILITY { body }` at
// top level.
func (p *Parser) parseConsentBlockTop() (*ConsentBlock, error) {
	start := p.cur()
	body, capName, err := p.parseConsentHeaderAndBody()
	if err != nil {
		return nil, err
	}
	return &ConsentBlock{Capability: capName, Body: body, Span: p.span(start)}, nil
}

func (p *Parser) parseConsentHeaderAndBody() ([]Stmt, string, error) {
	p.advance() // must
	if _, err := p.expect(TokHave, "have"); err != nil {
		return nil, "", err
	}
	var capName string
	if p.at(TokString) {
		capName = p.advance().Literal
	} else {
		tok, err := p.expect(TokIdent, "capability name")
		if err != nil {
			return nil, "", err
		}
		capName = tok.Literal
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, "", err
	}
	return body, capName, nil
}

func (p *Parser) parseBlock() ([]Stmt, error) {
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for !p.at(TokRBrace) {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	if _, err := p.expect(TokRBrace, "}"); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *Parser) parseStmt() (Stmt, error) {
	start := p.cur()
	switch {
	case p.at(TokRemember):
		return p.parseVarDecl()
	case p.at(TokGive):
		return p.parseReturnStmt()
	case p.at(TokWhen):
		return p.parseConditional()
	case p.at(TokRepeat):
		return p.parseLoop()
	case p.at(TokAttempt):
		return p.parseAttemptBlock()
	case p.at(TokDecide):
		return p.parseDecideStmt()
	case p.at(TokComplain):
		return p.parseComplainStmt()
	case p.at(TokSpawn):
		return p.parseWorkerSpawn()
	case p.at(TokMust):
		body, capName, err := p.parseConsentHeaderAndBody()
		if err != nil {
			return nil, err
		}
		return &ConsentBlockStmt{Capability: capName, Body: body, Span: p.span(start)}, nil
	case p.at(TokAt):
		return p.parseEmoteAnnotatedStmt()
	case p.at(TokIdent) && p.peekIsAssign():
		return p.parseAssignment()
	default:
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokSemicolon, ";"); err != nil {
			return nil, err
		}
		return &ExprStmt{Expr: expr, Span: p.span(start)}, nil
	}
}

func (p *Parser) peekIsAssign() bool {
	return p.pos+1 < len(p.toks) && p.toks[p.pos+1].Kind == TokAssign
}

func (p *Parser) parseVarDecl() (Stmt, error) {
	start := p.cur()
	p.advance() // remember
	nameTok, err := p.expect(TokIdent, "variable name")
	if err != nil {
		return nil, err
	}
	var typ *TypeAnnotation
	if p.at(TokColon) {
		p.advance()
		typ, err = p.parseTypeAnnotation()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokAssign, "="); err != nil {
		return nil, err
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokSemicolon, ";"); err != nil {
		return nil, err
	}
	return &VarDecl{Name: nameTok.Literal, Type: typ, Expr: expr, Span: p.span(start)}, nil
}

func (p *Parser) parseAssignment() (Stmt, error) {
	start := p.cur()
	nameTok := p.advance()
	p.advance() // =
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokSemicolon, ";"); err != nil {
		return nil, err
	}
	return &Assignment{Name: nameTok.Literal, Expr: expr, Span: p.span(start)}, nil
}

func (p *Parser) parseReturnStmt() (Stmt, error) {
	start := p.cur()
	p.advance() // give
	if _, err := p.expect(TokBack, "back"); err != nil {
		return nil, err
	}
	if p.at(TokSemicolon) {
		p.advance()
		return &ReturnStmt{Span: p.span(start)}, nil
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokSemicolon, ";"); err != nil {
		return nil, err
	}
	return &ReturnStmt{Expr: expr, Span: p.span(start)}, nil
}

func (p *Parser) parseConditional() (Stmt, error) {
	start := p.cur()
	p.advance() // when
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var els []Stmt
	if p.at(TokOtherwise) {
		p.advance()
		els, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}
	return &Conditional{Cond: cond, Then: then, Else: els, Span: p.span(start)}, nil
}

func (p *Parser) parseLoop() (Stmt, error) {
	start := p.cur()
	p.advance() // repeat
	count, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokTimes, "times"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &Loop{Count: count, Body: body, Span: p.span(start)}, nil
}

func (p *Parser) parseAttemptBlock() (Stmt, error) {
	start := p.cur()
	p.advance() // attempt
	if _, err := p.expect(TokSafely, "safely"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if p.at(TokOr) {
		p.advance()
	}
	if _, err := p.expect(TokReassure, "reassure"); err != nil {
		return nil, err
	}
	msgTok, err := p.expect(TokString, "reassurance message")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokSemicolon, ";"); err != nil {
		return nil, err
	}
	return &AttemptBlock{Body: body, Reassurance: msgTok.Literal, Span: p.span(start)}, nil
}

func (p *Parser) parseDecideStmt() (Stmt, error) {
	start := p.cur()
	p.advance() // decide
	if _, err := p.expect(TokBased, "based"); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokOn, "on"); err != nil {
		return nil, err
	}
	scrutinee, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLBrace, "{"); err != nil {
		return nil, err
	}
	var arms []MatchArm
	for !p.at(TokRBrace) {
		arm, err := p.parseMatchArm()
		if err != nil {
			return nil, err
		}
		arms = append(arms, arm)
	}
	if _, err := p.expect(TokRBrace, "}"); err != nil {
		return nil, err
	}
	return &DecideStmt{Scrutinee: scrutinee, Arms: arms, Span: p.span(start)}, nil
}

func (p *Parser) parseMatchArm() (MatchArm, error) {
	start := p.cur()
	pat, err := p.parsePattern()
	if err != nil {
		return MatchArm{}, err
	}
	var guard Expr
	if p.at(TokIf) {
		p.advance()
		guard, err = p.parseExpr()
		if err != nil {
			return MatchArm{}, err
		}
	}
	if !p.at(TokArrow) && !p.at(TokArrowU) {
		return MatchArm{}, ParseError{Expected: "-> or →", Found: p.cur().Literal, Span: p.errSpan(p.cur().Range)}
	}
	p.advance()
	body, err := p.parseBlock()
	if err != nil {
		return MatchArm{}, err
	}
	return MatchArm{Pattern: pat, Guard: guard, Body: body, Span: p.span(start)}, nil
}

func (p *Parser) parsePattern() (Pattern, error) {
	start := p.cur()
	switch {
	case p.at(TokUnderscore):
		p.advance()
		return &WildcardPattern{Span: p.span(start)}, nil
	case p.at(TokOkayCtor), p.at(TokOopsCtor):
		name := "Okay"
		if p.at(TokOopsCtor) {
			name = "Oops"
		}
		p.advance()
		var inner Pattern
		if p.at(TokLParen) {
			p.advance()
			var err error
			inner, err = p.parsePattern()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokRParen, ")"); err != nil {
				return nil, err
			}
		}
		return &ConstructorPattern{Name: name, Inner: inner, Span: p.span(start)}, nil
	case p.at(TokInt), p.at(TokFloat), p.at(TokString), p.at(TokTrue), p.at(TokFalse):
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &LiteralPattern{Lit: lit, Span: p.span(start)}, nil
	case p.at(TokIdent):
		nameTok := p.advance()
		return &IdentifierPattern{Name: nameTok.Literal, Span: p.span(start)}, nil
	default:
		return nil, ParseError{Expected: "pattern", Found: p.cur().Literal, Span: p.errSpan(p.cur().Range)}
	}
}

func (p *Parser) parseComplainStmt() (Stmt, error) {
	start := p.cur()
	p.advance() // complain
	msgTok, err := p.expect(TokString, "message")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokSemicolon, ";"); err != nil {
		return nil, err
	}
	return &ComplainStmt{Message: msgTok.Literal, Span: p.span(start)}, nil
}

func (p *Parser) parseWorkerSpawn() (Stmt, error) {
	start := p.cur()
	p.advance() // spawn
	if _, err := p.expect(TokWorker, "worker"); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(TokIdent, "worker name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokSemicolon, ";"); err != nil {
		return nil, err
	}
	return &WorkerSpawn{Name: nameTok.Literal, Span: p.span(start)}, nil
}

func (p *Parser) parseEmoteAnnotatedStmt() (Stmt, error) {
	start := p.cur()
	p.advance() // @
	nameTok, err := p.expect(TokIdent, "emote tag")
	if err != nil {
		return nil, err
	}
	params := map[string]string{}
	if p.at(TokLParen) {
		p.advance()
		for !p.at(TokRParen) {
			k, err := p.expect(TokIdent, "param")
			if err != nil {
				return nil, err
			}
			v := k.Literal
			if p.at(TokColon) {
				p.advance()
				v = p.advance().Literal
			}
			params[k.Literal] = v
			if p.at(TokComma) {
				p.advance()
			}
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
	}
	inner, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return &EmoteAnnotatedStmt{Tag: EmoteTag{Name: nameTok.Literal, Params: params}, Inner: inner, Span: p.span(start)}, nil
}

// ---- Expressions ----

func (p *Parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (Expr, error) {
	start := p.cur()
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(TokOr) {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpOr, Left: left, Right: right, Span: p.span(start)}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	start := p.cur()
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.at(TokAnd) {
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: OpAnd, Left: left, Right: right, Span: p.span(start)}
	}
	return left, nil
}

func (p *Parser) parseEquality() (Expr, error) {
	start := p.cur()
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.at(TokEqEq) || p.at(TokNotEq) {
		op := OpEq
		if p.at(TokNotEq) {
			op = OpNe
		}
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right, Span: p.span(start)}
	}
	return left, nil
}

func (p *Parser) parseComparison() (Expr, error) {
	start := p.cur()
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.at(TokLt) || p.at(TokGt) || p.at(TokLe) || p.at(TokGe) {
		var op BinaryOp
		switch p.cur().Kind {
		case TokLt:
			op = OpLt
		case TokGt:
			op = OpGt
		case TokLe:
			op = OpLe
		case TokGe:
			op = OpGe
		}
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right, Span: p.span(start)}
	}
	return left, nil
}

func (p *Parser) parseAdditive() (Expr, error) {
	start := p.cur()
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(TokPlus) || p.at(TokMinus) {
		op := OpAdd
		if p.at(TokMinus) {
			op = OpSub
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right, Span: p.span(start)}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	start := p.cur()
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(TokStar) || p.at(TokSlash) || p.at(TokPercent) {
		var op BinaryOp
		switch p.cur().Kind {
		case TokStar:
			op = OpMul
		case TokSlash:
			op = OpDiv
		case TokPercent:
			op = OpMod
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right, Span: p.span(start)}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	start := p.cur()
	if p.at(TokNot) {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: OpNot, Operand: operand, Span: p.span(start)}, nil
	}
	if p.at(TokMinus) {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: OpNeg, Operand: operand, Span: p.span(start)}, nil
	}
	if p.at(TokUnwrap) {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnwrapExpr{Inner: operand, Span: p.span(start)}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	start := p.cur()
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.at(TokLBracket):
			p.advance()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokRBracket, "]"); err != nil {
				return nil, err
			}
			expr = &IndexExpr{Object: expr, Index: idx, Span: p.span(start)}
		case p.at(TokMeasured):
			p.advance()
			if _, err := p.expect(TokIn, "in"); err != nil {
				return nil, err
			}
			unitTok, err := p.expect(TokIdent, "unit name")
			if err != nil {
				return nil, err
			}
			expr = &MeasuredExpr{Inner: expr, Unit: unitTok.Literal, Span: p.span(start)}
		case p.at(TokLParen):
			// call-on-expression for first-class function values
			p.advance()
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			expr = &CallExpr{Callee: expr, Args: args, Span: p.span(start)}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseArgList() ([]Expr, error) {
	var args []Expr
	for !p.at(TokRParen) {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.at(TokComma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokRParen, ")"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parseLiteral() (*LiteralExpr, error) {
	start := p.cur()
	switch {
	case p.at(TokInt):
		tok := p.advance()
		n, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			return nil, ParseError{Expected: "integer literal", Found: tok.Literal, Span: p.errSpan(tok.Range)}
		}
		return &LiteralExpr{Kind: LitInt, I: n, Span: p.span(start)}, nil
	case p.at(TokFloat):
		tok := p.advance()
		f, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, ParseError{Expected: "float literal", Found: tok.Literal, Span: p.errSpan(tok.Range)}
		}
		return &LiteralExpr{Kind: LitFloat, F: f, Span: p.span(start)}, nil
	case p.at(TokString):
		tok := p.advance()
		return &LiteralExpr{Kind: LitString, S: tok.Literal, Span: p.span(start)}, nil
	case p.at(TokTrue), p.at(TokFalse):
		b := p.at(TokTrue)
		p.advance()
		return &LiteralExpr{Kind: LitBool, B: b, Span: p.span(start)}, nil
	}
	return nil, ParseError{Expected: "literal", Found: p.cur().Literal, Span: p.errSpan(p.cur().Range)}
}

func (p *Parser) parsePrimary() (Expr, error) {
	start := p.cur()
	switch {
	case p.at(TokInt), p.at(TokFloat), p.at(TokString), p.at(TokTrue), p.at(TokFalse):
		return p.parseLiteral()

	case p.at(TokLParen):
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return expr, nil

	case p.at(TokLBracket):
		p.advance()
		var items []Expr
		for !p.at(TokRBracket) {
			item, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			if p.at(TokComma) {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expect(TokRBracket, "]"); err != nil {
			return nil, err
		}
		return &ArrayLit{Items: items, Span: p.span(start)}, nil

	case p.at(TokOkayCtor), p.at(TokOopsCtor):
		isOkay := p.at(TokOkayCtor)
		p.advance()
		if _, err := p.expect(TokLParen, "("); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		if isOkay {
			return &OkayExpr{Inner: inner, Span: p.span(start)}, nil
		}
		return &OopsExpr{Inner: inner, Span: p.span(start)}, nil

	case p.at(TokThanks):
		p.advance()
		if _, err := p.expect(TokLParen, "("); err != nil {
			return nil, err
		}
		nameTok, err := p.expect(TokString, "gratitude name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return &ThanksExpr{Name: nameTok.Literal, Span: p.span(start)}, nil

	case p.at(TokPipe):
		return p.parseLambda()

	case p.at(TokIdent):
		nameTok := p.advance()
		if p.at(TokLParen) {
			p.advance()
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			return &CallExpr{Name: nameTok.Literal, Args: args, Span: p.span(start)}, nil
		}
		return &IdentifierExpr{Name: nameTok.Literal, Span: p.span(start)}, nil

	default:
		return nil, ParseError{Expected: "expression", Found: p.cur().Literal, Span: p.errSpan(p.cur().Range)}
	}
}

func (p *Parser) parseLambda() (Expr, error) {
	start := p.cur()
	p.advance() // |
	var params []Parameter
	for !p.at(TokPipe) {
		pStart := p.cur()
		nameTok, err := p.expect(TokIdent, "parameter name")
		if err != nil {
			return nil, err
		}
		var typ *TypeAnnotation
		if p.at(TokColon) {
			p.advance()
			typ, err = p.parseTypeAnnotation()
			if err != nil {
				return nil, err
			}
		}
		params = append(params, Parameter{Name: nameTok.Literal, Type: typ, Span: p.span(pStart)})
		if p.at(TokComma) {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokPipe, "|"); err != nil {
		return nil, err
	}
	if p.at(TokArrow) || p.at(TokArrowU) {
		p.advance()
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &LambdaExpr{Params: params, ExprBody: body, Span: p.span(start)}, nil
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &LambdaExpr{Params: params, BlockBody: body, Span: p.span(start)}, nil
}
