package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/benrogmans/lemma/internal/ast"
	"github.com/benrogmans/lemma/internal/value"
)

// SyntaxError is a tokeniser or parser failure. The document that produced
// it is rejected as a whole.
type SyntaxError struct {
	Message  string
	Expected string
	Span     ast.Span
	Source   string
}

func (e *SyntaxError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("%s:%d:%d: %s (expected %s)", e.Source, e.Span.Line, e.Span.Column, e.Message, e.Expected)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Source, e.Span.Line, e.Span.Column, e.Message)
}

// Options bound what the parser will accept. Zero values fall back to the
// defaults below.
type Options struct {
	MaxFileSize  int // bytes
	MaxExprDepth int
	MaxIdentLen  int
	MaxStringLen int
}

const (
	defaultMaxFileSize  = 5 * 1024 * 1024
	defaultMaxExprDepth = 100
	defaultMaxIdentLen  = 256
	defaultMaxStringLen = 1024 * 1024
)

func (o Options) withDefaults() Options {
	if o.MaxFileSize == 0 {
		o.MaxFileSize = defaultMaxFileSize
	}
	if o.MaxExprDepth == 0 {
		o.MaxExprDepth = defaultMaxExprDepth
	}
	if o.MaxIdentLen == 0 {
		o.MaxIdentLen = defaultMaxIdentLen
	}
	if o.MaxStringLen == 0 {
		o.MaxStringLen = defaultMaxStringLen
	}
	return o
}

// LimitError reports a violated resource limit.
type LimitError struct {
	Limit  string
	Actual string
	Max    string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("resource limit exceeded: %s is %s, maximum %s", e.Limit, e.Actual, e.Max)
}

// mathFuncs maps prefix function keywords to their AST tag.
var mathFuncs = map[string]ast.MathFunc{
	"sqrt": ast.FuncSqrt, "sin": ast.FuncSin, "cos": ast.FuncCos,
	"tan": ast.FuncTan, "asin": ast.FuncAsin, "acos": ast.FuncAcos,
	"atan": ast.FuncAtan, "log": ast.FuncLog, "exp": ast.FuncExp,
	"abs": ast.FuncAbs, "floor": ast.FuncFloor, "ceil": ast.FuncCeil,
	"round": ast.FuncRound,
}

// booleanWords maps the boolean aliases to their value.
var booleanWords = map[string]bool{
	"true": true, "yes": true, "accept": true,
	"false": false, "no": false, "reject": false,
}

// statement keywords end an expression when encountered at top level.
var stmtKeywords = map[string]bool{
	"doc": true, "fact": true, "rule": true, "unless": true, "then": true,
}

type parser struct {
	toks   []token
	pos    int
	source string
	opts   Options
	depth  int
}

// Parse tokenises and parses source into documents. source names the input
// (a file name) for diagnostics.
func Parse(src, source string, opts Options) ([]*ast.Document, error) {
	opts = opts.withDefaults()
	if len(src) > opts.MaxFileSize {
		return nil, &LimitError{
			Limit:  "max_file_size",
			Actual: fmt.Sprintf("%d bytes", len(src)),
			Max:    fmt.Sprintf("%d bytes", opts.MaxFileSize),
		}
	}
	toks, err := lex(src)
	if err != nil {
		if se, ok := err.(*SyntaxError); ok {
			se.Source = source
		}
		return nil, err
	}
	p := &parser{toks: toks, source: source, opts: opts}

	var docs []*ast.Document
	for !p.cur().is(tokEOF) {
		doc, err := p.parseDocument()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ParseFacts parses CLI-style "name=value" strings into fact overrides.
func ParseFacts(factStrings []string) ([]*ast.Fact, error) {
	var facts []*ast.Fact
	for _, s := range factStrings {
		docs, err := Parse("doc overrides\nfact "+s, "<override>", Options{})
		if err != nil {
			return nil, fmt.Errorf("failed to parse fact %q: %w", s, err)
		}
		if len(docs) != 1 || len(docs[0].Facts) != 1 {
			return nil, fmt.Errorf("failed to parse fact %q", s)
		}
		facts = append(facts, docs[0].Facts[0])
	}
	return facts, nil
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) peek() token {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) errf(tok token, expected, format string, args ...any) error {
	return &SyntaxError{
		Message:  fmt.Sprintf(format, args...),
		Expected: expected,
		Span:     tok.pos,
		Source:   p.source,
	}
}

func (p *parser) expectKeyword(kw string) (token, error) {
	t := p.cur()
	if !t.isKeyword(kw) {
		return t, p.errf(t, fmt.Sprintf("%q", kw), "unexpected token %q", t.text)
	}
	return p.advance(), nil
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.cur()
	if !t.is(kind) {
		return t, p.errf(t, what, "unexpected token %q", t.text)
	}
	return p.advance(), nil
}

func (p *parser) ident() (token, error) {
	t := p.cur()
	if !t.is(tokIdent) {
		return t, p.errf(t, "identifier", "unexpected token %q", t.text)
	}
	if len(t.text) > p.opts.MaxIdentLen {
		return t, &LimitError{
			Limit:  "max_identifier_length",
			Actual: fmt.Sprintf("%d characters", len(t.text)),
			Max:    fmt.Sprintf("%d characters", p.opts.MaxIdentLen),
		}
	}
	return p.advance(), nil
}

// --- documents and statements ---

func (p *parser) parseDocument() (*ast.Document, error) {
	docTok, err := p.expectKeyword("doc")
	if err != nil {
		return nil, err
	}
	name, err := p.parseDocName()
	if err != nil {
		return nil, err
	}
	doc := &ast.Document{
		Name:      name,
		Source:    p.source,
		StartLine: docTok.pos.Line,
	}
	if p.cur().is(tokCommentary) {
		doc.Commentary = p.advance().text
	}

	for {
		t := p.cur()
		switch {
		case t.is(tokEOF) || t.isKeyword("doc"):
			return doc, nil
		case t.isKeyword("fact"):
			fact, err := p.parseFact()
			if err != nil {
				return nil, err
			}
			doc.Facts = append(doc.Facts, fact)
		case t.isKeyword("rule"):
			rule, err := p.parseRule()
			if err != nil {
				return nil, err
			}
			doc.Rules = append(doc.Rules, rule)
		default:
			return nil, p.errf(t, "\"fact\", \"rule\" or \"doc\"", "unexpected token %q", t.text)
		}
	}
}

// parseDocName accepts hierarchical names like contracts/employment/jack.
func (p *parser) parseDocName() (string, error) {
	first, err := p.ident()
	if err != nil {
		return "", err
	}
	segments := []string{first.text}
	for p.cur().is(tokSlash) {
		p.advance()
		seg, err := p.ident()
		if err != nil {
			return "", err
		}
		segments = append(segments, seg.text)
	}
	return strings.Join(segments, "/"), nil
}

func (p *parser) parseFact() (*ast.Fact, error) {
	factTok, _ := p.expectKeyword("fact")
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokAssign, "\"=\""); err != nil {
		return nil, err
	}

	fact := &ast.Fact{Path: path, Pos: factTok.pos}

	switch {
	case p.cur().is(tokLBracket):
		p.advance()
		if p.cur().isKeyword("multi") {
			// multi-valued annotation: the element type follows
			p.advance()
		}
		typeName, err := p.ident()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRBracket, "\"]\""); err != nil {
			return nil, err
		}
		fact.Kind = ast.FactTypeAnnotation
		fact.TypeName = strings.ToLower(typeName.text)
		return fact, nil

	case p.cur().isKeyword("doc"):
		p.advance()
		name, err := p.parseDocName()
		if err != nil {
			return nil, err
		}
		fact.Kind = ast.FactDocRef
		fact.DocName = name
		return fact, nil

	default:
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		fact.Kind = ast.FactLiteral
		fact.DefaultExpr = expr
		return fact, nil
	}
}

func (p *parser) parseRule() (*ast.Rule, error) {
	ruleTok, _ := p.expectKeyword("rule")
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokAssign, "\"=\""); err != nil {
		return nil, err
	}
	baseExpr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	rule := &ast.Rule{Name: name.text, Base: baseExpr, Pos: ruleTok.pos}

	for p.cur().isKeyword("unless") {
		unlessTok := p.advance()
		cond, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKeyword("then"); err != nil {
			return nil, err
		}
		var result ast.Expr
		if p.cur().isKeyword("veto") {
			vetoTok := p.advance()
			veto := &ast.Veto{}
			veto.Pos = vetoTok.pos
			if p.cur().is(tokString) {
				msg := p.advance()
				veto.Message = msg.text
				veto.HasMsg = true
			}
			result = veto
		} else {
			result, err = p.parseExpression()
			if err != nil {
				return nil, err
			}
		}
		rule.Unless = append(rule.Unless, ast.UnlessClause{
			Condition: cond,
			Result:    result,
			Pos:       unlessTok.pos,
		})
	}
	return rule, nil
}

// parsePath reads a dotted reference path.
func (p *parser) parsePath() ([]string, error) {
	first, err := p.ident()
	if err != nil {
		return nil, err
	}
	path := []string{first.text}
	for p.cur().is(tokDot) {
		p.advance()
		seg, err := p.ident()
		if err != nil {
			return nil, err
		}
		path = append(path, seg.text)
	}
	return path, nil
}

// --- expressions (precedence climbing) ---

func (p *parser) parseExpression() (ast.Expr, error) {
	if p.depth >= p.opts.MaxExprDepth {
		return nil, &LimitError{
			Limit:  "max_expression_depth",
			Actual: fmt.Sprintf("%d", p.depth),
			Max:    fmt.Sprintf("%d", p.opts.MaxExprDepth),
		}
	}
	p.depth++
	defer func() { p.depth-- }()
	return p.parseOr()
}

func (p *parser) parseOr() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur().isKeyword("or") {
		opTok := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		or := &ast.Or{Left: left, Right: right}
		or.Pos = opTok.pos
		left = or
	}
	return left, nil
}

func (p *parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.cur().isKeyword("and") {
		opTok := p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		and := &ast.And{Left: left, Right: right}
		and.Pos = opTok.pos
		left = and
	}
	return left, nil
}

func (p *parser) parseNot() (ast.Expr, error) {
	if p.cur().isKeyword("not") {
		notTok := p.advance()
		// `not have x` tests absence of a fact value
		if p.cur().isKeyword("have") {
			p.advance()
			path, err := p.parsePath()
			if err != nil {
				return nil, err
			}
			hv := &ast.HasValue{Fact: path, Negated: true}
			hv.Pos = notTok.pos
			return hv, nil
		}
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		not := &ast.Not{Operand: operand}
		not.Pos = notTok.pos
		return not, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	var op value.CmpOp
	t := p.cur()
	switch {
	case t.is(tokEq):
		op = value.CmpEq
	case t.is(tokNeq):
		op = value.CmpNeq
	case t.is(tokLt):
		op = value.CmpLt
	case t.is(tokLte):
		op = value.CmpLte
	case t.is(tokGt):
		op = value.CmpGt
	case t.is(tokGte):
		op = value.CmpGte
	case t.isKeyword("is"):
		op = value.CmpEq
		if p.peek().isKeyword("not") {
			p.advance()
			op = value.CmpNeq
		}
	default:
		return left, nil
	}
	opTok := p.advance()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	cmp := &ast.Compare{Left: left, Op: op, Right: right}
	cmp.Pos = opTok.pos
	return cmp, nil
}

func (p *parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op value.ArithOp
		switch {
		case p.cur().is(tokPlus):
			op = value.OpAdd
		case p.cur().is(tokMinus):
			op = value.OpSub
		default:
			return left, nil
		}
		opTok := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		ar := &ast.Arith{Left: left, Op: op, Right: right}
		ar.Pos = opTok.pos
		left = ar
	}
}

func (p *parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for {
		var op value.ArithOp
		switch {
		case p.cur().is(tokStar):
			op = value.OpMul
		case p.cur().is(tokSlash):
			op = value.OpDiv
		case p.cur().is(tokMod):
			op = value.OpMod
		default:
			return left, nil
		}
		opTok := p.advance()
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		ar := &ast.Arith{Left: left, Op: op, Right: right}
		ar.Pos = opTok.pos
		left = ar
	}
}

func (p *parser) parsePower() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.cur().is(tokCaret) {
		opTok := p.advance()
		// right-associative
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		ar := &ast.Arith{Left: left, Op: value.OpPow, Right: right}
		ar.Pos = opTok.pos
		return ar, nil
	}
	return left, nil
}

func (p *parser) parseUnary() (ast.Expr, error) {
	t := p.cur()

	if t.is(tokMinus) {
		minusTok := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// fold a negated numeric literal
		if lit, ok := operand.(*ast.Literal); ok && lit.Value.IsNumeric() {
			return ast.NewLiteral(lit.Value.WithNum(lit.Value.Num.Neg()), minusTok.pos), nil
		}
		neg := &ast.Arith{
			Left:  ast.NewLiteral(value.NumberFromInt(0), minusTok.pos),
			Op:    value.OpSub,
			Right: operand,
		}
		neg.Pos = minusTok.pos
		return neg, nil
	}

	if t.is(tokIdent) {
		if fn, ok := mathFuncs[t.text]; ok && !p.startsPostfixOrEnd(p.peek()) {
			fnTok := p.advance()
			operand, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			m := &ast.Math{Func: fn, Operand: operand}
			m.Pos = fnTok.pos
			return m, nil
		}
		if t.isKeyword("have") {
			haveTok := p.advance()
			negated := false
			if p.cur().isKeyword("not") {
				p.advance()
				negated = true
			}
			path, err := p.parsePath()
			if err != nil {
				return nil, err
			}
			hv := &ast.HasValue{Fact: path, Negated: negated}
			hv.Pos = haveTok.pos
			return hv, nil
		}
	}

	return p.parsePostfix()
}

// startsPostfixOrEnd reports whether the token after a math-function word
// means the word is actually a reference (e.g. a fact named `log`).
func (p *parser) startsPostfixOrEnd(t token) bool {
	switch t.kind {
	case tokEOF, tokRParen, tokQuestion, tokDot, tokAssign,
		tokEq, tokNeq, tokLt, tokLte, tokGt, tokGte,
		tokPlus, tokMinus, tokStar, tokSlash, tokMod, tokCaret:
		return true
	case tokIdent:
		return stmtKeywords[t.text] || t.text == "and" || t.text == "or" ||
			t.text == "is" || t.text == "in"
	}
	return false
}

// parsePostfix parses a primary followed by `in <unit>` conversions.
func (p *parser) parsePostfix() (ast.Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.cur().isKeyword("in") {
		inTok := p.advance()
		unitTok, err := p.ident()
		if err != nil {
			return nil, err
		}
		conv := &ast.Convert{Operand: expr}
		conv.Pos = inTok.pos
		word := unitTok.text
		switch {
		case value.IsCurrency(word):
			conv.Unit = strings.ToUpper(word)
			conv.IsMoney = true
		case strings.ToLower(word) == "percentage":
			conv.Unit = "percentage"
		default:
			canonical, _, ok := value.LookupUnit(word)
			if !ok {
				return nil, p.errf(unitTok, "unit name", "unknown unit %q", word)
			}
			conv.Unit = canonical
		}
		expr = conv
	}
	return expr, nil
}

func (p *parser) parsePrimary() (ast.Expr, error) {
	t := p.cur()

	switch t.kind {
	case tokLParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "\")\""); err != nil {
			return nil, err
		}
		return expr, nil

	case tokNumber:
		p.advance()
		num, err := value.NumberFromString(t.text)
		if err != nil {
			return nil, p.errf(t, "number", "%v", err)
		}
		// a unit or currency word directly after a number forms a
		// quantity or money literal
		if next := p.cur(); next.is(tokIdent) && value.IsUnitOrCurrency(next.text) && !stmtKeywords[next.text] {
			p.advance()
			if value.IsCurrency(next.text) {
				return ast.NewLiteral(value.Money(num.Num, next.text), t.pos), nil
			}
			canonical, dim, _ := value.LookupUnit(next.text)
			return ast.NewLiteral(value.Quantity(num.Num, dim, canonical), t.pos), nil
		}
		return ast.NewLiteral(num, t.pos), nil

	case tokPercent:
		p.advance()
		d, err := decimal.NewFromString(t.text)
		if err != nil {
			return nil, p.errf(t, "percentage", "%v", err)
		}
		return ast.NewLiteral(value.Percentage(d), t.pos), nil

	case tokString:
		p.advance()
		if len(t.text) > p.opts.MaxStringLen {
			return nil, &LimitError{
				Limit:  "max_string_length",
				Actual: fmt.Sprintf("%d bytes", len(t.text)),
				Max:    fmt.Sprintf("%d bytes", p.opts.MaxStringLen),
			}
		}
		return ast.NewLiteral(value.Text(t.text), t.pos), nil

	case tokRegex:
		p.advance()
		return ast.NewLiteral(value.Regex(t.text), t.pos), nil

	case tokDate:
		p.advance()
		v, err := parseDateLiteral(t.text)
		if err != nil {
			return nil, p.errf(t, "date", "%v", err)
		}
		return ast.NewLiteral(v, t.pos), nil

	case tokIdent:
		if b, ok := booleanWords[t.text]; ok {
			p.advance()
			return ast.NewLiteral(value.Boolean(b), t.pos), nil
		}
		if stmtKeywords[t.text] {
			return nil, p.errf(t, "expression", "unexpected keyword %q", t.text)
		}
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		if p.cur().is(tokQuestion) {
			p.advance()
			rr := &ast.RuleRef{Path: path}
			rr.Pos = t.pos
			return rr, nil
		}
		fr := &ast.FactRef{Path: path}
		fr.Pos = t.pos
		return fr, nil
	}

	return nil, p.errf(t, "expression", "unexpected token %q", t.text)
}

// parseDateLiteral parses YYYY-MM-DD with optional time and zone.
func parseDateLiteral(s string) (value.Value, error) {
	layouts := []struct {
		layout  string
		hasTime bool
	}{
		{"2006-01-02T15:04:05Z07:00", true},
		{"2006-01-02T15:04:05", true},
		{"2006-01-02", false},
	}
	for _, l := range layouts {
		if t, err := time.Parse(l.layout, s); err == nil {
			return value.Date(t.UTC(), l.hasTime), nil
		}
	}
	return value.Value{}, fmt.Errorf("invalid date literal %q", s)
}
