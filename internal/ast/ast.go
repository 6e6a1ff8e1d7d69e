// Package ast defines the syntax tree produced by the parser: documents,
// facts, rules, and the expression nodes they contain. Every node carries a
// source span for diagnostics.
package ast

import (
	"strings"

	"github.com/benrogmans/lemma/internal/value"
)

// Span is a half-open location in source text.
type Span struct {
	Start  int `json:"-"`
	End    int `json:"-"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Expr is an expression node. Concrete node types are the *Expr structs
// below.
type Expr interface {
	Span() Span
	String() string
	exprNode()
}

type base struct {
	Pos Span
}

func (b base) Span() Span { return b.Pos }
func (base) exprNode()    {}

// Literal is a literal value.
type Literal struct {
	base
	Value value.Value
}

// FactRef references a fact by path segments, e.g. ["employee", "salary"].
type FactRef struct {
	base
	Path []string
}

// RuleRef references a rule's outcome with the `?` suffix.
type RuleRef struct {
	base
	Path []string
}

// HasValue is the `have X` test: true when the fact is bound.
type HasValue struct {
	base
	Fact    []string
	Negated bool // `not have X` / `have not X`
}

// And is short-circuit conjunction.
type And struct {
	base
	Left, Right Expr
}

// Or is short-circuit disjunction.
type Or struct {
	base
	Left, Right Expr
}

// Not is logical negation.
type Not struct {
	base
	Operand Expr
}

// Arith is a binary arithmetic operation.
type Arith struct {
	base
	Left  Expr
	Op    value.ArithOp
	Right Expr
}

// Compare is a binary comparison. `is`/`is not` parse to CmpEq/CmpNeq.
type Compare struct {
	base
	Left  Expr
	Op    value.CmpOp
	Right Expr
}

// Convert is the postfix `in <unit>` conversion. Unit holds either a
// canonical unit name or an upper-case currency code (IsMoney true), or
// "percentage".
type Convert struct {
	base
	Operand Expr
	Unit    string
	IsMoney bool
}

// MathFunc names a prefix mathematical function.
type MathFunc string

const (
	FuncSqrt  MathFunc = "sqrt"
	FuncSin   MathFunc = "sin"
	FuncCos   MathFunc = "cos"
	FuncTan   MathFunc = "tan"
	FuncAsin  MathFunc = "asin"
	FuncAcos  MathFunc = "acos"
	FuncAtan  MathFunc = "atan"
	FuncLog   MathFunc = "log"
	FuncExp   MathFunc = "exp"
	FuncAbs   MathFunc = "abs"
	FuncFloor MathFunc = "floor"
	FuncCeil  MathFunc = "ceil"
	FuncRound MathFunc = "round"
)

// Math applies a prefix mathematical function.
type Math struct {
	base
	Func    MathFunc
	Operand Expr
}

// Veto is the `veto "message"` result expression. Only valid as an unless
// clause result.
type Veto struct {
	base
	Message string
	HasMsg  bool
}

// NewLiteral builds a literal node at a span.
func NewLiteral(v value.Value, pos Span) *Literal { return &Literal{base{pos}, v} }

// --- documents ---

// FactKind distinguishes the three forms a fact definition takes.
type FactKind int

const (
	// FactLiteral has a default value expression evaluated at ingest.
	FactLiteral FactKind = iota
	// FactTypeAnnotation declares the type only; the fact is required.
	FactTypeAnnotation
	// FactDocRef declares a reference to another document.
	FactDocRef
)

// Fact is a fact definition or source-level override.
type Fact struct {
	Path []string // simple name, or ref.field for foreign overrides
	Kind FactKind
	Pos  Span

	// FactLiteral: the default expression as written, and the constant it
	// folds to (filled in by the validator).
	DefaultExpr Expr
	Default     value.Value
	HasDefault  bool

	// FactTypeAnnotation
	TypeName string // "number", "mass", "money", ...

	// FactDocRef
	DocName string
}

// Name returns the dotted path of the fact.
func (f *Fact) Name() string { return strings.Join(f.Path, ".") }

// Required reports whether the fact must be supplied at evaluation time.
func (f *Fact) Required() bool { return f.Kind == FactTypeAnnotation }

// UnlessClause is one `unless <condition> then <result>` clause. Result may
// be a *Veto node.
type UnlessClause struct {
	Condition Expr
	Result    Expr
	Pos       Span
}

// Rule is a named expression with ordered unless clauses. Source order is
// preserved; the evaluator examines clauses in reverse (last match wins).
type Rule struct {
	Name   string
	Base   Expr
	Unless []UnlessClause
	Pos    Span
}

// Document is a named namespace of facts and rules.
type Document struct {
	Name       string // hierarchical, "/"-separated segments allowed
	Source     string // file name the document came from
	StartLine  int
	Commentary string
	Facts      []*Fact
	Rules      []*Rule
}

// Fact returns the fact with the given dotted name, or nil.
func (d *Document) Fact(name string) *Fact {
	for _, f := range d.Facts {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

// Rule returns the named rule, or nil.
func (d *Document) Rule(name string) *Rule {
	for _, r := range d.Rules {
		if r.Name == name {
			return r
		}
	}
	return nil
}
