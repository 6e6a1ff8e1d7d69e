package inversion

import (
	"strings"

	"github.com/benrogmans/lemma/internal/ast"
	"github.com/benrogmans/lemma/internal/semantic"
	"github.com/benrogmans/lemma/internal/value"
)

// hydrator substitutes known facts, inlines simple rule references, folds
// constants, and normalises boolean structure.
type hydrator struct {
	doc    *ast.Document
	docs   map[string]*ast.Document
	givens map[string]value.Value
}

func lit(v value.Value) ast.Expr { return ast.NewLiteral(v, ast.Span{}) }

func and(a, b ast.Expr) ast.Expr  { return &ast.And{Left: a, Right: b} }
func or(a, b ast.Expr) ast.Expr   { return &ast.Or{Left: a, Right: b} }
func not(a ast.Expr) ast.Expr     { return &ast.Not{Operand: a} }
func boolLit(b bool) ast.Expr     { return lit(value.Boolean(b)) }

func isBoolLit(e ast.Expr, want bool) bool {
	l, ok := e.(*ast.Literal)
	return ok && l.Value.Kind == value.KindBoolean && l.Value.Bool == want
}

// hydrate rewrites an expression with everything known substituted in, then
// simplifies it.
func (h *hydrator) hydrate(e ast.Expr) ast.Expr {
	return h.simplify(h.substitute(e))
}

// substitute replaces given facts with their values and inlines rule
// references whose target has no unless clauses. Fact references that are
// not given stay symbolic, including facts that declare a default.
func (h *hydrator) substitute(e ast.Expr) ast.Expr {
	switch n := e.(type) {
	case *ast.FactRef:
		name := strings.Join(n.Path, ".")
		if v, ok := h.givens[name]; ok {
			return lit(v)
		}
		return n

	case *ast.RuleRef:
		key, err := semantic.ResolveRuleRef(n.Path, h.doc, h.docs)
		if err != nil {
			return n
		}
		target := h.docs[key.Doc]
		if target == nil {
			return n
		}
		rule := target.Rule(key.Rule)
		if rule == nil || len(rule.Unless) > 0 {
			return n
		}
		inner := &hydrator{doc: target, docs: h.docs, givens: h.givens}
		return inner.substitute(rule.Base)

	case *ast.HasValue:
		name := strings.Join(n.Fact, ".")
		_, given := h.givens[name]
		bound := given
		if !bound {
			if f := h.doc.Fact(name); f != nil && f.Kind == ast.FactLiteral {
				bound = true
			}
		}
		if n.Negated {
			bound = !bound
		}
		return boolLit(bound)

	case *ast.And:
		return and(h.substitute(n.Left), h.substitute(n.Right))
	case *ast.Or:
		return or(h.substitute(n.Left), h.substitute(n.Right))
	case *ast.Not:
		return not(h.substitute(n.Operand))
	case *ast.Arith:
		return &ast.Arith{Left: h.substitute(n.Left), Op: n.Op, Right: h.substitute(n.Right)}
	case *ast.Compare:
		return &ast.Compare{Left: h.substitute(n.Left), Op: n.Op, Right: h.substitute(n.Right)}
	case *ast.Convert:
		out := *n
		out.Operand = h.substitute(n.Operand)
		return &out
	case *ast.Math:
		return &ast.Math{Func: n.Func, Operand: h.substitute(n.Operand)}
	}
	return e
}

// simplify folds constant sub-expressions, pushes negation down with
// De Morgan's laws, drops boolean identities, and canonicalises comparisons
// so the variable-like side sits on the left.
func (h *hydrator) simplify(e ast.Expr) ast.Expr {
	if v, ok := semantic.ConstFold(e); ok {
		return lit(v)
	}
	switch n := e.(type) {
	case *ast.Not:
		return h.simplifyNot(n.Operand)

	case *ast.And:
		left := h.simplify(n.Left)
		right := h.simplify(n.Right)
		if isBoolLit(left, false) || isBoolLit(right, false) {
			return boolLit(false)
		}
		if isBoolLit(left, true) {
			return right
		}
		if isBoolLit(right, true) {
			return left
		}
		if exprEqual(left, right) {
			return left
		}
		return and(left, right)

	case *ast.Or:
		left := h.simplify(n.Left)
		right := h.simplify(n.Right)
		if isBoolLit(left, true) || isBoolLit(right, true) {
			return boolLit(true)
		}
		if isBoolLit(left, false) {
			return right
		}
		if isBoolLit(right, false) {
			return left
		}
		if exprEqual(left, right) {
			return left
		}
		return or(left, right)

	case *ast.Compare:
		left := h.simplify(n.Left)
		right := h.simplify(n.Right)
		// keep the variable-like side on the left
		if isConstant(left) && !isConstant(right) {
			left, right = right, left
			return &ast.Compare{Left: left, Op: n.Op.Flip(), Right: right}
		}
		return &ast.Compare{Left: left, Op: n.Op, Right: right}

	case *ast.Arith:
		return &ast.Arith{Left: h.simplify(n.Left), Op: n.Op, Right: h.simplify(n.Right)}
	case *ast.Convert:
		out := *n
		out.Operand = h.simplify(n.Operand)
		return &out
	case *ast.Math:
		return &ast.Math{Func: n.Func, Operand: h.simplify(n.Operand)}
	}
	return e
}

// simplifyNot pushes a negation into its operand.
func (h *hydrator) simplifyNot(operand ast.Expr) ast.Expr {
	switch inner := operand.(type) {
	case *ast.Not:
		return h.simplify(inner.Operand)
	case *ast.And:
		// not (a and b) == (not a) or (not b)
		return h.simplify(or(not(inner.Left), not(inner.Right)))
	case *ast.Or:
		return h.simplify(and(not(inner.Left), not(inner.Right)))
	case *ast.Compare:
		return h.simplify(&ast.Compare{Left: inner.Left, Op: inner.Op.Negate(), Right: inner.Right})
	}
	simplified := h.simplify(operand)
	if l, ok := simplified.(*ast.Literal); ok && l.Value.Kind == value.KindBoolean {
		return boolLit(!l.Value.Bool)
	}
	if !exprEqual(simplified, operand) {
		return h.simplifyNot(simplified)
	}
	return not(simplified)
}

// isConstant reports whether the expression reads no facts or rules.
func isConstant(e ast.Expr) bool {
	refs := semantic.ExtractRefs(e)
	return len(refs.Facts) == 0 && len(refs.Rules) == 0
}

// exprEqual compares two expressions structurally.
func exprEqual(a, b ast.Expr) bool {
	switch x := a.(type) {
	case *ast.Literal:
		y, ok := b.(*ast.Literal)
		return ok && x.Value.Kind == y.Value.Kind && x.Value.String() == y.Value.String()
	case *ast.FactRef:
		y, ok := b.(*ast.FactRef)
		return ok && pathEqual(x.Path, y.Path)
	case *ast.RuleRef:
		y, ok := b.(*ast.RuleRef)
		return ok && pathEqual(x.Path, y.Path)
	case *ast.HasValue:
		y, ok := b.(*ast.HasValue)
		return ok && x.Negated == y.Negated && pathEqual(x.Fact, y.Fact)
	case *ast.And:
		y, ok := b.(*ast.And)
		return ok && exprEqual(x.Left, y.Left) && exprEqual(x.Right, y.Right)
	case *ast.Or:
		y, ok := b.(*ast.Or)
		return ok && exprEqual(x.Left, y.Left) && exprEqual(x.Right, y.Right)
	case *ast.Not:
		y, ok := b.(*ast.Not)
		return ok && exprEqual(x.Operand, y.Operand)
	case *ast.Arith:
		y, ok := b.(*ast.Arith)
		return ok && x.Op == y.Op && exprEqual(x.Left, y.Left) && exprEqual(x.Right, y.Right)
	case *ast.Compare:
		y, ok := b.(*ast.Compare)
		return ok && x.Op == y.Op && exprEqual(x.Left, y.Left) && exprEqual(x.Right, y.Right)
	case *ast.Convert:
		y, ok := b.(*ast.Convert)
		return ok && x.Unit == y.Unit && x.IsMoney == y.IsMoney && exprEqual(x.Operand, y.Operand)
	case *ast.Math:
		y, ok := b.(*ast.Math)
		return ok && x.Func == y.Func && exprEqual(x.Operand, y.Operand)
	case *ast.Veto:
		y, ok := b.(*ast.Veto)
		return ok && x.HasMsg == y.HasMsg && x.Message == y.Message
	}
	return false
}

func pathEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
