package inversion

import (
	"fmt"
	"strings"

	"github.com/benrogmans/lemma/internal/ast"
	"github.com/benrogmans/lemma/internal/semantic"
	"github.com/benrogmans/lemma/internal/value"
)

// Error reports an unreachable target: the rule cannot produce the
// requested outcome. Available lists the outcomes the rule can produce.
type Error struct {
	Rule      string
	Target    Target
	Available []string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("cannot invert rule %q for target %s", e.Rule, e.Target)
	if len(e.Available) > 0 {
		msg += "; this rule can produce: " + strings.Join(e.Available, ", ")
	}
	return msg
}

// branch is one expanded piece of the rule: a non-overlapping guard and the
// outcome it produces.
type branch struct {
	guard   ast.Expr
	outcome BranchOutcome
}

// Invert derives the Shape of inputs under which the rule produces the
// target outcome, with given facts substituted in.
func Invert(docs map[string]*ast.Document, docName, ruleName string, target Target, givens map[string]value.Value) (*Shape, error) {
	doc := docs[docName]
	if doc == nil {
		return nil, fmt.Errorf("document %q not found", docName)
	}
	rule := doc.Rule(ruleName)
	if rule == nil {
		return nil, fmt.Errorf("rule %q not found in document %q", ruleName, docName)
	}
	if givens == nil {
		givens = map[string]value.Value{}
	}
	h := &hydrator{doc: doc, docs: docs, givens: givens}

	expanded, available := expandBranches(h, rule)
	surviving, err := filterBranches(h, expanded, target)
	if err != nil {
		return nil, err
	}
	if len(surviving) == 0 {
		return nil, &Error{Rule: docName + "." + ruleName, Target: target, Available: available}
	}

	shape := &Shape{FreeVariables: freeVariables(surviving, givens)}

	// a lone branch with one unknown may solve exactly
	if target.Kind == TargetValue && target.Op == value.CmpEq && len(surviving) == 1 {
		if eq := trySolveEquation(h, surviving[0], target); eq != nil {
			shape.Relationships = []Relationship{*eq}
			return shape, nil
		}
	}

	// all branches constraining a single shared fact become a piecewise
	if pw := tryPiecewise(surviving, givens); pw != nil {
		shape.Relationships = []Relationship{*pw}
		return shape, nil
	}

	for _, br := range surviving {
		shape.Relationships = append(shape.Relationships, Relationship{
			Kind:       RelImplicit,
			Expression: br.guard,
			Outcome:    br.outcome,
		})
	}
	return shape, nil
}

// expandBranches reconstructs the rule as non-overlapping guarded branches,
// most specific first. With last-match-wins semantics, clause i fires only
// when its condition holds and no later clause's condition does; the base
// expression fires when no clause matches at all.
func expandBranches(h *hydrator, rule *ast.Rule) ([]branch, []string) {
	type rawBranch struct {
		cond   ast.Expr
		result ast.Expr
	}
	raw := make([]rawBranch, 0, len(rule.Unless)+1)
	raw = append(raw, rawBranch{boolLit(true), rule.Base})
	for _, uc := range rule.Unless {
		raw = append(raw, rawBranch{uc.Condition, uc.Result})
	}

	// suffixOr[i] is the disjunction of all conditions after i
	suffixOr := make([]ast.Expr, len(raw))
	var acc ast.Expr
	for i := len(raw) - 1; i >= 0; i-- {
		suffixOr[i] = acc
		if acc == nil {
			acc = raw[i].cond
		} else {
			acc = or(raw[i].cond, acc)
		}
	}

	var out []branch
	var available []string
	for i := len(raw) - 1; i >= 0; i-- {
		guard := raw[i].cond
		if suffixOr[i] != nil {
			guard = and(guard, not(suffixOr[i]))
		}
		guard = h.hydrate(guard)
		if isBoolLit(guard, false) {
			continue
		}
		var outcome BranchOutcome
		if v, ok := raw[i].result.(*ast.Veto); ok {
			outcome = BranchOutcome{IsVeto: true, VetoMsg: v.Message, HasMsg: v.HasMsg}
		} else {
			outcome = BranchOutcome{Expr: h.hydrate(raw[i].result)}
		}
		available = append(available, outcome.String())
		out = append(out, branch{guard: guard, outcome: outcome})
	}
	return out, available
}

// filterBranches keeps the branches whose outcome can match the target and
// conjoins the target guard onto value branches.
func filterBranches(h *hydrator, branches []branch, target Target) ([]branch, error) {
	var out []branch
	for _, br := range branches {
		switch target.Kind {
		case TargetAnyVeto:
			if br.outcome.IsVeto {
				out = append(out, br)
			}

		case TargetVeto:
			if br.outcome.IsVeto && br.outcome.HasMsg && br.outcome.VetoMsg == target.Veto {
				out = append(out, br)
			}

		case TargetAnyValue:
			if !br.outcome.IsVeto {
				out = append(out, br)
			}

		case TargetValue:
			if br.outcome.IsVeto {
				continue
			}
			if litExpr, ok := br.outcome.Expr.(*ast.Literal); ok {
				matched, err := value.Compare(litExpr.Value, target.Op, target.Value)
				if err != nil || !matched {
					continue
				}
				out = append(out, br)
				continue
			}
			guard := h.simplify(and(br.guard, &ast.Compare{
				Left:  br.outcome.Expr,
				Op:    target.Op,
				Right: lit(target.Value),
			}))
			if isBoolLit(guard, false) {
				continue
			}
			out = append(out, branch{guard: guard, outcome: br.outcome})
		}
	}
	return out, nil
}

// trySolveEquation isolates the single unknown of a value branch whose
// guard otherwise holds unconditionally.
func trySolveEquation(h *hydrator, br branch, target Target) *Relationship {
	if br.outcome.IsVeto {
		return nil
	}
	unknowns := map[string]bool{}
	for _, path := range semantic.ExtractRefs(br.outcome.Expr).Facts {
		unknowns[strings.Join(path, ".")] = true
	}
	if len(unknowns) != 1 {
		return nil
	}
	if len(semantic.ExtractRefs(br.outcome.Expr).Rules) > 0 {
		return nil
	}
	var fact string
	for f := range unknowns {
		fact = f
	}

	rhs := solve(br.outcome.Expr, fact, lit(target.Value))
	if rhs == nil {
		return nil
	}
	if folded, ok := semantic.ConstFold(rhs); ok {
		rhs = lit(folded)
	}
	// a guard constraining other facts keeps the branch implicit
	for _, path := range semantic.ExtractRefs(br.guard).Facts {
		if strings.Join(path, ".") != fact {
			return nil
		}
	}
	return &Relationship{Kind: RelEquation, Fact: fact, RHS: rhs}
}

// tryPiecewise builds a piecewise relationship when every branch's guard
// reduces to constraints on one shared fact.
func tryPiecewise(branches []branch, givens map[string]value.Value) *Relationship {
	var variable string
	for _, br := range branches {
		for _, path := range semantic.ExtractRefs(br.guard).Facts {
			name := strings.Join(path, ".")
			if _, given := givens[name]; given {
				continue
			}
			if variable == "" {
				variable = name
			} else if variable != name {
				return nil
			}
		}
		if len(semantic.ExtractRefs(br.guard).Rules) > 0 {
			return nil
		}
	}
	if variable == "" {
		return nil
	}

	rel := &Relationship{Kind: RelPiecewise, Variable: variable}
	for _, br := range branches {
		dom, ok := extractDomain(br.guard, variable)
		if !ok {
			return nil
		}
		dom = dom.Normalize()
		if dom.Empty() {
			continue
		}
		rel.Branches = append(rel.Branches, PiecewiseBranch{
			Condition: br.guard,
			Cond:      br.guard.String(),
			Outcome:   br.outcome,
			Out:       br.outcome.String(),
			Domain:    dom,
		})
	}
	if len(rel.Branches) == 0 {
		return nil
	}
	return rel
}

// extractDomain reduces a guard to a domain for one variable. Comparisons
// against literals, conjunction, disjunction and negation are supported.
func extractDomain(e ast.Expr, variable string) (Domain, bool) {
	switch n := e.(type) {
	case *ast.Literal:
		if n.Value.Kind != value.KindBoolean {
			return Domain{}, false
		}
		if n.Value.Bool {
			return Unconstrained(), true
		}
		return Enumeration(), true

	case *ast.Compare:
		varLeft := isVarRef(n.Left, variable)
		varRight := isVarRef(n.Right, variable)
		if varLeft {
			if rl, ok := n.Right.(*ast.Literal); ok {
				d, err := ComparisonDomain(n.Op, rl.Value)
				return d, err == nil
			}
		}
		if varRight {
			if ll, ok := n.Left.(*ast.Literal); ok {
				d, err := ComparisonDomain(n.Op.Flip(), ll.Value)
				return d, err == nil
			}
		}
		return Domain{}, false

	case *ast.And:
		left, ok := extractDomain(n.Left, variable)
		if !ok {
			return Domain{}, false
		}
		right, ok := extractDomain(n.Right, variable)
		if !ok {
			return Domain{}, false
		}
		return IntersectDomains(left, right), true

	case *ast.Or:
		left, ok := extractDomain(n.Left, variable)
		if !ok {
			return Domain{}, false
		}
		right, ok := extractDomain(n.Right, variable)
		if !ok {
			return Domain{}, false
		}
		return UnionDomains(left, right), true

	case *ast.Not:
		inner, ok := extractDomain(n.Operand, variable)
		if !ok {
			return Domain{}, false
		}
		return Complement(inner).Normalize(), true
	}
	return Domain{}, false
}

func isVarRef(e ast.Expr, variable string) bool {
	fr, ok := e.(*ast.FactRef)
	return ok && strings.Join(fr.Path, ".") == variable
}

// freeVariables collects the fact references of surviving branches, minus
// the given facts, in order of first appearance.
func freeVariables(branches []branch, givens map[string]value.Value) []string {
	seen := map[string]bool{}
	var out []string
	add := func(e ast.Expr) {
		for _, path := range semantic.ExtractRefs(e).Facts {
			name := strings.Join(path, ".")
			if _, given := givens[name]; given {
				continue
			}
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	for _, br := range branches {
		add(br.guard)
		if !br.outcome.IsVeto && br.outcome.Expr != nil {
			add(br.outcome.Expr)
		}
	}
	return out
}

// ValidDomain computes the admissible region for one fact: the complement
// of every input region that leads to a veto.
func ValidDomain(docs map[string]*ast.Document, docName, ruleName, fact string, givens map[string]value.Value) (Domain, error) {
	shape, err := Invert(docs, docName, ruleName, AnyVeto(), givens)
	if err != nil {
		if _, unreachable := err.(*Error); unreachable {
			// no veto is reachable, so every value is admissible
			return Unconstrained(), nil
		}
		return Domain{}, err
	}

	vetoRegion := Enumeration() // empty
	for _, rel := range shape.Relationships {
		switch rel.Kind {
		case RelPiecewise:
			if rel.Variable != fact {
				continue
			}
			for _, br := range rel.Branches {
				vetoRegion = UnionDomains(vetoRegion, br.Domain)
			}
		case RelImplicit:
			if dom, ok := extractDomain(rel.Expression, fact); ok {
				vetoRegion = UnionDomains(vetoRegion, dom)
			}
		}
	}
	return Complement(vetoRegion).Normalize(), nil
}
