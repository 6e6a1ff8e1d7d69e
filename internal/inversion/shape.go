package inversion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/benrogmans/lemma/internal/ast"
	"github.com/benrogmans/lemma/internal/value"
)

// TargetKind selects what outcome the inversion aims for.
type TargetKind int

const (
	TargetValue TargetKind = iota
	TargetAnyValue
	TargetVeto
	TargetAnyVeto
)

// Target is the requested outcome: a value under a comparison operator, any
// value, a veto with an exact message, or any veto.
type Target struct {
	Kind  TargetKind
	Op    value.CmpOp // for TargetValue
	Value value.Value
	Veto  string
}

// AnyValue targets any non-veto outcome.
func AnyValue() Target { return Target{Kind: TargetAnyValue} }

// AnyVeto targets any veto outcome.
func AnyVeto() Target { return Target{Kind: TargetAnyVeto} }

// VetoTarget targets a veto with exactly this message.
func VetoTarget(msg string) Target { return Target{Kind: TargetVeto, Veto: msg} }

// ValueTarget targets outcomes satisfying `outcome <op> v`.
func ValueTarget(op value.CmpOp, v value.Value) Target {
	return Target{Kind: TargetValue, Op: op, Value: v}
}

func (t Target) String() string {
	switch t.Kind {
	case TargetAnyValue:
		return "any value"
	case TargetAnyVeto:
		return "any veto"
	case TargetVeto:
		return fmt.Sprintf("veto %q", t.Veto)
	}
	return fmt.Sprintf("%s %s", t.Op.Symbol(), t.Value)
}

// BranchOutcome is what a surviving branch produces.
type BranchOutcome struct {
	IsVeto  bool
	VetoMsg string
	HasMsg  bool
	Expr    ast.Expr // value branches only
}

func (o BranchOutcome) String() string {
	if o.IsVeto {
		if o.HasMsg {
			return fmt.Sprintf("veto %q", o.VetoMsg)
		}
		return "veto"
	}
	return o.Expr.String()
}

// PiecewiseBranch pairs a guard with the outcome it produces.
type PiecewiseBranch struct {
	Condition ast.Expr      `json:"-"`
	Cond      string        `json:"condition"`
	Outcome   BranchOutcome `json:"-"`
	Out       string        `json:"outcome"`
	// Domain of the piecewise variable within this branch, when the guard
	// reduces to constraints on that single variable.
	Domain Domain `json:"domain"`
}

// RelationshipKind tags a Relationship variant.
type RelationshipKind int

const (
	// RelEquation solves a single fact exactly: fact = rhs.
	RelEquation RelationshipKind = iota
	// RelPiecewise constrains a single fact with guarded branches.
	RelPiecewise
	// RelImplicit is a guard the solver could not reduce.
	RelImplicit
)

// Relationship is one constraint of a Shape.
type Relationship struct {
	Kind RelationshipKind

	// RelEquation
	Fact string
	RHS  ast.Expr

	// RelPiecewise
	Variable string
	Branches []PiecewiseBranch

	// RelImplicit
	Expression ast.Expr
	Outcome    BranchOutcome
}

func (r Relationship) String() string {
	switch r.Kind {
	case RelEquation:
		return fmt.Sprintf("%s = %s", r.Fact, r.RHS)
	case RelPiecewise:
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s:", r.Variable)
		for _, br := range r.Branches {
			fmt.Fprintf(&sb, " [%s -> %s]", br.Condition, br.Outcome)
		}
		return sb.String()
	case RelImplicit:
		return fmt.Sprintf("implicit %s -> %s", r.Expression, r.Outcome)
	}
	return "?"
}

// MarshalJSON renders the relationship in its wire form.
func (r Relationship) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RelEquation:
		return json.Marshal(struct {
			Type string `json:"type"`
			Fact string `json:"fact"`
			RHS  string `json:"rhs"`
		}{"equation", r.Fact, r.RHS.String()})
	case RelPiecewise:
		return json.Marshal(struct {
			Type     string            `json:"type"`
			Variable string            `json:"variable"`
			Branches []PiecewiseBranch `json:"branches"`
		}{"piecewise", r.Variable, r.Branches})
	}
	return json.Marshal(struct {
		Type       string `json:"type"`
		Expression string `json:"expression"`
		Outcome    string `json:"outcome"`
	}{"implicit", r.Expression.String(), r.Outcome.String()})
}

// Shape is the result of inversion: the relationships that must hold over
// the free facts for the rule to produce the target outcome.
type Shape struct {
	Relationships []Relationship `json:"relationships"`
	FreeVariables []string       `json:"free_variables"`
}

func (s *Shape) String() string {
	parts := make([]string, len(s.Relationships))
	for i, r := range s.Relationships {
		parts[i] = r.String()
	}
	return strings.Join(parts, "; ")
}
