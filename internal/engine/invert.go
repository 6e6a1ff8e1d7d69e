package engine

import (
	"strings"

	"github.com/benrogmans/lemma/internal/ast"
	"github.com/benrogmans/lemma/internal/inversion"
	"github.com/benrogmans/lemma/internal/parser"
	"github.com/benrogmans/lemma/internal/semantic"
	"github.com/benrogmans/lemma/internal/value"
)

// Invert derives the Shape of fact assignments under which the rule
// produces the target outcome.
func (w *Workspace) Invert(docName, ruleName string, target inversion.Target, givenFacts []*ast.Fact) (*inversion.Shape, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	givens, err := w.foldGivens(givenFacts)
	if err != nil {
		return nil, err
	}
	shape, err := inversion.Invert(w.docs, docName, ruleName, target, givens)
	if err != nil {
		if invErr, ok := err.(*inversion.Error); ok {
			return nil, &AppError{Code: CodeInversion, Message: invErr.Error()}
		}
		return nil, &AppError{Code: CodeNotFound, Message: err.Error()}
	}
	return shape, nil
}

// ValidDomain returns the admissible values of one fact: everything that
// does not drive the rule into a veto.
func (w *Workspace) ValidDomain(docName, ruleName, factPath string, givenFacts []*ast.Fact) (inversion.Domain, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	givens, err := w.foldGivens(givenFacts)
	if err != nil {
		return inversion.Domain{}, err
	}
	dom, err := inversion.ValidDomain(w.docs, docName, ruleName, factPath, givens)
	if err != nil {
		return inversion.Domain{}, &AppError{Code: CodeInversion, Message: err.Error()}
	}
	return dom, nil
}

func (w *Workspace) foldGivens(facts []*ast.Fact) (map[string]value.Value, error) {
	givens := make(map[string]value.Value, len(facts))
	for _, f := range facts {
		if f.Kind != ast.FactLiteral {
			return nil, Errorf(CodeBadInput, "given fact %q must carry a value", f.Name())
		}
		v, ok := semantic.ConstFold(f.DefaultExpr)
		if !ok {
			return nil, Errorf(CodeBadInput, "given fact %q must be a constant value", f.Name())
		}
		givens[f.Name()] = v
	}
	return givens, nil
}

// ParseTarget parses the CLI/HTTP target notation: "any", "veto",
// "veto:<message>", "<value>", or an operator-prefixed value such as
// ">=100 usd".
func ParseTarget(s string) (inversion.Target, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "any":
		return inversion.AnyValue(), nil
	case s == "veto":
		return inversion.AnyVeto(), nil
	case strings.HasPrefix(s, "veto:"):
		return inversion.VetoTarget(strings.TrimPrefix(s, "veto:")), nil
	}

	op := value.CmpEq
	rest := s
	switch {
	case strings.HasPrefix(s, ">="):
		op, rest = value.CmpGte, s[2:]
	case strings.HasPrefix(s, "<="):
		op, rest = value.CmpLte, s[2:]
	case strings.HasPrefix(s, "!="):
		op, rest = value.CmpNeq, s[2:]
	case strings.HasPrefix(s, ">"):
		op, rest = value.CmpGt, s[1:]
	case strings.HasPrefix(s, "<"):
		op, rest = value.CmpLt, s[1:]
	case strings.HasPrefix(s, "=="):
		rest = s[2:]
	}
	v, err := ParseValue(strings.TrimSpace(rest))
	if err != nil {
		return inversion.Target{}, Errorf(CodeBadInput, "invalid target %q: %v", s, err)
	}
	return inversion.ValueTarget(op, v), nil
}

// ParseValue parses a literal written in Lemma notation ("42", "25%",
// "100 usd", "5 kilograms", "2024-01-15", `"text"`, "true").
func ParseValue(s string) (value.Value, error) {
	facts, err := parseLiteralFact(s)
	if err != nil {
		return value.Value{}, err
	}
	return facts, nil
}

func parseLiteralFact(s string) (value.Value, error) {
	facts, err := parser.ParseFacts([]string{"target = " + s})
	if err != nil {
		return value.Value{}, err
	}
	v, ok := semantic.ConstFold(facts[0].DefaultExpr)
	if !ok {
		return value.Value{}, Errorf(CodeBadInput, "not a constant value: %s", s)
	}
	return v, nil
}
