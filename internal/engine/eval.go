package engine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/benrogmans/lemma/internal/ast"
	"github.com/benrogmans/lemma/internal/semantic"
	"github.com/benrogmans/lemma/internal/value"
)

// missingFactsError aborts evaluation of a single rule when a required fact
// has no value. Other rules continue.
type missingFactsError struct {
	facts []string
}

func (e *missingFactsError) Error() string {
	return "missing facts: " + strings.Join(e.facts, ", ")
}

// runtimeError is an evaluation failure that converts to a veto on the
// enclosing rule: division by zero, invalid conversions, bad regexes.
type runtimeError struct {
	kind   string
	detail string
}

func (e *runtimeError) Error() string { return e.kind + ": " + e.detail }

// ruleState is the memoised outcome of one rule within a single call.
type ruleState struct {
	outcome Outcome
	missing []string // non-nil when the rule could not run
	trace   []TraceRecord
}

// evalContext carries all per-call state: fact scopes, memoised rule
// outcomes, the current trace buffer and the deadline. It is never shared
// between calls.
type evalContext struct {
	docs     map[string]*ast.Document
	scopes   map[string]map[string]value.Value
	states   map[semantic.RuleKey]*ruleState
	trace    []TraceRecord
	deadline time.Time
	limits   semantic.Limits
}

func (c *evalContext) checkDeadline() error {
	if !c.deadline.IsZero() && time.Now().After(c.deadline) {
		return TimeoutError(c.limits.EvaluationTimeout.String())
	}
	return nil
}

// record appends a trace entry. The deadline is also enforced here so a
// runaway expression cannot outlive the budget between rule boundaries.
func (c *evalContext) record(rec TraceRecord) error {
	if err := c.checkDeadline(); err != nil {
		return err
	}
	c.trace = append(c.trace, rec)
	return nil
}

// scope returns the fact map for a document.
func (c *evalContext) scope(docName string) map[string]value.Value {
	return c.scopes[docName]
}

// buildFactScope resolves a document's facts to concrete values: literal
// defaults directly, doc-reference facts by importing the referenced
// document's scope under the alias prefix. Facts declared by annotation only
// stay absent until overridden.
func buildFactScope(doc *ast.Document, docs map[string]*ast.Document, scopes map[string]map[string]value.Value) map[string]value.Value {
	if s, ok := scopes[doc.Name]; ok {
		return s
	}
	scope := make(map[string]value.Value)
	scopes[doc.Name] = scope
	for _, f := range doc.Facts {
		switch f.Kind {
		case ast.FactLiteral:
			scope[f.Name()] = f.Default
		case ast.FactDocRef:
			ref := docs[f.DocName]
			if ref == nil {
				continue
			}
			inner := buildFactScope(ref, docs, scopes)
			for name, v := range inner {
				scope[f.Name()+"."+name] = v
			}
		}
	}
	return scope
}

// evalRule computes (and memoises) a rule's outcome.
//
// Unless clauses are examined in reverse source order and the first matching
// clause wins; earlier clauses and the base expression are then never
// evaluated for their value. This makes the ordering observable through veto
// reachability: a veto in the base expression is avoided whenever a later
// clause matches.
func (c *evalContext) evalRule(key semantic.RuleKey) (*ruleState, error) {
	if st, ok := c.states[key]; ok {
		return st, nil
	}
	if err := c.checkDeadline(); err != nil {
		return nil, err
	}

	doc := c.docs[key.Doc]
	rule := doc.Rule(key.Rule)
	if rule == nil {
		return nil, NotFoundError("rule", key.String())
	}
	buildFactScope(doc, c.docs, c.scopes)

	// dependencies that could not run poison this rule with the union of
	// their missing facts
	var missing []string
	seen := make(map[string]bool)
	for _, ref := range semantic.RuleRefs(rule).Rules {
		depKey, err := semantic.ResolveRuleRef(ref, doc, c.docs)
		if err != nil {
			return nil, Errorf(CodeSemantic, "%v", err)
		}
		dep, err := c.evalRule(depKey)
		if err != nil {
			return nil, err
		}
		for _, f := range dep.missing {
			if !seen[f] {
				seen[f] = true
				missing = append(missing, f)
			}
		}
	}
	if len(missing) > 0 {
		st := &ruleState{missing: missing}
		c.states[key] = st
		return st, nil
	}

	savedTrace := c.trace
	c.trace = nil
	outcome, err := c.evalRuleBody(doc, rule)
	trace := c.trace
	c.trace = savedTrace

	if err != nil {
		var mf *missingFactsError
		if asMissing(err, &mf) {
			st := &ruleState{missing: mf.facts}
			c.states[key] = st
			return st, nil
		}
		var rt *runtimeError
		if asRuntime(err, &rt) {
			// runtime failures veto the rule that raised them
			outcome = VetoOutcome(rt.kind+": "+rt.detail, true)
		} else {
			return nil, err
		}
	}

	st := &ruleState{outcome: outcome, trace: trace}
	c.states[key] = st
	return st, nil
}

func asMissing(err error, target **missingFactsError) bool {
	mf, ok := err.(*missingFactsError)
	if ok {
		*target = mf
	}
	return ok
}

func asRuntime(err error, target **runtimeError) bool {
	rt, ok := err.(*runtimeError)
	if ok {
		*target = rt
	}
	return ok
}

func (c *evalContext) evalRuleBody(doc *ast.Document, rule *ast.Rule) (Outcome, error) {
	for i := len(rule.Unless) - 1; i >= 0; i-- {
		uc := rule.Unless[i]
		cond, err := c.evalExpr(doc, uc.Condition)
		if err != nil {
			return Outcome{}, err
		}
		if cond.Vetoed {
			return c.finish(cond)
		}
		if cond.Value.Kind != value.KindBoolean {
			return Outcome{}, &runtimeError{"type error", "unless condition must evaluate to boolean"}
		}
		idx := i
		if !cond.Value.Bool {
			if err := c.record(TraceRecord{Type: "unless_clause_skipped", Index: &idx}); err != nil {
				return Outcome{}, err
			}
			continue
		}
		if err := c.record(TraceRecord{Type: "unless_clause_matched", Index: &idx}); err != nil {
			return Outcome{}, err
		}
		outcome, err := c.evalExpr(doc, uc.Result)
		if err != nil {
			return Outcome{}, err
		}
		return c.finish(outcome)
	}

	outcome, err := c.evalExpr(doc, rule.Base)
	if err != nil {
		return Outcome{}, err
	}
	return c.finish(outcome)
}

func (c *evalContext) finish(outcome Outcome) (Outcome, error) {
	rec := TraceRecord{Type: "final_result"}
	if outcome.Vetoed {
		msg := outcome.Message
		rec.Veto = &msg
	} else {
		v := outcome.Value
		rec.Value = &v
	}
	if err := c.record(rec); err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

// evalExpr evaluates an expression to an outcome. Vetoes flow through every
// operator: any operand that was vetoed vetoes the whole expression.
func (c *evalContext) evalExpr(doc *ast.Document, e ast.Expr) (Outcome, error) {
	switch n := e.(type) {
	case *ast.Literal:
		return ValueOutcome(n.Value), nil

	case *ast.Veto:
		return VetoOutcome(n.Message, n.HasMsg), nil

	case *ast.FactRef:
		name := strings.Join(n.Path, ".")
		v, ok := c.scope(doc.Name)[name]
		if !ok {
			return Outcome{}, &missingFactsError{facts: []string{name}}
		}
		if err := c.record(TraceRecord{Type: "fact_used", Name: name, Value: &v}); err != nil {
			return Outcome{}, err
		}
		return ValueOutcome(v), nil

	case *ast.RuleRef:
		key, err := semantic.ResolveRuleRef(n.Path, doc, c.docs)
		if err != nil {
			return Outcome{}, Errorf(CodeSemantic, "%v", err)
		}
		st, err := c.evalRule(key)
		if err != nil {
			return Outcome{}, err
		}
		if st.missing != nil {
			return Outcome{}, &missingFactsError{facts: st.missing}
		}
		rec := TraceRecord{Type: "rule_resolved", Name: strings.Join(n.Path, ".")}
		if st.outcome.Vetoed {
			msg := st.outcome.Message
			rec.Veto = &msg
		} else {
			v := st.outcome.Value
			rec.Value = &v
		}
		if err := c.record(rec); err != nil {
			return Outcome{}, err
		}
		// a vetoed dependency vetoes this expression because it was read
		return st.outcome, nil

	case *ast.HasValue:
		name := strings.Join(n.Fact, ".")
		_, bound := c.scope(doc.Name)[name]
		if n.Negated {
			bound = !bound
		}
		return ValueOutcome(value.Boolean(bound)), nil

	case *ast.And:
		left, err := c.evalExpr(doc, n.Left)
		if err != nil || left.Vetoed {
			return left, err
		}
		if left.Value.Kind != value.KindBoolean {
			return Outcome{}, &runtimeError{"type error", "and requires boolean operands"}
		}
		if !left.Value.Bool {
			return ValueOutcome(value.Boolean(false)), nil
		}
		right, err := c.evalExpr(doc, n.Right)
		if err != nil || right.Vetoed {
			return right, err
		}
		if right.Value.Kind != value.KindBoolean {
			return Outcome{}, &runtimeError{"type error", "and requires boolean operands"}
		}
		return ValueOutcome(value.Boolean(right.Value.Bool)), nil

	case *ast.Or:
		left, err := c.evalExpr(doc, n.Left)
		if err != nil || left.Vetoed {
			return left, err
		}
		if left.Value.Kind != value.KindBoolean {
			return Outcome{}, &runtimeError{"type error", "or requires boolean operands"}
		}
		if left.Value.Bool {
			return ValueOutcome(value.Boolean(true)), nil
		}
		right, err := c.evalExpr(doc, n.Right)
		if err != nil || right.Vetoed {
			return right, err
		}
		if right.Value.Kind != value.KindBoolean {
			return Outcome{}, &runtimeError{"type error", "or requires boolean operands"}
		}
		return ValueOutcome(value.Boolean(right.Value.Bool)), nil

	case *ast.Not:
		inner, err := c.evalExpr(doc, n.Operand)
		if err != nil || inner.Vetoed {
			return inner, err
		}
		if inner.Value.Kind != value.KindBoolean {
			return Outcome{}, &runtimeError{"type error", "not requires a boolean operand"}
		}
		return ValueOutcome(value.Boolean(!inner.Value.Bool)), nil

	case *ast.Arith:
		left, err := c.evalExpr(doc, n.Left)
		if err != nil || left.Vetoed {
			return left, err
		}
		right, err := c.evalExpr(doc, n.Right)
		if err != nil || right.Vetoed {
			return right, err
		}
		result, err := value.Arithmetic(left.Value, n.Op, right.Value)
		if err != nil {
			return Outcome{}, &runtimeError{n.Op.String(), err.Error()}
		}
		if err := c.record(TraceRecord{
			Type:      "operation_executed",
			Operation: n.Op.String(),
			Operands:  []value.Value{left.Value, right.Value},
			Result:    &result,
		}); err != nil {
			return Outcome{}, err
		}
		return ValueOutcome(result), nil

	case *ast.Compare:
		left, err := c.evalExpr(doc, n.Left)
		if err != nil || left.Vetoed {
			return left, err
		}
		right, err := c.evalExpr(doc, n.Right)
		if err != nil || right.Vetoed {
			return right, err
		}
		matched, err := c.compare(left.Value, n.Op, right.Value)
		if err != nil {
			return Outcome{}, err
		}
		result := value.Boolean(matched)
		if err := c.record(TraceRecord{
			Type:      "operation_executed",
			Operation: n.Op.String(),
			Operands:  []value.Value{left.Value, right.Value},
			Result:    &result,
		}); err != nil {
			return Outcome{}, err
		}
		return ValueOutcome(result), nil

	case *ast.Convert:
		inner, err := c.evalExpr(doc, n.Operand)
		if err != nil || inner.Vetoed {
			return inner, err
		}
		result, err := semantic.FoldConvert(inner.Value, n)
		if err != nil {
			return Outcome{}, &runtimeError{"conversion error", err.Error()}
		}
		if err := c.record(TraceRecord{
			Type:      "operation_executed",
			Operation: "convert",
			Operands:  []value.Value{inner.Value},
			Result:    &result,
		}); err != nil {
			return Outcome{}, err
		}
		return ValueOutcome(result), nil

	case *ast.Math:
		inner, err := c.evalExpr(doc, n.Operand)
		if err != nil || inner.Vetoed {
			return inner, err
		}
		result, err := semantic.ApplyMath(n.Func, inner.Value)
		if err != nil {
			return Outcome{}, &runtimeError{"math error", err.Error()}
		}
		if err := c.record(TraceRecord{
			Type:      "operation_executed",
			Operation: string(n.Func),
			Operands:  []value.Value{inner.Value},
			Result:    &result,
		}); err != nil {
			return Outcome{}, err
		}
		return ValueOutcome(result), nil
	}

	return Outcome{}, fmt.Errorf("unknown expression node %T", e)
}

// compare extends the value comparison table with regex matching: a text
// compared to a regex matches when the pattern is found in the text.
func (c *evalContext) compare(left value.Value, op value.CmpOp, right value.Value) (bool, error) {
	if left.Kind == value.KindRegex || right.Kind == value.KindRegex {
		pattern, text := left, right
		if right.Kind == value.KindRegex {
			pattern, text = right, left
		}
		if text.Kind != value.KindText {
			return false, &runtimeError{"type error", "regex comparison requires a text operand"}
		}
		if op != value.CmpEq && op != value.CmpNeq {
			return false, &runtimeError{"type error", "regex comparison only supports equality"}
		}
		re, err := regexp.Compile(pattern.Str)
		if err != nil {
			return false, &runtimeError{"regex error", err.Error()}
		}
		matched := re.MatchString(text.Str)
		if op == value.CmpNeq {
			matched = !matched
		}
		return matched, nil
	}
	matched, err := value.Compare(left, op, right)
	if err != nil {
		return false, &runtimeError{"comparison error", err.Error()}
	}
	return matched, nil
}
