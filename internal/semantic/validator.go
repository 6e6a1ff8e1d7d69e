package semantic

import (
	"fmt"
	"strings"

	"github.com/benrogmans/lemma/internal/ast"
	"github.com/benrogmans/lemma/internal/value"
)

// Error is a semantic validation failure: duplicate names, unresolved
// references, type mismatches, cycles. The offending document is rejected.
type Error struct {
	Doc     string
	Message string
	Span    ast.Span
}

func (e *Error) Error() string {
	if e.Span.Line > 0 {
		return fmt.Sprintf("doc %s:%d:%d: %s", e.Doc, e.Span.Line, e.Span.Column, e.Message)
	}
	return fmt.Sprintf("doc %s: %s", e.Doc, e.Message)
}

func errf(doc string, span ast.Span, format string, args ...any) *Error {
	return &Error{Doc: doc, Span: span, Message: fmt.Sprintf(format, args...)}
}

// Type is the inferred static type of an expression. Any marks facts whose
// type cannot be known before evaluation (bare type annotations resolve to
// their declared type; overrides are checked dynamically).
type Type struct {
	Any      bool
	Kind     value.Kind
	Dim      value.Dimension
	Currency string // empty when statically unknown
}

func anyType() Type          { return Type{Any: true} }
func kindType(k value.Kind) Type { return Type{Kind: k} }

func (t Type) String() string {
	if t.Any {
		return "any"
	}
	switch t.Kind {
	case value.KindQuantity:
		return t.Dim.String()
	case value.KindMoney:
		if t.Currency != "" {
			return "money{" + t.Currency + "}"
		}
		return "money"
	}
	return t.Kind.String()
}

// AnnotationType maps the `[name]` annotation vocabulary to a Type.
func AnnotationType(name string) (Type, bool) {
	return typeFromAnnotation(name)
}

// typeFromAnnotation maps the `[name]` annotation vocabulary to a Type.
func typeFromAnnotation(name string) (Type, bool) {
	switch name {
	case "number":
		return kindType(value.KindNumber), true
	case "text":
		return kindType(value.KindText), true
	case "boolean":
		return kindType(value.KindBoolean), true
	case "date":
		return kindType(value.KindDate), true
	case "regex":
		return kindType(value.KindRegex), true
	case "percentage":
		return kindType(value.KindPercentage), true
	case "money":
		return Type{Kind: value.KindMoney}, true
	}
	for _, dim := range []value.Dimension{
		value.DimMass, value.DimLength, value.DimVolume, value.DimDuration,
		value.DimTemperature, value.DimPower, value.DimForce,
		value.DimPressure, value.DimEnergy, value.DimFrequency, value.DimData,
	} {
		if dim.String() == name || (dim == value.DimData && name == "data") {
			return Type{Kind: value.KindQuantity, Dim: dim}, true
		}
	}
	return Type{}, false
}

// TypeOfValue returns the static type of a concrete value.
func TypeOfValue(v value.Value) Type {
	t := Type{Kind: v.Kind, Dim: v.Dim, Currency: v.Currency}
	return t
}

// Validator checks documents against an existing workspace.
type Validator struct {
	Limits Limits
}

// Validate checks newDocs against existing (already validated) documents.
// On success the new documents are fully resolved: fact defaults are folded
// to constants and every reference is known to exist.
func (v *Validator) Validate(existing map[string]*ast.Document, newDocs []*ast.Document) error {
	if v.Limits.MaxDocuments > 0 && len(existing)+len(newDocs) > v.Limits.MaxDocuments {
		return errf("", ast.Span{}, "resource limit exceeded: max_documents is %d", v.Limits.MaxDocuments)
	}

	all := make(map[string]*ast.Document, len(existing)+len(newDocs))
	for name, doc := range existing {
		all[name] = doc
	}
	for _, doc := range newDocs {
		if _, dup := all[doc.Name]; dup {
			return errf(doc.Name, ast.Span{}, "duplicate document name %q", doc.Name)
		}
		all[doc.Name] = doc
	}

	for _, doc := range newDocs {
		if err := v.validateNames(doc); err != nil {
			return err
		}
		if err := v.foldFactDefaults(doc); err != nil {
			return err
		}
	}
	// references and types need every new document registered first
	for _, doc := range newDocs {
		if err := v.validateDocRefs(doc, all); err != nil {
			return err
		}
		if err := v.validateReferences(doc, all); err != nil {
			return err
		}
	}
	for _, doc := range newDocs {
		if err := v.validateCycles(doc, all); err != nil {
			return err
		}
	}
	for _, doc := range newDocs {
		if err := v.validateTypes(doc, all); err != nil {
			return err
		}
	}
	return nil
}

// validateNames rejects duplicate fact names, duplicate rule names, and a
// rule sharing a name with a fact.
func (v *Validator) validateNames(doc *ast.Document) error {
	facts := make(map[string]bool)
	for _, f := range doc.Facts {
		name := f.Name()
		if facts[name] {
			return errf(doc.Name, f.Pos, "duplicate fact %q", name)
		}
		facts[name] = true
	}
	rules := make(map[string]bool)
	for _, r := range doc.Rules {
		if rules[r.Name] {
			return errf(doc.Name, r.Pos, "duplicate rule %q", r.Name)
		}
		if facts[r.Name] {
			return errf(doc.Name, r.Pos, "rule %q conflicts with a fact of the same name", r.Name)
		}
		rules[r.Name] = true
	}
	return nil
}

// foldFactDefaults turns each literal fact's default expression into a
// constant. Defaults may use arithmetic and conversions but not references.
func (v *Validator) foldFactDefaults(doc *ast.Document) error {
	for _, f := range doc.Facts {
		if f.Kind != ast.FactLiteral {
			continue
		}
		refs := ExtractRefs(f.DefaultExpr)
		if len(refs.Facts) > 0 || len(refs.Rules) > 0 {
			return errf(doc.Name, f.Pos, "fact %q default must be a constant expression", f.Name())
		}
		val, ok := ConstFold(f.DefaultExpr)
		if !ok {
			return errf(doc.Name, f.Pos, "fact %q default cannot be evaluated", f.Name())
		}
		if v.Limits.MaxFactValueBytes > 0 && len(val.String()) > v.Limits.MaxFactValueBytes {
			return errf(doc.Name, f.Pos, "resource limit exceeded: fact %q value larger than %d bytes",
				f.Name(), v.Limits.MaxFactValueBytes)
		}
		f.Default = val
		f.HasDefault = true
	}
	return nil
}

// validateDocRefs checks document-reference facts and rejects reference
// cycles between documents.
func (v *Validator) validateDocRefs(doc *ast.Document, all map[string]*ast.Document) error {
	for _, f := range doc.Facts {
		if f.Kind != ast.FactDocRef {
			continue
		}
		if _, ok := all[f.DocName]; !ok {
			return errf(doc.Name, f.Pos, "fact %q references unknown document %q", f.Name(), f.DocName)
		}
	}
	// DFS over the document reference relation
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var path []string
	var dfs func(name string) error
	dfs = func(name string) error {
		color[name] = gray
		path = append(path, name)
		d := all[name]
		if d != nil {
			for _, f := range d.Facts {
				if f.Kind != ast.FactDocRef {
					continue
				}
				switch color[f.DocName] {
				case gray:
					return errf(doc.Name, f.Pos, "circular document reference: %s -> %s",
						strings.Join(path, " -> "), f.DocName)
				case white:
					if err := dfs(f.DocName); err != nil {
						return err
					}
				}
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return nil
	}
	return dfs(doc.Name)
}

// validateReferences checks that every fact and rule reference resolves.
func (v *Validator) validateReferences(doc *ast.Document, all map[string]*ast.Document) error {
	check := func(e ast.Expr, where ast.Span) error {
		refs := ExtractRefs(e)
		for _, path := range refs.Facts {
			if err := v.resolveFactRef(path, doc, all); err != nil {
				return errf(doc.Name, where, "%v", err)
			}
		}
		for _, path := range refs.Rules {
			key, err := ResolveRuleRef(path, doc, all)
			if err != nil {
				return errf(doc.Name, where, "%v", err)
			}
			target, ok := all[key.Doc]
			if !ok || target.Rule(key.Rule) == nil {
				return errf(doc.Name, where, "unknown rule %q", strings.Join(path, "."))
			}
		}
		return nil
	}
	for _, r := range doc.Rules {
		if err := check(r.Base, r.Pos); err != nil {
			return err
		}
		for _, uc := range r.Unless {
			if err := check(uc.Condition, uc.Pos); err != nil {
				return err
			}
			if err := check(uc.Result, uc.Pos); err != nil {
				return err
			}
		}
	}
	// source-level overrides of foreign facts must name a real fact
	for _, f := range doc.Facts {
		if len(f.Path) > 1 {
			if err := v.resolveFactRef(f.Path, doc, all); err != nil {
				return errf(doc.Name, f.Pos, "%v", err)
			}
		}
	}
	return nil
}

// resolveFactRef checks a fact path: a simple name must be a fact of the
// current document; ref.field must go through a doc-reference fact.
func (v *Validator) resolveFactRef(path []string, doc *ast.Document, all map[string]*ast.Document) error {
	name := strings.Join(path, ".")
	switch len(path) {
	case 1:
		if doc.Fact(path[0]) == nil {
			// a rule of the same name is a common slip worth naming
			if doc.Rule(path[0]) != nil {
				return fmt.Errorf("%q is a rule; reference it as %s?", path[0], path[0])
			}
			return fmt.Errorf("unknown fact %q", name)
		}
		return nil
	case 2:
		ref := doc.Fact(path[0])
		if ref == nil || ref.Kind != ast.FactDocRef {
			return fmt.Errorf("%q is not a document reference fact", path[0])
		}
		target := all[ref.DocName]
		if target == nil {
			return fmt.Errorf("unknown document %q", ref.DocName)
		}
		if target.Fact(path[1]) == nil {
			return fmt.Errorf("document %q has no fact %q", ref.DocName, path[1])
		}
		return nil
	}
	return fmt.Errorf("invalid fact reference %q", name)
}

// validateCycles rejects rule dependency cycles, reporting the cycle path.
func (v *Validator) validateCycles(doc *ast.Document, all map[string]*ast.Document) error {
	graph, err := DependencyGraph(doc, all)
	if err != nil {
		return errf(doc.Name, ast.Span{}, "%v", err)
	}
	if cycle := FindCycle(graph); cycle != nil {
		return errf(doc.Name, ast.Span{}, "circular rule dependency: %s", CyclePath(cycle))
	}
	return nil
}

// validateTypes infers every expression's type bottom-up and rejects
// incompatible operations.
func (v *Validator) validateTypes(doc *ast.Document, all map[string]*ast.Document) error {
	inf := &inferencer{doc: doc, all: all, ruleTypes: make(map[RuleKey]Type)}
	for _, r := range doc.Rules {
		if _, err := inf.ruleType(doc, r); err != nil {
			return err
		}
	}
	return nil
}

type inferencer struct {
	doc       *ast.Document
	all       map[string]*ast.Document
	ruleTypes map[RuleKey]Type
}

// ruleType infers and caches a rule's outcome type: the base type, checked
// for consistency against every non-veto clause result.
func (inf *inferencer) ruleType(doc *ast.Document, r *ast.Rule) (Type, error) {
	key := RuleKey{Doc: doc.Name, Rule: r.Name}
	if t, ok := inf.ruleTypes[key]; ok {
		return t, nil
	}

	baseType, err := inf.exprType(doc, r.Base)
	if err != nil {
		return Type{}, err
	}
	outcome := baseType
	if _, isVeto := r.Base.(*ast.Veto); isVeto {
		outcome = anyType()
	}

	for _, uc := range r.Unless {
		condType, err := inf.exprType(doc, uc.Condition)
		if err != nil {
			return Type{}, err
		}
		if !condType.Any && condType.Kind != value.KindBoolean {
			return Type{}, errf(doc.Name, uc.Pos, "unless condition of rule %q must be boolean, got %s",
				r.Name, condType)
		}
		if _, isVeto := uc.Result.(*ast.Veto); isVeto {
			continue
		}
		resType, err := inf.exprType(doc, uc.Result)
		if err != nil {
			return Type{}, err
		}
		if !compatible(outcome, resType) {
			return Type{}, errf(doc.Name, uc.Pos,
				"rule %q branches have incompatible types: %s vs %s", r.Name, outcome, resType)
		}
		if outcome.Any {
			outcome = resType
		}
	}

	inf.ruleTypes[key] = outcome
	return outcome, nil
}

func compatible(a, b Type) bool {
	if a.Any || b.Any {
		return true
	}
	if a.Kind != b.Kind {
		// numbers mix freely with tagged magnitudes in branch results
		return a.Kind == value.KindNumber && b.IsNumericKind() ||
			b.Kind == value.KindNumber && a.IsNumericKind()
	}
	if a.Kind == value.KindQuantity && a.Dim != b.Dim {
		return false
	}
	if a.Kind == value.KindMoney && a.Currency != "" && b.Currency != "" && a.Currency != b.Currency {
		return false
	}
	return true
}

// IsNumericKind reports whether the type carries a decimal magnitude.
func (t Type) IsNumericKind() bool {
	switch t.Kind {
	case value.KindNumber, value.KindPercentage, value.KindQuantity, value.KindMoney:
		return !t.Any
	}
	return false
}

func (inf *inferencer) factType(doc *ast.Document, path []string) (Type, error) {
	var f *ast.Fact
	switch len(path) {
	case 1:
		f = doc.Fact(path[0])
	case 2:
		ref := doc.Fact(path[0])
		if ref != nil && ref.Kind == ast.FactDocRef {
			if target := inf.all[ref.DocName]; target != nil {
				f = target.Fact(path[1])
			}
		}
	}
	if f == nil {
		return anyType(), nil
	}
	switch f.Kind {
	case ast.FactLiteral:
		return TypeOfValue(f.Default), nil
	case ast.FactTypeAnnotation:
		if t, ok := typeFromAnnotation(f.TypeName); ok {
			return t, nil
		}
		return anyType(), nil
	}
	return anyType(), nil
}

func (inf *inferencer) exprType(doc *ast.Document, e ast.Expr) (Type, error) {
	switch n := e.(type) {
	case *ast.Literal:
		return TypeOfValue(n.Value), nil

	case *ast.Veto:
		return anyType(), nil

	case *ast.FactRef:
		return inf.factType(doc, n.Path)

	case *ast.RuleRef:
		key, err := ResolveRuleRef(n.Path, doc, inf.all)
		if err != nil {
			return Type{}, errf(doc.Name, n.Span(), "%v", err)
		}
		if t, ok := inf.ruleTypes[key]; ok {
			return t, nil
		}
		target := inf.all[key.Doc]
		rule := target.Rule(key.Rule)
		return inf.ruleType(target, rule)

	case *ast.HasValue:
		return kindType(value.KindBoolean), nil

	case *ast.Not:
		t, err := inf.exprType(doc, n.Operand)
		if err != nil {
			return Type{}, err
		}
		if !t.Any && t.Kind != value.KindBoolean {
			return Type{}, errf(doc.Name, n.Span(), "not requires a boolean operand, got %s", t)
		}
		return kindType(value.KindBoolean), nil

	case *ast.And:
		return inf.boolPair(doc, n.Left, n.Right, n.Span(), "and")
	case *ast.Or:
		return inf.boolPair(doc, n.Left, n.Right, n.Span(), "or")

	case *ast.Compare:
		lt, err := inf.exprType(doc, n.Left)
		if err != nil {
			return Type{}, err
		}
		rt, err := inf.exprType(doc, n.Right)
		if err != nil {
			return Type{}, err
		}
		if err := checkComparable(lt, rt); err != nil {
			return Type{}, errf(doc.Name, n.Span(), "%v", err)
		}
		return kindType(value.KindBoolean), nil

	case *ast.Arith:
		lt, err := inf.exprType(doc, n.Left)
		if err != nil {
			return Type{}, err
		}
		rt, err := inf.exprType(doc, n.Right)
		if err != nil {
			return Type{}, err
		}
		out, err := arithType(lt, n.Op, rt)
		if err != nil {
			return Type{}, errf(doc.Name, n.Span(), "%v", err)
		}
		return out, nil

	case *ast.Convert:
		t, err := inf.exprType(doc, n.Operand)
		if err != nil {
			return Type{}, err
		}
		switch {
		case n.IsMoney:
			if !t.Any && t.Kind == value.KindMoney && t.Currency != "" && t.Currency != n.Unit {
				return Type{}, errf(doc.Name, n.Span(), "cannot convert %s to %s: currency conversion is not supported",
					t.Currency, n.Unit)
			}
			if !t.Any && t.Kind != value.KindMoney && t.Kind != value.KindNumber {
				return Type{}, errf(doc.Name, n.Span(), "cannot convert %s to money", t)
			}
			return Type{Kind: value.KindMoney, Currency: n.Unit}, nil
		case n.Unit == "percentage":
			return kindType(value.KindPercentage), nil
		default:
			_, dim, _ := value.LookupUnit(n.Unit)
			if !t.Any && t.Kind == value.KindQuantity && t.Dim != dim {
				return Type{}, errf(doc.Name, n.Span(), "cannot convert %s to %s", t.Dim, dim)
			}
			if !t.Any && t.Kind != value.KindQuantity && t.Kind != value.KindNumber {
				return Type{}, errf(doc.Name, n.Span(), "cannot convert %s to %s", t, dim)
			}
			return Type{Kind: value.KindQuantity, Dim: dim}, nil
		}

	case *ast.Math:
		t, err := inf.exprType(doc, n.Operand)
		if err != nil {
			return Type{}, err
		}
		if !t.Any && t.Kind != value.KindNumber && !(n.Func == ast.FuncAbs && t.IsNumericKind()) {
			return Type{}, errf(doc.Name, n.Span(), "%s requires a number operand, got %s", n.Func, t)
		}
		if n.Func == ast.FuncAbs {
			return t, nil
		}
		return kindType(value.KindNumber), nil
	}
	return anyType(), nil
}

func (inf *inferencer) boolPair(doc *ast.Document, left, right ast.Expr, span ast.Span, opName string) (Type, error) {
	lt, err := inf.exprType(doc, left)
	if err != nil {
		return Type{}, err
	}
	rt, err := inf.exprType(doc, right)
	if err != nil {
		return Type{}, err
	}
	if !lt.Any && lt.Kind != value.KindBoolean {
		return Type{}, errf(doc.Name, span, "%s requires boolean operands, got %s", opName, lt)
	}
	if !rt.Any && rt.Kind != value.KindBoolean {
		return Type{}, errf(doc.Name, span, "%s requires boolean operands, got %s", opName, rt)
	}
	return kindType(value.KindBoolean), nil
}

func checkComparable(a, b Type) error {
	if a.Any || b.Any {
		return nil
	}
	if a.Kind == value.KindQuantity && b.Kind == value.KindQuantity && a.Dim != b.Dim {
		return fmt.Errorf("cannot compare %s and %s quantities", a.Dim, b.Dim)
	}
	if a.Kind == value.KindMoney && b.Kind == value.KindMoney &&
		a.Currency != "" && b.Currency != "" && a.Currency != b.Currency {
		return fmt.Errorf("cannot compare different currencies: %s and %s", a.Currency, b.Currency)
	}
	if a.Kind == b.Kind {
		return nil
	}
	if a.IsNumericKind() && b.IsNumericKind() {
		return nil
	}
	// text matches against regex patterns with == and !=
	if (a.Kind == value.KindText && b.Kind == value.KindRegex) ||
		(a.Kind == value.KindRegex && b.Kind == value.KindText) {
		return nil
	}
	return fmt.Errorf("cannot compare %s and %s", a, b)
}

// arithType applies the static side of the arithmetic table.
func arithType(l Type, op value.ArithOp, r Type) (Type, error) {
	if l.Any || r.Any {
		return anyType(), nil
	}
	switch {
	case l.Kind == value.KindNumber && r.Kind == value.KindNumber:
		return kindType(value.KindNumber), nil
	case l.Kind == value.KindMoney && r.Kind == value.KindMoney:
		if l.Currency != "" && r.Currency != "" && l.Currency != r.Currency {
			return Type{}, fmt.Errorf("cannot operate on different currencies: %s and %s", l.Currency, r.Currency)
		}
		if op != value.OpAdd && op != value.OpSub {
			return Type{}, fmt.Errorf("%s is not defined between money values", op)
		}
		return l, nil
	case l.Kind == value.KindMoney && (r.Kind == value.KindNumber || r.Kind == value.KindPercentage):
		return l, nil
	case r.Kind == value.KindMoney && (l.Kind == value.KindNumber || l.Kind == value.KindPercentage):
		return r, nil
	case l.Kind == value.KindQuantity && r.Kind == value.KindQuantity:
		if l.Dim != r.Dim {
			return Type{}, fmt.Errorf("cannot operate on %s and %s quantities", l.Dim, r.Dim)
		}
		return l, nil
	case l.Kind == value.KindQuantity && (r.Kind == value.KindNumber || r.Kind == value.KindPercentage):
		return l, nil
	case r.Kind == value.KindQuantity && (l.Kind == value.KindNumber || l.Kind == value.KindPercentage):
		return r, nil
	case l.Kind == value.KindNumber && r.Kind == value.KindPercentage:
		return l, nil
	case l.Kind == value.KindPercentage && r.Kind == value.KindNumber:
		return r, nil
	case l.Kind == value.KindPercentage && r.Kind == value.KindPercentage:
		return l, nil
	case l.Kind == value.KindDate && r.Kind == value.KindDate:
		if op != value.OpSub {
			return Type{}, fmt.Errorf("%s is not defined between dates", op)
		}
		return Type{Kind: value.KindQuantity, Dim: value.DimDuration}, nil
	case l.Kind == value.KindDate && r.Kind == value.KindQuantity && r.Dim == value.DimDuration:
		return l, nil
	case l.Kind == value.KindQuantity && l.Dim == value.DimDuration && r.Kind == value.KindDate:
		if op != value.OpAdd {
			return Type{}, fmt.Errorf("%s is not defined for duration and date", op)
		}
		return r, nil
	}
	return Type{}, fmt.Errorf("%s is not defined for %s and %s", op, l, r)
}
