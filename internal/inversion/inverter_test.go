package inversion

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/benrogmans/lemma/internal/ast"
	"github.com/benrogmans/lemma/internal/parser"
	"github.com/benrogmans/lemma/internal/semantic"
	"github.com/benrogmans/lemma/internal/value"
)

func docsOf(t *testing.T, src string) map[string]*ast.Document {
	t.Helper()
	parsed, err := parser.Parse(src, "<test>", parser.Options{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	docs := make(map[string]*ast.Document)
	v := &semantic.Validator{Limits: semantic.DefaultLimits()}
	if err := v.Validate(docs, parsed); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	for _, d := range parsed {
		docs[d.Name] = d
	}
	return docs
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

const shippingCostDoc = `doc freight
fact weight = [number]
rule shipping_cost = 5 EUR
  unless weight >= 10 then 10 EUR
  unless weight >= 50 then 25 EUR
  unless weight < 0 then veto "invalid"
  unless weight > 100 then veto "too heavy"`

func TestInvertPiecewiseValue(t *testing.T) {
	docs := docsOf(t, shippingCostDoc)
	shape, err := Invert(docs, "freight", "shipping_cost",
		ValueTarget(value.CmpEq, value.Money(dec("25"), "EUR")), nil)
	if err != nil {
		t.Fatalf("invert failed: %v", err)
	}
	if len(shape.Relationships) != 1 {
		t.Fatalf("expected one relationship, got %d", len(shape.Relationships))
	}
	rel := shape.Relationships[0]
	if rel.Kind != RelPiecewise || rel.Variable != "weight" {
		t.Fatalf("expected piecewise over weight, got %+v", rel)
	}
	if len(rel.Branches) != 1 {
		t.Fatalf("expected one branch, got %d", len(rel.Branches))
	}
	dom := rel.Branches[0].Domain
	if dom.Kind != DomainRange {
		t.Fatalf("expected a range, got %s", dom)
	}
	if dom.Min.Kind != Inclusive || dom.Min.Value.String() != "50" {
		t.Fatalf("lower bound wrong: %s", dom)
	}
	if dom.Max.Kind != Inclusive || dom.Max.Value.String() != "100" {
		t.Fatalf("upper bound wrong: %s", dom)
	}
	if len(shape.FreeVariables) != 1 || shape.FreeVariables[0] != "weight" {
		t.Fatalf("free variables wrong: %v", shape.FreeVariables)
	}
}

func TestInvertVetoMessage(t *testing.T) {
	docs := docsOf(t, shippingCostDoc)
	shape, err := Invert(docs, "freight", "shipping_cost", VetoTarget("too heavy"), nil)
	if err != nil {
		t.Fatalf("invert failed: %v", err)
	}
	rel := shape.Relationships[0]
	if rel.Kind != RelPiecewise {
		t.Fatalf("expected piecewise, got %+v", rel)
	}
	dom := rel.Branches[0].Domain
	if dom.Kind != DomainRange || dom.Min.Kind != Exclusive || dom.Min.Value.String() != "100" {
		t.Fatalf("expected (100, +inf), got %s", dom)
	}
	if !rel.Branches[0].Outcome.IsVeto {
		t.Fatal("expected veto outcome")
	}
}

func TestValidDomainComplementsVetoRegions(t *testing.T) {
	docs := docsOf(t, shippingCostDoc)
	dom, err := ValidDomain(docs, "freight", "shipping_cost", "weight", nil)
	if err != nil {
		t.Fatalf("ValidDomain failed: %v", err)
	}
	if dom.Kind != DomainRange {
		t.Fatalf("expected range, got %s", dom)
	}
	if dom.Min.Kind != Inclusive || dom.Min.Value.String() != "0" {
		t.Fatalf("lower bound wrong: %s", dom)
	}
	if dom.Max.Kind != Inclusive || dom.Max.Value.String() != "100" {
		t.Fatalf("upper bound wrong: %s", dom)
	}
}

func TestValidDomainWithoutVetoesIsUnconstrained(t *testing.T) {
	docs := docsOf(t, `doc simple
fact x = [number]
rule doubled = x * 2`)
	dom, err := ValidDomain(docs, "simple", "doubled", "x", nil)
	if err != nil {
		t.Fatalf("ValidDomain failed: %v", err)
	}
	if dom.Kind != DomainUnconstrained {
		t.Fatalf("expected unconstrained, got %s", dom)
	}
}

func TestInvertSolvesLinearEquation(t *testing.T) {
	docs := docsOf(t, `doc pricing
fact quantity = [number]
rule total = quantity * 3 + 10`)
	shape, err := Invert(docs, "pricing", "total",
		ValueTarget(value.CmpEq, value.Number(dec("40"))), nil)
	if err != nil {
		t.Fatalf("invert failed: %v", err)
	}
	rel := shape.Relationships[0]
	if rel.Kind != RelEquation || rel.Fact != "quantity" {
		t.Fatalf("expected equation for quantity, got %+v", rel)
	}
	lit, ok := rel.RHS.(*ast.Literal)
	if !ok {
		t.Fatalf("rhs did not fold to a literal: %s", rel.RHS)
	}
	if !lit.Value.Num.Equal(dec("10")) {
		t.Fatalf("quantity = %s, want 10", lit.Value)
	}
}

func TestInvertSolvesWithGivens(t *testing.T) {
	docs := docsOf(t, `doc pricing
fact quantity = [number]
fact unit_price = [number]
rule total = quantity * unit_price`)
	givens := map[string]value.Value{"unit_price": value.Number(dec("4"))}
	shape, err := Invert(docs, "pricing", "total",
		ValueTarget(value.CmpEq, value.Number(dec("20"))), givens)
	if err != nil {
		t.Fatalf("invert failed: %v", err)
	}
	rel := shape.Relationships[0]
	if rel.Kind != RelEquation {
		t.Fatalf("expected equation, got %+v", rel)
	}
	lit, ok := rel.RHS.(*ast.Literal)
	if !ok || !lit.Value.Num.Equal(dec("5")) {
		t.Fatalf("quantity = %s, want 5", rel.RHS)
	}
	for _, fv := range shape.FreeVariables {
		if fv == "unit_price" {
			t.Fatal("given fact listed as free variable")
		}
	}
}

func TestInvertDivisionAndSubtraction(t *testing.T) {
	docs := docsOf(t, `doc algebra
fact x = [number]
rule r = (100 - x) / 4`)
	shape, err := Invert(docs, "algebra", "r",
		ValueTarget(value.CmpEq, value.Number(dec("20"))), nil)
	if err != nil {
		t.Fatalf("invert failed: %v", err)
	}
	rel := shape.Relationships[0]
	lit, ok := rel.RHS.(*ast.Literal)
	if rel.Kind != RelEquation || !ok || !lit.Value.Num.Equal(dec("20")) {
		// 100 - x = 80  =>  x = 20
		t.Fatalf("x = %s, want 20", rel.RHS)
	}
}

func TestInvertUnreachableTarget(t *testing.T) {
	docs := docsOf(t, shippingCostDoc)
	_, err := Invert(docs, "freight", "shipping_cost",
		ValueTarget(value.CmpEq, value.Money(dec("99"), "EUR")), nil)
	invErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected inversion error, got %v", err)
	}
	if len(invErr.Available) == 0 {
		t.Fatal("expected available outcomes in the error")
	}
}

func TestInvertUnknownVetoMessage(t *testing.T) {
	docs := docsOf(t, shippingCostDoc)
	if _, err := Invert(docs, "freight", "shipping_cost", VetoTarget("no such veto"), nil); err == nil {
		t.Fatal("expected inversion error for unknown veto message")
	}
}

func TestInvertAnyValue(t *testing.T) {
	docs := docsOf(t, shippingCostDoc)
	shape, err := Invert(docs, "freight", "shipping_cost", AnyValue(), nil)
	if err != nil {
		t.Fatalf("invert failed: %v", err)
	}
	if len(shape.Relationships) == 0 {
		t.Fatal("expected relationships for any-value target")
	}
	for _, rel := range shape.Relationships {
		if rel.Kind == RelPiecewise {
			for _, br := range rel.Branches {
				if br.Outcome.IsVeto {
					t.Fatalf("veto branch survived any-value filter: %+v", br)
				}
			}
		}
	}
}

func TestHydrateDropsSatisfiedGuards(t *testing.T) {
	docs := docsOf(t, `doc promo
fact is_vip = [boolean]
fact quantity = [number]
rule discount = 0%
  unless is_vip then 25%`)
	givens := map[string]value.Value{"is_vip": value.Boolean(true)}
	shape, err := Invert(docs, "promo", "discount",
		ValueTarget(value.CmpEq, value.Percentage(dec("25"))), givens)
	if err != nil {
		t.Fatalf("invert failed: %v", err)
	}
	if len(shape.FreeVariables) != 0 {
		t.Fatalf("expected no free variables, got %v", shape.FreeVariables)
	}
}

func TestBooleanSimplification(t *testing.T) {
	h := &hydrator{givens: map[string]value.Value{}}

	a := &ast.FactRef{Path: []string{"a"}}
	b := &ast.FactRef{Path: []string{"b"}}

	// not (a and b) == (not a) or (not b)
	simplified := h.simplify(not(and(a, b)))
	orNode, ok := simplified.(*ast.Or)
	if !ok {
		t.Fatalf("expected or after De Morgan, got %T", simplified)
	}
	if _, ok := orNode.Left.(*ast.Not); !ok {
		t.Fatalf("expected negated left operand, got %T", orNode.Left)
	}

	// x and true == x
	if got := h.simplify(and(a, boolLit(true))); !exprEqual(got, a) {
		t.Fatalf("a and true did not reduce: %v", got)
	}
	// x or true == true
	if got := h.simplify(or(a, boolLit(true))); !isBoolLit(got, true) {
		t.Fatalf("a or true did not reduce: %v", got)
	}

	// negated comparison flips the operator
	cmp := &ast.Compare{Left: a, Op: value.CmpGt, Right: b}
	flipped, ok := h.simplify(not(cmp)).(*ast.Compare)
	if !ok || flipped.Op != value.CmpLte {
		t.Fatalf("not (a > b) should become a <= b, got %v", flipped)
	}
}

func TestCanonicalisationPutsVariableLeft(t *testing.T) {
	h := &hydrator{givens: map[string]value.Value{}}
	x := &ast.FactRef{Path: []string{"x"}}
	cmp := &ast.Compare{Left: lit(value.NumberFromInt(5)), Op: value.CmpLt, Right: x}
	out, ok := h.simplify(cmp).(*ast.Compare)
	if !ok {
		t.Fatal("expected comparison")
	}
	if _, isRef := out.Left.(*ast.FactRef); !isRef || out.Op != value.CmpGt {
		t.Fatalf("5 < x should canonicalise to x > 5, got %s", out)
	}
}

func TestDomainNormalisation(t *testing.T) {
	ten := value.NumberFromInt(10)
	twenty := value.NumberFromInt(20)

	// complement of (10, +inf) is (-inf, 10]
	comp := Complement(RangeDomain(Bound{Exclusive, ten}, Bound{Kind: Unbounded})).Normalize()
	if comp.Kind != DomainRange || comp.Max.Kind != Inclusive || comp.Max.Value.String() != "10" {
		t.Fatalf("unexpected complement %s", comp)
	}

	// overlapping ranges merge
	merged := UnionDomains(
		RangeDomain(Bound{Inclusive, ten}, Bound{Kind: Unbounded}),
		RangeDomain(Bound{Inclusive, twenty}, Bound{Kind: Unbounded}))
	if merged.Kind != DomainRange || merged.Min.Value.String() != "10" {
		t.Fatalf("unexpected union %s", merged)
	}

	// intersection narrows
	narrow := IntersectDomains(
		RangeDomain(Bound{Inclusive, ten}, Bound{Kind: Unbounded}),
		RangeDomain(Bound{Kind: Unbounded}, Bound{Inclusive, twenty}))
	if narrow.Kind != DomainRange ||
		narrow.Min.Value.String() != "10" || narrow.Max.Value.String() != "20" {
		t.Fatalf("unexpected intersection %s", narrow)
	}

	// disjoint equalities become an enumeration
	enum := UnionDomains(Enumeration(ten), Enumeration(twenty))
	if enum.Kind != DomainEnumeration || len(enum.Values) != 2 {
		t.Fatalf("unexpected enumeration %s", enum)
	}
}
