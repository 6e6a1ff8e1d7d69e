package parser

import (
	"strings"
	"testing"

	"github.com/benrogmans/lemma/internal/ast"
	"github.com/benrogmans/lemma/internal/value"
)

func mustParse(t *testing.T, src string) []*ast.Document {
	t.Helper()
	docs, err := Parse(src, "<test>", Options{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return docs
}

func TestParseSimpleDocument(t *testing.T) {
	docs := mustParse(t, "doc person\nfact name = \"John\"\nfact age = 25")
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].Name != "person" {
		t.Fatalf("expected doc person, got %s", docs[0].Name)
	}
	if len(docs[0].Facts) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(docs[0].Facts))
	}
}

func TestParseHierarchicalDocName(t *testing.T) {
	docs := mustParse(t, "doc contracts/employment/jack\nfact name = \"Jack\"")
	if docs[0].Name != "contracts/employment/jack" {
		t.Fatalf("unexpected name %s", docs[0].Name)
	}
}

func TestParseCommentary(t *testing.T) {
	docs := mustParse(t, "doc person\n\"\"\"\nA markdown comment with **bold** text\n\"\"\"\nfact name = \"John\"")
	if !strings.Contains(docs[0].Commentary, "**bold**") {
		t.Fatalf("commentary not preserved: %q", docs[0].Commentary)
	}
}

func TestParseMultipleDocuments(t *testing.T) {
	docs := mustParse(t, "doc person\nfact name = \"John\"\n\ndoc company\nfact name = \"Acme\"")
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].Name != "person" || docs[1].Name != "company" {
		t.Fatalf("unexpected names %s, %s", docs[0].Name, docs[1].Name)
	}
}

func TestParseRuleWithUnlessClauses(t *testing.T) {
	docs := mustParse(t, `doc test
rule is_eligible = age >= 18 and have license
unless emergency_mode then true
unless system_override then accept`)
	rule := docs[0].Rules[0]
	if rule.Name != "is_eligible" {
		t.Fatalf("unexpected rule name %s", rule.Name)
	}
	if len(rule.Unless) != 2 {
		t.Fatalf("expected 2 unless clauses, got %d", len(rule.Unless))
	}
	if lit, ok := rule.Unless[1].Result.(*ast.Literal); !ok || !lit.Value.Bool {
		t.Fatalf("expected accept to parse as boolean true, got %v", rule.Unless[1].Result)
	}
}

func TestParseVetoClause(t *testing.T) {
	docs := mustParse(t, `doc test
rule checked = weight unless weight < 0 then veto "Weight cannot be negative"`)
	veto, ok := docs[0].Rules[0].Unless[0].Result.(*ast.Veto)
	if !ok {
		t.Fatalf("expected veto result, got %T", docs[0].Rules[0].Unless[0].Result)
	}
	if veto.Message != "Weight cannot be negative" || !veto.HasMsg {
		t.Fatalf("unexpected veto %+v", veto)
	}
}

func TestParseVetoWithoutMessage(t *testing.T) {
	docs := mustParse(t, "doc test\nrule checked = x unless x < 0 then veto")
	veto, ok := docs[0].Rules[0].Unless[0].Result.(*ast.Veto)
	if !ok || veto.HasMsg {
		t.Fatalf("expected bare veto, got %+v", docs[0].Rules[0].Unless[0].Result)
	}
}

func TestLiteralKinds(t *testing.T) {
	cases := []struct {
		src  string
		kind value.Kind
	}{
		{"42", value.KindNumber},
		{"3.14", value.KindNumber},
		{"-5", value.KindNumber},
		{"1.23e+5", value.KindNumber},
		{"6.022e23", value.KindNumber},
		{"\"hello\"", value.KindText},
		{"true", value.KindBoolean},
		{"no", value.KindBoolean},
		{"reject", value.KindBoolean},
		{"25%", value.KindPercentage},
		{"0.5%", value.KindPercentage},
		{"100 USD", value.KindMoney},
		{"200 eur", value.KindMoney},
		{"5 kilograms", value.KindQuantity},
		{"1 kilogram", value.KindQuantity},
		{"3 weeks", value.KindQuantity},
		{"2024-01-15", value.KindDate},
		{"2024-01-15T14:30:00Z", value.KindDate},
		{"2024-01-15T14:30:00+01:00", value.KindDate},
		{"/[a-z]+/", value.KindRegex},
	}
	for _, tc := range cases {
		docs, err := Parse("doc test\nfact probe = "+tc.src, "<test>", Options{})
		if err != nil {
			t.Fatalf("parse %q: %v", tc.src, err)
		}
		lit, ok := docs[0].Facts[0].DefaultExpr.(*ast.Literal)
		if !ok {
			t.Fatalf("%q did not parse to a literal, got %T", tc.src, docs[0].Facts[0].DefaultExpr)
		}
		if lit.Value.Kind != tc.kind {
			t.Fatalf("%q parsed as %s, want %s", tc.src, lit.Value.Kind, tc.kind)
		}
	}
}

func TestRegexEscapedSlash(t *testing.T) {
	docs := mustParse(t, `doc test
fact pattern = /hello\/world/`)
	lit := docs[0].Facts[0].DefaultExpr.(*ast.Literal)
	if lit.Value.Str != "hello/world" {
		t.Fatalf("unexpected pattern %q", lit.Value.Str)
	}
}

func TestStringEscapes(t *testing.T) {
	docs := mustParse(t, `doc test
fact s = "line\nnext\t\"quoted\" é"`)
	lit := docs[0].Facts[0].DefaultExpr.(*ast.Literal)
	want := "line\nnext\t\"quoted\" é"
	if lit.Value.Str != want {
		t.Fatalf("got %q, want %q", lit.Value.Str, want)
	}
}

func TestTypeAnnotations(t *testing.T) {
	docs := mustParse(t, "doc test\nfact weight = [mass]\nfact count = [number]\nfact employee = doc people/alice")
	if docs[0].Facts[0].Kind != ast.FactTypeAnnotation || docs[0].Facts[0].TypeName != "mass" {
		t.Fatalf("unexpected annotation fact %+v", docs[0].Facts[0])
	}
	if docs[0].Facts[2].Kind != ast.FactDocRef || docs[0].Facts[2].DocName != "people/alice" {
		t.Fatalf("unexpected doc ref fact %+v", docs[0].Facts[2])
	}
}

func TestPrecedence(t *testing.T) {
	docs := mustParse(t, "doc test\nrule r = 1 + 2 * 3")
	arith, ok := docs[0].Rules[0].Base.(*ast.Arith)
	if !ok || arith.Op != value.OpAdd {
		t.Fatalf("expected top-level add, got %v", docs[0].Rules[0].Base)
	}
	if inner, ok := arith.Right.(*ast.Arith); !ok || inner.Op != value.OpMul {
		t.Fatalf("expected multiply on the right, got %v", arith.Right)
	}
}

func TestPowerIsRightAssociative(t *testing.T) {
	docs := mustParse(t, "doc test\nrule r = 2 ^ 3 ^ 2")
	outer := docs[0].Rules[0].Base.(*ast.Arith)
	if outer.Op != value.OpPow {
		t.Fatalf("expected power, got %s", outer.Op)
	}
	if inner, ok := outer.Right.(*ast.Arith); !ok || inner.Op != value.OpPow {
		t.Fatalf("expected right-nested power, got %v", outer.Right)
	}
}

func TestComparisonBindsLooserThanAdditive(t *testing.T) {
	docs := mustParse(t, "doc test\nrule r = income - 100 > 50")
	cmp, ok := docs[0].Rules[0].Base.(*ast.Compare)
	if !ok || cmp.Op != value.CmpGt {
		t.Fatalf("expected comparison at top, got %v", docs[0].Rules[0].Base)
	}
	if _, ok := cmp.Left.(*ast.Arith); !ok {
		t.Fatalf("expected subtraction on the left, got %T", cmp.Left)
	}
}

func TestBooleanPrecedence(t *testing.T) {
	docs := mustParse(t, "doc test\nrule r = a or b and c")
	or, ok := docs[0].Rules[0].Base.(*ast.Or)
	if !ok {
		t.Fatalf("expected or at top, got %T", docs[0].Rules[0].Base)
	}
	if _, ok := or.Right.(*ast.And); !ok {
		t.Fatalf("expected and on the right, got %T", or.Right)
	}
}

func TestIsNotParsesToNotEqual(t *testing.T) {
	docs := mustParse(t, "doc test\nrule r = status is not \"active\"")
	cmp := docs[0].Rules[0].Base.(*ast.Compare)
	if cmp.Op != value.CmpNeq {
		t.Fatalf("expected not-equal, got %s", cmp.Op)
	}
}

func TestRuleReference(t *testing.T) {
	docs := mustParse(t, "doc test\nrule r = base_shipping? + express_fee?")
	arith := docs[0].Rules[0].Base.(*ast.Arith)
	if _, ok := arith.Left.(*ast.RuleRef); !ok {
		t.Fatalf("expected rule reference, got %T", arith.Left)
	}
}

func TestQualifiedReference(t *testing.T) {
	docs := mustParse(t, "doc test\nrule r = employee.salary * employee.is_eligible?")
	arith := docs[0].Rules[0].Base.(*ast.Arith)
	fr := arith.Left.(*ast.FactRef)
	if len(fr.Path) != 2 || fr.Path[0] != "employee" {
		t.Fatalf("unexpected fact path %v", fr.Path)
	}
	rr := arith.Right.(*ast.RuleRef)
	if len(rr.Path) != 2 || rr.Path[1] != "is_eligible" {
		t.Fatalf("unexpected rule path %v", rr.Path)
	}
}

func TestUnitConversionExpression(t *testing.T) {
	docs := mustParse(t, "doc test\nrule lb = weight in pounds")
	conv, ok := docs[0].Rules[0].Base.(*ast.Convert)
	if !ok || conv.Unit != "pound" {
		t.Fatalf("unexpected conversion %+v", docs[0].Rules[0].Base)
	}
}

func TestNotHaveForms(t *testing.T) {
	for _, src := range []string{
		"doc test\nrule r = not have middle_name",
		"doc test\nrule r = have not middle_name",
	} {
		docs := mustParse(t, src)
		hv, ok := docs[0].Rules[0].Base.(*ast.HasValue)
		if !ok || !hv.Negated {
			t.Fatalf("%q: expected negated have, got %v", src, docs[0].Rules[0].Base)
		}
	}
}

func TestMathFunctions(t *testing.T) {
	docs := mustParse(t, "doc test\nrule r = sqrt (x * x)")
	m, ok := docs[0].Rules[0].Base.(*ast.Math)
	if !ok || m.Func != ast.FuncSqrt {
		t.Fatalf("expected sqrt, got %v", docs[0].Rules[0].Base)
	}
}

func TestSyntaxErrors(t *testing.T) {
	cases := []string{
		"invalid syntax here",
		"doc test\nfact = 5",
		"doc test\nrule r =",
		"doc test\nfact s = \"unterminated",
		"doc test\nrule r = (1 + 2",
	}
	for _, src := range cases {
		if _, err := Parse(src, "<test>", Options{}); err == nil {
			t.Fatalf("expected error for %q", src)
		}
	}
}

func TestEmptyInput(t *testing.T) {
	docs := mustParse(t, "")
	if len(docs) != 0 {
		t.Fatalf("expected no documents, got %d", len(docs))
	}
}

func TestExpressionDepthLimit(t *testing.T) {
	expr := strings.Repeat("(", 150) + "1" + strings.Repeat(")", 150)
	_, err := Parse("doc test\nrule r = "+expr, "<test>", Options{})
	if _, ok := err.(*LimitError); !ok {
		t.Fatalf("expected LimitError, got %v", err)
	}
}

func TestFileSizeLimit(t *testing.T) {
	_, err := Parse(strings.Repeat("x", 100), "<test>", Options{MaxFileSize: 10})
	if _, ok := err.(*LimitError); !ok {
		t.Fatalf("expected LimitError, got %v", err)
	}
}

func TestParseFacts(t *testing.T) {
	facts, err := ParseFacts([]string{"weight = 70 kilograms", "is_vip = true", "name = \"Ada\""})
	if err != nil {
		t.Fatalf("ParseFacts failed: %v", err)
	}
	if len(facts) != 3 {
		t.Fatalf("expected 3 facts, got %d", len(facts))
	}
	if facts[0].Name() != "weight" {
		t.Fatalf("unexpected fact name %s", facts[0].Name())
	}
	lit := facts[0].DefaultExpr.(*ast.Literal)
	if lit.Value.Kind != value.KindQuantity || lit.Value.Unit != "kilogram" {
		t.Fatalf("unexpected override value %v", lit.Value)
	}
}

func TestForeignFactOverrideInSource(t *testing.T) {
	docs := mustParse(t, "doc payroll\nfact employee = doc people/alice\nfact employee.salary = 5000 usd")
	f := docs[0].Facts[1]
	if f.Name() != "employee.salary" {
		t.Fatalf("unexpected fact name %s", f.Name())
	}
}
