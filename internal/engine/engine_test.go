package engine

import (
	"strings"
	"testing"

	"github.com/benrogmans/lemma/internal/inversion"
	"github.com/benrogmans/lemma/internal/value"
)

func newWorkspace(t *testing.T, code string) *Workspace {
	t.Helper()
	ws := New()
	if err := ws.AddSource(code, "<test>"); err != nil {
		t.Fatalf("AddSource failed: %v", err)
	}
	return ws
}

func evaluate(t *testing.T, ws *Workspace, doc string, rules []string, factStrings ...string) *Response {
	t.Helper()
	overrides, err := ws.ParseFacts(factStrings)
	if err != nil {
		t.Fatalf("ParseFacts failed: %v", err)
	}
	response, err := ws.Evaluate(doc, rules, overrides)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	return response
}

func wantValue(t *testing.T, res *RuleResult, want string) {
	t.Helper()
	if res == nil {
		t.Fatal("rule missing from response")
	}
	if res.Vetoed {
		t.Fatalf("rule %s vetoed: %v", res.Name, res.Veto)
	}
	if res.MissingFacts != nil {
		t.Fatalf("rule %s missing facts: %v", res.Name, res.MissingFacts)
	}
	if got := res.Value.String(); got != want {
		t.Fatalf("rule %s = %s, want %s", res.Name, got, want)
	}
}

const shippingDoc = `doc shipping
fact is_express = true
fact package_weight = 2.5 kilograms
rule express_fee = 0 USD unless is_express then 4.99 USD
rule base_shipping = 5.99 USD
  unless package_weight > 1 kilogram then 8.99 USD
  unless package_weight > 5 kilograms then 15.99 USD
rule total_cost = base_shipping? + express_fee?`

func TestShippingScenario(t *testing.T) {
	ws := newWorkspace(t, shippingDoc)
	response := evaluate(t, ws, "shipping", nil)
	wantValue(t, response.Result("base_shipping"), "8.99 USD")
	wantValue(t, response.Result("express_fee"), "4.99 USD")
	wantValue(t, response.Result("total_cost"), "13.98 USD")
}

func TestPricingWithPercentage(t *testing.T) {
	ws := newWorkspace(t, `doc pricing
fact quantity = 100
fact is_vip = true
rule discount = 0%
  unless quantity >= 10 then 10%
  unless quantity >= 50 then 20%
  unless is_vip then 25%
rule price = 200 eur - discount?`)
	response := evaluate(t, ws, "pricing", nil)
	wantValue(t, response.Result("discount"), "25%")
	wantValue(t, response.Result("price"), "150 EUR")
}

func TestLastMatchingClauseWins(t *testing.T) {
	ws := newWorkspace(t, `doc pricing
fact quantity = 60
fact is_vip = false
rule discount = 0%
  unless quantity >= 10 then 10%
  unless quantity >= 50 then 20%
  unless is_vip then 25%`)
	response := evaluate(t, ws, "pricing", nil)
	wantValue(t, response.Result("discount"), "20%")
}

func TestVetoPropagationWithOverride(t *testing.T) {
	code := `doc weights
fact weight = [number]
fact use_estimated = [boolean]
rule validated_weight = weight
  unless weight < 0 then veto "Weight cannot be negative"
rule shipping_weight = validated_weight?
  unless use_estimated then 5`

	ws := newWorkspace(t, code)

	// a later matching clause never reads the vetoed reference
	response := evaluate(t, ws, "weights", nil, "weight = -1", "use_estimated = true")
	wantValue(t, response.Result("shipping_weight"), "5")

	// with no rescue clause the veto propagates on read
	response = evaluate(t, ws, "weights", nil, "weight = -1", "use_estimated = false")
	res := response.Result("shipping_weight")
	if !res.Vetoed {
		t.Fatalf("expected veto, got %+v", res)
	}
	if *res.Veto != "Weight cannot be negative" {
		t.Fatalf("unexpected veto message %q", *res.Veto)
	}
}

func TestUnitConversionRoundTrip(t *testing.T) {
	ws := newWorkspace(t, `doc units
fact weight = 70 kilograms
rule lb = weight in pounds
rule back = lb? in kilograms`)
	response := evaluate(t, ws, "units", nil)
	res := response.Result("back")
	if res.Value == nil {
		t.Fatalf("no value: %+v", res)
	}
	diff := res.Value.Num.Sub(value.NumberFromInt(70).Num).Abs()
	if diff.GreaterThan(value.NumberFromInt(1).Num.Div(value.NumberFromInt(1000000).Num)) {
		t.Fatalf("round trip drifted: %s", res.Value)
	}
}

func TestTaxBrackets(t *testing.T) {
	ws := newWorkspace(t, `doc tax
fact income = 85000 usd
rule tax_owed = 0 usd
  unless income > 11000 usd then (income - 11000 usd) * 10%
  unless income > 44725 usd then 3372.50 usd + (income - 44725 usd) * 12%
  unless income > 95375 usd then 9875 usd + (income - 95375 usd) * 22%`)
	response := evaluate(t, ws, "tax", nil)
	wantValue(t, response.Result("tax_owed"), "8205.5 USD")
}

func TestMissingFactsReported(t *testing.T) {
	ws := newWorkspace(t, `doc incomplete
fact base = [number]
rule doubled = base * 2
rule fixed = 42`)
	response := evaluate(t, ws, "incomplete", nil)

	missing := response.Result("doubled")
	if missing.MissingFacts == nil || missing.MissingFacts[0] != "base" {
		t.Fatalf("expected missing fact base, got %+v", missing)
	}
	// sibling rules keep evaluating
	wantValue(t, response.Result("fixed"), "42")
}

func TestMissingFactsPropagateUnion(t *testing.T) {
	ws := newWorkspace(t, `doc incomplete
fact base = [number]
rule doubled = base * 2
rule quadrupled = doubled? * 2`)
	response := evaluate(t, ws, "incomplete", nil)
	res := response.Result("quadrupled")
	if res.MissingFacts == nil || res.MissingFacts[0] != "base" {
		t.Fatalf("expected propagated missing fact, got %+v", res)
	}
}

func TestMissingFactSatisfiedByOverride(t *testing.T) {
	ws := newWorkspace(t, `doc incomplete
fact base = [number]
rule doubled = base * 2`)
	response := evaluate(t, ws, "incomplete", nil, "base = 21")
	wantValue(t, response.Result("doubled"), "42")
}

func TestOverrideTypeMismatchRejected(t *testing.T) {
	ws := newWorkspace(t, "doc typed\nfact weight = [mass]\nrule r = weight")
	overrides, err := ws.ParseFacts([]string{"weight = \"heavy\""})
	if err != nil {
		t.Fatalf("ParseFacts failed: %v", err)
	}
	if _, err := ws.Evaluate("typed", nil, overrides); err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestUnknownOverrideWarns(t *testing.T) {
	ws := newWorkspace(t, "doc plain\nfact x = 1\nrule r = x")
	response := evaluate(t, ws, "plain", nil, "bogus = 5")
	if len(response.Warnings) == 0 {
		t.Fatal("expected a warning for the unknown override")
	}
}

func TestDivisionByZeroBecomesVeto(t *testing.T) {
	ws := newWorkspace(t, `doc math
fact denominator = 0
rule ratio = 100 / denominator`)
	response := evaluate(t, ws, "math", nil)
	res := response.Result("ratio")
	if !res.Vetoed || !strings.Contains(*res.Veto, "zero") {
		t.Fatalf("expected division-by-zero veto, got %+v", res)
	}
}

func TestHaveExpression(t *testing.T) {
	ws := newWorkspace(t, `doc presence
fact nickname = [text]
fact name = "Ada"
rule has_nickname = have nickname
rule has_name = have name
rule anonymous = not have name`)
	response := evaluate(t, ws, "presence", nil)
	wantValue(t, response.Result("has_nickname"), "false")
	wantValue(t, response.Result("has_name"), "true")
	wantValue(t, response.Result("anonymous"), "false")

	response = evaluate(t, ws, "presence", nil, "nickname = \"Lady Lovelace\"")
	wantValue(t, response.Result("has_nickname"), "true")
}

func TestRequestedRulesFilterResponse(t *testing.T) {
	ws := newWorkspace(t, shippingDoc)
	response := evaluate(t, ws, "shipping", []string{"total_cost"})
	if len(response.Results) != 1 || response.Results[0].Name != "total_cost" {
		t.Fatalf("expected only total_cost, got %+v", response.Results)
	}
	wantValue(t, &response.Results[0], "13.98 USD")
}

func TestUnknownRuleRequested(t *testing.T) {
	ws := newWorkspace(t, shippingDoc)
	if _, err := ws.Evaluate("shipping", []string{"nope"}, nil); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestTraceReverseOrderShortCircuit(t *testing.T) {
	ws := newWorkspace(t, `doc traced
fact quantity = 100
fact is_vip = true
rule discount = 0%
  unless quantity >= 10 then 10%
  unless quantity >= 50 then 20%
  unless is_vip then 25%`)
	response := evaluate(t, ws, "traced", nil)
	res := response.Result("discount")

	// the last clause matches immediately, so earlier clauses are never
	// examined and the trace holds exactly: the is_vip read, the match,
	// and the final result
	var kinds []string
	for _, rec := range res.Operations {
		kinds = append(kinds, rec.Type)
	}
	want := []string{"fact_used", "unless_clause_matched", "final_result"}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("trace = %v, want %v", kinds, want)
	}
	if idx := res.Operations[1].Index; idx == nil || *idx != 2 {
		t.Fatalf("expected clause index 2, got %v", idx)
	}
}

func TestTraceRecordsSkippedClauses(t *testing.T) {
	ws := newWorkspace(t, `doc traced
fact weight = 0.5
rule fee = 1
  unless weight > 1 then 2
  unless weight > 5 then 3`)
	response := evaluate(t, ws, "traced", nil)
	res := response.Result("fee")

	var skipped []int
	for _, rec := range res.Operations {
		if rec.Type == "unless_clause_skipped" {
			skipped = append(skipped, *rec.Index)
		}
	}
	// reverse examination order: clause 1 first, then clause 0
	if len(skipped) != 2 || skipped[0] != 1 || skipped[1] != 0 {
		t.Fatalf("skipped = %v, want [1 0]", skipped)
	}
	wantValue(t, res, "1")
}

func TestCrossDocumentEvaluation(t *testing.T) {
	ws := newWorkspace(t, `doc employee
fact salary = 5000 usd
rule is_eligible = salary > 1000 usd

doc bonus
fact employee = doc employee
rule eligible = employee.is_eligible?
rule payout = employee.salary * 10%`)
	response := evaluate(t, ws, "bonus", nil)
	wantValue(t, response.Result("eligible"), "true")
	wantValue(t, response.Result("payout"), "500 USD")
}

func TestIncrementalIngestValidatesAgainstExisting(t *testing.T) {
	ws := newWorkspace(t, "doc base\nfact x = 1")
	if err := ws.AddSource("doc base\nfact y = 2", "<dup>"); err == nil {
		t.Fatal("expected duplicate document error")
	}
	if err := ws.AddSource("doc extra\nfact ref = doc base", "<ok>"); err != nil {
		t.Fatalf("cross-file reference should validate: %v", err)
	}
}

func TestDescribeDocument(t *testing.T) {
	ws := newWorkspace(t, shippingDoc)
	summary, err := ws.DescribeDocument("shipping")
	if err != nil {
		t.Fatalf("DescribeDocument failed: %v", err)
	}
	if len(summary.Facts) != 2 || len(summary.Rules) != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	var total *RuleSummary
	for i := range summary.Rules {
		if summary.Rules[i].Name == "total_cost" {
			total = &summary.Rules[i]
		}
	}
	if total == nil || len(total.Dependencies) != 2 {
		t.Fatalf("total_cost dependencies wrong: %+v", total)
	}
}

func TestRegexMatching(t *testing.T) {
	ws := newWorkspace(t, `doc emails
fact address = "ada@lovelace.dev"
rule looks_valid = address == /.+@.+/`)
	response := evaluate(t, ws, "emails", nil)
	wantValue(t, response.Result("looks_valid"), "true")
}

func TestRegexCompileFailureBecomesVeto(t *testing.T) {
	ws := newWorkspace(t, `doc emails
fact address = "x"
rule broken = address == /(/`)
	response := evaluate(t, ws, "emails", nil)
	res := response.Result("broken")
	if !res.Vetoed || !strings.Contains(*res.Veto, "regex") {
		t.Fatalf("expected regex veto, got %+v", res)
	}
}

func TestParseTargetNotation(t *testing.T) {
	target, err := ParseTarget(">=100 usd")
	if err != nil {
		t.Fatalf("ParseTarget failed: %v", err)
	}
	if target.Op != value.CmpGte || target.Value.Kind != value.KindMoney {
		t.Fatalf("unexpected target %+v", target)
	}
	if target, _ = ParseTarget("veto:too heavy"); target.Veto != "too heavy" {
		t.Fatalf("unexpected veto target %+v", target)
	}
	if target, _ = ParseTarget("any"); target.Kind != inversion.TargetAnyValue {
		t.Fatalf("any target failed: %+v", target)
	}
}
