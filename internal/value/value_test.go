package value

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func num(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestUnitLookup(t *testing.T) {
	cases := []struct {
		word      string
		canonical string
		dim       Dimension
	}{
		{"kilogram", "kilogram", DimMass},
		{"kilograms", "kilogram", DimMass},
		{"tonnes", "ton", DimMass},
		{"feet", "foot", DimLength},
		{"inches", "inch", DimLength},
		{"metres", "meter", DimLength},
		{"litres", "liter", DimVolume},
		{"weeks", "week", DimDuration},
		{"celsius", "celsius", DimTemperature},
		{"horsepower", "horsepower", DimPower},
		{"kilowatthours", "kilowatt_hour", DimEnergy},
		{"gibibyte", "gibibyte", DimData},
		{"nautical_miles", "nautical_mile", DimLength},
	}
	for _, tc := range cases {
		canonical, dim, ok := LookupUnit(tc.word)
		if !ok {
			t.Fatalf("LookupUnit(%q) failed", tc.word)
		}
		if canonical != tc.canonical || dim != tc.dim {
			t.Fatalf("LookupUnit(%q) = %s/%s, want %s/%s", tc.word, canonical, dim, tc.canonical, tc.dim)
		}
	}
	if _, _, ok := LookupUnit("parsec"); ok {
		t.Fatal("parsec should not resolve")
	}
}

func TestMassConversion(t *testing.T) {
	v, err := Convert(Quantity(num("2.5"), DimMass, "kilogram"), "grams")
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if !v.Num.Equal(num("2500")) {
		t.Fatalf("2.5 kg = %s g, want 2500", v.Num)
	}
}

func TestTemperatureConversionIsAffine(t *testing.T) {
	f, err := Convert(Quantity(num("100"), DimTemperature, "celsius"), "fahrenheit")
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if f.Num.Sub(num("212")).Abs().GreaterThan(num("0.0000001")) {
		t.Fatalf("100C = %sF, want 212", f.Num)
	}
	k, err := Convert(Quantity(num("0"), DimTemperature, "celsius"), "kelvin")
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if k.Num.Sub(num("273.15")).Abs().GreaterThan(num("0.0000001")) {
		t.Fatalf("0C = %sK, want 273.15", k.Num)
	}
}

func TestUnitRoundTrip(t *testing.T) {
	start := Quantity(num("70"), DimMass, "kilogram")
	lb, err := Convert(start, "pounds")
	if err != nil {
		t.Fatalf("to pounds: %v", err)
	}
	back, err := Convert(lb, "kilograms")
	if err != nil {
		t.Fatalf("back to kilograms: %v", err)
	}
	diff := back.Num.Sub(num("70")).Abs()
	if diff.GreaterThan(num("0.000001")) {
		t.Fatalf("round trip drifted by %s", diff)
	}
}

func TestCrossDimensionConversionRejected(t *testing.T) {
	if _, err := Convert(Quantity(num("5"), DimMass, "kilogram"), "meters"); err == nil {
		t.Fatal("mass to length conversion should fail")
	}
}

func TestCalendarUnitConversionRejected(t *testing.T) {
	if _, err := Convert(Quantity(num("3"), DimDuration, "month"), "days"); err == nil {
		t.Fatal("month to days conversion should fail")
	}
}

func TestCurrencyConversionRejected(t *testing.T) {
	if _, err := ConvertMoney(Money(num("100"), "USD"), "EUR"); err == nil {
		t.Fatal("currency conversion should fail")
	}
	v, err := ConvertMoney(Number(num("100")), "usd")
	if err != nil || v.Currency != "USD" {
		t.Fatalf("tagging a number as money failed: %v %v", v, err)
	}
}

func TestNumberArithmetic(t *testing.T) {
	out, err := Arithmetic(Number(num("0.1")), OpAdd, Number(num("0.2")))
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !out.Num.Equal(num("0.3")) {
		t.Fatalf("0.1 + 0.2 = %s, want exactly 0.3", out.Num)
	}
}

func TestDivisionByZero(t *testing.T) {
	if _, err := Arithmetic(Number(num("1")), OpDiv, Number(num("0"))); err == nil {
		t.Fatal("division by zero should error")
	}
}

func TestDivisionScale(t *testing.T) {
	out, err := Arithmetic(Number(num("1")), OpDiv, Number(num("3")))
	if err != nil {
		t.Fatalf("divide failed: %v", err)
	}
	if out.Num.String() != "0.333333333333" {
		t.Fatalf("1/3 = %s, want 12-digit scale", out.Num)
	}
}

func TestMoneyArithmetic(t *testing.T) {
	sum, err := Arithmetic(Money(num("8.99"), "USD"), OpAdd, Money(num("4.99"), "USD"))
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if sum.Kind != KindMoney || !sum.Num.Equal(num("13.98")) {
		t.Fatalf("got %v", sum)
	}

	if _, err := Arithmetic(Money(num("1"), "USD"), OpAdd, Money(num("1"), "EUR")); err == nil {
		t.Fatal("mixed currencies should error")
	}

	scaled, err := Arithmetic(Money(num("50"), "USD"), OpMul, Number(num("2")))
	if err != nil || !scaled.Num.Equal(num("100")) || scaled.Currency != "USD" {
		t.Fatalf("money * number: %v %v", scaled, err)
	}
}

func TestPercentageArithmetic(t *testing.T) {
	cases := []struct {
		left  Value
		op    ArithOp
		pct   string
		want  string
	}{
		{Money(num("200"), "EUR"), OpSub, "25", "150"},
		{Money(num("100"), "EUR"), OpAdd, "20", "120"},
		{Money(num("100"), "EUR"), OpMul, "20", "20"},
		{Number(num("100")), OpSub, "20", "80"},
		{Number(num("100")), OpAdd, "20", "120"},
		{Number(num("100")), OpMul, "20", "20"},
	}
	for _, tc := range cases {
		out, err := Arithmetic(tc.left, tc.op, Percentage(num(tc.pct)))
		if err != nil {
			t.Fatalf("%v %s %s%%: %v", tc.left, tc.op, tc.pct, err)
		}
		if !out.Num.Equal(num(tc.want)) {
			t.Fatalf("%v %s %s%% = %s, want %s", tc.left, tc.op, tc.pct, out.Num, tc.want)
		}
		if out.Kind != tc.left.Kind {
			t.Fatalf("result kind changed: %s -> %s", tc.left.Kind, out.Kind)
		}
	}
}

func TestQuantityArithmeticCoercesRight(t *testing.T) {
	out, err := Arithmetic(
		Quantity(num("1"), DimMass, "kilogram"), OpAdd,
		Quantity(num("500"), DimMass, "gram"))
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if out.Unit != "kilogram" || !out.Num.Equal(num("1.5")) {
		t.Fatalf("1kg + 500g = %v", out)
	}
}

func TestCrossDimensionArithmeticRejected(t *testing.T) {
	_, err := Arithmetic(
		Quantity(num("1"), DimMass, "kilogram"), OpAdd,
		Quantity(num("1"), DimLength, "meter"))
	if err == nil {
		t.Fatal("mass + length should error")
	}
}

func TestCommutativity(t *testing.T) {
	pairs := [][2]Value{
		{Number(num("3")), Number(num("7"))},
		{Quantity(num("3"), DimMass, "kilogram"), Quantity(num("7"), DimMass, "kilogram")},
	}
	for _, ops := range []ArithOp{OpAdd, OpMul} {
		for _, pair := range pairs {
			ab, err1 := Arithmetic(pair[0], ops, pair[1])
			ba, err2 := Arithmetic(pair[1], ops, pair[0])
			if err1 != nil || err2 != nil {
				t.Fatalf("arithmetic failed: %v %v", err1, err2)
			}
			if !ab.Num.Equal(ba.Num) {
				t.Fatalf("%s not commutative: %s vs %s", ops, ab.Num, ba.Num)
			}
		}
	}
}

func TestDatePlusDuration(t *testing.T) {
	date := Date(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), false)
	out, err := Arithmetic(date, OpAdd, Quantity(num("5"), DimDuration, "day"))
	if err != nil {
		t.Fatalf("date + 5 days: %v", err)
	}
	if got := out.Time.Format("2006-01-02"); got != "2024-01-20" {
		t.Fatalf("got %s, want 2024-01-20", got)
	}
}

func TestDatePlusCalendarMonth(t *testing.T) {
	date := Date(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), false)
	out, err := Arithmetic(date, OpAdd, Quantity(num("1"), DimDuration, "month"))
	if err != nil {
		t.Fatalf("date + 1 month: %v", err)
	}
	// Go calendar normalisation: Jan 31 + 1 month = Mar 2 (2024 is a leap year)
	if got := out.Time.Format("2006-01-02"); got != "2024-03-02" {
		t.Fatalf("got %s", got)
	}
}

func TestDateMinusDate(t *testing.T) {
	a := Date(time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), false)
	b := Date(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), false)
	out, err := Arithmetic(a, OpSub, b)
	if err != nil {
		t.Fatalf("date - date: %v", err)
	}
	if out.Kind != KindQuantity || out.Dim != DimDuration || out.Unit != "day" {
		t.Fatalf("unexpected kind %v", out)
	}
	if !out.Num.Equal(num("5")) {
		t.Fatalf("got %s days, want 5", out.Num)
	}
}

func TestComparisons(t *testing.T) {
	gt, err := Compare(Quantity(num("2.5"), DimMass, "kilogram"), CmpGt, Quantity(num("1"), DimMass, "kilogram"))
	if err != nil || !gt {
		t.Fatalf("2.5kg > 1kg: %v %v", gt, err)
	}
	// right operand converted into the left's unit before comparing
	gt, err = Compare(Quantity(num("1"), DimMass, "kilogram"), CmpGt, Quantity(num("999"), DimMass, "gram"))
	if err != nil || !gt {
		t.Fatalf("1kg > 999g: %v %v", gt, err)
	}
	if _, err := Compare(Money(num("1"), "USD"), CmpGt, Money(num("1"), "EUR")); err == nil {
		t.Fatal("cross-currency comparison should error")
	}
	eq, err := Compare(Text("apple"), CmpLt, Text("banana"))
	if err != nil || !eq {
		t.Fatalf("text ordering failed: %v %v", eq, err)
	}
	if _, err := Compare(Boolean(true), CmpGt, Boolean(false)); err == nil {
		t.Fatal("ordering booleans should error")
	}
}

func TestDisplay(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Number(num("42")), "42"},
		{Percentage(num("25")), "25%"},
		{Money(num("13.98"), "usd"), "13.98 USD"},
		{Quantity(num("5"), DimMass, "kilogram"), "5 kilograms"},
		{Quantity(num("1"), DimMass, "kilogram"), "1 kilogram"},
		{Quantity(num("3"), DimLength, "foot"), "3 feet"},
		{Boolean(true), "true"},
		{Regex("[a-z]+"), "/[a-z]+/"},
	}
	for _, tc := range cases {
		if got := tc.v.String(); got != tc.want {
			t.Fatalf("String() = %q, want %q", got, tc.want)
		}
	}
}
