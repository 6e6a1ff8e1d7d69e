// Package value implements Lemma's runtime values: decimal numbers, text,
// booleans, dates, percentages, physical quantities, money, and regex
// patterns, together with the unit tables and type-directed arithmetic that
// operate on them.
package value

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the variant stored in a Value.
type Kind int

const (
	KindNumber Kind = iota
	KindText
	KindBoolean
	KindDate
	KindPercentage
	KindQuantity
	KindMoney
	KindRegex
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindPercentage:
		return "percentage"
	case KindQuantity:
		return "unit"
	case KindMoney:
		return "money"
	case KindRegex:
		return "regex"
	}
	return "unknown"
}

// Value is a single typed Lemma value. Exactly one variant is populated,
// according to Kind.
//
// Percentages keep the literal number the author wrote: 25% is stored as 25
// and divided by 100 when applied. Money amounts and quantities carry their
// currency code or unit name alongside the decimal.
type Value struct {
	Kind Kind

	Num      decimal.Decimal // Number, Percentage, Quantity, Money
	Str      string          // Text, Regex
	Bool     bool            // Boolean
	Time     time.Time       // Date
	HasTime  bool            // Date: true when a time component was written
	Dim      Dimension       // Quantity
	Unit     string          // Quantity: canonical unit name (singular)
	Currency string          // Money: ISO code, upper case
}

func Number(d decimal.Decimal) Value { return Value{Kind: KindNumber, Num: d} }

func NumberFromInt(n int64) Value { return Number(decimal.NewFromInt(n)) }

// NumberFromString parses a decimal literal, including scientific notation.
func NumberFromString(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Value{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Number(d), nil
}

func Text(s string) Value { return Value{Kind: KindText, Str: s} }

func Boolean(b bool) Value { return Value{Kind: KindBoolean, Bool: b} }

// Date wraps a timestamp. hasTime records whether the author wrote a time
// component, which only affects printing.
func Date(t time.Time, hasTime bool) Value {
	return Value{Kind: KindDate, Time: t, HasTime: hasTime}
}

func Percentage(d decimal.Decimal) Value { return Value{Kind: KindPercentage, Num: d} }

func Quantity(d decimal.Decimal, dim Dimension, unit string) Value {
	return Value{Kind: KindQuantity, Num: d, Dim: dim, Unit: unit}
}

func Money(d decimal.Decimal, currency string) Value {
	return Value{Kind: KindMoney, Num: d, Currency: strings.ToUpper(currency)}
}

func Regex(pattern string) Value { return Value{Kind: KindRegex, Str: pattern} }

// IsNumeric reports whether the value carries a decimal magnitude.
func (v Value) IsNumeric() bool {
	switch v.Kind {
	case KindNumber, KindPercentage, KindQuantity, KindMoney:
		return true
	}
	return false
}

// WithNum returns a copy of v carrying a new magnitude but the same unit or
// currency tag.
func (v Value) WithNum(d decimal.Decimal) Value {
	out := v
	out.Num = d
	return out
}

// Equal compares through Compare: money needs the same currency, quantities
// the same dimension (magnitudes compared in the left operand's unit), dates
// the same instant; a bare number equals a money amount or quantity of the
// same magnitude. Pairs that Compare rejects are not equal.
func (v Value) Equal(o Value) bool {
	ok, err := Compare(v, CmpEq, o)
	return err == nil && ok
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return FormatDecimal(v.Num)
	case KindText:
		return fmt.Sprintf("%q", v.Str)
	case KindBoolean:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindDate:
		if v.HasTime {
			return v.Time.Format("2006-01-02T15:04:05Z07:00")
		}
		return v.Time.Format("2006-01-02")
	case KindPercentage:
		return FormatDecimal(v.Num) + "%"
	case KindQuantity:
		return FormatDecimal(v.Num) + " " + unitDisplay(v.Unit, v.Num)
	case KindMoney:
		return FormatDecimal(v.Num) + " " + v.Currency
	case KindRegex:
		return "/" + v.Str + "/"
	}
	return "<invalid>"
}

// FormatDecimal prints a decimal without trailing fractional zeros, so
// rounded quotients like 80.000000000000 display as 80.
func FormatDecimal(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// unitDisplay pluralises a unit name when the magnitude is not exactly one.
func unitDisplay(unit string, n decimal.Decimal) string {
	if n.Equal(decimal.NewFromInt(1)) {
		return unit
	}
	return Pluralize(unit)
}
