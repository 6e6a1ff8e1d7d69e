package value

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// DivisionScale is the scale used when a quotient cannot be represented
// exactly: 12 digits, rounded with banker's rounding.
const DivisionScale = 12

// divScale divides at DivisionScale with banker's rounding. The divisor
// must be non-zero.
func divScale(left, right decimal.Decimal) decimal.Decimal {
	return left.DivRound(right, DivisionScale+2).RoundBank(DivisionScale)
}

// ArithOp is a binary arithmetic operator.
type ArithOp int

const (
	OpAdd ArithOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
)

func (op ArithOp) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpSub:
		return "subtract"
	case OpMul:
		return "multiply"
	case OpDiv:
		return "divide"
	case OpMod:
		return "modulo"
	case OpPow:
		return "power"
	}
	return "unknown"
}

// Symbol returns the source-level operator token.
func (op ArithOp) Symbol() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpPow:
		return "^"
	}
	return "?"
}

// CmpOp is a comparison operator.
type CmpOp int

const (
	CmpEq CmpOp = iota
	CmpNeq
	CmpLt
	CmpLte
	CmpGt
	CmpGte
)

func (op CmpOp) String() string {
	switch op {
	case CmpEq:
		return "equal"
	case CmpNeq:
		return "not_equal"
	case CmpLt:
		return "less_than"
	case CmpLte:
		return "less_than_or_equal"
	case CmpGt:
		return "greater_than"
	case CmpGte:
		return "greater_than_or_equal"
	}
	return "unknown"
}

// Symbol returns the source-level operator token.
func (op CmpOp) Symbol() string {
	switch op {
	case CmpEq:
		return "=="
	case CmpNeq:
		return "!="
	case CmpLt:
		return "<"
	case CmpLte:
		return "<="
	case CmpGt:
		return ">"
	case CmpGte:
		return ">="
	}
	return "?"
}

// Negate returns the logical complement of the operator.
func (op CmpOp) Negate() CmpOp {
	switch op {
	case CmpEq:
		return CmpNeq
	case CmpNeq:
		return CmpEq
	case CmpLt:
		return CmpGte
	case CmpLte:
		return CmpGt
	case CmpGt:
		return CmpLte
	case CmpGte:
		return CmpLt
	}
	return op
}

// Flip mirrors the operator across the comparison: a < b becomes b > a.
func (op CmpOp) Flip() CmpOp {
	switch op {
	case CmpLt:
		return CmpGt
	case CmpLte:
		return CmpGte
	case CmpGt:
		return CmpLt
	case CmpGte:
		return CmpLte
	}
	return op
}

var hundred = decimal.NewFromInt(100)

// Arithmetic applies the type-directed arithmetic table:
//
//	number op number         -> number
//	money ± money            -> money (same currency)
//	money * number           -> money (commutative)
//	money ± percentage       -> money scaled proportionally
//	number ± percentage      -> number scaled proportionally
//	value * percentage       -> value scaled by p/100
//	quantity ± quantity      -> quantity (right coerced to left's unit)
//	quantity * number        -> quantity (commutative)
//	date ± duration          -> date (calendar-correct)
//	date - date              -> duration in days
func Arithmetic(left Value, op ArithOp, right Value) (Value, error) {
	switch {
	case left.Kind == KindNumber && right.Kind == KindNumber:
		n, err := numericOp(left.Num, op, right.Num)
		if err != nil {
			return Value{}, err
		}
		return Number(n), nil

	case left.Kind == KindMoney && right.Kind == KindMoney:
		if left.Currency != right.Currency {
			return Value{}, fmt.Errorf("cannot operate on different currencies: %s and %s",
				left.Currency, right.Currency)
		}
		if op != OpAdd && op != OpSub {
			return Value{}, fmt.Errorf("operation %s not supported between money values", op)
		}
		n, err := numericOp(left.Num, op, right.Num)
		if err != nil {
			return Value{}, err
		}
		return Money(n, left.Currency), nil

	case left.Kind == KindMoney && right.Kind == KindNumber:
		n, err := numericOp(left.Num, op, right.Num)
		if err != nil {
			return Value{}, err
		}
		return Money(n, left.Currency), nil

	case left.Kind == KindNumber && right.Kind == KindMoney:
		if op != OpAdd && op != OpMul {
			return Value{}, fmt.Errorf("operation %s not supported for number and money", op)
		}
		n, err := numericOp(left.Num, op, right.Num)
		if err != nil {
			return Value{}, err
		}
		return Money(n, right.Currency), nil

	case left.Kind == KindQuantity && right.Kind == KindQuantity:
		if left.Dim != right.Dim {
			return Value{}, fmt.Errorf("cannot operate on %s and %s quantities", left.Dim, right.Dim)
		}
		conv, err := Convert(right, left.Unit)
		if err != nil {
			return Value{}, err
		}
		n, err := numericOp(left.Num, op, conv.Num)
		if err != nil {
			return Value{}, err
		}
		return Quantity(n, left.Dim, left.Unit), nil

	case left.Kind == KindQuantity && right.Kind == KindNumber:
		n, err := numericOp(left.Num, op, right.Num)
		if err != nil {
			return Value{}, err
		}
		return Quantity(n, left.Dim, left.Unit), nil

	case left.Kind == KindNumber && right.Kind == KindQuantity:
		n, err := numericOp(left.Num, op, right.Num)
		if err != nil {
			return Value{}, err
		}
		return Quantity(n, right.Dim, right.Unit), nil

	case right.Kind == KindPercentage && left.IsNumeric() && left.Kind != KindPercentage:
		return applyPercentage(left, op, right.Num)

	case left.Kind == KindPercentage && right.IsNumeric() && right.Kind != KindPercentage:
		if op != OpMul {
			return Value{}, fmt.Errorf("operation %s not supported for percentage and %s", op, right.Kind)
		}
		return applyPercentage(right, op, left.Num)

	case left.Kind == KindPercentage && right.Kind == KindPercentage:
		if op != OpAdd && op != OpSub {
			return Value{}, fmt.Errorf("operation %s not supported between percentages", op)
		}
		n, err := numericOp(left.Num, op, right.Num)
		if err != nil {
			return Value{}, err
		}
		return Percentage(n), nil

	case left.Kind == KindDate || right.Kind == KindDate:
		return dateArithmetic(left, op, right)
	}

	return Value{}, fmt.Errorf("arithmetic %s not supported for %s and %s", op, left.Kind, right.Kind)
}

// applyPercentage scales a numeric value by a percentage number (25 means
// 25%).
func applyPercentage(v Value, op ArithOp, pct decimal.Decimal) (Value, error) {
	portion := divScale(v.Num.Mul(pct), hundred)
	switch op {
	case OpMul:
		return v.WithNum(portion), nil
	case OpAdd:
		return v.WithNum(v.Num.Add(portion)), nil
	case OpSub:
		return v.WithNum(v.Num.Sub(portion)), nil
	}
	return Value{}, fmt.Errorf("operation %s not supported with a percentage operand", op)
}

// numericOp applies the operator to raw decimals. Division by zero is an
// error; the evaluator converts it to a veto on the enclosing rule.
func numericOp(left decimal.Decimal, op ArithOp, right decimal.Decimal) (decimal.Decimal, error) {
	switch op {
	case OpAdd:
		return left.Add(right), nil
	case OpSub:
		return left.Sub(right), nil
	case OpMul:
		return left.Mul(right), nil
	case OpDiv:
		if right.IsZero() {
			return decimal.Decimal{}, fmt.Errorf("division by zero")
		}
		return divScale(left, right), nil
	case OpMod:
		if right.IsZero() {
			return decimal.Decimal{}, fmt.Errorf("division by zero")
		}
		return left.Mod(right), nil
	case OpPow:
		// exact for small integer exponents, float fallback otherwise
		if right.IsInteger() && right.Abs().LessThanOrEqual(decimal.NewFromInt(32)) {
			return left.Pow(right), nil
		}
		base, _ := left.Float64()
		exp, _ := right.Float64()
		out := math.Pow(base, exp)
		if math.IsNaN(out) || math.IsInf(out, 0) {
			return decimal.Decimal{}, fmt.Errorf("power result cannot be represented")
		}
		return decimal.NewFromFloat(out), nil
	}
	return decimal.Decimal{}, fmt.Errorf("unknown arithmetic operator")
}

// Compare applies the type-directed comparison table. Ordering operators
// require ordered operands; equality is defined for every kind against
// itself.
func Compare(left Value, op CmpOp, right Value) (bool, error) {
	switch {
	case left.Kind == KindNumber && right.Kind == KindNumber:
		return compareDecimals(left.Num, op, right.Num), nil

	case left.Kind == KindPercentage && right.Kind == KindPercentage:
		return compareDecimals(left.Num, op, right.Num), nil

	case left.Kind == KindMoney && right.Kind == KindMoney:
		if left.Currency != right.Currency {
			return false, fmt.Errorf("cannot compare different currencies: %s and %s",
				left.Currency, right.Currency)
		}
		return compareDecimals(left.Num, op, right.Num), nil

	case left.Kind == KindQuantity && right.Kind == KindQuantity:
		if left.Dim != right.Dim {
			return false, fmt.Errorf("cannot compare %s and %s quantities", left.Dim, right.Dim)
		}
		conv, err := Convert(right, left.Unit)
		if err != nil {
			return false, err
		}
		return compareDecimals(left.Num, op, conv.Num), nil

	case (left.Kind == KindQuantity && right.Kind == KindNumber) ||
		(left.Kind == KindNumber && right.Kind == KindQuantity):
		return compareDecimals(left.Num, op, right.Num), nil

	case (left.Kind == KindMoney && right.Kind == KindNumber) ||
		(left.Kind == KindNumber && right.Kind == KindMoney):
		return compareDecimals(left.Num, op, right.Num), nil

	case left.Kind == KindBoolean && right.Kind == KindBoolean:
		switch op {
		case CmpEq:
			return left.Bool == right.Bool, nil
		case CmpNeq:
			return left.Bool != right.Bool, nil
		}
		return false, fmt.Errorf("booleans only support equality comparisons")

	case left.Kind == KindText && right.Kind == KindText:
		switch op {
		case CmpEq:
			return left.Str == right.Str, nil
		case CmpNeq:
			return left.Str != right.Str, nil
		case CmpLt:
			return left.Str < right.Str, nil
		case CmpLte:
			return left.Str <= right.Str, nil
		case CmpGt:
			return left.Str > right.Str, nil
		case CmpGte:
			return left.Str >= right.Str, nil
		}

	case left.Kind == KindDate && right.Kind == KindDate:
		return compareDates(left.Time, op, right.Time), nil
	}

	return false, fmt.Errorf("comparison %s not supported for %s and %s", op, left.Kind, right.Kind)
}

func compareDecimals(left decimal.Decimal, op CmpOp, right decimal.Decimal) bool {
	c := left.Cmp(right)
	switch op {
	case CmpEq:
		return c == 0
	case CmpNeq:
		return c != 0
	case CmpLt:
		return c < 0
	case CmpLte:
		return c <= 0
	case CmpGt:
		return c > 0
	case CmpGte:
		return c >= 0
	}
	return false
}
