package semantic

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/benrogmans/lemma/internal/ast"
	"github.com/benrogmans/lemma/internal/value"
)

// ConstFold evaluates an expression that contains no references. It returns
// false when the expression reads facts or rules, or when an operation
// fails (division by zero folds at evaluation time instead, where it can
// veto the enclosing rule).
func ConstFold(e ast.Expr) (value.Value, bool) {
	switch n := e.(type) {
	case *ast.Literal:
		return n.Value, true

	case *ast.Not:
		v, ok := ConstFold(n.Operand)
		if !ok || v.Kind != value.KindBoolean {
			return value.Value{}, false
		}
		return value.Boolean(!v.Bool), true

	case *ast.And:
		l, ok := ConstFold(n.Left)
		if !ok || l.Kind != value.KindBoolean {
			return value.Value{}, false
		}
		if !l.Bool {
			return value.Boolean(false), true
		}
		r, ok := ConstFold(n.Right)
		if !ok || r.Kind != value.KindBoolean {
			return value.Value{}, false
		}
		return value.Boolean(r.Bool), true

	case *ast.Or:
		l, ok := ConstFold(n.Left)
		if !ok || l.Kind != value.KindBoolean {
			return value.Value{}, false
		}
		if l.Bool {
			return value.Boolean(true), true
		}
		r, ok := ConstFold(n.Right)
		if !ok || r.Kind != value.KindBoolean {
			return value.Value{}, false
		}
		return value.Boolean(r.Bool), true

	case *ast.Arith:
		l, ok := ConstFold(n.Left)
		if !ok {
			return value.Value{}, false
		}
		r, ok := ConstFold(n.Right)
		if !ok {
			return value.Value{}, false
		}
		out, err := value.Arithmetic(l, n.Op, r)
		if err != nil {
			return value.Value{}, false
		}
		return out, true

	case *ast.Compare:
		l, ok := ConstFold(n.Left)
		if !ok {
			return value.Value{}, false
		}
		r, ok := ConstFold(n.Right)
		if !ok {
			return value.Value{}, false
		}
		b, err := value.Compare(l, n.Op, r)
		if err != nil {
			return value.Value{}, false
		}
		return value.Boolean(b), true

	case *ast.Convert:
		v, ok := ConstFold(n.Operand)
		if !ok {
			return value.Value{}, false
		}
		out, err := FoldConvert(v, n)
		if err != nil {
			return value.Value{}, false
		}
		return out, true

	case *ast.Math:
		v, ok := ConstFold(n.Operand)
		if !ok {
			return value.Value{}, false
		}
		out, err := ApplyMath(n.Func, v)
		if err != nil {
			return value.Value{}, false
		}
		return out, true
	}
	return value.Value{}, false
}

// FoldConvert applies an `in` conversion node to a concrete value.
func FoldConvert(v value.Value, n *ast.Convert) (value.Value, error) {
	switch {
	case n.IsMoney:
		return value.ConvertMoney(v, n.Unit)
	case n.Unit == "percentage":
		if v.Kind == value.KindNumber {
			return value.Percentage(v.Num.Mul(decimal.NewFromInt(100))), nil
		}
		if v.Kind == value.KindPercentage {
			return v, nil
		}
		return value.Value{}, &convertError{v.Kind.String()}
	default:
		return value.Convert(v, n.Unit)
	}
}

type convertError struct{ kind string }

func (e *convertError) Error() string {
	return "cannot convert " + e.kind + " value to percentage"
}

// ApplyMath applies a prefix math function to a number. Trigonometric and
// transcendental functions go through float64; abs, floor, ceil and round
// stay in decimal.
func ApplyMath(fn ast.MathFunc, v value.Value) (value.Value, error) {
	if v.Kind != value.KindNumber {
		// abs also applies to tagged magnitudes
		if fn == ast.FuncAbs && v.IsNumeric() {
			return v.WithNum(v.Num.Abs()), nil
		}
		return value.Value{}, &mathError{string(fn), v.Kind.String()}
	}
	switch fn {
	case ast.FuncAbs:
		return value.Number(v.Num.Abs()), nil
	case ast.FuncFloor:
		return value.Number(v.Num.Floor()), nil
	case ast.FuncCeil:
		return value.Number(v.Num.Ceil()), nil
	case ast.FuncRound:
		return value.Number(v.Num.Round(0)), nil
	}

	f, _ := v.Num.Float64()
	var out float64
	switch fn {
	case ast.FuncSqrt:
		out = math.Sqrt(f)
	case ast.FuncSin:
		out = math.Sin(f)
	case ast.FuncCos:
		out = math.Cos(f)
	case ast.FuncTan:
		out = math.Tan(f)
	case ast.FuncAsin:
		out = math.Asin(f)
	case ast.FuncAcos:
		out = math.Acos(f)
	case ast.FuncAtan:
		out = math.Atan(f)
	case ast.FuncLog:
		out = math.Log(f)
	case ast.FuncExp:
		out = math.Exp(f)
	default:
		return value.Value{}, &mathError{string(fn), v.Kind.String()}
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return value.Value{}, &mathError{string(fn), "result cannot be represented"}
	}
	return value.Number(decimal.NewFromFloat(out)), nil
}

type mathError struct{ fn, detail string }

func (e *mathError) Error() string {
	return e.fn + " not defined for " + e.detail
}
