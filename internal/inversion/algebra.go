package inversion

import (
	"strings"

	"github.com/benrogmans/lemma/internal/ast"
	"github.com/benrogmans/lemma/internal/semantic"
	"github.com/benrogmans/lemma/internal/value"
)

// containsFact reports whether expr references the fact.
func containsFact(e ast.Expr, fact string) bool {
	for _, path := range semantic.ExtractRefs(e).Facts {
		if strings.Join(path, ".") == fact {
			return true
		}
	}
	return false
}

// factOccurrences counts references to the fact.
func factOccurrences(e ast.Expr, fact string) int {
	n := 0
	for _, path := range semantic.ExtractRefs(e).Facts {
		if strings.Join(path, ".") == fact {
			n++
		}
	}
	return n
}

// solve isolates a single unknown fact in `expr = target` by unwinding
// operations from the outside in. Supported: +, -, *, /, ^ with a known
// exponent or base, log, exp. Returns nil when the unknown appears more
// than once or an unsupported operation is in the way.
func solve(expr ast.Expr, fact string, target ast.Expr) ast.Expr {
	if factOccurrences(expr, fact) != 1 {
		return nil
	}
	return solveStep(expr, fact, target)
}

func solveStep(expr ast.Expr, fact string, target ast.Expr) ast.Expr {
	switch n := expr.(type) {
	case *ast.FactRef:
		if strings.Join(n.Path, ".") == fact {
			return target
		}
		return nil

	case *ast.Math:
		if !containsFact(n.Operand, fact) {
			return nil
		}
		switch n.Func {
		case ast.FuncExp:
			// exp(u) = t  =>  u = log(t)
			return solveStep(n.Operand, fact, &ast.Math{Func: ast.FuncLog, Operand: target})
		case ast.FuncLog:
			// log(u) = t  =>  u = exp(t)
			return solveStep(n.Operand, fact, &ast.Math{Func: ast.FuncExp, Operand: target})
		}
		return nil

	case *ast.Arith:
		inLeft := containsFact(n.Left, fact)
		inRight := containsFact(n.Right, fact)
		if inLeft == inRight {
			return nil
		}
		if inLeft {
			var next ast.Expr
			switch n.Op {
			case value.OpAdd:
				next = &ast.Arith{Left: target, Op: value.OpSub, Right: n.Right}
			case value.OpSub:
				next = &ast.Arith{Left: target, Op: value.OpAdd, Right: n.Right}
			case value.OpMul:
				next = &ast.Arith{Left: target, Op: value.OpDiv, Right: n.Right}
			case value.OpDiv:
				next = &ast.Arith{Left: target, Op: value.OpMul, Right: n.Right}
			case value.OpPow:
				// u ^ c = t  =>  u = t ^ (1/c)
				inv := &ast.Arith{
					Left:  lit(value.NumberFromInt(1)),
					Op:    value.OpDiv,
					Right: n.Right,
				}
				next = &ast.Arith{Left: target, Op: value.OpPow, Right: inv}
			default:
				return nil
			}
			return solveStep(n.Left, fact, next)
		}
		var next ast.Expr
		switch n.Op {
		case value.OpAdd:
			next = &ast.Arith{Left: target, Op: value.OpSub, Right: n.Left}
		case value.OpSub:
			// c - u = t  =>  u = c - t
			next = &ast.Arith{Left: n.Left, Op: value.OpSub, Right: target}
		case value.OpMul:
			next = &ast.Arith{Left: target, Op: value.OpDiv, Right: n.Left}
		case value.OpDiv:
			// c / u = t  =>  u = c / t
			next = &ast.Arith{Left: n.Left, Op: value.OpDiv, Right: target}
		case value.OpPow:
			// c ^ u = t  =>  u = log(t) / log(c)
			next = &ast.Arith{
				Left:  &ast.Math{Func: ast.FuncLog, Operand: target},
				Op:    value.OpDiv,
				Right: &ast.Math{Func: ast.FuncLog, Operand: n.Left},
			}
		default:
			return nil
		}
		return solveStep(n.Right, fact, next)

	case *ast.Convert:
		// invert the conversion on the target side when the operand holds
		// the unknown: (u in km) = t  =>  u = (t in <u's unit>) is not
		// expressible without the source unit, so only pass-through money
		// and same-dimension retags stay solvable via the implicit path
		return nil
	}
	return nil
}
