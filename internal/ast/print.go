package ast

import (
	"fmt"
	"strings"
)

// String renders expressions back to readable Lemma source. The output is
// used in shapes, traces and error messages. It does not always re-parse to
// the same tree: comparisons and conversions are printed without
// parentheses, and regex literals print their pattern without re-escaping
// `/`.

func (e *Literal) String() string { return e.Value.String() }

func (e *FactRef) String() string { return strings.Join(e.Path, ".") }

func (e *RuleRef) String() string { return strings.Join(e.Path, ".") + "?" }

func (e *HasValue) String() string {
	if e.Negated {
		return "not have " + strings.Join(e.Fact, ".")
	}
	return "have " + strings.Join(e.Fact, ".")
}

func (e *And) String() string {
	return fmt.Sprintf("%s and %s", e.Left, e.Right)
}

func (e *Or) String() string {
	return fmt.Sprintf("(%s or %s)", e.Left, e.Right)
}

func (e *Not) String() string {
	return fmt.Sprintf("not (%s)", e.Operand)
}

func (e *Arith) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op.Symbol(), e.Right)
}

func (e *Compare) String() string {
	return fmt.Sprintf("%s %s %s", e.Left, e.Op.Symbol(), e.Right)
}

func (e *Convert) String() string {
	return fmt.Sprintf("%s in %s", e.Operand, strings.ToLower(e.Unit))
}

func (e *Math) String() string {
	return fmt.Sprintf("%s(%s)", e.Func, e.Operand)
}

func (e *Veto) String() string {
	if e.HasMsg {
		return fmt.Sprintf("veto %q", e.Message)
	}
	return "veto"
}

func (r *Rule) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "rule %s = %s", r.Name, r.Base)
	for _, uc := range r.Unless {
		fmt.Fprintf(&sb, " unless %s then %s", uc.Condition, uc.Result)
	}
	return sb.String()
}
