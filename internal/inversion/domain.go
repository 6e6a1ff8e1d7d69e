// Package inversion treats a rule as a piecewise function over its facts
// and derives the region of inputs that produces a requested outcome.
package inversion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/benrogmans/lemma/internal/value"
)

// BoundKind tags a range endpoint.
type BoundKind int

const (
	Unbounded BoundKind = iota
	Inclusive
	Exclusive
)

// Bound is one endpoint of a range.
type Bound struct {
	Kind  BoundKind
	Value value.Value
}

func (b Bound) String() string {
	switch b.Kind {
	case Unbounded:
		return "∞"
	case Inclusive:
		return "[" + b.Value.String()
	}
	return "(" + b.Value.String()
}

// Domain is the admissible set of values for a fact.
type Domain struct {
	Kind DomainKind

	// Range
	Min, Max Bound

	// Union
	Parts []Domain

	// Enumeration
	Values []value.Value

	// Complement
	Inner *Domain
}

// DomainKind tags a Domain variant.
type DomainKind int

const (
	DomainUnconstrained DomainKind = iota
	DomainRange
	DomainUnion
	DomainEnumeration
	DomainComplement
)

func Unconstrained() Domain { return Domain{Kind: DomainUnconstrained} }

func RangeDomain(min, max Bound) Domain {
	return Domain{Kind: DomainRange, Min: min, Max: max}
}

func Enumeration(vals ...value.Value) Domain {
	return Domain{Kind: DomainEnumeration, Values: vals}
}

func Union(parts ...Domain) Domain {
	return Domain{Kind: DomainUnion, Parts: parts}
}

func Complement(inner Domain) Domain {
	return Domain{Kind: DomainComplement, Inner: &inner}
}

// Empty reports whether the domain admits no value at all.
func (d Domain) Empty() bool {
	return d.Kind == DomainEnumeration && len(d.Values) == 0
}

func (d Domain) String() string {
	switch d.Kind {
	case DomainUnconstrained:
		return "any"
	case DomainEnumeration:
		parts := make([]string, len(d.Values))
		for i, v := range d.Values {
			parts[i] = v.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case DomainRange:
		var lb, rb string
		switch d.Min.Kind {
		case Unbounded:
			lb = "(-∞"
		case Inclusive:
			lb = "[" + d.Min.Value.String()
		case Exclusive:
			lb = "(" + d.Min.Value.String()
		}
		switch d.Max.Kind {
		case Unbounded:
			rb = "+∞)"
		case Inclusive:
			rb = d.Max.Value.String() + "]"
		case Exclusive:
			rb = d.Max.Value.String() + ")"
		}
		return lb + ", " + rb
	case DomainUnion:
		parts := make([]string, len(d.Parts))
		for i, p := range d.Parts {
			parts[i] = p.String()
		}
		return strings.Join(parts, " ∪ ")
	case DomainComplement:
		return "not (" + d.Inner.String() + ")"
	}
	return "?"
}

// MarshalText lets domains print in JSON payloads.
func (d Domain) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// litCmp orders two values: -1, 0, or 1. Both operands must be comparable
// (same kind or both numeric).
func litCmp(a, b value.Value) int {
	if lt, err := value.Compare(a, value.CmpLt, b); err == nil && lt {
		return -1
	}
	if eq, err := value.Compare(a, value.CmpEq, b); err == nil && eq {
		return 0
	}
	return 1
}

// --- interval normalisation ---
//
// Domains built from comparisons are normalised through sorted disjoint
// interval lists, so complements and intersections of ranges collapse into
// plain ranges instead of nested complements.

type interval struct {
	min, max Bound
}

func wholeLine() interval { return interval{Bound{Kind: Unbounded}, Bound{Kind: Unbounded}} }

func (iv interval) empty() bool {
	if iv.min.Kind == Unbounded || iv.max.Kind == Unbounded {
		return false
	}
	c := litCmp(iv.min.Value, iv.max.Value)
	if c > 0 {
		return true
	}
	if c == 0 {
		return iv.min.Kind == Exclusive || iv.max.Kind == Exclusive
	}
	return false
}

// intervals converts a comparison-shaped domain into an interval list.
// Returns false for domains that are not interval-expressible.
func (d Domain) intervals() ([]interval, bool) {
	switch d.Kind {
	case DomainUnconstrained:
		return []interval{wholeLine()}, true
	case DomainRange:
		return []interval{{d.Min, d.Max}}, true
	case DomainEnumeration:
		out := make([]interval, 0, len(d.Values))
		for _, v := range d.Values {
			out = append(out, interval{Bound{Inclusive, v}, Bound{Inclusive, v}})
		}
		return out, true
	case DomainUnion:
		var out []interval
		for _, p := range d.Parts {
			ivs, ok := p.intervals()
			if !ok {
				return nil, false
			}
			out = append(out, ivs...)
		}
		return out, true
	case DomainComplement:
		inner, ok := d.Inner.intervals()
		if !ok {
			return nil, false
		}
		return complementIntervals(inner), true
	}
	return nil, false
}

func minBoundLess(a, b Bound) bool {
	if a.Kind == Unbounded {
		return b.Kind != Unbounded
	}
	if b.Kind == Unbounded {
		return false
	}
	c := litCmp(a.Value, b.Value)
	if c != 0 {
		return c < 0
	}
	return a.Kind == Inclusive && b.Kind == Exclusive
}

// mergeIntervals sorts and fuses overlapping or touching intervals.
func mergeIntervals(ivs []interval) []interval {
	kept := ivs[:0]
	for _, iv := range ivs {
		if !iv.empty() {
			kept = append(kept, iv)
		}
	}
	if len(kept) <= 1 {
		return kept
	}
	sort.SliceStable(kept, func(i, j int) bool { return minBoundLess(kept[i].min, kept[j].min) })
	out := []interval{kept[0]}
	for _, iv := range kept[1:] {
		last := &out[len(out)-1]
		if overlapsOrTouches(*last, iv) {
			if maxBoundLess(last.max, iv.max) {
				last.max = iv.max
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

func maxBoundLess(a, b Bound) bool {
	if a.Kind == Unbounded || b.Kind == Unbounded {
		return a.Kind != Unbounded && b.Kind == Unbounded
	}
	c := litCmp(a.Value, b.Value)
	if c != 0 {
		return c < 0
	}
	return a.Kind == Exclusive && b.Kind == Inclusive
}

func overlapsOrTouches(a, b interval) bool {
	// a.min <= b.min holds after sorting; they overlap unless a ends
	// strictly before b starts
	if a.max.Kind == Unbounded || b.min.Kind == Unbounded {
		return true
	}
	c := litCmp(a.max.Value, b.min.Value)
	if c > 0 {
		return true
	}
	if c < 0 {
		return false
	}
	return a.max.Kind == Inclusive || b.min.Kind == Inclusive
}

// complementIntervals returns the gaps between merged intervals.
func complementIntervals(ivs []interval) []interval {
	merged := mergeIntervals(ivs)
	if len(merged) == 0 {
		return []interval{wholeLine()}
	}
	var out []interval
	first := merged[0]
	if first.min.Kind != Unbounded {
		out = append(out, interval{Bound{Kind: Unbounded}, flip(first.min)})
	}
	for i := 0; i < len(merged)-1; i++ {
		out = append(out, interval{flip(merged[i].max), flip(merged[i+1].min)})
	}
	last := merged[len(merged)-1]
	if last.max.Kind != Unbounded {
		out = append(out, interval{flip(last.max), Bound{Kind: Unbounded}})
	}
	return out
}

// flip turns an endpoint into the matching endpoint of the adjacent gap.
func flip(b Bound) Bound {
	switch b.Kind {
	case Inclusive:
		return Bound{Exclusive, b.Value}
	case Exclusive:
		return Bound{Inclusive, b.Value}
	}
	return b
}

func intersectIntervalLists(a, b []interval) []interval {
	var out []interval
	for _, x := range a {
		for _, y := range b {
			iv := interval{x.min, x.max}
			if minBoundLess(iv.min, y.min) {
				iv.min = y.min
			}
			if maxBoundLess(y.max, iv.max) {
				iv.max = y.max
			}
			if !iv.empty() {
				out = append(out, iv)
			}
		}
	}
	return mergeIntervals(out)
}

// Normalize collapses a domain built from comparisons into the simplest
// equivalent form: Unconstrained, a single Range, an Enumeration, or a
// Union of ranges. Domains that are not interval-expressible are returned
// as-is.
func (d Domain) Normalize() Domain {
	ivs, ok := d.intervals()
	if !ok {
		return d
	}
	merged := mergeIntervals(ivs)
	return domainFromIntervals(merged)
}

func domainFromIntervals(ivs []interval) Domain {
	if len(ivs) == 0 {
		return Enumeration()
	}
	if len(ivs) == 1 {
		iv := ivs[0]
		if iv.min.Kind == Unbounded && iv.max.Kind == Unbounded {
			return Unconstrained()
		}
		if iv.min.Kind == Inclusive && iv.max.Kind == Inclusive && litCmp(iv.min.Value, iv.max.Value) == 0 {
			return Enumeration(iv.min.Value)
		}
		return RangeDomain(iv.min, iv.max)
	}
	parts := make([]Domain, 0, len(ivs))
	pointsOnly := true
	for _, iv := range ivs {
		part := domainFromIntervals([]interval{iv})
		if part.Kind != DomainEnumeration {
			pointsOnly = false
		}
		parts = append(parts, part)
	}
	if pointsOnly {
		var vals []value.Value
		for _, p := range parts {
			vals = append(vals, p.Values...)
		}
		return Enumeration(vals...)
	}
	return Union(parts...)
}

// IntersectDomains combines two constraints on the same variable.
func IntersectDomains(a, b Domain) Domain {
	ai, aok := a.intervals()
	bi, bok := b.intervals()
	if aok && bok {
		return domainFromIntervals(intersectIntervalLists(ai, bi))
	}
	// fall back to an explicit complement form
	return Complement(Union(Complement(a), Complement(b)))
}

// UnionDomains joins two constraints on the same variable.
func UnionDomains(a, b Domain) Domain {
	ai, aok := a.intervals()
	bi, bok := b.intervals()
	if aok && bok {
		return domainFromIntervals(mergeIntervals(append(ai, bi...)))
	}
	return Union(a, b)
}

// ComparisonDomain translates `fact <op> literal` into a domain.
func ComparisonDomain(op value.CmpOp, lit value.Value) (Domain, error) {
	switch op {
	case value.CmpEq:
		return Enumeration(lit), nil
	case value.CmpNeq:
		return Complement(Enumeration(lit)).Normalize(), nil
	case value.CmpLt:
		return RangeDomain(Bound{Kind: Unbounded}, Bound{Exclusive, lit}), nil
	case value.CmpLte:
		return RangeDomain(Bound{Kind: Unbounded}, Bound{Inclusive, lit}), nil
	case value.CmpGt:
		return RangeDomain(Bound{Exclusive, lit}, Bound{Kind: Unbounded}), nil
	case value.CmpGte:
		return RangeDomain(Bound{Inclusive, lit}, Bound{Kind: Unbounded}), nil
	}
	return Domain{}, fmt.Errorf("unsupported comparison for domain extraction: %s", op)
}
