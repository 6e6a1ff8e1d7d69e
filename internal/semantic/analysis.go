package semantic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/benrogmans/lemma/internal/ast"
)

// Refs collects the fact and rule references appearing in an expression.
type Refs struct {
	Facts [][]string
	Rules [][]string
}

// ExtractRefs walks an expression and returns every reference it contains.
func ExtractRefs(e ast.Expr) Refs {
	var refs Refs
	walk(e, &refs)
	return refs
}

// RuleRefs returns the references of a rule's base expression and all of its
// unless clauses (conditions and results).
func RuleRefs(r *ast.Rule) Refs {
	var refs Refs
	walk(r.Base, &refs)
	for _, uc := range r.Unless {
		walk(uc.Condition, &refs)
		walk(uc.Result, &refs)
	}
	return refs
}

func walk(e ast.Expr, refs *Refs) {
	switch n := e.(type) {
	case *ast.FactRef:
		refs.Facts = append(refs.Facts, n.Path)
	case *ast.RuleRef:
		refs.Rules = append(refs.Rules, n.Path)
	case *ast.HasValue:
		refs.Facts = append(refs.Facts, n.Fact)
	case *ast.And:
		walk(n.Left, refs)
		walk(n.Right, refs)
	case *ast.Or:
		walk(n.Left, refs)
		walk(n.Right, refs)
	case *ast.Not:
		walk(n.Operand, refs)
	case *ast.Arith:
		walk(n.Left, refs)
		walk(n.Right, refs)
	case *ast.Compare:
		walk(n.Left, refs)
		walk(n.Right, refs)
	case *ast.Convert:
		walk(n.Operand, refs)
	case *ast.Math:
		walk(n.Operand, refs)
	}
}

// RuleKey identifies a rule across the workspace.
type RuleKey struct {
	Doc  string
	Rule string
}

func (k RuleKey) String() string { return k.Doc + "." + k.Rule }

// ResolveRuleRef turns a reference path into a RuleKey relative to the
// document it appears in. A one-segment path is local; a two-segment path
// names another document either directly or through a doc-reference fact.
func ResolveRuleRef(path []string, doc *ast.Document, docs map[string]*ast.Document) (RuleKey, error) {
	switch len(path) {
	case 1:
		return RuleKey{Doc: doc.Name, Rule: path[0]}, nil
	case 2:
		target := path[0]
		if f := doc.Fact(target); f != nil && f.Kind == ast.FactDocRef {
			target = f.DocName
		}
		if _, ok := docs[target]; !ok {
			return RuleKey{}, fmt.Errorf("unknown document %q in rule reference %s", path[0], strings.Join(path, "."))
		}
		return RuleKey{Doc: target, Rule: path[1]}, nil
	}
	return RuleKey{}, fmt.Errorf("invalid rule reference %s", strings.Join(path, "."))
}

// DependencyGraph maps each rule of doc (and every transitively referenced
// rule in other documents) to the set of rules it depends on.
func DependencyGraph(doc *ast.Document, docs map[string]*ast.Document) (map[RuleKey]map[RuleKey]bool, error) {
	graph := make(map[RuleKey]map[RuleKey]bool)
	var visit func(d *ast.Document, r *ast.Rule) error
	visit = func(d *ast.Document, r *ast.Rule) error {
		key := RuleKey{Doc: d.Name, Rule: r.Name}
		if _, done := graph[key]; done {
			return nil
		}
		deps := make(map[RuleKey]bool)
		graph[key] = deps
		for _, ref := range RuleRefs(r).Rules {
			depKey, err := ResolveRuleRef(ref, d, docs)
			if err != nil {
				return err
			}
			deps[depKey] = true
			depDoc, ok := docs[depKey.Doc]
			if !ok {
				return fmt.Errorf("unknown document %q", depKey.Doc)
			}
			depRule := depDoc.Rule(depKey.Rule)
			if depRule == nil {
				return fmt.Errorf("unknown rule %q in document %q", depKey.Rule, depKey.Doc)
			}
			if err := visit(depDoc, depRule); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range doc.Rules {
		if err := visit(doc, r); err != nil {
			return nil, err
		}
	}
	return graph, nil
}

// TopoSort orders the graph so dependencies come before dependents. Ties are
// broken alphabetically so plans are deterministic.
func TopoSort(graph map[RuleKey]map[RuleKey]bool) ([]RuleKey, error) {
	indegree := make(map[RuleKey]int, len(graph))
	dependents := make(map[RuleKey][]RuleKey)
	for node, deps := range graph {
		if _, ok := indegree[node]; !ok {
			indegree[node] = 0
		}
		for dep := range deps {
			indegree[node]++
			dependents[dep] = append(dependents[dep], node)
		}
	}

	var ready []RuleKey
	for node, n := range indegree {
		if n == 0 {
			ready = append(ready, node)
		}
	}
	sortKeys(ready)

	var order []RuleKey
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		order = append(order, node)
		next := dependents[node]
		sortKeys(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sortKeys(ready)
	}

	if len(order) != len(indegree) {
		return nil, fmt.Errorf("circular dependency detected in rules")
	}
	return order, nil
}

func sortKeys(keys []RuleKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Doc != keys[j].Doc {
			return keys[i].Doc < keys[j].Doc
		}
		return keys[i].Rule < keys[j].Rule
	})
}

// FindCycle runs a depth-first search over the graph and returns a cycle
// path (first node repeated at the end) if one exists.
func FindCycle(graph map[RuleKey]map[RuleKey]bool) []RuleKey {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[RuleKey]int, len(graph))
	var stack []RuleKey
	var cycle []RuleKey

	var dfs func(node RuleKey) bool
	dfs = func(node RuleKey) bool {
		color[node] = gray
		stack = append(stack, node)
		deps := make([]RuleKey, 0, len(graph[node]))
		for dep := range graph[node] {
			deps = append(deps, dep)
		}
		sortKeys(deps)
		for _, dep := range deps {
			switch color[dep] {
			case gray:
				// found the back edge: slice the stack from dep onward
				for i, n := range stack {
					if n == dep {
						cycle = append(append([]RuleKey{}, stack[i:]...), dep)
						return true
					}
				}
			case white:
				if dfs(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[node] = black
		return false
	}

	nodes := make([]RuleKey, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sortKeys(nodes)
	for _, node := range nodes {
		if color[node] == white && dfs(node) {
			return cycle
		}
	}
	return nil
}

// CyclePath formats a cycle for error messages: a.x -> a.y -> a.x.
func CyclePath(cycle []RuleKey) string {
	parts := make([]string, len(cycle))
	for i, k := range cycle {
		parts[i] = k.String()
	}
	return strings.Join(parts, " -> ")
}
