package engine

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benrogmans/lemma/internal/ast"
	"github.com/benrogmans/lemma/internal/parser"
	"github.com/benrogmans/lemma/internal/semantic"
	"github.com/benrogmans/lemma/internal/value"
)

// Workspace owns a set of validated, immutable documents and evaluates
// rules against them. Ingest (AddSource) takes the write lock; evaluations
// only read, so any number may run concurrently once ingest is done.
type Workspace struct {
	mu      sync.RWMutex
	docs    map[string]*ast.Document
	sources map[string]string
	limits  semantic.Limits
}

// New creates an empty workspace with default limits.
func New() *Workspace {
	return WithLimits(semantic.DefaultLimits())
}

// WithLimits creates an empty workspace with custom resource limits.
func WithLimits(limits semantic.Limits) *Workspace {
	return &Workspace{
		docs:    make(map[string]*ast.Document),
		sources: make(map[string]string),
		limits:  limits,
	}
}

// Limits returns the workspace's resource limits.
func (w *Workspace) Limits() semantic.Limits { return w.limits }

// AddSource parses and validates Lemma code and adds its documents to the
// workspace. On any error the workspace is left unchanged.
func (w *Workspace) AddSource(code, sourceName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	docs, err := parser.Parse(code, sourceName, w.limits.ParserOptions())
	if err != nil {
		return wrapIngestError(err)
	}
	v := &semantic.Validator{Limits: w.limits}
	if err := v.Validate(w.docs, docs); err != nil {
		return wrapIngestError(err)
	}
	for _, doc := range docs {
		w.docs[doc.Name] = doc
		w.sources[sourceName] = code
	}
	return nil
}

func wrapIngestError(err error) error {
	switch err.(type) {
	case *parser.SyntaxError:
		return &AppError{Code: CodeSyntax, Message: err.Error()}
	case *parser.LimitError:
		return &AppError{Code: CodeLimit, Message: err.Error()}
	case *semantic.Error:
		return &AppError{Code: CodeSemantic, Message: err.Error()}
	}
	return &AppError{Code: CodeSemantic, Message: err.Error()}
}

// ListDocuments returns the loaded document names, sorted.
func (w *Workspace) ListDocuments() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.docs))
	for name := range w.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Document returns a loaded document, or nil.
func (w *Workspace) Document(name string) *ast.Document {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.docs[name]
}

// Documents returns the full document map. The map and the documents in it
// must be treated as read-only.
func (w *Workspace) Documents() map[string]*ast.Document {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]*ast.Document, len(w.docs))
	for k, v := range w.docs {
		out[k] = v
	}
	return out
}

// FactSummary describes one fact of a document.
type FactSummary struct {
	Path    string       `json:"path"`
	Type    string       `json:"type"`
	Default *value.Value `json:"default,omitempty"`
}

// RuleSummary describes one rule and the rules it depends on.
type RuleSummary struct {
	Name         string   `json:"name"`
	Dependencies []string `json:"dependencies"`
}

// DocumentSummary is the describe-document payload.
type DocumentSummary struct {
	Name       string        `json:"name"`
	Commentary string        `json:"commentary,omitempty"`
	Facts      []FactSummary `json:"facts"`
	Rules      []RuleSummary `json:"rules"`
}

// DescribeDocument summarises a document's facts and rules.
func (w *Workspace) DescribeDocument(name string) (*DocumentSummary, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	doc, ok := w.docs[name]
	if !ok {
		return nil, NotFoundError("document", name)
	}
	summary := &DocumentSummary{Name: doc.Name, Commentary: doc.Commentary}
	for _, f := range doc.Facts {
		fs := FactSummary{Path: f.Name()}
		switch f.Kind {
		case ast.FactLiteral:
			v := f.Default
			fs.Default = &v
			fs.Type = semantic.TypeOfValue(f.Default).String()
		case ast.FactTypeAnnotation:
			fs.Type = f.TypeName
		case ast.FactDocRef:
			fs.Type = "doc " + f.DocName
		}
		summary.Facts = append(summary.Facts, fs)
	}
	for _, r := range doc.Rules {
		rs := RuleSummary{Name: r.Name}
		seen := make(map[string]bool)
		for _, ref := range semantic.RuleRefs(r).Rules {
			dep := strings.Join(ref, ".")
			if !seen[dep] {
				seen[dep] = true
				rs.Dependencies = append(rs.Dependencies, dep)
			}
		}
		summary.Rules = append(summary.Rules, rs)
	}
	return summary, nil
}

// ParseFacts parses CLI-style "name=value" strings into overrides.
func (w *Workspace) ParseFacts(factStrings []string) ([]*ast.Fact, error) {
	facts, err := parser.ParseFacts(factStrings)
	if err != nil {
		return nil, Errorf(CodeBadInput, "%v", err)
	}
	return facts, nil
}

// Evaluate runs rules of a document. With no rule names every rule is
// evaluated; otherwise only the requested rules (plus their dependencies)
// run and only they are reported. Overrides bind facts for this call only.
func (w *Workspace) Evaluate(docName string, ruleNames []string, overrides []*ast.Fact) (*Response, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	doc, ok := w.docs[docName]
	if !ok {
		return nil, NotFoundError("document", docName)
	}
	for _, name := range ruleNames {
		if doc.Rule(name) == nil {
			return nil, NotFoundError("rule", docName+"."+name)
		}
	}

	ctx := &evalContext{
		docs:   w.docs,
		scopes: make(map[string]map[string]value.Value),
		states: make(map[semantic.RuleKey]*ruleState),
		limits: w.limits,
	}
	if w.limits.EvaluationTimeout > 0 {
		ctx.deadline = time.Now().Add(w.limits.EvaluationTimeout)
	}
	buildFactScope(doc, w.docs, ctx.scopes)

	response := &Response{DocName: docName, Warnings: []string{}}
	if err := w.applyOverrides(ctx, doc, overrides, response); err != nil {
		return nil, err
	}

	targets := doc.Rules
	if len(ruleNames) > 0 {
		targets = nil
		for _, name := range ruleNames {
			targets = append(targets, doc.Rule(name))
		}
	}

	for _, rule := range targets {
		st, err := ctx.evalRule(semantic.RuleKey{Doc: docName, Rule: rule.Name})
		if err != nil {
			return nil, err
		}
		switch {
		case st.missing != nil:
			response.Results = append(response.Results, missingFactsResult(rule.Name, st.missing))
		case st.outcome.Vetoed:
			response.Results = append(response.Results, vetoResult(rule.Name, st.outcome, st.trace))
		default:
			response.Results = append(response.Results, successResult(rule.Name, st.outcome.Value, st.trace))
		}
	}

	if len(ruleNames) > 0 {
		response.filterRules(ruleNames)
	}
	return response, nil
}

// applyOverrides binds override facts into the entry document's scope,
// validating against declared types where the document declares one.
func (w *Workspace) applyOverrides(ctx *evalContext, doc *ast.Document, overrides []*ast.Fact, response *Response) error {
	scope := ctx.scopes[doc.Name]
	for _, f := range overrides {
		if f.Kind != ast.FactLiteral {
			return Errorf(CodeBadInput, "override %q must carry a value", f.Name())
		}
		val, ok := semantic.ConstFold(f.DefaultExpr)
		if !ok {
			return Errorf(CodeBadInput, "override %q must be a constant value", f.Name())
		}
		if w.limits.MaxFactValueBytes > 0 && len(val.String()) > w.limits.MaxFactValueBytes {
			return Errorf(CodeLimit, "resource limit exceeded: override %q larger than %d bytes",
				f.Name(), w.limits.MaxFactValueBytes)
		}
		name := f.Name()
		if declared := doc.Fact(name); declared != nil {
			if err := checkOverrideType(declared, val); err != nil {
				return Errorf(CodeBadInput, "override %q: %v", name, err)
			}
		} else if len(f.Path) == 1 {
			response.Warnings = append(response.Warnings,
				"override "+name+" does not match a declared fact")
		}
		scope[name] = val
	}
	return nil
}

func checkOverrideType(declared *ast.Fact, val value.Value) error {
	var want semantic.Type
	switch declared.Kind {
	case ast.FactLiteral:
		want = semantic.TypeOfValue(declared.Default)
	case ast.FactTypeAnnotation:
		var ok bool
		want, ok = semantic.AnnotationType(declared.TypeName)
		if !ok {
			return nil
		}
	default:
		return nil
	}
	got := semantic.TypeOfValue(val)
	if want.Any {
		return nil
	}
	if want.Kind != got.Kind {
		return Errorf(CodeBadInput, "expected %s, got %s", want, got)
	}
	if want.Kind == value.KindQuantity && want.Dim != got.Dim {
		return Errorf(CodeBadInput, "expected %s, got %s", want.Dim, got.Dim)
	}
	if want.Kind == value.KindMoney && want.Currency != "" && want.Currency != got.Currency {
		return Errorf(CodeBadInput, "expected %s, got %s", want.Currency, got.Currency)
	}
	return nil
}
