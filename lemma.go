// Package lemma evaluates and inverts business-rule documents written in
// the Lemma language.
//
// A Workspace ingests documents, validates them, and answers evaluation and
// inversion queries:
//
//	ws := lemma.NewWorkspace()
//	err := ws.AddSource(code, "pricing.lemma")
//	response, err := ws.Evaluate("pricing", nil, nil)
//
// The CLI (cmd/lemma) and the HTTP server (cmd/server, internal/server)
// are thin consumers of this API.
package lemma

import (
	"github.com/benrogmans/lemma/internal/engine"
	"github.com/benrogmans/lemma/internal/inversion"
	"github.com/benrogmans/lemma/internal/semantic"
)

// Workspace owns validated documents and serves queries against them. Safe
// for concurrent evaluation once ingest is complete.
type Workspace = engine.Workspace

// Response is the result of one Evaluate call.
type Response = engine.Response

// RuleResult is one rule's reported outcome.
type RuleResult = engine.RuleResult

// Limits bound workspace resources and evaluation time.
type Limits = semantic.Limits

// Target selects the outcome an inversion aims for.
type Target = inversion.Target

// Shape is the result of a symbolic inversion.
type Shape = inversion.Shape

// Domain is the admissible set of values for a fact.
type Domain = inversion.Domain

// NewWorkspace creates an empty workspace with default limits.
func NewWorkspace() *Workspace { return engine.New() }

// NewWorkspaceWithLimits creates an empty workspace with custom limits.
func NewWorkspaceWithLimits(limits Limits) *Workspace { return engine.WithLimits(limits) }

// DefaultLimits returns the documented resource limit defaults.
func DefaultLimits() Limits { return semantic.DefaultLimits() }

// AnyValue targets any non-veto outcome.
func AnyValue() Target { return inversion.AnyValue() }

// AnyVeto targets any veto outcome.
func AnyVeto() Target { return inversion.AnyVeto() }

// ParseTarget parses the textual target notation used by the CLI and HTTP
// surfaces: "any", "veto", "veto:<message>", or "[op]<value>".
func ParseTarget(s string) (Target, error) { return engine.ParseTarget(s) }
