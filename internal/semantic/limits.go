// Package semantic validates parsed documents: symbol resolution, type
// inference, dimension and currency checks, dependency cycles, and resource
// limits.
package semantic

import (
	"time"

	"github.com/benrogmans/lemma/internal/parser"
)

// Limits bound what a workspace will accept and how long one evaluation may
// run. The defaults are far above legitimate usage.
type Limits struct {
	MaxDocuments        int           `mapstructure:"max_documents"`
	MaxFileSize         int           `mapstructure:"max_file_size"`
	MaxExpressionDepth  int           `mapstructure:"max_expression_depth"`
	MaxIdentifierLength int           `mapstructure:"max_identifier_length"`
	MaxStringLength     int           `mapstructure:"max_string_length"`
	MaxFactValueBytes   int           `mapstructure:"max_fact_value_bytes"`
	EvaluationTimeout   time.Duration `mapstructure:"evaluation_timeout"`
}

// DefaultLimits returns the documented defaults: 1000 documents, 5 MiB
// files, depth 100, identifiers up to 256 chars, strings up to 1 MiB, fact
// values up to 1 KiB, and a 1 second evaluation deadline.
func DefaultLimits() Limits {
	return Limits{
		MaxDocuments:        1000,
		MaxFileSize:         5 * 1024 * 1024,
		MaxExpressionDepth:  100,
		MaxIdentifierLength: 256,
		MaxStringLength:     1024 * 1024,
		MaxFactValueBytes:   1024,
		EvaluationTimeout:   time.Second,
	}
}

// ParserOptions projects the limits the parser enforces.
func (l Limits) ParserOptions() parser.Options {
	return parser.Options{
		MaxFileSize:  l.MaxFileSize,
		MaxExprDepth: l.MaxExpressionDepth,
		MaxIdentLen:  l.MaxIdentifierLength,
		MaxStringLen: l.MaxStringLength,
	}
}
