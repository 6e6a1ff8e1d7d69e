package engine

import (
	"errors"
	"fmt"
)

// Error codes carried by AppError. The HTTP layer maps them to statuses and
// the CLI maps them to exit codes: parse/semantic/limit failures are ingest
// errors (exit 2), evaluation failures are runtime errors (exit 1).
const (
	CodeSyntax    = "SYNTAX_ERROR"
	CodeSemantic  = "SEMANTIC_ERROR"
	CodeLimit     = "LIMIT_EXCEEDED"
	CodeNotFound  = "NOT_FOUND"
	CodeTimeout   = "EVALUATION_TIMEOUT"
	CodeInversion = "INVERSION_ERROR"
	CodeBadInput  = "BAD_INPUT"
)

// AppError is the typed error surfaced by the workspace API.
type AppError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (e *AppError) Error() string { return e.Message }

func NewAppError(code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

func Errorf(code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing document or rule.
func NotFoundError(kind, name string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %q not found", kind, name)}
}

// TimeoutError reports an exceeded evaluation deadline. No partial results
// accompany it.
func TimeoutError(limit string) *AppError {
	return &AppError{Code: CodeTimeout, Message: "evaluation deadline exceeded (" + limit + ")"}
}

// IsIngestError reports whether err rejects a document (parse, semantic, or
// limit failure) as opposed to an evaluation failure.
func IsIngestError(err error) bool {
	var app *AppError
	if errors.As(err, &app) {
		switch app.Code {
		case CodeSyntax, CodeSemantic, CodeLimit:
			return true
		}
	}
	return false
}
