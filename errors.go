package aggquery

import (
	"fmt"
	"strings"
)

// sanitize truncates s to 50 characters and replaces control characters
// with "?" so offending identifiers and filter fragments are safe to place
// in error messages and logs.
func sanitize(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i >= 50 {
			break
		}
		if r < 0x20 || r == 0x7f {
			b.WriteByte('?')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// UnsupportedOperatorError reports an operator token with no registered
// parser or renderer, or a deliberately unimplemented optional feature
// (e.g. recursive $graphLookup under strict mode).
type UnsupportedOperatorError struct {
	Operator string
	Reason   string
}

func (e *UnsupportedOperatorError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported operator %q: %s", e.Operator, e.Reason)
	}
	return fmt.Sprintf("unsupported operator %q", e.Operator)
}

// ValidationIssue is one (code, message) pair within a ValidationError.
type ValidationIssue struct {
	Code    string
	Message string
}

// ValidationError reports one or more structural/shape errors: a missing
// required key, a wrong argument type, an empty sort list, an invalid
// identifier.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("validation error [%s]: %s", e.Issues[0].Code, e.Issues[0].Message)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d validation errors:", len(e.Issues))
	for _, iss := range e.Issues {
		fmt.Fprintf(&b, "\n  [%s] %s", iss.Code, iss.Message)
	}
	return b.String()
}

// NewValidationError builds a single-issue ValidationError with the offending
// text sanitized.
func NewValidationError(code, message, offending string) *ValidationError {
	msg := message
	if offending != "" {
		msg = fmt.Sprintf("%s: %q", message, sanitize(offending))
	}
	return &ValidationError{Issues: []ValidationIssue{{Code: code, Message: msg}}}
}

// TranslationError is the umbrella for internal invariant failures: the
// renderer recognised a well-formed AST it nonetheless cannot turn into
// legal SQL. Should be rare and indicates either a bug or a known,
// documented limitation.
type TranslationError struct {
	Reason string
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translation error: %s", e.Reason)
}
