package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies statement parse failures.
type ErrorKind string

const (
	KindEncoding             ErrorKind = "EncodingError"
	KindMalformedHeader      ErrorKind = "MalformedHeader"
	KindUnbalancedTag        ErrorKind = "UnbalancedTag"
	KindInvalidXML           ErrorKind = "InvalidXml"
	KindMissingRequiredField ErrorKind = "MissingRequiredField"
	KindUnparseableAmount    ErrorKind = "UnparseableAmount"
	KindUnparseableDate      ErrorKind = "UnparseableDate"
	KindUnsupportedOperation ErrorKind = "UnsupportedOperationKind"
	KindIncompleteRecord     ErrorKind = "IncompleteRecord"
	KindUnsupportedVersion   ErrorKind = "UnsupportedVersion"

	// KindUnknownField only appears on diagnostics.
	KindUnknownField ErrorKind = "UnknownField"
)

// ParseError is a located statement parse failure.
type ParseError struct {
	Kind   ErrorKind
	Format string
	Line   int
	Tag    string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.Format != "" {
		b.WriteString(e.Format)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Tag != "" {
		fmt.Fprintf(&b, " <%s>", e.Tag)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, ": %q", e.Value)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is matches another *ParseError by Kind, so callers can test with
// errors.Is(err, &ParseError{Kind: KindUnbalancedTag}).
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsKind reports whether err wraps a ParseError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *ParseError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == kind
}

// Diagnostic records a skipped record or an ignored line.
type Diagnostic struct {
	Line    int
	Kind    ErrorKind
	Message string
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", d.Line, d.Kind, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// DiagnosticFrom turns a per-record error into a diagnostic.
func DiagnosticFrom(err error) Diagnostic {
	var pe *ParseError
	if errors.As(err, &pe) {
		return Diagnostic{Line: pe.Line, Kind: pe.Kind, Message: pe.Error()}
	}
	return Diagnostic{Message: err.Error()}
}
