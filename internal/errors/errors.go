// Package errors defines the compiler's error taxonomy: the four kinds a
// compilation can produce, and which of them are fatal.
package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind names a category of compilation error.
type Kind string

const (
	// UnsupportedStatement is a statement shape the emitter cannot lower.
	// Non-fatal: emission inserts a sentinel comment block instead.
	UnsupportedStatement Kind = "UnsupportedStatement"
	// UnsupportedExpression is an expression kind outside the AST vocabulary.
	// Non-fatal: emission inserts a sentinel placeholder.
	UnsupportedExpression Kind = "UnsupportedExpression"
	// BackendRejection is a construct forbidden by a specific backend
	// (e.g. print inside the GPU backend). Fatal.
	BackendRejection Kind = "BackendRejection"
	// UnknownOperator is an operator symbol absent from the backend's
	// lowering table. Emitted as "?"; not a hard abort.
	UnknownOperator Kind = "UnknownOperator"
)

// Fatal reports whether a compilation must abort when this kind occurs.
func (k Kind) Fatal() bool {
	return k == BackendRejection
}

// CompileError carries a Kind plus the construct name that triggered it.
type CompileError struct {
	Kind      Kind
	Construct string
	Backend   string
}

func (e *CompileError) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("%s: %q is not supported by the %s backend", e.Kind, e.Construct, e.Backend)
	}
	return fmt.Sprintf("%s: %q", e.Kind, e.Construct)
}

// New builds a CompileError and, for fatal kinds, wraps it with
// github.com/pkg/errors so callers can recover the originating construct
// with errors.Cause across pass boundaries.
func New(kind Kind, construct, backend string) error {
	ce := &CompileError{Kind: kind, Construct: construct, Backend: backend}
	if !kind.Fatal() {
		return ce
	}
	return pkgerrors.Wrapf(ce, "fatal during emission")
}

// Sentinel renders the non-fatal kinds as the textual placeholder the
// shared emitter inlines in place of the unsupported construct.
func Sentinel(kind Kind, construct string) string {
	return fmt.Sprintf("/* unsupported: %s %q */", kind, construct)
}
