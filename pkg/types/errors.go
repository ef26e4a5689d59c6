package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a runtime error.
type ErrorKind string

// Runtime error kinds.
const (
	KindUndefinedFunction   ErrorKind = "UndefinedFunction"
	KindArityMismatch       ErrorKind = "ArityMismatch"
	KindUndeclaredVariable  ErrorKind = "UndeclaredVariable"
	KindUnsupportedOperator ErrorKind = "UnsupportedOperator"
	KindDivisionByZero      ErrorKind = "DivisionByZero"
	KindResourceExhausted   ErrorKind = "ResourceExhausted"
	KindInvalidReturn       ErrorKind = "InvalidReturn"
)

// Kinds lists every runtime error kind.
var Kinds = []ErrorKind{
	KindUndefinedFunction,
	KindArityMismatch,
	KindUndeclaredVariable,
	KindUnsupportedOperator,
	KindDivisionByZero,
	KindResourceExhausted,
	KindInvalidReturn,
}

// ParseKind returns the ErrorKind spelled s.
func ParseKind(s string) (ErrorKind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// RuntimeError is an error raised while evaluating a program.
type RuntimeError struct {
	Kind    ErrorKind
	Message string

	// Name is the offending function or variable, when there is one.
	Name string

	// Want and Got are the declared and supplied argument counts for
	// ArityMismatch.
	Want int
	Got  int
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsKind reports whether err is, or wraps, a RuntimeError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// KindOf returns the kind of the RuntimeError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var rerr *RuntimeError
	if !errors.As(err, &rerr) {
		return "", false
	}
	return rerr.Kind, true
}

// Common error constructors.

// NewUndefinedFunction creates an UndefinedFunction error.
func NewUndefinedFunction(name string) *RuntimeError {
	return &RuntimeError{
		Kind:    KindUndefinedFunction,
		Message: fmt.Sprintf("function '%s' is not defined", name),
		Name:    name,
	}
}

// NewArityMismatch creates an ArityMismatch error.
func NewArityMismatch(name string, want, got int) *RuntimeError {
	return &RuntimeError{
		Kind:    KindArityMismatch,
		Message: fmt.Sprintf("function '%s' expects %d argument(s), got %d", name, want, got),
		Name:    name,
		Want:    want,
		Got:     got,
	}
}

// NewUndeclaredVariable creates an UndeclaredVariable error.
func NewUndeclaredVariable(name string) *RuntimeError {
	return &RuntimeError{
		Kind:    KindUndeclaredVariable,
		Message: fmt.Sprintf("variable '%s' is not declared", name),
		Name:    name,
	}
}

// NewUnsupportedOperator creates an UnsupportedOperator error.
func NewUnsupportedOperator(op string) *RuntimeError {
	return &RuntimeError{
		Kind:    KindUnsupportedOperator,
		Message: fmt.Sprintf("unsupported operator '%s'", op),
		Name:    op,
	}
}

// NewDivisionByZero creates a DivisionByZero error.
func NewDivisionByZero() *RuntimeError {
	return &RuntimeError{Kind: KindDivisionByZero, Message: "division by zero"}
}

// NewResourceExhausted creates a ResourceExhausted error for call depth overflow.
func NewResourceExhausted(name string, max int) *RuntimeError {
	return &RuntimeError{
		Kind:    KindResourceExhausted,
		Message: fmt.Sprintf("call depth limit exceeded calling '%s' (max %d)", name, max),
		Name:    name,
	}
}

// NewInvalidReturn creates an InvalidReturn error for a return outside any function.
func NewInvalidReturn() *RuntimeError {
	return &RuntimeError{Kind: KindInvalidReturn, Message: "return statement outside of a function"}
}
