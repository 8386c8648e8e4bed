package calc

import (
	"fmt"
	"strings"
)

// UndefinedVariableError lists every name in the expression that is neither a
// bound variable nor a known function.
type UndefinedVariableError struct {
	Names []string
}

func (e *UndefinedVariableError) Error() string {
	return strings.Join(e.Names, " ")
}

// DomainError is raised when a function is applied outside its domain
// (factorial of a negative or non-integer value).
type DomainError struct {
	Func  string
	Value complex128
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s() only accepts non-negative integral values, got %v", e.Func, e.Value)
}

// SyntaxError reports the byte offset where parsing stopped.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Msg)
}

// EvalError covers arithmetic failures during evaluation.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string { return e.Msg }
