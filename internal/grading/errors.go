package grading

import (
	"fmt"
)

// SpecificationError is an authoring bug in the problem document.
type SpecificationError struct {
	Msg string
	Err error
}

func (e *SpecificationError) Error() string { return e.Msg }
func (e *SpecificationError) Unwrap() error { return e.Err }

func specErrorf(format string, args ...interface{}) *SpecificationError {
	return &SpecificationError{Msg: fmt.Sprintf(format, args...)}
}

// InputErrorKind classifies student input failures for feedback.
type InputErrorKind string

const (
	InputUndefinedVariable InputErrorKind = "undefined-variable"
	InputDomain            InputErrorKind = "domain"
	InputSyntax            InputErrorKind = "syntax"
	InputParse             InputErrorKind = "parse"
	InputComplex           InputErrorKind = "complex"
	InputStaffAnswer       InputErrorKind = "staff-answer"
)

// StudentInputError is an expected, student-facing failure: the submission
// could not be interpreted. It is never logged as a system error.
type StudentInputError struct {
	Kind InputErrorKind
	Msg  string
	Err  error
}

func (e *StudentInputError) Error() string { return e.Msg }
func (e *StudentInputError) Unwrap() error { return e.Err }

// ResponseError is a failure while processing a response: author code
// raised, a hint function failed, a pattern did not compile.
type ResponseError struct {
	Msg string
	Err error
}

func (e *ResponseError) Error() string { return e.Msg }
func (e *ResponseError) Unwrap() error { return e.Err }

func responseErrorf(err error, format string, args ...interface{}) *ResponseError {
	return &ResponseError{Msg: fmt.Sprintf(format, args...), Err: err}
}
