package grading

import (
	"errors"
	"math"
	"math/cmplx"
	"strings"

	"github.com/mind-engage/mindengage-capa/internal/calc"
)

// DefaultTolerance is relative: 0.001% of the larger magnitude.
const DefaultTolerance = "0.001%"

// CompareWithTolerance reports whether student is within tolerance of
// instructor. tolerance is an expression, optionally with a trailing % meaning
// a fraction of |instructor|. DefaultTolerance, or relative=true, scales the
// tolerance by the larger magnitude of the two values instead.
func CompareWithTolerance(student, instructor complex128, tolerance string, relative bool) (bool, error) {
	tol, rel, err := parseTolerance(tolerance, instructor, relative)
	if err != nil {
		return false, err
	}
	return compareWithTolerance(student, instructor, tol, rel), nil
}

func parseTolerance(tolerance string, instructor complex128, relative bool) (float64, bool, error) {
	tolerance = strings.TrimSpace(tolerance)
	if tolerance == DefaultTolerance {
		relative = true
	}
	if strings.HasSuffix(tolerance, "%") {
		v, err := calc.Evaluate(nil, nil, strings.TrimSuffix(tolerance, "%"), false)
		if err != nil {
			return 0, false, err
		}
		tol := real(v) * 0.01
		if !relative {
			tol *= cmplx.Abs(instructor)
		}
		return tol, relative, nil
	}
	v, err := calc.Evaluate(nil, nil, tolerance, false)
	if err != nil {
		return 0, false, err
	}
	return real(v), relative, nil
}

// compareWithTolerance is the numeric core. The difference is taken in
// floating point, so 1.1 vs 1.0 is just over a 0.1 tolerance.
func compareWithTolerance(student, instructor complex128, tol float64, relative bool) bool {
	if relative {
		tol *= math.Max(cmplx.Abs(student), cmplx.Abs(instructor))
	}
	if cmplx.IsInf(student) || cmplx.IsInf(instructor) {
		return student == instructor
	}
	if cmplx.IsNaN(student) || cmplx.IsNaN(instructor) {
		return false
	}
	return cmplx.Abs(student-instructor) <= tol
}

// numberInputError converts an evaluator failure on a numerical answer into a
// student-facing error.
func (b *Base) numberInputError(answer string, err error) *StudentInputError {
	var (
		undef  *calc.UndefinedVariableError
		domain *calc.DomainError
		syntax *calc.SyntaxError
	)
	esc := escapeHTML(answer)
	switch {
	case errors.As(err, &undef):
		return &StudentInputError{Kind: InputUndefinedVariable, Err: err,
			Msg: b.System.tr("You may not use variables (%s) in numerical problems.", undef.Error())}
	case errors.As(err, &domain):
		return &StudentInputError{Kind: InputDomain, Err: err,
			Msg: b.System.tr("factorial function evaluated outside its domain:'%s'", esc)}
	case errors.As(err, &syntax):
		return &StudentInputError{Kind: InputSyntax, Err: err,
			Msg: b.System.tr("Invalid math syntax: '%s'", esc)}
	default:
		return &StudentInputError{Kind: InputParse, Err: err,
			Msg: b.System.tr("Could not interpret '%s' as a number.", esc)}
	}
}

// staffNumber reads an author answer as a complex literal or, failing that,
// an expression.
func (b *Base) staffNumber(answer string) (complex128, error) {
	if v, err := calc.ParseComplex(answer); err == nil {
		return v, nil
	}
	v, err := calc.Evaluate(nil, nil, answer, false)
	if err != nil {
		return 0, &StudentInputError{Kind: InputStaffAnswer, Err: err,
			Msg: b.System.tr("There was a problem with the staff answer to this problem.")}
	}
	return v, nil
}
