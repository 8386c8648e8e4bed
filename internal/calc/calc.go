// Package calc evaluates the arithmetic expressions students type into numeric
// and formula answer boxes. Values are complex throughout; sqrt(-1) is i.
package calc

import (
	"math"
	"math/cmplx"
	"sort"
	"strconv"
	"strings"
)

// Func is a unary function callable from an expression.
type Func func(complex128) (complex128, error)

// DefaultVariables are bound in every evaluation unless shadowed.
var DefaultVariables = map[string]complex128{
	"i":  1i,
	"j":  1i,
	"e":  complex(math.E, 0),
	"pi": complex(math.Pi, 0),
	"k":  1.3806488e-23, // Boltzmann
	"c":  2.998e8,       // speed of light
	"T":  298.15,        // room temperature, kelvin
	"q":  1.602176565e-19,
}

// DefaultFunctions are callable in every evaluation unless shadowed.
var DefaultFunctions = map[string]Func{
	"sin":       pure(cmplx.Sin),
	"cos":       pure(cmplx.Cos),
	"tan":       pure(cmplx.Tan),
	"sec":       recip(cmplx.Cos),
	"csc":       recip(cmplx.Sin),
	"cot":       recip(cmplx.Tan),
	"sqrt":      pure(cmplx.Sqrt),
	"log10":     pure(cmplx.Log10),
	"log2":      pure(func(x complex128) complex128 { return cmplx.Log(x) / complex(math.Ln2, 0) }),
	"ln":        pure(cmplx.Log),
	"exp":       pure(cmplx.Exp),
	"arccos":    pure(cmplx.Acos),
	"arcsin":    pure(cmplx.Asin),
	"arctan":    pure(cmplx.Atan),
	"arcsec":    ofRecip(cmplx.Acos),
	"arccsc":    ofRecip(cmplx.Asin),
	"arccot":    ofRecip(cmplx.Atan),
	"abs":       pure(func(x complex128) complex128 { return complex(cmplx.Abs(x), 0) }),
	"fact":      factorial("fact"),
	"factorial": factorial("factorial"),
	"sinh":      pure(cmplx.Sinh),
	"cosh":      pure(cmplx.Cosh),
	"tanh":      pure(cmplx.Tanh),
	"sech":      recip(cmplx.Cosh),
	"csch":      recip(cmplx.Sinh),
	"coth":      recip(cmplx.Tanh),
	"arcsinh":   pure(cmplx.Asinh),
	"arccosh":   pure(cmplx.Acosh),
	"arctanh":   pure(cmplx.Atanh),
	"arcsech":   ofRecip(cmplx.Acosh),
	"arccsch":   ofRecip(cmplx.Asinh),
	"arccoth":   ofRecip(cmplx.Atanh),
}

func pure(f func(complex128) complex128) Func {
	return func(x complex128) (complex128, error) { return real0(f(x)), nil }
}

func recip(f func(complex128) complex128) Func {
	return func(x complex128) (complex128, error) { return div(1, f(x)) }
}

func ofRecip(f func(complex128) complex128) Func {
	return func(x complex128) (complex128, error) {
		r, err := div(1, x)
		if err != nil {
			return 0, err
		}
		return real0(f(r)), nil
	}
}

var postfixFactorial = factorial("factorial")

func factorial(name string) Func {
	return func(x complex128) (complex128, error) {
		v := real(x)
		if imag(x) != 0 || v < 0 || v != math.Trunc(v) {
			return 0, &DomainError{Func: name, Value: x}
		}
		g := math.Gamma(v + 1)
		return complex(g, 0), nil
	}
}

// real0 drops signed-zero noise from the imaginary part so real inputs
// produce values that print and compare as reals.
func real0(z complex128) complex128 {
	if imag(z) == 0 {
		return complex(real(z), 0)
	}
	return z
}

// Evaluate parses and evaluates expr. vars and funcs extend (and shadow) the
// defaults. Unless caseSensitive, names are matched ignoring case. An empty
// expression evaluates to NaN.
func Evaluate(vars map[string]complex128, funcs map[string]Func, expr string, caseSensitive bool) (complex128, error) {
	if strings.TrimSpace(expr) == "" {
		return cmplx.NaN(), nil
	}
	tree, err := parse(expr)
	if err != nil {
		return 0, err
	}
	env := newEnv(vars, funcs, caseSensitive)
	if err := env.check(tree); err != nil {
		return 0, err
	}
	return env.eval(tree)
}

// Names returns the sorted distinct variable and function names used in expr.
func Names(expr string) (variables, functions []string, err error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil, nil
	}
	tree, err := parse(expr)
	if err != nil {
		return nil, nil, err
	}
	vs, fs := map[string]bool{}, map[string]bool{}
	walk(tree, func(s string) { vs[s] = true }, func(s string) { fs[s] = true })
	return sortedKeys(vs), sortedKeys(fs), nil
}

// ParseComplex reads a plain complex literal such as "3", "-2.5e3", "1+2j",
// "inf" or "nan". Unlike Evaluate it accepts no operators beyond the sign
// between real and imaginary parts.
func ParseComplex(s string) (complex128, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	if strings.HasSuffix(s, "j") || strings.HasSuffix(s, "J") {
		s = s[:len(s)-1] + "i"
	}
	return strconv.ParseComplex(s, 128)
}

type env struct {
	vars          map[string]complex128
	funcs         map[string]Func
	caseSensitive bool
}

func newEnv(vars map[string]complex128, funcs map[string]Func, caseSensitive bool) *env {
	e := &env{
		vars:          map[string]complex128{},
		funcs:         map[string]Func{},
		caseSensitive: caseSensitive,
	}
	for k, v := range DefaultVariables {
		e.vars[e.key(k)] = v
	}
	for k, v := range vars {
		e.vars[e.key(k)] = v
	}
	for k, f := range DefaultFunctions {
		e.funcs[e.key(k)] = f
	}
	for k, f := range funcs {
		e.funcs[e.key(k)] = f
	}
	return e
}

func (e *env) key(s string) string {
	if e.caseSensitive {
		return s
	}
	return strings.ToLower(s)
}

// check reports every unknown name at once rather than failing on the first.
func (e *env) check(tree node) error {
	bad := map[string]bool{}
	walk(tree,
		func(s string) {
			if _, ok := e.vars[e.key(s)]; !ok {
				bad[s] = true
			}
		},
		func(s string) {
			if _, ok := e.funcs[e.key(s)]; !ok {
				bad[s] = true
			}
		})
	if len(bad) > 0 {
		return &UndefinedVariableError{Names: sortedKeys(bad)}
	}
	return nil
}

func (e *env) eval(n node) (complex128, error) {
	switch x := n.(type) {
	case numNode:
		return complex(x.v, 0), nil
	case varNode:
		return e.vars[e.key(x.name)], nil
	case callNode:
		arg, err := e.eval(x.arg)
		if err != nil {
			return 0, err
		}
		return e.funcs[e.key(x.name)](arg)
	case negNode:
		v, err := e.eval(x.x)
		return real0(-v), err
	case factNode:
		v, err := e.eval(x.x)
		if err != nil {
			return 0, err
		}
		return postfixFactorial(v)
	case parNode:
		sum := complex128(0)
		for _, sub := range x.xs {
			v, err := e.eval(sub)
			if err != nil {
				return 0, err
			}
			if v == 0 {
				return cmplx.NaN(), nil
			}
			sum += 1 / v
		}
		return div(1, sum)
	case binNode:
		l, err := e.eval(x.l)
		if err != nil {
			return 0, err
		}
		r, err := e.eval(x.r)
		if err != nil {
			return 0, err
		}
		switch x.op {
		case '+':
			return real0(l + r), nil
		case '-':
			return real0(l - r), nil
		case '*':
			return real0(l * r), nil
		case '/':
			return div(l, r)
		case '^':
			return pow(l, r), nil
		}
	}
	return 0, &EvalError{Msg: "unknown expression node"}
}

func div(a, b complex128) (complex128, error) {
	if b == 0 {
		return 0, &EvalError{Msg: "division by zero"}
	}
	return real0(a / b), nil
}

// pow stays in the reals when it can so that 2^3 is exactly 8.
func pow(a, b complex128) complex128 {
	if imag(a) == 0 && imag(b) == 0 {
		x, y := real(a), real(b)
		if x >= 0 || y == math.Trunc(y) {
			return complex(math.Pow(x, y), 0)
		}
	}
	return cmplx.Pow(a, b)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
