// Package sandbox runs problem author code with an embedded Go interpreter.
//
// A program is a Go compilation unit without a package clause that declares
// func Run(g map[string]interface{}). Exec interprets it, then calls Run with
// the caller's globals. Besides the caller's keys, g carries "seed" (int64)
// and "random" (*rand.Rand seeded with it) so author code draws repeatable
// values.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"math/rand"
	"path"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"
)

// DefaultAllowed are the packages author code may import unless the unsafe
// gate is open.
var DefaultAllowed = []string{
	"bytes", "encoding/json", "errors", "fmt", "math", "math/cmplx", "math/rand",
	"regexp", "sort", "strconv", "strings", "time", "unicode", "unicode/utf8",
}

// ExecError is any failure of author code: it did not parse, imported a
// package outside the whitelist, panicked or ran out of time.
type ExecError struct {
	Stage  string
	Err    error
	Output string
}

func (e *ExecError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %v (output: %s)", e.Stage, e.Err, e.Output)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

type Sandbox struct {
	allowed map[string]bool
	timeout time.Duration
	log     *zap.Logger
}

type Option func(*Sandbox)

func WithTimeout(d time.Duration) Option { return func(s *Sandbox) { s.timeout = d } }
func WithLogger(l *zap.Logger) Option    { return func(s *Sandbox) { s.log = l } }

// WithAllowed replaces the import whitelist.
func WithAllowed(pkgs ...string) Option {
	return func(s *Sandbox) {
		s.allowed = map[string]bool{}
		for _, p := range pkgs {
			s.allowed[p] = true
		}
	}
}

func New(opts ...Option) *Sandbox {
	s := &Sandbox{timeout: 5 * time.Second, log: zap.NewNop()}
	WithAllowed(DefaultAllowed...)(s)
	for _, o := range opts {
		o(s)
	}
	return s
}

// Exec interprets code and calls its Run function with globals. Run may
// mutate globals; the caller reads results from the map afterwards.
//
// Interpreted code cannot be preempted: on timeout Exec returns but the
// goroutine running Run is abandoned until Run returns on its own.
func (s *Sandbox) Exec(ctx context.Context, code string, globals map[string]interface{}, seed int64, unsafe bool) error {
	src := "package main\n\n" + code
	if !unsafe {
		if err := s.checkImports(src); err != nil {
			return err
		}
	}

	var out bytes.Buffer
	i := interp.New(interp.Options{Stdout: &out, Stderr: &out})
	symbols := stdlib.Symbols
	if !unsafe {
		symbols = s.filter(stdlib.Symbols)
	}
	if err := i.Use(symbols); err != nil {
		return &ExecError{Stage: "load", Err: err}
	}
	if _, err := i.Eval(src); err != nil {
		return &ExecError{Stage: "compile", Err: err, Output: out.String()}
	}
	v, err := i.Eval("main.Run")
	if err != nil {
		return &ExecError{Stage: "compile", Err: fmt.Errorf("Run function not found: %w", err)}
	}
	run, ok := v.Interface().(func(map[string]interface{}))
	if !ok {
		return &ExecError{Stage: "compile", Err: fmt.Errorf("Run has signature %s, want func(map[string]interface{})", v.Type())}
	}

	globals["seed"] = seed
	globals["random"] = rand.New(rand.NewSource(seed))

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				s.log.Debug("author code panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
				done <- fmt.Errorf("panic: %v", p)
			}
		}()
		run(globals)
		done <- nil
	}()
	select {
	case err := <-done:
		if err != nil {
			return &ExecError{Stage: "run", Err: err, Output: out.String()}
		}
		return nil
	case <-ctx.Done():
		s.log.Warn("author code timed out", zap.Duration("timeout", s.timeout))
		return &ExecError{Stage: "run", Err: fmt.Errorf("execution timed out: %w", ctx.Err())}
	}
}

func (s *Sandbox) checkImports(src string) error {
	f, err := parser.ParseFile(token.NewFileSet(), "problem.go", src, parser.ImportsOnly)
	if err != nil {
		return &ExecError{Stage: "parse", Err: err}
	}
	var forbidden []string
	for _, imp := range f.Imports {
		p, _ := strconv.Unquote(imp.Path.Value)
		if !s.allowed[p] {
			forbidden = append(forbidden, p)
		}
	}
	if len(forbidden) > 0 {
		return &ExecError{Stage: "imports", Err: fmt.Errorf("forbidden imports: %s", strings.Join(forbidden, ", "))}
	}
	return nil
}

// filter keeps the symbol tables of whitelisted packages. Keys have the form
// "import/path/name".
func (s *Sandbox) filter(all interp.Exports) interp.Exports {
	out := interp.Exports{}
	for key, syms := range all {
		if s.allowed[path.Dir(key)] {
			out[key] = syms
		}
	}
	return out
}

// Allowed lists the whitelist, sorted.
func (s *Sandbox) Allowed() []string {
	out := make([]string, 0, len(s.allowed))
	for p := range s.allowed {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
