package grading

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/calc"
	"github.com/mind-engage/mindengage-capa/internal/correctmap"
	"github.com/mind-engage/mindengage-capa/internal/xmltree"
)

var formulaSpec = typeSpec{
	allowedInputs: []string{"textline", "formulaequationinput"},
	maxInputs:     1,
	required:      []string{"answer", "samples"},
	hintTag:       "formulahint",
}

// FormulaResponse checks a symbolic answer by evaluating it and the staff
// formula at random points. It is a probabilistic equivalence test: correct
// means every sampled pair agreed within tolerance.
type FormulaResponse struct {
	*Base
	correctAnswer string
	samples       string
	tolerance     string
	caseSensitive bool
}

func newFormulaResponse(b *Base, _ *config) (Response, error) {
	r := &FormulaResponse{
		Base:          b,
		correctAnswer: b.Context.Expand(b.XML.Get("answer")),
		samples:       b.Context.Expand(b.XML.Get("samples")),
		tolerance:     DefaultTolerance,
	}
	for _, p := range b.XML.Descendants("responseparam") {
		if def, ok := p.Lookup("default"); ok && p.Get("type") == "tolerance" {
			r.tolerance = b.Context.Expand(def)
			break
		}
	}
	types := strings.Split(b.XML.Get("type"), ",")
	r.caseSensitive = !hasString(types, "ci") && hasString(types, "cs")
	if _, err := parseSamples(r.samples); err != nil {
		return nil, &SpecificationError{Msg: b.String() + ": " + err.Error() + "\nSee XML source line " + b.XML.SourceLine(), Err: err}
	}
	return r, nil
}

func (r *FormulaResponse) Score(_ context.Context, s Submission) (*correctmap.Map, error) {
	given, _ := s.String(r.AnswerID)
	ok, err := r.checkFormula(r.correctAnswer, given, r.samples)
	if err != nil {
		return nil, err
	}
	if ok {
		return r.single(correctmap.Correct), nil
	}
	return r.single(correctmap.Incorrect), nil
}

// sampleSpec is the parsed form of "x,y@1,2:5,6#10": variables x and y drawn
// from [1,5] and [2,6], ten times.
type sampleSpec struct {
	vars  []string
	lows  []float64
	highs []float64
	n     int
}

func parseSamples(raw string) (sampleSpec, error) {
	var sp sampleSpec
	at := strings.SplitN(raw, "@", 2)
	if len(at) != 2 {
		return sp, errors.New("samples must look like vars@lows:highs#count")
	}
	hash := strings.SplitN(at[1], "#", 2)
	if len(hash) != 2 {
		return sp, errors.New("samples is missing the #count part")
	}
	n, err := strconv.Atoi(strings.TrimSpace(hash[1]))
	if err != nil {
		return sp, errors.New("samples count is not an integer")
	}
	bounds := strings.SplitN(hash[0], ":", 2)
	if len(bounds) != 2 {
		return sp, errors.New("samples range must be lows:highs")
	}
	for _, v := range strings.Split(at[0], ",") {
		sp.vars = append(sp.vars, strings.TrimSpace(v))
	}
	if sp.lows, err = floatList(bounds[0]); err != nil {
		return sp, err
	}
	if sp.highs, err = floatList(bounds[1]); err != nil {
		return sp, err
	}
	if len(sp.lows) != len(sp.vars) || len(sp.highs) != len(sp.vars) {
		return sp, errors.New("samples needs one low and one high bound per variable")
	}
	sp.n = n
	return sp, nil
}

func floatList(s string) ([]float64, error) {
	var out []float64
	for _, p := range strings.Split(s, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.New("samples bound " + strconv.Quote(p) + " is not a number")
		}
		out = append(out, f)
	}
	return out, nil
}

// bindings draws sp.n variable assignments uniformly from the ranges. The
// generator is seeded from the problem seed so a regrade sees the same points.
func (sp sampleSpec) bindings(seed int64) []map[string]complex128 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]map[string]complex128, 0, sp.n)
	for i := 0; i < sp.n; i++ {
		m := make(map[string]complex128, len(sp.vars))
		for j, v := range sp.vars {
			m[v] = complex(sp.lows[j]+rng.Float64()*(sp.highs[j]-sp.lows[j]), 0)
		}
		out = append(out, m)
	}
	return out
}

func (r *FormulaResponse) checkFormula(expected, given, samples string) (bool, error) {
	sp, err := parseSamples(samples)
	if err != nil {
		return false, &SpecificationError{Msg: r.String() + ": " + err.Error(), Err: err}
	}
	points := sp.bindings(r.Context.seed())
	student, err := r.evaluateAll(given, points)
	if err != nil {
		return false, err
	}
	staff, err := r.evaluateAll(expected, points)
	if err != nil {
		return false, err
	}
	for i := range student {
		ok, err := CompareWithTolerance(student[i], staff[i], r.tolerance, false)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (r *FormulaResponse) evaluateAll(expr string, points []map[string]complex128) ([]complex128, error) {
	out := make([]complex128, 0, len(points))
	for _, vars := range points {
		v, err := calc.Evaluate(vars, nil, expr, r.caseSensitive)
		if err != nil {
			return nil, r.formulaInputError(expr, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *FormulaResponse) formulaInputError(expr string, err error) *StudentInputError {
	var (
		undef  *calc.UndefinedVariableError
		domain *calc.DomainError
	)
	log := r.System.logger()
	esc := escapeHTML(expr)
	switch {
	case errors.As(err, &undef):
		log.Debug("formula response: undefined variable", zap.String("formula", esc))
		return &StudentInputError{Kind: InputUndefinedVariable, Err: err,
			Msg: r.System.tr("Invalid input: %s not permitted in answer.", undef.Error())}
	case errors.As(err, &domain):
		log.Debug("formula response: factorial outside its domain", zap.String("formula", esc))
		return &StudentInputError{Kind: InputDomain, Err: err,
			Msg: r.System.tr("factorial function not permitted in answer for this problem. Provided answer was: %s", esc)}
	default:
		log.Debug("formula response: cannot evaluate", zap.String("formula", esc), zap.Error(err))
		return &StudentInputError{Kind: InputParse, Err: err,
			Msg: r.System.tr("Invalid input: Could not parse '%s' as a formula", esc)}
	}
}

// CompareAnswer reports whether two formulas agree on this problem's samples.
func (r *FormulaResponse) CompareAnswer(a, b string) (bool, error) {
	return r.checkFormula(a, b, r.samples)
}

// ValidateAnswer reports whether answer evaluates at every sample point.
func (r *FormulaResponse) ValidateAnswer(answer string) bool {
	sp, err := parseSamples(r.samples)
	if err != nil {
		return false
	}
	_, err = r.evaluateAll(answer, sp.bindings(r.Context.seed()))
	return err == nil
}

func (r *FormulaResponse) Answers() map[string]interface{} {
	return map[string]interface{}{r.AnswerID: r.correctAnswer}
}

// checkHintCondition fires formulahint elements whose formula agrees with the
// submission on the hint's own samples. Evaluation failures count as no match.
func (r *FormulaResponse) checkHintCondition(hints []*xmltree.Element, s Submission) ([]string, error) {
	given, _ := s.String(r.AnswerID)
	var names []string
	for _, h := range hints {
		ok, err := r.checkFormula(r.Context.Expand(h.Get("answer")), given, h.Get("samples"))
		if err == nil && ok {
			names = append(names, h.Get("name"))
		}
	}
	return names, nil
}
