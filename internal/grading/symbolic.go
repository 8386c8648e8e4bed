package grading

import (
	"context"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/calc"
)

var symbolicSpec = typeSpec{allowedInputs: customInputs, maxInputs: 1}

// symbolicSamples is how many points symmathCheck evaluates at.
const symbolicSamples = 20

// newSymbolicResponse is a CustomResponse whose check is always the built-in
// symbolic equivalence test.
func newSymbolicResponse(b *Base, cfg *config) (Response, error) {
	b.XML.Set("cfn", "symmath_check")
	resp, err := newCustomResponse(b, cfg)
	if err != nil {
		return nil, err
	}
	r := resp.(*CustomResponse)
	r.check = func(_ context.Context, idset []string, submission []interface{}, g map[string]interface{}) error {
		given, _ := submission[0].(string)
		ok, msg, err := symmathCheck(r.expect, given, r.Context.seed())
		if err != nil {
			r.System.logger().Error("symbolic response check failed", zap.String("response", r.ID), zap.Error(err))
			return &ResponseError{Msg: r.System.tr("An error occurred with SymbolicResponse. The error was: %v", err), Err: err}
		}
		g["messages"].([]string)[0] = cleanMessageHTML(msg)
		verdict := "incorrect"
		if ok {
			verdict = "correct"
		}
		correct := make([]string, len(idset))
		for i := range correct {
			correct[i] = verdict
		}
		g["correct"] = correct
		return nil
	}
	return r, nil
}

// symmathCheck decides whether given is mathematically equal to expect by
// evaluating both at random points for every free variable that appears in
// either. A student expression that does not evaluate is wrong, not an
// error; a staff expression that does not evaluate is an error.
func symmathCheck(expect, given string, seed int64) (bool, string, error) {
	ev, _, err := calc.Names(expect)
	if err != nil {
		return false, "", err
	}
	gv, _, err := calc.Names(given)
	if err != nil {
		return false, "Error in evaluating your expression: " + escapeHTML(given), nil
	}
	var free []string
	for _, v := range append(ev, gv...) {
		if _, builtin := calc.DefaultVariables[v]; !builtin && !hasString(free, v) {
			free = append(free, v)
		}
	}
	sort.Strings(free)
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < symbolicSamples; i++ {
		vars := make(map[string]complex128, len(free))
		for _, v := range free {
			vars[v] = complex(0.5+2*rng.Float64(), 0)
		}
		want, err := calc.Evaluate(vars, nil, expect, true)
		if err != nil {
			return false, "", err
		}
		got, err := calc.Evaluate(vars, nil, given, true)
		if err != nil {
			return false, "Error in evaluating your expression: " + escapeHTML(given), nil
		}
		ok, err := CompareWithTolerance(got, want, "1e-6", true)
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, "", nil
		}
	}
	return true, "", nil
}
