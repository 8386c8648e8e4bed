package grading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
)

var javascriptSpec = typeSpec{allowedInputs: []string{"javascriptinput"}, maxInputs: 1}

// Driver scripts a NodeRunner must provide.
const (
	NodeGeneratorScript = "javascript_problem_generator.js"
	NodeGraderScript    = "javascript_problem_grader.js"
)

type jsComponent struct {
	src          string
	dependencies []string
	class        string
}

// JavascriptResponse generates problem state and grades submissions with
// author JavaScript run under Node.js. Node code is not sandboxed, so the
// type only works when unsafe code is allowed.
type JavascriptResponse struct {
	*Base
	generator jsComponent
	grader    jsComponent
	display   jsComponent

	params       map[string]interface{}
	problemState interface{}
	solution     *string
}

func newJavascriptResponse(b *Base, _ *config) (Response, error) {
	r := &JavascriptResponse{Base: b, params: map[string]interface{}{}}
	for _, part := range []struct {
		tag string
		dst *jsComponent
	}{{"generator", &r.generator}, {"grader", &r.grader}, {"display", &r.display}} {
		found := b.XML.Descendants(part.tag)
		if len(found) == 0 {
			return nil, specErrorf("%s: missing <%s>\nSee XML source line %s", b, part.tag, b.XML.SourceLine())
		}
		el := found[0]
		*part.dst = jsComponent{src: el.Get("src"), dependencies: strings.Fields(el.Get("dependencies")), class: el.Get("class")}
		if el.Parent != nil {
			el.Parent.Remove(el)
		}
	}
	for _, p := range b.XML.Descendants("responseparam") {
		var v interface{}
		if err := json.Unmarshal([]byte(b.Context.Expand(p.Get("value"))), &v); err != nil {
			return nil, &SpecificationError{Msg: fmt.Sprintf("%s: responseparam %s is not JSON", b, p.Get("name")), Err: err}
		}
		r.params[p.Get("name")] = v
	}
	if r.generator.src != "" {
		state, err := r.generateProblemState(context.Background())
		if err != nil {
			return nil, err
		}
		r.problemState = state
	}
	r.prepareInputs()
	return r, nil
}

func (r *JavascriptResponse) callNode(ctx context.Context, script string, args ...string) (string, error) {
	if !r.System.unsafe() {
		return "", specErrorf("%s", r.System.tr("Execution of unsafe Javascript code is not allowed."))
	}
	if r.System.Node == nil {
		return "", specErrorf("%s: no Node.js runner configured", r)
	}
	return r.System.Node.Run(ctx, script, args...)
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func (r *JavascriptResponse) generateProblemState(ctx context.Context) (interface{}, error) {
	out, err := r.callNode(ctx, NodeGeneratorScript,
		r.generator.src,
		mustJSON(r.generator.dependencies),
		mustJSON(fmt.Sprint(r.Context.seed())),
		mustJSON(r.params))
	if err != nil {
		return nil, r.nodeFailure("generator", err)
	}
	var state interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &state); err != nil {
		return nil, &ResponseError{Msg: fmt.Sprintf("%s: generator output is not JSON", r), Err: err}
	}
	return state, nil
}

func (r *JavascriptResponse) nodeFailure(stage string, err error) error {
	var spec *SpecificationError
	if errors.As(err, &spec) {
		return spec
	}
	r.System.logger().Warn("javascript response node call failed",
		zap.String("response", r.ID), zap.String("stage", stage), zap.Error(err))
	return &ResponseError{Msg: fmt.Sprintf("%s: %s failed: %v", r, stage, err), Err: err}
}

// prepareInputs passes params, state and display settings to the input
// widgets as attributes.
func (r *JavascriptResponse) prepareInputs() {
	for _, in := range r.XML.Descendants("javascriptinput") {
		in.Set("params", mustJSON(r.params))
		in.Set("problem_state", mustJSON(r.problemState))
		in.Set("display_file", "compiled/"+r.ID+".js")
		in.Set("display_class", r.display.class)
	}
}

// runGrader returns whether the submission is correct, the evaluation shown
// to the student and the solution. The grader prints them on three lines.
func (r *JavascriptResponse) runGrader(ctx context.Context, submission string) (bool, string, string, error) {
	if submission == "" {
		submission = "null"
	}
	out, err := r.callNode(ctx, NodeGraderScript,
		r.grader.src,
		mustJSON(r.grader.dependencies),
		submission,
		mustJSON(r.problemState),
		mustJSON(r.params))
	if err != nil {
		return false, "", "", r.nodeFailure("grader", err)
	}
	lines := strings.Split(out, "\n")
	if len(lines) < 3 {
		return false, "", "", &ResponseError{Msg: fmt.Sprintf("%s: grader printed %d lines, want 3", r, len(lines))}
	}
	var correct bool
	if err := json.Unmarshal([]byte(strings.TrimSpace(lines[0])), &correct); err != nil {
		return false, "", "", &ResponseError{Msg: fmt.Sprintf("%s: grader verdict is not a boolean", r), Err: err}
	}
	return correct, strings.TrimSpace(lines[1]), strings.TrimSpace(lines[2]), nil
}

func (r *JavascriptResponse) Score(ctx context.Context, s Submission) (*correctmap.Map, error) {
	submission, _ := s.String(r.AnswerID)
	correct, evaluation, solution, err := r.runGrader(ctx, submission)
	if err != nil {
		return nil, err
	}
	r.solution = &solution
	cm := correctmap.New()
	if correct {
		cm.SetCorrectness(r.AnswerID, correctmap.Correct, correctmap.Points(float64(r.MaxScore())), evaluation)
	} else {
		cm.SetCorrectness(r.AnswerID, correctmap.Incorrect, correctmap.Points(0), evaluation)
	}
	return cm, nil
}

// Answers returns the grader's solution, asking the grader with an empty
// submission when nothing has been graded yet.
func (r *JavascriptResponse) Answers() map[string]interface{} {
	if r.solution == nil {
		_, _, solution, err := r.runGrader(context.Background(), "")
		if err != nil {
			r.System.logger().Error("javascript response answers", zap.String("response", r.ID), zap.Error(err))
			return map[string]interface{}{}
		}
		r.solution = &solution
	}
	return map[string]interface{}{r.AnswerID: *r.solution}
}
