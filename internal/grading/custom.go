package grading

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
)

var customInputs = []string{
	"textline", "textbox", "crystallography", "chemicalequationinput",
	"vsepr_input", "drag_and_drop_input", "editamoleculeinput",
	"designprotein2dinput", "editageneinput", "annotationinput", "jsinput",
	"formulaequationinput",
}

var customSpec = typeSpec{allowedInputs: customInputs}

// answerPrelude binds the usual check variables as locals so an <answer>
// script can write correct[0] = "correct" directly. Slices share storage
// with the globals, so assignments to their elements are seen by the grader.
const answerPrelude = `	submission := g["submission"].([]interface{})
	correct := g["correct"].([]string)
	messages := g["messages"].([]string)
	expect, _ := g["expect"].(string)
	answers := g["answers"].(map[string]interface{})
	_, _, _, _, _ = submission, correct, messages, expect, answers
`

// CustomResponse grades with author code. Two strategies exist:
//
//   - an <answer> script (inline or src= from the course filestore) run as
//     the body of Run, filling correct, messages and g["overall_message"];
//   - a check function named by cfn and declared in the problem script as
//     func name(expect string, ans interface{}, kwargs map[string]interface{}) R
//     where R is bool or a map with "ok"/"msg" or
//     "overall_message"/"input_list" keys.
type CustomResponse struct {
	*Base
	expect string
	code   string
	cfn    string

	// check replaces the sandboxed check for built-in strategies.
	check func(ctx context.Context, idset []string, submission []interface{}, g map[string]interface{}) error
}

func newCustomResponse(b *Base, _ *config) (Response, error) {
	r := &CustomResponse{Base: b, expect: b.XML.Get("expect")}
	if r.expect == "" {
		r.expect = b.XML.Get("answer")
	}
	answers := b.XML.Descendants("answer")
	if len(answers) == 0 {
		r.cfn = b.XML.Get("cfn")
		if r.cfn == "" {
			b.System.logger().Error("custom response has no checking script", zap.String("response", b.ID))
		}
		return r, nil
	}
	answer := answers[0]
	src, ok := answer.Lookup("src")
	if !ok {
		r.code = answer.Text
		return r, nil
	}
	code, err := b.readSource(src)
	if err != nil {
		return nil, err
	}
	r.code = code
	return r, nil
}

// readSource loads a script referenced by a src attribute from the course
// filestore.
func (b *Base) readSource(src string) (string, error) {
	if b.System == nil || b.System.Files == nil {
		return "", specErrorf("%s: no filestore for answer src %q\nSee XML source line %s", b, src, b.XML.SourceLine())
	}
	rc, err := b.System.Files.Get("src/" + src)
	if err != nil {
		return "", &SpecificationError{Msg: fmt.Sprintf("%s: cannot open answer src %q", b, src), Err: err}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", &SpecificationError{Msg: fmt.Sprintf("%s: cannot read answer src %q", b, src), Err: err}
	}
	return string(data), nil
}

func (r *CustomResponse) Score(ctx context.Context, s Submission) (*correctmap.Map, error) {
	idset := append([]string(nil), r.AnswerIDs...)
	sort.Strings(idset)
	submission := make([]interface{}, len(idset))
	dynamath := make([]interface{}, len(idset))
	for i, id := range idset {
		v, ok := s[id]
		if !ok {
			r.System.logger().Error("custom response: missing student answer",
				zap.String("response", r.ID), zap.Strings("idset", idset), zap.String("answer_id", id))
			return nil, &ResponseError{Msg: r.System.tr("error getting answer from %v", s) + fmt.Sprintf("\n idset = %v", idset)}
		}
		submission[i] = v
		dynamath[i] = s[id+"_dynamath"]
	}

	if len(idset) == 1 && emptyAnswer(submission[0]) {
		msg := ""
		if r.XML.Get("empty_answer_err") != "" {
			msg = inlineError(r.System.tr("No answer entered!"))
		}
		cm := correctmap.New()
		cm.SetCorrectness(idset[0], correctmap.Incorrect, nil, msg)
		return cm, nil
	}

	correct := make([]string, len(idset))
	for i := range correct {
		correct[i] = string(correctmap.Unknown)
	}
	g := map[string]interface{}{}
	if r.Context != nil {
		for k, v := range r.Context.Vars {
			g[k] = v
		}
	}
	g["response_id"] = r.ID
	g["expect"] = r.expect
	g["submission"] = submission
	g["idset"] = idset
	g["dynamath"] = dynamath
	g["answers"] = map[string]interface{}(s)
	g["correct"] = correct
	g["messages"] = make([]string, len(idset))
	g["overall_message"] = ""
	g["options"] = r.XML.Get("options")
	g["debug"] = r.System.debug()

	if err := r.executeCheck(ctx, idset, submission, g); err != nil {
		return nil, err
	}

	correct, _ = g["correct"].([]string)
	messages, _ := g["messages"].([]string)
	overall, _ := g["overall_message"].(string)
	cm := correctmap.New()
	cm.SetOverallMessage(cleanMessageHTML(overall))
	for i, id := range idset {
		c, msg := correctmap.Unknown, ""
		if i < len(correct) {
			c = correctmap.Correctness(correct[i])
		}
		if i < len(messages) {
			msg = messages[i]
		}
		points := 0.0
		if c == correctmap.Correct {
			points = float64(r.MaxPoints[id])
		}
		cm.SetCorrectness(id, c, correctmap.Points(points), msg)
	}
	return cm, nil
}

func emptyAnswer(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []string:
		return len(x) == 0
	case []interface{}:
		return len(x) == 0
	case map[string]interface{}:
		return len(x) == 0
	}
	return false
}

func (r *CustomResponse) executeCheck(ctx context.Context, idset []string, submission []interface{}, g map[string]interface{}) error {
	switch {
	case r.check != nil:
		return r.check(ctx, idset, submission, g)
	case r.cfn != "":
		return r.runCheckFunction(ctx, idset, submission, g)
	case r.code != "":
		if err := r.exec(ctx, program(r.Context.script(), answerPrelude+r.code), g); err != nil {
			return r.execFailure(err)
		}
	}
	return nil
}

func (r *CustomResponse) execFailure(err error) error {
	r.System.logger().Warn("error occurred while evaluating custom response",
		zap.String("response", r.ID), zap.Error(err))
	return &ResponseError{Msg: err.Error(), Err: err}
}

// runCheckFunction calls the cfn function with the expected answer, the
// submission (a single value for one input, the list otherwise) and the
// globals named by cfn_extra_args.
func (r *CustomResponse) runCheckFunction(ctx context.Context, idset []string, submission []interface{}, g map[string]interface{}) error {
	var ans interface{} = submission
	if len(idset) == 1 {
		ans = submission[0]
	}
	kwargs := map[string]interface{}{}
	for _, name := range strings.Fields(r.XML.Get("cfn_extra_args")) {
		kwargs[name] = g[name]
	}
	globals := map[string]interface{}{"expect": r.expect, "ans": ans, "kwargs": kwargs}
	body := fmt.Sprintf(`	g["cfn_return"] = %s(g["expect"].(string), g["ans"], g["kwargs"].(map[string]interface{}))`, r.cfn)
	if err := r.exec(ctx, program(r.Context.script(), body), globals); err != nil {
		return r.execFailure(err)
	}
	return r.applyCheckResult(globals["cfn_return"], len(idset), g)
}

// applyCheckResult interprets a check function's return value into the
// correct, messages and overall_message globals.
func (r *CustomResponse) applyCheckResult(ret interface{}, n int, g map[string]interface{}) error {
	verdict := func(ok interface{}) string {
		if truthy(ok) {
			return string(correctmap.Correct)
		}
		return string(correctmap.Incorrect)
	}
	d, isMap := ret.(map[string]interface{})
	if !isMap {
		correct := make([]string, n)
		for i := range correct {
			correct[i] = verdict(ret)
		}
		g["correct"] = correct
		return nil
	}
	if ok, has := d["ok"]; has {
		correct := make([]string, n)
		for i := range correct {
			correct[i] = verdict(ok)
		}
		msg, _ := d["msg"].(string)
		msg = cleanMessageHTML(msg)
		if n > 1 {
			g["overall_message"] = msg
		} else {
			g["messages"].([]string)[0] = msg
		}
		g["correct"] = correct
		return nil
	}
	if list, has := d["input_list"]; has {
		items := inputList(list)
		correct := make([]string, 0, len(items))
		messages := make([]string, 0, len(items))
		for _, item := range items {
			correct = append(correct, verdict(item["ok"]))
			msg, _ := item["msg"].(string)
			messages = append(messages, cleanMessageHTML(msg))
		}
		overall, _ := d["overall_message"].(string)
		g["correct"] = correct
		g["messages"] = messages
		g["overall_message"] = overall
		return nil
	}
	r.System.logger().Error("check function returned an invalid dictionary", zap.String("response", r.ID))
	return &ResponseError{Msg: r.System.tr("CustomResponse: check function returned an invalid dictionary!")}
}

func inputList(v interface{}) []map[string]interface{} {
	switch l := v.(type) {
	case []map[string]interface{}:
		return l
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(l))
		for _, e := range l {
			m, _ := e.(map[string]interface{})
			out = append(out, m)
		}
		return out
	}
	return nil
}

// truthy follows the usual script notion of truth for check results.
func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	}
	return true
}

// Answers prefers the expect attribute for a single input and falls back to
// the inputs' correct_answer attributes.
func (r *CustomResponse) Answers() map[string]interface{} {
	out := map[string]interface{}{}
	if len(r.AnswerIDs) == 1 && r.expect != "" {
		out[r.AnswerIDs[0]] = r.expect
		return out
	}
	for id, a := range r.DefaultAnswers {
		out[id] = a
	}
	return out
}
