package grading

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
	"github.com/mind-engage/mindengage-capa/internal/sandbox"
)

func cfnEnv(ret func(g map[string]interface{}) interface{}) (*env, *fakeSandbox) {
	e := newEnv()
	sb := &fakeSandbox{run: func(g map[string]interface{}) error {
		g["cfn_return"] = ret(g)
		return nil
	}}
	e.sys.Sandbox = sb
	e.ctx.Script = "func check(expect string, ans interface{}, kwargs map[string]interface{}) bool { return false }"
	return e, sb
}

func TestCustomCheckFunctionBool(t *testing.T) {
	e, sb := cfnEnv(func(g map[string]interface{}) interface{} {
		return g["ans"] == g["expect"]
	})
	r := e.build(t, `<customresponse cfn="check" expect="42"><textline/></customresponse>`)

	assert.True(t, grade(t, r, Submission{"r_1": "42"}).IsCorrect("r_1"))
	assert.Contains(t, sb.code, "func check(")
	assert.Contains(t, sb.code, `g["cfn_return"] = check(`)
	assert.Contains(t, sb.code, "func Run(g map[string]interface{})")

	cm := grade(t, r, Submission{"r_1": "41"})
	assert.Equal(t, correctmap.Incorrect, cm.Correctness("r_1"))
	assert.Equal(t, 0.0, cm.NPoints("r_1"))
	assert.Equal(t, map[string]interface{}{"r_1": "42"}, r.Answers())
}

func TestCustomCheckFunctionOkMsg(t *testing.T) {
	e, _ := cfnEnv(func(g map[string]interface{}) interface{} {
		return map[string]interface{}{"ok": true, "msg": "<b>close enough"}
	})
	r := e.build(t, `<customresponse cfn="check"><textline points="3"/></customresponse>`)
	cm := grade(t, r, Submission{"r_1": "x"})
	assert.True(t, cm.IsCorrect("r_1"))
	assert.Equal(t, 3.0, cm.NPoints("r_1"))
	assert.Equal(t, "<b>close enough</b>", cm.Msg("r_1"))
}

func TestCustomCheckFunctionOkMsgSeveralInputs(t *testing.T) {
	e, _ := cfnEnv(func(g map[string]interface{}) interface{} {
		ans := g["ans"].([]interface{})
		return map[string]interface{}{"ok": len(ans) == 2, "msg": "both seen"}
	})
	r := e.build(t, `<customresponse cfn="check"><textline/><textline/></customresponse>`)
	cm := grade(t, r, Submission{"r_1": "a", "r_2": "b"})
	assert.True(t, cm.IsCorrect("r_1"))
	assert.True(t, cm.IsCorrect("r_2"))
	assert.Equal(t, "both seen", cm.OverallMessage())
	assert.Empty(t, cm.Msg("r_1"))
}

func TestCustomCheckFunctionInputList(t *testing.T) {
	e, _ := cfnEnv(func(g map[string]interface{}) interface{} {
		return map[string]interface{}{
			"overall_message": "Overall",
			"input_list": []interface{}{
				map[string]interface{}{"ok": true, "msg": "first"},
				map[string]interface{}{"ok": false, "msg": "second"},
			},
		}
	})
	r := e.build(t, `<customresponse cfn="check"><textline/><textline/></customresponse>`)
	cm := grade(t, r, Submission{"r_1": "a", "r_2": "b"})
	assert.True(t, cm.IsCorrect("r_1"))
	assert.Equal(t, "first", cm.Msg("r_1"))
	assert.Equal(t, correctmap.Incorrect, cm.Correctness("r_2"))
	assert.Equal(t, "second", cm.Msg("r_2"))
	assert.Equal(t, "Overall", cm.OverallMessage())
}

func TestCustomCheckFunctionInvalidDict(t *testing.T) {
	e, _ := cfnEnv(func(map[string]interface{}) interface{} {
		return map[string]interface{}{"verdict": "yes"}
	})
	r := e.build(t, `<customresponse cfn="check"><textline/></customresponse>`)
	_, err := Evaluate(context.Background(), r, Submission{"r_1": "a"}, nil)
	var re *ResponseError
	require.True(t, errors.As(err, &re))
	assert.Contains(t, re.Msg, "invalid dictionary")
}

func TestCustomExtraArgs(t *testing.T) {
	var kwargs map[string]interface{}
	e, _ := cfnEnv(func(g map[string]interface{}) interface{} {
		kwargs = g["kwargs"].(map[string]interface{})
		return true
	})
	r := e.build(t, `<customresponse cfn="check" cfn_extra_args="options dynamath" options="abc"><textline/></customresponse>`)
	grade(t, r, Submission{"r_1": "a", "r_1_dynamath": "<math/>"})
	assert.Equal(t, "abc", kwargs["options"])
	assert.Equal(t, []interface{}{"<math/>"}, kwargs["dynamath"])
}

func TestCustomScriptFailure(t *testing.T) {
	e := newEnv()
	e.sys.Sandbox = &fakeSandbox{run: func(map[string]interface{}) error { return errors.New("boom") }}
	r := e.build(t, `<customresponse cfn="check"><textline/></customresponse>`)
	_, err := Evaluate(context.Background(), r, Submission{"r_1": "a"}, nil)
	var re *ResponseError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "boom", re.Msg)
}

func TestCustomEmptyAnswer(t *testing.T) {
	e, sb := cfnEnv(func(map[string]interface{}) interface{} { return true })
	r := e.build(t, `<customresponse cfn="check" empty_answer_err="true"><textline/></customresponse>`)
	cm := grade(t, r, Submission{"r_1": ""})
	assert.Equal(t, correctmap.Incorrect, cm.Correctness("r_1"))
	assert.Equal(t, `<span class="inline-error">No answer entered!</span>`, cm.Msg("r_1"))
	assert.Empty(t, sb.code, "author code is not run for an empty answer")
}

func TestCustomMissingAnswer(t *testing.T) {
	e, _ := cfnEnv(func(map[string]interface{}) interface{} { return true })
	r := e.build(t, `<customresponse cfn="check"><textline/><textline/></customresponse>`)
	_, err := Evaluate(context.Background(), r, Submission{"r_1": "a"}, nil)
	var re *ResponseError
	assert.True(t, errors.As(err, &re))
}

func TestCustomAnswerScript(t *testing.T) {
	e := newEnv()
	e.sys.Sandbox = sandbox.New()
	r := e.build(t, `<customresponse>
  <textline/>
  <textline/>
  <answer>
	for i, s := range submission {
		if s.(string) == "42" {
			correct[i] = "correct"
		} else {
			correct[i] = "incorrect"
			messages[i] = "Try again"
		}
	}
	g["overall_message"] = "checked " + expect
  </answer>
</customresponse>`)
	cm := grade(t, r, Submission{"r_1": "42", "r_2": "7"})
	assert.True(t, cm.IsCorrect("r_1"))
	assert.Equal(t, 1.0, cm.NPoints("r_1"))
	assert.Equal(t, correctmap.Incorrect, cm.Correctness("r_2"))
	assert.Equal(t, "Try again", cm.Msg("r_2"))
	assert.Equal(t, "checked", cm.OverallMessage())
}

func TestCustomAnswerFromFilestore(t *testing.T) {
	e := newEnv()
	sb := &fakeSandbox{run: func(g map[string]interface{}) error {
		g["correct"].([]string)[0] = "correct"
		return nil
	}}
	e.sys.Sandbox = sb
	e.sys.Files = memFiles{"src/grader.go": "correct[0] = \"correct\" // from file"}
	r := e.build(t, `<customresponse><textline/><answer src="grader.go"/></customresponse>`)
	assert.True(t, grade(t, r, Submission{"r_1": "x"}).IsCorrect("r_1"))
	assert.Contains(t, sb.code, "// from file")

	_, err := e.tryBuild(`<customresponse><textline/><answer src="missing.go"/></customresponse>`)
	var spec *SpecificationError
	assert.True(t, errors.As(err, &spec))
}

func TestHintFunction(t *testing.T) {
	e := newEnv()
	e.sys.Sandbox = &fakeSandbox{run: func(g map[string]interface{}) error {
		if _, ok := g["new_cmap_dict"]; !ok {
			g["cfn_return"] = true
			return nil
		}
		ids := g["answer_ids"].([]string)
		entry := g["new_cmap_dict"].(map[string]interface{})[ids[0]].(map[string]interface{})
		entry["msg"] = "hint for " + g["student_answers"].(map[string]interface{})[ids[0]].(string)
		return nil
	}}
	r := e.build(t, `<customresponse cfn="check"><textline/><hintgroup hintfn="hinter"/></customresponse>`)
	cm := grade(t, r, Submission{"r_1": "x"})
	assert.True(t, cm.IsCorrect("r_1"))
	assert.Equal(t, "hint for x", cm.Msg("r_1"))
}

func TestHintFunctionFailure(t *testing.T) {
	e := newEnv()
	e.sys.Sandbox = &fakeSandbox{run: func(g map[string]interface{}) error {
		if _, ok := g["new_cmap_dict"]; ok {
			return errors.New("hint crashed")
		}
		g["cfn_return"] = true
		return nil
	}}
	r := e.build(t, `<customresponse cfn="check"><textline/><hintgroup hintfn="hinter"/></customresponse>`)
	_, err := Evaluate(context.Background(), r, Submission{"r_1": "x"}, nil)
	var re *ResponseError
	require.True(t, errors.As(err, &re))
	assert.True(t, strings.Contains(re.Msg, "hinter"), re.Msg)
}
