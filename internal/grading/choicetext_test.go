package grading

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const choiceText = `<choicetextresponse>
  <radiotextgroup>
    <choice correct="false">Fewer than <decoy_input/></choice>
    <choice correct="true">About <numtolerance_input answer="5" tolerance="1"/> apples</choice>
  </radiotextgroup>
</choicetextresponse>`

const (
	decoyChoice = "r_1_choiceinput_0bc"
	decoyField  = "r_1_choiceinput_0_numtolerance_input_0"
	rightChoice = "r_1_choiceinput_1bc"
	rightField  = "r_1_choiceinput_1_numtolerance_input_0"
)

func TestChoiceTextNames(t *testing.T) {
	r := newEnv().build(t, choiceText)
	choices := Common(r).XML.Descendants("choice")
	require.Len(t, choices, 2)
	assert.Equal(t, decoyChoice, choices[0].Get("name"))
	assert.Equal(t, decoyField, choices[0].Find("decoy_input").Get("name"))
	assert.Equal(t, rightChoice, choices[1].Get("name"))
	assert.Equal(t, rightField, choices[1].Find("numtolerance_input").Get("name"))
	assert.Equal(t, map[string]interface{}{
		"r_1":       []string{rightChoice},
		rightChoice: "5",
	}, r.Answers())
}

func TestChoiceTextGrading(t *testing.T) {
	r := newEnv().build(t, choiceText)
	cases := []struct {
		name   string
		fields map[string]string
		want   bool
	}{
		{"within tolerance", map[string]string{rightChoice: "on", rightField: "5.5"}, true},
		{"expression", map[string]string{rightChoice: "on", rightField: "10/2"}, true},
		{"outside tolerance", map[string]string{rightChoice: "on", rightField: "7"}, false},
		{"wrong choice", map[string]string{decoyChoice: "on", decoyField: "3"}, false},
		{"both choices", map[string]string{decoyChoice: "on", rightChoice: "on", decoyField: "3", rightField: "5"}, false},
		{"unselected field ignored", map[string]string{rightChoice: "on", rightField: "5", decoyField: "junk"}, true},
		{"nothing", map[string]string{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, grade(t, r, Submission{"r_1": tc.fields}).IsCorrect("r_1"))
		})
	}
}

func TestChoiceTextInputErrors(t *testing.T) {
	r := newEnv().build(t, choiceText)
	_, err := Evaluate(context.Background(), r, Submission{"r_1": map[string]interface{}{decoyChoice: "on", decoyField: "lots"}}, nil)
	var in *StudentInputError
	require.True(t, errors.As(err, &in))
	assert.Equal(t, InputParse, in.Kind)

	_, err = newEnv().tryBuild(`<choicetextresponse><checkboxtextgroup>
  <choice correct="true"><numtolerance_input/></choice>
</checkboxtextgroup></choicetextresponse>`)
	var spec *SpecificationError
	assert.True(t, errors.As(err, &spec))

	r = newEnv().build(t, `<choicetextresponse><radiotextgroup>
  <choice correct="true"><numtolerance_input answer="five"/></choice>
</radiotextgroup></choicetextresponse>`)
	_, err = Evaluate(context.Background(), r, Submission{"r_1": map[string]string{
		"r_1_choiceinput_0bc": "on", "r_1_choiceinput_0_numtolerance_input_0": "5",
	}}, nil)
	require.True(t, errors.As(err, &in))
	assert.Equal(t, InputStaffAnswer, in.Kind)
}

func TestSchematic(t *testing.T) {
	e := newEnv()
	sb := &fakeSandbox{run: func(g map[string]interface{}) error {
		circuits := g["submission"].([]interface{})
		for i, c := range circuits {
			if len(c.([]interface{})) == 2 {
				g["correct"].([]string)[i] = "correct"
			} else {
				g["correct"].([]string)[i] = "incorrect"
			}
		}
		return nil
	}}
	e.sys.Sandbox = sb
	r := e.build(t, `<schematicresponse><schematic/><answer>check circuits</answer></schematicresponse>`)

	cm := grade(t, r, Submission{"r_1": `[["r",[1,2]],["w",[3,4]]]`})
	assert.True(t, cm.IsCorrect("r_1"))
	assert.Contains(t, sb.code, "check circuits")

	cm = grade(t, r, Submission{"r_1": `[["r",[1,2]]]`})
	assert.False(t, cm.IsCorrect("r_1"))

	_, err := Evaluate(context.Background(), r, Submission{"r_1": `[[`}, nil)
	var in *StudentInputError
	assert.True(t, errors.As(err, &in))

	sb.run = func(map[string]interface{}) error { return errors.New("bad circuit code") }
	_, err = Evaluate(context.Background(), r, Submission{"r_1": `[]`}, nil)
	var re *ResponseError
	require.True(t, errors.As(err, &re))
	assert.Contains(t, re.Msg, "bad circuit code")

	_, err = newEnv().tryBuild(`<schematicresponse><schematic/></schematicresponse>`)
	var spec *SpecificationError
	assert.True(t, errors.As(err, &spec))
}
