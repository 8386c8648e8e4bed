package grading

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
)

func TestCompareWithTolerance(t *testing.T) {
	inf := complex(math.Inf(1), 0)
	cases := []struct {
		name                string
		student, instructor complex128
		tol                 string
		want                bool
	}{
		{"absolute inside", 10.05, 10, "0.1", true},
		{"absolute outside", 10.2, 10, "0.1", false},
		{"percent inside", 10.4, 10, "5%", true},
		{"percent outside", 10.6, 10, "5%", false},
		{"default relative inside", 1.000001, 1, DefaultTolerance, true},
		{"default relative outside", 1.001, 1, DefaultTolerance, false},
		{"exact zero tolerance", 0.3, 0.3, "0", true},
		{"float difference just over", 1.1, 1.0, "0.1", false},
		{"float difference inside", 1.1, 1.0, "0.11", true},
		{"expression tolerance", 3.2, 3, "1/4", true},
		{"complex", complex(1, 1.05), complex(1, 1), "0.1", true},
		{"complex far", complex(1, 2), complex(1, 1), "0.1", false},
		{"both infinite", inf, inf, "0.1", true},
		{"one infinite", inf, 1, "0.1", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CompareWithTolerance(tc.student, tc.instructor, tc.tol, false)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := CompareWithTolerance(1, 1, "tol", false)
	assert.Error(t, err)
}

func TestNumericalTolerance(t *testing.T) {
	r := newEnv().build(t, `<numericalresponse answer="5">
  <responseparam type="tolerance" default="0.5"/>
  <textline/>
</numericalresponse>`)
	for answer, want := range map[string]correctmap.Correctness{
		"5":     correctmap.Correct,
		"5.4":   correctmap.Correct,
		"4.6":   correctmap.Correct,
		"10/2":  correctmap.Correct,
		"5.6":   correctmap.Incorrect,
		"-5":    correctmap.Incorrect,
		"2.5*2": correctmap.Correct,
	} {
		cm := grade(t, r, Submission{"r_1": answer})
		assert.Equal(t, want, cm.Correctness("r_1"), answer)
	}
	assert.Equal(t, map[string]interface{}{"r_1": "5"}, r.Answers())
}

func TestNumericalDefaultTolerance(t *testing.T) {
	r := newEnv().build(t, `<numericalresponse answer="1000"><textline/></numericalresponse>`)
	assert.True(t, grade(t, r, Submission{"r_1": "1000.005"}).IsCorrect("r_1"))
	assert.False(t, grade(t, r, Submission{"r_1": "1000.02"}).IsCorrect("r_1"))
}

func TestNumericalContextAnswer(t *testing.T) {
	e := newEnv()
	e.ctx.Vars["target"] = 12
	r := e.build(t, `<numericalresponse answer="$target"><textline/></numericalresponse>`)
	assert.True(t, grade(t, r, Submission{"r_1": "3*4"}).IsCorrect("r_1"))
	assert.Equal(t, "12", r.Answers()["r_1"])
}

func TestNumericalRange(t *testing.T) {
	r := newEnv().build(t, `<numericalresponse answer="[2, 5)"><textline/></numericalresponse>`)
	for answer, want := range map[string]bool{
		"2":           true,
		"3.5":         true,
		"4.999999999": true,
		"5":           false,
		"1.9":         false,
		"6":           false,
	} {
		assert.Equal(t, want, grade(t, r, Submission{"r_1": answer}).IsCorrect("r_1"), answer)
	}
	assert.Equal(t, "[2, 5)", r.Answers()["r_1"])

	_, err := Evaluate(context.Background(), r, Submission{"r_1": "3+2*i"}, nil)
	var in *StudentInputError
	require.True(t, errors.As(err, &in))
	assert.Equal(t, InputComplex, in.Kind)
}

func TestNumericalBadRange(t *testing.T) {
	_, err := newEnv().tryBuild(`<numericalresponse answer="[1, 2, 3]"><textline/></numericalresponse>`)
	var in *StudentInputError
	require.True(t, errors.As(err, &in))
	assert.Equal(t, InputStaffAnswer, in.Kind)
}

func TestNumericalInputErrors(t *testing.T) {
	r := newEnv().build(t, `<numericalresponse answer="4"><textline/></numericalresponse>`)
	for answer, kind := range map[string]InputErrorKind{
		"x":     InputUndefinedVariable,
		"2+":    InputSyntax,
		"(-1)!": InputDomain,
		"2.5!":  InputDomain,
	} {
		_, err := Evaluate(context.Background(), r, Submission{"r_1": answer}, nil)
		var in *StudentInputError
		require.True(t, errors.As(err, &in), answer)
		assert.Equal(t, kind, in.Kind, answer)
	}
}

func TestNumericalFactorial(t *testing.T) {
	r := newEnv().build(t, `<numericalresponse answer="120"><textline/></numericalresponse>`)
	assert.True(t, grade(t, r, Submission{"r_1": "5!"}).IsCorrect("r_1"))
	assert.False(t, grade(t, r, Submission{"r_1": "4!"}).IsCorrect("r_1"))
}

func TestNumericalStaffAnswerError(t *testing.T) {
	r := newEnv().build(t, `<numericalresponse answer="$missing"><textline/></numericalresponse>`)
	_, err := Evaluate(context.Background(), r, Submission{"r_1": "1"}, nil)
	var in *StudentInputError
	require.True(t, errors.As(err, &in))
	assert.Equal(t, InputStaffAnswer, in.Kind)
}

func TestNumericalLegacyHint(t *testing.T) {
	r := newEnv().build(t, `<numericalresponse answer="4">
  <textline/>
  <hintgroup>
    <numericalhint answer="5" name="plus1"/>
    <numericalhint answer="3" tolerance="0.1" name="minus1"/>
    <hintpart on="plus1"><text>Off by one.</text></hintpart>
    <hintpart on="minus1"><text>Too small.</text></hintpart>
  </hintgroup>
</numericalresponse>`)
	cm := grade(t, r, Submission{"r_1": "5"})
	assert.Equal(t, "Off by one.", cm.Hint("r_1"))
	assert.Equal(t, correctmap.HintAlways, cm.HintMode("r_1"))

	cm = grade(t, r, Submission{"r_1": "3.05"})
	assert.Equal(t, "Too small.", cm.Hint("r_1"))

	cm = grade(t, r, Submission{"r_1": "4"})
	assert.Empty(t, cm.Hint("r_1"))
}

func TestNumericalCorrectHint(t *testing.T) {
	r := newEnv().build(t, `<problem schema="edXML/1.0"><numericalresponse answer="4">
  <textline/>
  <correcthint>Nice.</correcthint>
</numericalresponse></problem>`)
	cm := grade(t, r, Submission{"r_1": "4"})
	assert.Equal(t, `<div class="question_hint_correct">CORRECT: Nice.</div>`, cm.Msg("r_1"))

	cm = grade(t, r, Submission{"r_1": "3"})
	assert.Empty(t, cm.Msg("r_1"))
}

func TestNumericalCompareAnswer(t *testing.T) {
	r := newEnv().build(t, `<numericalresponse answer="4"><textline/></numericalresponse>`).(*NumericalResponse)
	ok, err := r.CompareAnswer("2*2", "4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, r.ValidateAnswer("1/3"))
	assert.False(t, r.ValidateAnswer("1/"))
}
