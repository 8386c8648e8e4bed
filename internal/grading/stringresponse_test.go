package grading

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringCaseInsensitive(t *testing.T) {
	r := newEnv().build(t, `<stringresponse answer="Paris" type="ci">
  <additional_answer answer="Lutetia"/>
  <textline/>
</stringresponse>`)
	for answer, want := range map[string]bool{
		"Paris":    true,
		" paris ":  true,
		"LUTETIA":  true,
		"London":   false,
		"Paris, F": false,
	} {
		assert.Equal(t, want, grade(t, r, Submission{"r_1": answer}).IsCorrect("r_1"), answer)
	}
	assert.Equal(t, map[string]interface{}{"r_1": "Paris <b>or</b> Lutetia"}, r.Answers())
	assert.Nil(t, Common(r).XML.Find("additional_answer"), "alternatives are not display content")
}

func TestStringCaseSensitive(t *testing.T) {
	r := newEnv().build(t, `<stringresponse answer="Paris"><textline/></stringresponse>`)
	assert.True(t, grade(t, r, Submission{"r_1": "Paris"}).IsCorrect("r_1"))
	assert.False(t, grade(t, r, Submission{"r_1": "paris"}).IsCorrect("r_1"))
}

func TestStringOlderAdditionalAnswer(t *testing.T) {
	r := newEnv().build(t, `<stringresponse answer="cat"><additional_answer>kitten</additional_answer><textline/></stringresponse>`)
	assert.True(t, grade(t, r, Submission{"r_1": "kitten"}).IsCorrect("r_1"))
}

func TestStringRegexpIsAnchored(t *testing.T) {
	r := newEnv().build(t, `<stringresponse answer="colou?r" type="regexp ci"><textline/></stringresponse>`)
	for answer, want := range map[string]bool{
		"color":          true,
		"Colour":         true,
		"my color":       false,
		"colors":         false,
		"colour scheme?": false,
	} {
		assert.Equal(t, want, grade(t, r, Submission{"r_1": answer}).IsCorrect("r_1"), answer)
	}
}

func TestStringBadRegexp(t *testing.T) {
	r := newEnv().build(t, `<stringresponse answer="(a" type="regexp"><textline/></stringresponse>`)
	_, err := Evaluate(context.Background(), r, Submission{"r_1": "a"}, nil)
	var re *ResponseError
	assert.True(t, errors.As(err, &re))
}

func TestStringBackwardOr(t *testing.T) {
	r := newEnv().build(t, `<stringresponse answer="a.b_or_c" type="regexp"><textline/></stringresponse>`)
	assert.True(t, grade(t, r, Submission{"r_1": "a.b"}).IsCorrect("r_1"))
	assert.True(t, grade(t, r, Submission{"r_1": "c"}).IsCorrect("r_1"))
	assert.False(t, grade(t, r, Submission{"r_1": "axb"}).IsCorrect("r_1"), "alternatives match literally")
}

const stringHints = `<problem schema="edXML/1.0"><stringresponse answer="Paris" type="ci">
  <correcthint>Capital of France.</correcthint>
  <additional_answer answer="Lutetia">Its Roman name.</additional_answer>
  <stringequalhint answer="London">That is in England.</stringequalhint>
  <regexphint answer="^Ber">Germany, not France.</regexphint>
  <textline/>
</stringresponse></problem>`

func TestStringHints(t *testing.T) {
	r := newEnv().build(t, stringHints)
	cases := []struct {
		answer, msg string
	}{
		{"paris", `<div class="question_hint_correct">CORRECT: Capital of France.</div>`},
		{"Lutetia", `<div class="question_hint_correct">CORRECT: Its Roman name.</div>`},
		{"london", `<div class="question_hint_incorrect">INCORRECT: That is in England.</div>`},
		{"Berlin", `<div class="question_hint_incorrect">INCORRECT: Germany, not France.</div>`},
		{"Rome", ""},
	}
	for _, tc := range cases {
		cm := grade(t, r, Submission{"r_1": tc.answer})
		assert.Equal(t, tc.msg, cm.Msg("r_1"), tc.answer)
	}
}

func TestStringHintBadRegex(t *testing.T) {
	r := newEnv().build(t, `<problem schema="edXML/1.0"><stringresponse answer="x">
  <regexphint answer="(">broken</regexphint>
  <textline/>
</stringresponse></problem>`)
	_, err := Evaluate(context.Background(), r, Submission{"r_1": "y"}, nil)
	var re *ResponseError
	require.True(t, errors.As(err, &re))
	assert.Contains(t, re.Msg, "Illegal regex expression")
}

func TestStringLegacyHint(t *testing.T) {
	r := newEnv().build(t, `<stringresponse answer="Paris" type="ci">
  <textline/>
  <hintgroup mode="on_request">
    <stringhint answer="London" name="uk"/>
    <hintpart on="uk"><text>Wrong country.</text></hintpart>
  </hintgroup>
</stringresponse>`)
	cm := grade(t, r, Submission{"r_1": "london"})
	assert.Equal(t, "Wrong country.", cm.Hint("r_1"))
	assert.EqualValues(t, "on_request", cm.HintMode("r_1"))
}
