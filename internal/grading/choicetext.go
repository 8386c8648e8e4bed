package grading

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mind-engage/mindengage-capa/internal/calc"
	"github.com/mind-engage/mindengage-capa/internal/correctmap"
)

var choiceTextSpec = typeSpec{
	allowedInputs: []string{"choicetextgroup", "checkboxtextgroup", "radiotextgroup"},
	maxInputs:     1,
}

const (
	binaryChoiceSuffix = "bc"
	numToleranceInfix  = "_numtolerance_input_"
)

type numericTarget struct {
	answer    string
	tolerance string
}

// ChoiceTextResponse is a radio or checkbox group whose choices may contain
// numeric text fields. It is correct when the selected choices are exactly
// the correct ones and every field inside a selected correct choice is
// within tolerance. Fields in selected incorrect choices (decoy inputs) are
// only checked for being numbers.
//
// The submission for the group is a map from field name to value; selected
// choices appear under their own name.
type ChoiceTextResponse struct {
	*Base
	correctChoices map[string]struct{}
	correctInputs  map[string]numericTarget
	answerValues   map[string]interface{}
}

func newChoiceTextResponse(b *Base, _ *config) (Response, error) {
	r := &ChoiceTextResponse{
		Base:           b,
		correctChoices: map[string]struct{}{},
		correctInputs:  map[string]numericTarget{},
		answerValues:   map[string]interface{}{},
	}
	r.assignChoiceNames()
	var correctNames []string
	for _, c := range b.XML.Descendants("choice") {
		if !isTrue(c.Get("correct")) {
			continue
		}
		name := c.Get("name")
		r.correctChoices[name] = struct{}{}
		correctNames = append(correctNames, name)
		var shown []string
		for _, in := range c.Children {
			answer := in.Get("answer")
			if answer == "" {
				return nil, specErrorf("%s", b.System.tr("Answer not provided for %s", "numtolerance_input"))
			}
			answer = b.Context.Expand(answer)
			r.correctInputs[in.Get("name")] = numericTarget{
				answer:    answer,
				tolerance: b.Context.Expand(in.GetDefault("tolerance", DefaultTolerance)),
			}
			shown = append(shown, answer)
		}
		r.answerValues[name] = strings.Join(shown, ", ")
	}
	r.answerValues[b.AnswerID] = correctNames
	return r, nil
}

// assignChoiceNames names choices <aid>_choiceinput_<i>bc and their fields
// <aid>_choiceinput_<i>_numtolerance_input_<j>. Decoy inputs are named only
// in choices without numtolerance inputs.
func (r *ChoiceTextResponse) assignChoiceNames() {
	for i, c := range r.XML.Descendants("choice") {
		prefix := fmt.Sprintf("%s_choiceinput_%d", r.AnswerID, i)
		c.Set("name", prefix+binaryChoiceSuffix)
		inputs := c.FindAll("numtolerance_input")
		if len(inputs) == 0 {
			inputs = c.FindAll("decoy_input")
		}
		for j, in := range inputs {
			in.Set("name", fmt.Sprintf("%s%s%d", prefix, numToleranceInfix, j))
		}
	}
}

func (r *ChoiceTextResponse) Score(_ context.Context, s Submission) (*correctmap.Map, error) {
	choices, inputs := splitChoiceTextAnswers(submittedFields(s[r.AnswerID]))
	ok, err := r.checkInputs(inputs)
	if err != nil {
		return nil, err
	}
	if ok && setEqual(r.correctChoices, choices) {
		return r.single(correctmap.Correct), nil
	}
	return r.single(correctmap.Incorrect), nil
}

func submittedFields(v interface{}) map[string]string {
	out := map[string]string{}
	switch m := v.(type) {
	case map[string]string:
		for k, val := range m {
			out[k] = val
		}
	case map[string]interface{}:
		for k, val := range m {
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

// splitChoiceTextAnswers separates the selected choices from the fields
// inside selected choices. Fields of unselected choices are dropped.
func splitChoiceTextAnswers(fields map[string]string) (map[string]struct{}, map[string]string) {
	choices := map[string]struct{}{}
	for k := range fields {
		if strings.HasSuffix(k, binaryChoiceSuffix) {
			choices[k] = struct{}{}
		}
	}
	inputs := map[string]string{}
	for k, v := range fields {
		parent, _, found := strings.Cut(k, numToleranceInfix)
		if !found {
			continue
		}
		if _, selected := choices[parent+binaryChoiceSuffix]; selected {
			inputs[k] = v
		}
	}
	return choices, inputs
}

// checkInputs compares every submitted field. Decoys are compared against 0
// only so that a non-number is reported.
func (r *ChoiceTextResponse) checkInputs(inputs map[string]string) (bool, error) {
	names := make([]string, 0, len(inputs))
	for k := range inputs {
		names = append(names, k)
	}
	sort.Strings(names)
	allCorrect := true
	for _, name := range names {
		target, graded := r.correctInputs[name]
		if !graded {
			target = numericTarget{answer: "0", tolerance: DefaultTolerance}
		}
		staff, err := calc.ParseComplex(target.answer)
		if err != nil {
			r.System.logger().Debug("choice text response: staff answer is not a number")
			return false, &StudentInputError{Kind: InputStaffAnswer, Err: err,
				Msg: r.System.tr("The Staff answer could not be interpreted as a number.")}
		}
		value := inputs[name]
		student, err := calc.Evaluate(nil, nil, value, false)
		var ok bool
		if err == nil {
			ok, err = CompareWithTolerance(student, staff, target.tolerance, false)
		}
		if err != nil {
			return false, &StudentInputError{Kind: InputParse, Err: err,
				Msg: r.System.tr("Could not interpret '%s' as a number.", escapeHTML(value))}
		}
		if graded && !ok {
			allCorrect = false
		}
	}
	return allCorrect, nil
}

// Answers maps the group id to the correct choice names, and each correct
// choice name to its fields' answers joined by ", ".
func (r *ChoiceTextResponse) Answers() map[string]interface{} {
	out := make(map[string]interface{}, len(r.answerValues))
	for k, v := range r.answerValues {
		out[k] = v
	}
	return out
}
