package grading

import (
	"context"
	"math"
	"math/cmplx"
	"strings"

	"github.com/mind-engage/mindengage-capa/internal/calc"
	"github.com/mind-engage/mindengage-capa/internal/correctmap"
	"github.com/mind-engage/mindengage-capa/internal/xmltree"
)

var numericalSpec = typeSpec{
	allowedInputs: []string{"textline", "formulaequationinput"},
	maxInputs:     1,
	required:      []string{"answer"},
	hintTag:       "numericalhint",
}

// NumericalResponse accepts a number or arithmetic expression compared to the
// staff answer within a tolerance. An answer written as an interval such as
// "[2, 5)" switches to range mode.
type NumericalResponse struct {
	*Base
	correctAnswer string
	tolerance     string
	rangeMode     bool
	inclusion     [2]bool
	answerRange   [2]string
}

func newNumericalResponse(b *Base, _ *config) (Response, error) {
	r := &NumericalResponse{Base: b, tolerance: DefaultTolerance}
	answer := b.XML.Get("answer")
	if (strings.HasPrefix(answer, "[") || strings.HasPrefix(answer, "(")) &&
		(strings.HasSuffix(answer, "]") || strings.HasSuffix(answer, ")")) {
		r.rangeMode = true
		r.inclusion = [2]bool{answer[0] == '[', answer[len(answer)-1] == ']'}
		parts := strings.Split(answer[1:len(answer)-1], ",")
		if len(parts) != 2 {
			b.System.logger().Debug("invalid range tolerance answer")
			return nil, &StudentInputError{Kind: InputStaffAnswer,
				Msg: b.System.tr("There was a problem with the staff answer to this problem.")}
		}
		for i, p := range parts {
			r.answerRange[i] = strings.TrimSpace(b.Context.Expand(p))
		}
		r.correctAnswer = answer[:1] + r.answerRange[0] + ", " + r.answerRange[1] + answer[len(answer)-1:]
		return r, nil
	}
	r.correctAnswer = b.Context.Expand(answer)
	for _, p := range b.XML.Descendants("responseparam") {
		if p.Get("type") != "tolerance" {
			continue
		}
		if def, ok := p.Lookup("default"); ok {
			r.tolerance = b.Context.Expand(def)
			break
		}
	}
	return r, nil
}

func (r *NumericalResponse) Score(_ context.Context, s Submission) (*correctmap.Map, error) {
	answer, _ := s.String(r.AnswerID)
	student, err := calc.Evaluate(nil, nil, answer, false)
	if err != nil {
		return nil, r.numberInputError(answer, err)
	}
	var correct bool
	if r.rangeMode {
		correct, err = r.inRange(student)
	} else {
		var staff complex128
		staff, err = r.staffNumber(r.correctAnswer)
		if err == nil {
			correct, err = CompareWithTolerance(student, staff, r.tolerance, false)
		}
	}
	if err != nil {
		return nil, err
	}
	if correct {
		return r.single(correctmap.Correct), nil
	}
	return r.single(correctmap.Incorrect), nil
}

// inRange accepts a value equal to an inclusive boundary, within machine
// epsilon, or strictly between the boundaries.
func (r *NumericalResponse) inRange(student complex128) (bool, error) {
	if imag(student) != 0 {
		return false, &StudentInputError{Kind: InputComplex,
			Msg: r.System.tr("You may not use complex numbers in range tolerance problems")}
	}
	var bounds [2]float64
	for i, raw := range r.answerRange {
		bound, err := r.staffNumber(raw)
		if err != nil {
			return false, err
		}
		if imag(bound) != 0 {
			return false, &StudentInputError{Kind: InputStaffAnswer,
				Msg: r.System.tr("There was a problem with the staff answer to this problem: complex boundary.")}
		}
		if cmplx.IsNaN(bound) {
			return false, &StudentInputError{Kind: InputStaffAnswer,
				Msg: r.System.tr("There was a problem with the staff answer to this problem: empty boundary.")}
		}
		bounds[i] = real(bound)
		if compareWithTolerance(student, bound, epsilon, true) {
			return r.inclusion[i], nil
		}
	}
	x := real(student)
	return bounds[0] < x && x < bounds[1], nil
}

// epsilon is the float64 machine epsilon.
var epsilon = math.Nextafter(1, 2) - 1

// CompareAnswer compares two answers with this problem's tolerance.
func (r *NumericalResponse) CompareAnswer(a, b string) (bool, error) {
	x, err := calc.Evaluate(nil, nil, a, false)
	if err != nil {
		return false, err
	}
	y, err := calc.Evaluate(nil, nil, b, false)
	if err != nil {
		return false, err
	}
	return CompareWithTolerance(x, y, r.tolerance, false)
}

// ValidateAnswer reports whether answer evaluates to a number.
func (r *NumericalResponse) ValidateAnswer(answer string) bool {
	_, err := calc.Evaluate(nil, nil, answer, false)
	return err == nil
}

func (r *NumericalResponse) Answers() map[string]interface{} {
	return map[string]interface{}{r.AnswerID: r.correctAnswer}
}

func (r *NumericalResponse) singleChoiceHints(cm *correctmap.Map, s Submission) error {
	if _, ok := s[r.AnswerID]; !ok || cm.Correctness(r.AnswerID) != correctmap.Correct {
		return nil
	}
	for _, h := range r.Original.FindAll("correcthint") {
		appendMsg(cm, r.AnswerID, hintDiv(hintCorrectStyle, r.hintLabel(h, true)+hintText(h)))
	}
	return nil
}

// checkHintCondition fires numericalhint elements whose answer is within
// their tolerance (default exact) of the submission.
func (r *NumericalResponse) checkHintCondition(hints []*xmltree.Element, s Submission) ([]string, error) {
	answer, _ := s.String(r.AnswerID)
	student, err := calc.Evaluate(nil, nil, answer, false)
	if err != nil {
		return nil, nil
	}
	var names []string
	for _, h := range hints {
		target, err := r.staffNumber(r.Context.Expand(h.Get("answer")))
		if err != nil {
			return nil, err
		}
		ok, err := CompareWithTolerance(student, target, h.GetDefault("tolerance", "0"), false)
		if err != nil {
			return nil, err
		}
		if ok {
			names = append(names, h.Get("name"))
		}
	}
	return names, nil
}
