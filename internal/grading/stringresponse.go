package grading

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
	"github.com/mind-engage/mindengage-capa/internal/xmltree"
)

var stringSpec = typeSpec{
	allowedInputs: []string{"textline"},
	maxInputs:     1,
	required:      []string{"answer"},
	hintTag:       "stringhint",
}

// StringResponse matches text against the answer and any additional_answer
// elements. type="ci" ignores case; type="regexp" treats answers as patterns.
//
// An answer attribute containing "_or_" is the legacy form: alternatives
// joined by _or_, matched literally even when regexp is set.
type StringResponse struct {
	*Base
	correct         []string
	backward        bool
	regexp          bool
	caseInsensitive bool
}

func newStringResponse(b *Base, _ *config) (Response, error) {
	answer := b.XML.Get("answer")
	r := &StringResponse{Base: b, backward: strings.Contains(strings.ToLower(answer), "_or_")}
	for _, t := range strings.Split(strings.ToLower(b.XML.Get("type")), " ") {
		switch t {
		case "regexp":
			r.regexp = true
		case "ci":
			r.caseInsensitive = true
		}
	}
	if r.backward {
		for _, a := range strings.Split(answer, "_or_") {
			r.correct = append(r.correct, strings.TrimSpace(b.Context.Expand(a)))
		}
		return r, nil
	}
	answers := []string{answer}
	for _, el := range b.XML.FindAll("additional_answer") {
		answers = append(answers, additionalAnswer(el))
	}
	for _, a := range answers {
		r.correct = append(r.correct, strings.TrimSpace(b.Context.Expand(a)))
	}
	// Alternative answers are grading data, not display content.
	for _, tag := range []string{"additional_answer", "incorrect_answer"} {
		for _, el := range b.XML.FindAll(tag) {
			b.XML.Remove(el)
		}
	}
	return r, nil
}

// additionalAnswer reads <additional_answer answer="x">hint</additional_answer>
// or the older <additional_answer>x</additional_answer>.
func additionalAnswer(el *xmltree.Element) string {
	if a, ok := el.Lookup("answer"); ok {
		return a
	}
	return el.Text
}

func (r *StringResponse) Score(_ context.Context, s Submission) (*correctmap.Map, error) {
	given, _ := s.String(r.AnswerID)
	ok, err := r.check(r.correct, strings.TrimSpace(given))
	if err != nil {
		return nil, err
	}
	if ok {
		return r.single(correctmap.Correct), nil
	}
	return r.single(correctmap.Incorrect), nil
}

func (r *StringResponse) check(expected []string, given string) (bool, error) {
	if r.regexp && !r.backward {
		re, err := r.compile("^(?:" + strings.Join(expected, "|") + ")$")
		if err != nil {
			msg := r.System.tr("error") + ": " + err.Error()
			r.System.logger().Error("string response pattern", zap.String("response", r.ID), zap.Error(err))
			return false, &ResponseError{Msg: msg, Err: err}
		}
		return re.MatchString(given), nil
	}
	for _, e := range expected {
		if e == given || r.caseInsensitive && strings.EqualFold(e, given) {
			return true, nil
		}
	}
	return false, nil
}

func (r *StringResponse) compile(pattern string) (*regexp.Regexp, error) {
	if r.caseInsensitive {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

func (r *StringResponse) Answers() map[string]interface{} {
	sep := " <b>" + r.System.tr("or") + "</b> "
	return map[string]interface{}{r.AnswerID: strings.Join(r.correct, sep)}
}

// singleChoiceHints checks, in order and stopping at the first that matches:
// the primary answer (correcthint), additional answers, stringequalhint
// literals and regexphint patterns.
func (r *StringResponse) singleChoiceHints(cm *correctmap.Map, s Submission) error {
	given, ok := s.String(r.AnswerID)
	if !ok || strings.TrimSpace(given) == "" {
		return nil
	}
	given = strings.TrimSpace(given)
	correctLabel := r.System.tr("CORRECT: ")
	incorrectLabel := r.System.tr("INCORRECT: ")

	hit, err := r.hintMatch(r.Original.Get("answer"), given, r.regexp)
	if err != nil {
		return err
	}
	if hit {
		for _, h := range r.Original.FindAll("correcthint") {
			appendMsg(cm, r.AnswerID, hintDiv(hintCorrectStyle, correctLabel+hintText(h)))
		}
		return nil
	}
	for _, el := range r.Original.FindAll("additional_answer") {
		if hit, err = r.hintMatch(additionalAnswer(el), given, r.regexp); err != nil {
			return err
		}
		if hit {
			if _, hasAttr := el.Lookup("answer"); hasAttr && hintText(el) != "" {
				appendMsg(cm, r.AnswerID, hintDiv(hintCorrectStyle, correctLabel+hintText(el)))
			}
			return nil
		}
	}
	for _, el := range r.Original.Descendants("stringequalhint") {
		if hit, err = r.hintMatch(el.Get("answer"), given, false); err != nil {
			return err
		}
		if hit {
			appendMsg(cm, r.AnswerID, hintDiv(hintIncorrectStyle, incorrectLabel+hintText(el)))
			return nil
		}
	}
	for _, el := range r.Original.Descendants("regexphint") {
		if hit, err = r.hintMatch(el.Get("answer"), given, true); err != nil {
			return err
		}
		if hit {
			appendMsg(cm, r.AnswerID, hintDiv(hintIncorrectStyle, incorrectLabel+hintText(el)))
			return nil
		}
	}
	return nil
}

// hintMatch compares a hint's answer with the submission: a regexp search
// when useRegex, otherwise case-insensitive equality.
func (r *StringResponse) hintMatch(pattern, given string, useRegex bool) (bool, error) {
	pattern = strings.TrimSpace(r.Context.Expand(pattern))
	if !useRegex {
		return strings.EqualFold(pattern, given), nil
	}
	re, err := r.compile(pattern)
	if err != nil {
		return false, &ResponseError{Msg: r.System.tr("Illegal regex expression: ") + pattern, Err: err}
	}
	return re.MatchString(given), nil
}

// checkHintCondition fires stringhint elements whose answer matches the
// submission the same way the answer itself is checked.
func (r *StringResponse) checkHintCondition(hints []*xmltree.Element, s Submission) ([]string, error) {
	given, _ := s.String(r.AnswerID)
	given = strings.TrimSpace(given)
	var names []string
	for _, h := range hints {
		want := strings.TrimSpace(r.Context.Expand(h.Get("answer")))
		ok, err := r.check([]string{want}, given)
		if err != nil {
			return nil, err
		}
		if ok {
			names = append(names, h.Get("name"))
		}
	}
	return names, nil
}
