package grading

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
)

var choiceSpec = typeSpec{
	allowedInputs: []string{"checkboxgroup", "radiogroup"},
	maxInputs:     1,
	hintTag:       "choicehint",
}

// ChoiceResponse is a checkbox or radio group. The submission is correct only
// when the selected set equals the correct set exactly.
type ChoiceResponse struct {
	*Base
	correct map[string]struct{}
}

func newChoiceResponse(b *Base, _ *config) (Response, error) {
	r := &ChoiceResponse{Base: b, correct: map[string]struct{}{}}
	for i, c := range b.XML.Descendants("choice") {
		if c.Get("id") == "" {
			c.Set("id", string(rune('A'+i)))
		}
		c.Set("name", fmt.Sprintf("choice_%d", i))
		if isTrue(c.Get("correct")) {
			r.correct[c.Get("name")] = struct{}{}
		}
	}
	return r, nil
}

func (r *ChoiceResponse) Score(_ context.Context, s Submission) (*correctmap.Map, error) {
	if setEqual(r.correct, toSet(s.Strings(r.AnswerID))) {
		return r.single(correctmap.Correct), nil
	}
	return r.single(correctmap.Incorrect), nil
}

func (r *ChoiceResponse) Answers() map[string]interface{} {
	if len(r.correct) == 0 {
		return map[string]interface{}{}
	}
	names := make([]string, 0, len(r.correct))
	for n := range r.correct {
		names = append(names, n)
	}
	sort.Strings(names)
	return map[string]interface{}{r.AnswerID: names}
}

// compoundConditionHints matches booleanhint values such as "A AND C" or
// "A*C" against the ids of the selected choices, ignoring order.
func (r *ChoiceResponse) compoundConditionHints(cm *correctmap.Map, s Submission) bool {
	if _, ok := s[r.AnswerID]; !ok {
		return false
	}
	var selected []string
	for _, name := range s.Strings(r.AnswerID) {
		for _, c := range r.XML.FindPath("checkboxgroup/choice") {
			if c.Get("name") == name {
				selected = append(selected, strings.ToUpper(c.Get("id")))
				break
			}
		}
	}
	sort.Strings(selected)

	shown := false
	for _, h := range r.XML.Descendants("booleanhint") {
		cond := strings.ToUpper(h.Get("value"))
		cond = strings.ReplaceAll(cond, "AND", " ")
		cond = strings.ReplaceAll(cond, "*", " ")
		tokens := strings.Fields(cond)
		sort.Strings(tokens)
		if !equalStrings(tokens, selected) {
			continue
		}
		label := ""
		if l := h.Get("label"); l != "" {
			label = l + ": "
		}
		cm.SetMsg(r.AnswerID, hintDiv(hintTextStyle, label+hintText(h)))
		shown = true
		break
	}
	r.wrapHints(cm, shown)
	return shown
}

// singleChoiceHints adds each choice's selected="true" hint when it was
// chosen and its selected="false" hint when it was not.
func (r *ChoiceResponse) singleChoiceHints(cm *correctmap.Map, s Submission) error {
	if _, ok := s[r.AnswerID]; !ok {
		return nil
	}
	chosen := toSet(s.Strings(r.AnswerID))
	shown := false
	for _, c := range r.XML.FindPath("checkboxgroup/choice") {
		_, picked := chosen[c.Get("name")]
		want := "false"
		if picked {
			want = "true"
		}
		for _, h := range c.FindAll("choicehint") {
			if strings.EqualFold(h.Get("selected"), want) {
				if text := h.Text; text != "" {
					appendMsg(cm, r.AnswerID, hintDiv(hintTextStyle, text))
					shown = true
				}
				break
			}
		}
	}
	r.wrapHints(cm, shown)
	return nil
}

// wrapHints frames the hint text in a div announcing correctness.
func (r *ChoiceResponse) wrapHints(cm *correctmap.Map, shown bool) {
	if !shown {
		return
	}
	label, class := r.System.tr("INCORRECT"), hintIncorrectStyle
	if cm.Correctness(r.AnswerID) == correctmap.Correct {
		label, class = r.System.tr("CORRECT"), hintCorrectStyle
	}
	cm.SetMsg(r.AnswerID, hintDiv(class, label+cm.Msg(r.AnswerID)))
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
