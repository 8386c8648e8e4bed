package grading

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
	"github.com/mind-engage/mindengage-capa/internal/xmltree"
)

const (
	hintCorrectStyle   = "question_hint_correct"
	hintIncorrectStyle = "question_hint_incorrect"
	hintTextStyle      = "question_hint_text"

	// newHintSchema marks problems using compound and single-choice hints.
	newHintSchema = "edXML/1.0"
)

// compoundHinter is implemented by types supporting boolean combinations of
// selected choices. It reports whether any rule matched.
type compoundHinter interface {
	compoundConditionHints(cm *correctmap.Map, s Submission) bool
}

// singleChoiceHinter attaches hints tied to the submitted choice or value.
type singleChoiceHinter interface {
	singleChoiceHints(cm *correctmap.Map, s Submission) error
}

// hintConditionChecker evaluates legacy hint conditions and returns the names
// of those that hold.
type hintConditionChecker interface {
	checkHintCondition(hints []*xmltree.Element, s Submission) ([]string, error)
}

// applyHints runs exactly one of: the author hint function, the newer XML
// hint schema, or legacy condition hints.
func applyHints(ctx context.Context, r Response, s Submission, newMap, oldMap *correctmap.Map) error {
	b := r.common()
	group := b.XML.Find("hintgroup")
	if group != nil {
		if fn := group.Get("hintfn"); fn != "" {
			return b.runHintFunction(ctx, fn, s, newMap, oldMap)
		}
	}
	found, err := xmlHints(r, s, newMap)
	if err != nil || found {
		return err
	}
	checker, ok := r.(hintConditionChecker)
	if !ok || b.spec.hintTag == "" || group == nil || group.Find(b.spec.hintTag) == nil {
		return nil
	}
	names, err := checker.checkHintCondition(group.FindAll(b.spec.hintTag), s)
	if err != nil {
		return err
	}
	mode := correctmap.HintMode(group.GetDefault("mode", string(correctmap.HintAlways)))
	last := b.AnswerIDs[len(b.AnswerIDs)-1]
	for _, part := range group.FindAll("hintpart") {
		if !hasString(names, part.Get("on")) {
			continue
		}
		text := ""
		if t := part.Find("text"); t != nil {
			text = t.Text
		}
		newMap.SetHintAndMode(last, text, mode)
	}
	return nil
}

// xmlHints applies the newer hint schema. It reports whether that schema is
// in use, whether or not any hint matched.
func xmlHints(r Response, s Submission, cm *correctmap.Map) (bool, error) {
	b := r.common()
	if len(s) == 0 || b.XML.Root().Get("schema") != newHintSchema {
		return false, nil
	}
	if c, ok := r.(compoundHinter); ok && c.compoundConditionHints(cm, s) {
		return true, nil
	}
	if sc, ok := r.(singleChoiceHinter); ok {
		return true, sc.singleChoiceHints(cm, s)
	}
	return true, nil
}

// runHintFunction calls the named author function with the answer ids, the
// submission and both maps in plain form; its edits to the new map are kept.
//
// The function is declared in the problem script as
//
//	func name(answerIDs []string, studentAnswers, newCmap, oldCmap map[string]interface{})
func (b *Base) runHintFunction(ctx context.Context, fn string, s Submission, newMap, oldMap *correctmap.Map) error {
	body := fmt.Sprintf(`	%s(g["answer_ids"].([]string), g["student_answers"].(map[string]interface{}), g["new_cmap_dict"].(map[string]interface{}), g["old_cmap_dict"].(map[string]interface{}))`, fn)
	globals := map[string]interface{}{
		"answer_ids":      append([]string(nil), b.AnswerIDs...),
		"student_answers": map[string]interface{}(s),
		"new_cmap_dict":   newMap.Dict(),
		"old_cmap_dict":   oldMap.Dict(),
	}
	fail := func(err error) error {
		b.System.logger().Warn("hint function failed",
			zap.String("response", b.ID), zap.String("hintfn", fn), zap.Error(err))
		msg := b.System.tr("Error %v in evaluating hint function %s.", err, fn)
		msg += "\n" + b.System.tr("See XML source line %s.", b.XML.SourceLine())
		return &ResponseError{Msg: msg, Err: err}
	}
	if err := b.exec(ctx, program(b.Context.script(), body), globals); err != nil {
		return fail(err)
	}
	d, ok := globals["new_cmap_dict"].(map[string]interface{})
	if !ok {
		return fail(fmt.Errorf("new_cmap_dict replaced by %T", globals["new_cmap_dict"]))
	}
	if err := newMap.SetDict(d); err != nil {
		return fail(err)
	}
	return nil
}

// hintLabel is the author label or the default CORRECT/INCORRECT prefix.
func (b *Base) hintLabel(hint *xmltree.Element, correct bool) string {
	if l := hint.Get("label"); l != "" {
		return l + ": "
	}
	if correct {
		return b.System.tr("CORRECT: ")
	}
	return b.System.tr("INCORRECT: ")
}

func hintDiv(class, text string) string {
	return `<div class="` + class + `">` + text + `</div>`
}

func styleFor(correct bool) string {
	if correct {
		return hintCorrectStyle
	}
	return hintIncorrectStyle
}

// appendMsg adds html to the message of id.
func appendMsg(cm *correctmap.Map, id, html string) {
	cm.SetMsg(id, cm.Msg(id)+html)
}

func hintText(el *xmltree.Element) string {
	return strings.TrimSpace(el.Text)
}
