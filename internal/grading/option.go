package grading

import (
	"context"
	"strings"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
)

var optionSpec = typeSpec{
	allowedInputs: []string{"optioninput"},
	hintTag:       "optionhint",
}

// OptionResponse grades one or more dropdowns, each carrying its correct
// option in a correct attribute.
type OptionResponse struct {
	*Base
}

func newOptionResponse(b *Base, _ *config) (Response, error) {
	return &OptionResponse{Base: b}, nil
}

func (r *OptionResponse) Score(_ context.Context, s Submission) (*correctmap.Map, error) {
	cm := correctmap.New()
	for id, want := range r.Answers() {
		if got, ok := s.String(id); ok && got == want {
			cm.SetCorrectness(id, correctmap.Correct, nil, "")
		} else {
			cm.SetCorrectness(id, correctmap.Incorrect, nil, "")
		}
	}
	return cm, nil
}

func (r *OptionResponse) Answers() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Inputs))
	for _, in := range r.Inputs {
		out[in.Get("id")] = r.Context.Expand(in.Get("correct"))
	}
	return out
}

// singleChoiceHints looks up the optionhint of the chosen option of the first
// dropdown.
func (r *OptionResponse) singleChoiceHints(cm *correctmap.Map, s Submission) error {
	if len(r.AnswerIDs) == 0 {
		return nil
	}
	id := r.AnswerIDs[0]
	ans, ok := s.String(id)
	if !ok {
		return nil
	}
	for _, in := range r.XML.Descendants("optioninput") {
		if in.Get("id") != id {
			continue
		}
		for _, opt := range in.FindAll("option") {
			if strings.TrimSpace(opt.Text) != ans {
				continue
			}
			correct := isTrue(opt.Get("correct"))
			for _, h := range opt.Descendants("optionhint") {
				if hintText(h) == "" {
					continue
				}
				appendMsg(cm, id, hintDiv(styleFor(correct), r.hintLabel(h, correct)+hintText(h)))
			}
		}
	}
	return nil
}
