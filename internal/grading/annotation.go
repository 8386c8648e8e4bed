package grading

import (
	"context"
	"encoding/json"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
	"github.com/mind-engage/mindengage-capa/internal/xmltree"
)

var annotationSpec = typeSpec{allowedInputs: []string{"annotationinput"}, maxInputs: 1}

// annotationScoring is the points each option choice is worth.
var annotationScoring = map[correctmap.Correctness]float64{
	correctmap.Incorrect:        0,
	correctmap.PartiallyCorrect: 1,
	correctmap.Correct:          2,
}

type annotationOption struct {
	description string
	choice      correctmap.Correctness
}

// AnnotationResponse grades the tag a student picks for an annotation. The
// free-text comment is stored but not graded.
type AnnotationResponse struct {
	*Base
	options map[string][]annotationOption
}

func newAnnotationResponse(b *Base, _ *config) (Response, error) {
	r := &AnnotationResponse{Base: b, options: map[string][]annotationOption{}}
	for _, in := range b.Inputs {
		id := in.Get("id")
		r.options[id] = findAnnotationOptions(in)
		b.MaxPoints[id] = int(annotationScoring[correctmap.Correct])
	}
	return r, nil
}

func findAnnotationOptions(in *xmltree.Element) []annotationOption {
	var out []annotationOption
	for _, o := range in.FindPath("options/option") {
		out = append(out, annotationOption{description: o.Text, choice: correctmap.Correctness(o.Get("choice"))})
	}
	return out
}

// annotationSubmission is the JSON an annotationinput posts.
type annotationSubmission struct {
	Options []int  `json:"options"`
	Comment string `json:"comment"`
}

// selectedOption returns the single selected option index. Zero or several
// selections, or a value that is not the expected JSON, select nothing.
func selectedOption(raw string) (int, bool) {
	var sub annotationSubmission
	if err := json.Unmarshal([]byte(raw), &sub); err != nil || len(sub.Options) != 1 {
		return 0, false
	}
	return sub.Options[0], true
}

func (r *AnnotationResponse) Score(_ context.Context, s Submission) (*correctmap.Map, error) {
	raw, _ := s.String(r.AnswerID)
	cm := correctmap.New()
	opts := r.options[r.AnswerID]
	idx, ok := selectedOption(raw)
	if !ok || idx < 0 || idx >= len(opts) {
		cm.SetCorrectness(r.AnswerID, correctmap.Incorrect, nil, "")
		return cm, nil
	}
	choice := opts[idx].choice
	points, known := annotationScoring[choice]
	if !known {
		cm.SetCorrectness(r.AnswerID, "", nil, "")
		return cm, nil
	}
	cm.SetCorrectness(r.AnswerID, choice, correctmap.Points(points), "")
	return cm, nil
}

// Answers gives the description of the first correct option per input.
func (r *AnnotationResponse) Answers() map[string]interface{} {
	out := map[string]interface{}{}
	for id, opts := range r.options {
		for _, o := range opts {
			if o.choice == correctmap.Correct {
				out[id] = o.description
				break
			}
		}
	}
	return out
}
