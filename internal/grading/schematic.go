package grading

import (
	"context"
	"encoding/json"
	"sort"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
)

var schematicSpec = typeSpec{allowedInputs: []string{"schematic"}}

// SchematicResponse decodes each circuit submission from JSON and hands the
// list to an <answer> script, which fills correct.
type SchematicResponse struct {
	*Base
	code string
}

func newSchematicResponse(b *Base, _ *config) (Response, error) {
	answers := b.XML.Descendants("answer")
	if len(answers) == 0 {
		return nil, specErrorf("%s: missing <answer> script\nSee XML source line %s", b, b.XML.SourceLine())
	}
	r := &SchematicResponse{Base: b}
	if src, ok := answers[0].Lookup("src"); ok {
		code, err := b.readSource(src)
		if err != nil {
			return nil, err
		}
		r.code = code
	} else {
		r.code = answers[0].Text
	}
	return r, nil
}

func (r *SchematicResponse) Score(ctx context.Context, s Submission) (*correctmap.Map, error) {
	idset := append([]string(nil), r.AnswerIDs...)
	sort.Strings(idset)
	submission := make([]interface{}, len(idset))
	for i, id := range idset {
		raw, _ := s.String(id)
		if err := json.Unmarshal([]byte(raw), &submission[i]); err != nil {
			return nil, &StudentInputError{Kind: InputParse, Err: err,
				Msg: r.System.tr("Could not interpret the schematic submitted for %s.", id)}
		}
	}
	g := map[string]interface{}{
		"submission": submission,
		"correct":    make([]string, len(idset)),
		"messages":   make([]string, len(idset)),
		"expect":     "",
		"answers":    map[string]interface{}(s),
	}
	if r.Context != nil {
		for k, v := range r.Context.Vars {
			if _, taken := g[k]; !taken {
				g[k] = v
			}
		}
	}
	if err := r.exec(ctx, program(r.Context.script(), answerPrelude+r.code), g); err != nil {
		r.System.logger().Warn("schematic response script failed", zap.String("response", r.ID), zap.Error(err))
		return nil, &ResponseError{Msg: r.System.tr("Error in evaluating SchematicResponse. The error was: %v", err), Err: err}
	}
	correct, _ := g["correct"].([]string)
	cm := correctmap.New()
	for i, id := range idset {
		if i < len(correct) {
			cm.SetCorrectness(id, correctmap.Correctness(correct[i]), nil, "")
		}
	}
	return cm, nil
}

func (r *SchematicResponse) Answers() map[string]interface{} {
	out := make(map[string]interface{}, len(r.DefaultAnswers))
	for id, a := range r.DefaultAnswers {
		out[id] = a
	}
	return out
}
