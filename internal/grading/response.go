package grading

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
	"github.com/mind-engage/mindengage-capa/internal/xmltree"
)

// Response grades one response element of a problem.
type Response interface {
	// Score grades the submission. It never modifies s.
	Score(ctx context.Context, s Submission) (*correctmap.Map, error)
	// Answers returns the correct answer per answer id, computable without a
	// submission.
	Answers() map[string]interface{}

	common() *Base
}

// Transformer is implemented by responses that rearrange their subtree once
// the problem is fully built (shuffle, answer pool).
type Transformer interface {
	LateTransforms() error
}

// ScoreUpdater is implemented by responses graded asynchronously.
type ScoreUpdater interface {
	UpdateScore(reply string, cm *correctmap.Map, queueKey string)
}

// typeSpec is the structural contract of a response type, checked before any
// type-specific setup runs.
type typeSpec struct {
	allowedInputs []string
	maxInputs     int
	required      []string
	hintTag       string
}

// Base carries what every response type shares.
type Base struct {
	Tag string
	ID  string
	// XML is the working subtree; setup and transforms modify it in place.
	XML *xmltree.Element
	// Original is a copy of XML taken before any modification, for hints.
	Original *xmltree.Element
	Inputs   []*xmltree.Element
	// AnswerIDs are the ids of Inputs in document order. AnswerID is set
	// when the type allows a single input.
	AnswerIDs      []string
	AnswerID       string
	MaxPoints      map[string]int
	DefaultAnswers map[string]string
	Context        *Context
	System         *System

	spec typeSpec
}

func (b *Base) common() *Base { return b }

func (b *Base) String() string { return "capa response " + b.Tag }

// MaxScore is the sum of the per-field maximum points.
func (b *Base) MaxScore() int {
	total := 0
	for _, p := range b.MaxPoints {
		total += p
	}
	return total
}

// Common exposes the shared fields of any response.
func Common(r Response) *Base { return r.common() }

func newBase(el *xmltree.Element, inputs []*xmltree.Element, ctx *Context, sys *System, spec typeSpec) (*Base, error) {
	b := &Base{
		Tag:            el.Tag,
		ID:             el.Get("id"),
		XML:            el,
		Original:       el.Clone(),
		Inputs:         inputs,
		MaxPoints:      map[string]int{},
		DefaultAnswers: map[string]string{},
		Context:        ctx,
		System:         sys,
		spec:           spec,
	}
	for _, in := range inputs {
		if !hasString(spec.allowedInputs, in.Tag) {
			return nil, specErrorf("%s: cannot have input field %s\nSee XML source line %s", b, in.Tag, el.SourceLine())
		}
	}
	if spec.maxInputs > 0 && len(inputs) > spec.maxInputs {
		return nil, specErrorf("%s: cannot have more than %d input fields\nSee XML source line %s", b, spec.maxInputs, el.SourceLine())
	}
	for _, attr := range spec.required {
		if el.Get(attr) == "" {
			return nil, specErrorf("Error in problem specification: %s missing required attribute %s\nSee XML source line %s", b, attr, el.SourceLine())
		}
	}
	for _, in := range inputs {
		b.AnswerIDs = append(b.AnswerIDs, in.Get("id"))
	}
	if spec.maxInputs == 1 && len(b.AnswerIDs) > 0 {
		b.AnswerID = b.AnswerIDs[0]
	}
	for _, in := range inputs {
		id := in.Get("id")
		raw := in.GetDefault("points", "1")
		pts, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, &SpecificationError{
				Msg: fmt.Sprintf("%s: points %q of input %s is not an integer\nSee XML source line %s", b, raw, id, in.SourceLine()),
				Err: err,
			}
		}
		b.MaxPoints[id] = pts
		if ans := in.Get("correct_answer"); ans != "" {
			b.DefaultAnswers[id] = ctx.Expand(ans)
		}
	}
	return b, nil
}

// single builds a one-entry map for the response's only answer field.
func (b *Base) single(c correctmap.Correctness) *correctmap.Map {
	cm := correctmap.New()
	cm.SetCorrectness(b.AnswerID, c, nil, "")
	return cm
}

// Evaluate scores the submission and then applies hints. It is the entry
// point callers use; old is the map from the previous attempt.
func Evaluate(ctx context.Context, r Response, s Submission, old *correctmap.Map) (*correctmap.Map, error) {
	cm, err := r.Score(ctx, s)
	if err != nil {
		return nil, err
	}
	if old == nil {
		old = correctmap.New()
	}
	if err := applyHints(ctx, r, s.WithFileNames(), cm, old); err != nil {
		return nil, err
	}
	awardDeclaredPoints(Common(r), cm)
	return cm, nil
}

// awardDeclaredPoints gives a correct field that carries no explicit points
// the maximum declared on its input.
func awardDeclaredPoints(b *Base, cm *correctmap.Map) {
	for _, id := range cm.IDs() {
		e, _ := cm.Get(id)
		if e.Points != nil || e.Correctness != correctmap.Correct {
			continue
		}
		if max, ok := b.MaxPoints[id]; ok && max != 1 {
			cm.SetPoints(id, float64(max))
		}
	}
}

// program joins author declarations with a Run body into one unit for the
// sandbox.
func program(script, body string) string {
	var sb strings.Builder
	sb.WriteString(script)
	sb.WriteString("\n\nfunc Run(g map[string]interface{}) {\n")
	sb.WriteString(body)
	sb.WriteString("\n}\n")
	return sb.String()
}

func (b *Base) exec(ctx context.Context, code string, globals map[string]interface{}) error {
	if b.System == nil || b.System.Sandbox == nil {
		return fmt.Errorf("no sandbox configured")
	}
	return b.System.Sandbox.Exec(ctx, code, globals, b.Context.seed(), b.System.unsafe())
}

func hasString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func isTrue(s string) bool { return strings.EqualFold(strings.TrimSpace(s), "true") }

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escapeHTML escapes a student value echoed back in a message.
func escapeHTML(s string) string { return htmlEscaper.Replace(s) }
