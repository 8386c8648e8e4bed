// Package capa assembles a problem document into gradable responses.
package capa

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
	"github.com/mind-engage/mindengage-capa/internal/grading"
	"github.com/mind-engage/mindengage-capa/internal/xmltree"
)

// setupFunc detects a script that computes problem variables.
var setupFunc = regexp.MustCompile(`(?m)^func Setup\(`)

// lazyRand is the problem's shared random stream. It is created on first use
// so problems that never shuffle do not pay for it.
type lazyRand struct {
	seed int64
	once sync.Once
	r    *rand.Rand
}

func (l *lazyRand) Rand() *rand.Rand {
	l.once.Do(func() { l.r = rand.New(rand.NewSource(l.seed)) })
	return l.r
}

// Problem is one parsed problem with its responses built for a given seed.
type Problem struct {
	ID   string
	Seed int64
	Tree *xmltree.Element

	ctx       *grading.Context
	sys       *grading.System
	responses []grading.Response
	byID      map[string]grading.Response
}

// New parses src, runs the problem script's Setup if it declares one, then
// builds every response through reg. Answer fields without an id are named
// <id>_<response index+2>_<field index+1>.
func New(ctx context.Context, src, id string, seed int64, reg *grading.Registry, sys *grading.System) (*Problem, error) {
	if id == "" {
		return nil, fmt.Errorf("capa: problem id is required")
	}
	tree, err := xmltree.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("capa: parse problem %s: %w", id, err)
	}
	p := &Problem{
		ID:   id,
		Seed: seed,
		Tree: tree,
		sys:  sys,
		byID: map[string]grading.Response{},
		ctx: &grading.Context{
			Seed:   seed,
			Script: scriptText(tree),
			Vars:   map[string]interface{}{},
			Random: &lazyRand{seed: seed},
		},
	}
	if err := p.runSetup(ctx); err != nil {
		return nil, err
	}

	inputTags := reg.InputTags()
	for i, el := range tree.Descendants(reg.Tags()...) {
		rid := fmt.Sprintf("%s_%d", id, i+2)
		if el.Get("id") == "" {
			el.Set("id", rid)
		}
		inputs := el.Descendants(inputTags...)
		for j, in := range inputs {
			if in.Get("id") == "" {
				in.Set("id", fmt.Sprintf("%s_%d", rid, j+1))
			}
			in.Set("response_id", el.Get("id"))
		}
		r, err := reg.New(el, inputs, p.ctx, sys)
		if err != nil {
			return nil, err
		}
		p.responses = append(p.responses, r)
		p.byID[el.Get("id")] = r
	}
	for _, r := range p.responses {
		if t, ok := r.(grading.Transformer); ok {
			if err := t.LateTransforms(); err != nil {
				return nil, err
			}
		}
	}
	p.logger().Debug("problem built", zap.String("problem", id), zap.Int("responses", len(p.responses)))
	return p, nil
}

// scriptText joins the problem's <script> blocks in document order.
func scriptText(tree *xmltree.Element) string {
	var parts []string
	for _, s := range tree.Descendants("script") {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// runSetup calls the script's Setup(g) and keeps what it stores in g as the
// problem variables.
func (p *Problem) runSetup(ctx context.Context) error {
	if !setupFunc.MatchString(p.ctx.Script) {
		return nil
	}
	if p.sys == nil || p.sys.Sandbox == nil {
		return &grading.SpecificationError{Msg: fmt.Sprintf("problem %s: script declares Setup but no sandbox is configured", p.ID)}
	}
	unsafe := p.sys.CanExecuteUnsafeCode != nil && p.sys.CanExecuteUnsafeCode()
	g := map[string]interface{}{}
	code := p.ctx.Script + "\n\nfunc Run(g map[string]interface{}) {\n\tSetup(g)\n}\n"
	if err := p.sys.Sandbox.Exec(ctx, code, g, p.Seed, unsafe); err != nil {
		p.logger().Error("problem script failed", zap.String("problem", p.ID), zap.Error(err))
		return &grading.SpecificationError{Msg: fmt.Sprintf("problem %s: error in problem script: %v", p.ID, err), Err: err}
	}
	delete(g, "random")
	delete(g, "seed")
	p.ctx.Vars = g
	return nil
}

func (p *Problem) logger() *zap.Logger {
	if p.sys == nil || p.sys.Logger == nil {
		return zap.NewNop()
	}
	return p.sys.Logger
}

// Responses returns the problem's responses in document order.
func (p *Problem) Responses() []grading.Response { return p.responses }

// Response looks a response up by its id.
func (p *Problem) Response(id string) (grading.Response, bool) {
	r, ok := p.byID[id]
	return r, ok
}

// Vars are the values computed by the problem script.
func (p *Problem) Vars() map[string]interface{} { return p.ctx.Vars }

// AnswerIDs lists every answer field id in document order.
func (p *Problem) AnswerIDs() []string {
	var out []string
	for _, r := range p.responses {
		out = append(out, grading.Common(r).AnswerIDs...)
	}
	return out
}

// MaxScore is the sum over responses of their maximum points.
func (p *Problem) MaxScore() int {
	total := 0
	for _, r := range p.responses {
		total += grading.Common(r).MaxScore()
	}
	return total
}

// Grade evaluates every response against s and merges the results. old is
// the map from the previous attempt, handed to hint logic. A queued entry in
// old whose answer was not resubmitted stays queued.
func (p *Problem) Grade(ctx context.Context, s grading.Submission, old *correctmap.Map) (*correctmap.Map, error) {
	out := correctmap.New()
	overall := ""
	for _, r := range p.responses {
		b := grading.Common(r)
		if _, async := r.(grading.ScoreUpdater); async && old != nil && pendingUnchanged(b.AnswerIDs, s, old) {
			for _, id := range b.AnswerIDs {
				e, _ := old.Get(id)
				out.Set(id, e)
			}
			continue
		}
		cm, err := grading.Evaluate(ctx, r, s, old)
		if err != nil {
			p.logger().Debug("response grading failed", zap.String("response", b.ID), zap.Error(err))
			return nil, err
		}
		if m := cm.OverallMessage(); m != "" {
			overall = m
		}
		out.Merge(cm)
	}
	out.SetOverallMessage(overall)
	return out, nil
}

func pendingUnchanged(ids []string, s grading.Submission, old *correctmap.Map) bool {
	for _, id := range ids {
		if _, resubmitted := s[id]; resubmitted || !old.IsQueued(id) {
			return false
		}
	}
	return len(ids) > 0
}

// UpdateScore hands an external grader's reply to the response whose pending
// entry carries queueKey. It reports whether any response took it.
func (p *Problem) UpdateScore(reply, queueKey string, cm *correctmap.Map) bool {
	for _, r := range p.responses {
		u, ok := r.(grading.ScoreUpdater)
		if !ok {
			continue
		}
		for _, id := range grading.Common(r).AnswerIDs {
			if cm.IsRightQueueKey(id, queueKey) {
				u.UpdateScore(reply, cm, queueKey)
				return true
			}
		}
	}
	p.logger().Warn("no response waiting for queue key", zap.String("problem", p.ID), zap.String("queuekey", queueKey))
	return false
}

// IsQueued reports whether any field of cm awaits an external grader.
func (p *Problem) IsQueued(cm *correctmap.Map) bool {
	for _, id := range p.AnswerIDs() {
		if cm.IsQueued(id) {
			return true
		}
	}
	return false
}

// Answers collects every response's correct answers.
func (p *Problem) Answers() map[string]interface{} {
	out := map[string]interface{}{}
	for _, r := range p.responses {
		for id, a := range r.Answers() {
			out[id] = a
		}
	}
	return out
}

// HTML serializes the problem tree as built, after ids, names and
// transforms were applied.
func (p *Problem) HTML() string { return p.Tree.String() }
