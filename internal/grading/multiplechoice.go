package grading

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
	"github.com/mind-engage/mindengage-capa/internal/xmltree"
)

var multipleChoiceSpec = typeSpec{
	allowedInputs: []string{"choicegroup"},
	maxInputs:     1,
	hintTag:       "choicehint",
}

// MultipleChoiceResponse is a single selection from a choicegroup. The group
// may shuffle its choices or show a random pool of them; see LateTransforms.
type MultipleChoiceResponse struct {
	*Base
	correct []string

	trueFalse     bool
	hasMask       bool
	hasShuffle    bool
	hasAnswerPool bool
	maskNames     map[string]string
}

func newMultipleChoiceResponse(b *Base, cfg *config) (Response, error) {
	r := &MultipleChoiceResponse{Base: b, hasMask: cfg.Masking}
	if err := r.assignNames(); err != nil {
		return nil, err
	}
	r.collectCorrect()
	return r, nil
}

// newTrueFalseResponse builds the multi-answer variant: correct iff the
// selected set equals the correct set.
func newTrueFalseResponse(b *Base, _ *config) (Response, error) {
	r := &MultipleChoiceResponse{Base: b, trueFalse: true}
	i := 0
	for _, group := range b.XML.FindAll("choicegroup") {
		group.Set("type", "TrueFalse")
		for _, c := range group.Children {
			if name, ok := c.Lookup("name"); ok {
				c.Set("name", "choice_"+name)
			} else {
				c.Set("name", fmt.Sprintf("choice_%d", i))
				i++
			}
		}
	}
	r.collectCorrect()
	return r, nil
}

// assignNames names every choice choice_<name> or choice_<n>, or a random
// mask_<n> when masking is on.
func (r *MultipleChoiceResponse) assignNames() error {
	i := 0
	for _, group := range r.XML.FindAll("choicegroup") {
		if group.Get("type") != "MultipleChoice" {
			group.Set("type", "MultipleChoice")
		}
		var maskIDs []int
		if r.hasMask {
			rng, err := r.rng()
			if err != nil {
				return err
			}
			maskIDs = rng.Perm(len(group.Children))
			if r.maskNames == nil {
				r.maskNames = map[string]string{}
			}
		}
		for _, c := range group.Children {
			var name string
			if n, ok := c.Lookup("name"); ok {
				name = "choice_" + n
			} else {
				name = fmt.Sprintf("choice_%d", i)
				i++
			}
			if r.hasMask {
				mask := fmt.Sprintf("mask_%d", maskIDs[len(maskIDs)-1])
				maskIDs = maskIDs[:len(maskIDs)-1]
				r.maskNames[mask] = name
				name = mask
			}
			c.Set("name", name)
		}
	}
	return nil
}

func (r *MultipleChoiceResponse) collectCorrect() {
	for _, c := range r.XML.Descendants("choice") {
		if isTrue(r.Context.Expand(c.Get("correct"))) {
			r.correct = append(r.correct, r.Context.Expand(c.Get("name")))
		}
	}
}

func (r *MultipleChoiceResponse) rng() (*rand.Rand, error) {
	if r.Context == nil || r.Context.Random == nil {
		return nil, specErrorf("%s: no random stream available", r)
	}
	return r.Context.Random.Rand(), nil
}

func (r *MultipleChoiceResponse) HasMask() bool       { return r.hasMask }
func (r *MultipleChoiceResponse) HasShuffle() bool    { return r.hasShuffle }
func (r *MultipleChoiceResponse) HasAnswerPool() bool { return r.hasAnswerPool }

// UnmaskName maps a mask_N name back to its choice_N name.
func (r *MultipleChoiceResponse) UnmaskName(name string) (string, error) {
	if !r.hasMask {
		return "", specErrorf("%s", r.System.tr("unmask_name called on response that is not masked"))
	}
	return r.maskNames[name], nil
}

// UnmaskOrder lists the choice names in display order.
func (r *MultipleChoiceResponse) UnmaskOrder() []string {
	var out []string
	for _, c := range r.XML.FindPath("choicegroup/choice") {
		out = append(out, c.Get("name"))
	}
	return out
}

func (r *MultipleChoiceResponse) Score(_ context.Context, s Submission) (*correctmap.Map, error) {
	if r.trueFalse {
		if setEqual(toSet(r.correct), toSet(s.Strings(r.AnswerID))) {
			return r.single(correctmap.Correct), nil
		}
		return r.single(correctmap.Incorrect), nil
	}
	if ans, ok := s.String(r.AnswerID); ok && hasString(r.correct, ans) {
		return r.single(correctmap.Correct), nil
	}
	return r.single(correctmap.Incorrect), nil
}

func (r *MultipleChoiceResponse) Answers() map[string]interface{} {
	return map[string]interface{}{r.AnswerID: append([]string(nil), r.correct...)}
}

func (r *MultipleChoiceResponse) singleChoiceHints(cm *correctmap.Map, s Submission) error {
	ans, ok := s.String(r.AnswerID)
	if !ok {
		return nil
	}
	for _, group := range r.XML.Descendants("choicegroup") {
		if group.Get("id") != r.AnswerID {
			continue
		}
		for _, c := range group.FindAll("choice") {
			if c.Get("name") != ans {
				continue
			}
			h := c.Find("choicehint")
			if h == nil || hintText(h) == "" {
				return nil
			}
			correct := isTrue(c.Get("correct"))
			appendMsg(cm, r.AnswerID, hintDiv(styleFor(correct), r.hintLabel(h, correct)+hintText(h)))
			return nil
		}
	}
	return nil
}

// LateTransforms shuffles or pools the choices. Both use the problem's shared
// random stream and run at most once per response.
func (r *MultipleChoiceResponse) LateTransforms() error {
	if err := r.shuffle(); err != nil {
		return err
	}
	return r.answerPool()
}

func (r *MultipleChoiceResponse) shuffle() error {
	var group *xmltree.Element
	for _, g := range r.XML.FindAll("choicegroup") {
		if g.Get("shuffle") == "true" {
			group = g
			break
		}
	}
	if group == nil {
		return nil
	}
	if _, ok := group.Lookup("answer-pool"); ok {
		return specErrorf("%s", r.System.tr("Do not use shuffle and answer-pool at the same time"))
	}
	if r.hasShuffle {
		return nil
	}
	rng, err := r.rng()
	if err != nil {
		return err
	}
	r.hasShuffle = true
	replaceChildren(group, shuffleChoices(group.Children, rng))
	return nil
}

// shuffleChoices permutes choices except fixed="true" ones at the head, which
// keep their place. A fixed choice after the first unfixed one is moved to
// the tail group instead of staying in place.
func shuffleChoices(choices []*xmltree.Element, rng *rand.Rand) []*xmltree.Element {
	var head, middle, tail []*xmltree.Element
	atHead := true
	for _, c := range choices {
		fixed := c.Get("fixed") == "true"
		if atHead && fixed {
			head = append(head, c)
			continue
		}
		atHead = false
		if fixed {
			tail = append(tail, c)
		} else {
			middle = append(middle, c)
		}
	}
	rng.Shuffle(len(middle), func(i, j int) { middle[i], middle[j] = middle[j], middle[i] })
	out := append(head, middle...)
	return append(out, tail...)
}

func (r *MultipleChoiceResponse) answerPool() error {
	var group *xmltree.Element
	for _, g := range r.XML.FindAll("choicegroup") {
		if _, ok := g.Lookup("answer-pool"); ok {
			group = g
			break
		}
	}
	if group == nil {
		return nil
	}
	raw := group.Get("answer-pool")
	if raw == "0" {
		return nil
	}
	k, err := strconv.Atoi(raw)
	if err != nil {
		return &SpecificationError{Msg: r.System.tr("answer-pool value should be an integer"), Err: err}
	}
	if r.hasAnswerPool {
		return nil
	}
	rng, err := r.rng()
	if err != nil {
		return err
	}
	r.hasAnswerPool = true

	solutionID, subset, err := r.sampleAnswerPool(group.Children, rng, k)
	if err != nil {
		return err
	}
	replaceChildren(group, subset)

	// Keep only the explanation of the correct choice that was drawn. The
	// solutionset follows the response element, not the choicegroup.
	if group.Parent == nil {
		return nil
	}
	if sets := group.Parent.FollowingSiblings("solutionset"); len(sets) > 0 {
		for _, sol := range sets[0].FindAll("solution") {
			if sol.Get("explanation-id") != solutionID {
				sets[0].Remove(sol)
			}
		}
	}
	return nil
}

// sampleAnswerPool picks one correct choice and up to k-1 incorrect ones, in
// random order. It returns the explanation id of the correct choice.
func (r *MultipleChoiceResponse) sampleAnswerPool(choices []*xmltree.Element, rng *rand.Rand, k int) (string, []*xmltree.Element, error) {
	var correct, incorrect []*xmltree.Element
	for _, c := range choices {
		if isTrue(c.Get("correct")) {
			correct = append(correct, c)
		} else {
			incorrect = append(incorrect, c)
		}
	}
	if len(correct) < 1 || len(incorrect) < 1 {
		return "", nil, specErrorf("%s", r.System.tr("Choicegroup must include at least 1 correct and 1 incorrect choice"))
	}
	n := k - 1
	if n > len(incorrect) {
		n = len(incorrect)
	}
	if n < 0 {
		n = 0
	}
	pick := correct[rng.Intn(len(correct))]
	rng.Shuffle(len(incorrect), func(i, j int) { incorrect[i], incorrect[j] = incorrect[j], incorrect[i] })
	subset := append([]*xmltree.Element{pick}, incorrect[:n]...)
	rng.Shuffle(len(subset), func(i, j int) { subset[i], subset[j] = subset[j], subset[i] })
	return pick.Get("explanation-id"), subset, nil
}

// replaceChildren detaches every child of parent and appends kids in order.
func replaceChildren(parent *xmltree.Element, kids []*xmltree.Element) {
	kids = append([]*xmltree.Element(nil), kids...)
	for _, c := range append([]*xmltree.Element(nil), parent.Children...) {
		parent.Remove(c)
	}
	for _, c := range kids {
		parent.Append(c)
	}
}
