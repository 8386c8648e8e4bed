package capa

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
	"github.com/mind-engage/mindengage-capa/internal/grading"
	"github.com/mind-engage/mindengage-capa/internal/sandbox"
)

const twoResponses = `<problem>
  <numericalresponse answer="10">
    <responseparam type="tolerance" default="0.1"/>
    <textline/>
  </numericalresponse>
  <stringresponse answer="Paris" type="ci">
    <textline points="2"/>
  </stringresponse>
</problem>`

func build(t *testing.T, src string, seed int64, sys *grading.System) *Problem {
	t.Helper()
	if sys == nil {
		sys = &grading.System{Logger: zap.NewNop()}
	}
	p, err := New(context.Background(), src, "p", seed, grading.NewRegistry(), sys)
	require.NoError(t, err)
	return p
}

func TestIDsAndMaxScore(t *testing.T) {
	p := build(t, twoResponses, 1, nil)
	assert.Equal(t, []string{"p_2_1", "p_3_1"}, p.AnswerIDs())
	_, ok := p.Response("p_2")
	assert.True(t, ok)
	_, ok = p.Response("p_3")
	assert.True(t, ok)
	assert.Equal(t, 3, p.MaxScore())
}

func TestGrade(t *testing.T) {
	p := build(t, twoResponses, 1, nil)
	cm, err := p.Grade(context.Background(), grading.Submission{"p_2_1": "10.05", "p_3_1": "paris"}, nil)
	require.NoError(t, err)
	assert.True(t, cm.IsCorrect("p_2_1"))
	assert.True(t, cm.IsCorrect("p_3_1"))
	assert.Equal(t, 1.0, cm.NPoints("p_2_1"))
	assert.Equal(t, 2.0, cm.NPoints("p_3_1"), "declared points")

	cm, err = p.Grade(context.Background(), grading.Submission{"p_2_1": "11", "p_3_1": "London"}, nil)
	require.NoError(t, err)
	assert.Equal(t, correctmap.Incorrect, cm.Correctness("p_2_1"))
	assert.Equal(t, correctmap.Incorrect, cm.Correctness("p_3_1"))
}

func TestGradeStudentInputError(t *testing.T) {
	p := build(t, twoResponses, 1, nil)
	_, err := p.Grade(context.Background(), grading.Submission{"p_2_1": "1+", "p_3_1": "x"}, nil)
	var sie *grading.StudentInputError
	require.ErrorAs(t, err, &sie)
}

func TestAnswers(t *testing.T) {
	p := build(t, twoResponses, 1, nil)
	want := map[string]interface{}{"p_2_1": "10", "p_3_1": "Paris"}
	if diff := cmp.Diff(want, p.Answers()); diff != "" {
		t.Errorf("answers (-want +got):\n%s", diff)
	}
}

const shuffled = `<problem>
  <multiplechoiceresponse>
    <choicegroup type="MultipleChoice" shuffle="true">
      <choice correct="false">a</choice>
      <choice correct="true">b</choice>
      <choice correct="false">c</choice>
      <choice correct="false">d</choice>
      <choice correct="false">e</choice>
    </choicegroup>
  </multiplechoiceresponse>
</problem>`

func TestShuffleIsSeeded(t *testing.T) {
	order := func(seed int64) []string {
		p := build(t, shuffled, seed, nil)
		r, ok := p.Response("p_2")
		require.True(t, ok)
		return r.(*grading.MultipleChoiceResponse).UnmaskOrder()
	}
	first := order(42)
	assert.Equal(t, first, order(42))
	assert.ElementsMatch(t, []string{"choice_0", "choice_1", "choice_2", "choice_3", "choice_4"}, first)

	p := build(t, shuffled, 42, nil)
	cm, err := p.Grade(context.Background(), grading.Submission{"p_2_1": "choice_1"}, nil)
	require.NoError(t, err)
	assert.True(t, cm.IsCorrect("p_2_1"))
}

func TestAnswerPoolKeepsDrawnSolution(t *testing.T) {
	src := `<problem>
  <multiplechoiceresponse>
    <choicegroup type="MultipleChoice" answer-pool="3">
      <choice correct="false">w1</choice>
      <choice correct="true" explanation-id="s1">r1</choice>
      <choice correct="false">w2</choice>
      <choice correct="true" explanation-id="s2">r2</choice>
      <choice correct="false">w3</choice>
    </choicegroup>
  </multiplechoiceresponse>
  <solutionset>
    <solution explanation-id="s1">First.</solution>
    <solution explanation-id="s2">Second.</solution>
  </solutionset>
</problem>`
	for seed := int64(1); seed <= 5; seed++ {
		p := build(t, src, seed, nil)
		var drawn []string
		for _, c := range p.Tree.Find("multiplechoiceresponse").Find("choicegroup").Children {
			if c.Get("correct") == "true" {
				drawn = append(drawn, c.Get("explanation-id"))
			}
		}
		require.Len(t, drawn, 1)
		solutions := p.Tree.Find("solutionset").FindAll("solution")
		require.Len(t, solutions, 1, "seed %d", seed)
		assert.Equal(t, drawn[0], solutions[0].Get("explanation-id"))
	}
}

func TestSetupScriptVars(t *testing.T) {
	src := `<problem>
  <script type="text/go">
func Setup(g map[string]interface{}) {
	g["target"] = 3 * 4
}
  </script>
  <numericalresponse answer="$target">
    <textline/>
  </numericalresponse>
</problem>`
	sys := &grading.System{Logger: zap.NewNop(), Sandbox: sandbox.New()}
	p := build(t, src, 7, sys)
	assert.EqualValues(t, 12, p.Vars()["target"])
	assert.NotContains(t, p.Vars(), "random")

	cm, err := p.Grade(context.Background(), grading.Submission{"p_2_1": "12"}, nil)
	require.NoError(t, err)
	assert.True(t, cm.IsCorrect("p_2_1"))
}

func TestSetupWithoutSandbox(t *testing.T) {
	src := `<problem><script>
func Setup(g map[string]interface{}) {}
</script></problem>`
	_, err := New(context.Background(), src, "p", 1, grading.NewRegistry(), nil)
	var spec *grading.SpecificationError
	require.ErrorAs(t, err, &spec)
}

type fakeQueue struct {
	header, body string
}

func (q *fakeQueue) Send(_ context.Context, header, body string, _ map[string][]byte) (string, error) {
	q.header, q.body = header, body
	return "queued", nil
}

const codeProblem = `<problem>
  <coderesponse queuename="python">
    <textbox/>
    <codeparam>
      <grader_payload>{"grader": "ps1.py"}</grader_payload>
      <answer_display>print(42)</answer_display>
    </codeparam>
  </coderesponse>
</problem>`

func TestQueuedGradeAndUpdate(t *testing.T) {
	q := &fakeQueue{}
	sys := &grading.System{
		Logger:             zap.NewNop(),
		AnonymousStudentID: "anon",
		XQueue:             &grading.XQueue{Queue: q, CallbackURL: func() string { return "http://lms/cb" }},
		Now:                func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	p := build(t, codeProblem, 3, sys)

	cm, err := p.Grade(context.Background(), grading.Submission{"p_2_1": "print(42)"}, nil)
	require.NoError(t, err)
	require.True(t, p.IsQueued(cm))
	e, _ := cm.Get("p_2_1")
	assert.Equal(t, correctmap.Incomplete, e.Correctness)
	assert.Equal(t, "20240102030405", e.QueueState.Time)
	assert.Contains(t, q.header, e.QueueState.Key)
	assert.Contains(t, q.body, `ps1.py`)

	// An unrelated regrade keeps the pending entry.
	again, err := p.Grade(context.Background(), grading.Submission{}, cm)
	require.NoError(t, err)
	assert.True(t, again.IsQueued("p_2_1"))

	assert.False(t, p.UpdateScore(`{"correct": true, "score": 1, "msg": "<p>ok</p>"}`, "wrong", cm))
	assert.True(t, p.IsQueued(cm))

	require.True(t, p.UpdateScore(`{"correct": true, "score": 1, "msg": "<p>ok</p>"}`, e.QueueState.Key, cm))
	assert.True(t, cm.IsCorrect("p_2_1"))
	assert.Equal(t, 1.0, cm.NPoints("p_2_1"))
	assert.Equal(t, "<p>ok</p>", cm.Msg("p_2_1"))
	assert.False(t, p.IsQueued(cm))
}

func TestParseError(t *testing.T) {
	_, err := New(context.Background(), "<problem>", "p", 1, grading.NewRegistry(), nil)
	assert.Error(t, err)
	_, err = New(context.Background(), "<problem/>", "", 1, grading.NewRegistry(), nil)
	assert.Error(t, err)
}
