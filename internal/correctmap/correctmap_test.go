package correctmap

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNPoints(t *testing.T) {
	m := New()
	m.SetCorrectness("a", Correct, nil, "")
	m.SetCorrectness("b", Incorrect, nil, "")
	m.SetCorrectness("c", PartiallyCorrect, Points(0.5), "")
	m.SetCorrectness("d", Correct, Points(-3), "")

	assert.Equal(t, 1.0, m.NPoints("a"))
	assert.Equal(t, 0.0, m.NPoints("b"))
	assert.Equal(t, 0.5, m.NPoints("c"))
	assert.Equal(t, 0.0, m.NPoints("d"))
	assert.Equal(t, 0.0, m.NPoints("missing"))

	assert.True(t, m.IsCorrect("c"))
	assert.True(t, m.IsPartiallyCorrect("c"))
	assert.False(t, m.IsCorrect("b"))
	assert.Equal(t, []string{"a", "b", "c", "d"}, m.IDs())
}

func TestSetKeepsExistingHint(t *testing.T) {
	m := New()
	m.SetHintAndMode("a", "look again", HintOnRequest)
	m.SetCorrectness("a", Incorrect, nil, "nope")

	e, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, "look again", e.Hint)
	assert.Equal(t, HintOnRequest, e.HintMode)
	assert.Equal(t, "nope", e.Msg)

	m.Set("a", Entry{Correctness: Incorrect, Hint: " and again"})
	assert.Equal(t, "look again and again", m.Hint("a"))

	m.SetHintAndMode("a", "replaced", HintAlways)
	assert.Equal(t, "replaced", m.Hint("a"))
}

func TestQueueState(t *testing.T) {
	m := New()
	m.Set("a", Entry{Correctness: Incomplete, QueueState: &QueueState{Key: "k1", Time: "20240101120000"}})

	assert.True(t, m.IsQueued("a"))
	assert.True(t, m.IsRightQueueKey("a", "k1"))
	assert.False(t, m.IsRightQueueKey("a", "k2"))
	assert.False(t, m.IsRightQueueKey("b", "k1"))
	assert.Equal(t, "20240101120000", m.QueueTime("a"))

	m.SetQueueState("a", nil)
	assert.False(t, m.IsQueued("a"))
}

func TestMerge(t *testing.T) {
	left := New()
	left.SetCorrectness("a", Incorrect, nil, "left")
	left.SetCorrectness("b", Correct, nil, "")
	left.SetOverallMessage("old")

	right := New()
	right.SetCorrectness("a", Correct, Points(2), "right")
	right.SetOverallMessage("new")

	left.Merge(right)
	assert.Equal(t, Correct, left.Correctness("a"))
	assert.Equal(t, "right", left.Msg("a"))
	assert.Equal(t, Correct, left.Correctness("b"))
	assert.Equal(t, "new", left.OverallMessage())
}

func TestDictRoundTrip(t *testing.T) {
	m := New()
	m.SetCorrectness("a", Correct, Points(1), "ok")
	d := m.Dict()

	entry := d["a"].(map[string]interface{})
	assert.Equal(t, "correct", entry["correctness"])
	entry["msg"] = "changed by script"
	entry["hint"] = "try units"

	require.NoError(t, m.SetDict(d))
	assert.Equal(t, "changed by script", m.Msg("a"))
	assert.Equal(t, "try units", m.Hint("a"))
	assert.Equal(t, 1.0, m.NPoints("a"))
}

func TestJSON(t *testing.T) {
	m := New()
	m.Set("a", Entry{Correctness: Incomplete, QueueState: &QueueState{Key: "k", Time: "t"}})
	m.SetOverallMessage("all")

	raw, err := json.Marshal(m)
	require.NoError(t, err)

	back := New()
	require.NoError(t, json.Unmarshal(raw, back))
	want, _ := m.Get("a")
	got, _ := back.Get("a")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "all", back.OverallMessage())
}

func TestSetProperty(t *testing.T) {
	m := New()
	require.NoError(t, m.SetProperty("a", "correctness", "correct"))
	require.NoError(t, m.SetProperty("a", "npoints", 2.5))
	require.NoError(t, m.SetProperty("a", "msg", "fine"))
	assert.True(t, m.IsCorrect("a"))
	assert.Equal(t, 2.5, m.NPoints("a"))
	assert.Equal(t, "fine", m.Msg("a"))

	assert.Error(t, m.SetProperty("a", "npoints", "two"))
	assert.Error(t, m.SetProperty("a", "colour", "red"))
}
