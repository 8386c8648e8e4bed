package grading

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
)

func TestImageRectangles(t *testing.T) {
	r := newEnv().build(t, `<imageresponse>
  <imageinput src="map.png" rectangle="(10,10)-(20,20);[30,30]-[40,40]"/>
</imageresponse>`)
	for click, want := range map[string]bool{
		"[15,15]":   true,
		"[20,20]":   true,
		"[35, 35]":  true,
		"[25,25]":   false,
		"[9,15]":    false,
		"[15,15]xy": true,
	} {
		assert.Equal(t, want, grade(t, r, Submission{"r_1": click}).IsCorrect("r_1"), click)
	}
	assert.Equal(t, correctmap.Incorrect, grade(t, r, Submission{"r_1": ""}).Correctness("r_1"))
}

func TestImageRegions(t *testing.T) {
	r := newEnv().build(t, `<imageresponse>
  <imageinput src="a.png" regions='[[[0,0],[10,0],[10,10],[0,10]], [[20,20],[30,20],[25,30]]]'/>
  <imageinput src="b.png" regions='[[0,0],[10,0],[0,10]]'/>
</imageresponse>`)
	cases := []struct {
		click string
		want  bool
	}{
		{"[5,5]", true},
		{"[25,22]", true},
		{"[10,5]", false},
		{"[15,15]", false},
	}
	for _, tc := range cases {
		cm := grade(t, r, Submission{"r_1": tc.click, "r_2": tc.click})
		assert.Equal(t, tc.want, cm.IsCorrect("r_1"), tc.click)
	}
	cm := grade(t, r, Submission{"r_1": "[1,1]", "r_2": "[2,2]"})
	assert.True(t, cm.IsCorrect("r_2"))
	cm = grade(t, r, Submission{"r_1": "[1,1]", "r_2": "[6,6]"})
	assert.False(t, cm.IsCorrect("r_2"))
}

func TestImageErrors(t *testing.T) {
	r := newEnv().build(t, `<imageresponse><imageinput rectangle="(0,0)-(5,5)"/></imageresponse>`)
	_, err := Evaluate(context.Background(), r, Submission{"r_1": "here"}, nil)
	var in *StudentInputError
	require.True(t, errors.As(err, &in))
	assert.Equal(t, InputParse, in.Kind)

	r = newEnv().build(t, `<imageresponse><imageinput rectangle="0,0 to 5,5"/></imageresponse>`)
	_, err = Evaluate(context.Background(), r, Submission{"r_1": "[1,1]"}, nil)
	var spec *SpecificationError
	assert.True(t, errors.As(err, &spec))

	r = newEnv().build(t, `<imageresponse><imageinput regions="not json"/></imageresponse>`)
	_, err = Evaluate(context.Background(), r, Submission{"r_1": "[1,1]"}, nil)
	assert.True(t, errors.As(err, &spec))
}

func TestConvexHull(t *testing.T) {
	hull := convexHull([]point{{0, 0}, {2, 0}, {4, 0}, {4, 4}, {2, 2}, {0, 4}})
	assert.ElementsMatch(t, []point{{0, 0}, {4, 0}, {4, 4}, {0, 4}}, hull)
	assert.True(t, strictlyInside(hull, point{1, 1}))
	assert.False(t, strictlyInside(hull, point{4, 2}))
	assert.False(t, strictlyInside(hull, point{5, 5}))

	assert.Len(t, convexHull([]point{{0, 0}, {1, 1}}), 2)
}

func TestAnnotation(t *testing.T) {
	r := newEnv().build(t, `<annotationresponse>
  <annotationinput>
    <text>The quick brown fox.</text>
    <options>
      <option choice="correct">Accurate</option>
      <option choice="partially-correct">Vague</option>
      <option choice="incorrect">Wrong</option>
    </options>
  </annotationinput>
</annotationresponse>`)
	assert.Equal(t, 2, Common(r).MaxScore())

	cases := []struct {
		raw    string
		want   correctmap.Correctness
		points float64
	}{
		{`{"options":[0],"comment":"spot on"}`, correctmap.Correct, 2},
		{`{"options":[1],"comment":""}`, correctmap.PartiallyCorrect, 1},
		{`{"options":[2]}`, correctmap.Incorrect, 0},
		{`{"options":[0,1]}`, correctmap.Incorrect, 0},
		{`{"options":[7]}`, correctmap.Incorrect, 0},
		{`not json`, correctmap.Incorrect, 0},
	}
	for _, tc := range cases {
		cm := grade(t, r, Submission{"r_1": tc.raw})
		assert.Equal(t, tc.want, cm.Correctness("r_1"), tc.raw)
		assert.Equal(t, tc.points, cm.NPoints("r_1"), tc.raw)
	}
	assert.Equal(t, map[string]interface{}{"r_1": "Accurate"}, r.Answers())
}
