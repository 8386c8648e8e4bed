package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
)

var imageSpec = typeSpec{allowedInputs: []string{"imageinput"}}

var (
	clickPattern     = regexp.MustCompile(`^\[([0-9]+),([0-9]+)\]`)
	rectanglePattern = regexp.MustCompile(`^[\(\[]([0-9]+),([0-9]+)[\)\]]-[\(\[]([0-9]+),([0-9]+)[\)\]]`)
)

// ImageResponse grades clicks on an image. Each imageinput lists correct
// rectangles "(x1,y1)-(x2,y2);..." (edges included) and/or polygonal regions
// as JSON point lists, tested against their convex hull (edges excluded).
type ImageResponse struct {
	*Base
}

func newImageResponse(b *Base, _ *config) (Response, error) {
	return &ImageResponse{Base: b}, nil
}

type point struct{ x, y float64 }

func (r *ImageResponse) Score(_ context.Context, s Submission) (*correctmap.Map, error) {
	cm := correctmap.New()
	for _, in := range r.Inputs {
		id := in.Get("id")
		cm.SetCorrectness(id, correctmap.Incorrect, nil, "")
		given, _ := s.String(id)
		if given == "" {
			continue
		}
		m := clickPattern.FindStringSubmatch(strings.ReplaceAll(strings.TrimSpace(given), " ", ""))
		if m == nil {
			return nil, &StudentInputError{Kind: InputParse,
				Msg: r.System.tr("error grading %s (input=%s)", id, escapeHTML(given))}
		}
		x, _ := strconv.Atoi(m[1])
		y, _ := strconv.Atoi(m[2])
		click := point{float64(x), float64(y)}

		hit, err := r.inRectangles(in.Get("rectangle"), click)
		if err != nil {
			return nil, err
		}
		if !hit && in.Get("regions") != "" {
			if hit, err = r.inRegions(in.Get("regions"), click); err != nil {
				return nil, err
			}
		}
		if hit {
			cm.SetCorrectness(id, correctmap.Correct, nil, "")
		}
	}
	return cm, nil
}

func (r *ImageResponse) inRectangles(spec string, p point) (bool, error) {
	if spec == "" {
		return false, nil
	}
	for _, rect := range strings.Split(spec, ";") {
		m := rectanglePattern.FindStringSubmatch(strings.ReplaceAll(strings.TrimSpace(rect), " ", ""))
		if m == nil {
			return false, specErrorf("%s", r.System.tr("Error in problem specification! Cannot parse rectangle in %s", rect))
		}
		var c [4]float64
		for i := range c {
			v, _ := strconv.Atoi(m[i+1])
			c[i] = float64(v)
		}
		if c[0] <= p.x && p.x <= c[2] && c[1] <= p.y && p.y <= c[3] {
			return true, nil
		}
	}
	return false, nil
}

// inRegions accepts a single region [[x,y],...] or a list of them.
func (r *ImageResponse) inRegions(spec string, p point) (bool, error) {
	var many [][][2]float64
	if err := json.Unmarshal([]byte(spec), &many); err != nil {
		var one [][2]float64
		if err2 := json.Unmarshal([]byte(spec), &one); err2 != nil {
			return false, &SpecificationError{Msg: fmt.Sprintf("%s: cannot parse regions %q", r, spec), Err: err2}
		}
		many = [][][2]float64{one}
	}
	for _, region := range many {
		pts := make([]point, len(region))
		for i, xy := range region {
			pts[i] = point{xy[0], xy[1]}
		}
		if hull := convexHull(pts); len(hull) >= 3 && strictlyInside(hull, p) {
			return true, nil
		}
	}
	return false, nil
}

func cross(o, a, b point) float64 {
	return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
}

// convexHull returns the hull in counter-clockwise order without collinear
// points (monotone chain). Fewer than three points means a degenerate hull.
func convexHull(pts []point) []point {
	pts = append([]point(nil), pts...)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y < pts[j].y
	})
	if len(pts) < 3 {
		return pts
	}
	hull := make([]point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// strictlyInside reports whether p lies in the interior of a CCW convex
// polygon; boundary points are outside.
func strictlyInside(hull []point, p point) bool {
	for i := range hull {
		if cross(hull[i], hull[(i+1)%len(hull)], p) <= 0 {
			return false
		}
	}
	return true
}

func (r *ImageResponse) Answers() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Inputs))
	for _, in := range r.Inputs {
		out[in.Get("id")] = map[string]string{"rectangle": in.Get("rectangle"), "regions": in.Get("regions")}
	}
	return out
}
