package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
	"github.com/mind-engage/mindengage-capa/internal/xmltree"
)

var externalSpec = typeSpec{allowedInputs: []string{"textline", "textbox"}}

// awardDetails maps external-server verdicts to correctness. Any other
// verdict counts as correct.
var awardDetails = map[string]correctmap.Correctness{
	"EXACT_ANS":    correctmap.Correct,
	"WRONG_FORMAT": correctmap.Incorrect,
}

// ExternalResponse posts the problem and submission to a synchronous grading
// server and reads an XML verdict back.
type ExternalResponse struct {
	*Base
	url   string
	tests string
	code  string
}

func newExternalResponse(b *Base, _ *config) (Response, error) {
	r := &ExternalResponse{Base: b, url: b.XML.Get("url"), tests: b.XML.Get("tests")}
	if r.url == "" {
		return nil, specErrorf("%s: missing url for externalresponse\nSee XML source line %s", b, b.XML.SourceLine())
	}
	if answer := b.XML.Find("answer"); answer != nil {
		if src, ok := answer.Lookup("src"); ok {
			code, err := b.readSource(src)
			if err != nil {
				return nil, err
			}
			r.code = code
		} else {
			r.code = answer.Text
		}
		return r, nil
	}
	r.code = b.Context.script()
	if r.code == "" {
		return nil, specErrorf("%s: Missing answer script code for externalresponse\nSee XML source line %s", b, b.XML.SourceLine())
	}
	return r, nil
}

// request performs cmd on the external server and returns its parsed reply.
func (r *ExternalResponse) request(ctx context.Context, cmd string, extra url.Values) (*xmltree.Element, error) {
	if r.System == nil || r.System.External == nil {
		return nil, fmt.Errorf("no external grading client configured")
	}
	form := url.Values{
		"xml":       {r.XML.String()},
		"edX_cmd":   {cmd},
		"edX_tests": {r.tests},
		"processor": {r.code},
	}
	for k, v := range extra {
		form[k] = v
	}
	body, err := r.System.External.PostForm(ctx, r.url, form)
	if err != nil {
		return nil, fmt.Errorf("Error %v - cannot connect to external server url=%s", err, r.url)
	}
	if r.System.debug() {
		r.System.logger().Info("external server response", zap.ByteString("response", body))
	}
	if strings.TrimSpace(string(body)) == "" {
		return nil, fmt.Errorf("Error: no response from external server url=%s", r.url)
	}
	doc, err := xmltree.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("Error %v - cannot parse response from external server req.text=%s", err, body)
	}
	return doc, nil
}

func (r *ExternalResponse) Score(ctx context.Context, s Submission) (*correctmap.Map, error) {
	idset := append([]string(nil), r.AnswerIDs...)
	sort.Strings(idset)
	submission := make([]interface{}, len(idset))
	for i, id := range idset {
		v, ok := s[id]
		if !ok {
			return nil, &ResponseError{Msg: fmt.Sprintf("%s: cannot get student answer for %s", r, id)}
		}
		submission[i] = v
	}
	raw, err := json.Marshal(submission)
	if err != nil {
		return nil, err
	}
	cm := correctmap.New()
	doc, err := r.request(ctx, "get_score", url.Values{"edX_student_response": {string(raw)}})
	if err != nil {
		r.System.logger().Error("external response", zap.String("response", r.ID), zap.Error(err))
		if r.System.debug() {
			for _, id := range idset {
				cm.SetCorrectness(id, correctmap.Incorrect, nil, "")
			}
			cm.SetMsg(r.AnswerIDs[0], inlineError(strings.ReplaceAll(err.Error(), "<", "&lt;")))
			return cm, nil
		}
		return nil, &ResponseError{Msg: err.Error(), Err: err}
	}

	verdict := correctmap.Correct
	if award := doc.Find("awarddetail"); award != nil {
		if c, ok := awardDetails[strings.TrimSpace(award.Text)]; ok {
			verdict = c
		}
	}
	msg := ""
	if m := doc.Find("message"); m != nil {
		msg = strings.ReplaceAll(m.TextContent(), "&nbsp;", "&#160;")
	}
	for i, id := range idset {
		if i == 0 {
			cm.SetCorrectness(id, verdict, nil, msg)
		} else {
			cm.SetCorrectness(id, verdict, nil, "")
		}
	}
	return cm, nil
}

// Answers asks the external server for the expected answers, a JSON list in
// answer-id order.
func (r *ExternalResponse) Answers() map[string]interface{} {
	out := map[string]interface{}{}
	var expected []string
	doc, err := r.request(context.Background(), "get_answers", nil)
	if err == nil {
		if e := doc.Find("expected"); e != nil {
			err = json.Unmarshal([]byte(e.TextContent()), &expected)
		} else {
			err = fmt.Errorf("reply has no expected element")
		}
	}
	if err != nil {
		r.System.logger().Error("external response answers", zap.String("response", r.ID), zap.Error(err))
		if !r.System.debug() {
			return out
		}
		expected = make([]string, len(r.AnswerIDs))
		if len(expected) > 0 {
			expected[0] = inlineError(strings.ReplaceAll(err.Error(), "<", "&lt;"))
		}
	}
	if len(expected) != len(r.AnswerIDs) {
		r.System.logger().Error("short response from external server",
			zap.Int("expected", len(r.AnswerIDs)), zap.Int("got", len(expected)))
		return out
	}
	for i, id := range r.AnswerIDs {
		out[id] = expected[i]
	}
	return out
}
