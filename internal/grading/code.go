package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
	"github.com/mind-engage/mindengage-capa/internal/xmltree"
	"github.com/mind-engage/mindengage-capa/internal/xqueue"
)

var codeSpec = typeSpec{
	allowedInputs: []string{"textbox", "filesubmission", "matlabinput"},
	maxInputs:     1,
}

// CodeResponse sends the submission to an external grader queue. Scoring
// returns an incomplete entry carrying the queue state; the grader's reply
// arrives later through UpdateScore.
type CodeResponse struct {
	*Base
	queueName      string
	payload        map[string]string
	initialDisplay string
	answer         string
}

func newCodeResponse(b *Base, _ *config) (Response, error) {
	r := &CodeResponse{Base: b, payload: map[string]string{}}
	r.queueName = b.XML.Get("queuename")
	if r.queueName == "" && b.System != nil && b.System.XQueue != nil {
		r.queueName = b.System.XQueue.DefaultQueueName
	}
	codeparam := b.XML.Find("codeparam")
	if codeparam == nil {
		return nil, specErrorf("%s: unsupported old format, <coderesponse> without <codeparam>\nSee XML source line %s", b, b.XML.SourceLine())
	}
	r.payload["grader_payload"] = childText(codeparam, "grader_payload", "")
	if b.XML.Find("matlabinput") != nil && b.System != nil && b.System.MatlabAPIKey != "" {
		r.payload["token"] = b.System.MatlabAPIKey
		r.payload["endpoint_version"] = "2"
		r.payload["requestor_id"] = b.System.AnonymousStudentID
	}
	r.initialDisplay = childText(codeparam, "initial_display", "")
	r.answer = childText(codeparam, "answer_display", b.System.tr("No answer provided."))
	return r, nil
}

func childText(parent *xmltree.Element, tag, def string) string {
	if c := parent.Find(tag); c != nil {
		return c.Text
	}
	return def
}

func (r *CodeResponse) Score(ctx context.Context, s Submission) (*correctmap.Map, error) {
	submission, ok := s[r.AnswerID]
	if !ok {
		r.System.logger().Error("code response: cannot get student answer", zap.String("answer_id", r.AnswerID))
		return nil, &ResponseError{Msg: fmt.Sprintf("%s: no student answer for %s", r, r.AnswerID)}
	}
	cm := correctmap.New()
	var xq *XQueue
	if r.System != nil {
		xq = r.System.XQueue
	}
	if xq == nil || xq.Queue == nil {
		cm.Set(r.AnswerID, correctmap.Entry{Msg: r.System.tr("Error: No grader has been set up for this problem.")})
		return cm, nil
	}

	qtime := r.System.now().Format(correctmap.QueueTimeLayout)
	anon := r.System.AnonymousStudentID
	key := xqueue.MakeHashKey(fmt.Sprint(r.Context.seed()) + qtime + anon + r.AnswerID)
	callback := ""
	if xq.CallbackURL != nil {
		callback = xq.CallbackURL()
	}
	header := xqueue.MakeHeader(callback, key, r.queueName)

	contents := make(map[string]string, len(r.payload)+2)
	for k, v := range r.payload {
		contents[k] = v
	}
	info, _ := json.Marshal(map[string]string{"anonymous_student_id": anon, "submission_time": qtime})
	contents["student_info"] = string(info)

	var files map[string][]byte
	switch v := submission.(type) {
	case File:
		files = map[string][]byte{v.Name: v.Data}
	case []File:
		files = make(map[string][]byte, len(v))
		for _, f := range v {
			files[f.Name] = f.Data
		}
	default:
		contents["student_response"] = fmt.Sprint(v)
	}
	if files != nil {
		contents["student_response"] = ""
	}
	body, err := json.Marshal(contents)
	if err != nil {
		return nil, err
	}

	msg, err := xq.Queue.Send(ctx, header, string(body), files)
	if err != nil {
		r.System.logger().Warn("code response: queue rejected submission", zap.String("response", r.ID), zap.Error(err))
		cm.Set(r.AnswerID, correctmap.Entry{
			Msg: r.System.tr("Unable to deliver your submission to grader (Reason: %s). Please try again later.", err.Error()),
		})
		return cm, nil
	}
	cm.Set(r.AnswerID, correctmap.Entry{
		Correctness: correctmap.Incomplete,
		Msg:         msg,
		QueueState:  &correctmap.QueueState{Key: key, Time: qtime},
	})
	return cm, nil
}

// UpdateScore applies a grader reply, a JSON object with correct, score and
// msg. The reply is applied only when queueKey matches the pending state; an
// unparseable reply replaces the message and leaves the state pending.
func (r *CodeResponse) UpdateScore(reply string, cm *correctmap.Map, queueKey string) {
	valid, correct, points, msg := r.parseScoreMsg(reply)
	if !valid {
		cm.SetMsg(r.AnswerID, r.System.tr("Invalid grader reply. Please contact the course staff."))
		return
	}
	if !cm.IsRightQueueKey(r.AnswerID, queueKey) {
		r.System.logger().Debug("code response: queue key does not match",
			zap.String("answer_id", r.AnswerID), zap.String("queuekey", queueKey))
		return
	}
	c := correctmap.Incorrect
	if correct {
		c = correctmap.Correct
	}
	if points < 0 {
		points = 0
	}
	cm.Set(r.AnswerID, correctmap.Entry{
		Correctness: c,
		Points:      correctmap.Points(points),
		Msg:         strings.ReplaceAll(msg, "&nbsp;", "&#160;"),
	})
}

func (r *CodeResponse) parseScoreMsg(reply string) (valid, correct bool, points float64, msg string) {
	log := r.System.logger()
	var d map[string]interface{}
	if err := json.Unmarshal([]byte(reply), &d); err != nil || d == nil {
		log.Error("external grader message should be a JSON-serialized dict", zap.String("score_msg", reply))
		return false, false, 0, ""
	}
	for _, k := range []string{"correct", "score", "msg"} {
		if _, ok := d[k]; !ok {
			log.Error("external grader message is missing one or more required tags: 'correct', 'score', 'msg'")
			return false, false, 0, ""
		}
	}
	msg, _ = d["msg"].(string)
	if !validGraderMarkup(msg) {
		log.Error("unable to parse external grader message as valid XML", zap.String("msg", msg))
		return false, false, 0, ""
	}
	points, _ = d["score"].(float64)
	return true, truthy(d["correct"]), points, msg
}

func (r *CodeResponse) Answers() map[string]interface{} {
	return map[string]interface{}{
		r.AnswerID: `<span class="code-answer"><pre><code>` + r.answer + `</code></pre></span>`,
	}
}

// InitialDisplay is the author's starting content for the code box.
func (r *CodeResponse) InitialDisplay() map[string]string {
	return map[string]string{r.AnswerID: r.initialDisplay}
}
