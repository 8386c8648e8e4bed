package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/capa"
	"github.com/mind-engage/mindengage-capa/internal/grading"
	"github.com/mind-engage/mindengage-capa/internal/storage"
	"github.com/mind-engage/mindengage-capa/internal/store"
	"github.com/mind-engage/mindengage-capa/internal/xqueue"
)

type captureQueue struct{ header string }

func (q *captureQueue) Send(_ context.Context, header, _ string, _ map[string][]byte) (string, error) {
	q.header = header
	return "", nil
}

func newServer(t *testing.T) (*httptest.Server, *captureQueue) {
	t.Helper()
	q := &captureQueue{}
	files, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	signer := NewCallbackSigner("test-secret", "", time.Hour)
	svc := &capa.Service{
		Store:    store.NewInMemoryStore(),
		Registry: grading.NewRegistry(),
		System: grading.System{
			Logger: zap.NewNop(),
			Files:  files,
			XQueue: &grading.XQueue{Queue: q},
		},
		Seed: func() int64 { return 1 },
	}
	svc.CallbackURL = signer.URL
	srv := httptest.NewServer(NewRouter(Deps{Service: svc, Files: files, Signer: signer, Log: zap.NewNop()}))
	t.Cleanup(srv.Close)
	return srv, q
}

func put(t *testing.T, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return res
}

func decode(t *testing.T, res *http.Response, v interface{}) {
	t.Helper()
	defer res.Body.Close()
	require.NoError(t, json.NewDecoder(res.Body).Decode(v))
}

const numeric = `<problem><numericalresponse answer="4"><textline/></numericalresponse></problem>`

func TestCheckFlow(t *testing.T) {
	srv, _ := newServer(t)
	res := put(t, srv.URL+"/problems/add", numeric)
	res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, err := http.Post(srv.URL+"/problems/add/check", "application/json",
		strings.NewReader(`{"student_id": "s1", "answers": {"add_2_1": "2+2"}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var out struct {
		Score    float64 `json:"score"`
		MaxScore int     `json:"max_score"`
	}
	decode(t, res, &out)
	assert.Equal(t, 1.0, out.Score)
	assert.Equal(t, 1, out.MaxScore)

	res, err = http.Post(srv.URL+"/problems/add/check", "application/json",
		strings.NewReader(`{"student_id": "s1", "answers": {"add_2_1": "2+"}}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	var e map[string]string
	decode(t, res, &e)
	assert.Equal(t, string(grading.InputSyntax), e["kind"])

	res, err = http.Get(srv.URL + "/problems/add/answers?student_id=s1")
	require.NoError(t, err)
	var answers map[string]interface{}
	decode(t, res, &answers)
	assert.Equal(t, "4", answers["add_2_1"])
}

func TestErrors(t *testing.T) {
	srv, _ := newServer(t)
	res := put(t, srv.URL+"/problems/bad", `<problem><numericalresponse><textline/></numericalresponse></problem>`)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, err := http.Get(srv.URL + "/problems/missing/answers?student_id=s1")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, err = http.Post(srv.URL+"/problems/missing/check", "application/json", strings.NewReader(`{"answers": {}}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

const codeProblem = `<problem>
  <coderesponse>
    <filesubmission/>
    <codeparam><grader_payload>{}</grader_payload></codeparam>
  </coderesponse>
</problem>`

func TestQueuedCheckAndCallback(t *testing.T) {
	srv, q := newServer(t)
	res := put(t, srv.URL+"/problems/code", codeProblem)
	res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("student_id", "s2"))
	fw, err := mw.CreateFormFile("code_2_1", "answer.py")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("print(1)"))
	require.NoError(t, mw.Close())
	res, err = http.Post(srv.URL+"/problems/code/check", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	var queued struct {
		Queued bool `json:"queued"`
	}
	decode(t, res, &queued)
	require.True(t, queued.Queued)

	var header xqueue.Header
	require.NoError(t, json.Unmarshal([]byte(q.header), &header))
	require.True(t, strings.HasPrefix(header.CallbackURL, "/xqueue/callback/"))

	reply := url.Values{
		"xqueue_header": {q.header},
		"xqueue_body":   {`{"correct": false, "score": 0, "msg": "<p>try again</p>"}`},
	}
	res, err = http.PostForm(srv.URL+"/xqueue/callback/forged", reply)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, err = http.PostForm(srv.URL+header.CallbackURL, reply)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var done struct {
		Queued bool `json:"queued"`
	}
	decode(t, res, &done)
	assert.False(t, done.Queued)

	res, err = http.PostForm(srv.URL+header.CallbackURL, reply)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestFiles(t *testing.T) {
	srv, _ := newServer(t)
	res := put(t, srv.URL+"/files/src/check.go", "correct[0] = \"correct\"")
	res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, err := http.Get(srv.URL + "/files/src/check.go")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestCallbackSigner(t *testing.T) {
	s := NewCallbackSigner("k", "http://capa/", time.Hour)
	tok, err := s.Issue("state-1")
	require.NoError(t, err)
	id, err := s.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "state-1", id)

	_, err = NewCallbackSigner("other", "", time.Hour).Parse(tok)
	assert.Error(t, err)
	assert.True(t, strings.HasPrefix(s.URL("state-1"), "http://capa/xqueue/callback/"))
}
