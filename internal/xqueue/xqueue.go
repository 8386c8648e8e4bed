// Package xqueue talks to the external grader queue: submissions go out with
// a JSON header naming the callback, and graders post replies back to it.
package xqueue

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// Header is the envelope the queue hands back to the callback.
type Header struct {
	CallbackURL string `json:"lms_callback_url"`
	Key         string `json:"lms_key"`
	QueueName   string `json:"queue_name"`
}

// MakeHashKey derives the correlation key stored in the queue state.
func MakeHashKey(seed string) string {
	sum := blake2b.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:16])
}

// MakeHeader serializes the submission header.
func MakeHeader(callbackURL, key, queueName string) string {
	b, _ := json.Marshal(Header{CallbackURL: callbackURL, Key: key, QueueName: queueName})
	return string(b)
}

type Config struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Client submits to an xqueue server.
type Client struct {
	base string
	user string
	pass string
	http *http.Client
	log  *zap.Logger
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base: strings.TrimRight(cfg.URL, "/"),
		user: cfg.Username,
		pass: cfg.Password,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

type reply struct {
	ReturnCode int    `json:"return_code"`
	Content    string `json:"content"`
}

// Send posts header, body and files to /xqueue/submit/. On success it returns
// the queue's acknowledgement, usually its prior length. A rejected
// submission is an error whose text is the queue's reason.
func (c *Client) Send(ctx context.Context, header, body string, files map[string][]byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("xqueue_header", header); err != nil {
		return "", err
	}
	if err := mw.WriteField("xqueue_body", body); err != nil {
		return "", err
	}
	for name, data := range files {
		w, err := mw.CreateFormFile(name, name)
		if err != nil {
			return "", err
		}
		if _, err := w.Write(data); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/xqueue/submit/", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
	res, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("xqueue submit failed", zap.Error(err))
		return "", fmt.Errorf("cannot connect to server: %w", err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.StatusCode/100 != 2 {
		return "", fmt.Errorf("unexpected HTTP status code [%d]", res.StatusCode)
	}
	var r reply
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", fmt.Errorf("invalid server response: %w", err)
	}
	if r.ReturnCode != 0 {
		return "", errors.New(r.Content)
	}
	return r.Content, nil
}

// ParseCallback extracts the correlation key and grader reply from the form
// a queue posts to a callback URL.
func ParseCallback(form url.Values) (key, body string, err error) {
	rawHeader := form.Get("xqueue_header")
	if rawHeader == "" {
		return "", "", errors.New("missing xqueue_header")
	}
	var h Header
	if err := json.Unmarshal([]byte(rawHeader), &h); err != nil {
		return "", "", fmt.Errorf("invalid xqueue_header: %w", err)
	}
	if h.Key == "" {
		return "", "", errors.New("xqueue_header has no lms_key")
	}
	return h.Key, form.Get("xqueue_body"), nil
}
