package grading

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Translator renders user-facing text. Formats use fmt verbs.
type Translator interface {
	Sprintf(format string, args ...interface{}) string
}

type plainTranslator struct{}

func (plainTranslator) Sprintf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}

// Sandbox runs author code. code is a Go compilation unit that declares
// func Run(g map[string]interface{}); Exec calls Run with globals, which it
// may mutate. unsafe lifts the import whitelist.
type Sandbox interface {
	Exec(ctx context.Context, code string, globals map[string]interface{}, seed int64, unsafe bool) error
}

// Queue delivers a submission to an external grader. The returned string is
// the queue's acknowledgement or failure reason.
type Queue interface {
	Send(ctx context.Context, header, body string, files map[string][]byte) (string, error)
}

// Filestore is read-only access to course files referenced by src attributes.
type Filestore interface {
	Get(key string) (io.ReadCloser, error)
}

// Poster sends a form to a synchronous external grading server.
type Poster interface {
	PostForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error)
}

// NodeRunner runs a Node.js script with arguments and returns its stdout.
type NodeRunner interface {
	Run(ctx context.Context, script string, args ...string) (string, error)
}

// XQueue configures asynchronous external grading.
type XQueue struct {
	Queue            Queue
	DefaultQueueName string
	// CallbackURL returns the URL the grader posts its reply to.
	CallbackURL func() string
}

// System is the set of capabilities a response may call out to. Every field
// is optional.
type System struct {
	Logger               *zap.Logger
	I18n                 Translator
	Sandbox              Sandbox
	CanExecuteUnsafeCode func() bool
	XQueue               *XQueue
	Files                Filestore
	External             Poster
	Node                 NodeRunner
	AnonymousStudentID   string
	MatlabAPIKey         string
	Debug                bool
	Now                  func() time.Time
}

func (s *System) logger() *zap.Logger {
	if s == nil || s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *System) tr(format string, args ...interface{}) string {
	if s == nil || s.I18n == nil {
		return plainTranslator{}.Sprintf(format, args...)
	}
	return s.I18n.Sprintf(format, args...)
}

func (s *System) unsafe() bool {
	return s != nil && s.CanExecuteUnsafeCode != nil && s.CanExecuteUnsafeCode()
}

func (s *System) debug() bool { return s != nil && s.Debug }

func (s *System) now() time.Time {
	if s == nil || s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// RandomStream is the per-problem random number stream shared by every
// response of one problem.
type RandomStream interface {
	Rand() *rand.Rand
}

// Context is the per-problem evaluation context.
type Context struct {
	Seed int64
	// Script is the problem's author code, prepended to every sandboxed run.
	Script string
	// Vars are the script-computed values substituted for $name in attributes.
	Vars   map[string]interface{}
	Random RandomStream
}

// Expand substitutes $name and ${name} references with context values,
// longest names first so $ab is not read as $a followed by b.
func (c *Context) Expand(text string) string {
	if c == nil || text == "" || !strings.Contains(text, "$") || len(c.Vars) == 0 {
		return text
	}
	keys := make([]string, 0, len(c.Vars))
	for k := range c.Vars {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		v := fmt.Sprint(c.Vars[k])
		text = strings.ReplaceAll(text, "${"+k+"}", v)
		text = strings.ReplaceAll(text, "$"+k, v)
	}
	return text
}

func (c *Context) seed() int64 {
	if c == nil {
		return 0
	}
	return c.Seed
}

func (c *Context) script() string {
	if c == nil {
		return ""
	}
	return c.Script
}

// File is an uploaded file in a submission.
type File struct {
	Name string
	Data []byte
}

// Submission maps answer ids to submitted values: a string, a list of
// strings, a map (compound inputs) or uploaded files.
type Submission map[string]interface{}

// String returns the value for id when it is a single string.
func (s Submission) String(id string) (string, bool) {
	v, ok := s[id].(string)
	return v, ok
}

// Strings returns the value for id as a list; a single string becomes a
// one-element list.
func (s Submission) Strings(id string) []string {
	switch v := s[id].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	}
	return nil
}

// WithFileNames replaces uploaded files by their names, the form hint logic
// and author scripts see.
func (s Submission) WithFileNames() Submission {
	out := make(Submission, len(s))
	for k, v := range s {
		switch f := v.(type) {
		case File:
			out[k] = f.Name
		case []File:
			names := make([]string, len(f))
			for i := range f {
				names[i] = f[i].Name
			}
			out[k] = names
		default:
			out[k] = v
		}
	}
	return out
}
