package capa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
	"github.com/mind-engage/mindengage-capa/internal/grading"
	"github.com/mind-engage/mindengage-capa/internal/store"
)

// ErrNotWaiting means a grader reply named a queue key no field awaits.
var ErrNotWaiting = errors.New("no submission waiting for this queue key")

// Service grades problems for students and keeps their state in a store.
type Service struct {
	Store    store.Store
	Registry *grading.Registry
	// System is the template capability set; each call gets a copy bound to
	// the student.
	System grading.System
	// CallbackURL returns the URL an external grader replies to for a state.
	CallbackURL func(stateID string) string
	// Seed picks the seed of a new student state.
	Seed func() int64
	Log  *zap.Logger
}

// Result is the outcome of a check or of a grader reply.
type Result struct {
	StateID    string          `json:"state_id"`
	CorrectMap *correctmap.Map `json:"correct_map"`
	Score      float64         `json:"score"`
	MaxScore   int             `json:"max_score"`
	Queued     bool            `json:"queued"`
	Attempts   int             `json:"attempts"`
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// PutProblem stores xml after checking that it builds.
func (s *Service) PutProblem(ctx context.Context, id, xml string) error {
	sys := s.System
	if _, err := New(ctx, xml, id, 1, s.Registry, &sys); err != nil {
		return err
	}
	return s.Store.PutProblem(ctx, id, xml)
}

func (s *Service) state(ctx context.Context, problemID, studentID string) (store.State, error) {
	st, err := s.Store.LoadState(ctx, problemID, studentID)
	if errors.Is(err, store.ErrNotFound) {
		seed := int64(1)
		if s.Seed != nil {
			seed = s.Seed()
		}
		return store.NewState(problemID, studentID, seed), nil
	}
	return st, err
}

// problem rebuilds the problem as the student of st sees it.
func (s *Service) problem(ctx context.Context, st store.State) (*Problem, error) {
	xml, err := s.Store.GetProblem(ctx, st.ProblemID)
	if err != nil {
		return nil, fmt.Errorf("problem %s: %w", st.ProblemID, err)
	}
	sys := s.System
	sys.AnonymousStudentID = st.StudentID
	if s.System.XQueue != nil {
		xq := *s.System.XQueue
		if s.CallbackURL != nil {
			id := st.ID
			xq.CallbackURL = func() string { return s.CallbackURL(id) }
		}
		sys.XQueue = &xq
	}
	return New(ctx, xml, st.ProblemID, st.Seed, s.Registry, &sys)
}

// Check grades sub for studentID and saves the answers and resulting map.
// Student input errors are returned without recording an attempt.
func (s *Service) Check(ctx context.Context, problemID, studentID string, sub grading.Submission) (Result, error) {
	st, err := s.state(ctx, problemID, studentID)
	if err != nil {
		return Result{}, err
	}
	p, err := s.problem(ctx, st)
	if err != nil {
		return Result{}, err
	}
	cm, err := p.Grade(ctx, sub, st.CorrectMap)
	if err != nil {
		return Result{}, err
	}
	st.CorrectMap = cm
	st.Answers = map[string]interface{}(sub.WithFileNames())
	st.Attempts++
	if err := s.Store.SaveState(ctx, st); err != nil {
		return Result{}, err
	}
	res := s.result(p, st)
	s.record(ctx, store.EventChecked, st.ID, res)
	if res.Queued {
		s.record(ctx, store.EventQueued, st.ID, res)
	}
	return res, nil
}

// GraderReply applies an external grader's reply to the state it was
// queued for.
func (s *Service) GraderReply(ctx context.Context, stateID, queueKey, body string) (Result, error) {
	st, err := s.Store.GetState(ctx, stateID)
	if err != nil {
		return Result{}, err
	}
	p, err := s.problem(ctx, st)
	if err != nil {
		return Result{}, err
	}
	if !p.UpdateScore(body, queueKey, st.CorrectMap) {
		return Result{}, fmt.Errorf("state %s: %w", stateID, ErrNotWaiting)
	}
	if err := s.Store.SaveState(ctx, st); err != nil {
		return Result{}, err
	}
	res := s.result(p, st)
	s.record(ctx, store.EventGraderReplied, st.ID, res)
	return res, nil
}

// Answers returns the correct answers for the problem as studentID sees it.
func (s *Service) Answers(ctx context.Context, problemID, studentID string) (map[string]interface{}, error) {
	st, err := s.state(ctx, problemID, studentID)
	if err != nil {
		return nil, err
	}
	p, err := s.problem(ctx, st)
	if err != nil {
		return nil, err
	}
	return p.Answers(), nil
}

func (s *Service) result(p *Problem, st store.State) Result {
	score := 0.0
	for _, id := range p.AnswerIDs() {
		score += st.CorrectMap.NPoints(id)
	}
	return Result{
		StateID:    st.ID,
		CorrectMap: st.CorrectMap,
		Score:      score,
		MaxScore:   p.MaxScore(),
		Queued:     p.IsQueued(st.CorrectMap),
		Attempts:   st.Attempts,
	}
}

func (s *Service) record(ctx context.Context, typ, key string, res Result) {
	data, _ := json.Marshal(map[string]interface{}{"score": res.Score, "max_score": res.MaxScore, "queued": res.Queued})
	if err := s.Store.AppendEvent(ctx, store.Event{Type: typ, Key: key, DataJSON: string(data)}); err != nil {
		s.log().Warn("append grading event", zap.String("type", typ), zap.String("state", key), zap.Error(err))
	}
}

// RandomSeed draws seeds for new student states from the clock.
func RandomSeed() func() int64 {
	var mu sync.Mutex
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func() int64 {
		mu.Lock()
		defer mu.Unlock()
		return r.Int63n(1000) + 1
	}
}
