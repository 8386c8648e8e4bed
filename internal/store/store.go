// Package store persists problems and per-student grading state.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
)

var ErrNotFound = errors.New("not found")

// State is one student's progress on one problem.
type State struct {
	ID         string
	ProblemID  string
	StudentID  string
	Seed       int64
	Answers    map[string]interface{}
	CorrectMap *correctmap.Map
	Attempts   int
	UpdatedAt  time.Time
}

// NewState starts a fresh state with a new id.
func NewState(problemID, studentID string, seed int64) State {
	return State{
		ID:         uuid.NewString(),
		ProblemID:  problemID,
		StudentID:  studentID,
		Seed:       seed,
		Answers:    map[string]interface{}{},
		CorrectMap: correctmap.New(),
	}
}

// Event records a grading action for later audit.
type Event struct {
	Seq       int64
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

const (
	EventChecked       = "ProblemChecked"
	EventQueued        = "SubmissionQueued"
	EventGraderReplied = "GraderReplied"
)

type Store interface {
	PutProblem(ctx context.Context, id, xml string) error
	GetProblem(ctx context.Context, id string) (string, error)
	// LoadState finds the state of studentID on problemID.
	LoadState(ctx context.Context, problemID, studentID string) (State, error)
	GetState(ctx context.Context, id string) (State, error)
	SaveState(ctx context.Context, st State) error
	AppendEvent(ctx context.Context, e Event) error
	Events(ctx context.Context, key string) ([]Event, error)
}

type memoryStore struct {
	mu       sync.RWMutex
	problems map[string]string
	states   map[string]State
	events   []Event
}

func NewInMemoryStore() Store {
	return &memoryStore{problems: map[string]string{}, states: map[string]State{}}
}

func (m *memoryStore) PutProblem(_ context.Context, id, xml string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.problems[id] = xml
	return nil
}

func (m *memoryStore) GetProblem(_ context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	xml, ok := m.problems[id]
	if !ok {
		return "", ErrNotFound
	}
	return xml, nil
}

func (m *memoryStore) LoadState(_ context.Context, problemID, studentID string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, st := range m.states {
		if st.ProblemID == problemID && st.StudentID == studentID {
			return copyState(st), nil
		}
	}
	return State{}, ErrNotFound
}

func (m *memoryStore) GetState(_ context.Context, id string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[id]
	if !ok {
		return State{}, ErrNotFound
	}
	return copyState(st), nil
}

func (m *memoryStore) SaveState(_ context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.UpdatedAt = time.Now().UTC()
	m.states[st.ID] = copyState(st)
	return nil
}

func (m *memoryStore) AppendEvent(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Seq = int64(len(m.events) + 1)
	e.CreatedAt = time.Now().Unix()
	m.events = append(m.events, e)
	return nil
}

func (m *memoryStore) Events(_ context.Context, key string) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if e.Key == key {
			out = append(out, e)
		}
	}
	return out, nil
}

// copyState keeps callers from sharing the stored answers and map.
func copyState(st State) State {
	answers := make(map[string]interface{}, len(st.Answers))
	for k, v := range st.Answers {
		answers[k] = v
	}
	st.Answers = answers
	if st.CorrectMap != nil {
		st.CorrectMap = st.CorrectMap.Clone()
	} else {
		st.CorrectMap = correctmap.New()
	}
	return st
}
