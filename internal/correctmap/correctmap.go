// Package correctmap holds the per-answer-field grading outcome of one response.
package correctmap

import (
	"encoding/json"
	"fmt"
	"sort"
)

type Correctness string

const (
	Correct          Correctness = "correct"
	Incorrect        Correctness = "incorrect"
	PartiallyCorrect Correctness = "partially-correct"
	Incomplete       Correctness = "incomplete"
	Unknown          Correctness = "unknown"
)

type HintMode string

const (
	HintAlways    HintMode = "always"
	HintOnRequest HintMode = "on_request"
)

// QueueState correlates a pending external-grader submission with its reply.
// Time uses the layout QueueTimeLayout.
type QueueState struct {
	Key  string `json:"key"`
	Time string `json:"time"`
}

// QueueTimeLayout is the timestamp layout stored in QueueState.Time.
const QueueTimeLayout = "20060102150405"

// Entry is the outcome for one answer field. A nil Points means "not set";
// see Map.NPoints.
type Entry struct {
	Correctness    Correctness `json:"correctness"`
	Points         *float64    `json:"npoints"`
	Msg            string      `json:"msg"`
	Hint           string      `json:"hint"`
	HintMode       HintMode    `json:"hintmode"`
	QueueState     *QueueState `json:"queuestate"`
	AnswerVariable string      `json:"answervariable,omitempty"`
}

// Points is a helper for building entries with explicit points.
func Points(v float64) *float64 { return &v }

type Map struct {
	entries map[string]*Entry
	overall string
}

func New() *Map {
	return &Map{entries: map[string]*Entry{}}
}

// Set records the grading outcome for id. An existing hint is kept: new hint
// text is appended to it rather than replacing it.
func (m *Map) Set(id string, e Entry) {
	if e.Points != nil && *e.Points < 0 {
		e.Points = Points(0)
	}
	if old, ok := m.entries[id]; ok && old.Hint != "" {
		e.Hint = old.Hint + e.Hint
		if e.HintMode == "" {
			e.HintMode = old.HintMode
		}
	}
	m.entries[id] = &e
}

// SetCorrectness is the common form of Set.
func (m *Map) SetCorrectness(id string, c Correctness, points *float64, msg string) {
	m.Set(id, Entry{Correctness: c, Points: points, Msg: msg})
}

// SetHintAndMode overwrites the hint for id, creating the entry if needed.
func (m *Map) SetHintAndMode(id, hint string, mode HintMode) {
	e := m.entry(id)
	e.Hint = hint
	e.HintMode = mode
}

func (m *Map) SetMsg(id, msg string)                 { m.entry(id).Msg = msg }
func (m *Map) SetQueueState(id string, q *QueueState) { m.entry(id).QueueState = q }

func (m *Map) SetPoints(id string, v float64) {
	if v < 0 {
		v = 0
	}
	m.entry(id).Points = &v
}

// SetProperty sets one field of id's entry by its dict name.
func (m *Map) SetProperty(id, property string, value interface{}) error {
	e := m.entry(id)
	str := func() (string, error) {
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("correctmap: %s must be a string, got %T", property, value)
		}
		return s, nil
	}
	var err error
	switch property {
	case "correctness":
		var s string
		s, err = str()
		e.Correctness = Correctness(s)
	case "msg":
		e.Msg, err = str()
	case "hint":
		e.Hint, err = str()
	case "hintmode":
		var s string
		s, err = str()
		e.HintMode = HintMode(s)
	case "answervariable":
		e.AnswerVariable, err = str()
	case "npoints":
		switch v := value.(type) {
		case nil:
			e.Points = nil
		case float64:
			m.SetPoints(id, v)
		case int:
			m.SetPoints(id, float64(v))
		default:
			err = fmt.Errorf("correctmap: npoints must be a number, got %T", value)
		}
	case "queuestate":
		switch v := value.(type) {
		case nil:
			e.QueueState = nil
		case *QueueState:
			e.QueueState = v
		default:
			err = fmt.Errorf("correctmap: queuestate must be a *QueueState, got %T", value)
		}
	default:
		err = fmt.Errorf("correctmap: unknown property %q", property)
	}
	return err
}

func (m *Map) entry(id string) *Entry {
	e, ok := m.entries[id]
	if !ok {
		e = &Entry{}
		m.entries[id] = e
	}
	return e
}

// Get returns a copy of the entry for id.
func (m *Map) Get(id string) (Entry, bool) {
	e, ok := m.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (m *Map) Has(id string) bool {
	_, ok := m.entries[id]
	return ok
}

func (m *Map) Len() int { return len(m.entries) }

// IDs returns the answer ids with an entry, sorted.
func (m *Map) IDs() []string {
	out := make([]string, 0, len(m.entries))
	for id := range m.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *Map) Correctness(id string) Correctness {
	if e, ok := m.entries[id]; ok {
		return e.Correctness
	}
	return ""
}

func (m *Map) Msg(id string) string {
	if e, ok := m.entries[id]; ok {
		return e.Msg
	}
	return ""
}

func (m *Map) Hint(id string) string {
	if e, ok := m.entries[id]; ok {
		return e.Hint
	}
	return ""
}

func (m *Map) HintMode(id string) HintMode {
	if e, ok := m.entries[id]; ok {
		return e.HintMode
	}
	return ""
}

// NPoints returns the recorded points, or 1 for a correct field with no
// explicit points, or 0.
func (m *Map) NPoints(id string) float64 {
	e, ok := m.entries[id]
	if !ok {
		return 0
	}
	if e.Points != nil {
		return *e.Points
	}
	if m.IsCorrect(id) {
		return 1
	}
	return 0
}

// IsCorrect is true for correct and partially correct fields.
func (m *Map) IsCorrect(id string) bool {
	e, ok := m.entries[id]
	return ok && (e.Correctness == Correct || e.Correctness == PartiallyCorrect)
}

func (m *Map) IsPartiallyCorrect(id string) bool {
	e, ok := m.entries[id]
	return ok && e.Correctness == PartiallyCorrect
}

func (m *Map) IsQueued(id string) bool {
	e, ok := m.entries[id]
	return ok && e.QueueState != nil
}

func (m *Map) IsRightQueueKey(id, key string) bool {
	return m.IsQueued(id) && m.entries[id].QueueState.Key == key
}

func (m *Map) QueueTime(id string) string {
	if !m.IsQueued(id) {
		return ""
	}
	return m.entries[id].QueueState.Time
}

func (m *Map) OverallMessage() string     { return m.overall }
func (m *Map) SetOverallMessage(s string) { m.overall = s }

// Merge copies other's entries over m's and takes its overall message.
func (m *Map) Merge(other *Map) {
	if other == nil {
		return
	}
	for id, e := range other.entries {
		cp := *e
		m.entries[id] = &cp
	}
	m.overall = other.overall
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	out := New()
	out.Merge(m)
	return out
}

// Dict renders the entries as plain maps, the form handed to author scripts.
func (m *Map) Dict() map[string]interface{} {
	raw, _ := json.Marshal(m.entries)
	out := map[string]interface{}{}
	_ = json.Unmarshal(raw, &out)
	return out
}

// SetDict replaces every entry from the plain-map form produced by Dict.
func (m *Map) SetDict(d map[string]interface{}) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("correctmap: %w", err)
	}
	entries := map[string]*Entry{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("correctmap: %w", err)
	}
	m.entries = dropNil(entries)
	return nil
}

type wireMap struct {
	Entries map[string]*Entry `json:"map"`
	Overall string            `json:"overall_message,omitempty"`
}

func (m *Map) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMap{Entries: m.entries, Overall: m.overall})
}

func (m *Map) UnmarshalJSON(b []byte) error {
	var w wireMap
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	m.entries, m.overall = dropNil(w.Entries), w.Overall
	return nil
}

func dropNil(in map[string]*Entry) map[string]*Entry {
	out := make(map[string]*Entry, len(in))
	for id, e := range in {
		if e != nil {
			out[id] = e
		}
	}
	return out
}
