package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // driver: sqlite

	"github.com/mind-engage/mindengage-capa/internal/correctmap"
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:capa.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/capa?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := ensureSchema(ctx, db, driver); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	schema := schemaSQLite
	if driver == DriverPostgres {
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS problems (
  id TEXT PRIMARY KEY,
  xml TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS student_states (
  id TEXT PRIMARY KEY,
  problem_id TEXT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  seed INTEGER NOT NULL,
  answers_json TEXT NOT NULL,
  correct_map_json TEXT NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL,
  UNIQUE (problem_id, student_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  typ TEXT NOT NULL,                         -- e.g., ProblemChecked
  key TEXT NOT NULL,                         -- state id
  data TEXT NOT NULL,                        -- JSON payload
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS problems (
  id TEXT PRIMARY KEY,
  xml TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS student_states (
  id TEXT PRIMARY KEY,
  problem_id TEXT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  seed BIGINT NOT NULL,
  answers_json TEXT NOT NULL,
  correct_map_json TEXT NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  updated_at BIGINT NOT NULL,
  UNIQUE (problem_id, student_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`

type SQLStore struct {
	db  *sql.DB
	log *zap.Logger
}

func NewSQLStore(db *sql.DB, log *zap.Logger) *SQLStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLStore{db: db, log: log}
}

func (s *SQLStore) PutProblem(ctx context.Context, id, xml string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO problems (id,xml,created_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET xml=EXCLUDED.xml`,
		id, xml, time.Now().Unix())
	return err
}

func (s *SQLStore) GetProblem(ctx context.Context, id string) (string, error) {
	var xml string
	err := s.db.QueryRowContext(ctx, `SELECT xml FROM problems WHERE id=$1`, id).Scan(&xml)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return xml, err
}

const stateColumns = `id,problem_id,student_id,seed,answers_json,correct_map_json,attempts,updated_at`

func (s *SQLStore) LoadState(ctx context.Context, problemID, studentID string) (State, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM student_states WHERE problem_id=$1 AND student_id=$2`,
		problemID, studentID)
	return scanState(row)
}

func (s *SQLStore) GetState(ctx context.Context, id string) (State, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM student_states WHERE id=$1`, id)
	return scanState(row)
}

func scanState(row *sql.Row) (State, error) {
	var (
		st            State
		answers, cmap string
		updated       int64
	)
	err := row.Scan(&st.ID, &st.ProblemID, &st.StudentID, &st.Seed, &answers, &cmap, &st.Attempts, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, err
	}
	if err := json.Unmarshal([]byte(answers), &st.Answers); err != nil {
		return State{}, fmt.Errorf("state %s answers: %w", st.ID, err)
	}
	st.CorrectMap = correctmap.New()
	if err := json.Unmarshal([]byte(cmap), st.CorrectMap); err != nil {
		return State{}, fmt.Errorf("state %s correct map: %w", st.ID, err)
	}
	st.UpdatedAt = time.Unix(updated, 0).UTC()
	return st, nil
}

func (s *SQLStore) SaveState(ctx context.Context, st State) error {
	if st.Answers == nil {
		st.Answers = map[string]interface{}{}
	}
	if st.CorrectMap == nil {
		st.CorrectMap = correctmap.New()
	}
	answers, err := json.Marshal(st.Answers)
	if err != nil {
		return err
	}
	cmap, err := json.Marshal(st.CorrectMap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO student_states (`+stateColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET answers_json=EXCLUDED.answers_json,
			correct_map_json=EXCLUDED.correct_map_json, attempts=EXCLUDED.attempts, updated_at=EXCLUDED.updated_at`,
		st.ID, st.ProblemID, st.StudentID, st.Seed, string(answers), string(cmap), st.Attempts, time.Now().Unix())
	if err != nil {
		s.log.Error("save student state", zap.String("state", st.ID), zap.Error(err))
	}
	return err
}

func (s *SQLStore) AppendEvent(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4)`,
		e.Type, e.Key, e.DataJSON, time.Now().Unix())
	return err
}

func (s *SQLStore) Events(ctx context.Context, key string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq,typ,key,data,created_at FROM event_log WHERE key=$1 ORDER BY seq`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
