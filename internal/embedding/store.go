// Package embedding stores enrolled face embeddings and the access event history
package embedding

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/MrCodeEU/FaceGate/internal/access"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned when a person is not enrolled
var ErrNotFound = errors.New("person not found")

// Person is an enrolled identity
type Person struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Embeddings  [][]float32 `json:"embeddings"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	LastSeenAt  *time.Time  `json:"last_seen_at,omitempty"`
	AccessCount int         `json:"access_count"`
	Active      bool        `json:"active"`
}

// Store provides persistent storage for embeddings and access events
type Store struct {
	db      *sql.DB
	dataDir string

	// enrollment writes made through this Store
	changes atomic.Int64
}

// NewStore opens (or creates) the SQLite database at dbPath
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite3 allows a single writer
	db.SetMaxOpenConns(1)

	store := &Store{
		db:      db,
		dataDir: dir,
	}

	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS people (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		embeddings BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_seen_at DATETIME,
		access_count INTEGER DEFAULT 0,
		active BOOLEAN DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_people_name ON people(name);

	CREATE TABLE IF NOT EXISTS access_events (
		id TEXT PRIMARY KEY,
		occurred_at DATETIME NOT NULL,
		outcome TEXT NOT NULL,
		label TEXT,
		confidence REAL,
		liveness_real BOOLEAN,
		liveness_score REAL,
		action TEXT NOT NULL,
		actuation TEXT NOT NULL,
		door_state TEXT NOT NULL,
		region TEXT,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_access_events_occurred_at ON access_events(occurred_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Version identifies the state of the database. It changes after enrollment
// writes made through this Store and after any commit by another process.
type Version struct {
	data  int64
	local int64
}

// Version reads the current database version
func (s *Store) Version() (Version, error) {
	var data int64
	if err := s.db.QueryRow(`PRAGMA data_version`).Scan(&data); err != nil {
		return Version{}, fmt.Errorf("failed to read data version: %w", err)
	}
	return Version{data: data, local: s.changes.Load()}, nil
}

// CreatePerson enrolls a new person with their embeddings
func (s *Store) CreatePerson(name string, embeddings [][]float32) (*Person, error) {
	blob, err := msgpack.Marshal(embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize embeddings: %w", err)
	}

	id := uuid.NewString()
	now := time.Now()

	_, err = s.db.Exec(
		`INSERT INTO people (id, name, embeddings, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, name, blob, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create person: %w", err)
	}
	s.changes.Add(1)

	return &Person{
		ID:         id,
		Name:       name,
		Embeddings: embeddings,
		CreatedAt:  now,
		UpdatedAt:  now,
		Active:     true,
	}, nil
}

// GetPerson retrieves a person by name
func (s *Store) GetPerson(name string) (*Person, error) {
	row := s.db.QueryRow(
		`SELECT id, name, embeddings, created_at, updated_at, last_seen_at, access_count, active
		 FROM people WHERE name = ?`,
		name,
	)

	p, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to get person: %w", err)
	}

	return p, nil
}

// AddEmbeddings appends samples to an enrolled person
func (s *Store) AddEmbeddings(name string, embeddings [][]float32) error {
	p, err := s.GetPerson(name)
	if err != nil {
		return err
	}

	blob, err := msgpack.Marshal(append(p.Embeddings, embeddings...))
	if err != nil {
		return fmt.Errorf("failed to serialize embeddings: %w", err)
	}

	_, err = s.db.Exec(
		`UPDATE people SET embeddings = ?, updated_at = ? WHERE id = ?`,
		blob, time.Now(), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update person: %w", err)
	}
	s.changes.Add(1)

	return nil
}

// DeletePerson removes an enrolled person
func (s *Store) DeletePerson(name string) error {
	result, err := s.db.Exec(`DELETE FROM people WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete person: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	s.changes.Add(1)

	return nil
}

// ListPeople returns all enrolled people ordered by name
func (s *Store) ListPeople() ([]Person, error) {
	rows, err := s.db.Query(
		`SELECT id, name, embeddings, created_at, updated_at, last_seen_at, access_count, active
		 FROM people ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var people []Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		people = append(people, *p)
	}

	return people, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPerson(row scanner) (*Person, error) {
	var p Person
	var blob []byte
	var lastSeen sql.NullTime

	err := row.Scan(
		&p.ID, &p.Name, &blob,
		&p.CreatedAt, &p.UpdatedAt, &lastSeen,
		&p.AccessCount, &p.Active,
	)
	if err != nil {
		return nil, err
	}

	if lastSeen.Valid {
		p.LastSeenAt = &lastSeen.Time
	}

	if err := msgpack.Unmarshal(blob, &p.Embeddings); err != nil {
		return nil, fmt.Errorf("failed to deserialize embeddings: %w", err)
	}

	return &p, nil
}

// RecordEvent appends an access event and bumps the person's counters when admitted
func (s *Store) RecordEvent(ev access.Event) error {
	_, err := s.db.Exec(
		`INSERT INTO access_events (id, occurred_at, outcome, label, confidence, liveness_real,
		        liveness_score, action, actuation, door_state, region, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Timestamp, ev.Outcome.String(), ev.Identity.Label, ev.Identity.Confidence,
		ev.Liveness.Real, ev.Liveness.Score, ev.Action.String(), ev.Actuation.String(),
		ev.Door.String(), ev.Region.String(), ev.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record access event: %w", err)
	}

	if ev.Outcome == access.OutcomeRecognized {
		_, _ = s.db.Exec(
			`UPDATE people SET last_seen_at = ?, access_count = access_count + 1 WHERE name = ?`,
			ev.Timestamp, ev.Identity.Label,
		)
	}

	return nil
}

// EventRecord is one stored access event
type EventRecord struct {
	ID            string    `json:"id"`
	OccurredAt    time.Time `json:"occurred_at"`
	Outcome       string    `json:"outcome"`
	Label         string    `json:"label,omitempty"`
	Confidence    float64   `json:"confidence"`
	LivenessReal  bool      `json:"liveness_real"`
	LivenessScore float64   `json:"liveness_score"`
	Action        string    `json:"action"`
	Actuation     string    `json:"actuation"`
	DoorState     string    `json:"door_state"`
	Region        string    `json:"region,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
}

// RecentEvents returns up to limit events, newest first. A non-empty label filters by identity.
func (s *Store) RecentEvents(label string, limit int) ([]EventRecord, error) {
	query := `SELECT id, occurred_at, outcome, label, confidence, liveness_real, liveness_score,
	                 action, actuation, door_state, region, error_message
	          FROM access_events`
	args := []interface{}{}
	if label != "" {
		query += ` WHERE label = ?`
		args = append(args, label)
	}
	query += ` ORDER BY occurred_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get access history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []EventRecord
	for rows.Next() {
		var r EventRecord
		var label, region, errorMsg sql.NullString

		err := rows.Scan(
			&r.ID, &r.OccurredAt, &r.Outcome, &label, &r.Confidence, &r.LivenessReal,
			&r.LivenessScore, &r.Action, &r.Actuation, &r.DoorState, &region, &errorMsg,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access event: %w", err)
		}

		r.Label = label.String
		r.Region = region.String
		r.ErrorMessage = errorMsg.String
		records = append(records, r)
	}

	return records, rows.Err()
}

// CosineSimilarity computes cosine similarity between two embeddings
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
