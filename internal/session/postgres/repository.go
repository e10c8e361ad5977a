// Package postgres provides PostgreSQL implementation of the session repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/apron-guard/internal/compliance"
	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/bissquit/apron-guard/internal/enrichment"
	"github.com/bissquit/apron-guard/internal/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// document is the JSONB part of a session row. The action log lives in
// its own table.
type document struct {
	Incident   domain.IncidentSnapshot    `json:"incident"`
	Risk       *domain.RiskAssessment     `json:"risk,omitempty"`
	Spatial    *domain.SpatialImpact      `json:"spatial,omitempty"`
	Flights    *domain.FlightImpactResult `json:"flights,omitempty"`
	Enrichment *enrichment.Result         `json:"enrichment,omitempty"`
}

func documentOf(s *session.Session) ([]byte, error) {
	return json.Marshal(document{
		Incident:   s.Incident,
		Risk:       s.Risk,
		Spatial:    s.Spatial,
		Flights:    s.Flights,
		Enrichment: s.Enrichment,
	})
}

// Repository implements the session.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a session and any entries it already has.
func (r *Repository) Create(ctx context.Context, s *session.Session) error {
	doc, err := documentOf(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO sessions (id, phase, version, document, created_at, updated_at)
		VALUES ($1, $2, 1, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, query, s.ID, s.Phase(), doc, s.CreatedAt, s.UpdatedAt); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if err := insertEntries(ctx, tx, s.ID, 0, s.Trail.Entries()); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.Version = 1
	return nil
}

// Get loads a session with its action log.
func (r *Repository) Get(ctx context.Context, id string) (*session.Session, error) {
	query := `
		SELECT id, phase, version, document, created_at, updated_at
		FROM sessions
		WHERE id = $1
	`
	var (
		s     session.Session
		phase domain.Phase
		doc   []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &phase, &s.Version, &doc, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var d document
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("unmarshal session document: %w", err)
	}
	s.Incident = d.Incident
	s.Risk = d.Risk
	s.Spatial = d.Spatial
	s.Flights = d.Flights
	s.Enrichment = d.Enrichment

	entries, err := listEntries(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	s.Trail, err = compliance.RestoreTrail(phase, entries)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Save updates the session row and appends new action log entries in one
// transaction. Stored entries are never updated or deleted.
func (r *Repository) Save(ctx context.Context, s *session.Session) error {
	doc, err := documentOf(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		version int64
		phase   domain.Phase
	)
	err = tx.QueryRow(ctx, `SELECT version, phase FROM sessions WHERE id = $1 FOR UPDATE`, s.ID).Scan(&version, &phase)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.ErrSessionNotFound
		}
		return fmt.Errorf("lock session: %w", err)
	}
	if version != s.Version {
		return fmt.Errorf("%w: have %d, stored %d", session.ErrVersionConflict, s.Version, version)
	}

	stored, err := listEntries(ctx, tx, s.ID)
	if err != nil {
		return err
	}
	storedTrail, err := compliance.RestoreTrail(phase, stored)
	if err != nil {
		return err
	}
	if err := session.CheckAppendOnly(storedTrail, s.Trail); err != nil {
		return err
	}
	if err := insertEntries(ctx, tx, s.ID, len(stored), s.Trail.Entries()[len(stored):]); err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		UPDATE sessions
		SET phase = $2, version = version + 1, document = $3, updated_at = $4
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, s.ID, s.Phase(), doc, now); err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.Version = version + 1
	s.UpdatedAt = now
	return nil
}

// Delete removes a session and its action log.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func listEntries(ctx context.Context, q querier, sessionID string) ([]domain.ActionLogEntry, error) {
	query := `
		SELECT id, action, outcome, target, phase, detail, created_at
		FROM action_log
		WHERE session_id = $1
		ORDER BY seq
	`
	rows, err := q.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list action log: %w", err)
	}
	defer rows.Close()

	var entries []domain.ActionLogEntry
	for rows.Next() {
		var e domain.ActionLogEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.Outcome, &e.Target, &e.Phase, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan action log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action log: %w", err)
	}
	return entries, nil
}

func insertEntries(ctx context.Context, e execer, sessionID string, firstSeq int, entries []domain.ActionLogEntry) error {
	query := `
		INSERT INTO action_log (session_id, seq, id, action, outcome, target, phase, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for i, entry := range entries {
		_, err := e.Exec(ctx, query,
			sessionID,
			firstSeq+i,
			entry.ID,
			entry.Action,
			entry.Outcome,
			entry.Target,
			entry.Phase,
			entry.Detail,
			entry.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append action log entry: %w", err)
		}
	}
	return nil
}
