package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"intake/internal/applications"
	"intake/internal/form"
	"intake/internal/pathway"
	"intake/pkg/platform/sentinel"
	"intake/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the PostgreSQL error code for a duplicate key.
const uniqueViolation = "23505"

// Store persists applications in PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the applications table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate applications schema: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) conn(ctx context.Context) execer {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

// Create inserts the application. It joins a transaction carried in ctx.
func (s *Store) Create(ctx context.Context, app applications.Application) error {
	data, err := json.Marshal(app.Draft)
	if err != nil {
		return fmt.Errorf("encode application: %w", err)
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO applications (reference, caller_id, activity_type, data, document_urls, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		app.Reference, app.CallerID, string(app.ActivityType), data,
		pq.Array(app.DocumentURLs), app.SubmittedAt.UTC(),
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, reference string) (applications.Application, error) {
	var (
		app      applications.Application
		activity string
		data     []byte
		urls     []string
		at       time.Time
	)
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT reference, caller_id, activity_type, data, document_urls, submitted_at
		FROM applications WHERE reference = $1`, reference,
	).Scan(&app.Reference, &app.CallerID, &activity, &data, pq.Array(&urls), &at)
	if errors.Is(err, sql.ErrNoRows) {
		return applications.Application{}, sentinel.ErrNotFound
	}
	if err != nil {
		return applications.Application{}, fmt.Errorf("load application: %w", err)
	}
	var d form.Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return applications.Application{}, fmt.Errorf("decode application: %w", err)
	}
	app.ActivityType = pathway.ActivityType(activity)
	app.Draft = d
	app.DocumentURLs = urls
	app.SubmittedAt = at.UTC()
	return app, nil
}
