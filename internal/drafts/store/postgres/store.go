package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"intake/internal/drafts"
	"intake/internal/form"
	"intake/pkg/platform/sentinel"
)

//go:embed schema.sql
var schema string

// Store persists drafts in PostgreSQL, one row per (caller, form).
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

type Option func(*Store)

func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// New constructs a PostgreSQL-backed draft store.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the drafts table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate drafts schema: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, key drafts.Key) (drafts.Envelope, error) {
	var (
		data      []byte
		lastSaved time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, last_saved FROM drafts WHERE caller_id = $1 AND form_id = $2`,
		key.CallerID, key.FormID,
	).Scan(&data, &lastSaved)
	if errors.Is(err, sql.ErrNoRows) {
		return drafts.Envelope{}, sentinel.ErrNotFound
	}
	if err != nil {
		return drafts.Envelope{}, fmt.Errorf("load draft: %w", err)
	}
	var d form.Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return drafts.Envelope{}, fmt.Errorf("decode draft: %w", err)
	}
	return drafts.Envelope{Draft: d, LastSaved: lastSaved.UTC()}, nil
}

// Save upserts the draft. The draft id from the first insert is kept.
func (s *Store) Save(ctx context.Context, key drafts.Key, draft form.Draft) (drafts.SaveReceipt, error) {
	if err := key.Validate(); err != nil {
		return drafts.SaveReceipt{}, err
	}
	data, err := json.Marshal(draft)
	if err != nil {
		return drafts.SaveReceipt{}, fmt.Errorf("encode draft: %w", err)
	}
	now := s.clock().UTC().Truncate(time.Microsecond)

	var draftID string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO drafts (caller_id, form_id, draft_id, data, last_saved)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (caller_id, form_id)
		DO UPDATE SET data = EXCLUDED.data, last_saved = EXCLUDED.last_saved
		RETURNING draft_id`,
		key.CallerID, key.FormID, uuid.New(), data, now,
	).Scan(&draftID)
	if err != nil {
		return drafts.SaveReceipt{}, fmt.Errorf("save draft: %w", err)
	}
	return drafts.SaveReceipt{SavedAt: now, DraftID: draftID}, nil
}

func (s *Store) Delete(ctx context.Context, key drafts.Key) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM drafts WHERE caller_id = $1 AND form_id = $2`,
		key.CallerID, key.FormID,
	)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) QuickSave(ctx context.Context, key drafts.Key, draft form.Draft) error {
	_, err := s.Save(ctx, key, draft)
	return err
}

// PurgeExpired deletes drafts last saved before cutoff and returns how many
// were removed.
func (s *Store) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE last_saved < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge drafts: %w", err)
	}
	return res.RowsAffected()
}
