// Package local keeps a single draft slot on the device in a SQLite
// key-value table. It is the fallback when the remote draft store cannot be
// reached.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"intake/internal/drafts"
	"intake/internal/form"
	"intake/pkg/platform/sentinel"
	"intake/pkg/platform/tx"
)

// SlotKey is the well-known key the draft is stored under.
const SlotKey = "intake.draft"

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`

// slot is the stored value. The slot holds at most one draft; a load for a
// different key misses.
type slot struct {
	CallerID string          `json:"callerId"`
	FormID   string          `json:"formId"`
	DraftID  string          `json:"draftId"`
	Envelope drafts.Envelope `json:"envelope"`
}

func (s slot) matches(key drafts.Key) bool {
	return s.CallerID == key.CallerID && s.FormID == key.FormID
}

// Store implements drafts.Store on a local SQLite file.
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

// Open opens (or creates) the SQLite file at path. Use ":memory:" in tests.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open local draft store: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate local draft store: %w", err)
	}
	s := &Store{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context, key drafts.Key) (drafts.Envelope, error) {
	cur, ok, err := s.read(ctx)
	if err != nil {
		return drafts.Envelope{}, err
	}
	if !ok || !cur.matches(key) {
		return drafts.Envelope{}, sentinel.ErrNotFound
	}
	return cur.Envelope, nil
}

// Save replaces the slot. The draft id survives repeated saves for the same
// key and is regenerated when another key takes the slot.
func (s *Store) Save(ctx context.Context, key drafts.Key, draft form.Draft) (drafts.SaveReceipt, error) {
	if err := key.Validate(); err != nil {
		return drafts.SaveReceipt{}, err
	}
	var receipt drafts.SaveReceipt
	err := s.inTx(ctx, func(ctx context.Context) error {
		cur, ok, err := s.read(ctx)
		if err != nil {
			return err
		}
		id := uuid.NewString()
		if ok && cur.matches(key) && cur.DraftID != "" {
			id = cur.DraftID
		}
		now := s.clock().UTC()
		next := slot{
			CallerID: key.CallerID,
			FormID:   key.FormID,
			DraftID:  id,
			Envelope: drafts.Envelope{Draft: draft.Clone(), LastSaved: now},
		}
		if err := s.write(ctx, next); err != nil {
			return err
		}
		receipt = drafts.SaveReceipt{SavedAt: now, DraftID: id}
		return nil
	})
	return receipt, err
}

// Delete empties the slot if it holds key's draft.
func (s *Store) Delete(ctx context.Context, key drafts.Key) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		cur, ok, err := s.read(ctx)
		if err != nil {
			return err
		}
		if !ok || !cur.matches(key) {
			return sentinel.ErrNotFound
		}
		if _, err := s.exec(ctx).ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, SlotKey); err != nil {
			return fmt.Errorf("delete local draft: %w", err)
		}
		return nil
	})
}

func (s *Store) QuickSave(ctx context.Context, key drafts.Key, draft form.Draft) error {
	_, err := s.Save(ctx, key, draft)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) exec(ctx context.Context) execer {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *Store) inTx(ctx context.Context, fn func(context.Context) error) error {
	return tx.Run(ctx, s.db, fn)
}

func (s *Store) read(ctx context.Context) (slot, bool, error) {
	var raw []byte
	err := s.exec(ctx).QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, SlotKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return slot{}, false, nil
	}
	if err != nil {
		return slot{}, false, fmt.Errorf("read local draft: %w", err)
	}
	var cur slot
	if err := json.Unmarshal(raw, &cur); err != nil {
		// A corrupt slot is treated as empty; the next save overwrites it.
		return slot{}, false, nil
	}
	return cur, true, nil
}

func (s *Store) write(ctx context.Context, v slot) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode local draft: %w", err)
	}
	_, err = s.exec(ctx).ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		SlotKey, raw,
	)
	if err != nil {
		return fmt.Errorf("write local draft: %w", err)
	}
	return nil
}
