package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"intake/internal/drafts"
	"intake/internal/form"
	"intake/pkg/platform/sentinel"
)

// Redis key prefix for drafts. Full key: draft:{callerId}:{formId} with both
// parts query-escaped.
const keyPrefix = "draft:"

const (
	fieldDraftID  = "draftId"
	fieldEnvelope = "envelope"
)

// Store keeps each draft in a hash holding the draft id and the envelope
// JSON. Keys expire after the retention window, refreshed on every save.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	clock  func() time.Time
}

type Option func(*Store)

func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithTTL overrides the key expiry. Defaults to drafts.DefaultExpiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// New constructs a Redis-backed draft store.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		ttl:    drafts.DefaultExpiry,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// redisKey escapes both parts so a ':' inside an id cannot move the
// boundary between caller and form.
func redisKey(key drafts.Key) string {
	return keyPrefix + url.QueryEscape(key.CallerID) + ":" + url.QueryEscape(key.FormID)
}

func (s *Store) Load(ctx context.Context, key drafts.Key) (drafts.Envelope, error) {
	raw, err := s.client.HGet(ctx, redisKey(key), fieldEnvelope).Bytes()
	if errors.Is(err, redis.Nil) {
		return drafts.Envelope{}, sentinel.ErrNotFound
	}
	if err != nil {
		return drafts.Envelope{}, fmt.Errorf("load draft: %w", err)
	}
	var env drafts.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return drafts.Envelope{}, fmt.Errorf("decode draft: %w", err)
	}
	return env, nil
}

// Save writes the envelope and refreshes the TTL in one transaction. The
// draft id is assigned on first save with HSETNX.
func (s *Store) Save(ctx context.Context, key drafts.Key, draft form.Draft) (drafts.SaveReceipt, error) {
	if err := key.Validate(); err != nil {
		return drafts.SaveReceipt{}, err
	}
	now := s.clock().UTC()
	raw, err := json.Marshal(drafts.Envelope{Draft: draft, LastSaved: now})
	if err != nil {
		return drafts.SaveReceipt{}, fmt.Errorf("encode draft: %w", err)
	}

	k := redisKey(key)
	var idCmd *redis.StringCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, k, fieldDraftID, uuid.NewString())
		pipe.HSet(ctx, k, fieldEnvelope, raw)
		pipe.Expire(ctx, k, s.ttl)
		idCmd = pipe.HGet(ctx, k, fieldDraftID)
		return nil
	})
	if err != nil {
		return drafts.SaveReceipt{}, fmt.Errorf("save draft: %w", err)
	}
	return drafts.SaveReceipt{SavedAt: now, DraftID: idCmd.Val()}, nil
}

func (s *Store) Delete(ctx context.Context, key drafts.Key) error {
	n, err := s.client.Del(ctx, redisKey(key)).Result()
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

// TTL reports the remaining lifetime of a stored draft.
func (s *Store) TTL(ctx context.Context, key drafts.Key) (time.Duration, error) {
	return s.client.TTL(ctx, redisKey(key)).Result()
}
