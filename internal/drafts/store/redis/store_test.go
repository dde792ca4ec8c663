package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"intake/internal/drafts"
	"intake/internal/form"
	"intake/pkg/platform/sentinel"
)

type RedisStoreSuite struct {
	suite.Suite
	mr    *miniredis.Miniredis
	store *Store
	now   time.Time
	key   drafts.Key
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.T().Cleanup(func() { _ = client.Close() })
	s.now = time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)
	s.store = New(client, WithClock(func() time.Time { return s.now }))
	s.key = drafts.Key{CallerID: "caller-7", FormID: "licence"}
}

func (s *RedisStoreSuite) draft(name string) form.Draft {
	d := form.NewDraft()
	d.Fields["legalEntityName"] = name
	d.Shareholders = []form.Shareholder{{ID: "sh-1", Name: "Jane", PercentageOwnership: form.Number(100)}}
	return d
}

func (s *RedisStoreSuite) TestLoadMissing() {
	_, err := s.store.Load(context.Background(), s.key)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestColonsInIdsDoNotCollide() {
	ctx := context.Background()
	owner := drafts.Key{CallerID: "acme:ops", FormID: "licence"}
	other := drafts.Key{CallerID: "acme", FormID: "ops:licence"}

	_, err := s.store.Save(ctx, owner, s.draft("Acme Ops Ltd"))
	s.Require().NoError(err)
	s.True(s.mr.Exists("draft:acme%3Aops:licence"))

	_, err = s.store.Load(ctx, other)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(ctx, other), sentinel.ErrNotFound)

	env, err := s.store.Load(ctx, owner)
	s.Require().NoError(err)
	s.Equal("Acme Ops Ltd", env.Draft.String("legalEntityName"))
}

func (s *RedisStoreSuite) TestSaveAndLoad() {
	ctx := context.Background()
	receipt, err := s.store.Save(ctx, s.key, s.draft("Acme"))
	s.Require().NoError(err)
	s.Equal(s.now, receipt.SavedAt)
	s.NotEmpty(receipt.DraftID)
	s.True(s.mr.Exists("draft:caller-7:licence"))

	env, err := s.store.Load(ctx, s.key)
	s.Require().NoError(err)
	s.Equal(s.now, env.LastSaved)
	s.Equal("Acme", env.Draft.String("legalEntityName"))
	s.Require().Len(env.Draft.Shareholders, 1)
	s.Equal(form.Number(100), env.Draft.Shareholders[0].PercentageOwnership)
}

func (s *RedisStoreSuite) TestDraftIDIsStable() {
	ctx := context.Background()
	first, err := s.store.Save(ctx, s.key, s.draft("Acme"))
	s.Require().NoError(err)
	second, err := s.store.Save(ctx, s.key, s.draft("Acme Ltd"))
	s.Require().NoError(err)
	s.Equal(first.DraftID, second.DraftID)
}

func (s *RedisStoreSuite) TestTTL() {
	ctx := context.Background()
	_, err := s.store.Save(ctx, s.key, s.draft("Acme"))
	s.Require().NoError(err)

	ttl, err := s.store.TTL(ctx, s.key)
	s.Require().NoError(err)
	s.Equal(drafts.DefaultExpiry, ttl)

	s.mr.FastForward(drafts.DefaultExpiry + time.Second)
	_, err = s.store.Load(ctx, s.key)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestDelete() {
	ctx := context.Background()
	s.ErrorIs(s.store.Delete(ctx, s.key), sentinel.ErrNotFound)

	s.Require().NoError(s.store.QuickSave(ctx, s.key, s.draft("Acme")))
	s.NoError(s.store.Delete(ctx, s.key))
	s.False(s.mr.Exists("draft:caller-7:licence"))
}

func (s *RedisStoreSuite) TestUnavailable() {
	s.mr.Close()
	_, err := s.store.Save(context.Background(), s.key, s.draft("Acme"))
	s.Error(err)
}
