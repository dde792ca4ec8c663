//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"intake/internal/applications"
	"intake/internal/applications/store/postgres"
	"intake/internal/pathway"
	"intake/internal/validation/validationtest"
	"intake/pkg/platform/sentinel"
	"intake/pkg/platform/tx"
	"intake/pkg/testutil/containers"
)

type ApplicationStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestApplicationStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ApplicationStoreSuite))
}

func (s *ApplicationStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *ApplicationStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "applications"))
}

func (s *ApplicationStoreSuite) application(ref string) applications.Application {
	return applications.Application{
		Reference:    ref,
		CallerID:     "caller-1",
		ActivityType: pathway.ActivityTokenIssuance,
		Draft:        validationtest.CompleteDraft(pathway.ActivityTokenIssuance),
		DocumentURLs: []string{"https://blobs.example/a.pdf", "https://blobs.example/b.pdf"},
		SubmittedAt:  time.Date(2026, 6, 1, 15, 0, 0, 0, time.UTC),
	}
}

func (s *ApplicationStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	want := s.application("APP-2026-00000001")
	s.Require().NoError(s.store.Create(ctx, want))

	got, err := s.store.Get(ctx, want.Reference)
	s.Require().NoError(err)
	s.Equal(want.CallerID, got.CallerID)
	s.Equal(want.ActivityType, got.ActivityType)
	s.Equal(want.DocumentURLs, got.DocumentURLs)
	s.True(want.SubmittedAt.Equal(got.SubmittedAt))
	s.Equal("Harbour Capital Ltd", got.Draft.String("legalEntityName"))
}

func (s *ApplicationStoreSuite) TestDuplicateReference() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.application("APP-2026-00000002")))
	s.ErrorIs(s.store.Create(ctx, s.application("APP-2026-00000002")), sentinel.ErrConflict)
}

func (s *ApplicationStoreSuite) TestMissing() {
	_, err := s.store.Get(context.Background(), "APP-0000-NOPE")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ApplicationStoreSuite) TestCreateJoinsTransaction() {
	ctx := context.Background()
	err := tx.Run(ctx, s.postgres.DB, func(ctx context.Context) error {
		if err := s.store.Create(ctx, s.application("APP-2026-00000003")); err != nil {
			return err
		}
		return sentinel.ErrConflict
	})
	s.ErrorIs(err, sentinel.ErrConflict)
	_, err = s.store.Get(ctx, "APP-2026-00000003")
	s.ErrorIs(err, sentinel.ErrNotFound, "rolled back with the outer transaction")
}
