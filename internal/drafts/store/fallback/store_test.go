package fallback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"intake/internal/drafts"
	"intake/internal/drafts/mocks"
	"intake/internal/drafts/store/memory"
	"intake/internal/form"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/platform/circuit"
	"intake/pkg/platform/sentinel"
)

type FallbackSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	primary *mocks.MockStore
	local   *memory.Store
	breaker *circuit.Breaker
	now     time.Time
	store   *Store
	key     drafts.Key
	ctx     context.Context
}

func TestFallbackSuite(t *testing.T) {
	suite.Run(t, new(FallbackSuite))
}

func (s *FallbackSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.primary = mocks.NewMockStore(s.ctrl)
	s.now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	s.local = memory.New(memory.WithClock(func() time.Time { return s.now }))
	s.breaker = circuit.New("drafts",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return s.now }),
	)
	var err error
	s.store, err = New(s.primary, s.local, s.breaker,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)
	s.key = drafts.Key{CallerID: "alice", FormID: "licence"}
	s.ctx = context.Background()
}

func unavailable() error {
	return errors.Join(sentinel.ErrUnavailable, errors.New("connection refused"))
}

func (s *FallbackSuite) TestSaveUsesPrimary() {
	s.primary.EXPECT().Save(gomock.Any(), s.key, gomock.Any()).
		Return(drafts.SaveReceipt{SavedAt: s.now, DraftID: "remote-1"}, nil)

	receipt, err := s.store.Save(s.ctx, s.key, form.NewDraft())
	s.Require().NoError(err)
	s.Equal("remote-1", receipt.DraftID)
	s.Equal(0, s.local.Len())
}

func (s *FallbackSuite) TestSaveFallsBackWhenPrimaryUnavailable() {
	s.primary.EXPECT().Save(gomock.Any(), s.key, gomock.Any()).Return(drafts.SaveReceipt{}, unavailable())

	_, err := s.store.Save(s.ctx, s.key, form.NewDraft())
	s.Require().NoError(err)
	s.Equal(1, s.local.Len())
}

func (s *FallbackSuite) TestSaveReturnsOtherPrimaryErrors() {
	forbidden := dErrors.New(dErrors.CodeForbidden, "nope")
	s.primary.EXPECT().Save(gomock.Any(), s.key, gomock.Any()).Return(drafts.SaveReceipt{}, forbidden)

	_, err := s.store.Save(s.ctx, s.key, form.NewDraft())
	s.ErrorIs(err, forbidden)
	s.Equal(0, s.local.Len())
	s.False(s.breaker.IsOpen())
}

func (s *FallbackSuite) TestBreakerSkipsPrimaryUntilCooldown() {
	s.primary.EXPECT().Save(gomock.Any(), s.key, gomock.Any()).Return(drafts.SaveReceipt{}, unavailable()).Times(2)
	for range 2 {
		_, err := s.store.Save(s.ctx, s.key, form.NewDraft())
		s.Require().NoError(err)
	}
	s.True(s.breaker.IsOpen())

	// Open breaker: the primary is not called at all.
	_, err := s.store.Save(s.ctx, s.key, form.NewDraft())
	s.Require().NoError(err)

	s.now = s.now.Add(2 * time.Minute)
	s.primary.EXPECT().Save(gomock.Any(), s.key, gomock.Any()).Return(drafts.SaveReceipt{DraftID: "remote-1"}, nil)
	receipt, err := s.store.Save(s.ctx, s.key, form.NewDraft())
	s.Require().NoError(err)
	s.Equal("remote-1", receipt.DraftID)
	s.False(s.breaker.IsOpen())
}

func (s *FallbackSuite) TestLoadFallsBackOnNotFound() {
	_, err := s.local.Save(s.ctx, s.key, form.NewDraft())
	s.Require().NoError(err)
	s.primary.EXPECT().Load(gomock.Any(), s.key).Return(drafts.Envelope{}, sentinel.ErrNotFound)

	env, err := s.store.Load(s.ctx, s.key)
	s.Require().NoError(err)
	s.Equal(s.now, env.LastSaved)
}

func (s *FallbackSuite) TestLoadPrefersNewerLocalCopy() {
	remote := form.NewDraft()
	remote.Fields["legalEntityName"] = "Remote"
	local := form.NewDraft()
	local.Fields["legalEntityName"] = "Local"
	_, err := s.local.Save(s.ctx, s.key, local)
	s.Require().NoError(err)

	s.primary.EXPECT().Load(gomock.Any(), s.key).
		Return(drafts.Envelope{Draft: remote, LastSaved: s.now.Add(-time.Hour)}, nil)
	env, err := s.store.Load(s.ctx, s.key)
	s.Require().NoError(err)
	s.Equal("Local", env.Draft.String("legalEntityName"))

	s.primary.EXPECT().Load(gomock.Any(), s.key).
		Return(drafts.Envelope{Draft: remote, LastSaved: s.now.Add(time.Hour)}, nil)
	env, err = s.store.Load(s.ctx, s.key)
	s.Require().NoError(err)
	s.Equal("Remote", env.Draft.String("legalEntityName"))
}

func (s *FallbackSuite) TestLoadUnavailableWithNothingLocal() {
	s.primary.EXPECT().Load(gomock.Any(), s.key).Return(drafts.Envelope{}, unavailable())

	_, err := s.store.Load(s.ctx, s.key)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *FallbackSuite) TestDeleteRemovesBothCopies() {
	_, err := s.local.Save(s.ctx, s.key, form.NewDraft())
	s.Require().NoError(err)
	s.primary.EXPECT().Delete(gomock.Any(), s.key).Return(nil)

	s.Require().NoError(s.store.Delete(s.ctx, s.key))
	s.Equal(0, s.local.Len())
}

func (s *FallbackSuite) TestDeleteMissingEverywhere() {
	s.primary.EXPECT().Delete(gomock.Any(), s.key).Return(sentinel.ErrNotFound)

	s.ErrorIs(s.store.Delete(s.ctx, s.key), sentinel.ErrNotFound)
}

func (s *FallbackSuite) TestQuickSaveFallsBack() {
	s.primary.EXPECT().QuickSave(gomock.Any(), s.key, gomock.Any()).Return(unavailable())

	s.Require().NoError(s.store.QuickSave(s.ctx, s.key, form.NewDraft()))
	s.Equal(1, s.local.Len())
}

func (s *FallbackSuite) TestNilPrimaryIsLocalOnly() {
	store, err := New(nil, s.local, nil)
	s.Require().NoError(err)
	_, err = store.Save(s.ctx, s.key, form.NewDraft())
	s.Require().NoError(err)
	_, err = store.Load(s.ctx, s.key)
	s.NoError(err)
}

func (s *FallbackSuite) TestRequiresLocalStore() {
	_, err := New(s.primary, nil, s.breaker)
	s.True(dErrors.HasCode(err, dErrors.CodeConfiguration))
}
