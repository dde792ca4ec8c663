package documents_test

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Uploader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"intake/internal/documents"
	"intake/internal/documents/mocks"
	"intake/internal/form"
	"intake/internal/pathway"
	dErrors "intake/pkg/domain-errors"
)

type DocumentsSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	uploader *mocks.MockUploader
	resolver *documents.Resolver
	service  *documents.Service
}

func TestDocumentsSuite(t *testing.T) {
	suite.Run(t, new(DocumentsSuite))
}

func (s *DocumentsSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.uploader = mocks.NewMockUploader(s.ctrl)
	s.resolver = documents.NewResolver(pathway.Default())
	svc, err := documents.NewService(s.resolver, s.uploader, documents.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)
	s.service = svc
}

func (s *DocumentsSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *DocumentsSuite) containerFor(t pathway.ActivityType) *form.Container {
	c := form.New()
	s.Require().NoError(c.Set(form.FieldActivityType, string(t)))
	return c
}

func (s *DocumentsSuite) TestNewService() {
	s.Run("nil resolver", func() {
		_, err := documents.NewService(nil, s.uploader)
		s.True(dErrors.HasCode(err, dErrors.CodeConfiguration))
	})
	s.Run("nil uploader", func() {
		_, err := documents.NewService(s.resolver, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeConfiguration))
	})
}

func (s *DocumentsSuite) TestRequirements() {
	s.Run("essential documents lead every pathway", func() {
		for _, t := range pathway.Default().ActivityTypes() {
			reqs, err := s.resolver.Requirements(t)
			s.Require().NoError(err)
			s.Require().GreaterOrEqual(len(reqs), 3)
			s.Equal(pathway.DocumentID("certificate_of_incorporation"), reqs[0].DocumentID)
			s.Equal(pathway.DocumentID("constitutional_document"), reqs[1].DocumentID)
			s.Equal(pathway.DocumentID("business_plan"), reqs[2].DocumentID)
			for _, r := range reqs[:3] {
				s.True(r.Required)
			}
		}
	})

	s.Run("pathway additions and optional slots", func() {
		reqs, err := s.resolver.Requirements(pathway.ActivityVirtualAssetServices)
		s.Require().NoError(err)
		byID := map[pathway.DocumentID]documents.Requirement{}
		for _, r := range reqs {
			byID[r.DocumentID] = r
		}
		s.True(byID["custody_policy"].Required)
		s.Equal("documents.custody_policy", byID["custody_policy"].FieldPath)
		s.False(byID["security_audit"].Required)
		s.NotEmpty(byID["security_audit"].Label)
		_, ok := byID["white_paper"]
		s.False(ok)
	})

	s.Run("unknown activity type", func() {
		_, err := s.resolver.Requirements("crypto_casino")
		s.Error(err)
	})
}

func (s *DocumentsSuite) TestMissing() {
	reqs, err := s.resolver.Requirements(pathway.ActivityInnovationSandbox)
	s.Require().NoError(err)

	c := s.containerFor(pathway.ActivityInnovationSandbox)
	s.Require().NoError(c.Set("documents.business_plan", "https://blobs/plan.pdf"))

	missing := documents.Missing(reqs, c.Snapshot())
	var ids []pathway.DocumentID
	for _, m := range missing {
		ids = append(ids, m.DocumentID)
	}
	s.ElementsMatch([]pathway.DocumentID{
		"certificate_of_incorporation",
		"constitutional_document",
		"sandbox_test_plan",
	}, ids)
}

func (s *DocumentsSuite) TestUpload() {
	ctx := context.Background()

	s.Run("stores the returned reference", func() {
		c := s.containerFor(pathway.ActivityFinancialServices)
		s.uploader.EXPECT().Upload(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req documents.UploadRequest) (*documents.UploadResult, error) {
				s.Equal("caller-1", req.CallerID)
				s.Equal(pathway.DocumentID("aml_policy"), req.DocumentType)
				s.Equal("aml.pdf", req.Filename)
				return &documents.UploadResult{URL: "https://blobs/aml-v1.pdf", BlobName: "aml-v1.pdf"}, nil
			})

		url, err := s.service.Upload(ctx, c, "caller-1", documents.File{
			DocumentID: "aml_policy",
			Filename:   "aml.pdf",
			Content:    strings.NewReader("%PDF"),
		})
		s.Require().NoError(err)
		s.Equal("https://blobs/aml-v1.pdf", url)
		got, _ := c.Get("documents.aml_policy")
		s.Equal("https://blobs/aml-v1.pdf", got)
	})

	s.Run("failed replacement keeps the earlier reference", func() {
		c := s.containerFor(pathway.ActivityFinancialServices)
		s.Require().NoError(c.Set("documents.aml_policy", "https://blobs/aml-v1.pdf"))
		before := c.Version()

		s.uploader.EXPECT().Upload(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

		_, err := s.service.Upload(ctx, c, "caller-1", documents.File{DocumentID: "aml_policy", Filename: "aml-v2.pdf"})
		s.True(dErrors.HasCode(err, dErrors.CodeUpload))
		got, _ := c.Get("documents.aml_policy")
		s.Equal("https://blobs/aml-v1.pdf", got)
		s.Equal(before, c.Version())
	})

	s.Run("empty reference is a failure", func() {
		c := s.containerFor(pathway.ActivityFinancialServices)
		s.uploader.EXPECT().Upload(gomock.Any(), gomock.Any()).Return(&documents.UploadResult{}, nil)

		_, err := s.service.Upload(ctx, c, "caller-1", documents.File{DocumentID: "aml_policy"})
		s.True(dErrors.HasCode(err, dErrors.CodeUpload))
		_, ok := c.Get("documents.aml_policy")
		s.False(ok)
	})

	s.Run("document outside the pathway is rejected", func() {
		c := s.containerFor(pathway.ActivityInnovationSandbox)
		_, err := s.service.Upload(ctx, c, "caller-1", documents.File{DocumentID: "custody_policy"})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("activity type must be chosen first", func() {
		_, err := s.service.Upload(ctx, form.New(), "caller-1", documents.File{DocumentID: "business_plan"})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *DocumentsSuite) TestUploadAll() {
	c := s.containerFor(pathway.ActivityPaymentServices)
	s.Require().NoError(c.Set("documents.safeguarding_policy", "https://blobs/safe-v1.pdf"))

	s.uploader.EXPECT().Upload(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req documents.UploadRequest) (*documents.UploadResult, error) {
			if req.DocumentType == "safeguarding_policy" {
				return nil, errors.New("timeout")
			}
			return &documents.UploadResult{URL: "https://blobs/" + string(req.DocumentType) + ".pdf"}, nil
		}).Times(3)

	failed := s.service.UploadAll(context.Background(), c, "caller-1", []documents.File{
		{DocumentID: "business_plan", Filename: "plan.pdf"},
		{DocumentID: "aml_policy", Filename: "aml.pdf"},
		{DocumentID: "safeguarding_policy", Filename: "safe-v2.pdf"},
	})

	s.Len(failed, 1)
	s.Contains(failed, pathway.DocumentID("safeguarding_policy"))

	snap := c.Snapshot()
	s.Equal("https://blobs/business_plan.pdf", snap.String("documents.business_plan"))
	s.Equal("https://blobs/aml_policy.pdf", snap.String("documents.aml_policy"))
	s.Equal("https://blobs/safe-v1.pdf", snap.String("documents.safeguarding_policy"))
}
