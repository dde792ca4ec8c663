package documents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"intake/internal/form"
	"intake/internal/pathway"
	dErrors "intake/pkg/domain-errors"
)

// UploadRequest is what the upload collaborator receives.
type UploadRequest struct {
	CallerID     string
	DocumentType pathway.DocumentID
	Filename     string
	Content      io.Reader
}

// UploadResult is the stable reference returned for an uploaded file.
type UploadResult struct {
	URL      string `json:"url"`
	BlobName string `json:"blobName"`
}

// Uploader transfers a file and returns its reference.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
}

// File is one entry for UploadAll.
type File struct {
	DocumentID pathway.DocumentID
	Filename   string
	Content    io.Reader
}

// Service uploads documents and records their references in a container.
type Service struct {
	resolver    *Resolver
	uploader    Uploader
	logger      *slog.Logger
	parallelism int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithParallelism bounds concurrent uploads in UploadAll.
func WithParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// NewService constructs a Service.
func NewService(resolver *Resolver, uploader Uploader, opts ...Option) (*Service, error) {
	if resolver == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "document resolver is required")
	}
	if uploader == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "uploader is required")
	}
	s := &Service{
		resolver:    resolver,
		uploader:    uploader,
		logger:      slog.New(slog.DiscardHandler),
		parallelism: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Requirements proxies the resolver.
func (s *Service) Requirements(t pathway.ActivityType) ([]Requirement, error) {
	return s.resolver.Requirements(t)
}

// Upload sends one file and stores the returned URL at the document's field
// path, replacing any earlier reference. On failure the existing reference
// is left untouched.
func (s *Service) Upload(ctx context.Context, c *form.Container, callerID string, f File) (string, error) {
	ctx, span := otel.Tracer("intake/documents").Start(ctx, "documents.Upload")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", string(f.DocumentID)))

	req, err := s.slot(c, f.DocumentID)
	if err != nil {
		return "", err
	}

	res, err := s.uploader.Upload(ctx, UploadRequest{
		CallerID:     callerID,
		DocumentType: f.DocumentID,
		Filename:     f.Filename,
		Content:      f.Content,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "document upload failed",
			"caller_id", callerID,
			"document_id", f.DocumentID,
			"error", err,
		)
		span.RecordError(err)
		return "", dErrors.Wrap(err, dErrors.CodeUpload, fmt.Sprintf("failed to upload %s", req.Label))
	}
	if res == nil || res.URL == "" {
		return "", dErrors.New(dErrors.CodeUpload, fmt.Sprintf("upload of %s returned no reference", req.Label))
	}

	if err := c.Set(req.FieldPath, res.URL); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "document uploaded",
		"caller_id", callerID,
		"document_id", f.DocumentID,
		"blob_name", res.BlobName,
	)
	return res.URL, nil
}

// UploadAll uploads files concurrently. The returned map holds per-document
// failures; successful slots are updated regardless of other failures.
func (s *Service) UploadAll(ctx context.Context, c *form.Container, callerID string, files []File) map[pathway.DocumentID]error {
	var (
		mu     sync.Mutex
		failed map[pathway.DocumentID]error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, f := range files {
		g.Go(func() error {
			if _, err := s.Upload(ctx, c, callerID, f); err != nil {
				mu.Lock()
				if failed == nil {
					failed = map[pathway.DocumentID]error{}
				}
				failed[f.DocumentID] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

// slot finds the requirement for documentID on the container's pathway.
func (s *Service) slot(c *form.Container, documentID pathway.DocumentID) (Requirement, error) {
	snap := c.Snapshot()
	t, err := pathway.ParseActivityType(snap.ActivityType())
	if err != nil {
		return Requirement{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "select an activity type before uploading documents")
	}
	reqs, err := s.resolver.Requirements(t)
	if err != nil {
		return Requirement{}, err
	}
	i := slices.IndexFunc(reqs, func(r Requirement) bool { return r.DocumentID == documentID })
	if i < 0 {
		return Requirement{}, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("document %q is not part of the %s pathway", documentID, t))
	}
	return reqs[i], nil
}
