package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"intake/internal/documents"
	"intake/internal/drafts"
	"intake/internal/form"
	"intake/internal/onboarding"
	"intake/internal/pathway"
	"intake/internal/submission"
	dErrors "intake/pkg/domain-errors"
)

// openSession builds a session over the configured draft store and mounts
// the caller's draft. The returned func flushes and releases everything.
func openSession(ctx context.Context) (*onboarding.Session, func(), error) {
	key, err := draftKey()
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	var submitter submission.Submitter = noSubmitter{}
	if cfg.SubmissionURL != "" {
		submitter = submission.NewHTTPSubmitter(cfg.SubmissionURL, cfg.HTTPTimeout, submission.WithBearerToken(bearerToken))
	}
	var docs *documents.Service
	if cfg.DocumentsURL != "" {
		docs, err = documents.NewService(documents.NewResolver(registry),
			documents.NewHTTPUploader(cfg.DocumentsURL, cfg.HTTPTimeout),
			documents.WithLogger(log),
		)
		if err != nil {
			closeStore()
			return nil, nil, err
		}
	}

	sess, err := onboarding.New(onboarding.Config{
		Key:       key,
		Registry:  registry,
		Validator: validator,
		Store:     store,
		Submitter: submitter,
		Documents: docs,
	},
		onboarding.WithLogger(log),
		onboarding.WithDraftOptions(
			drafts.WithInterval(cfg.Drafts.AutosaveInterval),
			drafts.WithDebounce(cfg.Drafts.Debounce),
			drafts.WithExpiry(cfg.Drafts.Expiry),
		),
	)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	outcome, err := sess.Start(ctx)
	if err != nil {
		log.Warn("draft could not be loaded; starting empty", "error", err)
	}
	log.Debug("draft mounted", "outcome", outcome.String(), "key", key.String())
	return sess, func() {
		sess.CloseAndWait()
		closeStore()
	}, nil
}

// noSubmitter stands in when SUBMISSION_URL is unset so sessions can still
// be resumed and filled.
type noSubmitter struct{}

func (noSubmitter) Submit(context.Context, form.Draft) (submission.Receipt, error) {
	return submission.Receipt{}, dErrors.New(dErrors.CodeConfiguration, "SUBMISSION_URL is not set")
}

func saveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <draft.json>",
		Short: "Store a draft file as the caller's saved draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := readDraft(args[0])
			if err != nil {
				return err
			}
			key, err := draftKey()
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()
			receipt, err := store.Save(ctx, key, d)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), receipt)
		},
	}
}

func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Show where the caller's saved application stands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, closeSession, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer closeSession()
			return writeJSON(cmd.OutOrStdout(), sess.Progress())
		},
	}
}

func uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <document-id> <file>",
		Short: "Upload a supporting document into the caller's draft",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DocumentsURL == "" {
				return fmt.Errorf("DOCUMENT_SERVICE_URL is not set")
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			sess, closeSession, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer closeSession()
			ref, err := sess.Upload(cmd.Context(), pathway.DocumentID(args[0]), filepath.Base(args[1]), f)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ref)
			return nil
		},
	}
}

func submitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit",
		Short: "Validate and submit the caller's saved application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, closeSession, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer closeSession()
			receipt, err := sess.Submit(cmd.Context())
			if err != nil {
				var failed *submission.ValidationFailed
				if errors.As(err, &failed) {
					_ = writeJSON(cmd.OutOrStdout(), failed.Result)
				}
				return err
			}
			return writeJSON(cmd.OutOrStdout(), receipt)
		},
	}
}
