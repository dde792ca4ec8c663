package commands

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"intake/internal/documents"
	"intake/internal/drafts"
	"intake/internal/drafts/store/fallback"
	"intake/internal/drafts/store/local"
	"intake/internal/drafts/store/remote"
	"intake/internal/identity"
	"intake/internal/pathway"
	"intake/internal/platform/config"
	"intake/internal/platform/logger"
	"intake/internal/validation"
	"intake/pkg/platform/circuit"
)

// tokenTTL bounds the bearer tokens the CLI mints for itself.
const tokenTTL = 15 * time.Minute

var (
	cfg       config.Server
	log       *slog.Logger
	registry  *pathway.Registry
	validator *validation.Validator
	jwt       *identity.JWTService

	callerID string
	formID   string
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "intake",
		Short:        "Licence application intake tooling",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.FromEnv()
			log = logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Env, cfg.LogLevel)
			registry = pathway.Default()
			validator = validation.New(registry, documents.NewResolver(registry))
			jwt = identity.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&callerID, "caller", "", "caller id the draft belongs to")
	root.PersistentFlags().StringVar(&formID, "form", "licence-application", "form id of the draft")

	root.AddCommand(
		pathwaysCmd(),
		stepsCmd(),
		documentsCmd(),
		validateCmd(),
		sampleCmd(),
		tokenCmd(),
		saveCmd(),
		resumeCmd(),
		uploadCmd(),
		submitCmd(),
	)
	return root
}

func draftKey() (drafts.Key, error) {
	key := drafts.Key{CallerID: callerID, FormID: formID}
	return key, key.Validate()
}

func bearerToken(context.Context) (string, error) {
	return jwt.IssueToken(callerID, tokenTTL)
}

// openStore returns the device-local store, fronted by the remote store when
// DRAFT_STORE_URL is set. The returned func closes the local database.
func openStore(ctx context.Context) (drafts.Store, func(), error) {
	localStore, err := local.Open(ctx, cfg.DraftLocalPath)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = localStore.Close() }

	var primary drafts.Store
	if cfg.DraftStoreURL != "" {
		primary = remote.New(cfg.DraftStoreURL, cfg.HTTPTimeout, remote.WithTokenSource(bearerToken))
	}
	store, err := fallback.New(primary, localStore,
		circuit.New("draft-store", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Minute)),
		fallback.WithLogger(log),
	)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseActivity(arg string) (pathway.ActivityType, error) {
	return pathway.ParseActivityType(arg)
}
