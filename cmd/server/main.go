package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"intake/internal/applications"
	"intake/internal/applications/kafka"
	appmemory "intake/internal/applications/store/memory"
	apppostgres "intake/internal/applications/store/postgres"
	"intake/internal/documents"
	"intake/internal/drafts"
	drafthandler "intake/internal/drafts/handler"
	draftmetrics "intake/internal/drafts/metrics"
	draftmemory "intake/internal/drafts/store/memory"
	draftpostgres "intake/internal/drafts/store/postgres"
	draftredis "intake/internal/drafts/store/redis"
	"intake/internal/identity"
	"intake/internal/pathway"
	"intake/internal/platform/config"
	"intake/internal/platform/database"
	"intake/internal/platform/httpserver"
	"intake/internal/platform/logger"
	"intake/internal/platform/metrics"
	"intake/internal/platform/middleware"
	"intake/internal/platform/redis"
	"intake/internal/validation"
	"intake/pkg/platform/httputil"
)

var version = "dev"

// purgeInterval is how often expired drafts are removed from PostgreSQL.
const purgeInterval = time.Hour

// main serves the draft store and application intake APIs. Business logic
// lives in the internal packages; this file only wires them.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("intake server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	m := metrics.New(version)
	jwt := identity.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	registry := pathway.Default()
	validator := validation.New(registry, documents.NewResolver(registry))

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		defer rc.Close()
	}

	draftStore, purger, err := buildDraftStore(ctx, cfg, db, rc, log)
	if err != nil {
		return err
	}
	appStore, err := buildApplicationStore(ctx, db)
	if err != nil {
		return err
	}
	appService, err := applications.NewService(validator, appStore, applications.WithLogger(log))
	if err != nil {
		return err
	}
	publisher, err := buildPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	if closer, ok := publisher.(interface{ Close() }); ok {
		defer closer.Close()
	}

	draftHandler, err := drafthandler.New(draftStore, jwt, log,
		drafthandler.WithMetrics(draftmetrics.New(m.Registry)),
		drafthandler.WithTimeout(cfg.HTTPTimeout),
	)
	if err != nil {
		return err
	}
	appHandler, err := applications.NewHandler(appService, jwt, log)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Use(middleware.CountRequests(m))
	router.Handle("/metrics", m.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if rc != nil {
			if err := rc.Health(r.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "redis unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	draftHandler.Register(router)
	appHandler.Register(router)

	srv := httpserver.New(cfg.Addr, router)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting intake server", "addr", cfg.Addr, "env", cfg.Env, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		err := applications.NewWorker(publisher, appService.Events(), log).Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if purger != nil {
		g.Go(func() error {
			purgeExpired(gctx, purger, cfg.Drafts.Expiry, log)
			return nil
		})
	}
	return g.Wait()
}

// buildDraftStore picks PostgreSQL, then Redis, then memory. Only the
// PostgreSQL store needs a purge loop; Redis expires keys itself.
func buildDraftStore(ctx context.Context, cfg config.Server, db *sql.DB, rc *redis.Client, log *slog.Logger) (drafts.Store, *draftpostgres.Store, error) {
	switch {
	case db != nil:
		store := draftpostgres.New(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		log.Info("draft store: postgres")
		return store, store, nil
	case rc != nil:
		log.Info("draft store: redis")
		return draftredis.New(rc.Client, draftredis.WithTTL(cfg.Drafts.Expiry)), nil, nil
	default:
		log.Warn("draft store: in-memory; drafts are lost on restart")
		return draftmemory.New(), nil, nil
	}
}

func buildApplicationStore(ctx context.Context, db *sql.DB) (applications.Store, error) {
	if db == nil {
		return appmemory.New(), nil
	}
	store := apppostgres.New(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func buildPublisher(ctx context.Context, cfg config.Server, log *slog.Logger) (applications.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("application events: logged only, no kafka brokers configured")
		return logPublisher{log: log}, nil
	}
	pub, err := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, err
	}
	if err := pub.EnsureTopic(ctx, 3, 1); err != nil {
		pub.Close()
		return nil, err
	}
	return pub, nil
}

type logPublisher struct {
	log *slog.Logger
}

func (p logPublisher) Publish(ctx context.Context, e applications.Event) error {
	p.log.InfoContext(ctx, "application event",
		"type", e.Type,
		"application_reference", e.ApplicationReference,
		"activity_type", e.ActivityType,
	)
	return nil
}

func purgeExpired(ctx context.Context, store *draftpostgres.Store, expiry time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.PurgeExpired(ctx, now.Add(-expiry))
			if err != nil {
				log.WarnContext(ctx, "draft purge failed", "error", err)
				continue
			}
			if n > 0 {
				log.InfoContext(ctx, "purged expired drafts", "count", n)
			}
		}
	}
}
