// Package runtime turns a Config into a running HTTP server: it picks the
// storage, blob, rate-limit and PDF backends and manages their lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	app "github.com/R3E-Network/canvas/internal/app"
	"github.com/R3E-Network/canvas/internal/app/httpapi"
	"github.com/R3E-Network/canvas/internal/app/services/auth"
	"github.com/R3E-Network/canvas/internal/app/services/pdf"
	"github.com/R3E-Network/canvas/internal/app/storage/postgres"
	"github.com/R3E-Network/canvas/internal/blobstore"
	"github.com/R3E-Network/canvas/internal/config"
	"github.com/R3E-Network/canvas/internal/logging"
	"github.com/R3E-Network/canvas/internal/middleware"
	"github.com/R3E-Network/canvas/internal/platform/database"
)

const (
	redisDialTimeout = 5 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg    *config.Config
	log    *logging.Logger
	app    *app.Application
	server *http.Server
	db     *sqlx.DB
}

// NewApplication builds every backend named by cfg. Nothing listens until Run.
func NewApplication(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.New("canvas", cfg.Logging.Level, cfg.Logging.Format)
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxyList())
	if err != nil {
		return nil, fmt.Errorf("configure trusted proxies: %w", err)
	}

	stores, db, err := buildStores(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}
	blobs, err := buildBlobs(ctx, cfg)
	if err != nil {
		closeDB(db, log)
		return nil, fmt.Errorf("configure blob store: %w", err)
	}

	application, err := app.New(stores, app.Deps{
		Auth: auth.Config{
			SecretKey:       cfg.SecretKey,
			AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
			RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
		},
		Blobs:          blobs,
		Limiter:        buildLimiter(ctx, cfg, log),
		Renderer:       pdf.NewRodRenderer(cfg.PDF, log.Named("pdf-renderer")),
		MaxUploadBytes: cfg.MaxUploadBytes(),
	}, log)
	if err != nil {
		closeDB(db, log)
		return nil, fmt.Errorf("build application: %w", err)
	}

	handler := httpapi.NewHandler(application, httpapi.Options{
		CORSOrigins:    cfg.AllowedOrigins(),
		SecureCookies:  cfg.Auth.SecureCookies,
		TrustedProxies: proxies,
		Logger:         log.Named("http"),
	})

	return &Application{
		cfg: cfg,
		log: log,
		app: application,
		db:  db,
		server: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      2 * time.Minute,
			IdleTimeout:       2 * time.Minute,
		},
	}, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

// Run starts background services and the HTTP server, then blocks until ctx
// is cancelled or the listener fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", a.cfg.HTTPAddr).Info("HTTP server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown drains in-flight requests, stops services and closes the database.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop services: %w", err))
	}
	closeDB(a.db, a.log)
	return errors.Join(errs...)
}

func buildStores(ctx context.Context, cfg *config.Config, log *logging.Logger) (app.Stores, *sqlx.DB, error) {
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			return app.Stores{}, nil, fmt.Errorf("CANVAS_DATABASE_URL is required in production")
		}
		log.Warn("CANVAS_DATABASE_URL not set; using in-memory storage")
		return app.Stores{}, nil, nil
	}

	db, err := database.Open(ctx, cfg.DatabaseURL, database.DefaultOptions())
	if err != nil {
		return app.Stores{}, nil, err
	}
	store := postgres.New(db)
	return app.Stores{
		Users:       store,
		VBUs:        store,
		Canvases:    store,
		Attachments: store,
		Reviews:     store,
		Portfolio:   store,
	}, db, nil
}

func buildBlobs(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	switch cfg.Storage.Backend {
	case config.BlobBackendMinIO:
		m := cfg.Storage.MinIO
		return blobstore.NewMinIO(ctx, blobstore.MinIOConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			UseSSL:    m.UseSSL,
		})
	default:
		return blobstore.NewLocal(cfg.Storage.UploadDir)
	}
}

// buildLimiter prefers a shared Redis limiter and falls back to the
// in-process one when Redis is not configured or unreachable.
func buildLimiter(ctx context.Context, cfg *config.Config, log *logging.Logger) middleware.Limiter {
	if cfg.RedisURL == "" {
		return middleware.NewRateLimiter()
	}
	dialCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	limiter, err := middleware.NewRedisLimiter(dialCtx, cfg.RedisURL)
	if err != nil {
		log.WithError(err).Warn("redis unavailable; using in-memory rate limiter")
		return middleware.NewRateLimiter()
	}
	return limiter
}

func closeDB(db *sqlx.DB, log *logging.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		log.WithError(err).Warn("error closing database connection")
	}
}

// Seed loads bootstrap users and VBUs into the configured stores.
func (a *Application) Seed(ctx context.Context, seed *config.SeedFile) (app.SeedResult, error) {
	return a.app.Seed(ctx, seed)
}
