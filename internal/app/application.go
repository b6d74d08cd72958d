package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/R3E-Network/canvas/internal/app/domain/attachment"
	"github.com/R3E-Network/canvas/internal/app/metrics"
	"github.com/R3E-Network/canvas/internal/app/services/attachments"
	"github.com/R3E-Network/canvas/internal/app/services/auth"
	"github.com/R3E-Network/canvas/internal/app/services/canvases"
	"github.com/R3E-Network/canvas/internal/app/services/pdf"
	"github.com/R3E-Network/canvas/internal/app/services/portfolio"
	"github.com/R3E-Network/canvas/internal/app/services/reviews"
	"github.com/R3E-Network/canvas/internal/app/services/users"
	"github.com/R3E-Network/canvas/internal/app/services/vbus"
	"github.com/R3E-Network/canvas/internal/app/storage"
	"github.com/R3E-Network/canvas/internal/app/storage/memory"
	"github.com/R3E-Network/canvas/internal/app/system"
	"github.com/R3E-Network/canvas/internal/blobstore"
	"github.com/R3E-Network/canvas/internal/config"
	"github.com/R3E-Network/canvas/internal/logging"
	"github.com/R3E-Network/canvas/internal/middleware"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users       storage.UserStore
	VBUs        storage.VBUStore
	Canvases    storage.CanvasStore
	Attachments storage.AttachmentStore
	Reviews     storage.ReviewStore
	Portfolio   storage.PortfolioStore
}

// Deps are the non-storage collaborators. Zero values fall back to
// development defaults: a temp-dir blob store, an in-process limiter and a
// renderer that launches a local Chromium on first use.
type Deps struct {
	Auth           auth.Config
	Blobs          blobstore.Store
	Limiter        middleware.Limiter
	Renderer       pdf.Renderer
	MaxUploadBytes int64
}

// Schedules for maintenance jobs.
const (
	LimiterCleanupSpec = "@every 10m"
	HealthSweepSpec    = "@hourly"
)

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logging.Logger

	Auth        *auth.Service
	Users       *users.Service
	VBUs        *vbus.Service
	Canvases    *canvases.Service
	Attachments *attachments.Service
	Reviews     *reviews.Service
	Portfolio   *portfolio.Service
	PDF         *pdf.Service

	Limiter   middleware.Limiter
	Scheduler *system.Scheduler
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, deps Deps, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("app")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.VBUs == nil {
		stores.VBUs = mem
	}
	if stores.Canvases == nil {
		stores.Canvases = mem
	}
	if stores.Attachments == nil {
		stores.Attachments = mem
	}
	if stores.Reviews == nil {
		stores.Reviews = mem
	}
	if stores.Portfolio == nil {
		stores.Portfolio = mem
	}

	if deps.Blobs == nil {
		root, err := os.MkdirTemp("", "canvas-uploads-")
		if err != nil {
			return nil, fmt.Errorf("default blob store: %w", err)
		}
		dir, err := blobstore.NewLocal(root)
		if err != nil {
			return nil, fmt.Errorf("default blob store: %w", err)
		}
		deps.Blobs = dir
	}
	if deps.Limiter == nil {
		deps.Limiter = middleware.NewRateLimiter()
	}
	if deps.Renderer == nil {
		deps.Renderer = pdf.NewRodRenderer(config.PDFConfig{}, log.Named("pdf-renderer"))
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = attachment.MaxSizeBytes
	}

	authService := auth.New(stores.Users, deps.Auth, log.Named("auth"))
	userService := users.New(stores.Users, stores.VBUs, authService, log.Named("users"))
	vbuService := vbus.New(stores.VBUs, stores.Users, stores.Canvases, stores.Attachments, deps.Blobs, log.Named("vbus"))
	canvasService := canvases.New(stores.VBUs, stores.Canvases, stores.Attachments, deps.Blobs, log.Named("canvases"))
	attachmentService := attachments.New(stores.Attachments, stores.Reviews, canvasService, deps.Blobs, deps.MaxUploadBytes, log.Named("attachments"))
	reviewService := reviews.New(stores.Reviews, canvasService, log.Named("reviews"))
	portfolioService := portfolio.New(stores.Portfolio, log.Named("portfolio"))
	pdfService := pdf.New(canvasService, reviewService, deps.Renderer, log.Named("pdf"))

	scheduler := system.NewScheduler(log.Named("scheduler"))
	if err := scheduler.Add("health-sweep", HealthSweepSpec, 10*time.Minute, func(ctx context.Context) error {
		n, err := canvasService.SweepHealth(ctx)
		metrics.RecordHealthSweep(err == nil)
		log.WithField("canvases", n).Debug("health sweep finished")
		return err
	}); err != nil {
		return nil, err
	}
	if cleaner, ok := deps.Limiter.(interface{ Cleanup() int }); ok {
		if err := scheduler.Add("ratelimit-cleanup", LimiterCleanupSpec, time.Minute, func(context.Context) error {
			cleaner.Cleanup()
			return nil
		}); err != nil {
			return nil, err
		}
	}

	manager := system.NewManager()
	services := []system.Service{scheduler}
	for _, dep := range []interface{}{deps.Limiter, deps.Renderer} {
		if svc, ok := dep.(system.Service); ok {
			services = append(services, svc)
		}
	}
	for _, svc := range services {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:     manager,
		log:         log,
		Auth:        authService,
		Users:       userService,
		VBUs:        vbuService,
		Canvases:    canvasService,
		Attachments: attachmentService,
		Reviews:     reviewService,
		Portfolio:   portfolioService,
		PDF:         pdfService,
		Limiter:     deps.Limiter,
		Scheduler:   scheduler,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Services lists lifecycle-managed components in start order.
func (a *Application) Services() []string {
	return a.manager.Names()
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
