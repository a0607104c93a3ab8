package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	certsvc "coursecert-backend/internal/application/certificates"
	"coursecert-backend/internal/application/notifications"
	"coursecert-backend/internal/config"
	"coursecert-backend/internal/infrastructure/database"
	"coursecert-backend/internal/infrastructure/marketplace"
	"coursecert-backend/internal/infrastructure/renderer"
	"coursecert-backend/internal/infrastructure/storage"
	certhandler "coursecert-backend/internal/interfaces/handlers/certificates"
	eventhandler "coursecert-backend/internal/interfaces/handlers/events"
	healthhandler "coursecert-backend/internal/interfaces/handlers/health"
	"coursecert-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Deps are the already-built collaborators the HTTP layer routes to.
type Deps struct {
	Config       *config.Config
	DB           *gorm.DB
	Rdb          *redis.Client
	Certificates *certsvc.Service
	Queue        *certsvc.RedisQueue
}

// Runtime is everything CreateApp opened; the entrypoint owns its lifetime.
type Runtime struct {
	DB     *gorm.DB
	Rdb    *redis.Client
	Worker *certsvc.Worker
	// Certificates is drained of in-flight notifications before the pool closes.
	Certificates *certsvc.Service
	closer       func() error
}

// Close waits for pending notifications, then releases storage clients, Redis and the database pool.
func (r *Runtime) Close() error {
	if r.Certificates != nil {
		r.Certificates.WaitNotifications()
	}
	var firstErr error
	if r.closer != nil {
		firstErr = r.closer()
	}
	if r.Rdb != nil {
		if err := r.Rdb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.DB != nil {
		if sqlDB, err := r.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// New builds the Fiber app over deps.
func New(deps Deps) *fiber.App {
	cfg := deps.Config
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))
	app.Use(middleware.Session(deps.Rdb, middleware.SessionConfig{Secret: cfg.SessionSecret}))
	app.Use(middleware.HealthMarker(deps.Rdb))

	hh := &healthhandler.Handlers{Rdb: deps.Rdb, HealthAdminKey: cfg.HealthAdminKey}
	if deps.DB != nil {
		hh.DB = &gormDBPinger{db: deps.DB}
	}
	if deps.Queue != nil {
		hh.Queue = deps.Queue
	}
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)

	if (cfg.Storage.Driver == "" || cfg.Storage.Driver == "local") && cfg.Storage.LocalURLPrefix != "" {
		app.Static(cfg.Storage.LocalURLPrefix, cfg.Storage.LocalDir, fiber.Static{MaxAge: 3600})
	}

	if deps.Certificates == nil {
		return app
	}

	ch := &certhandler.Handlers{Service: deps.Certificates}
	app.Get("/api/v1/certificates/verify/:code", ch.Verify)
	cg := app.Group("/api/v1/certificates", middleware.RequireAuth())
	cg.Get("/mine", ch.ListMine)
	cg.Post("/enrollments/:enrollment_id", ch.Issue)
	cg.Get("/:id", ch.GetByID)

	ag := app.Group("/api/v1/admin/certificates", middleware.RequireRole(middleware.RoleAdmin, middleware.RoleSuperadmin))
	ag.Post("/regenerate-all", ch.RegenerateAll)
	ag.Post("/:id/regenerate", ch.Regenerate)
	ag.Post("/:id/revoke", ch.Revoke)

	eh := &eventhandler.Handlers{Issuer: deps.Certificates}
	app.Post("/internal/events/enrollment-completed", middleware.InternalKey(cfg.InternalAPIKeyHash), eh.EnrollmentCompleted)

	return app
}

// CreateApp opens the database, Redis, object storage and renderer, wires the
// certificate service and returns the app with its runtime.
func CreateApp(ctx context.Context, cfg *config.Config) (*fiber.App, *Runtime, error) {
	rt := &Runtime{}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis url: %w", err)
		}
		rt.Rdb = redis.NewClient(opt)
	}

	if cfg.DatabaseURL == "" {
		log.Warn().Msg("no database configured, certificate routes disabled")
		return New(Deps{Config: cfg, Rdb: rt.Rdb}), rt, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		rt.Close()
		return nil, nil, err
	}
	rt.DB = db
	if err := database.AutoMigrate(db); err != nil {
		rt.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		rt.Close()
		return nil, nil, err
	}
	if c, ok := objects.(interface{ Close() error }); ok {
		rt.closer = c.Close
	}

	svc, queue := NewCertificateService(cfg, db, rt.Rdb, objects)
	rt.Certificates = svc
	if queue != nil {
		rt.Worker = certsvc.NewWorker(queue, svc, certsvc.WorkerConfig{
			Enabled:     cfg.Worker.Enabled,
			Interval:    cfg.Worker.Interval,
			BatchSize:   cfg.Worker.BatchSize,
			MaxAttempts: cfg.Worker.MaxAttempts,
		})
	}

	app := New(Deps{Config: cfg, DB: db, Rdb: rt.Rdb, Certificates: svc, Queue: queue})
	return app, rt, nil
}

// NewCertificateService wires the orchestrator. The queue is nil without Redis.
func NewCertificateService(cfg *config.Config, db *gorm.DB, rdb *redis.Client, objects certsvc.ObjectStore) (*certsvc.Service, *certsvc.RedisQueue) {
	store := &certsvc.GormStore{DB: db}
	market := &marketplace.GormReader{DB: db}

	notifier := notifications.Multi{&notifications.InboxNotifier{DB: db}}
	if cfg.Mail.SendinblueAPIKey != "" {
		notifier = append(notifier, &notifications.BrevoNotifier{
			APIKey:       cfg.Mail.SendinblueAPIKey,
			MailFrom:     cfg.Mail.MailFrom,
			PlatformName: cfg.Certificates.PlatformName,
			AppBaseURL:   cfg.AppBaseURL,
			Users:        market,
			Client:       &http.Client{Timeout: 15 * time.Second},
		})
	}

	templates := &certsvc.TemplateRenderer{
		VerifyBaseURL: cfg.Certificates.VerifyBaseURL,
		PlatformName:  cfg.Certificates.PlatformName,
		LogoPath:      cfg.Certificates.LogoPath,
	}
	engine := renderer.NewChromeEngine(renderer.Config{
		ExecPath:      cfg.Renderer.ChromePath,
		MaxInstances:  cfg.Renderer.MaxInstances,
		LaunchTimeout: cfg.Renderer.LaunchTimeout,
		LoadTimeout:   cfg.Renderer.LoadTimeout,
		SettleDelay:   cfg.Renderer.SettleDelay,
	})

	svc := &certsvc.Service{
		Store:       store,
		Marketplace: market,
		Notifier:    notifier,
		Assets: &certsvc.AssetPipeline{
			Templates:     templates,
			Engine:        engine,
			Storage:       objects,
			ScratchDir:    cfg.Certificates.ScratchDir,
			StorageFolder: cfg.Certificates.StorageFolder,
			UploadTimeout: cfg.Certificates.UploadTimeout,
		},
		Codes: &certsvc.CodeGenerator{Checker: store},
		Calculator: &certsvc.Calculator{
			Marketplace:           market,
			NonVideoLessonMinutes: cfg.Certificates.NonVideoLessonMinutes,
		},
		VerifyBaseURL: cfg.Certificates.VerifyBaseURL,
		IssueTimeout:  cfg.Certificates.IssueTimeout,
		NotifyTimeout: cfg.Certificates.NotifyTimeout,
	}
	if local, ok := objects.(*storage.LocalStore); ok {
		svc.LocalExists = local.Exists
	}

	var queue *certsvc.RedisQueue
	if rdb != nil {
		queue = &certsvc.RedisQueue{Rdb: rdb}
		svc.Queue = queue
	}
	return svc, queue
}
