package bootstrap

import (
	"context"

	"coursecert-backend/internal/config"
	"coursecert-backend/internal/interfaces/router"

	"github.com/gofiber/fiber/v2"
)

// New creates the Fiber app for serverless hosting (api handler imports this package, not internal).
// The regeneration worker is not started here; queued jobs wait for a long-running instance.
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	app, _, err := router.CreateApp(context.Background(), cfg)
	return app, err
}
