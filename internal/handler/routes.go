package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/parsey/docpreview/internal/config"
	"github.com/parsey/docpreview/internal/middleware"
)

// Handlers groups everything Register mounts
type Handlers struct {
	Health   *HealthHandler
	Session  *SessionHandler
	Resource *ResourceHandler
	Analysis *AnalysisHandler
	Gallery  *GalleryHandler
	Stream   *StreamHandler
}

// Register mounts the HTTP and websocket routes on app
func Register(app *fiber.App, h Handlers, limiter *middleware.RateLimiter, limits config.RateLimitConfig) {
	app.Get("/", h.Health.Root)
	app.Get("/health", h.Health.Health)

	api := app.Group("/api")

	api.Get("/resources/:id", h.Resource.Get)
	api.Delete("/sessions/:sessionId", h.Session.Teardown)

	// Session routes
	sessions := api.Group("/sessions/:sessionId")
	sessions.Post("/preview", limiter.PreviewLimit(limits.PreviewPerMin), h.Session.Preview)
	sessions.Get("/preview", h.Session.Current)
	sessions.Post("/zoom", limiter.PreviewLimit(limits.PreviewPerMin), h.Session.Zoom)
	sessions.Post("/analysis", limiter.AnalysisLimit(limits.AnalysisPerHour), h.Analysis.Start)
	sessions.Post("/gallery/generate", limiter.GenerateLimit(limits.GeneratePerHour), h.Gallery.Generate)

	// Analysis routes
	analysis := api.Group("/analysis")
	analysis.Get("/phases", h.Analysis.Phases)
	analysis.Get("/status/:runId", h.Analysis.Status)
	analysis.Get("/result/:runId", h.Analysis.Result)
	analysis.Post("/reset/:runId", h.Analysis.Reset)
	analysis.Post("/classify", limiter.AnalysisLimit(limits.AnalysisPerHour), h.Analysis.Classify)

	// Gallery routes
	gallery := api.Group("/gallery")
	gallery.Get("/models", h.Gallery.Models)
	gallery.Get("/prompts", h.Gallery.Prompts)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/runs/:runId", websocket.New(h.Stream.Run))
}
