package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/parsey/docpreview/internal/client"
	"github.com/parsey/docpreview/pkg/response"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const healthTimeout = 3 * time.Second

type HealthHandler struct {
	analyzer  client.DocumentAnalyzer
	generator client.ImageGenerator
	redis     redis.Cmdable
	storage   string
}

func NewHealthHandler(analyzer client.DocumentAnalyzer, generator client.ImageGenerator, redisClient redis.Cmdable, storage string) *HealthHandler {
	return &HealthHandler{
		analyzer:  analyzer,
		generator: generator,
		redis:     redisClient,
		storage:   storage,
	}
}

// Root handles GET /
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"name":      "docpreview",
		"timestamp": time.Now().Unix(),
	})
}

// Health handles GET /health. Backends are probed concurrently; the
// endpoint itself reports ok as long as the server runs.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	var analysisOK, generationOK, redisOK bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := h.analyzer.Health(gctx)
		analysisOK = err == nil
		return nil
	})
	g.Go(func() error {
		_, err := h.generator.Health(gctx)
		generationOK = err == nil
		return nil
	})
	if h.redis != nil {
		g.Go(func() error {
			redisOK = h.redis.Ping(gctx).Err() == nil
			return nil
		})
	}
	_ = g.Wait()

	return response.OK(c, fiber.Map{
		"status":  "ok",
		"storage": h.storage,
		"services": fiber.Map{
			"analysis":   analysisOK,
			"generation": generationOK,
			"redis":      redisOK,
		},
	})
}
