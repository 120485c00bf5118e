package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/parsey/docpreview/internal/client"
	"github.com/parsey/docpreview/internal/config"
	"github.com/parsey/docpreview/internal/handler"
	"github.com/parsey/docpreview/internal/middleware"
	"github.com/parsey/docpreview/internal/preview"
	"github.com/parsey/docpreview/internal/resource"
	"github.com/parsey/docpreview/internal/service"
	ws "github.com/parsey/docpreview/internal/websocket"
	"github.com/parsey/docpreview/internal/worker"
	"github.com/parsey/docpreview/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	store, err := newStore(cfg, redisClient)
	if err != nil {
		log.Fatalf("Failed to initialize %s storage: %v", cfg.Storage.Driver, err)
	}
	log.Printf("Resource storage: %s", cfg.Storage.Driver)

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	// Backend clients
	analyzer := client.NewAnalysisClient(&cfg.Analysis)
	generator := client.NewGenerationClient(&cfg.Generation)

	// Services
	estimator, err := service.NewEstimator(&cfg.Progress)
	if err != nil {
		log.Fatalf("Invalid progress phases: %v", err)
	}
	uploads := service.NewUploadPolicy(&cfg.Upload)
	sessions := service.NewSessionService(preview.NewDecoder(), store)
	analysis := service.NewAnalysisService(
		service.NewRedisRunStore(redisClient),
		asynqClient,
		estimator,
		uploads,
		time.Duration(cfg.Progress.TickMs)*time.Millisecond,
		time.Duration(cfg.Analysis.Timeout)*time.Second+estimator.Total(),
	)
	gallery := service.NewGalleryService(generator, store, sessions, validate)

	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		// Headroom for the multipart envelope; the upload policy enforces the file limit.
		BodyLimit: int(uploads.MaxBytes()) + 1024*1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	handler.Register(app, handler.Handlers{
		Health:   handler.NewHealthHandler(analyzer, generator, redisClient, cfg.Storage.Driver),
		Session:  handler.NewSessionHandler(sessions, analysis, uploads, validate),
		Resource: handler.NewResourceHandler(store),
		Analysis: handler.NewAnalysisHandler(analysis, analyzer, uploads),
		Gallery:  handler.NewGalleryHandler(gallery),
		Stream:   handler.NewStreamHandler(analysis, hub),
	}, rateLimiter, cfg.RateLimit)

	workerSrv := newWorkerServer(cfg, redisOpt)
	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeAnalysis, worker.NewAnalysisWorker(analysis, analyzer, hub).ProcessTask)
	go func() {
		if err := workerSrv.Run(mux); err != nil {
			log.Printf("Asynq worker error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	workerSrv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sessions.Close(shutdownCtx)
	hub.Stop()
	log.Println("Server stopped")
}

func newStore(cfg *config.Config, redisClient *redis.Client) (resource.Store, error) {
	urls := resource.LocalURL(cfg.Storage.PublicURL)
	ttl := time.Duration(cfg.Storage.TTLMinutes) * time.Minute

	switch cfg.Storage.Driver {
	case config.StorageRedis:
		return resource.NewRedisStore(redisClient, ttl, urls), nil
	case config.StorageR2:
		r2, err := resource.NewR2Store(&cfg.R2)
		if err != nil {
			return nil, err
		}
		return r2, nil
	default:
		return resource.NewMemoryStore(urls), nil
	}
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Queues: map[string]int{
			service.QueueAnalysis: 1,
		},
		LogLevel: asynqLogLevel(cfg.Server.LogLevel),
	})
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return asynq.DebugLevel
	case "warn", "warning":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	errCode := response.CodeServiceError
	switch code {
	case fiber.StatusRequestEntityTooLarge:
		errCode = response.CodePayloadTooLarge
	case fiber.StatusNotFound:
		errCode = response.CodeNotFound
	case fiber.StatusBadRequest, fiber.StatusUpgradeRequired:
		errCode = response.CodeValidationError
	}

	return response.Error(c, code, errCode, message, nil)
}
