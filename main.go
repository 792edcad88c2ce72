package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"prompt-guess-game/config"
	"prompt-guess-game/handlers"
	"prompt-guess-game/logger"
	"prompt-guess-game/middleware"
	"prompt-guess-game/models"
	"prompt-guess-game/notify"
	"prompt-guess-game/providers/embedding"
	"prompt-guess-game/providers/imagegen"
	"prompt-guess-game/providers/llm"
	"prompt-guess-game/services"
	"prompt-guess-game/utils"
	"prompt-guess-game/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("⚠️  No .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to access database handle")
	}

	store, err := newImageStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize image store")
	}
	embedder, err := embedding.New(cfg.EmbeddingProvider, cfg.OpenAI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize embedding provider")
	}
	images, err := imagegen.New(cfg.ImageProvider, cfg.OpenAI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize image provider")
	}

	var rewriter services.Rewriter
	if cfg.PromptGenerator == config.PromptOllama {
		ollamaCfg := llm.DefaultOllamaConfig()
		ollamaCfg.BaseURL = cfg.Ollama.BaseURL
		ollamaCfg.Model = cfg.Ollama.Model
		rewriter = llm.NewOllamaClient(ollamaCfg)
	}

	queue := notify.NewQueue(1024)
	clock := clockwork.NewRealClock()

	wordService := services.NewWordService(db, services.WordConfig{
		DifficultyWordCounts: cfg.DifficultyWordCounts,
		DefaultDifficulty:    cfg.DefaultDifficulty,
		Lookback:             cfg.AntiRepetitionLookback,
		Threshold:            cfg.AntiRepetitionThreshold,
	})
	roundService := services.NewRoundService(db, services.RoundDeps{
		Words:    wordService,
		Prompts:  services.NewPromptService(rewriter),
		Images:   images,
		Store:    store,
		Embedder: embedder,
		Events:   queue,
		Clock:    clock,
	}, services.RoundConfig{
		RoundDuration: cfg.RoundDuration,
		ImageOptions:  &imagegen.Options{Quality: cfg.OpenAI.ImageQuality},
	})
	scoringService := services.NewScoringService(db, roundService, embedder, queue, services.ScoringConfig{
		MaxGuessLength: cfg.MaxGuessLength,
	})
	scheduler := services.NewScheduler(roundService, services.SchedulerConfig{
		RoundDuration: cfg.RoundDuration,
		CheckInterval: cfg.CheckInterval,
	}, clock)

	if _, err := wordService.SeedDefaults(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to seed word bank")
	}

	var publisher workers.Publisher = workers.NewLogPublisher()
	if cfg.RedisURL != "" {
		redisPub, err := workers.NewRedisPublisher(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, game events will only be logged")
		} else {
			defer redisPub.Close()
			publisher = redisPub
		}
	}
	hub := notify.NewHub()
	notifier := workers.NewNotificationWorker(queue, publisher, hub, workers.DefaultChannel)
	go notifier.Start(ctx)

	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start round scheduler")
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    64 * 1024,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	// 🔐❗ GLOBAL: only gateway requests allowed, health excepted
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, "/health"))

	allowedOrigins := strings.Split(cfg.AllowedOrigins, ",")
	for i, origin := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(origin)
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOrigins, ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Use(middleware.UserContextMiddleware())

	handlers.SetupHealthRoutes(app, sqlDB.PingContext, scheduler, hub)
	handlers.SetupRoundRoutes(app, &handlers.RoundHandler{
		Rounds:    roundService,
		Scoring:   scoringService,
		Scheduler: scheduler,
	})
	handlers.SetupEventRoutes(app, &handlers.EventHandler{Hub: hub})

	if cfg.Storage == config.StorageLocal {
		app.Static("/uploads", cfg.UploadDir)
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}()

	log.Info().
		Str("port", cfg.Port).
		Str("embeddings", embedder.Name()).
		Str("images", images.Name()).
		Str("prompts", string(cfg.PromptGenerator)).
		Str("storage", string(cfg.Storage)).
		Msg("✅ server running")

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	if err := scheduler.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
	queue.Close()
}

func newImageStore(ctx context.Context, cfg *config.Config) (utils.ImageStore, error) {
	if cfg.Storage == config.StorageR2 {
		return utils.NewR2Store(ctx, cfg.R2)
	}
	return utils.NewLocalStore(cfg.UploadDir, cfg.PublicBaseURL)
}
