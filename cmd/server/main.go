package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schoolhub-backend/internal/config"
	"schoolhub-backend/internal/database"
	"schoolhub-backend/internal/handlers"
	"schoolhub-backend/internal/middleware"
	"schoolhub-backend/internal/policy"
	"schoolhub-backend/internal/repository"
	"schoolhub-backend/internal/router"
	"schoolhub-backend/internal/services"
	"schoolhub-backend/internal/websocket"
	"schoolhub-backend/migrations"
)

func main() {
	log.Println("🚀 Starting SchoolHub Backend...")
	ctx := context.Background()

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, database.PoolOptions{MaxConns: 25, MinConns: 5})
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Run Database Migrations ────
	if err := database.RunMigrations(ctx, pool, migrations.Files); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Step 4: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 5: Initialize Token Source ────
	var tokens services.TokenSource
	if cfg.GeminiAPIKey != "" {
		tutor, err := services.NewGeminiTutor(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiConcurrentReqs)
		if err != nil {
			log.Fatalf("✗ Gemini client initialization failed: %v", err)
		}
		defer tutor.Close()
		tokens = tutor
		log.Printf("✓ Gemini tutor initialized (%s)", cfg.GeminiModel)
	} else {
		tokens = services.NewMockTutor()
		log.Println("⚠ GEMINI_API_KEY not set, using the offline mock tutor")
	}

	// ──── Step 6: Load Import Policy ────
	engine, err := policy.NewEngine(ctx, policy.DefaultImportPolicy)
	if err != nil {
		log.Fatalf("✗ Import policy failed to compile: %v", err)
	}
	log.Println("✓ Import policy loaded")

	// ──── Initialize Repositories & Services ────
	studentRepo := repository.NewStudentRepo(pool)
	jobRepo := repository.NewImportJobRepo(pool)
	publisher := services.NewRedisPublisher(redisClients.Publish)
	importer := services.NewImporter(services.NewRosterParser(), studentRepo, jobRepo, publisher)
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)

	// ──── Initialize Handlers ────
	chatHandler := handlers.NewChatHandler(tokens)
	importHandler := handlers.NewImportHandler(importer, engine, jobRepo, cfg.ImportMaxFileBytes, cfg.ImportMaxConcurrent)
	chatLimiter := middleware.NewRateLimiter(cfg.ChatRateLimitPerMinute, time.Minute)
	defer chatLimiter.Stop()

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.Subscribe, jwtAuth, cfg.FrontendURL)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	r := router.New(router.Deps{
		JWTAuth:       jwtAuth,
		ChatLimiter:   chatLimiter,
		ChatHandler:   chatHandler,
		ImportHandler: importHandler,
		WebSocket:     wsHub.HandleWebSocket,
		FrontendURL:   cfg.FrontendURL,
	})

	// No WriteTimeout: chat answers and imports are streamed for as long as
	// they run.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("WARN: shutdown did not finish cleanly: %v", err)
		}
	}()

	log.Printf("✓ SchoolHub Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
}
