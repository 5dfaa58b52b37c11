package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frankbria/auto-author-sub003/internal/config"
	"github.com/frankbria/auto-author-sub003/internal/database"
	"github.com/frankbria/auto-author-sub003/internal/handlers"
	"github.com/frankbria/auto-author-sub003/internal/middleware"
	"github.com/frankbria/auto-author-sub003/internal/repository"
	"github.com/frankbria/auto-author-sub003/internal/router"
	"github.com/frankbria/auto-author-sub003/internal/services"
	"github.com/frankbria/auto-author-sub003/internal/websocket"
	"github.com/frankbria/auto-author-sub003/internal/worker"
)

func main() {
	log.Println("🚀 Starting Auto-Author Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	bookRepo := repository.NewBookRepo(pool)
	summaryRepo := repository.NewSummaryRepo(pool)
	wizardRepo := repository.NewWizardRepo(pool)
	tocRepo := repository.NewTocRepo(pool)
	tabRepo := repository.NewTabStateRepo(pool)
	accessRepo := repository.NewAccessLogRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// ──── Step 5: Initialize Gemini Client ────
	geminiService, err := services.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiConcurrentReqs)
	if err != nil {
		log.Fatalf("✗ Gemini client initialization failed: %v", err)
	}
	defer geminiService.Close()
	log.Println("✓ Gemini Flash client initialized")

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	syncBus := services.NewSyncBus(redisClients.Queue)
	queue := worker.NewQueue(redisClients.Queue, jobRepo)
	readiness := services.NewReadinessEvaluator(cfg.WizardMinSummaryWords)
	wizardService := services.NewWizardService(
		wizardRepo, bookRepo, summaryRepo, tocRepo,
		geminiService, queue, readiness, syncBus,
	)
	tabService := services.NewTabStateService(tabRepo, tocRepo, accessRepo)

	// ──── Initialize Handlers ────
	bookHandler := handlers.NewBookHandler(bookRepo)
	summaryHandler := handlers.NewSummaryHandler(summaryRepo, bookRepo)
	wizardHandler := handlers.NewWizardHandler(wizardService, bookRepo)
	tocHandler := handlers.NewTocHandler(tocRepo, bookRepo, syncBus, cfg.TabSyncPollSeconds)
	chapterHandler := handlers.NewChapterHandler(tocRepo, bookRepo, tabService, queue)
	tabHandler := handlers.NewTabStateHandler(tabService, bookRepo)
	activityHandler := handlers.NewActivityHandler(accessRepo, tocRepo, bookRepo)
	jobHandler := handlers.NewJobHandler(jobRepo)

	// ──── Step 6: Start Job Worker Pool ────
	workerPool := worker.NewPool(
		redisClients.Queue,
		wizardService,
		geminiService,
		syncBus,
		jobRepo,
		bookRepo,
		summaryRepo,
		tocRepo,
		cfg.WorkerCount,
	)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, cfg.JWTSecret)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		bookHandler,
		summaryHandler,
		wizardHandler,
		tocHandler,
		chapterHandler,
		tabHandler,
		activityHandler,
		jobHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Auto-Author Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
