package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/toonfeed/toonfeed/app/api"
	"github.com/toonfeed/toonfeed/app/cfg"
	"github.com/toonfeed/toonfeed/app/config"
	"github.com/toonfeed/toonfeed/app/database"
	"github.com/toonfeed/toonfeed/app/feed"
	"github.com/toonfeed/toonfeed/app/generation"
	"github.com/toonfeed/toonfeed/app/ingest"
	"github.com/toonfeed/toonfeed/app/limiter"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	log.Printf("Starting ToonFeed server (version %s)...", appCfg.Version)

	log.Println("Connecting to database...")
	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		log.Fatal("Failed to run migrations:", err)
	}
	log.Printf("Database schema at version %d (dirty: %t)", version, dirty)

	log.Printf("Loading feed sources from %s...", appCfg.FeedsFile)
	loader := config.NewLoader(appCfg.FeedsFile)
	feedsFile, err := loader.Load()
	if err != nil {
		log.Fatal("Failed to load feed sources:", err)
	}
	log.Printf("Loaded %d feed sources", len(feedsFile.Feeds))

	// Initialize repositories
	feedRepo := database.NewFeedRepository(db)
	itemRepo := database.NewItemRepository(db)
	runRepo := database.NewRunRepository(db)
	rateRepo := database.NewRateLimitRepository(db)

	// Initialize core components
	httpClient := &http.Client{Timeout: 30 * time.Second}
	fetcher := feed.NewFetcher(httpClient, appCfg.UserAgent)
	parser := feed.NewParser()

	sourceCategories := make(map[string]string, len(feedsFile.Feeds))
	for _, source := range feedsFile.Feeds {
		sourceCategories[source.ID] = source.Category
	}
	classifier := feed.NewClassifier(sourceCategories)

	sweeper := ingest.NewSweeper(itemRepo, runRepo, rateRepo)
	orchestrator := ingest.NewOrchestrator(feedsFile, fetcher, parser, classifier,
		feedRepo, itemRepo, runRepo, sweeper, ingest.Options{
			Concurrency:     appCfg.FetchConcurrency,
			FetchTimeout:    time.Duration(appCfg.FetchTimeout) * time.Second,
			MaxItemsPerFeed: appCfg.MaxItemsPerFeed,
			FeedDump:        appCfg.FeedDump,
			FeedDumpDir:     filepath.Join(os.TempDir(), "toonfeed-feed-dumps"),
		})

	generationClient := generation.NewClient(
		&http.Client{Timeout: 120 * time.Second},
		appCfg.GenerationAPIKey, appCfg.GenerationModel,
		appCfg.GenerationBaseURL, appCfg.GenerationRetries)
	if !generationClient.Configured() {
		log.Println("Warning: generation API key not set, /generate-image will fail")
	}

	rateLimiter := limiter.NewLimiter(rateRepo, appCfg.RateLimitMax,
		time.Duration(appCfg.RateLimitWindowMinutes)*time.Minute)

	// Initialize HTTP server
	log.Println("Initializing HTTP server...")
	apiHandler := api.NewHandler(feedsFile, db, itemRepo, feedRepo, rateLimiter,
		generationClient, orchestrator, appCfg.Location(), appCfg.AllowStaticFallback)
	server := api.NewServer(apiHandler, appCfg.CronSecret, appCfg.Debug)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on port %s", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("ToonFeed server started successfully!")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-serverErrChan:
		log.Printf("Server error: %v", err)
	}

	log.Println("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	} else {
		log.Println("HTTP server stopped")
	}

	log.Println("ToonFeed server shutdown complete")
}
