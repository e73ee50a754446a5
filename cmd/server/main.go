package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/shelfwatch/shelfwatch/internal/apify"
	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/handler"
	"github.com/shelfwatch/shelfwatch/internal/service"
	"github.com/shelfwatch/shelfwatch/internal/store"
	"github.com/shelfwatch/shelfwatch/internal/worker"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := database.New(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	log.Println("Running database migrations...")
	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")

	// Create store
	s := store.New(db.DB)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Start the scrape worker
	var w *worker.Worker
	switch {
	case !cfg.WorkerEnabled:
		log.Println("Scrape worker disabled")
	case cfg.ApifyToken == "":
		log.Println("APIFY_TOKEN not set, scrape worker disabled")
	default:
		provider := apify.NewClient(cfg.ApifyToken, cfg.ApifyRequestTimeout)
		results := service.NewResults(s, logger)
		w = worker.New(s, results, provider, cfg, logger)
		w.Start(context.Background())
	}

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Initialize handlers
	h := handler.New(s, cfg)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.GetDashboardStats)

		r.Route("/skus", func(r chi.Router) {
			r.Get("/", h.ListSkus)
			r.Post("/", h.CreateSku)
			r.Get("/{skuId}", h.GetSku)
			r.Put("/{skuId}", h.UpdateSku)
			r.Delete("/{skuId}", h.DeleteSku)
		})

		r.Route("/channel-skus", func(r chi.Router) {
			r.Get("/", h.ListChannelSkus)
			r.Post("/", h.CreateChannelSku)
			r.Get("/{channelSkuId}", h.GetChannelSku)
			r.Put("/{channelSkuId}", h.UpdateChannelSku)
			r.Delete("/{channelSkuId}", h.DeleteChannelSku)
			r.Get("/{channelSkuId}/asin-history", h.GetChannelSkuAsinHistory)
		})

		r.Route("/competitors", func(r chi.Router) {
			r.Get("/", h.ListCompetitors)
			r.Post("/", h.CreateCompetitor)
			r.Get("/{competitorId}", h.GetCompetitor)
			r.Put("/{competitorId}", h.UpdateCompetitor)
			r.Delete("/{competitorId}", h.DeleteCompetitor)
			r.Get("/{competitorId}/price-history", h.GetCompetitorPriceHistory)
		})

		r.Route("/keywords", func(r chi.Router) {
			r.Get("/", h.ListKeywords)
			r.Post("/", h.CreateKeyword)
			r.Get("/{keywordId}", h.GetKeyword)
			r.Put("/{keywordId}", h.UpdateKeyword)
			r.Delete("/{keywordId}", h.DeleteKeyword)
			r.Post("/{keywordId}/channel-skus/{channelSkuId}", h.LinkKeywordChannelSku)
			r.Delete("/{keywordId}/channel-skus/{channelSkuId}", h.UnlinkKeywordChannelSku)
			r.Post("/{keywordId}/competitors/{competitorId}", h.LinkKeywordCompetitor)
			r.Delete("/{keywordId}/competitors/{competitorId}", h.UnlinkKeywordCompetitor)
		})

		r.Route("/review-jobs", func(r chi.Router) {
			r.Get("/", h.ListReviewJobs)
			r.Post("/", h.CreateReviewJob)
			r.Get("/{jobId}", h.GetReviewJob)
			r.Delete("/{jobId}", h.DeleteReviewJob)
			r.Get("/{jobId}/reviews", h.ListJobReviews)
			r.Post("/{jobId}/cancel", h.CancelReviewJob)
			r.Post("/{jobId}/retry", h.RetryReviewJob)
		})

		r.Route("/scan-jobs", func(r chi.Router) {
			r.Get("/", h.ListScanJobs)
			r.Post("/", h.CreateScanJob)
			r.Get("/{jobId}", h.GetScanJob)
			r.Get("/{jobId}/summary", h.GetScanJobSummary)
			r.Delete("/{jobId}", h.DeleteScanJob)
			r.Post("/{jobId}/cancel", h.CancelScanJob)
			r.Post("/{jobId}/retry", h.RetryScanJob)
		})

		r.Route("/competitor-jobs", func(r chi.Router) {
			r.Get("/", h.ListCompetitorJobs)
			r.Post("/", h.CreateCompetitorJob)
			r.Get("/{jobId}", h.GetCompetitorJob)
			r.Delete("/{jobId}", h.DeleteCompetitorJob)
			r.Post("/{jobId}/cancel", h.CancelCompetitorJob)
			r.Post("/{jobId}/retry", h.RetryCompetitorJob)
		})

		r.Get("/asin-history/{asin}", h.GetAsinHistory)
	})

	// Start server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		log.Printf("Server listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if w != nil {
		if err := w.Shutdown(shutdownCtx); err != nil {
			log.Printf("Worker shutdown: %v", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
	log.Println("Shutdown complete")
}
