package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"taskcreator/pkg/analysis"
	"taskcreator/pkg/blobstore"
	"taskcreator/pkg/cache"
	"taskcreator/pkg/config"
	"taskcreator/pkg/location"
	"taskcreator/pkg/media"
	"taskcreator/pkg/pipeline"
	"taskcreator/pkg/server"
	"taskcreator/pkg/session"
	"taskcreator/pkg/store"
	"taskcreator/pkg/transcribe"
)

func main() {
	// Load config.yml
	cfg, err := config.LoadConfig("config.yml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Load .env for secrets
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	redisURL := os.Getenv("REDIS_URL")

	if apiKey == "" {
		log.Fatal("Missing required environment variable: OPENAI_API_KEY")
	}
	if redisURL == "" {
		log.Fatal("Missing required environment variable: REDIS_URL")
	}

	// Key-value tier: task collection and session recovery
	kv, err := cache.NewRedisCache(redisURL, cfg.Storage.KeyPrefix)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer kv.Close()

	taskStore := store.New(kv, cfg.Storage.KeyPrefix)
	sessions := session.New(kv, cfg.Storage.KeyPrefix, time.Duration(cfg.Storage.SessionTTLMinutes)*time.Minute)

	// Blob tier: playable video originals
	blobs, err := blobstore.Open(cfg.Storage.VideoDBPath)
	if err != nil {
		log.Fatalf("Failed to open video store: %v", err)
	}
	if err := blobs.CleanupOlderThan(cfg.Storage.RetentionDays); err != nil {
		log.Printf("Video retention cleanup failed: %v", err)
	}

	analysisOpts := []analysis.Option{
		analysis.WithModel(cfg.Analysis.Model),
		analysis.WithMaxTokens(int64(cfg.Analysis.MaxTokens)),
		analysis.WithTemperature(cfg.Analysis.Temperature),
		analysis.WithRetryPolicy(analysis.RetryPolicy{
			MaxAttempts: cfg.Analysis.MaxAttempts,
			Backoff:     analysis.DefaultRetryPolicy().Backoff,
		}),
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		analysisOpts = append(analysisOpts, analysis.WithBaseURL(baseURL))
	}
	analyzer, err := analysis.NewClient(apiKey, analysisOpts...)
	if err != nil {
		log.Fatalf("Failed to create analysis client: %v", err)
	}

	transcriber, err := transcribe.NewClient(apiKey, transcribe.WithLanguage(cfg.Transcription.Language))
	if err != nil {
		log.Fatalf("Failed to create transcription client: %v", err)
	}

	compressionOpts := media.Options{
		Quality:           cfg.Compression.Quality,
		MaxWidth:          cfg.Compression.MaxWidth,
		MaxHeight:         cfg.Compression.MaxHeight,
		ThresholdBytes:    int64(cfg.Compression.ThresholdKB) * 1024,
		FallbackQuality:   cfg.Compression.FallbackQuality,
		FallbackMaxWidth:  cfg.Compression.FallbackMaxWidth,
		FallbackMaxHeight: cfg.Compression.FallbackMaxHeight,
		FrameQuality:      cfg.Compression.FrameQuality,
	}
	compressor := media.NewCompressor(compressionOpts)

	extractor := media.NewFrameExtractor(compressionOpts)
	if !extractor.Available() {
		log.Println("ffmpeg/ffprobe not found on PATH, video uploads will fail")
	}

	geocoder := location.NewGeocoder(location.WithBaseURL(cfg.Geocoding.BaseURL))
	locator := location.NewResolver(geocoder)

	flow := pipeline.New(
		compressor,
		extractor,
		transcriber,
		analyzer,
		locator,
		taskStore,
		blobs,
		pipeline.Config{AnalysisFrames: cfg.Compression.AnalysisFrames},
	)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(flow, taskStore, blobs, sessions, cfg.Server.Origin).Router(),
	}

	go func() {
		log.Printf("Task creator listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for signal
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
