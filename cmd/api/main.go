package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/promptreel/internal/api"
	"github.com/bobarin/promptreel/internal/config"
	"github.com/bobarin/promptreel/internal/logger"
	"github.com/bobarin/promptreel/internal/metadata"
	"github.com/bobarin/promptreel/internal/metrics"
	"github.com/bobarin/promptreel/internal/services"
	"github.com/bobarin/promptreel/internal/session"
	"github.com/bobarin/promptreel/internal/storage"
	"github.com/bobarin/promptreel/internal/worker"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info("starting promptreel", "port", cfg.APIPort, "provider", cfg.ImageProvider, "max_concurrent_jobs", cfg.MaxConcurrentJobs)

	if !cfg.AdminEnabled() {
		log.Warn("ADMIN_PASSWORD is not set; admin panel is inaccessible")
	}

	met := metrics.New()

	// Filesystem layout; frames left over from a previous process are useless
	stor, err := storage.New(cfg.FramesDir, cfg.VideosDir, log)
	if err != nil {
		log.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	if err := stor.PurgeWorkspaces(); err != nil {
		log.Warn("failed to purge stale frames", "error", err)
	}

	meta := metadata.New(cfg.MetadataFile, stor, log)
	if _, err := meta.Load(); err != nil {
		log.Error("failed to read metadata", "path", cfg.MetadataFile, "error", err)
		os.Exit(1)
	}

	// Image provider
	var provider services.ImageProvider
	switch cfg.ImageProvider {
	case config.ProviderImagen:
		provider = services.NewImagenService(cfg.GeminiKey, cfg.ImagenModel)
	case config.ProviderOpenAI:
		provider = services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIImageModel)
	default:
		provider = services.NewPollinationsService(cfg.PollinationsURL)
	}
	log.Info("image provider ready", "provider", provider.Name())

	fetcher := services.NewFetcher(provider, services.DefaultRetryPolicy(), log, met)
	ffmpegSvc := services.NewFFmpegService(cfg.FFmpegPath, cfg.FFprobePath, log)

	w := worker.New(stor, meta, fetcher, ffmpegSvc, met, log, worker.Options{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		FramePacing:       cfg.FramePacing,
	})

	// Sessions: Redis when configured, in-memory otherwise
	var sessionStore session.Store
	if cfg.RedisURL != "" {
		rs, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to session store", "error", err)
			os.Exit(1)
		}
		defer rs.Close()
		sessionStore = rs
		log.Info("sessions stored in redis")
	} else {
		sessionStore = session.NewMemoryStore()
	}

	sessions, generated := session.NewManager(cfg.SessionSecret, sessionStore, session.DefaultTTL)
	if generated {
		log.Warn("SESSION_SECRET is not set; using a random key, admin sessions end on restart")
	}

	handler, err := api.NewHandler(w, meta, stor, sessions, met, log, api.HandlerConfig{
		AdminPassword: cfg.AdminPassword,
		DownloadName:  cfg.DownloadName,
	})
	if err != nil {
		log.Error("failed to create handler", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(handler, api.RouterConfig{
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	}, log, met)

	// No write timeout: a generation request stays open for minutes
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("api server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server, waiting for running generations")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		// anything still running after the grace period is cancelled
		w.Shutdown()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server exited")
}
