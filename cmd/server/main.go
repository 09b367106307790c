package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/podiumai/coach-gateway/internal/config"
	"github.com/podiumai/coach-gateway/internal/observability"
	"github.com/podiumai/coach-gateway/internal/session"
	"github.com/podiumai/coach-gateway/internal/speech"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	tuning, err := config.LoadTuning(cfg.TuningProfile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load tuning profile: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("whisper_url", cfg.WhisperURL).
		Bool("native_stt", cfg.DeepgramAPIKey != "").
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Coach Gateway Service starting")

	// Create HTTP server
	mux := http.NewServeMux()

	// Register the practice session WebSocket handler
	mux.HandleFunc("/sessions/stream", session.Handler(cfg, tuning))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness endpoint. Whisper being down is reported as degraded but
	// does not make the gateway unready: sessions fall through to the
	// browser relay tier.
	whisperCheck := func(ctx context.Context) (bool, error) {
		client := speech.NewWhisperClient(cfg, zerolog.Nop())
		if err := client.Health(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	nativeCheck := func(ctx context.Context) (bool, error) {
		// Config presence only; a live probe per readiness poll would
		// burn API quota
		return cfg.DeepgramAPIKey != "", nil
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.DependencyCheck{
		"whisper":  {Probe: whisperCheck, Gating: false},
		"deepgram": {Probe: nativeCheck, Gating: false},
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// WebSocket sessions hold the connection open well past any
		// write timeout; rely on per-message deadlines instead
		IdleTimeout: 60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/sessions/stream", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
