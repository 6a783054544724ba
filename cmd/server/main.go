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

	"github.com/lexiqai/dialogue-gateway/internal/config"
	"github.com/lexiqai/dialogue-gateway/internal/engine"
	"github.com/lexiqai/dialogue-gateway/internal/gateway"
	"github.com/lexiqai/dialogue-gateway/internal/observability"
	"github.com/lexiqai/dialogue-gateway/internal/responder"
	"github.com/lexiqai/dialogue-gateway/internal/stt"
	"github.com/lexiqai/dialogue-gateway/internal/tts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before the logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("stt_provider", cfg.STTProvider).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Dialogue Gateway starting")

	engines := buildEngines(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/audio", gateway.Handler(cfg, engines))
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"recognizer": func(ctx context.Context) (bool, error) {
			// Creating a recognizer validates configuration and, for the
			// streaming provider, connectivity.
			rec, err := engines.NewRecognizer()
			if err != nil {
				return false, err
			}
			defer rec.Close()
			return true, nil
		},
		"synthesizer": func(ctx context.Context) (bool, error) {
			if engines.Synthesizer == nil {
				return false, fmt.Errorf("synthesizer not configured")
			}
			return true, nil
		},
	}))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws/audio", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

// buildEngines wires the configured engine adapters. The responder and
// synthesizer are shared across sessions; recognizers are created per
// connection.
func buildEngines(cfg *config.Config) gateway.Engines {
	logger := observability.GetLogger()

	var newRecognizer func() (engine.Recognizer, error)
	switch cfg.STTProvider {
	case config.STTProviderDeepgram:
		newRecognizer = func() (engine.Recognizer, error) {
			return stt.NewDeepgramClient(cfg, logger)
		}
	default:
		newRecognizer = func() (engine.Recognizer, error) {
			return stt.NewHTTPClient(cfg), nil
		}
	}

	var resp engine.Responder
	if cfg.ResponderURL != "" {
		resp = responder.NewHTTPClient(cfg)
	} else {
		logger.Info().Msg("RESPONDER_URL not set, using built-in rule responder")
		resp = engine.NewRuleResponder()
	}

	return gateway.Engines{
		NewRecognizer: newRecognizer,
		Responder:     resp,
		Synthesizer:   tts.NewHTTPClient(cfg),
	}
}
