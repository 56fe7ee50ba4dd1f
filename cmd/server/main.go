package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	browsecomp "github.com/lzyq-hntvu/browsecomp-V3"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML or JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	cfg, err := browsecomp.LoadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	apiKey := os.Getenv("BROWSECOMP_API_KEY")
	corsOrigins := os.Getenv("BROWSECOMP_CORS_ORIGINS")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine, err := browsecomp.New(cfg, browsecomp.WithMetricsRegistry(registry))
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	mux := newMux(newHandler(engine), registry)

	handler := buildHandler(mux, registry, apiKey, corsOrigins)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 6 * time.Minute, // generation requests time out after 5
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

func newMux(h *handler, registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate", h.handleGenerate)
	mux.HandleFunc("GET /templates", h.handleTemplates)
	mux.HandleFunc("GET /questions", h.handleListQuestions)
	mux.HandleFunc("GET /questions/{id}", h.handleGetQuestion)
	mux.HandleFunc("POST /questions/similar", h.handleSimilar)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return mux
}

// buildHandler wraps mux: request id -> recovery -> cors -> auth -> metrics -> logging -> mux
func buildHandler(mux *http.ServeMux, registry prometheus.Registerer, apiKey, corsOrigins string) http.Handler {
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = metricsMiddleware(registry, handler)
	handler = authMiddleware(apiKey, handler)
	handler = corsMiddleware(corsOrigins, handler)
	handler = recoveryMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}
