// Command server exposes the question answering service over HTTP.
//
// The chunk store needs SQLite's FTS5 module, so build with the
// sqlite_fts5 tag:
//
//	go run -tags sqlite_fts5 ./cmd/server \
//	  -config gokg.yaml \
//	  -addr :8000 \
//	  -docs data/pdfs
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/brunobiangulo/gokg"
	"github.com/brunobiangulo/gokg/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML or JSON)")
	addr := flag.String("addr", ":8000", "Listen address")
	docsDir := flag.String("docs", "data/pdfs", "Directory of guides served under /docs/")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("reading .env", "error", err)
	}

	cfg := gokg.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = gokg.LoadConfig(*configPath); err != nil {
			slog.Error("loading config", "error", err)
			os.Exit(1)
		}
	}
	cfg.ApplyEnv()

	ctx := context.Background()
	shutdownTracing := telemetry.Init(ctx, telemetry.Config{ServiceName: "gokg-server"})

	aggCfg := cfg
	aggCfg.Mode = gokg.ModeAggregated
	aggregated, err := gokg.New(ctx, aggCfg)
	if err != nil {
		slog.Error("creating aggregated service", "error", err)
		os.Exit(1)
	}
	defer aggregated.Close()

	// Raw questions are optional: the hybrid source needs node embeddings
	// and an embedding provider.
	rawCfg := cfg
	rawCfg.Mode = gokg.ModeHybrid
	var raw asker
	if hybrid, err := gokg.New(ctx, rawCfg); err != nil {
		slog.Warn("raw data service unavailable", "error", err)
	} else {
		defer hybrid.Close()
		raw = hybrid
	}

	var docs http.Handler
	if info, err := os.Stat(*docsDir); err == nil && info.IsDir() {
		docs = http.StripPrefix("/docs/", http.FileServer(http.Dir(*docsDir)))
		slog.Info("serving guides", "dir", *docsDir)
	} else {
		slog.Warn("guides directory not found, /docs disabled", "dir", *docsDir)
	}

	router := newRouter(routerConfig{
		Aggregated:  aggregated,
		Raw:         raw,
		Docs:        docs,
		APIKey:      os.Getenv("GOKG_API_KEY"),
		CORSOrigins: strings.TrimSpace(os.Getenv("GOKG_CORS_ORIGINS")),
	})

	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // answers can take a while
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", *addr, "raw_data", raw != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("tracing shutdown", "error", err)
	}
	slog.Info("server stopped")
}
