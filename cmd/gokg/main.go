// Command gokg builds the EmPULIA knowledge graph and answers questions
// against it from the terminal.
//
// The chunk store needs SQLite's FTS5 module, so build with the
// sqlite_fts5 tag:
//
//	go run -tags sqlite_fts5 ./cmd/gokg prepare data/pdfs -o data/chunks.json
//	go run -tags sqlite_fts5 ./cmd/gokg build --config gokg.yaml
//	go run -tags sqlite_fts5 ./cmd/gokg ask --raw "Come si presenta un'offerta?"
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/gokg"
	"github.com/brunobiangulo/gokg/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var shutdownTracing func(context.Context) error

	rootCmd := &cobra.Command{
		Use:   "gokg",
		Short: "Knowledge graph pipeline and question answering for the EmPULIA guides",
		Long: `gokg turns the EmPULIA guides into a Neo4j knowledge graph and answers
questions from it.

The offline pipeline runs prepare, extract, aggregate, cluster, load and,
for the hybrid retriever, embed. Every phase writes its output under the
configured output directory so later phases can be rerun on their own.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("reading .env: %w", err)
			}
			level, err := flagString(cmd, "log-level")
			if err != nil {
				return err
			}
			if level == "" {
				level = os.Getenv("GOKG_LOG_LEVEL")
			}
			setupLogging(level)
			shutdownTracing = telemetry.Init(cmd.Context(), telemetry.Config{ServiceName: "gokg"})
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if shutdownTracing != nil {
				return shutdownTracing(context.Background())
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "debug|info|warn|error (default info, or GOKG_LOG_LEVEL)")
	rootCmd.PersistentFlags().String("mode", "", "Knowledge source: aggregated|hybrid")
	rootCmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to every reuse and resume question")

	rootCmd.AddCommand(
		newPrepareCmd(),
		newPhaseCmd("extract", "Extract entity and relation mentions from the chunks", (*gokg.Pipeline).RunExtraction),
		newPhaseCmd("aggregate", "Merge raw mentions by normalized name", (*gokg.Pipeline).RunAggregation),
		newPhaseCmd("cluster", "Merge aggregated records that denote the same concept", (*gokg.Pipeline).RunClustering),
		newPhaseCmd("load", "Load the clustered graph into Neo4j", (*gokg.Pipeline).RunLoad),
		newPhaseCmd("embed", "Embed graph nodes and create the vector index", (*gokg.Pipeline).RunEnrich),
		newBuildCmd(),
		newAskCmd(),
		newCheckpointsCmd(),
	)
	return rootCmd
}

func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// loadConfig reads --config over the defaults, then the environment, then
// --mode.
func loadConfig(cmd *cobra.Command) (gokg.Config, error) {
	path, err := flagString(cmd, "config")
	if err != nil {
		return gokg.Config{}, err
	}
	cfg := gokg.DefaultConfig()
	if path != "" {
		if cfg, err = gokg.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv()
	mode, err := flagString(cmd, "mode")
	if err != nil {
		return cfg, err
	}
	if mode != "" {
		cfg.Mode = gokg.Mode(strings.ToLower(mode))
	}
	return cfg, cfg.Validate()
}

func flagString(cmd *cobra.Command, name string) (string, error) {
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", fmt.Errorf("reading --%s: %w", name, err)
	}
	return strings.TrimSpace(value), nil
}
