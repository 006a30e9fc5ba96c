package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/gokg/graph"
)

func newCheckpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Inspect or remove extraction checkpoints",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "latest",
			Short: "Show the most recent extraction checkpoint",
			Args:  cobra.NoArgs,
			RunE:  runCheckpointsLatest,
		},
		&cobra.Command{
			Use:   "clean",
			Short: "Delete every extraction checkpoint",
			Args:  cobra.NoArgs,
			RunE:  runCheckpointsClean,
		},
	)
	return cmd
}

func checkpointPattern(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	if cfg.CheckpointDir == "" {
		return "", errors.New("checkpoints are disabled (checkpoint_dir is empty)")
	}
	return filepath.Join(cfg.CheckpointDir, graph.CheckpointGlob), nil
}

func runCheckpointsLatest(cmd *cobra.Command, args []string) error {
	pattern, err := checkpointPattern(cmd)
	if err != nil {
		return err
	}
	path, err := graph.FindLatestCheckpoint(pattern)
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "no checkpoints found")
		return nil
	}
	cp, err := graph.LoadCheckpoint(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	state := color.YellowString("in progress")
	if cp.Completed {
		state = color.GreenString("completed")
	}
	fmt.Fprintf(out, "%s\n", color.New(color.Bold).Sprint(path))
	fmt.Fprintf(out, "  chunks:     %d/%d (%s)\n", cp.ProcessedCount, cp.TotalChunks, state)
	fmt.Fprintf(out, "  entities:   %d\n", len(cp.Entities))
	fmt.Fprintf(out, "  relations:  %d\n", len(cp.Relations))
	fmt.Fprintf(out, "  last chunk: %s\n", cp.LastProcessedChunkID)
	fmt.Fprintf(out, "  saved:      %s\n", cp.Timestamp.Format(time.DateTime))
	return nil
}

func runCheckpointsClean(cmd *cobra.Command, args []string) error {
	pattern, err := checkpointPattern(cmd)
	if err != nil {
		return err
	}
	removed, err := graph.CleanupCheckpoints(pattern)
	for _, p := range removed {
		fmt.Fprintln(cmd.OutOrStdout(), color.RedString("removed"), p)
	}
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no checkpoints found")
	}
	return nil
}
