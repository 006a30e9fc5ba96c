package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/gokg"
)

type phaseFunc func(*gokg.Pipeline, context.Context) (gokg.PhaseStats, error)

func newPhaseCmd(use, short string, run phaseFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPipeline(cmd)
			if err != nil {
				return err
			}
			defer p.Close()
			st, err := run(p, cmd.Context())
			printStats(cmd.OutOrStdout(), st)
			return err
		},
	}
}

func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Run every pipeline phase, reusing existing stage files on confirmation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPipeline(cmd)
			if err != nil {
				return err
			}
			defer p.Close()
			all, err := p.RunAll(cmd.Context())
			for _, st := range all {
				printStats(cmd.OutOrStdout(), st)
			}
			return err
		},
	}
}

func openPipeline(cmd *cobra.Command) (*gokg.Pipeline, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	confirm, err := confirmerFor(cmd)
	if err != nil {
		return nil, err
	}
	return gokg.OpenPipeline(cfg, confirm)
}

func printStats(w io.Writer, st gokg.PhaseStats) {
	if st.Phase == "" {
		return
	}
	name := color.New(color.FgCyan, color.Bold).Sprintf("%-12s", st.Phase)
	line := fmt.Sprintf("%s entities=%d relations=%d", name, st.Entities, st.Relations)
	if st.Skipped > 0 {
		line += color.YellowString(" skipped=%d", st.Skipped)
	}
	if st.Reused {
		line += color.GreenString(" (reused)")
	}
	fmt.Fprintf(w, "%s elapsed=%s\n", line, st.Elapsed.Round(time.Millisecond))
}
