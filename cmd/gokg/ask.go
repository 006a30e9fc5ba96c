package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/gokg"
	"github.com/brunobiangulo/gokg/reasoning"
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the knowledge graph",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	cmd.Flags().Bool("raw", false, "Query the raw graph with the hybrid retriever")
	cmd.Flags().Bool("json", false, "Print the full result as JSON")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if raw, _ := cmd.Flags().GetBool("raw"); raw {
		cfg.Mode = gokg.ModeHybrid
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	svc, err := gokg.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Ask(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printAnswer(cmd.OutOrStdout(), res)
	return nil
}

func printAnswer(w io.Writer, res *reasoning.Result) {
	fmt.Fprintln(w, res.Answer)
	if len(res.Sources) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, color.New(color.Bold).Sprint("Fonti:"))
		for _, s := range res.Sources {
			fmt.Fprintf(w, "  %s %s", color.CyanString(s.SourceFile), s.Page)
			if s.Section != "" {
				fmt.Fprintf(w, " - %s", s.Section)
			}
			fmt.Fprintln(w)
		}
	}
	for _, issue := range res.Issues {
		fmt.Fprintln(w, color.YellowString("! %s", issue))
	}
	fmt.Fprintf(w, "%s\n", color.HiBlackString("[%s, %dms]", res.DataType, res.ElapsedMs))
}
