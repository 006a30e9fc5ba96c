package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/gokg/graph"
)

// newConfirmer asks on out and reads the answer from in. End of input
// counts as no.
func newConfirmer(in io.Reader, out io.Writer) graph.Confirmer {
	reader := bufio.NewReader(in)
	prompt := color.New(color.FgYellow, color.Bold)
	return graph.ConfirmFunc(func(question string) bool {
		prompt.Fprint(out, "? ")
		fmt.Fprintf(out, "%s [y/N] ", question)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(out)
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes", "s", "si", "sì":
			return true
		}
		return false
	})
}

func confirmerFor(cmd *cobra.Command) (graph.Confirmer, error) {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return nil, err
	}
	if yes {
		return graph.Always(true), nil
	}
	return newConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr()), nil
}
