package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/gokg/chunker"
	"github.com/brunobiangulo/gokg/parser"
	"github.com/brunobiangulo/gokg/store"
)

func newPrepareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare <dir>",
		Short: "Parse the guides in a directory and write the chunk file",
		Args:  cobra.ExactArgs(1),
		RunE:  runPrepare,
	}
	cmd.Flags().StringP("output", "o", "", "Chunk file to write (default: chunks_path from the config)")
	cmd.Flags().Int("max-words", chunker.DefaultMaxWords, "Upper bound on words per chunk")
	return cmd
}

func runPrepare(cmd *cobra.Command, args []string) error {
	out, err := flagString(cmd, "output")
	if err != nil {
		return err
	}
	if out == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out = cfg.ChunksPath
	}
	maxWords, err := cmd.Flags().GetInt("max-words")
	if err != nil {
		return err
	}

	chunks, files, err := prepareDir(cmd, args[0], chunker.New(chunker.Config{MaxWords: maxWords}))
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks produced from %s", args[0])
	}
	if err := store.WriteChunks(out, chunks); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d chunks from %d files -> %s\n",
		color.GreenString("prepared"), len(chunks), files, out)
	return nil
}

// prepareDir parses every supported file under dir in lexical order.
// Files that fail to parse are reported and skipped.
func prepareDir(cmd *cobra.Command, dir string, c *chunker.Chunker) ([]store.Chunk, int, error) {
	reg := parser.NewRegistry()
	var (
		chunks []store.Chunk
		files  int
	)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		p, err := reg.ForPath(path)
		if err != nil {
			slog.Debug("prepare: skipping unsupported file", "path", path)
			return nil
		}
		res, err := p.Parse(cmd.Context(), path)
		if err != nil {
			if errors.Is(err, cmd.Context().Err()) {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), color.YellowString("skipped"), path+":", err)
			return nil
		}
		got := c.Chunk(filepath.Base(path), res.Sections)
		slog.Info("prepare: parsed", "file", filepath.Base(path),
			"sections", len(res.Sections), "toc", len(res.TOC), "chunks", len(got))
		chunks = append(chunks, got...)
		files++
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walking %s: %w", dir, err)
	}
	return chunks, files, nil
}
