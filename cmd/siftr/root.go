package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/siftrapp/siftr-server/internal/collection"
	"github.com/siftrapp/siftr-server/internal/ingest"
	"github.com/siftrapp/siftr-server/internal/logger"
	"github.com/siftrapp/siftr-server/internal/normalize"
)

var (
	verbose   bool
	format    string
	headerRow int
)

var rootCmd = &cobra.Command{
	Use:           "siftr",
	Short:         "Inspect and score plant identification sheets",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log normalizer diagnostics to stderr")

	for _, cmd := range []*cobra.Command{normalizeCmd, attributesCmd, scoreCmd} {
		cmd.Flags().StringVar(&format, "format", "", "sheet format: csv or tsv (default: from extension)")
		cmd.Flags().IntVar(&headerRow, "header-row", 0, "banner rows preceding the header")
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(importCmd)
}

func cliLogger() *slog.Logger {
	if !verbose {
		return logger.Discard()
	}
	return logger.New(logger.Config{
		Writer: os.Stderr,
		Level:  slog.LevelDebug,
	}).Logger
}

// loadSheet reads and normalizes one sheet into a collection index.
func loadSheet(path string) (*collection.Index, normalize.Result, error) {
	rows, err := ingest.ReadFile(path, ingest.Options{Format: format, HeaderRow: headerRow})
	if err != nil {
		return nil, normalize.Result{}, err
	}
	res := normalize.New(cliLogger()).Batch(rows)
	return collection.New(res.Species), res, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
