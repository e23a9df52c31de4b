package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/siftrapp/siftr-server/internal/config"
	"github.com/siftrapp/siftr-server/internal/manifest"
	"github.com/siftrapp/siftr-server/internal/search"
	"github.com/siftrapp/siftr-server/internal/service"
	"github.com/siftrapp/siftr-server/internal/store"
	"github.com/siftrapp/siftr-server/internal/store/kv"
	"github.com/siftrapp/siftr-server/internal/store/sqlite"
	"github.com/siftrapp/siftr-server/internal/validation"
)

var (
	dataPath     string
	storeBackend string
	concurrency  int
)

var importCmd = &cobra.Command{
	Use:   "import <manifest>",
	Short: "Load every sheet listed in a manifest into a server data directory",
	Long: `Import reads a dataset manifest and writes each sheet into the store and
search index under --data-path. Stop the server first: the Badger store
allows a single writer process.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&dataPath, "data-path", "", "server data directory (required)")
	importCmd.Flags().StringVar(&storeBackend, "store", config.BackendBadger, "store backend: badger or sqlite")
	importCmd.Flags().IntVar(&concurrency, "concurrency", service.DefaultImportConcurrency, "sheets imported in parallel")
	_ = importCmd.MarkFlagRequired("data-path")
}

func runImport(cmd *cobra.Command, args []string) error {
	m, err := manifest.Load(args[0])
	if err != nil {
		return err
	}

	cfg := &config.Config{
		Data:  config.DataConfig{Path: dataPath},
		Store: config.StoreConfig{Backend: storeBackend},
	}
	if err := os.MkdirAll(cfg.Data.Path, 0o750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	log := cliLogger()

	var st store.Store
	switch cfg.Store.Backend {
	case config.BackendBadger:
		st, err = kv.Open(cfg.StorePath(), log)
	case config.BackendSQLite:
		st, err = sqlite.Open(cfg.StorePath(), log)
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return err
	}
	defer st.Close()

	index, err := search.NewSearchIndex(search.Options{DataPath: cfg.Data.Path, Logger: log})
	if err != nil {
		return err
	}
	defer index.Close()
	st.SetSearchIndexer(service.NewSearchService(index, st, log))

	datasets := service.NewDatasetService(st, validation.New(), log)
	datasets.SetImportConcurrency(concurrency)

	results, err := datasets.ImportManifest(cmd.Context(), m)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, r := range results {
		verb := "replaced"
		if r.Created {
			verb = "created"
		}
		fmt.Fprintf(out, "%-8s %-24s %5d species, %d dropped\n",
			verb, r.Dataset.Slug, r.Dataset.SpeciesCount, r.Dataset.DroppedRows)
	}
	return nil
}
