package providers

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/siftrapp/siftr-server/internal/config"
	"github.com/siftrapp/siftr-server/internal/logger"
	"github.com/siftrapp/siftr-server/internal/manifest"
	"github.com/siftrapp/siftr-server/internal/service"
	"github.com/siftrapp/siftr-server/internal/validation"
)

// ProvideValidator provides the shared struct validator.
func ProvideValidator(_ do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideDatasetService provides the dataset service.
func ProvideDatasetService(i do.Injector) (*service.DatasetService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	// Indexing hooks must be in place before the first import.
	_ = do.MustInvoke[*service.SearchService](i)

	events := do.MustInvoke[*SSEManagerHandle](i)

	svc := service.NewDatasetService(storeHandle.Store, validator, log.Component("datasets"))
	svc.SetImportConcurrency(cfg.Datasets.ImportConcurrency)
	svc.SetEventEmitter(events.Manager)
	return svc, nil
}

// Bootstrap holds the dataset manifest loaded at startup, if any.
type Bootstrap struct {
	Manifest *manifest.Manifest // nil when no manifest is configured
	Imported int
}

// ProvideBootstrap loads the configured manifest and imports every sheet it
// lists. A missing or broken sheet fails startup.
func ProvideBootstrap(i do.Injector) (*Bootstrap, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	datasets := do.MustInvoke[*service.DatasetService](i)

	if cfg.Datasets.ManifestPath == "" {
		log.Info("No dataset manifest configured - datasets can be uploaded via API")
		return &Bootstrap{}, nil
	}

	m, err := manifest.Load(cfg.Datasets.ManifestPath)
	if err != nil {
		return nil, err
	}

	results, err := datasets.ImportManifest(context.Background(), m)
	if err != nil {
		return nil, fmt.Errorf("import manifest %s: %w", cfg.Datasets.ManifestPath, err)
	}

	for _, r := range results {
		log.Info("Dataset ready",
			"slug", r.Dataset.Slug,
			"species", r.Dataset.SpeciesCount,
			"dropped_rows", r.Dataset.DroppedRows,
		)
	}

	return &Bootstrap{Manifest: m, Imported: len(results)}, nil
}
