package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// SourceSpec describes one raw source in the catalog: where to get it and
// how its CSV is laid out. Location is either an HTTP(S) URL or a path on
// disk (absolute, or relative to the executable directory).
type SourceSpec struct {
	SeriesID        string `yaml:"series_id" validate:"required"`
	Dataset         string `yaml:"dataset" validate:"required,oneof=hydro_storage ftr_prices"`
	Location        string `yaml:"location" validate:"required"`
	SkipRows        int    `yaml:"skip_rows" validate:"gte=0"`
	TimestampColumn string `yaml:"timestamp_column" validate:"required"`
	TimeColumn      string `yaml:"time_column"`
	ValueColumn     string `yaml:"value_column" validate:"required"`
	// SeriesColumn optionally names a column whose per-row value overrides
	// SeriesID, for files that carry several series at once.
	SeriesColumn string `yaml:"series_column"`
}

// FuturesBoard identifies one futures snapshot: a hub crossed with a
// contract duration.
type FuturesBoard struct {
	Hub      string `yaml:"hub" validate:"required,oneof=BEN OTA"`
	Duration string `yaml:"duration" validate:"required,oneof=QTR MON"`
	// Snapshot optionally overrides the default snapshot path.
	Snapshot string `yaml:"snapshot"`
}

// Key returns the board key used in snapshot payloads (e.g. BEN_QTR)
func (b FuturesBoard) Key() string {
	return b.Hub + "_" + b.Duration
}

// Catalog is the parsed source catalog
type Catalog struct {
	Hydro   []SourceSpec   `yaml:"hydro" validate:"dive"`
	FTR     []SourceSpec   `yaml:"ftr" validate:"dive"`
	Futures []FuturesBoard `yaml:"futures" validate:"dive"`
}

var catalogValidator = validator.New()

// LoadCatalog reads the source catalog from path. When the file does not
// exist the embedded default catalog is returned instead, so a bare install
// still knows the standard EMI sources.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" || !FileExists(path) {
		return DefaultCatalog()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source catalog %s: %w", path, err)
	}

	return parseCatalog(data)
}

// parseCatalog unmarshals and validates catalog YAML
func parseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse source catalog: %w", err)
	}

	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	return &catalog, nil
}

// Validate checks every catalog entry and rejects duplicate series IDs
func (c *Catalog) Validate() error {
	if err := catalogValidator.Struct(c); err != nil {
		return fmt.Errorf("source catalog validation failed: %w", err)
	}

	seen := make(map[string]bool)
	for _, spec := range c.AllSources() {
		if seen[spec.SeriesID] {
			return fmt.Errorf("duplicate series_id in source catalog: %s", spec.SeriesID)
		}
		seen[spec.SeriesID] = true
	}

	boards := make(map[string]bool)
	for _, board := range c.Futures {
		if boards[board.Key()] {
			return fmt.Errorf("duplicate futures board in source catalog: %s", board.Key())
		}
		boards[board.Key()] = true
	}

	return nil
}

// AllSources returns every CSV source spec in catalog order
func (c *Catalog) AllSources() []SourceSpec {
	sources := make([]SourceSpec, 0, len(c.Hydro)+len(c.FTR))
	sources = append(sources, c.Hydro...)
	sources = append(sources, c.FTR...)
	return sources
}

// SourcesForDataset returns the specs belonging to one dataset
func (c *Catalog) SourcesForDataset(dataset string) []SourceSpec {
	switch dataset {
	case DatasetHydro:
		return c.Hydro
	case DatasetFTR:
		return c.FTR
	default:
		return nil
	}
}

// GetLakeIsland determines the island for a given hydro series identifier
func GetLakeIsland(seriesID string) string {
	// North Island storage lakes
	north := []string{"lake_taupo", "lake_waikaremoana"}

	// South Island storage lakes
	south := []string{"lake_hawea", "lake_manapouri", "lake_ohau", "lake_pukaki",
		"lake_te_anau", "lake_tekapo", "lake_wanaka", "lake_wakatipu"}

	id := strings.ToLower(seriesID)

	for _, lake := range north {
		if id == lake {
			return "north"
		}
	}

	for _, lake := range south {
		if id == lake {
			return "south"
		}
	}

	// Default to "unknown" for uncategorized series
	return "unknown"
}
