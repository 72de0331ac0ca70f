package config

import (
	_ "embed"
	"sync"
)

// The default catalog ships inside the binary so a bare install can run a
// refresh without any configuration files on disk.
//
//go:embed sources.yml
var defaultCatalogYAML []byte

var (
	defaultCatalog     *Catalog
	defaultCatalogErr  error
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the embedded source catalog
func DefaultCatalog() (*Catalog, error) {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = parseCatalog(defaultCatalogYAML)
	})

	if defaultCatalogErr != nil {
		return nil, defaultCatalogErr
	}
	return defaultCatalog, nil
}
