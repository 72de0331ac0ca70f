// Package config provides centralized configuration management for the
// emicli pipeline. It handles loading configuration from multiple sources,
// validation, and provides a type-safe API for accessing configuration
// values throughout the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//  1. Environment variables (highest priority)
//  2. Configuration files (YAML)
//  3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern EMI_* for namespacing:
//
//	EMI_SERVER_PORT=8080
//	EMI_LOGGING_LEVEL=info
//	EMI_PIPELINE_FETCH_TIMEOUT=2m
//	EMI_PIPELINE_MAX_PARALLEL=4
//	EMI_SCHEDULER_ENABLED=true
//
// # Path Management
//
// The package provides centralized path management through the Paths type,
// which handles all file system paths relative to the executable location:
//
//	paths, err := config.GetPaths()
//	if err != nil {
//	    return err
//	}
//	if err := paths.EnsureDirectories(); err != nil {
//	    return err
//	}
//	cachePath := paths.GetCachePath("ab12cd.csv")
//	reportPath := paths.GetAggregateCSVPath("ftr_prices", from, to)
//
// # Source Catalog
//
// The raw data sources (hydro lake storage URLs, staged FTR node files,
// futures boards) are described by a YAML catalog. A default catalog is
// embedded in the binary; an on-disk data/sources/sources.yml overrides it:
//
//	catalog, err := config.LoadCatalog(cfg.GetSourcesFile())
//
// # Usage
//
// Load configuration at application startup, after godotenv has populated
// the environment:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
