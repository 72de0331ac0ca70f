// Package pipeline orchestrates a full ingestion run: fetch every configured
// source, parse the payloads into series records, merge them into the unified
// table and aggregate per (date, series) group.
//
// A run is fault-absorbing by construction. Sources that cannot be fetched or
// parsed are recorded in the run diagnostics and skipped; rows with unreadable
// timestamps or values are counted and dropped. Only three things fail a run:
// losing every source, an empty merge result, and context cancellation.
//
// Core components:
//
// Pipeline: executes runs. Each run gets a fresh id, an OpenTelemetry span
// and per-stage metrics, and reports progress through a ProgressReporter so
// the WebSocket layer can stream stage updates without the pipeline knowing
// about transports.
//
// RunStore: the shared read side. Handlers and the scheduler read the latest
// successful result and a bounded diagnostics history from it.
//
// The merged artifact cache short-circuits repeat runs: when the cache holds
// an artifact for the descriptor set, the run decodes it instead of fetching,
// and every source outcome is marked as served from cache. Force bypasses
// the lookup but still overwrites the artifact on success.
//
// Example usage:
//
//	p := pipeline.New(pipeline.Dependencies{
//		Fetcher: fetch.NewFetcher(fetch.DefaultConfig(), logger),
//		Cache:   fetch.NewFileCache(paths.CacheDir, logger),
//		Logger:  logger,
//	})
//
//	result, err := p.Run(ctx, pipeline.RunOptions{
//		Descriptors: fetch.FromCatalog(catalog, paths),
//		Trigger:     pipeline.TriggerScheduled,
//	})
//	if err != nil {
//		store.RecordFailure(result.Diagnostics)
//		return err
//	}
//	store.SetLatest(result)
package pipeline
