// Package fetch retrieves raw EMI payloads for the ingestion pipeline.
//
// This package contains four main components:
//
// Descriptor: identifies one payload (a local file or an HTTP URL) together
// with the parse options the row parser needs. Descriptors are built from
// the source catalog and, for remote origins, can carry an EMI date-range
// query window.
//
// Fetcher: retrieves every descriptor in order, absorbing per-source
// failures into Result values so one broken source never aborts its
// siblings. HTTP requests are paced by a politeness rate limit and bounded
// by a per-request timeout.
//
// Cache: the merged-artifact store consulted before any fetching happens.
// The file-backed implementation publishes artifacts temp-then-rename; an
// in-memory implementation serves tests.
//
// DiscoverCSVLinks: scrapes an EMI dataset listing page for CSV hrefs as a
// dynamic alternative to the static catalog.
//
// Example usage:
//
//	fetcher := fetch.NewFetcher(fetch.DefaultConfig(), logger)
//	descriptors := fetch.FromCatalog(catalog, paths)
//	results, err := fetcher.FetchAll(ctx, descriptors)
package fetch
