// Package services implements the business logic layer between the HTTP
// handlers and the ingestion pipeline.
//
// # Services
//
//	DataService    - read side: series summaries, filtered aggregates, run
//	                 diagnostics, CSV export streaming and report downloads,
//	                 all answered from the in-memory RunStore.
//	RefreshService - write side: triggers pipeline runs (on demand or on a
//	                 cron schedule), publishes results to the RunStore and
//	                 rewrites the downloadable report files.
//	HealthService  - health, readiness and liveness probes plus build
//	                 identity.
//
// # Conventions
//
// Services take their dependencies through constructors and log through an
// injected *slog.Logger tagged with a component attribute. Methods accept a
// context.Context for cancellation and tracing. Errors returned to handlers
// are either the package sentinels below or wrapped causes:
//
//	ErrNoRunAvailable - no pipeline run has completed yet (maps to 404)
//	ErrNoDataInRange  - the filter matched nothing (maps to 404)
//	ErrRefreshRunning - a refresh is already in flight (maps to 409)
//
// The refresh flow is intentionally asynchronous: TriggerRefresh returns a
// run id immediately and the run reports its progress through the pipeline's
// ProgressReporter, so HTTP clients poll /api/diagnostics or subscribe to
// the WebSocket stream rather than holding a request open for the duration
// of a multi-source fetch.
package services
