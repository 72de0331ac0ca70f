// Package app wires the EMI data toolkit's web server: configuration,
// logging, telemetry, the ingestion pipeline, the services over it and the
// HTTP surface are assembled here at startup.
//
// # Initialization Flow
//
// The typical initialization sequence:
//
//  1. Load configuration from environment and files
//  2. Initialize logging and OpenTelemetry
//  3. Resolve executable-relative paths and the source catalog
//  4. Build the fetcher, cache, pipeline and run store
//  5. Initialize services with their dependencies
//  6. Set up HTTP handlers and middleware
//  7. Configure and start the HTTP server
//
// # Usage
//
// The main entry point is typically:
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := application.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// Run handles SIGINT and SIGTERM so that:
//
//   - Active requests are completed
//   - The refresh scheduler stops taking new runs
//   - WebSocket connections are closed cleanly
//   - Final metrics are flushed
//
// All initialization errors are returned to the caller. The package never
// calls os.Exit() directly; main controls the exit process.
package app
