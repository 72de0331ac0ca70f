package http

import "context"

// RefreshServiceInterface defines the refresh operations the data handler
// depends on. *services.RefreshService satisfies it.
type RefreshServiceInterface interface {
	// TriggerRefresh starts an asynchronous pipeline run and returns its id.
	TriggerRefresh(ctx context.Context, trigger string, force bool) (string, error)
	// IsRunning reports whether a run is currently in flight.
	IsRunning() bool
}
