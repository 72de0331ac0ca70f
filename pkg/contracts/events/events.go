// Package events contains the WebSocket message contracts the EMI dashboard
// backend broadcasts to its clients.
package events

import (
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Core refresh message - the primary event type
	MessageTypeRefreshSnapshot MessageType = "refresh:snapshot"

	// System messages
	MessageTypeSystemStatus MessageType = "system:status"

	// Connection messages
	MessageTypeConnect    MessageType = "connect"
	MessageTypeDisconnect MessageType = "disconnect"
	MessageTypeError      MessageType = "error"
)

// Run and stage statuses carried in refresh snapshots
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// BaseMessage represents the base structure for all WebSocket messages
type BaseMessage struct {
	ID        string      `json:"id,omitempty"`       // Unique message ID
	Type      MessageType `json:"type"`               // Message type
	Timestamp time.Time   `json:"timestamp"`          // Message timestamp
	TraceID   string      `json:"trace_id,omitempty"` // Request trace ID
}

// Message represents a complete WebSocket message
type Message struct {
	BaseMessage
	Data interface{} `json:"data,omitempty"` // Message payload
}

// RefreshSnapshot is the primary message type for pipeline run updates.
// The full snapshot is re-sent on every transition so clients render the
// latest state without stitching deltas together.
type RefreshSnapshot struct {
	RunID        string          `json:"run_id"`
	Trigger      string          `json:"trigger"`
	Status       string          `json:"status"` // pending|running|completed|failed
	CurrentStage string          `json:"current_stage,omitempty"`
	Stages       []StageSnapshot `json:"stages"`
	StartedAt    time.Time       `json:"started_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Error        string          `json:"error,omitempty"`

	// Run totals, filled once the run finishes.
	RowsKept      int  `json:"rows_kept,omitempty"`
	AggregateRows int  `json:"aggregate_rows,omitempty"`
	FailedSources int  `json:"failed_sources,omitempty"`
	FromCache     bool `json:"from_cache,omitempty"`
}

// StageSnapshot represents the state of a single pipeline stage
type StageSnapshot struct {
	Name   string `json:"name"`
	Status string `json:"status"` // pending|running|completed|failed
	Detail string `json:"detail,omitempty"`
}

// ErrorEvent represents a broadcast error message
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

// SystemStatusEvent reports component health over the socket
type SystemStatusEvent struct {
	Status     string            `json:"status"` // healthy|degraded|unhealthy
	Components map[string]string `json:"components,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	Version    string            `json:"version,omitempty"`
}
