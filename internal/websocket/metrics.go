package websocket

import (
	"sync"
	"time"
)

// Metrics tracks WebSocket hub counters. The hub records into the package
// instance; the health endpoints read snapshots from it.
type Metrics struct {
	mu sync.RWMutex

	// Connection metrics
	TotalConnections  int64
	ActiveConnections int64
	MaxConcurrent     int64
	AvgConnectionTime time.Duration

	// Delivery metrics
	DroppedMessages int64
	MaxQueueDepth   int64

	LastReset time.Time

	// Rolling window over recent connection lifetimes.
	connectionTimes []time.Duration
	connectionSum   time.Duration
}

// avgWindow is how many recent connection lifetimes feed the average.
const avgWindow = 100

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		LastReset:       time.Now(),
		connectionTimes: make([]time.Duration, 0, avgWindow),
	}
}

// RecordConnection records a new connection
func (m *Metrics) RecordConnection() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalConnections++
	m.ActiveConnections++
	if m.ActiveConnections > m.MaxConcurrent {
		m.MaxConcurrent = m.ActiveConnections
	}
}

// RecordDisconnection records a disconnection and its duration
func (m *Metrics) RecordDisconnection(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ActiveConnections--

	m.connectionTimes = append(m.connectionTimes, duration)
	m.connectionSum += duration
	if len(m.connectionTimes) > avgWindow {
		m.connectionSum -= m.connectionTimes[0]
		m.connectionTimes = m.connectionTimes[1:]
	}
	m.AvgConnectionTime = m.connectionSum / time.Duration(len(m.connectionTimes))
}

// RecordDroppedMessage records a message dropped because a client stalled
func (m *Metrics) RecordDroppedMessage() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DroppedMessages++
}

// RecordQueueDepth records the current broadcast queue depth
func (m *Metrics) RecordQueueDepth(depth int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if depth > m.MaxQueueDepth {
		m.MaxQueueDepth = depth
	}
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"connections": map[string]interface{}{
			"total":           m.TotalConnections,
			"active":          m.ActiveConnections,
			"max_concurrent":  m.MaxConcurrent,
			"avg_duration_ms": m.AvgConnectionTime.Milliseconds(),
		},
		"messages": map[string]interface{}{
			"dropped": m.DroppedMessages,
		},
		"performance": map[string]interface{}{
			"max_queue_depth": m.MaxQueueDepth,
		},
		"uptime_seconds": time.Since(m.LastReset).Seconds(),
	}
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalConnections = 0
	m.ActiveConnections = 0
	m.MaxConcurrent = 0
	m.AvgConnectionTime = 0
	m.DroppedMessages = 0
	m.MaxQueueDepth = 0
	m.LastReset = time.Now()
	m.connectionTimes = make([]time.Duration, 0, avgWindow)
	m.connectionSum = 0
}

// Global metrics instance
var globalMetrics = NewMetrics()

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}
