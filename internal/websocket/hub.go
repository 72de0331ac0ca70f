package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"emicli/internal/infrastructure"
	"emicli/pkg/contracts/events"
)

// Hub tracks connected clients and fans refresh progress events out to them.
// All client set mutation happens on the Run goroutine via the three
// channels; the mutex only guards reads from other goroutines.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	totalConnections int64
	messagesSent     int64

	quit        chan struct{}
	running     bool
	metricsQuit chan struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	return &Hub{
		broadcast:   make(chan []byte),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		clients:     make(map[*Client]bool),
		logger:      logger.With(slog.String("component", "websocket.hub")),
		quit:        make(chan struct{}),
		metricsQuit: make(chan struct{}),
	}
}

// Start launches the hub loop and the metrics reporter. Calling Start on a
// running hub is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
	go h.reportMetrics()
}

// Run is the hub's event loop. It owns the client set.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("Hub shutting down")
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.dropClient(client)
		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.totalConnections++
	h.mu.Unlock()

	ctx := h.clientContext(client)
	h.logger.InfoContext(ctx, "Client registered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("remote_addr", client.remoteAddr))

	GetMetrics().RecordConnection()

	h.greet(ctx, client)
}

// greet tells the new client the stream is live before the first refresh
// event arrives.
func (h *Hub) greet(ctx context.Context, client *Client) {
	welcome := events.Message{
		BaseMessage: events.BaseMessage{
			Type:      events.MessageTypeConnect,
			Timestamp: time.Now(),
			TraceID:   client.traceID,
		},
		Data: map[string]interface{}{
			"status":    "connected",
			"message":   "Connected to EMI refresh stream",
			"client_id": client.id,
		},
	}

	jsonData, err := json.Marshal(welcome)
	if err != nil {
		return
	}
	select {
	case client.send <- jsonData:
	default:
		h.logger.WarnContext(ctx, "Failed to send welcome message - client buffer full",
			slog.String("client_id", client.id))
	}
}

func (h *Hub) dropClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	lifetime := time.Since(client.connectedAt)
	h.logger.InfoContext(h.clientContext(client), "Client unregistered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.Duration("connection_duration", lifetime))

	GetMetrics().RecordDisconnection(lifetime)
}

func (h *Hub) fanOut(message []byte) {
	h.mu.RLock()
	// Copy the client set so the lock is not held during sends.
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	dropped := 0
	for _, client := range clients {
		select {
		case client.send <- message:
			h.mu.Lock()
			h.messagesSent++
			h.mu.Unlock()
		default:
			// A full send buffer means the client stopped reading;
			// drop it rather than stall every other client.
			dropped++
			h.mu.Lock()
			close(client.send)
			delete(h.clients, client)
			h.mu.Unlock()

			GetMetrics().RecordDroppedMessage()
			h.logger.Warn("Client send buffer full, disconnecting",
				slog.String("client_id", client.id))
		}
	}

	if dropped > 0 {
		h.logger.Warn("Some clients failed to receive broadcast",
			slog.Int("delivered", len(clients)-dropped),
			slog.Int("dropped", dropped))
	}
}

func (h *Hub) clientContext(client *Client) context.Context {
	if client.traceID == "" {
		return context.Background()
	}
	return infrastructure.WithTraceID(context.Background(), client.traceID)
}

// BroadcastEvent wraps data in the standard message envelope and sends it to
// every connected client.
func (h *Hub) BroadcastEvent(messageType events.MessageType, data interface{}) {
	message := events.Message{
		BaseMessage: events.BaseMessage{
			Type:      messageType,
			Timestamp: time.Now(),
		},
		Data: data,
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", string(messageType)))
		return
	}

	h.broadcast <- jsonData
}

// BroadcastError sends a structured error event.
func (h *Hub) BroadcastError(code, message, stage string) {
	h.BroadcastEvent(events.MessageTypeError, events.ErrorEvent{
		Code:    code,
		Message: message,
		Stage:   stage,
	})
}

// Broadcast implements the services.WebSocketHub interface.
func (h *Hub) Broadcast(messageType string, data interface{}) {
	h.BroadcastEvent(events.MessageType(messageType), data)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register hands a client to the hub loop.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Stop shuts down the hub and disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	close(h.metricsQuit)

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) reportMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.metricsQuit:
			return
		case <-ticker.C:
			h.mu.RLock()
			activeClients := len(h.clients)
			messagesSent := h.messagesSent
			totalConnections := h.totalConnections
			h.mu.RUnlock()

			GetMetrics().RecordQueueDepth(int64(len(h.broadcast)))

			h.logger.Info("WebSocket hub metrics",
				slog.Int("active_clients", activeClients),
				slog.Int64("total_connections", totalConnections),
				slog.Int64("messages_sent", messagesSent))
		}
	}
}

// GetHubMetrics returns a snapshot of hub counters for the health endpoint.
func (h *Hub) GetHubMetrics() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
	}
}
