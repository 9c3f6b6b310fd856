package websocket

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lorrc/service-request-analytics/internal/core/domain"
	"github.com/lorrc/service-request-analytics/internal/core/ports"
)

// Hub maintains the set of active Clients and broadcasts events to them.
type Hub struct {
	// clients maps connection IDs to their client
	clients map[uuid.UUID]*Client

	// rooms maps agency codes to subscribed clients
	rooms map[string]map[*Client]bool

	// Broadcast channel for events
	broadcast chan domain.Event

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// done is closed when Run returns
	done chan struct{}

	// mu protects the clients and rooms maps
	mu sync.RWMutex

	logger *slog.Logger
}

// Ensure Hub implements the EventBroadcaster interface.
var _ ports.EventBroadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan domain.Event, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Broadcast queues an event for delivery. Events are dropped when the
// queue is full so a slow hub never blocks an analysis run.
func (h *Hub) Broadcast(event domain.Event) error {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event",
			"event_type", event.Type,
			"agency", event.Agency,
		)
	}
	return nil
}

// Run starts the hub's event loop until ctx is cancelled, then disconnects
// every client. It must be run as a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

// Attach hands a client to the running hub. It returns false once the hub
// has stopped.
func (h *Hub) Attach(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Detach removes a client from the running hub.
func (h *Hub) Detach(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	total := len(h.clients)
	h.mu.Unlock()

	for _, agency := range client.GetSubscriptions() {
		h.subscribe(client, agency)
	}

	h.logger.Info("client registered",
		"client_id", client.ID,
		"total_connections", total,
	)
}

// unregisterClient removes a client from the hub and all rooms
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)

	for _, agency := range client.GetSubscriptions() {
		if room, ok := h.rooms[agency]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, agency)
			}
		}
	}

	client.CloseSend()

	h.logger.Info("client unregistered", "client_id", client.ID)
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.unregisterClient(c)
	}
}

// broadcastEvent delivers an event to the agency room, or to every client
// when the event carries no agency.
func (h *Hub) broadcastEvent(event domain.Event) {
	h.mu.RLock()
	var clients []*Client
	if event.Agency == "" {
		clients = make([]*Client, 0, len(h.clients))
		for _, c := range h.clients {
			clients = append(clients, c)
		}
	} else {
		room := h.rooms[normalizeAgency(event.Agency)]
		clients = make([]*Client, 0, len(room))
		for c := range room {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	h.logger.Debug("broadcasting event",
		"event_type", event.Type,
		"agency", event.Agency,
		"client_count", len(clients),
	)

	for _, client := range clients {
		select {
		case client.Send <- event:
		default:
			h.logger.Warn("client send buffer full, unregistering", "client_id", client.ID)
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) subscribe(client *Client, agency string) {
	agency = normalizeAgency(agency)
	if agency == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[agency] == nil {
		h.rooms[agency] = make(map[*Client]bool)
	}
	h.rooms[agency][client] = true
	client.AddSubscription(agency)

	h.logger.Debug("client subscribed to agency",
		"client_id", client.ID,
		"agency", agency,
	)
}

func (h *Hub) unsubscribe(client *Client, agency string) {
	agency = normalizeAgency(agency)

	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[agency]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, agency)
		}
	}
	client.RemoveSubscription(agency)
}

// GetClientCount returns the total number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetClientsInRoom returns the number of clients subscribed to an agency
func (h *Hub) GetClientsInRoom(agency string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[normalizeAgency(agency)])
}

func normalizeAgency(agency string) string {
	return strings.ToUpper(strings.TrimSpace(agency))
}
