package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lorrc/service-request-analytics/internal/core/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan domain.Event

	// ID identifies the connection.
	ID uuid.UUID

	// Subscriptions maps agency codes to true.
	Subscriptions map[string]bool

	// closed is set once Send has been closed
	closed bool

	// mu protects Subscriptions and closed
	mu sync.RWMutex

	// logger for this client
	logger *slog.Logger
}

// NewClient creates a new WebSocket client subscribed to agencies.
func NewClient(hub *Hub, conn *websocket.Conn, agencies []string, logger *slog.Logger) *Client {
	id := uuid.New()
	c := &Client{
		Hub:           hub,
		Conn:          conn,
		Send:          make(chan domain.Event, 256),
		ID:            id,
		Subscriptions: make(map[string]bool),
		logger:        logger.With("client_id", id.String()),
	}
	for _, agency := range agencies {
		if agency = normalizeAgency(agency); agency != "" {
			c.Subscriptions[agency] = true
		}
	}
	return c
}

// CloseSend safely closes the Send channel exactly once
func (c *Client) CloseSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// AddSubscription adds a subscription to an agency
func (c *Client) AddSubscription(agency string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Subscriptions[agency] = true
}

// RemoveSubscription removes a subscription to an agency
func (c *Client) RemoveSubscription(agency string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Subscriptions, agency)
}

// HasSubscription checks if the client is subscribed to an agency
func (c *Client) HasSubscription(agency string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Subscriptions[normalizeAgency(agency)]
}

// GetSubscriptions returns a copy of all subscriptions
func (c *Client) GetSubscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subs := make([]string, 0, len(c.Subscriptions))
	for agency := range c.Subscriptions {
		subs = append(subs, agency)
	}
	return subs
}

// ReadPump pumps messages from the websocket connection to the hub.
// This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Detach(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		c.handleIncomingMessage(message)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The hub closed the channel. Send close message.
				if err := c.Conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.writeJSON(event); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// writeJSON writes a JSON message to the websocket connection
func (c *Client) writeJSON(event domain.Event) error {
	w, err := c.Conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(event); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}

// --- Incoming Message Handling ---

// ClientMessage is the structure for messages sent from the client.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SubscribePayload is the payload for subscribe/unsubscribe messages
type SubscribePayload struct {
	Agency string `json:"agency"`
}

// handleIncomingMessage processes messages received from the client
func (c *Client) handleIncomingMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		return
	}

	switch msg.Type {
	case "SUBSCRIBE_TO_AGENCY":
		if p, ok := c.decodeSubscribe(msg.Payload); ok {
			c.Hub.subscribe(c, p.Agency)
		}

	case "UNSUBSCRIBE_FROM_AGENCY":
		if p, ok := c.decodeSubscribe(msg.Payload); ok {
			c.Hub.unsubscribe(c, p.Agency)
		}

	case "PING":
		c.trySend(domain.Event{Type: "PONG"})

	default:
		c.logger.Debug("received unknown message type", "type", msg.Type)
	}
}

func (c *Client) decodeSubscribe(payload json.RawMessage) (SubscribePayload, bool) {
	var p SubscribePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("failed to unmarshal subscription payload", "error", err)
		return p, false
	}
	if normalizeAgency(p.Agency) == "" {
		c.logger.Warn("subscription payload missing agency")
		return p, false
	}
	return p, true
}

// trySend queues an event without blocking. It is a no-op once Send is closed.
func (c *Client) trySend(event domain.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- event:
	default:
	}
}
