package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	wsAdapter "github.com/lorrc/service-request-analytics/internal/adapters/primary/websocket"
	"github.com/lorrc/service-request-analytics/internal/config"
)

// WebSocketHandler handles WebSocket connection upgrades
type WebSocketHandler struct {
	hub      *wsAdapter.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *wsAdapter.Hub,
	cfg *config.Config,
	logger *slog.Logger,
) *WebSocketHandler {
	handler := &WebSocketHandler{
		hub:    hub,
		logger: logger,
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin:     handler.makeOriginChecker(cfg),
	}

	return handler
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *WebSocketHandler) makeOriginChecker(cfg *config.Config) func(r *http.Request) bool {
	allowedOrigins := cfg.WebSocket.AllowedOrigins

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// In development mode, allow all origins (but log a warning)
		if cfg.IsDevelopment() {
			if origin != "" {
				h.logger.Warn("allowing websocket connection in development mode",
					"origin", origin,
					"remote_addr", r.RemoteAddr,
				)
			}
			return true
		}

		// No origin header (same-origin request or non-browser client)
		if origin == "" {
			return true
		}

		// Check against allowed origins
		parsedOrigin, err := url.Parse(origin)
		if err != nil {
			h.logger.Warn("failed to parse websocket origin",
				"origin", origin,
				"error", err,
			)
			return false
		}

		originHost := parsedOrigin.Host

		for _, allowed := range allowedOrigins {
			// Support wildcard subdomains like "*.example.com"
			if strings.HasPrefix(allowed, "*.") {
				suffix := allowed[1:] // Remove the "*", keep ".example.com"
				if strings.HasSuffix(originHost, suffix) || originHost == allowed[2:] {
					return true
				}
			} else if originHost == allowed {
				return true
			}
		}

		h.logger.Warn("websocket connection rejected due to origin",
			"origin", origin,
			"remote_addr", r.RemoteAddr,
			"allowed_origins", allowedOrigins,
		)
		return false
	}
}

// ServeHTTP upgrades the connection and registers the client. Clients pick
// agency rooms with one or more ?agency= parameters (comma-separated values
// are accepted); without any the client receives only run-wide events.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	agencies := parseAgencies(r.URL.Query()["agency"])

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket connection",
			"request_id", requestID,
			"error", err,
		)
		return
	}

	client := wsAdapter.NewClient(h.hub, conn, agencies, h.logger)
	if !h.hub.Attach(client) {
		h.logger.Warn("websocket hub stopped, closing connection", "request_id", requestID)
		_ = conn.Close()
		return
	}

	h.logger.Info("websocket connection established",
		"request_id", requestID,
		"client_id", client.ID,
		"agencies", agencies,
		"remote_addr", r.RemoteAddr,
	)

	go client.WritePump()
	go client.ReadPump()
}

func parseAgencies(values []string) []string {
	var agencies []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				agencies = append(agencies, part)
			}
		}
	}
	return agencies
}
