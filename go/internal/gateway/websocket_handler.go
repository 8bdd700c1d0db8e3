package gateway

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/timersync/go/internal/replication"
	"github.com/mcdev12/timersync/go/internal/session"
)

// SessionParam is the query parameter naming the master a slave wants.
const SessionParam = "session"

// WebSocketHandler accepts inbound replication connections for this session.
type WebSocketHandler struct {
	identity session.Identity
	acceptor replication.Acceptor
	sink     replication.Sink
	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// NewWebSocketHandler creates a new WebSocket handler. Every upgraded
// connection is handed to acceptor; its events go to sink.
func NewWebSocketHandler(identity session.Identity, acceptor replication.Acceptor, sink replication.Sink, config ConnectionConfig) *WebSocketHandler {
	return &WebSocketHandler{
		identity: identity,
		acceptor: acceptor,
		sink:     sink,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
			CheckOrigin:      config.CheckOrigin,
		},
		config: config,
	}
}

// HandleSyncConnection upgrades a slave's connection request.
func (h *WebSocketHandler) HandleSyncConnection(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get(SessionParam)
	if target == "" {
		http.Error(w, "session is required", http.StatusBadRequest)
		return
	}
	if !h.identity.Matches(target) {
		log.Debug().
			Str("requested", target).
			Str("session_id", h.identity.String()).
			Msg("connection request for another session")
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	connection := newConnection(conn, r.RemoteAddr, h.config, h.sink)
	log.Info().
		Str("connection_id", connection.ID()).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	h.acceptor.OnConnection(connection)
	connection.start()
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/sync", h.HandleSyncConnection)
}
