package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/timersync/go/internal/controller"
)

// Service bundles the replication listener and the control API of one
// process.
type Service struct {
	wsHandler    *WebSocketHandler
	stateHandler *StateHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates the gateway around ctrl. Inbound channels are handed to
// ctrl and their events are posted back to it.
func NewService(config Config, ctrl *controller.Controller) *Service {
	return &Service{
		wsHandler:    NewWebSocketHandler(ctrl.Identity(), ctrl, ctrl.HandleChannelEvent, config.ConnectionConfig),
		stateHandler: NewStateHandler(ctrl),
	}
}

// RegisterRoutes registers the WebSocket and control API routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("gateway routes registered")
}
