package gateway

import (
	"context"
	"net/http"

	"github.com/mcdev12/planningpoker/go/internal/poker"
	"github.com/rs/zerolog/log"
)

// Service is the session gateway: WebSocket clients, store fan-out and the
// state endpoint.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// Config holds configuration for the session gateway
type Config struct {
	ConnectionConfig ConnectionConfig
	Policy           poker.Policy
}

// DefaultConfig returns default configuration for the session gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Policy:           poker.DefaultPolicy(),
	}
}

// NewService creates a new session gateway over repo
func NewService(config Config, repo *poker.Repository) *Service {
	policy := config.Policy
	newController := func(sessionID string) *poker.Controller {
		return poker.NewController(repo, sessionID, poker.WithPolicy(policy))
	}

	connectionManager := NewConnectionManager(config.ConnectionConfig, repo, newController)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(repo, policy.Scale),
	}
}

// Start runs the gateway until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting session gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("session gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("session gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
