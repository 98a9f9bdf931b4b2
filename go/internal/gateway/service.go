package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/clockd/go/internal/game"
	"github.com/rs/zerolog/log"
)

// Games is the game registry as seen by the gateway
type Games interface {
	GameService
	RunningGames
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig  ConnectionConfig
	BroadcastInterval time.Duration
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig:  DefaultConnectionConfig(),
		BroadcastInterval: time.Second,
	}
}

// Service is the clock gateway: JSON API, WebSocket streams and the periodic
// timer broadcaster
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	gameHandler       *GameHandler
	broadcaster       *Broadcaster
}

// NewService creates a gateway over games. cm must be the connection manager
// the game registry notifies, so watchers see every game event.
func NewService(config Config, cm *ConnectionManager, games Games, clk clockwork.Clock) *Service {
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, games, clk),
		gameHandler:       NewGameHandler(games),
		broadcaster:       NewBroadcaster(games, cm, clk, config.BroadcastInterval),
	}
}

// Start runs the connection manager and broadcaster until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting clock gateway service")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.connectionManager.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		s.broadcaster.Start(ctx)
	}()

	<-ctx.Done()
	wg.Wait()

	log.Info().Msg("clock gateway service stopped")
	return nil
}

// RegisterRoutes registers the API, WebSocket and health routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.gameHandler.RegisterRoutes(mux)
	s.wsHandler.RegisterRoutes(mux)
	setupHealthCheck(mux)
	log.Info().Msg("clock gateway routes registered")
}

// Handler returns a mux with every gateway route registered
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

var _ game.Notifier = (*ConnectionManager)(nil)
