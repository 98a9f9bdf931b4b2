package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/clockd/go/internal/config"
	"github.com/mcdev12/clockd/go/internal/gateway"
	"github.com/mcdev12/clockd/go/internal/game"
	"github.com/mcdev12/clockd/go/internal/publisher"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "clockd.yaml", "path to the YAML config file")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Setup logging
	if cfg.Log.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	zerolog.SetGlobalLevel(cfg.LogLevel())

	clk := clockwork.NewRealClock()

	connCfg := gateway.DefaultConnectionConfig()
	connCfg.WriteTimeout = cfg.WebSocket.WriteTimeout
	connCfg.ReadTimeout = cfg.WebSocket.ReadTimeout
	connCfg.PingInterval = cfg.WebSocket.PingInterval
	connCfg.MaxMessageSize = cfg.WebSocket.MaxMessageSize
	connectionManager := gateway.NewConnectionManager(connCfg)

	notifiers := game.MultiNotifier{connectionManager}

	var pub *publisher.JetStreamPublisher
	if cfg.NATS.URL != "" {
		jsCfg := publisher.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		jsCfg.StreamName = cfg.NATS.StreamName
		jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		jsCfg.MaxAge = cfg.NATS.MaxAge

		pub, err = publisher.NewJetStreamPublisher(jsCfg)
		if err != nil {
			log.Fatal().Err(err).Str("nats_url", cfg.NATS.URL).Msg("failed to create JetStream publisher")
		}
		notifiers = append(notifiers, pub)
	} else {
		log.Info().Msg("NATS_URL not set, clock events will not be published")
	}

	games := game.NewServiceWithClock(game.Config{
		DefaultMinutes: cfg.Clock.DefaultMinutes,
		TickInterval:   cfg.Clock.TickInterval,
	}, notifiers, clk)

	gatewayService := gateway.NewService(gateway.Config{
		ConnectionConfig:  connCfg,
		BroadcastInterval: cfg.Clock.BroadcastInterval,
	}, connectionManager, games, clk)

	server := gateway.NewServer(gateway.ServerConfig{
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, gatewayService.Handler())

	log.Info().
		Str("port", cfg.Server.Port).
		Str("nats_url", cfg.NATS.URL).
		Float64("default_minutes", cfg.Clock.DefaultMinutes).
		Msg("starting clockd")

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gatewayDone := make(chan struct{})
	go func() {
		defer close(gatewayDone)
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Release every clock's ticker before the event sinks go away.
	games.Close()

	cancel()
	<-gatewayDone

	if pub != nil {
		if err := pub.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close JetStream publisher")
		}
	}

	log.Info().Msg("clockd shutdown complete")
}
