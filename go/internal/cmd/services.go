package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/timersync/go/internal/controller"
	"github.com/mcdev12/timersync/go/internal/dbconfig"
	"github.com/mcdev12/timersync/go/internal/discovery"
	"github.com/mcdev12/timersync/go/internal/gateway"
	"github.com/mcdev12/timersync/go/internal/presets"
	"github.com/mcdev12/timersync/go/internal/presets/gemini"
)

type Services struct {
	Controller *controller.Controller
	Gateway    *gateway.Service
	Registry   discovery.Registry

	closeRegistry func() error
}

func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Registry → Dialer → Controller → Gateway
	registry, closeRegistry, err := setupRegistry(ctx, cfg)
	if err != nil {
		return nil, err
	}

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.ConnectionConfig.SendQueueSize = cfg.SendQueueSize

	controllerConfig := controller.DefaultConfig()
	controllerConfig.AdvertiseAddress = cfg.AdvertiseURL
	controllerConfig.ConnectTimeout = cfg.ConnectTimeout

	ctrl := controller.New(controllerConfig,
		gateway.NewDialer(registry, gatewayConfig.ConnectionConfig),
		controller.WithRegistry(registry),
		controller.WithGenerator(setupGenerator(ctx, cfg)),
	)

	log.Info().
		Str("session_id", ctrl.Identity().String()).
		Str("discovery", cfg.DiscoveryBackend).
		Str("advertise_url", cfg.AdvertiseURL).
		Msg("services ready")

	return &Services{
		Controller:    ctrl,
		Gateway:       gateway.NewService(gatewayConfig, ctrl),
		Registry:      registry,
		closeRegistry: closeRegistry,
	}, nil
}

// Close releases the discovery backend. Call it after the controller stopped.
func (s *Services) Close() {
	if s.closeRegistry == nil {
		return
	}
	if err := s.closeRegistry(); err != nil {
		log.Error().Err(err).Msg("failed to close discovery registry")
	}
}

func setupRegistry(ctx context.Context, cfg *Config) (discovery.Registry, func() error, error) {
	switch cfg.DiscoveryBackend {
	case backendNATS:
		natsConfig := discovery.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		registry, err := discovery.NewNATSRegistry(natsConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to set up NATS discovery: %w", err)
		}
		return registry, registry.Close, nil

	case backendPostgres:
		registry, err := discovery.NewPostgresRegistry(ctx, dbconfig.NewConfigFromEnv())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to set up postgres discovery: %w", err)
		}
		return registry, registry.Close, nil

	default:
		return discovery.NewStaticRegistry(cfg.Peers), nil, nil
	}
}

func setupGenerator(ctx context.Context, cfg *Config) presets.Generator {
	if cfg.GeminiAPIKey == "" {
		log.Info().Msg("GEMINI_API_KEY not set, preset generation disabled")
		return presets.Disabled{}
	}
	generator, err := gemini.NewGenerator(ctx, gemini.Config{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
	})
	if err != nil {
		log.Warn().Err(err).Msg("preset generation disabled")
		return presets.Disabled{}
	}
	log.Info().Str("model", generator.Name()).Msg("preset generation enabled")
	return generator
}
