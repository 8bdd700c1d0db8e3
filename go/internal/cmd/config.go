package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	backendStatic   = "static"
	backendNATS     = "nats"
	backendPostgres = "postgres"
)

type Config struct {
	Port             string
	AdvertiseURL     string
	DiscoveryBackend string
	NATSURL          string
	GeminiAPIKey     string
	GeminiModel      string
	LogLevel         string
	ConnectTimeout   time.Duration
	ShutdownTimeout  time.Duration
	SendQueueSize    int

	// Peers maps session identities to listener addresses for the static backend.
	Peers map[string]string
}

type fileConfig struct {
	Discovery struct {
		Peers map[string]string `yaml:"peers"`
	} `yaml:"discovery"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func loadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		Port:             port,
		AdvertiseURL:     getEnv("ADVERTISE_URL", fmt.Sprintf("ws://localhost:%s/ws/sync", port)),
		DiscoveryBackend: strings.ToLower(getEnv("DISCOVERY_BACKEND", backendStatic)),
		NATSURL:          getEnv("NATS_URL", "nats://localhost:4222"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		ConnectTimeout:   getEnvAsDuration("CONNECT_TIMEOUT", 10*time.Second),
		ShutdownTimeout:  getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		SendQueueSize:    getEnvAsInt("WS_SEND_QUEUE_SIZE", 16),
	}

	switch cfg.DiscoveryBackend {
	case backendStatic, backendNATS, backendPostgres:
	default:
		return nil, fmt.Errorf("unknown discovery backend %q", cfg.DiscoveryBackend)
	}

	if path := os.Getenv("TIMERSYNC_CONFIG"); path != "" {
		peers, err := loadPeers(path)
		if err != nil {
			return nil, err
		}
		cfg.Peers = peers
	}
	return cfg, nil
}

func loadPeers(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config fileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config.Discovery.Peers, nil
}
