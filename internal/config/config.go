package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Client configures the lobby client.
type Client struct {
	AppID           string `env:"APP_ID" envDefault:"app-dev"`
	OrchestratorURL string `env:"ORCHESTRATOR_URL" envDefault:"http://localhost:8080"`
	GoogleIDToken   string `env:"GOOGLE_ID_TOKEN"`

	// RedisAddr enables the Redis session store; empty keeps the token in memory.
	RedisAddr  string        `env:"REDIS_ADDR"`
	RedisDB    int           `env:"REDIS_DB" envDefault:"0"`
	SessionID  string        `env:"SESSION_ID" envDefault:"default"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	PollMaxAttempts   int           `env:"POLL_MAX_ATTEMPTS" envDefault:"50"`
	LobbyListInterval time.Duration `env:"LOBBY_LIST_INTERVAL" envDefault:"2s"`
	PingInterval      time.Duration `env:"PING_INTERVAL" envDefault:"30s"`
	InsecureTransport bool          `env:"INSECURE_TRANSPORT" envDefault:"false"`

	// DevMode offers local lobbies.
	DevMode  bool   `env:"DEV_MODE" envDefault:"false"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// DevServer configures the local orchestration and game server.
type DevServer struct {
	AppID          string        `env:"APP_ID" envDefault:"app-dev"`
	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":8080"`
	GameAddr       string        `env:"GAME_ADDR" envDefault:":4000"`
	GameHost       string        `env:"GAME_HOST" envDefault:"localhost"`
	GamePort       int           `env:"GAME_PORT" envDefault:"4000"`
	ProvisionDelay time.Duration `env:"PROVISION_DELAY" envDefault:"3s"`
	TokenTTL       time.Duration `env:"TOKEN_EXPIRE_TIME" envDefault:"0s"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadClient reads the client configuration from the environment.
func LoadClient() (Client, error) {
	var cfg Client
	if err := env.Parse(&cfg); err != nil {
		return Client{}, fmt.Errorf("parse client config: %w", err)
	}
	if cfg.PollMaxAttempts < 1 {
		return Client{}, fmt.Errorf("POLL_MAX_ATTEMPTS must be positive, got %d", cfg.PollMaxAttempts)
	}
	return cfg, nil
}

// LoadDevServer reads the dev server configuration from the environment.
func LoadDevServer() (DevServer, error) {
	var cfg DevServer
	if err := env.Parse(&cfg); err != nil {
		return DevServer{}, fmt.Errorf("parse dev server config: %w", err)
	}
	return cfg, nil
}
