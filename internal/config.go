package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every configuration variable
const EnvPrefix = "PRACTICE_SYNC_"

// Config holds runtime settings parsed from PRACTICE_SYNC_* variables
type Config struct {
	APIURL           string        `env:"API_URL" envDefault:"http://localhost:3000"`
	APIToken         string        `env:"API_TOKEN"`
	DatabasePath     string        `env:"DB"`
	LayoutDir        string        `env:"LAYOUT_DIR"`
	Namespace        string        `env:"NAMESPACE" envDefault:"git-engine:terminal-responses"`
	ResetCommand     string        `env:"RESET_COMMAND" envDefault:"git init"`
	DomainPrefix     string        `env:"DOMAIN_PREFIX" envDefault:"git "`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	ReplayRetries    uint          `env:"REPLAY_RETRIES" envDefault:"1"`
	ReplayRetryDelay time.Duration `env:"REPLAY_RETRY_DELAY" envDefault:"1s"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	OTelEndpoint     string        `env:"OTEL_ENDPOINT"`
	OTelEnabled      bool          `env:"OTEL_ENABLED" envDefault:"true"`
}

// LoadConfig parses the environment and fills path defaults under the
// user's home directory
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.DatabasePath == "" || cfg.LayoutDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		base := filepath.Join(home, ".practice-sync")
		if cfg.DatabasePath == "" {
			cfg.DatabasePath = filepath.Join(base, "state.db")
		}
		if cfg.LayoutDir == "" {
			cfg.LayoutDir = filepath.Join(base, "layout")
		}
	}

	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
