package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                   int      `env:"PORT" envDefault:"8080"`
	StateFile              string   `env:"STATE_FILE" envDefault:"state.json"`
	DatabaseURL            string   `env:"DATABASE_URL"`
	RedisURL               string   `env:"REDIS_URL"`
	WebhookSignatureSecret string   `env:"WEBHOOK_SIGNATURE_SECRET"`
	GoogleClientID         string   `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret     string   `env:"GOOGLE_CLIENT_SECRET"`
	OAuthRedirectBase      string   `env:"OAUTH_REDIRECT_BASE" envDefault:"http://localhost:8080"`
	LLMBaseURL             string   `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMAPIKey              string   `env:"LLM_API_KEY"`
	LLMModels              []string `env:"LLM_MODELS" envSeparator:"," envDefault:"gpt-4o,gpt-4o-mini,gpt-3.5-turbo"`
	DefaultTimezone        string   `env:"DEFAULT_TIMEZONE" envDefault:"UTC"`
	AuthStateTTLSeconds    int      `env:"AUTH_STATE_TTL_SECONDS" envDefault:"600"`
	LogLevel               string   `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) AuthStateTTL() time.Duration {
	return time.Duration(c.AuthStateTTLSeconds) * time.Second
}

// Location resolves the process-wide default zone used for timestamps that
// carry no explicit offset.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err)
	}
	return loc, nil
}

func (c *Config) RedirectURL() string {
	return strings.TrimSuffix(c.OAuthRedirectBase, "/") + "/oauth/callback"
}

func (c *Config) Validate(isProduction bool) error {
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}
	if len(c.LLMModels) == 0 {
		return fmt.Errorf("LLM_MODELS must name at least one backend model")
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if isProduction {
		if c.WebhookSignatureSecret == "" {
			log.Warn().Msg("WEBHOOK_SIGNATURE_SECRET is empty in production: webhook signature verification disabled")
		}
		if c.LLMAPIKey == "" {
			log.Warn().Msg("LLM_API_KEY is empty in production: extraction backends will be rejected upstream")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
