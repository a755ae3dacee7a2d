package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

// TokenConfig holds token issuance settings for the token engine.
type TokenConfig struct {
	AccessTokenSecret     string        `env:"ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret    string        `env:"REFRESH_TOKEN_SECRET"`
	AccessTokenExpiresIn  time.Duration `env:"ACCESS_TOKEN_EXPIRES_IN"  envDefault:"15m"`
	RefreshTokenExpiresIn time.Duration `env:"REFRESH_TOKEN_EXPIRES_IN" envDefault:"168h"`
	Issuer                string        `env:"TOKEN_ISSUER"             envDefault:"supporthub"`
}

// SessionConfig holds session lifecycle settings for the session store.
type SessionConfig struct {
	TTL                  time.Duration `env:"SESSION_TTL"                    envDefault:"24h"`
	RememberMeTTL        time.Duration `env:"SESSION_REMEMBER_ME_TTL"        envDefault:"720h"`
	IdleTimeout          time.Duration `env:"SESSION_IDLE_TIMEOUT"           envDefault:"30m"`
	IdleWarningThreshold float64       `env:"SESSION_IDLE_WARNING_THRESHOLD" envDefault:"0.8"`
	SweepInterval        time.Duration `env:"SESSION_SWEEP_INTERVAL"         envDefault:"1m"`
}

// SecurityConfig holds login throttling settings.
type SecurityConfig struct {
	MaxLoginAttempts int           `env:"MAX_LOGIN_ATTEMPTS" envDefault:"5"`
	LockoutDuration  time.Duration `env:"LOCKOUT_DURATION"   envDefault:"15m"`
}

// CookieConfig holds the names and attributes of the auth cookies.
type CookieConfig struct {
	AccessTokenName  string `env:"COOKIE_ACCESS_TOKEN_NAME"  envDefault:"sh_access_token"`
	RefreshTokenName string `env:"COOKIE_REFRESH_TOKEN_NAME" envDefault:"sh_refresh_token"`
	CSRFTokenName    string `env:"COOKIE_CSRF_TOKEN_NAME"    envDefault:"sh_csrf_token"`
	Domain           string `env:"COOKIE_DOMAIN"`
	Secure           bool   `env:"COOKIE_SECURE" envDefault:"true"`
}

// RealtimeConfig holds gateway settings.
type RealtimeConfig struct {
	HandshakeTimeout time.Duration `env:"REALTIME_HANDSHAKE_TIMEOUT" envDefault:"10s"`
	SendQueueSize    int           `env:"REALTIME_SEND_QUEUE_SIZE"   envDefault:"256"`
}

// AuthServiceConfig is the root configuration for the auth service,
// parsed once from the environment and injected into constructors.
type AuthServiceConfig struct {
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:":4290"`
	MongoURI      string `env:"MONGO_URI"      envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"supporthub"`

	Token    TokenConfig
	Session  SessionConfig
	Security SecurityConfig
	Cookie   CookieConfig
	Realtime RealtimeConfig
}

// NewAuthServiceConfig creates an AuthServiceConfig instance from environment variables.
func NewAuthServiceConfig(logger *zerolog.Logger) *AuthServiceConfig {
	cfg, err := env.ParseAs[AuthServiceConfig]()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse environment variables")
	}

	if err := cfg.validate(); err != nil {
		logger.Fatal().Err(err).Msg("failed to validate auth service configuration")
	}

	return &cfg
}

// validate checks the parts of the configuration that have no safe default.
func (c *AuthServiceConfig) validate() error {
	if c.Token.AccessTokenSecret == "" {
		return fmt.Errorf("missing ACCESS_TOKEN_SECRET environment variable")
	}
	if c.Token.RefreshTokenSecret == "" {
		return fmt.Errorf("missing REFRESH_TOKEN_SECRET environment variable")
	}
	if c.Session.IdleWarningThreshold <= 0 || c.Session.IdleWarningThreshold >= 1 {
		return fmt.Errorf("SESSION_IDLE_WARNING_THRESHOLD must be between 0 and 1")
	}

	return nil
}
