package app

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration, sourced from the environment.
// A .env file is honored in development; real deployments set the
// variables directly.
type Config struct {
	Issuer string `env:"AUTH_ISSUER" envDefault:"idverify"`

	// JWTSecret signs every issued token. Rotating it invalidates all
	// outstanding tokens at once.
	JWTSecret string `env:"AUTH_JWT_SECRET"`

	// MFAEncryptionKey seals TOTP secrets at rest: base64, exactly 32
	// bytes decoded. There is no generated fallback; the service refuses
	// to start without it.
	MFAEncryptionKey string `env:"AUTH_MFA_ENCRYPTION_KEY"`

	DatabaseFile string `env:"AUTH_DATABASE_FILE" envDefault:"idverify.db"`
	PepperFile   string `env:"AUTH_PEPPER_FILE" envDefault:"pepper"`

	AccessTokenTTL  time.Duration `env:"AUTH_ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"AUTH_REFRESH_TOKEN_TTL" envDefault:"168h"`
	MFASessionTTL   time.Duration `env:"AUTH_MFA_SESSION_TTL" envDefault:"5m"`
	MFAIssuer       string        `env:"AUTH_MFA_ISSUER" envDefault:"IDVerify"`

	Env                  string        `env:"ENV" envDefault:"dev"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat            string        `env:"LOG_FORMAT" envDefault:"json"`
	Port                 int           `env:"PORT" envDefault:"8080"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`
}

// LoadConfig loads configuration from the environment, reading a .env file
// first when one exists.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("AUTH_JWT_SECRET must be set to at least 32 bytes")
	}
	if _, err := c.MFAKey(); err != nil {
		return err
	}
	return nil
}

// MFAKey decodes the configured sealing key.
func (c Config) MFAKey() ([]byte, error) {
	if c.MFAEncryptionKey == "" {
		return nil, errors.New("AUTH_MFA_ENCRYPTION_KEY must be set")
	}
	key, err := base64.StdEncoding.DecodeString(c.MFAEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("AUTH_MFA_ENCRYPTION_KEY is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("AUTH_MFA_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
