package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matheuscscp/fleet-issuer/internal/constants"
)

const (
	defaultConfigFile         = "/etc/fleet-issuer/config/config.yaml"
	defaultKeyDurationSeconds = 3600
	minGraceMultiplier        = 2
)

type Config struct {
	Issuer             string       `yaml:"issuer" json:"issuer"`
	Audience           string       `yaml:"audience" json:"audience"`
	KeyDurationSeconds int          `yaml:"keyDurationSeconds" json:"keyDurationSeconds"`
	GraceMultiplier    int          `yaml:"graceMultiplier" json:"graceMultiplier"`
	Store              StoreConfig  `yaml:"store" json:"store"`
	Server             ServerConfig `yaml:"server" json:"server"`
}

// Load reads the YAML configuration from fileName, falling back to the
// FLEET_ISSUER_CONFIG environment variable and then to the default path.
func Load(fileName string) (*Config, error) {
	if fileName == "" {
		fileName = defaultConfigFile
		if fn := os.Getenv(constants.EnvConfig); fn != "" {
			fileName = fn
		}
	}
	var cfg Config
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", fileName, err)
	}
	cfg.applyEnv()
	if err := cfg.ValidateAndInitialize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets secrets stay out of the config file.
func (c *Config) applyEnv() {
	if dsn := os.Getenv(constants.EnvStoreDSN); dsn != "" {
		c.Store.DSN = dsn
	}
	if pw := os.Getenv(constants.EnvRedisPassword); pw != "" {
		c.Store.Redis.Password = pw
	}
}

func (c *Config) ValidateAndInitialize() error {
	// Apply defaults.
	if c.Audience == "" {
		c.Audience = constants.DefaultAudience
	}
	if c.KeyDurationSeconds == 0 {
		c.KeyDurationSeconds = defaultKeyDurationSeconds
	}
	if c.GraceMultiplier == 0 {
		c.GraceMultiplier = constants.DefaultGraceMultiplier
	}

	// Validate required fields.
	if c.Issuer == "" {
		return fmt.Errorf("issuer must be set")
	}
	if c.KeyDurationSeconds < 0 {
		return fmt.Errorf("keyDurationSeconds must be positive, got %d", c.KeyDurationSeconds)
	}
	if c.GraceMultiplier < minGraceMultiplier {
		return fmt.Errorf("graceMultiplier must be at least %d, got %d", minGraceMultiplier, c.GraceMultiplier)
	}

	if err := c.Store.validateAndInitialize(); err != nil {
		return err
	}
	return c.Server.validateAndInitialize()
}

// KeyDuration is both the signing key lifetime and the token lifetime.
func (c *Config) KeyDuration() time.Duration {
	return time.Duration(c.KeyDurationSeconds) * time.Second
}

// KeyRetention is how long a public key record stays listable after it was created.
func (c *Config) KeyRetention() time.Duration {
	return time.Duration(c.GraceMultiplier) * c.KeyDuration()
}
