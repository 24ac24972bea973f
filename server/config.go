package server

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shipfast-demo/shipgate-go/shipgate"
)

// Config is the demo server's configuration surface. The authentication
// section keeps the historical abort* names; they invert into the SDK's
// warn flags.
type Config struct {
	Listen       string        `yaml:"listen"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`

	Auth    AuthConfig    `yaml:"auth"`
	User    UserConfig    `yaml:"user"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type AuthConfig struct {
	Stage         string   `yaml:"stage"`
	APIKeys       []string `yaml:"apiKeys"`
	HMACSecret    string   `yaml:"hmacSecret"`
	ApproovSecret string   `yaml:"approovSecret"`
	BoundHeader   string   `yaml:"boundHeader"`

	// Protocol forces the HMAC canonicalization scheme; set "https" when a
	// proxy terminates TLS in front of this server.
	Protocol string `yaml:"protocol"`

	AbortOnInvalidToken        *bool `yaml:"abortRequestOnInvalidToken"`
	AbortOnInvalidTokenBinding *bool `yaml:"abortRequestOnInvalidTokenBinding"`
}

type UserConfig struct {
	Secret   string `yaml:"secret"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

// Load reads the yaml config at path, applying defaults first and
// environment overrides for the secret-bearing fields last. An empty path
// yields the defaults plus overrides, which keeps secrets out of files in
// the simple deployments this demo targets.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Listen:       ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		Auth: AuthConfig{
			Stage: string(shipgate.StageAPIKey),
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Prefix:  "shipfast",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHIPFAST_AUTH_STAGE"); v != "" {
		cfg.Auth.Stage = v
	}
	if v := os.Getenv("SHIPFAST_API_KEY"); v != "" {
		cfg.Auth.APIKeys = append(cfg.Auth.APIKeys, v)
	}
	if v := os.Getenv("SHIPFAST_HMAC_SECRET"); v != "" {
		cfg.Auth.HMACSecret = v
	}
	if v := os.Getenv("APPROOV_TOKEN_SECRET"); v != "" {
		cfg.Auth.ApproovSecret = v
	}
	if v := os.Getenv("SHIPFAST_USER_SECRET"); v != "" {
		cfg.User.Secret = v
	}
}

func (c *Config) validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if _, err := shipgate.ParseStage(c.Auth.Stage); err != nil {
		return err
	}
	if len(c.Auth.APIKeys) == 0 {
		return errors.New("at least one API key is required (auth.apiKeys or SHIPFAST_API_KEY)")
	}
	if c.User.Secret == "" {
		return errors.New("user JWT secret is required (user.secret or SHIPFAST_USER_SECRET)")
	}
	return nil
}

// SDKConfig maps the yaml surface onto the shipgate SDK configuration,
// inverting the abort flags (absent means abort, the secure default).
func (c *Config) SDKConfig(logger *log.Logger) shipgate.Config {
	warnOnToken := false
	if c.Auth.AbortOnInvalidToken != nil {
		warnOnToken = !*c.Auth.AbortOnInvalidToken
	}
	warnOnBinding := false
	if c.Auth.AbortOnInvalidTokenBinding != nil {
		warnOnBinding = !*c.Auth.AbortOnInvalidTokenBinding
	}

	return shipgate.Config{
		Stage:                shipgate.Stage(c.Auth.Stage),
		APIKeys:              c.Auth.APIKeys,
		HMACSecret:           c.Auth.HMACSecret,
		ApproovSecret:        c.Auth.ApproovSecret,
		BoundHeader:          c.Auth.BoundHeader,
		Protocol:             c.Auth.Protocol,
		WarnOnInvalidToken:   warnOnToken,
		WarnOnInvalidBinding: warnOnBinding,
		Logger:               logger,
	}
}
