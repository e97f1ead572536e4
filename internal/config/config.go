package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHost          = "localhost"
	DefaultPort          = 25565
	DefaultVersion       = 754
	DefaultCheckTimeout  = 30 * time.Second
	DefaultCloseTimeout  = 30 * time.Second
	DefaultSessionServer = "https://sessionserver.mojang.com"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// SRV enables the _minecraft._tcp lookup for the default port.
	SRV          bool   `yaml:"srv"`
	Transport    string `yaml:"transport"` // "tcp" or "websocket"
	WebSocketURL string `yaml:"websocket_url"`
}

type ClientConfig struct {
	// Version 0 detects the server's protocol version with a status ping.
	Version      int           `yaml:"version"`
	Username     string        `yaml:"username"`
	KeepAlive    bool          `yaml:"keep_alive"`
	CheckTimeout time.Duration `yaml:"check_timeout"`
	CloseTimeout time.Duration `yaml:"close_timeout"`
	HideErrors   bool          `yaml:"hide_errors"`
}

type AuthConfig struct {
	AccessToken   string `yaml:"access_token"`
	ProfileID     string `yaml:"profile_id"`
	SessionServer string `yaml:"session_server"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	// Addr is the listen address of the metrics endpoint; empty disables it.
	Addr string `yaml:"addr"`
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      DefaultHost,
			Port:      DefaultPort,
			SRV:       true,
			Transport: "tcp",
		},
		Client: ClientConfig{
			Version:      DefaultVersion,
			Username:     "Player",
			KeepAlive:    true,
			CheckTimeout: DefaultCheckTimeout,
			CloseTimeout: DefaultCloseTimeout,
		},
		Auth: AuthConfig{
			SessionServer: DefaultSessionServer,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values Load cannot reject by type alone.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Host == "" {
		errs = append(errs, errors.New("server.host is empty"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Server.Transport {
	case "", "tcp":
	case "websocket":
		if c.Server.WebSocketURL == "" {
			errs = append(errs, errors.New("server.websocket_url is required for the websocket transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown server.transport %q", c.Server.Transport))
	}
	if c.Client.Version < 0 {
		errs = append(errs, fmt.Errorf("client.version %d is negative", c.Client.Version))
	}
	if c.Client.Username == "" {
		errs = append(errs, errors.New("client.username is empty"))
	}
	if c.Auth.ProfileID != "" {
		if _, err := uuid.Parse(c.Auth.ProfileID); err != nil {
			errs = append(errs, fmt.Errorf("auth.profile_id: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ProfileUUID returns the parsed profile id, uuid.Nil when unset.
func (c *Config) ProfileUUID() uuid.UUID {
	id, err := uuid.Parse(c.Auth.ProfileID)
	if err != nil {
		return uuid.Nil
	}
	return id
}
