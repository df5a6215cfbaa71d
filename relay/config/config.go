package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the startup settings of the relay
type Config struct {
	Host    string `envconfig:"HOST" default:"0.0.0.0"`
	Port    int    `envconfig:"PORT" default:"3000"`
	Backlog int    `envconfig:"BACKLOG" default:"256"`

	MaxMessageSize int64         `envconfig:"MAX_MESSAGE_SIZE" default:"65536"`
	SendQueueSize  int           `envconfig:"SEND_QUEUE_SIZE" default:"256"`
	WriteWait      time.Duration `envconfig:"WRITE_WAIT" default:"10s"`
	PongWait       time.Duration `envconfig:"PONG_WAIT" default:"60s"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`

	NgrokEnabled   bool   `envconfig:"NGROK_ENABLED" default:"false"`
	NgrokAuthToken string `envconfig:"NGROK_AUTHTOKEN"`
	NgrokDomain    string `envconfig:"NGROK_DOMAIN"`
}

// Load reads an optional .env file and then the process environment.
// Files that do not exist are skipped; any other read error is returned.
func Load(envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	// Support the underscore spelling as well
	if cfg.NgrokAuthToken == "" {
		cfg.NgrokAuthToken = os.Getenv("NGROK_AUTH_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            3000,
		Backlog:         256,
		MaxMessageSize:  65536,
		SendQueueSize:   256,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
	}
}

// Validate checks ranges and timing relationships
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.Backlog < 1 {
		return fmt.Errorf("%w: backlog must be positive", ErrInvalidConfig)
	}
	if c.MaxMessageSize < 1 {
		return fmt.Errorf("%w: max message size must be positive", ErrInvalidConfig)
	}
	if c.SendQueueSize < 1 {
		return fmt.Errorf("%w: send queue size must be positive", ErrInvalidConfig)
	}
	if c.WriteWait <= 0 || c.PongWait <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	if c.PingPeriod() <= 0 || c.PingPeriod() >= c.PongWait {
		return fmt.Errorf("%w: pong wait %s too short", ErrInvalidConfig, c.PongWait)
	}
	return nil
}

// Addr returns the host:port listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// PingPeriod is how often pings are sent. It must be less than PongWait.
func (c *Config) PingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}
