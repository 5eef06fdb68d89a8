package emotiva

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emotiva-protocol/emotiva-go/pkg/dispatcher"
	"github.com/emotiva-protocol/emotiva-go/pkg/discovery"
	"github.com/emotiva-protocol/emotiva-go/pkg/protocol"
	"github.com/emotiva-protocol/emotiva-go/pkg/version"
)

// Config carries everything a Client needs. All tuning knobs have safe
// defaults; only Host is required.
type Config struct {
	// Host is the receiver's hostname or IP address.
	Host string `yaml:"host"`

	// Timeout bounds each discovery attempt and is the default wait
	// for property polls.
	Timeout time.Duration `yaml:"timeout"`

	// MaxVersion is the highest protocol version to negotiate, as
	// "major.minor". Defaults to the newest version the library
	// implements.
	MaxVersion string `yaml:"max_version"`

	// AckTimeout is how long each command attempt waits for an ack.
	AckTimeout time.Duration `yaml:"ack_timeout"`

	// MaxRetries bounds send attempts per protocol operation.
	MaxRetries int `yaml:"max_retries"`

	// BaseBackoff is the first retry delay; it doubles per failure.
	BaseBackoff time.Duration `yaml:"base_backoff"`

	// CommandConcurrency caps in-flight protocol exchanges.
	CommandConcurrency int `yaml:"command_concurrency"`

	// CallbackTimeout bounds each notification callback invocation.
	CallbackTimeout time.Duration `yaml:"callback_timeout"`

	// PingPort overrides the fixed discovery port. Zero keeps the
	// protocol default; tests point it at a fake device.
	PingPort int `yaml:"ping_port,omitempty"`
}

// DefaultConfig returns a Config for host with every knob at its
// default.
func DefaultConfig(host string) Config {
	c := Config{Host: host}
	c.applyDefaults()
	return c
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if c.Host == "" {
		return ErrMissingHost
	}
	if c.MaxVersion != "" {
		if _, err := version.Parse(c.MaxVersion); err != nil {
			return fmt.Errorf("max_version: %w", err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = discovery.DefaultTimeout
	}
	if c.MaxVersion == "" {
		c.MaxVersion = version.Current
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = protocol.DefaultAckTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = protocol.DefaultMaxRetries
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = protocol.DefaultBaseBackoff
	}
	if c.CommandConcurrency <= 0 {
		c.CommandConcurrency = protocol.DefaultConcurrency
	}
	if c.CallbackTimeout <= 0 {
		c.CallbackTimeout = dispatcher.DefaultCallbackTimeout
	}
}
