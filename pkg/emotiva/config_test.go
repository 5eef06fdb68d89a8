package emotiva

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/emotiva-protocol/emotiva-go/pkg/protocol"
	"github.com/emotiva-protocol/emotiva-go/pkg/version"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "emotiva.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig("10.0.0.5")
	if c.Host != "10.0.0.5" {
		t.Errorf("Host = %q", c.Host)
	}
	if c.MaxVersion != version.Current {
		t.Errorf("MaxVersion = %q, want %q", c.MaxVersion, version.Current)
	}
	if c.AckTimeout != protocol.DefaultAckTimeout {
		t.Errorf("AckTimeout = %v", c.AckTimeout)
	}
	if c.MaxRetries != protocol.DefaultMaxRetries {
		t.Errorf("MaxRetries = %d", c.MaxRetries)
	}
	if c.CommandConcurrency != protocol.DefaultConcurrency {
		t.Errorf("CommandConcurrency = %d", c.CommandConcurrency)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
host: 192.168.1.40
timeout: 500ms
max_version: "2.0"
ack_timeout: 1s
max_retries: 5
base_backoff: 50ms
command_concurrency: 2
callback_timeout: 3s
`)

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Host != "192.168.1.40" {
		t.Errorf("Host = %q", c.Host)
	}
	if c.Timeout != 500*time.Millisecond {
		t.Errorf("Timeout = %v", c.Timeout)
	}
	if c.MaxVersion != "2.0" {
		t.Errorf("MaxVersion = %q", c.MaxVersion)
	}
	if c.AckTimeout != time.Second {
		t.Errorf("AckTimeout = %v", c.AckTimeout)
	}
	if c.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d", c.MaxRetries)
	}
	if c.BaseBackoff != 50*time.Millisecond {
		t.Errorf("BaseBackoff = %v", c.BaseBackoff)
	}
	if c.CommandConcurrency != 2 {
		t.Errorf("CommandConcurrency = %d", c.CommandConcurrency)
	}
	if c.CallbackTimeout != 3*time.Second {
		t.Errorf("CallbackTimeout = %v", c.CallbackTimeout)
	}
}

func TestLoadConfigFillsDefaults(t *testing.T) {
	path := writeConfigFile(t, "host: emotiva.local\n")

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.MaxVersion != version.Current {
		t.Errorf("MaxVersion = %q, want default", c.MaxVersion)
	}
	if c.AckTimeout != protocol.DefaultAckTimeout {
		t.Errorf("AckTimeout = %v, want default", c.AckTimeout)
	}
}

func TestLoadConfigMissingHost(t *testing.T) {
	path := writeConfigFile(t, "timeout: 2s\n")

	if _, err := LoadConfig(path); !errors.Is(err, ErrMissingHost) {
		t.Fatalf("err = %v, want ErrMissingHost", err)
	}
}

func TestLoadConfigBadVersion(t *testing.T) {
	path := writeConfigFile(t, "host: 10.0.0.5\nmax_version: banana\n")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("bad max_version accepted")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "host: [unterminated\n")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("invalid yaml accepted")
	}
}
