package config

import (
	"fmt"
	"time"
)

// Config represents an opcda.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Browse  BrowseConfig  `yaml:"browse"`
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Adapter AdapterConfig `yaml:"adapter"`
	Sim     SimConfig     `yaml:"sim"`
}

// ServerConfig names the server to connect to.
type ServerConfig struct {
	Host   string `yaml:"host"`
	ProgID string `yaml:"progid"`
	CLSID  string `yaml:"clsid"`
}

// BridgeConfig holds bridge transport defaults.
type BridgeConfig struct {
	Address     string   `yaml:"address"`
	DialTimeout Duration `yaml:"dial_timeout"`
	Retries     *int     `yaml:"retries,omitempty"`
	CallTimeout Duration `yaml:"call_timeout"`
}

// BrowseConfig holds browse defaults.
type BrowseConfig struct {
	MaxDepth *int `yaml:"max_depth,omitempty"`
}

// LogConfig selects the log mode and, for file mode, the log path.
type LogConfig struct {
	Mode string `yaml:"mode"`
	File string `yaml:"file"`
}

// StorageConfig holds storage defaults from the config file.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// SimConfig points serve-sim at a namespace file.
type SimConfig struct {
	Namespace string `yaml:"namespace"`
	Listen    string `yaml:"listen"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate rejects values no command could use.
func (c *Config) Validate() error {
	if c.Browse.MaxDepth != nil && *c.Browse.MaxDepth < 0 {
		return fmt.Errorf("browse.max_depth must be >= 0, got %d", *c.Browse.MaxDepth)
	}
	if c.Bridge.Retries != nil && *c.Bridge.Retries < 0 {
		return fmt.Errorf("bridge.retries must be >= 0, got %d", *c.Bridge.Retries)
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		return fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries)
	}
	switch c.Storage.Backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("storage.backend must be fs or s3, got %q", c.Storage.Backend)
	}
	switch c.Adapter.Type {
	case "", "redis", "webhook":
	default:
		return fmt.Errorf("adapter.type must be redis or webhook, got %q", c.Adapter.Type)
	}
	return nil
}
