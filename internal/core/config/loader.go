package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	PolicySourceConfig   = "config"
	PolicySourcePostgres = "postgres"

	StickyMemory = "memory"
	StickyRedis  = "redis"

	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Cluster.Selector == "" {
		cfg.Cluster.Selector = "round_robin"
	}
	if cfg.Cluster.Sticky == "" {
		cfg.Cluster.Sticky = StickyMemory
	}
	if cfg.Cluster.TransportTimeout == 0 {
		cfg.Cluster.TransportTimeout = 10 * time.Second
	}
	if cfg.PolicyReload.Source == "" {
		cfg.PolicyReload.Source = PolicySourceConfig
	}
	if cfg.PolicyReload.Schedule == "" {
		cfg.PolicyReload.Schedule = "* * * * *"
	}
	if cfg.Load.ProcFS == "" {
		cfg.Load.ProcFS = "/proc"
	}
	if cfg.Load.Interval == 0 {
		cfg.Load.Interval = 5 * time.Second
	}
	for name, svc := range cfg.Services {
		if svc.Transport == "" {
			svc.Transport = TransportHTTP
			cfg.Services[name] = svc
		}
	}
}

// Validate checks cross-field constraints that defaults cannot fix.
func (c *AppConfig) Validate() error {
	switch c.Cluster.Sticky {
	case StickyMemory:
	case StickyRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis sticky store requires redis.url")
		}
	default:
		return fmt.Errorf("unknown sticky store %q", c.Cluster.Sticky)
	}

	switch c.PolicyReload.Source {
	case PolicySourceConfig:
	case PolicySourcePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("postgres policy source requires database.url")
		}
	default:
		return fmt.Errorf("unknown policy source %q", c.PolicyReload.Source)
	}

	for name, svc := range c.Services {
		if len(svc.Endpoints) == 0 {
			return fmt.Errorf("service %s has no endpoints", name)
		}
		if svc.Transport != TransportHTTP && svc.Transport != TransportGRPC {
			return fmt.Errorf("service %s has unknown transport %q", name, svc.Transport)
		}
	}
	return nil
}
