package config

import (
	"time"

	"github.com/vietddude/livecluster/internal/core/domain"
	redisclient "github.com/vietddude/livecluster/internal/infra/redis"
	"github.com/vietddude/livecluster/internal/infra/storage/postgres"
	"github.com/vietddude/livecluster/internal/policy"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig             `yaml:"server"`
	Logging      LoggingConfig            `yaml:"logging"`
	Redis        redisclient.Config       `yaml:"redis"`
	Database     postgres.Config          `yaml:"database"`
	Cluster      ClusterConfig            `yaml:"cluster"`
	Services     map[string]ServiceConfig `yaml:"services"`
	PolicyReload PolicyReloadConfig       `yaml:"policy_reload"`
	Load         LoadConfig               `yaml:"load"`
}

// ServerConfig holds ops HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ClusterConfig holds engine-wide settings.
type ClusterConfig struct {
	Selector         string          `yaml:"selector"` // round_robin, random
	Sticky           string          `yaml:"sticky"`   // memory, redis
	TransportTimeout time.Duration   `yaml:"transport_timeout"`
	DefaultPolicy    policy.Document `yaml:"default_policy"`
}

// ServiceConfig holds the endpoints and policy documents of one service.
type ServiceConfig struct {
	Transport string                     `yaml:"transport"` // http, grpc
	Endpoints []domain.Instance          `yaml:"endpoints"`
	Policy    policy.Document            `yaml:"policy"`
	Methods   map[string]policy.Document `yaml:"methods"`
}

// PolicyReloadConfig selects where policies come from after startup.
type PolicyReloadConfig struct {
	Source   string `yaml:"source"`   // config, postgres
	Schedule string `yaml:"schedule"` // cron spec
}

// LoadConfig controls host load sampling for load-limit admission.
type LoadConfig struct {
	ProcFS   string        `yaml:"procfs"`
	Interval time.Duration `yaml:"interval"`
}

// PolicyDocuments returns the per-service documents in the form policy.Build expects.
func (c *AppConfig) PolicyDocuments() map[string]policy.ServiceDocuments {
	out := make(map[string]policy.ServiceDocuments, len(c.Services))
	for name, svc := range c.Services {
		out[name] = policy.ServiceDocuments{Policy: svc.Policy, Methods: svc.Methods}
	}
	return out
}
