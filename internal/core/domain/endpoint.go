package domain

import (
	"net"
	"strconv"
)

// Endpoint is a routable destination. The engine only relies on its identity.
type Endpoint interface {
	// ID is stable across route() calls and is used for stickiness and
	// attempt exclusion.
	ID() string

	// Address is the network address (host:port or URL) used by transports.
	Address() string
}

// Instance is the stock Endpoint implementation.
type Instance struct {
	InstanceID string            `yaml:"id"       mapstructure:"id"`
	Host       string            `yaml:"host"     mapstructure:"host"`
	Port       int               `yaml:"port"     mapstructure:"port"`
	URL        string            `yaml:"url"      mapstructure:"url"`
	Metadata   map[string]string `yaml:"metadata" mapstructure:"metadata"`
}

// ID returns the instance id, falling back to the address.
func (i Instance) ID() string {
	if i.InstanceID != "" {
		return i.InstanceID
	}
	return i.Address()
}

// Address returns the URL when set, otherwise host:port.
func (i Instance) Address() string {
	if i.URL != "" {
		return i.URL
	}
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}
