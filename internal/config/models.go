package config

import (
	"time"

	"github.com/muurk/tuyalocal/internal/logging"
)

// Simulator is the configuration file of the device simulator
type Simulator struct {
	Version  int            `mapstructure:"version" yaml:"version"`
	Listen   Listen         `mapstructure:"listen" yaml:"listen"`
	Type     string         `mapstructure:"type" yaml:"type"`                         // Catalog device type to emulate
	Catalog  string         `mapstructure:"catalog" yaml:"catalog,omitempty"`         // Optional catalog file (YAML or JSON)
	Behavior Behavior       `mapstructure:"behavior" yaml:"behavior"`
	Metrics  Metrics        `mapstructure:"metrics" yaml:"metrics"`
	Logging  logging.Config `mapstructure:"logging" yaml:"logging"`
	Devices  []Device       `mapstructure:"devices" yaml:"devices"`
}

// Listen is the TCP address the simulator accepts clients on
type Listen struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Behavior tunes how the simulated devices answer
type Behavior struct {
	DropFirst     int           `mapstructure:"dropFirst" yaml:"dropFirst"`         // Close this many connections without answering
	ResponseDelay time.Duration `mapstructure:"responseDelay" yaml:"responseDelay"` // Wait before each answer
	Silent        bool          `mapstructure:"silent" yaml:"silent"`               // Read frames but never answer
	ReadTimeout   time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`     // Give up on a client that sends nothing
}

// Metrics controls the Prometheus endpoint
type Metrics struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Device is one simulated device
type Device struct {
	ID      string         `mapstructure:"id" yaml:"id"`
	Key     string         `mapstructure:"key" yaml:"key"`
	Name    string         `mapstructure:"name" yaml:"name,omitempty"`
	Version string         `mapstructure:"version" yaml:"version,omitempty"`
	DPS     map[string]any `mapstructure:"dps" yaml:"dps,omitempty"` // Initial data points
}

// NewSimulator returns the default configuration with no devices
func NewSimulator() *Simulator {
	return &Simulator{
		Version: 1,
		Listen:  Listen{Host: "127.0.0.1", Port: 6668},
		Type:    "outlet",
		Behavior: Behavior{
			ReadTimeout: 10 * time.Second,
		},
		Metrics: Metrics{
			Addr: "127.0.0.1:9668",
			Path: "/metrics",
		},
		Logging: logging.Config{Level: "info"},
	}
}

// Example returns a configuration with one device, written by "init"
func Example() *Simulator {
	cfg := NewSimulator()
	cfg.Devices = []Device{
		{
			ID:      "bf0000000000000000aa",
			Key:     "0123456789abcdef",
			Name:    "Example Plug",
			Version: "3.1",
			DPS:     map[string]any{"1": false},
		},
	}
	return cfg
}
