package device

import (
	"net"
	"strconv"
	"time"

	"github.com/muurk/tuyalocal/internal/fault"
	"github.com/muurk/tuyalocal/internal/transport"
)

// Defaults applied by Normalize
const (
	DefaultType          = "outlet"
	DefaultPort          = 6668
	DefaultVersion       = "3.1"
	DefaultAPIMinTimeout = 100 * time.Millisecond
	DefaultAPIMaxTimeout = 1000 * time.Millisecond
	DefaultAPIRetries    = 3
)

// Descriptor describes one device. ID and Key are required; everything else
// has a default. Zero values are treated as unset.
type Descriptor struct {
	ID             string        `yaml:"id" json:"id" mapstructure:"id"`
	Key            string        `yaml:"key" json:"key" mapstructure:"key"`
	Type           string        `yaml:"type,omitempty" json:"type,omitempty" mapstructure:"type"`
	Name           string        `yaml:"name,omitempty" json:"name,omitempty" mapstructure:"name"`
	IP             string        `yaml:"ip,omitempty" json:"ip,omitempty" mapstructure:"ip"`
	Port           int           `yaml:"port,omitempty" json:"port,omitempty" mapstructure:"port"`
	UID            string        `yaml:"uid,omitempty" json:"uid,omitempty" mapstructure:"uid"`
	Version        string        `yaml:"version,omitempty" json:"version,omitempty" mapstructure:"version"`
	APIMinTimeout  time.Duration `yaml:"apiMinTimeout,omitempty" json:"apiMinTimeout,omitempty" mapstructure:"apiMinTimeout"`
	APIMaxTimeout  time.Duration `yaml:"apiMaxTimeout,omitempty" json:"apiMaxTimeout,omitempty" mapstructure:"apiMaxTimeout"`
	APIRetries     int           `yaml:"apiRetries,omitempty" json:"apiRetries,omitempty" mapstructure:"apiRetries"`
	APIDebug       bool          `yaml:"apiDebug,omitempty" json:"apiDebug,omitempty" mapstructure:"apiDebug"`
	APIDebugPrefix string        `yaml:"apiDebugPrefix,omitempty" json:"apiDebugPrefix,omitempty" mapstructure:"apiDebugPrefix"`
}

// Normalize checks the required fields and fills in defaults.
// Normalize(Normalize(d)) equals Normalize(d).
func Normalize(d Descriptor) (Descriptor, error) {
	if d.ID == "" {
		return Descriptor{}, fault.Validation("ID is missing from device")
	}
	if d.Key == "" {
		return Descriptor{}, fault.Validation("encryption key is missing from device with ID %s", d.ID)
	}

	if d.Type == "" {
		d.Type = DefaultType
	}
	if d.Port == 0 {
		d.Port = DefaultPort
	}
	if d.Version == "" {
		d.Version = DefaultVersion
	}
	if d.APIMinTimeout == 0 {
		d.APIMinTimeout = DefaultAPIMinTimeout
	}
	if d.APIMaxTimeout == 0 {
		d.APIMaxTimeout = DefaultAPIMaxTimeout
	}
	if d.APIRetries == 0 {
		d.APIRetries = DefaultAPIRetries
	}

	if d.Port < 0 || d.Port > 65535 {
		return Descriptor{}, fault.Validation("invalid port %d for device with ID %s", d.Port, d.ID)
	}
	if d.APIMinTimeout < 0 || d.APIMaxTimeout < 0 {
		return Descriptor{}, fault.Validation("negative API timeout for device with ID %s", d.ID)
	}
	if d.APIRetries < 0 {
		return Descriptor{}, fault.Validation("negative API retries for device with ID %s", d.ID)
	}

	return d, nil
}

// Addr returns host:port, or "" when the IP is not known yet
func (d Descriptor) Addr() string {
	if d.IP == "" {
		return ""
	}
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// RetryPolicy returns the connect policy configured for the device
func (d Descriptor) RetryPolicy() transport.RetryPolicy {
	return transport.RetryPolicy{
		Retries:    d.APIRetries,
		MinTimeout: d.APIMinTimeout,
		MaxTimeout: d.APIMaxTimeout,
	}
}
