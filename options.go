package tuyalocal

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/muurk/tuyalocal/internal/catalog"
	"github.com/muurk/tuyalocal/internal/protocol"
	"github.com/muurk/tuyalocal/internal/transport"
)

// Catalog supplies the framing constants and command templates for a device type
type Catalog interface {
	Lookup(deviceType string) (catalog.Entry, error)
}

// Transport performs one request/response exchange with a device
type Transport = transport.Transport

// RetryPolicy bounds connection attempts for one exchange
type RetryPolicy = transport.RetryPolicy

// Metrics holds transport counters
type Metrics = transport.Metrics

// NewMetrics registers transport metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return transport.NewMetrics(reg)
}

// ExtractMode selects how JSON is located inside device responses
type ExtractMode = protocol.ExtractMode

// Extraction modes
const (
	ExtractStrict = protocol.ExtractStrict
	ExtractLegacy = protocol.ExtractLegacy
)

// Option configures a Client
type Option func(*Client)

// WithTransport replaces the TCP transport, typically with a test double
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithCatalog replaces the built-in command catalog
func WithCatalog(cat Catalog) Option {
	return func(c *Client) { c.catalog = cat }
}

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithExtractMode selects the response JSON scanner (ExtractStrict by default)
func WithExtractMode(m ExtractMode) Option {
	return func(c *Client) { c.extractMode = m }
}

// WithDiscoverer wires a device discovery collaborator used by ResolveIDs
func WithDiscoverer(d Discoverer) Option {
	return func(c *Client) { c.discoverer = d }
}

// WithClock sets the time source for the "t" field of set commands
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithCommandRate limits how often commands are sent to each device.
// A zero limit means no limit.
func WithCommandRate(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		c.rateLimit = limit
		c.rateBurst = burst
	}
}

// WithMetrics records transport metrics. Ignored when WithTransport is used.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}
