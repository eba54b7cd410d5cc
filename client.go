package tuyalocal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/muurk/tuyalocal/internal/catalog"
	"github.com/muurk/tuyalocal/internal/device"
	"github.com/muurk/tuyalocal/internal/fault"
	"github.com/muurk/tuyalocal/internal/logging"
	"github.com/muurk/tuyalocal/internal/protocol"
	"github.com/muurk/tuyalocal/internal/signer"
	"github.com/muurk/tuyalocal/internal/transport"
)

// Device describes one device. Only ID and Key are required.
type Device = device.Descriptor

// GetOptions controls Get
type GetOptions struct {
	// Schema returns the whole decoded response instead of dps["1"]
	Schema bool
}

// SetOptions controls Set
type SetOptions struct {
	// DPS is sent as-is when non-nil
	DPS map[string]any
	// Set is the value for dps "1" when DPS is nil
	Set bool
}

// Capabilities reports which optional features are wired in
type Capabilities struct {
	// Discovery is true when ResolveIDs actually looks devices up
	Discovery bool
}

// Client sends commands to a fixed set of devices. It is safe for concurrent
// use; commands to the same device run one at a time.
type Client struct {
	registry    *device.Registry
	catalog     Catalog
	transport   Transport
	discoverer  Discoverer
	logger      *zap.Logger
	extractMode ExtractMode
	now         func() time.Time
	metrics     *Metrics
	rateLimit   rate.Limit
	rateBurst   int
	gates       map[string]*gate
}

// New creates a client for one or more devices. The first device is the
// default target when a call passes an empty selector.
func New(devices []Device, opts ...Option) (*Client, error) {
	c := &Client{
		catalog:     catalog.Default(),
		extractMode: ExtractStrict,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Named("tuyalocal")
	}

	reg, err := device.NewRegistry(devices...)
	if err != nil {
		return nil, err
	}
	c.registry = reg

	c.gates = make(map[string]*gate, reg.Len())
	for _, e := range reg.Entries() {
		d := e.Descriptor()
		if _, err := c.catalog.Lookup(d.Type); err != nil {
			e := fault.Validation("unsupported type %q for device with ID %s", d.Type, d.ID)
			e.Err = err
			return nil, e
		}
		c.gates[d.ID] = newGate(c.rateLimit, c.rateBurst)
	}

	if c.transport == nil {
		c.transport = transport.NewTCP(
			transport.WithLogger(c.logger.Named("transport")),
			transport.WithMetrics(c.metrics),
		)
	}

	c.logger.Debug("Client created",
		zap.Int("devices", reg.Len()),
		zap.Stringer("extract_mode", c.extractMode),
		zap.Bool("discovery", c.discoverer != nil),
	)
	return c, nil
}

// NewDevice creates a client for a single device
func NewDevice(d Device, opts ...Option) (*Client, error) {
	return New([]Device{d}, opts...)
}

// Devices returns the registered devices in registration order
func (c *Client) Devices() []Device {
	return c.registry.Descriptors()
}

// Capabilities reports which optional collaborators are wired in
func (c *Client) Capabilities() Capabilities {
	return Capabilities{Discovery: c.discoverer != nil}
}

// Get reads the state of a device. By default it returns dps["1"] (which is
// nil if the device did not report it); with opts.Schema it returns the whole
// decoded response.
func (c *Client) Get(ctx context.Context, selector string, opts GetOptions) (any, error) {
	cmd, err := c.begin(ctx, "get", selector)
	if err != nil {
		return nil, err
	}
	defer cmd.finish()

	cmd.transition(stateBuilding)
	entry, body, err := c.buildPayload(cmd, catalog.Status, nil)
	if err != nil {
		return nil, cmd.fail(err)
	}
	frame, err := protocol.BuildFrame(entry, catalog.Status, body)
	if err != nil {
		return nil, cmd.fail(err)
	}

	raw, err := c.send(ctx, cmd, frame)
	if err != nil {
		return nil, cmd.fail(err)
	}

	data, err := protocol.ExtractJSON(responseBody(entry, raw, c.extractMode), c.extractMode)
	if err != nil {
		return nil, cmd.fail(err)
	}

	if opts.Schema {
		cmd.done()
		return data, nil
	}

	dps, ok := data[catalog.FieldDPS].(map[string]any)
	if !ok {
		return nil, cmd.fail(fault.Parse("response has no dps object", nil))
	}
	cmd.done()
	return dps["1"], nil
}

// Set changes the state of a device and reports true once the device has
// answered. The answer itself is not inspected.
func (c *Client) Set(ctx context.Context, selector string, opts SetOptions) (bool, error) {
	cmd, err := c.begin(ctx, "set", selector)
	if err != nil {
		return false, err
	}
	defer cmd.finish()

	cmd.transition(stateBuilding)
	dps := opts.DPS
	if dps == nil {
		dps = map[string]any{"1": opts.Set}
	}
	entry, body, err := c.buildPayload(cmd, catalog.Set, dps)
	if err != nil {
		return false, cmd.fail(err)
	}

	signed := signer.EncryptAndSign(cmd.entry.Cipher(), cmd.desc.Key, cmd.desc.Version, body)
	frame, err := protocol.BuildFrame(entry, catalog.Set, signed)
	if err != nil {
		return false, cmd.fail(err)
	}

	if _, err := c.send(ctx, cmd, frame); err != nil {
		return false, cmd.fail(err)
	}
	cmd.done()
	return true, nil
}

// buildPayload fills a copy of the command template for the device and
// serializes it. dps is only used for set commands.
func (c *Client) buildPayload(cmd *command, name catalog.CommandName, dps map[string]any) (catalog.Entry, []byte, error) {
	entry, err := c.catalog.Lookup(cmd.desc.Type)
	if err != nil {
		return catalog.Entry{}, nil, fault.Validation("unsupported type %q for device with ID %s", cmd.desc.Type, cmd.desc.ID)
	}
	tmpl, ok := entry.Command(name)
	if !ok {
		return catalog.Entry{}, nil, fault.Protocol("build", fmt.Sprintf("catalog has no %s command for type %s", name, cmd.desc.Type), nil)
	}

	payload := tmpl.Clone()
	if tmpl.Has(catalog.FieldGatewayID) {
		payload[catalog.FieldGatewayID] = cmd.desc.ID
	}
	if tmpl.Has(catalog.FieldDeviceID) {
		payload[catalog.FieldDeviceID] = cmd.desc.ID
	}
	if name == catalog.Set {
		if tmpl.Has(catalog.FieldUID) {
			payload[catalog.FieldUID] = cmd.desc.UID
		}
		if tmpl.Has(catalog.FieldTime) {
			payload[catalog.FieldTime] = strconv.FormatInt(c.now().Unix(), 10)
		}
		payload[catalog.FieldDPS] = dps
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return catalog.Entry{}, nil, fault.Protocol("build", "failed to encode command", err)
	}

	if cmd.desc.APIDebug {
		cmd.logger.Debug(cmd.desc.APIDebugPrefix+" Payload", zap.ByteString("json", body))
	}
	return entry, body, nil
}

// send hands the frame to the transport and tracks connection progress
func (c *Client) send(ctx context.Context, cmd *command, frame []byte) ([]byte, error) {
	addr := cmd.desc.Addr()
	if addr == "" {
		return nil, fault.Validation("no IP address known for device with ID %s", cmd.desc.ID)
	}

	cmd.transition(stateConnecting, zap.String("addr", addr))
	if cmd.desc.APIDebug {
		logging.LogFrame(cmd.logger, cmd.desc.APIDebugPrefix, cmd.desc.ID, "sent", frame)
	}

	ctx = transport.WithTrace(ctx, &transport.Trace{
		Connected: func(attempts int) {
			cmd.transition(stateAwaitingResponse, zap.Int("attempts", attempts))
		},
	})

	raw, err := c.transport.Exchange(ctx, addr, frame, cmd.desc.RetryPolicy())
	if err != nil {
		return nil, err
	}

	if cmd.desc.APIDebug {
		logging.LogFrame(cmd.logger, cmd.desc.APIDebugPrefix, cmd.desc.ID, "received", raw)
	}
	return raw, nil
}

// responseBody narrows a response that is exactly one well-formed frame to its
// payload, so a header byte that happens to be '{' cannot derail the scan.
// Legacy mode always scans the raw bytes.
func responseBody(entry catalog.Entry, raw []byte, mode ExtractMode) []byte {
	if mode == ExtractLegacy {
		return raw
	}
	if f, err := protocol.ParseFrame(entry, raw); err == nil {
		return f.Payload
	}
	return raw
}
