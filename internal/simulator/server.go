package simulator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/tuyalocal/internal/catalog"
	"github.com/muurk/tuyalocal/internal/config"
	"github.com/muurk/tuyalocal/internal/logging"
	"github.com/muurk/tuyalocal/internal/protocol"
)

// returnCodeSize is the zeroed status word devices put before the JSON body
const returnCodeSize = 4

// Server emulates devices speaking the legacy protocol on one TCP address.
// Each connection carries a single frame and a single answer.
type Server struct {
	config  *config.Simulator
	entry   catalog.Entry
	devices map[string]*device
	order   []*device
	logger  *zap.Logger
	metrics *Metrics

	listener    net.Listener
	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]net.Conn
	dropped     atomic.Int64
	served      atomic.Int64
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records connection and frame counters
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithCatalog emulates a device type from cat instead of the built-in catalog
func WithCatalog(cat *catalog.Catalog) Option {
	return func(s *Server) {
		if e, err := cat.Lookup(s.config.Type); err == nil {
			s.entry = e
		}
	}
}

// New creates a simulator for the devices in cfg
func New(cfg *config.Simulator, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	entry, err := catalog.Default().Lookup(cfg.Type)
	if err != nil {
		entry = catalog.Entry{}
	}

	s := &Server{
		config:      cfg,
		entry:       entry,
		devices:     make(map[string]*device, len(cfg.Devices)),
		activeConns: make(map[string]net.Conn),
	}

	if cfg.Catalog != "" {
		cat, err := catalog.LoadFile(cfg.Catalog)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		opts = append([]Option{WithCatalog(cat)}, opts...)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.entry.Type == "" {
		return nil, fmt.Errorf("device type %q is not in the catalog", cfg.Type)
	}
	if s.logger == nil {
		s.logger = logging.Named("simulator")
	}

	for _, dc := range cfg.Devices {
		d, err := newDevice(dc)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", dc.ID, err)
		}
		s.devices[d.id] = d
		s.order = append(s.order, d)
	}
	s.metrics.devices(len(s.order))

	s.dropped.Store(int64(cfg.Behavior.DropFirst))
	return s, nil
}

// Listen binds the configured address. Port 0 picks a free port.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.config.Listen.Host, strconv.Itoa(s.config.Listen.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.logger.Info("Simulator listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("type", s.entry.Type),
		zap.String("status_opcode", s.entry.Status.HexByte()),
		zap.String("set_opcode", s.entry.Set.HexByte()),
		zap.Int("devices", len(s.order)),
	)
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is canceled, then shuts down
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.acceptConnections()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Start serves until SIGINT or SIGTERM
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// acceptConnections accepts and handles incoming connections
func (s *Server) acceptConnections() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("Failed to accept connection", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection reads one frame and answers it
func (s *Server) handleConnection(conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()
	log := s.logger.With(zap.String("remote_addr", remoteAddr))

	s.mu.Lock()
	s.activeConns[remoteAddr] = conn
	s.mu.Unlock()

	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.activeConns, remoteAddr)
		s.mu.Unlock()
		log.Debug("Connection closed")
	}()

	if s.dropped.Add(-1) >= 0 {
		log.Info("Dropping connection")
		s.metrics.connection("dropped")
		return
	}
	s.metrics.connection("served")

	if timeout := s.config.Behavior.ReadTimeout; timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
	}

	frame, err := protocol.ReadFrame(conn, s.entry)
	if err != nil {
		log.Warn("Failed to read frame", zap.Error(err))
		s.metrics.frame("unknown", "bad_frame")
		return
	}
	logging.LogFrame(log, "", "", "received", frame.Raw)

	reply, err := s.handleFrame(log, frame)
	if err != nil {
		log.Warn("Rejected frame", zap.Stringer("frame", frame), zap.Error(err))
		return
	}

	if s.config.Behavior.Silent {
		log.Debug("Silent mode, not answering")
		return
	}
	if delay := s.config.Behavior.ResponseDelay; delay > 0 {
		time.Sleep(delay)
	}

	if _, err := conn.Write(reply); err != nil {
		log.Warn("Failed to send reply", zap.Error(err))
		return
	}
	s.served.Add(1)
	logging.LogFrame(log, "", "", "sent", reply)
}

// handleFrame dispatches on the opcode and builds the reply frame
func (s *Server) handleFrame(log *zap.Logger, frame *protocol.Frame) ([]byte, error) {
	switch frame.Opcode {
	case s.entry.Status.Opcode():
		d, err := s.statusTarget(frame.Payload)
		if err != nil {
			s.metrics.frame(string(catalog.Status), "unknown_device")
			return nil, err
		}
		s.metrics.frame(string(catalog.Status), "ok")
		log.Info("Status requested", zap.String("device_id", d.id))
		return s.reply(catalog.Status, d)

	case s.entry.Set.Opcode():
		d, cmd, err := s.setTarget(frame.Payload)
		if err != nil {
			s.metrics.frame(string(catalog.Set), "bad_signature")
			return nil, err
		}
		dps, ok := cmd[catalog.FieldDPS].(map[string]any)
		if !ok {
			s.metrics.frame(string(catalog.Set), "no_dps")
			return nil, fmt.Errorf("set command for %s has no dps", d.id)
		}
		d.apply(dps)
		s.metrics.frame(string(catalog.Set), "ok")
		log.Info("Device state changed",
			zap.String("device_id", d.id),
			zap.Any("dps", dps),
		)
		return s.reply(catalog.Set, d)

	default:
		s.metrics.frame("unknown", "bad_opcode")
		return nil, fmt.Errorf("unsupported opcode 0x%02x (%s answers status %s and set %s)",
			frame.Opcode, s.entry.Type, s.entry.Status.HexByte(), s.entry.Set.HexByte())
	}
}

// statusTarget finds the device named by gwId or devId in a plain status payload
func (s *Server) statusTarget(payload []byte) (*device, error) {
	req, err := protocol.ExtractJSON(payload, protocol.ExtractStrict)
	if err != nil {
		return nil, err
	}
	for _, field := range []string{catalog.FieldDeviceID, catalog.FieldGatewayID} {
		if id, ok := req[field].(string); ok {
			if d, ok := s.devices[id]; ok {
				return d, nil
			}
		}
	}
	return nil, fmt.Errorf("status request for unknown device")
}

// setTarget finds the device whose key verifies the signed payload
func (s *Server) setTarget(payload []byte) (*device, map[string]any, error) {
	for _, d := range s.order {
		cmd, err := d.open(payload)
		if err != nil {
			continue
		}
		if id, ok := cmd[catalog.FieldDeviceID].(string); ok && id != d.id {
			continue
		}
		return d, cmd, nil
	}
	return nil, nil, fmt.Errorf("set payload does not verify against any device key")
}

func (s *Server) reply(name catalog.CommandName, d *device) ([]byte, error) {
	body, err := d.statusJSON()
	if err != nil {
		return nil, err
	}
	payload := make([]byte, returnCodeSize, returnCodeSize+len(body))
	payload = append(payload, body...)
	return protocol.BuildFrame(s.entry, name, payload)
}

// Shutdown stops accepting, closes open connections and waits for handlers
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down simulator...")

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error("Error closing listener", zap.Error(err))
		}
	}

	s.mu.Lock()
	for addr, conn := range s.activeConns {
		s.logger.Debug("Closing active connection", zap.String("remote_addr", addr))
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("All connections closed")
	case <-ctx.Done():
		s.logger.Warn("Shutdown timeout, forcing close")
		return ctx.Err()
	}
	return nil
}

// State returns a copy of a device's data points
func (s *Server) State(id string) (map[string]any, bool) {
	d, ok := s.devices[id]
	if !ok {
		return nil, false
	}
	return d.snapshot(), true
}

// ActiveConnections returns the number of open client connections
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

// Served returns how many replies have been sent
func (s *Server) Served() int64 {
	return s.served.Load()
}
