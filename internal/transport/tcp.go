package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/tuyalocal/internal/fault"
	"github.com/muurk/tuyalocal/internal/logging"
)

const (
	// DefaultReadTimeout bounds the wait for the first response bytes
	DefaultReadTimeout = 5 * time.Second

	// DefaultMaxResponseSize is the read buffer for one response chunk
	DefaultMaxResponseSize = 4096
)

// Transport performs one request/response exchange with a device
type Transport interface {
	Exchange(ctx context.Context, addr string, frame []byte, policy RetryPolicy) ([]byte, error)
}

// Dialer opens stream connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TCP sends a frame over a fresh TCP connection and returns the first chunk the
// device sends back. The connection is closed before Exchange returns.
type TCP struct {
	dialer      Dialer
	readTimeout time.Duration
	maxResponse int
	logger      *zap.Logger
	metrics     *Metrics
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures a TCP transport
type Option func(*TCP)

// WithDialer replaces the default net.Dialer
func WithDialer(d Dialer) Option {
	return func(t *TCP) { t.dialer = d }
}

// WithReadTimeout sets how long to wait for a response. Zero disables the
// timeout; a context deadline still applies.
func WithReadTimeout(d time.Duration) Option {
	return func(t *TCP) { t.readTimeout = d }
}

// WithMaxResponseSize sets the read buffer size
func WithMaxResponseSize(n int) Option {
	return func(t *TCP) {
		if n > 0 {
			t.maxResponse = n
		}
	}
}

// WithLogger sets the transport logger
func WithLogger(l *zap.Logger) Option {
	return func(t *TCP) { t.logger = l }
}

// WithMetrics records dial and exchange counters
func WithMetrics(m *Metrics) Option {
	return func(t *TCP) { t.metrics = m }
}

// NewTCP creates a TCP transport
func NewTCP(opts ...Option) *TCP {
	t := &TCP{
		dialer:      &net.Dialer{},
		readTimeout: DefaultReadTimeout,
		maxResponse: DefaultMaxResponseSize,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TCP) log() *zap.Logger {
	if t.logger != nil {
		return t.logger
	}
	return logging.Named("transport")
}

// Exchange connects to addr, retrying per policy, writes frame and waits for
// the first inbound data.
func (t *TCP) Exchange(ctx context.Context, addr string, frame []byte, policy RetryPolicy) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fault.Protocol("exchange", "no frame to send", nil)
	}

	started := time.Now()

	conn, err := t.connect(ctx, addr, policy)
	if err != nil {
		t.metrics.observeExchange(resultFor(ctx, ResultConnectError), started)
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	resp, err := t.roundTrip(ctx, conn, frame)
	if err != nil {
		t.metrics.observeExchange(resultFor(ctx, ResultIOError), started)
		return nil, err
	}

	t.metrics.observeExchange(ResultOK, started)
	return resp, nil
}

func (t *TCP) connect(ctx context.Context, addr string, policy RetryPolicy) (net.Conn, error) {
	maxAttempts := policy.Attempts()
	b := policy.backOff()
	trace := traceFrom(ctx)

	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		attempt++

		conn, err := t.dial(ctx, addr, policy.DialTimeout())
		t.metrics.observeDial(err)
		if err == nil {
			trace.connected(attempt)
			if attempt > 1 {
				t.log().Debug("Connected after retry",
					zap.String("addr", addr),
					zap.Int("attempt", attempt),
				)
			}
			return conn, nil
		}

		lastErr = err
		trace.connectAttempt(attempt, err)
		t.log().Warn("Connect attempt failed",
			zap.String("addr", addr),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err),
		)

		if attempt == maxAttempts || ctx.Err() != nil {
			break
		}

		delay := b.NextBackOff()
		t.log().Debug("Waiting before next connect attempt",
			zap.String("addr", addr),
			zap.Duration("delay", delay),
		)
		if err := t.sleep(ctx, delay); err != nil {
			break
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		e := fault.Connection("dial", fmt.Sprintf("connect to %s canceled after %d attempt(s)", addr, attempt), ctxErr)
		e.Attempts = attempt
		return nil, e
	}

	e := fault.Connection("dial", fmt.Sprintf("failed to connect to %s after %d attempt(s)", addr, attempt), lastErr)
	e.Attempts = attempt
	return nil, e
}

func (t *TCP) dial(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return t.dialer.DialContext(ctx, "tcp", addr)
}

func (t *TCP) roundTrip(ctx context.Context, conn net.Conn, frame []byte) ([]byte, error) {
	var deadline time.Time
	if t.readTimeout > 0 {
		deadline = time.Now().Add(t.readTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if !deadline.IsZero() {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, ioError(ctx, "write", "failed to set connection deadline", err)
		}
	}

	// Unblock a pending write or read when ctx is canceled
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	n, err := conn.Write(frame)
	t.metrics.addSent(n)
	if err != nil {
		return nil, ioError(ctx, "write", "failed to send frame", err)
	}

	buf := make([]byte, t.maxResponse)
	n, err = conn.Read(buf)
	t.metrics.addReceived(n)
	if n > 0 {
		return buf[:n], nil
	}

	switch {
	case err == nil:
		err = io.ErrNoProgress
	case errors.Is(err, io.EOF):
		return nil, ioError(ctx, "read", "device closed the connection without responding", err)
	}
	return nil, ioError(ctx, "read", "failed to read response", err)
}

// ioError builds the error for a socket failure after connect
func ioError(ctx context.Context, op, message string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	e := fault.Connection(op, message, err)
	e.Hint = fault.HintBusyDevice
	return e
}

func resultFor(ctx context.Context, result string) string {
	if ctx.Err() != nil {
		return ResultCanceled
	}
	return result
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
