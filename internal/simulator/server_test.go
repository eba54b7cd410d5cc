package simulator

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/muurk/tuyalocal/internal/catalog"
	"github.com/muurk/tuyalocal/internal/config"
	"github.com/muurk/tuyalocal/internal/protocol"
	"github.com/muurk/tuyalocal/internal/signer"
)

const (
	key1 = "0123456789abcdef"
	key2 = "fedcba9876543210"
)

func testConfig() *config.Simulator {
	cfg := config.NewSimulator()
	cfg.Listen.Port = 0
	cfg.Behavior.ReadTimeout = 2 * time.Second
	cfg.Devices = []config.Device{
		{ID: "dev1", Key: key1, DPS: map[string]any{"1": false, "2": 10}},
		{ID: "dev2", Key: key2},
	}
	return cfg
}

func startServer(t *testing.T, cfg *config.Simulator, opts ...Option) *Server {
	t.Helper()
	srv, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("simulator did not stop")
		}
	})
	return srv
}

func outlet(t *testing.T) catalog.Entry {
	t.Helper()
	e, err := catalog.Default().Lookup("outlet")
	require.NoError(t, err)
	return e
}

// roundTrip sends one frame and returns the decoded reply body, or the read error
func roundTrip(t *testing.T, srv *Server, frame []byte) (map[string]any, error) {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))

	if _, err := conn.Write(frame); err != nil {
		return nil, err
	}

	f, err := protocol.ReadFrame(conn, outlet(t))
	if err != nil {
		return nil, err
	}
	require.Greater(t, len(f.Payload), returnCodeSize)
	assert.Equal(t, []byte{0, 0, 0, 0}, f.Payload[:returnCodeSize])

	var body map[string]any
	require.NoError(t, json.Unmarshal(f.Payload[returnCodeSize:], &body))
	return body, nil
}

func statusFrame(t *testing.T, id string) []byte {
	t.Helper()
	frame, err := protocol.BuildFrame(outlet(t), catalog.Status, []byte(`{"gwId":"`+id+`","devId":"`+id+`"}`))
	require.NoError(t, err)
	return frame
}

func setFrame(t *testing.T, id, key string, dps map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{"devId": id, "uid": "", "t": "1700000000", "dps": dps})
	require.NoError(t, err)

	c, err := signer.NewCipher(key)
	require.NoError(t, err)
	frame, err := protocol.BuildFrame(outlet(t), catalog.Set, signer.EncryptAndSign(c, key, "3.1", body))
	require.NoError(t, err)
	return frame
}

func TestStatus(t *testing.T) {
	srv := startServer(t, testConfig())

	body, err := roundTrip(t, srv, statusFrame(t, "dev1"))
	require.NoError(t, err)
	assert.Equal(t, "dev1", body["devId"])
	assert.Equal(t, map[string]any{"1": false, "2": float64(10)}, body["dps"])

	body, err = roundTrip(t, srv, statusFrame(t, "dev2"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"1": false}, body["dps"])
}

func TestSetChangesState(t *testing.T) {
	srv := startServer(t, testConfig())

	body, err := roundTrip(t, srv, setFrame(t, "dev2", key2, map[string]any{"1": true}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"1": true}, body["dps"])

	state, ok := srv.State("dev2")
	require.True(t, ok)
	assert.Equal(t, true, state["1"])

	untouched, _ := srv.State("dev1")
	assert.Equal(t, false, untouched["1"])
}

func TestRejectsBadSignature(t *testing.T) {
	srv := startServer(t, testConfig())

	// dev1's id signed with a key no device has
	_, err := roundTrip(t, srv, setFrame(t, "dev1", "aaaaaaaaaaaaaaaa", map[string]any{"1": true}))
	require.Error(t, err)
	assert.ErrorIs(t, err, io.EOF)

	state, _ := srv.State("dev1")
	assert.Equal(t, false, state["1"])
}

func TestRejectsKeyOfOtherDevice(t *testing.T) {
	srv := startServer(t, testConfig())

	_, err := roundTrip(t, srv, setFrame(t, "dev1", key2, map[string]any{"1": true}))
	require.Error(t, err)

	state, _ := srv.State("dev1")
	assert.Equal(t, false, state["1"])
}

func TestUnknownDevice(t *testing.T) {
	srv := startServer(t, testConfig())

	_, err := roundTrip(t, srv, statusFrame(t, "nobody"))
	assert.ErrorIs(t, err, io.EOF)
}

func TestGarbageFrame(t *testing.T) {
	srv := startServer(t, testConfig())

	_, err := roundTrip(t, srv, []byte("GET / HTTP/1.1\r\n\r\n"))
	assert.Error(t, err)
}

func TestUnsupportedOpcode(t *testing.T) {
	srv, err := New(testConfig(), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	_, err = srv.handleFrame(zap.NewNop(), &protocol.Frame{Opcode: 0x09, Payload: []byte("{}")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0x09")
	assert.Contains(t, err.Error(), "status 0a and set 07")
}

func TestDropFirst(t *testing.T) {
	cfg := testConfig()
	cfg.Behavior.DropFirst = 2
	srv := startServer(t, cfg)

	for i := 0; i < 2; i++ {
		_, err := roundTrip(t, srv, statusFrame(t, "dev1"))
		assert.Error(t, err, "connection %d should be dropped", i+1)
	}

	_, err := roundTrip(t, srv, statusFrame(t, "dev1"))
	assert.NoError(t, err)
	assert.Equal(t, int64(1), srv.Served())
}

func TestSilent(t *testing.T) {
	cfg := testConfig()
	cfg.Behavior.Silent = true
	srv := startServer(t, cfg)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(statusFrame(t, "dev1"))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	n, err := conn.Read(make([]byte, 64))
	assert.Zero(t, n)
	assert.Error(t, err)
}

func TestMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.Behavior.DropFirst = 1
	m := NewMetrics(prometheus.NewRegistry())
	srv := startServer(t, cfg, WithMetrics(m))

	_, _ = roundTrip(t, srv, statusFrame(t, "dev1"))
	_, err := roundTrip(t, srv, statusFrame(t, "dev1"))
	require.NoError(t, err)
	_, err = roundTrip(t, srv, setFrame(t, "dev1", key1, map[string]any{"1": true}))
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Devices))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connections.WithLabelValues("dropped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Connections.WithLabelValues("served")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames.WithLabelValues("status", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames.WithLabelValues("set", "ok")))
}

func TestShutdownClosesIdleConnections(t *testing.T) {
	srv, err := New(testConfig())
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.ActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, 0, srv.ActiveConnections())
}

func TestNewValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Devices[1].Key = "short"
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Type = "bulb"
	_, err = New(cfg)
	assert.Error(t, err)
}
