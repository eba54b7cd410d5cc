package tuyalocal

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/tuyalocal/internal/catalog"
	"github.com/muurk/tuyalocal/internal/protocol"
	"github.com/muurk/tuyalocal/internal/signer"
	"github.com/muurk/tuyalocal/internal/transport"
)

const (
	testKey  = "0123456789abcdef"
	otherKey = "fedcba9876543210"
)

// stubTransport records frames and answers with reply
type stubTransport struct {
	mu       sync.Mutex
	frames   [][]byte
	addrs    []string
	policies []RetryPolicy
	reply    []byte
	err      error
}

func (s *stubTransport) Exchange(ctx context.Context, addr string, frame []byte, policy RetryPolicy) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, append([]byte{}, frame...))
	s.addrs = append(s.addrs, addr)
	s.policies = append(s.policies, policy)
	if s.err != nil {
		return nil, s.err
	}
	return s.reply, nil
}

func (s *stubTransport) lastFrame(t *testing.T) []byte {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.frames, "transport saw no frames")
	return s.frames[len(s.frames)-1]
}

func outlet(t *testing.T) catalog.Entry {
	t.Helper()
	e, err := catalog.Default().Lookup("outlet")
	require.NoError(t, err)
	return e
}

// deviceReply wraps a JSON body the way a device does: a framed response with
// a 4-byte return code in front of the object.
func deviceReply(t *testing.T, body string) []byte {
	t.Helper()
	frame, err := protocol.BuildFrame(outlet(t), catalog.Status, append([]byte{0, 0, 0, 0}, body...))
	require.NoError(t, err)
	return frame
}

// decodeSet reverses Set: unframe, verify, decrypt, decode
func decodeSet(t *testing.T, frame []byte, key string) map[string]any {
	t.Helper()
	f, err := protocol.ParseFrame(outlet(t), frame)
	require.NoError(t, err)
	require.Equal(t, byte(0x07), f.Opcode)

	c, err := signer.NewCipher(key)
	require.NoError(t, err)
	plain, err := signer.Verify(c, key, f.Payload, "3.1")
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(plain, &out))
	return out
}

func decodeStatus(t *testing.T, frame []byte) map[string]any {
	t.Helper()
	f, err := protocol.ParseFrame(outlet(t), frame)
	require.NoError(t, err)
	require.Equal(t, byte(0x0a), f.Opcode)

	var out map[string]any
	require.NoError(t, json.Unmarshal(f.Payload, &out))
	return out
}

func newTestClient(t *testing.T, tr Transport, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithTransport(tr)}, opts...)
	c, err := New([]Device{
		{ID: "dev1", Key: testKey, IP: "10.0.0.1", UID: "user-1"},
		{ID: "dev2", Key: otherKey, IP: "10.0.0.2", Port: 7000},
	}, opts...)
	require.NoError(t, err)
	return c
}

func TestSetSendsSignedFrame(t *testing.T) {
	tr := &stubTransport{reply: []byte("ack")}
	c := newTestClient(t, tr)

	ok, err := c.Set(context.Background(), "dev1", SetOptions{Set: true})
	require.NoError(t, err)
	assert.True(t, ok)

	cmd := decodeSet(t, tr.lastFrame(t), testKey)
	assert.Equal(t, map[string]any{"1": true}, cmd["dps"])
	assert.Equal(t, "dev1", cmd["devId"])
	assert.Equal(t, "user-1", cmd["uid"])
	assert.Equal(t, []string{"10.0.0.1:6668"}, tr.addrs)
}

func TestSetCustomDPS(t *testing.T) {
	tr := &stubTransport{reply: []byte("ack")}
	c := newTestClient(t, tr)

	_, err := c.Set(context.Background(), "dev2", SetOptions{DPS: map[string]any{"2": false, "3": 40}})
	require.NoError(t, err)

	cmd := decodeSet(t, tr.lastFrame(t), otherKey)
	assert.Equal(t, map[string]any{"2": false, "3": float64(40)}, cmd["dps"])
	assert.Equal(t, "10.0.0.2:7000", tr.addrs[0])
}

func TestSetTimestampFromClock(t *testing.T) {
	tr := &stubTransport{reply: []byte("ack")}
	fixed := time.Unix(1700000000, 999)
	c := newTestClient(t, tr, WithClock(func() time.Time { return fixed }))

	_, err := c.Set(context.Background(), "", SetOptions{Set: false})
	require.NoError(t, err)

	cmd := decodeSet(t, tr.lastFrame(t), testKey)
	assert.Equal(t, "1700000000", cmd["t"])
	assert.Equal(t, map[string]any{"1": false}, cmd["dps"])
}

func TestSetIsDeterministicForFixedClock(t *testing.T) {
	tr := &stubTransport{reply: []byte("ack")}
	fixed := time.Unix(1700000000, 0)
	c := newTestClient(t, tr, WithClock(func() time.Time { return fixed }))

	for i := 0; i < 2; i++ {
		_, err := c.Set(context.Background(), "dev1", SetOptions{Set: true})
		require.NoError(t, err)
	}
	assert.Equal(t, tr.frames[0], tr.frames[1])
}

func TestGetReturnsPrimaryDPS(t *testing.T) {
	tr := &stubTransport{reply: deviceReply(t, `{"devId":"dev1","dps":{"1":42,"2":true}}`)}
	c := newTestClient(t, tr)

	v, err := c.Get(context.Background(), "dev1", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, float64(42), v)

	status := decodeStatus(t, tr.lastFrame(t))
	assert.Equal(t, map[string]any{"gwId": "dev1", "devId": "dev1"}, status)
}

func TestGetSchemaReturnsWholeResponse(t *testing.T) {
	tr := &stubTransport{reply: deviceReply(t, `{"devId":"dev1","dps":{"1":true}}`)}
	c := newTestClient(t, tr)

	v, err := c.Get(context.Background(), "", GetOptions{Schema: true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"devId": "dev1", "dps": map[string]any{"1": true}}, v)
}

func TestGetMissingDPS(t *testing.T) {
	tr := &stubTransport{reply: []byte(`..{"devId":"dev1"}..`)}
	c := newTestClient(t, tr)

	_, err := c.Get(context.Background(), "dev1", GetOptions{})
	require.Error(t, err)
	assert.True(t, IsParse(err))
}

func TestGetUnparseableResponse(t *testing.T) {
	tr := &stubTransport{reply: []byte{0x00, 0x55, 0xaa}}
	c := newTestClient(t, tr)

	_, err := c.Get(context.Background(), "dev1", GetOptions{})
	require.Error(t, err)
	assert.True(t, IsParse(err))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "dev1", e.DeviceID)
}

func TestExtractModeOption(t *testing.T) {
	reply := []byte(`xx{"dps":{"1":"a}b"}}yy`)

	strict := newTestClient(t, &stubTransport{reply: reply})
	v, err := strict.Get(context.Background(), "dev1", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "a}b", v)

	legacy := newTestClient(t, &stubTransport{reply: reply}, WithExtractMode(ExtractLegacy))
	_, err = legacy.Get(context.Background(), "dev1", GetOptions{})
	assert.True(t, IsParse(err))
}

func TestUnknownSelector(t *testing.T) {
	tr := &stubTransport{reply: []byte("ack")}
	c := newTestClient(t, tr)

	_, err := c.Get(context.Background(), "nope", GetOptions{})
	assert.True(t, IsNotFound(err))

	_, err = c.Set(context.Background(), "nope", SetOptions{Set: true})
	assert.True(t, IsNotFound(err))

	assert.Empty(t, tr.frames)
}

func TestTransportErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	tr := &stubTransport{err: boom}
	c := newTestClient(t, tr)

	ok, err := c.Set(context.Background(), "dev1", SetOptions{Set: true})
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}

func TestRetryPolicyFromDescriptor(t *testing.T) {
	tr := &stubTransport{reply: []byte("ack")}
	c, err := NewDevice(Device{
		ID:            "dev1",
		Key:           testKey,
		IP:            "10.0.0.1",
		APIRetries:    7,
		APIMinTimeout: 20 * time.Millisecond,
		APIMaxTimeout: 80 * time.Millisecond,
	}, WithTransport(tr))
	require.NoError(t, err)

	_, err = c.Set(context.Background(), "", SetOptions{Set: true})
	require.NoError(t, err)
	assert.Equal(t, RetryPolicy{Retries: 7, MinTimeout: 20 * time.Millisecond, MaxTimeout: 80 * time.Millisecond}, tr.policies[0])
}

// countingDialer always refuses and counts attempts
type countingDialer struct {
	calls atomic.Int32
}

func (d *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.calls.Add(1)
	return nil, errors.New("connection refused")
}

func TestRetryExhaustion(t *testing.T) {
	tests := []struct {
		name string
		call func(c *Client) error
	}{
		{
			name: "set",
			call: func(c *Client) error {
				ok, err := c.Set(context.Background(), "", SetOptions{Set: true})
				assert.False(t, ok)
				return err
			},
		},
		{
			name: "get",
			call: func(c *Client) error {
				v, err := c.Get(context.Background(), "", GetOptions{})
				assert.Nil(t, v)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &countingDialer{}
			tr := transport.NewTCP(transport.WithDialer(d))

			c, err := NewDevice(Device{
				ID:            "dev1",
				Key:           testKey,
				IP:            "10.0.0.1",
				APIRetries:    4,
				APIMinTimeout: time.Millisecond,
				APIMaxTimeout: 2 * time.Millisecond,
			}, WithTransport(tr))
			require.NoError(t, err)

			err = tt.call(c)
			require.Error(t, err)
			assert.True(t, IsConnection(err))
			assert.Equal(t, int32(4), d.calls.Load())

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, 4, e.Attempts)
			assert.Equal(t, "dev1", e.DeviceID)
		})
	}
}

func TestTemplatesAreNotShared(t *testing.T) {
	tr := &stubTransport{reply: []byte("ack")}
	c := newTestClient(t, tr)

	_, err := c.Set(context.Background(), "dev1", SetOptions{DPS: map[string]any{"5": "x"}})
	require.NoError(t, err)
	_, err = c.Set(context.Background(), "dev2", SetOptions{Set: true})
	require.NoError(t, err)

	second := decodeSet(t, tr.lastFrame(t), otherKey)
	assert.Equal(t, map[string]any{"1": true}, second["dps"])
	assert.Equal(t, "dev2", second["devId"])
	assert.Equal(t, "", second["uid"])

	set, _ := outlet(t).Command(catalog.Set)
	tmpl := set.Clone()
	assert.Equal(t, "", tmpl["devId"], "catalog template was modified")
	assert.NotContains(t, tmpl, "dps")
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		devices []Device
	}{
		{"no devices", nil},
		{"missing id", []Device{{Key: testKey}}},
		{"missing key", []Device{{ID: "a"}}},
		{"unknown type", []Device{{ID: "a", Key: testKey, Type: "bulb"}}},
		{"duplicate", []Device{{ID: "a", Key: testKey}, {ID: "a", Key: testKey}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.devices, WithTransport(&stubTransport{}))
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}
}

func TestMissingIP(t *testing.T) {
	tr := &stubTransport{reply: []byte("ack")}
	c, err := NewDevice(Device{ID: "dev1", Key: testKey}, WithTransport(tr))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "", GetOptions{})
	assert.True(t, IsValidation(err))
	assert.Empty(t, tr.frames)
}

func TestDefaultingIsIdempotent(t *testing.T) {
	a, err := NewDevice(Device{ID: "dev1", Key: testKey}, WithTransport(&stubTransport{}))
	require.NoError(t, err)
	b, err := New(a.Devices(), WithTransport(&stubTransport{}))
	require.NoError(t, err)

	assert.Equal(t, a.Devices(), b.Devices())
}

// blockingTransport counts overlapping exchanges per address
type blockingTransport struct {
	mu      sync.Mutex
	active  map[string]int
	maxSeen map[string]int
	delay   time.Duration
}

func (b *blockingTransport) Exchange(ctx context.Context, addr string, frame []byte, policy RetryPolicy) ([]byte, error) {
	b.mu.Lock()
	b.active[addr]++
	if b.active[addr] > b.maxSeen[addr] {
		b.maxSeen[addr] = b.active[addr]
	}
	b.mu.Unlock()

	time.Sleep(b.delay)

	b.mu.Lock()
	b.active[addr]--
	b.mu.Unlock()
	return []byte("ack"), nil
}

func TestOneExchangePerDevice(t *testing.T) {
	tr := &blockingTransport{active: map[string]int{}, maxSeen: map[string]int{}, delay: 5 * time.Millisecond}
	c := newTestClient(t, tr)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		for _, id := range []string{"dev1", "dev2"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := c.Set(context.Background(), id, SetOptions{Set: true})
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	assert.Equal(t, 1, tr.maxSeen["10.0.0.1:6668"])
	assert.Equal(t, 1, tr.maxSeen["10.0.0.2:7000"])
}

func TestQueuedCallHonoursContext(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	tr := &gatedTransport{started: started, release: release}
	c := newTestClient(t, tr)

	go func() {
		_, _ = c.Set(context.Background(), "dev1", SetOptions{Set: true})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Set(ctx, "dev1", SetOptions{Set: true})
	assert.True(t, IsConnection(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

type gatedTransport struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (g *gatedTransport) Exchange(ctx context.Context, addr string, frame []byte, policy RetryPolicy) ([]byte, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return []byte("ack"), nil
}

func TestCommandRate(t *testing.T) {
	tr := &stubTransport{reply: []byte("ack")}
	c := newTestClient(t, tr, WithCommandRate(20, 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Set(context.Background(), "dev1", SetOptions{Set: true})
		require.NoError(t, err)
	}
	// burst 1 at 20/s: the 2nd and 3rd commands wait ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

// A 111-byte body gives a length byte of 0x7b, which is '{'
func TestGetLengthByteLooksLikeBrace(t *testing.T) {
	body := `{"devId":"dev1","dps":{"1":true},"pad":"`
	for len(body) < 111-2 {
		body += "x"
	}
	body += `"}`
	require.Len(t, body, 111)

	reply := deviceReply(t, body)
	require.Equal(t, byte('{'), reply[15])

	c := newTestClient(t, &stubTransport{reply: reply})
	v, err := c.Get(context.Background(), "dev1", GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, true, v)
}
