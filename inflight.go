package tuyalocal

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/muurk/tuyalocal/internal/fault"
)

// gate admits one exchange at a time to a device, optionally rate limited.
// Devices accept a single client connection, so concurrent commands to the same
// device queue here instead of failing at the socket.
type gate struct {
	slot    chan struct{}
	limiter *rate.Limiter
}

func newGate(limit rate.Limit, burst int) *gate {
	g := &gate{slot: make(chan struct{}, 1)}
	if limit > 0 {
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(limit, burst)
	}
	return g
}

// acquire waits for the device to be free. The returned func releases it.
func (g *gate) acquire(ctx context.Context) (func(), error) {
	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fault.Connection("queue", "canceled while waiting for device", ctx.Err())
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			<-g.slot
			return nil, fault.Connection("queue", "canceled while waiting for command rate", err)
		}
	}

	return func() { <-g.slot }, nil
}
