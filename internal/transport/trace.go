package transport

import "context"

// Trace receives events from a single Exchange, in the manner of
// net/http/httptrace. Nil hooks are skipped.
type Trace struct {
	// ConnectAttempt is called after each failed dial
	ConnectAttempt func(attempt int, err error)
	// Connected is called once the connection is up and before the frame is written
	Connected func(attempts int)
}

type traceKey struct{}

// WithTrace returns a context that carries t to Exchange
func WithTrace(ctx context.Context, t *Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

func traceFrom(ctx context.Context) *Trace {
	t, _ := ctx.Value(traceKey{}).(*Trace)
	if t == nil {
		return &Trace{}
	}
	return t
}

func (t *Trace) connectAttempt(attempt int, err error) {
	if t.ConnectAttempt != nil {
		t.ConnectAttempt(attempt, err)
	}
}

func (t *Trace) connected(attempts int) {
	if t.Connected != nil {
		t.Connected(attempts)
	}
}
