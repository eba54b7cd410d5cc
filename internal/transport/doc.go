// Package transport carries frames to devices over TCP.
//
// Each Exchange opens a new connection, writes one frame, returns the first
// chunk the device sends back and closes the connection. Devices speaking the
// legacy protocol accept a single client, so nothing is pooled or kept open.
//
// Connecting is retried according to a RetryPolicy: Retries attempts in total,
// with exponential delays from MinTimeout capped at MaxTimeout. Failures after
// the connection is up (write, read, timeout, device hang-up) are not retried
// and come back as connection errors carrying fault.HintBusyDevice.
//
//	t := transport.NewTCP(transport.WithReadTimeout(2 * time.Second))
//	resp, err := t.Exchange(ctx, "192.168.1.20:6668", frame, transport.DefaultRetryPolicy())
package transport
