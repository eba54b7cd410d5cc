package tuyalocal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/tuyalocal/internal/device"
	"github.com/muurk/tuyalocal/internal/fault"
)

// commandState tracks a single Get or Set call
type commandState int

const (
	stateIdle commandState = iota
	stateBuilding
	stateConnecting
	stateAwaitingResponse
	stateDone
	stateFailed
)

func (s commandState) String() string {
	switch s {
	case stateIdle:
		return "IDLE"
	case stateBuilding:
		return "BUILDING"
	case stateConnecting:
		return "CONNECTING"
	case stateAwaitingResponse:
		return "AWAITING_RESPONSE"
	case stateDone:
		return "DONE"
	case stateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// command is the per-call context: the resolved device, its gate slot and the
// exchange id used to correlate log lines.
type command struct {
	id      string
	op      string
	entry   *device.Entry
	desc    device.Descriptor
	state   commandState
	started time.Time
	logger  *zap.Logger
	release func()
}

// begin resolves the device and waits for its gate
func (c *Client) begin(ctx context.Context, op, selector string) (*command, error) {
	entry, err := c.registry.Resolve(selector)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	desc := entry.Descriptor()
	cmd := &command{
		id:      id,
		op:      op,
		entry:   entry,
		desc:    desc,
		state:   stateIdle,
		started: time.Now(),
		logger: c.logger.With(
			zap.String("exchange_id", id),
			zap.String("op", op),
			zap.String("device_id", desc.ID),
			zap.String("device_name", desc.Name),
		),
	}

	release, err := c.gates[desc.ID].acquire(ctx)
	if err != nil {
		return nil, cmd.fail(err)
	}
	cmd.release = release
	return cmd, nil
}

func (cmd *command) transition(to commandState, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.Stringer("from", cmd.state),
		zap.Stringer("to", to),
	}, fields...)
	cmd.logger.Debug("Command state", fields...)
	cmd.state = to
}

// finish releases the device gate
func (cmd *command) finish() {
	if cmd.release != nil {
		cmd.release()
		cmd.release = nil
	}
}

// fail moves to FAILED and annotates err with the device id
func (cmd *command) fail(err error) error {
	cmd.transition(stateFailed, zap.Error(err))
	if fe, ok := err.(*fault.Error); ok {
		return fe.WithDevice(cmd.desc.ID)
	}
	return err
}

func (cmd *command) done() {
	cmd.transition(stateDone, zap.Duration("elapsed", time.Since(cmd.started)))
}
