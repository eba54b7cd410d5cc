package fault

import (
	"errors"
	"fmt"
)

// Kind represents the category of error that occurred
type Kind int

const (
	// KindValidation indicates a descriptor is missing required fields or has invalid values
	KindValidation Kind = iota
	// KindNotFound indicates a selector did not match any registered device
	KindNotFound
	// KindProtocol indicates a frame could not be built from the given payload
	KindProtocol
	// KindParse indicates a device response could not be located or decoded as JSON
	KindParse
	// KindConnection indicates a TCP connect, write or read failure (including retry exhaustion)
	KindConnection
)

// HintBusyDevice is attached to socket errors that happen after a successful connect.
// Devices speaking the legacy protocol accept a single client at a time.
const HintBusyDevice = "Error communicating with device. Make sure nothing else is trying to control it or connected to it."

// String returns a human-readable name for the error kind
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindNotFound:
		return "NotFoundError"
	case KindProtocol:
		return "ProtocolError"
	case KindParse:
		return "ParseError"
	case KindConnection:
		return "ConnectionError"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Error is the single error type returned by every stage of a command.
// The originating Kind is preserved as it propagates to the caller.
type Error struct {
	Kind     Kind   // Category of error
	Op       string // Operation that failed (e.g. "get", "dial", "extract")
	DeviceID string // Device the operation targeted (if known)
	Message  string // Human-readable error message
	Hint     string // Optional troubleshooting hint
	Attempts int    // Connect attempts made (connection errors only)
	Err      error  // Underlying error (if any)
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
	}
	if e.DeviceID != "" {
		msg += fmt.Sprintf(" (device %s)", e.DeviceID)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
// This lets callers match on sentinel values such as &Error{Kind: KindParse}.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == ""
}

// WithDevice returns a copy of the error annotated with a device id.
// The original is returned untouched if it already names a device.
func (e *Error) WithDevice(id string) *Error {
	if e.DeviceID != "" {
		return e
	}
	cp := *e
	cp.DeviceID = id
	return &cp
}

// Validation creates a validation error
func Validation(format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFound creates an error for a selector that matched no device
func NotFound(id string) *Error {
	return &Error{
		Kind:     KindNotFound,
		Op:       "resolve",
		DeviceID: id,
		Message:  "no device registered with this id",
	}
}

// Protocol creates a framing error
func Protocol(op, message string, err error) *Error {
	return &Error{
		Kind:    KindProtocol,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// Parse creates a response parsing error
func Parse(message string, err error) *Error {
	return &Error{
		Kind:    KindParse,
		Op:      "extract",
		Message: message,
		Err:     err,
	}
}

// Connection creates a connection error
func Connection(op, message string, err error) *Error {
	return &Error{
		Kind:    KindConnection,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// KindOf returns the Kind of the first *Error in err's chain.
// ok is false if err carries no *Error.
func KindOf(err error) (kind Kind, ok bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

func isKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool { return isKind(err, KindValidation) }

// IsNotFound checks if an error is a not-found error
func IsNotFound(err error) bool { return isKind(err, KindNotFound) }

// IsProtocol checks if an error is a framing error
func IsProtocol(err error) bool { return isKind(err, KindProtocol) }

// IsParse checks if an error is a response parsing error
func IsParse(err error) bool { return isKind(err, KindParse) }

// IsConnection checks if an error is a connection error
func IsConnection(err error) bool { return isKind(err, KindConnection) }

// HintFor returns the troubleshooting hint carried by err, if any
func HintFor(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Hint
	}
	return ""
}
