// Package fault defines the error taxonomy shared by every stage of a device command.
//
// Each failure is reported as a *Error carrying one of five kinds:
//   - ValidationError: a device descriptor is missing its id or key
//   - NotFoundError: a selector does not match a registered device
//   - ProtocolError: a payload cannot be framed
//   - ParseError: a response cannot be located or decoded as JSON
//   - ConnectionError: TCP connect, write or read failure, including retry exhaustion
//
// Stages never recover from each other's errors; the kind set by the originating
// stage is what the caller sees. Use the Is* helpers or errors.As to inspect it.
package fault
