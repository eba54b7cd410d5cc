// Package protocol implements the legacy (3.1) local device wire format.
//
// This package handles construction and validation of command frames and the
// extraction of JSON objects from device responses.
//
// # Frame Format
//
// Every frame sent to a device has this structure:
//   - Prefix: fixed bytes from the command catalog (e.g. 000055aa 00000000 000000)
//   - Opcode: 1 byte, per command (status 0x0a, set 0x07 for outlets)
//   - Reserved: 3 zero bytes
//   - Length: 1 byte, payload length + suffix length
//   - Payload: plain JSON (status) or signed payload (set)
//   - Suffix: fixed bytes from the command catalog (e.g. 00000000 0000aa55)
//
// The single length byte caps payload plus suffix at 255 bytes.
//
// # Usage Example - Construction
//
//	entry, _ := catalog.Default().Lookup("outlet")
//	frame, err := protocol.BuildFrame(entry, catalog.Status, []byte(`{"gwId":"x","devId":"x"}`))
//	if err != nil {
//	    return err
//	}
//
// # Response Extraction
//
// Device responses are not parsed structurally. The JSON object is located
// inside the raw bytes and decoded:
//
//	obj, err := protocol.ExtractJSON(raw, protocol.ExtractStrict)
//
// ExtractLegacy reproduces the brace-counting heuristic of older clients. It
// miscounts when string values contain braces; see ExtractLegacy.
//
// # Error Handling
//
// Framing failures are reported as fault.KindProtocol, extraction failures as
// fault.KindParse.
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use.
package protocol
