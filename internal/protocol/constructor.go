package protocol

import (
	"fmt"

	"github.com/muurk/tuyalocal/internal/catalog"
	"github.com/muurk/tuyalocal/internal/fault"
)

// BuildFrame constructs a complete wire frame for a command of a catalog entry.
//
// Frame Structure:
//
//	[0..p)      prefix         Catalog prefix bytes
//	[p]         opcode         Command byte (catalog hexByte)
//	[p+1..p+4)  00 00 00       Reserved
//	[p+4]       length         len(payload) + len(suffix), one byte
//	[p+5..)     payload        Signed payload (set) or plain JSON (status)
//	[..end]     suffix         Catalog suffix bytes
//
// The one-byte length limits payload+suffix to 255 bytes. This is a property of
// the legacy protocol; larger payloads fail with a ProtocolError.
func BuildFrame(entry catalog.Entry, name catalog.CommandName, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fault.Protocol("build frame", "payload is empty", nil)
	}

	cmd, ok := entry.Command(name)
	if !ok {
		return nil, fault.Protocol("build frame", fmt.Sprintf("device type %q has no %q command", entry.Type, name), nil)
	}

	length := len(payload) + len(entry.Suffix)
	if length > MaxLength {
		return nil, fault.Protocol("build frame",
			fmt.Sprintf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize(entry)), nil)
	}

	frame := make([]byte, 0, HeaderSize(entry)+length)
	frame = append(frame, entry.Prefix...)
	frame = append(frame, cmd.Opcode())
	frame = append(frame, 0x00, 0x00, 0x00)
	frame = append(frame, byte(length))
	frame = append(frame, payload...)
	frame = append(frame, entry.Suffix...)

	return frame, nil
}
