package protocol

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/muurk/tuyalocal/internal/catalog"
	"github.com/muurk/tuyalocal/internal/fault"
)

// Frame header layout following the catalog prefix
const (
	OpcodeSize   = 1
	ReservedSize = 3
	LengthSize   = 1

	// MaxLength is the largest value the one-byte length field can carry.
	// It covers payload and suffix together.
	MaxLength = 0xff
)

// Frame represents a decoded wire frame:
//
//	prefix | opcode | 00 00 00 | length | payload | suffix
type Frame struct {
	Opcode  byte
	Length  int    // payload + suffix bytes, as carried in the header
	Payload []byte // Payload bytes (signed payload for set, plain JSON for status)
	Raw     []byte // Original frame bytes for debugging
}

// HeaderSize returns the number of bytes before the payload for a catalog entry
func HeaderSize(entry catalog.Entry) int {
	return len(entry.Prefix) + OpcodeSize + ReservedSize + LengthSize
}

// MaxPayloadSize returns the largest payload a frame for entry can carry
func MaxPayloadSize(entry catalog.Entry) int {
	return MaxLength - len(entry.Suffix)
}

// ReadFrame reads exactly one frame for entry from r.
// The length byte in the header decides how many more bytes are read.
func ReadFrame(r io.Reader, entry catalog.Entry) (*Frame, error) {
	header := make([]byte, HeaderSize(entry))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read frame header: %w", err)
	}

	// Reject foreign traffic before waiting on a length it never meant
	if !bytes.HasPrefix(header, entry.Prefix) {
		return nil, frameError("bad prefix %x", header[:len(entry.Prefix)])
	}

	length := int(header[len(header)-1])
	rest := make([]byte, length)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("failed to read frame body (%d bytes): %w", length, err)
	}

	return ParseFrame(entry, append(header, rest...))
}

// String returns a debug representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{opcode=0x%02x, length=%d, payload_len=%d}", f.Opcode, f.Length, len(f.Payload))
}

// HexDump returns the raw frame as a hex string
func (f *Frame) HexDump() string {
	return hex.EncodeToString(f.Raw)
}

func hasReservedZeros(b []byte) bool {
	return bytes.Equal(b, make([]byte, ReservedSize))
}

func frameError(format string, args ...any) error {
	return fault.Protocol("parse frame", fmt.Sprintf(format, args...), nil)
}
