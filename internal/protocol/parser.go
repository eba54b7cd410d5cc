package protocol

import (
	"bytes"

	"github.com/muurk/tuyalocal/internal/catalog"
)

// ParseFrame decodes a frame built by BuildFrame for the same catalog entry.
//
// Validation checks:
//   - Frame is at least header + suffix bytes
//   - Prefix matches the catalog entry
//   - Reserved bytes are zero
//   - Length byte matches the bytes that follow the header
//   - Suffix matches the catalog entry
func ParseFrame(entry catalog.Entry, data []byte) (*Frame, error) {
	headerSize := HeaderSize(entry)
	if len(data) < headerSize+len(entry.Suffix) {
		return nil, frameError("frame too short: %d bytes (minimum %d)", len(data), headerSize+len(entry.Suffix))
	}

	p := len(entry.Prefix)
	if !bytes.Equal(data[:p], entry.Prefix) {
		return nil, frameError("invalid prefix: %x (expected %x)", data[:p], entry.Prefix)
	}

	if !hasReservedZeros(data[p+OpcodeSize : p+OpcodeSize+ReservedSize]) {
		return nil, frameError("reserved bytes not zero: %x", data[p+OpcodeSize:p+OpcodeSize+ReservedSize])
	}

	length := int(data[headerSize-1])
	if length != len(data)-headerSize {
		return nil, frameError("length byte %d does not match %d bytes after header", length, len(data)-headerSize)
	}

	suffixStart := len(data) - len(entry.Suffix)
	if !bytes.Equal(data[suffixStart:], entry.Suffix) {
		return nil, frameError("invalid suffix: %x (expected %x)", data[suffixStart:], entry.Suffix)
	}

	payload := make([]byte, suffixStart-headerSize)
	copy(payload, data[headerSize:suffixStart])

	return &Frame{
		Opcode:  data[p],
		Length:  length,
		Payload: payload,
		Raw:     data,
	}, nil
}
