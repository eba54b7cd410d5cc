package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/muurk/tuyalocal/internal/fault"
)

// ExtractMode selects how the JSON object is located inside a response
type ExtractMode int

const (
	// ExtractStrict tracks string literals and escapes and stops at the brace
	// that closes the first object.
	ExtractStrict ExtractMode = iota

	// ExtractLegacy reproduces the brace-counting heuristic of existing clients:
	// count every '{' in the response, then advance through successive '}' until
	// as many have been seen, and cut from the first '{' to that '}'.
	//
	// It does not understand strings, so a '{' or '}' inside a JSON string value
	// shifts the cut point. Kept for byte-for-byte comparisons against device
	// captures; use ExtractStrict otherwise.
	ExtractLegacy
)

// String returns the mode name
func (m ExtractMode) String() string {
	switch m {
	case ExtractStrict:
		return "strict"
	case ExtractLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("ExtractMode(%d)", int(m))
	}
}

// ExtractJSON locates the JSON object embedded in a raw device response and
// decodes it. Responses carry binary framing around the object, so everything
// before the first '{' and after the closing '}' is ignored.
func ExtractJSON(raw []byte, mode ExtractMode) (map[string]any, error) {
	obj, err := LocateJSON(raw, mode)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(obj, &out); err != nil {
		return nil, fault.Parse("failed to parse JSON response", err)
	}
	return out, nil
}

// LocateJSON returns the bytes of the JSON object inside raw without decoding them
func LocateJSON(raw []byte, mode ExtractMode) ([]byte, error) {
	switch mode {
	case ExtractLegacy:
		return locateLegacy(raw)
	case ExtractStrict:
		return locateStrict(raw)
	default:
		return nil, fault.Parse(fmt.Sprintf("unknown extract mode %d", int(mode)), nil)
	}
}

func locateLegacy(raw []byte) ([]byte, error) {
	start := bytes.IndexByte(raw, '{')
	if start == -1 {
		return nil, fault.Parse("no JSON object found in response", nil)
	}

	left := bytes.Count(raw, []byte{'{'})

	// The search for each '}' starts one past the previous match, and the first
	// search starts at offset 1.
	found, cursor := 0, 0
	for found < left {
		if cursor+1 >= len(raw) {
			break
		}
		idx := bytes.IndexByte(raw[cursor+1:], '}')
		if idx == -1 {
			// Fewer '}' than '{'. Older clients spin here forever; stop at the
			// last '}' seen and let decoding decide.
			break
		}
		cursor += 1 + idx
		found++
	}

	if found == 0 || cursor < start {
		return nil, fault.Parse("unbalanced braces in response", nil)
	}
	return raw[start : cursor+1], nil
}

// locateStrict tracks depth outside strings and honours backslash escapes
// inside them.
func locateStrict(raw []byte) ([]byte, error) {
	start := bytes.IndexByte(raw, '{')
	if start == -1 {
		return nil, fault.Parse("no JSON object found in response", nil)
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(raw); i++ {
		b := raw[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}

	return nil, fault.Parse("unclosed JSON object in response", nil)
}
