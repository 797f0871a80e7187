// internal/transport/format.go
package transport

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// DataFormat selects how payloads are encoded on send and rendered on receive.
type DataFormat string

const (
	FormatASCII DataFormat = "ascii"
	FormatHex   DataFormat = "hex"
)

// ParseFormat parses a user-supplied format name
func ParseFormat(s string) (DataFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ascii":
		return FormatASCII, nil
	case "hex":
		return FormatHex, nil
	default:
		return FormatASCII, fmt.Errorf("unknown data format %q", s)
	}
}

// EncodePayload converts user input into raw bytes for the wire.
// HEX input may contain whitespace between pairs; an odd-length hex
// string is treated as if left-padded with a zero nibble.
func EncodePayload(data string, format DataFormat) ([]byte, error) {
	switch format {
	case FormatHex:
		cleaned := strings.Join(strings.Fields(data), "")
		if len(cleaned)%2 != 0 {
			cleaned = "0" + cleaned
		}
		decoded, err := hex.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("invalid hex payload: %w", err)
		}
		return decoded, nil
	default:
		return []byte(data), nil
	}
}

// RenderPayload renders raw bytes for presentation: lossy UTF-8 for
// ASCII, space-separated uppercase pairs for HEX.
func RenderPayload(data []byte, format DataFormat) string {
	if len(data) == 0 {
		return ""
	}

	switch format {
	case FormatHex:
		var b strings.Builder
		b.Grow(len(data) * 3)
		for i, v := range data {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%02X", v)
		}
		return b.String()
	default:
		return strings.ToValidUTF8(string(data), "�")
	}
}
