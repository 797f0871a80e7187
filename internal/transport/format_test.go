// internal/transport/format_test.go
package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    DataFormat
		wantErr bool
	}{
		{"ascii", FormatASCII, false},
		{"ASCII", FormatASCII, false},
		{"hex", FormatHex, false},
		{"HEX", FormatHex, false},
		{"", FormatASCII, false},
		{"binary", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestEncodePayloadHex(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{"plain pairs", "48656C6C6F", []byte("Hello"), false},
		{"spaced pairs", "48 65 6C 6C 6F", []byte("Hello"), false},
		{"odd length left-padded", "ABC", []byte{0x0A, 0xBC}, false},
		{"single nibble", "F", []byte{0x0F}, false},
		{"lowercase", "dead beef", []byte{0xDE, 0xAD, 0xBE, 0xEF}, false},
		{"empty", "", nil, false},
		{"invalid digit", "GG", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodePayload(tt.input, FormatHex)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodePayloadASCII(t *testing.T) {
	got, err := EncodePayload("sys_get version\n", FormatASCII)
	require.NoError(t, err)
	assert.Equal(t, []byte("sys_get version\n"), got)
}

func TestRenderPayload(t *testing.T) {
	assert.Equal(t, "48 65 78", RenderPayload([]byte("Hex"), FormatHex))
	assert.Equal(t, "Hex", RenderPayload([]byte("Hex"), FormatASCII))
	assert.Equal(t, "", RenderPayload(nil, FormatHex))
}

func TestHexRoundTrip(t *testing.T) {
	raw := []byte{0x00, 0x01, 0x7F, 0x80, 0xFF}
	rendered := RenderPayload(raw, FormatHex)
	back, err := EncodePayload(rendered, FormatHex)
	require.NoError(t, err)
	assert.Equal(t, raw, back)
}
