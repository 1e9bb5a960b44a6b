package bthome

import "testing"

func TestDecodeInteger(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		encoding Encoding
		width    int
		expected int64
	}{
		{"uint8", []byte{0xFF}, EncodingUnsigned, 1, 255},
		{"sint8 negative", []byte{0xFF}, EncodingSigned, 1, -1},
		{"uint16", []byte{0xBF, 0x13}, EncodingUnsigned, 2, 5055},
		{"sint16 negative", []byte{0x97, 0xFF}, EncodingSigned, 2, -105},
		{"uint24", []byte{0x13, 0x8A, 0x01}, EncodingUnsigned, 3, 100883},
		{"sint24 sign bit 23", []byte{0xFF, 0xFF, 0x80}, EncodingSigned, 3, -8323073},
		{"sint24 positive", []byte{0xFF, 0xFF, 0x7F}, EncodingSigned, 3, 8388607},
		{"uint32 max", []byte{0xFF, 0xFF, 0xFF, 0xFF}, EncodingUnsigned, 4, 4294967295},
		{"sint32 negative", []byte{0xFF, 0xFF, 0xFF, 0xFF}, EncodingSigned, 4, -1},
		{"width zero", []byte{0x01}, EncodingUnsigned, 0, 0},
		{"width five", []byte{0x01, 0x02, 0x03, 0x04, 0x05}, EncodingUnsigned, 5, 0},
		{"short buffer", []byte{0x01}, EncodingUnsigned, 2, 0},
		{"extra bytes ignored", []byte{0x01, 0x02, 0x03}, EncodingUnsigned, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeInteger(tt.data, tt.encoding, tt.width)
			if got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestDecodeInteger_SignedRoundTrip(t *testing.T) {
	for width := 1; width <= 4; width++ {
		bits := uint(width * 8)
		lo := -(int64(1) << (bits - 1))
		hi := int64(1)<<(bits-1) - 1
		values := []int64{lo, lo + 1, -2, -1, 0, 1, 2, hi - 1, hi}

		for _, v := range values {
			buf := make([]byte, width)
			for i := 0; i < width; i++ {
				buf[i] = byte(uint64(v) >> (8 * uint(i)))
			}

			got := DecodeInteger(buf, EncodingSigned, width)
			if got != v {
				t.Errorf("width %d: expected %d, got %d (bytes % x)", width, v, got, buf)
			}
		}
	}
}
