package bthome

// DecodeInteger combines up to four little-endian bytes into an integer.
// Signed values are sign-extended from width*8 bits. Widths outside 1-4, or a
// buffer shorter than width, yield 0; callers validate width via the Registry.
func DecodeInteger(b []byte, enc Encoding, width int) int64 {
	if width < 1 || width > 4 || len(b) < width {
		return 0
	}

	var raw uint32
	for i := width - 1; i >= 0; i-- {
		raw = raw<<8 | uint32(b[i])
	}

	if enc != EncodingSigned {
		return int64(raw)
	}

	// Shift the sign bit up to bit 31, then arithmetic-shift back down
	shift := uint(32 - width*8)
	return int64(int32(raw<<shift) >> shift)
}
