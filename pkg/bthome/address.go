package bthome

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ParseMAC converts "A4:C1:38:12:34:56" (or without separators) into the
// 48-bit big-endian address value.
func ParseMAC(s string) (uint64, error) {
	clean := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s))
	if len(clean) != 12 {
		return 0, errors.Errorf("invalid MAC address %q", s)
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid MAC address %q", s)
	}

	var mac uint64
	for _, octet := range b {
		mac = mac<<8 | uint64(octet)
	}
	return mac, nil
}

// FormatMAC renders a 48-bit address as upper-case colon-separated hex
func FormatMAC(mac uint64) string {
	var b [6]byte
	putMAC(b[:], mac)
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}

// putMAC writes the address most significant byte first
func putMAC(dst []byte, mac uint64) {
	for i := 0; i < 6; i++ {
		dst[i] = byte(mac >> (40 - 8*uint(i)))
	}
}

// ParseKey decodes a 32-character hex bind key
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrap(err, "invalid encryption key")
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return key, nil
}
