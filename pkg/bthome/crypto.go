package bthome

import (
	"crypto/aes"
	"encoding/binary"

	"github.com/pion/dtls/v3/pkg/crypto/ccm"
	"github.com/pkg/errors"
)

// AES-CCM parameters used by BTHome v2 encryption
const (
	KeySize   = 16
	NonceSize = 13
	TagSize   = 4
	// CounterSize is the trailing packet counter that feeds the nonce
	CounterSize = 4

	// minEncryptedLen covers the info byte, counter and tag
	minEncryptedLen = 1 + CounterSize + TagSize
)

var (
	ErrInvalidKeySize = errors.New("bthome: invalid key size, must be 16 bytes")
	ErrPacketTooShort = errors.New("bthome: encrypted packet too short")
	ErrAuthFailed     = errors.New("bthome: message authentication failed")
)

// BuildNonce assembles the 13-byte CCM nonce:
// MAC (6) || UUID 0xFCD2 little-endian (2) || device info (1) || counter (4)
func BuildNonce(mac uint64, deviceInfo byte, counter []byte) []byte {
	nonce := make([]byte, NonceSize)
	putMAC(nonce[0:6], mac)
	binary.LittleEndian.PutUint16(nonce[6:8], UUIDv2)
	nonce[8] = deviceInfo
	copy(nonce[9:13], counter)
	return nonce
}

func newCCM(key []byte) (ccm.CCM, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "bthome: cipher setup")
	}
	aead, err := ccm.NewCCM(block, TagSize, NonceSize)
	if err != nil {
		return nil, errors.Wrap(err, "bthome: ccm setup")
	}
	return aead, nil
}

// Decrypt verifies and decrypts an encrypted v2 service data packet:
//
//	info (1) || ciphertext (n) || counter (4) || tag (4)
//
// On success it returns a new buffer holding the info byte with the encryption
// flag cleared followed by the plaintext objects. raw is never modified, and
// no plaintext is returned when authentication fails.
func Decrypt(raw []byte, key []byte, mac uint64) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	if len(raw) < minEncryptedLen {
		return nil, errors.Wrapf(ErrPacketTooShort, "got %d bytes, need at least %d", len(raw), minEncryptedLen)
	}

	keyCopy := make([]byte, KeySize)
	copy(keyCopy, key)
	defer zero(keyCopy)

	aead, err := newCCM(keyCopy)
	if err != nil {
		return nil, err
	}

	datasize := len(raw) - minEncryptedLen
	counter := raw[len(raw)-CounterSize-TagSize : len(raw)-TagSize]
	nonce := BuildNonce(mac, raw[0], counter)
	defer zero(nonce)

	// CCM expects ciphertext || tag
	sealed := make([]byte, 0, datasize+TagSize)
	sealed = append(sealed, raw[1:1+datasize]...)
	sealed = append(sealed, raw[len(raw)-TagSize:]...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}

	out := make([]byte, 1+len(plaintext))
	out[0] = raw[0] &^ flagEncrypted
	copy(out[1:], plaintext)
	zero(plaintext)

	return out, nil
}

// Encrypt builds an encrypted v2 packet from an unencrypted one (info byte
// followed by objects). It is the sensor-side counterpart of Decrypt.
func Encrypt(plain []byte, key []byte, mac uint64, counter uint32) ([]byte, error) {
	if len(plain) < 1 {
		return nil, errors.Wrap(ErrPacketTooShort, "missing device info byte")
	}

	aead, err := newCCM(key)
	if err != nil {
		return nil, err
	}

	info := plain[0] | flagEncrypted
	ctr := make([]byte, CounterSize)
	binary.LittleEndian.PutUint32(ctr, counter)
	nonce := BuildNonce(mac, info, ctr)

	sealed := aead.Seal(nil, nonce, plain[1:], nil)
	body := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	out := make([]byte, 0, len(plain)+CounterSize+TagSize)
	out = append(out, info)
	out = append(out, body...)
	out = append(out, ctr...)
	out = append(out, tag...)
	return out, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
