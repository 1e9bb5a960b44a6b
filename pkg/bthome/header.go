package bthome

import "fmt"

// ProtocolVersion selects the object framing
type ProtocolVersion uint8

const (
	VersionUnsupported ProtocolVersion = 0
	VersionV1          ProtocolVersion = 1
	VersionV2          ProtocolVersion = 2
)

func (v ProtocolVersion) String() string {
	switch v {
	case VersionV1:
		return "v1"
	case VersionV2:
		return "v2"
	default:
		return fmt.Sprintf("unsupported(%d)", uint8(v))
	}
}

// 16-bit service UUIDs carrying BTHome service data
const (
	UUIDv1          uint16 = 0x181C
	UUIDv1Encrypted uint16 = 0x181E
	UUIDv2          uint16 = 0xFCD2
)

// VersionFromUUID maps an advertised service UUID to a protocol version.
// Encrypted v1 (0x181E) is not supported.
func VersionFromUUID(uuid uint16) ProtocolVersion {
	switch uuid {
	case UUIDv1:
		return VersionV1
	case UUIDv2:
		return VersionV2
	default:
		return VersionUnsupported
	}
}

// Device information byte flags (v2 only)
const (
	flagEncrypted    = 1 << 0
	flagMACIncluded  = 1 << 1
	flagTriggerBased = 1 << 2
	versionShift     = 5
	versionMask      = 0x07
)

// DeviceInfo is the decoded v2 device information byte
type DeviceInfo struct {
	Encrypted    bool
	MACIncluded  bool
	TriggerBased bool
	Version      uint8
}

// ParseDeviceInfo unpacks the v2 device information byte
func ParseDeviceInfo(b byte) DeviceInfo {
	return DeviceInfo{
		Encrypted:    b&flagEncrypted != 0,
		MACIncluded:  b&flagMACIncluded != 0,
		TriggerBased: b&flagTriggerBased != 0,
		Version:      (b >> versionShift) & versionMask,
	}
}

// Byte packs the flags back into a device information byte
func (d DeviceInfo) Byte() byte {
	var b byte
	if d.Encrypted {
		b |= flagEncrypted
	}
	if d.MACIncluded {
		b |= flagMACIncluded
	}
	if d.TriggerBased {
		b |= flagTriggerBased
	}
	return b | (d.Version&versionMask)<<versionShift
}

// HeaderLen is the number of bytes before the first object: the info byte,
// plus the 6-byte MAC when included.
func (d DeviceInfo) HeaderLen() int {
	if d.MACIncluded {
		return 7
	}
	return 1
}
