package bthome

import "testing"

func TestParseDeviceInfo(t *testing.T) {
	tests := []struct {
		name     string
		b        byte
		expected DeviceInfo
	}{
		{"plain v2", 0x40, DeviceInfo{Version: 2}},
		{"encrypted", 0x41, DeviceInfo{Encrypted: true, Version: 2}},
		{"mac included", 0x42, DeviceInfo{MACIncluded: true, Version: 2}},
		{"trigger based", 0x44, DeviceInfo{TriggerBased: true, Version: 2}},
		{"all flags", 0x47, DeviceInfo{Encrypted: true, MACIncluded: true, TriggerBased: true, Version: 2}},
		{"version 7", 0xE0, DeviceInfo{Version: 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDeviceInfo(tt.b)
			if got != tt.expected {
				t.Errorf("Expected %+v, got %+v", tt.expected, got)
			}
			if got.Byte() != tt.b {
				t.Errorf("Expected Byte() 0x%02X, got 0x%02X", tt.b, got.Byte())
			}
		})
	}
}

func TestDeviceInfo_HeaderLen(t *testing.T) {
	if n := ParseDeviceInfo(0x40).HeaderLen(); n != 1 {
		t.Errorf("Expected 1, got %d", n)
	}
	if n := ParseDeviceInfo(0x42).HeaderLen(); n != 7 {
		t.Errorf("Expected 7, got %d", n)
	}
}

func TestVersionFromUUID(t *testing.T) {
	tests := []struct {
		uuid     uint16
		expected ProtocolVersion
	}{
		{0x181C, VersionV1},
		{0xFCD2, VersionV2},
		{0x181E, VersionUnsupported},
		{0x181A, VersionUnsupported},
	}

	for _, tt := range tests {
		if got := VersionFromUUID(tt.uuid); got != tt.expected {
			t.Errorf("UUID 0x%04X: expected %s, got %s", tt.uuid, tt.expected, got)
		}
	}
}

func TestParseMAC(t *testing.T) {
	mac, err := ParseMAC("54:48:e6:8f:80:a5")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if mac != 0x5448E68F80A5 {
		t.Errorf("Expected 0x5448E68F80A5, got 0x%X", mac)
	}

	if s := FormatMAC(mac); s != "54:48:E6:8F:80:A5" {
		t.Errorf("Expected 54:48:E6:8F:80:A5, got %s", s)
	}

	for _, bad := range []string{"", "54:48:E6:8F:80", "ZZ:48:E6:8F:80:A5"} {
		if _, err := ParseMAC(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestParseKey(t *testing.T) {
	if _, err := ParseKey("231d39c1d7cc1ab1aee224cd096db932"); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if _, err := ParseKey("231d39"); err == nil {
		t.Error("Expected error for short key")
	}
	if _, err := ParseKey("not-hex-not-hex-not-hex-not-hex!"); err == nil {
		t.Error("Expected error for non-hex key")
	}
}
