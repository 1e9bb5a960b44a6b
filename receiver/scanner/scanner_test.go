package scanner

import (
	"testing"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/mjasion/balena-home/pkg/bthome"
)

func TestAdvertisements_FiltersBTHome(t *testing.T) {
	ts := time.Now()
	elements := []bluetooth.ServiceDataElement{
		{UUID: bluetooth.New16BitUUID(0x181A), Data: []byte{0x01}},
		{UUID: bluetooth.New16BitUUID(bthome.UUIDv2), Data: []byte{0x40, 0x01, 0x64}},
		{UUID: bluetooth.New16BitUUID(bthome.UUIDv1), Data: []byte{0x02, 0x01, 0x64}},
	}

	ads, err := Advertisements("54:48:E6:8F:80:A5", -60, elements, ts)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(ads) != 2 {
		t.Fatalf("Expected 2 BTHome elements, got %d", len(ads))
	}
	if ads[0].UUID != bthome.UUIDv2 || ads[1].UUID != bthome.UUIDv1 {
		t.Errorf("Expected UUIDs FCD2 and 181C, got %04X and %04X", ads[0].UUID, ads[1].UUID)
	}
	if ads[0].MAC != 0x5448E68F80A5 {
		t.Errorf("Expected MAC 0x5448E68F80A5, got 0x%X", ads[0].MAC)
	}
	if ads[0].RSSI != -60 || !ads[0].Timestamp.Equal(ts) {
		t.Errorf("Expected RSSI and timestamp to be carried over, got %d %v", ads[0].RSSI, ads[0].Timestamp)
	}
}

func TestAdvertisements_NoBTHome(t *testing.T) {
	elements := []bluetooth.ServiceDataElement{
		{UUID: bluetooth.New16BitUUID(0x181A), Data: []byte{0x01}},
	}

	// address is not parsed when nothing is forwarded
	ads, err := Advertisements("not-a-mac", -60, elements, time.Now())
	if err != nil || len(ads) != 0 {
		t.Errorf("Expected no elements and no error, got %d, %v", len(ads), err)
	}
}

func TestAdvertisements_BadAddress(t *testing.T) {
	elements := []bluetooth.ServiceDataElement{
		{UUID: bluetooth.New16BitUUID(bthome.UUIDv2), Data: []byte{0x40}},
	}
	if _, err := Advertisements("not-a-mac", -60, elements, time.Now()); err == nil {
		t.Error("Expected error for invalid address")
	}
}
