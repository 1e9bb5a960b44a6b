package bthome

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// Encoding describes how the value bytes of an object are interpreted
type Encoding uint8

const (
	EncodingUnsigned Encoding = iota
	EncodingSigned
	// EncodingVariable marks length-prefixed objects (text, raw bytes).
	EncodingVariable
)

func (e Encoding) String() string {
	switch e {
	case EncodingUnsigned:
		return "uint"
	case EncodingSigned:
		return "sint"
	case EncodingVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// ObjectFormat is the wire format of a single object type
type ObjectFormat struct {
	Width    int // value bytes; 0 means the object cannot be read as a fixed-width value
	Encoding Encoding
	Factor   float64 // raw integer is divided by this
	Name     string
	Unit     string
}

// Registry maps object ids to their formats. It is immutable after construction
// and safe to share between goroutines.
type Registry struct {
	formats [256]ObjectFormat
	known   [256]bool
	size    int
}

// NewRegistry builds a registry from an id -> format mapping
func NewRegistry(formats map[uint8]ObjectFormat) (*Registry, error) {
	r := &Registry{}

	ids := make([]int, 0, len(formats))
	for id := range formats {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	for _, id := range ids {
		f := formats[uint8(id)]
		if f.Width < 0 || f.Width > 4 {
			return nil, errors.Errorf("object 0x%02X: width must be 0-4, got %d", id, f.Width)
		}
		if f.Factor == 0 {
			return nil, errors.Errorf("object 0x%02X: factor must not be zero", id)
		}
		r.formats[id] = f
		r.known[id] = true
		r.size = id + 1
	}

	return r, nil
}

// MustRegistry is like NewRegistry but panics on an invalid table
func MustRegistry(formats map[uint8]ObjectFormat) *Registry {
	r, err := NewRegistry(formats)
	if err != nil {
		panic(err)
	}
	return r
}

// Len returns the size of the known id range (highest registered id + 1)
func (r *Registry) Len() int {
	return r.size
}

// Lookup returns the format for id. The boolean is false for ids that were
// never registered, including everything at or above Len.
func (r *Registry) Lookup(id uint8) (ObjectFormat, bool) {
	if int(id) >= r.size || !r.known[id] {
		return ObjectFormat{}, false
	}
	return r.formats[id], true
}

// Name returns the object name, or a hex placeholder for unknown ids
func (r *Registry) Name(id uint8) string {
	if f, ok := r.Lookup(id); ok && f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("object_0x%02x", id)
}

func u(width int, factor float64, name, unit string) ObjectFormat {
	return ObjectFormat{Width: width, Encoding: EncodingUnsigned, Factor: factor, Name: name, Unit: unit}
}

func s(width int, factor float64, name, unit string) ObjectFormat {
	return ObjectFormat{Width: width, Encoding: EncodingSigned, Factor: factor, Name: name, Unit: unit}
}

func variable(name string) ObjectFormat {
	return ObjectFormat{Width: 0, Encoding: EncodingVariable, Factor: 1, Name: name}
}

// DefaultRegistry is the BTHome object table (https://bthome.io/format/)
var DefaultRegistry = MustRegistry(map[uint8]ObjectFormat{
	0x00: u(1, 1, "packet_id", ""),
	0x01: u(1, 1, "battery", "%"),
	0x02: s(2, 100, "temperature", "°C"),
	0x03: u(2, 100, "humidity", "%"),
	0x04: u(3, 100, "pressure", "hPa"),
	0x05: u(3, 100, "illuminance", "lx"),
	0x06: u(2, 100, "mass", "kg"),
	0x07: u(2, 100, "mass_lb", "lb"),
	0x08: s(2, 100, "dewpoint", "°C"),
	0x09: u(1, 1, "count", ""),
	0x0A: u(3, 1000, "energy", "kWh"),
	0x0B: u(3, 100, "power", "W"),
	0x0C: u(2, 1000, "voltage", "V"),
	0x0D: u(2, 1, "pm25", "µg/m³"),
	0x0E: u(2, 1, "pm10", "µg/m³"),
	0x0F: u(1, 1, "generic_boolean", ""),
	0x10: u(1, 1, "power_on", ""),
	0x11: u(1, 1, "opening", ""),
	0x12: u(2, 1, "co2", "ppm"),
	0x13: u(2, 1, "tvoc", "µg/m³"),
	0x14: u(2, 100, "moisture", "%"),
	0x15: u(1, 1, "battery_low", ""),
	0x16: u(1, 1, "battery_charging", ""),
	0x17: u(1, 1, "carbon_monoxide", ""),
	0x18: u(1, 1, "cold", ""),
	0x19: u(1, 1, "connectivity", ""),
	0x1A: u(1, 1, "door", ""),
	0x1B: u(1, 1, "garage_door", ""),
	0x1C: u(1, 1, "gas_detected", ""),
	0x1D: u(1, 1, "heat", ""),
	0x1E: u(1, 1, "light", ""),
	0x1F: u(1, 1, "lock", ""),
	0x20: u(1, 1, "moisture_detected", ""),
	0x21: u(1, 1, "motion", ""),
	0x22: u(1, 1, "moving", ""),
	0x23: u(1, 1, "occupancy", ""),
	0x24: u(1, 1, "plug", ""),
	0x25: u(1, 1, "presence", ""),
	0x26: u(1, 1, "problem", ""),
	0x27: u(1, 1, "running", ""),
	0x28: u(1, 1, "safety", ""),
	0x29: u(1, 1, "smoke", ""),
	0x2A: u(1, 1, "sound", ""),
	0x2B: u(1, 1, "tamper", ""),
	0x2C: u(1, 1, "vibration", ""),
	0x2D: u(1, 1, "window", ""),
	0x2E: u(1, 1, "humidity_coarse", "%"),
	0x2F: u(1, 1, "moisture_coarse", "%"),
	0x3A: u(1, 1, "button", ""),
	0x3C: u(2, 1, "dimmer", ""),
	0x3D: u(2, 1, "count_u16", ""),
	0x3E: u(4, 1, "count_u32", ""),
	0x3F: s(2, 10, "rotation", "°"),
	0x40: u(2, 1, "distance_mm", "mm"),
	0x41: u(2, 10, "distance_m", "m"),
	0x42: u(3, 1000, "duration", "s"),
	0x43: u(2, 1000, "current", "A"),
	0x44: u(2, 100, "speed", "m/s"),
	0x45: s(2, 10, "temperature_coarse", "°C"),
	0x46: u(1, 10, "uv_index", ""),
	0x47: u(2, 10, "volume_l", "L"),
	0x48: u(2, 1, "volume_ml", "mL"),
	0x49: u(2, 1000, "volume_flow_rate", "m³/h"),
	0x4A: u(2, 10, "voltage_coarse", "V"),
	0x4B: u(3, 1000, "gas", "m³"),
	0x4C: u(4, 1000, "gas_u32", "m³"),
	0x4D: u(4, 1000, "energy_u32", "kWh"),
	0x4E: u(4, 1000, "volume", "L"),
	0x4F: u(4, 1000, "water", "L"),
	0x50: u(4, 1, "timestamp", "s"),
	0x51: u(2, 1000, "acceleration", "m/s²"),
	0x52: u(2, 1000, "gyroscope", "°/s"),
	0x53: variable("text"),
	0x54: variable("raw"),
	0x55: u(4, 1000, "volume_storage", "L"),
	0x56: u(2, 1, "conductivity", "µS/cm"),
	0x57: s(1, 1, "temperature_s8", "°C"),
	0x58: s(1, 1/0.35, "temperature_s8_035", "°C"),
	0x59: s(1, 1, "count_s8", ""),
	0x5A: s(2, 1, "count_s16", ""),
	0x5B: s(4, 1, "count_s32", ""),
	0x5C: s(4, 100, "power_s32", "W"),
	0x5D: s(2, 1000, "current_s16", "A"),
	0x5E: u(2, 100, "direction", "°"),
	0x5F: u(2, 10, "precipitation", "mm"),
	0x60: u(1, 1, "channel", ""),
	0x61: u(2, 1, "rotational_speed", "rpm"),
	0xF0: u(2, 1, "device_type_id", ""),
	0xF1: u(4, 1, "firmware_version", ""),
	0xF2: u(3, 1, "firmware_version_u24", ""),
})
