package bthome

import (
	"fmt"
)

// noPreviousType is the "none" sentinel for the ascending-order check
const noPreviousType = 255

// Measurement is one decoded object
type Measurement struct {
	ObjectID uint8
	Index    int // occurrences of the same ObjectID immediately before this one
	Value    float64
}

// Parser walks BTHome object sequences. A zero Parser uses DefaultRegistry and
// discards diagnostics. Parser keeps no state between calls.
type Parser struct {
	Registry *Registry
	// OnMeasurement receives every decoded object in payload order
	OnMeasurement func(Measurement)
	// OnLog receives advisory diagnostics. They never affect the outcome.
	OnLog func(string)
}

func (p *Parser) registry() *Registry {
	if p.Registry != nil {
		return p.Registry
	}
	return DefaultRegistry
}

func (p *Parser) logf(format string, args ...any) {
	if p.OnLog != nil {
		p.OnLog(fmt.Sprintf(format, args...))
	}
}

// Parse decodes payload (objects only, v2 header already stripped).
// It returns false only when the protocol version is unsupported; truncated or
// unknown trailing objects stop the walk but keep earlier measurements.
func (p *Parser) Parse(payload []byte, version ProtocolVersion) bool {
	if version != VersionV1 && version != VersionV2 {
		p.logf("BTHome unsupported protocol version - %d", uint8(version))
		return false
	}

	p.logf("rec BT payload is: % x", payload)

	reg := p.registry()
	cursor := 0
	prevType := noPreviousType
	index := 0

	for cursor < len(payload) {
		var objType uint8
		var valueStart int

		if version == VersionV1 {
			// cursor holds the legacy control byte
			if cursor+1 >= len(payload) {
				p.logf("Invalid payload data length: object header truncated at offset %d.", cursor)
				break
			}
			objType = payload[cursor+1]
			valueStart = cursor + 2
		} else {
			objType = payload[cursor]
			if int(objType) == prevType {
				index++
			} else {
				index = 0
			}
			if int(objType) < prevType && prevType != noPreviousType {
				p.logf("BTHome device is not sending object ids in required ascending order (0x%02x after 0x%02x).", objType, prevType)
			}
			prevType = int(objType)
			valueStart = cursor + 1
		}

		format, ok := reg.Lookup(objType)
		if !ok {
			// ids ascend, so nothing after this one can be decoded either
			p.logf("Unknown object id 0x%02x found in payload, stopping.", objType)
			break
		}

		if format.Width == 0 {
			if format.Encoding == EncodingVariable {
				next, ok := p.skipVariable(payload, valueStart, objType)
				if !ok {
					break
				}
				cursor = next
				continue
			}
			p.logf("Invalid payload data length found with length 0 for object 0x%02x.", objType)
			cursor = valueStart
			continue
		}

		next := valueStart + format.Width
		if next > len(payload) {
			p.logf("Invalid payload data length: ran into payload end while expecting more data for object 0x%02x.", objType)
			break
		}

		if format.Encoding != EncodingUnsigned && format.Encoding != EncodingSigned {
			p.logf("Unknown payload data type - %d", uint8(format.Encoding))
			cursor = next
			continue
		}

		raw := DecodeInteger(payload[valueStart:next], format.Encoding, format.Width)
		value := float64(raw) / format.Factor

		if p.OnMeasurement != nil {
			p.OnMeasurement(Measurement{ObjectID: objType, Index: index, Value: value})
		}

		cursor = next
	}

	return true
}

// skipVariable steps over a length-prefixed object. The bool is false when the
// prefix or body runs past the payload end.
func (p *Parser) skipVariable(payload []byte, valueStart int, objType uint8) (int, bool) {
	if valueStart >= len(payload) {
		p.logf("Invalid payload data length: missing length prefix for object 0x%02x.", objType)
		return 0, false
	}
	next := valueStart + 1 + int(payload[valueStart])
	if next > len(payload) {
		p.logf("Invalid payload data length: ran into payload end while expecting more data for object 0x%02x.", objType)
		return 0, false
	}
	p.logf("Skipping variable-length object 0x%02x (%d bytes).", objType, next-valueStart-1)
	return next, true
}

// Decode parses payload with the default registry and collects the
// measurements. ok has the same meaning as Parser.Parse.
func Decode(payload []byte, version ProtocolVersion) (measurements []Measurement, ok bool) {
	p := Parser{
		OnMeasurement: func(m Measurement) {
			measurements = append(measurements, m)
		},
	}
	ok = p.Parse(payload, version)
	return measurements, ok
}
