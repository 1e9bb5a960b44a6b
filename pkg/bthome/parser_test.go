package bthome

import (
	"reflect"
	"strings"
	"testing"
)

type recorder struct {
	measurements []Measurement
	logs         []string
}

func (r *recorder) parser(reg *Registry) *Parser {
	return &Parser{
		Registry:      reg,
		OnMeasurement: func(m Measurement) { r.measurements = append(r.measurements, m) },
		OnLog:         func(msg string) { r.logs = append(r.logs, msg) },
	}
}

func (r *recorder) logged(substr string) bool {
	for _, l := range r.logs {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func TestParse_V2Ascending(t *testing.T) {
	// battery 97%, temperature 25.06°C, humidity 50.55%
	payload := []byte{0x01, 0x61, 0x02, 0xCA, 0x09, 0x03, 0xBF, 0x13}

	rec := &recorder{}
	ok := rec.parser(nil).Parse(payload, VersionV2)
	if !ok {
		t.Fatal("Expected parse to succeed")
	}

	expected := []Measurement{
		{ObjectID: 0x01, Index: 0, Value: 97},
		{ObjectID: 0x02, Index: 0, Value: 25.06},
		{ObjectID: 0x03, Index: 0, Value: 50.55},
	}
	if !reflect.DeepEqual(rec.measurements, expected) {
		t.Errorf("Expected %+v, got %+v", expected, rec.measurements)
	}

	if rec.logged("ascending") {
		t.Error("Did not expect an ordering diagnostic for ascending ids")
	}
}

func TestParse_Scaling(t *testing.T) {
	// 2350 / 100
	measurements, ok := Decode([]byte{0x02, 0x2E, 0x09}, VersionV2)
	if !ok {
		t.Fatal("Expected parse to succeed")
	}
	if len(measurements) != 1 {
		t.Fatalf("Expected 1 measurement, got %d", len(measurements))
	}
	if measurements[0].Value != 23.5 {
		t.Errorf("Expected 23.5, got %v", measurements[0].Value)
	}
}

func TestParse_NegativeTemperature(t *testing.T) {
	measurements, _ := Decode([]byte{0x02, 0xE6, 0xFB}, VersionV2)
	if len(measurements) != 1 {
		t.Fatalf("Expected 1 measurement, got %d", len(measurements))
	}
	if measurements[0].Value != -10.5 {
		t.Errorf("Expected -10.5, got %v", measurements[0].Value)
	}
}

func TestParse_RepeatIndex(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		expected []Measurement
	}{
		{
			name:    "two consecutive buttons",
			payload: []byte{0x3A, 0x01, 0x3A, 0x02},
			expected: []Measurement{
				{ObjectID: 0x3A, Index: 0, Value: 1},
				{ObjectID: 0x3A, Index: 1, Value: 2},
			},
		},
		{
			name:    "three consecutive buttons",
			payload: []byte{0x3A, 0x01, 0x3A, 0x00, 0x3A, 0x04},
			expected: []Measurement{
				{ObjectID: 0x3A, Index: 0, Value: 1},
				{ObjectID: 0x3A, Index: 1, Value: 0},
				{ObjectID: 0x3A, Index: 2, Value: 4},
			},
		},
		{
			name:    "different type resets the index",
			payload: []byte{0x3A, 0x01, 0x3A, 0x02, 0x3C, 0x01, 0x03, 0x3A, 0x03},
			expected: []Measurement{
				{ObjectID: 0x3A, Index: 0, Value: 1},
				{ObjectID: 0x3A, Index: 1, Value: 2},
				{ObjectID: 0x3C, Index: 0, Value: 0x0301},
				{ObjectID: 0x3A, Index: 0, Value: 3},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			measurements, ok := Decode(tt.payload, VersionV2)
			if !ok {
				t.Fatal("Expected parse to succeed")
			}
			if !reflect.DeepEqual(measurements, tt.expected) {
				t.Errorf("Expected %+v, got %+v", tt.expected, measurements)
			}
		})
	}
}

func TestParse_DescendingOrderIsAdvisory(t *testing.T) {
	payload := []byte{0x03, 0xBF, 0x13, 0x02, 0xCA, 0x09}

	rec := &recorder{}
	if !rec.parser(nil).Parse(payload, VersionV2) {
		t.Fatal("Expected parse to succeed")
	}

	if len(rec.measurements) != 2 {
		t.Fatalf("Expected 2 measurements, got %d", len(rec.measurements))
	}
	if !rec.logged("ascending order") {
		t.Errorf("Expected ordering diagnostic, got %v", rec.logs)
	}
}

func TestParse_TruncatedObjectKeepsEarlierRecords(t *testing.T) {
	// humidity is missing its second byte
	payload := []byte{0x02, 0xCA, 0x09, 0x03, 0xBF}

	for i := 0; i < 2; i++ {
		rec := &recorder{}
		if !rec.parser(nil).Parse(payload, VersionV2) {
			t.Fatal("Expected parse to succeed")
		}

		expected := []Measurement{{ObjectID: 0x02, Index: 0, Value: 25.06}}
		if !reflect.DeepEqual(rec.measurements, expected) {
			t.Errorf("run %d: expected %+v, got %+v", i, expected, rec.measurements)
		}
		if !rec.logged("ran into payload end") {
			t.Errorf("run %d: expected truncation diagnostic, got %v", i, rec.logs)
		}
	}
}

func TestParse_UnknownObjectStopsWalk(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"unregistered id inside range", []byte{0x02, 0xCA, 0x09, 0x30, 0x01, 0x03, 0xBF, 0x13}},
		{"id beyond range", []byte{0x02, 0xCA, 0x09, 0xFE, 0x01, 0x03, 0xBF, 0x13}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			if !rec.parser(nil).Parse(tt.payload, VersionV2) {
				t.Fatal("Expected parse to succeed")
			}
			if len(rec.measurements) != 1 {
				t.Errorf("Expected 1 measurement, got %d", len(rec.measurements))
			}
			if !rec.logged("Unknown object id") {
				t.Errorf("Expected unknown id diagnostic, got %v", rec.logs)
			}
		})
	}
}

func TestParse_UnsupportedVersion(t *testing.T) {
	// well-formed v2 objects
	payload := []byte{0x02, 0xCA, 0x09, 0x03, 0xBF, 0x13}

	rec := &recorder{}
	ok := rec.parser(nil).Parse(payload, ProtocolVersion(7))
	if ok {
		t.Error("Expected unsupported version to be rejected")
	}
	if len(rec.measurements) != 0 {
		t.Errorf("Expected 0 measurements, got %d", len(rec.measurements))
	}
	if !rec.logged("unsupported protocol version - 7") {
		t.Errorf("Expected version diagnostic, got %v", rec.logs)
	}
}

func TestParse_V1(t *testing.T) {
	// control byte, object id, value bytes
	payload := []byte{
		0x23, 0x02, 0xCA, 0x09,
		0x03, 0x03, 0xBF, 0x13,
		0x02, 0x01, 0x61,
	}

	measurements, ok := Decode(payload, VersionV1)
	if !ok {
		t.Fatal("Expected parse to succeed")
	}

	expected := []Measurement{
		{ObjectID: 0x02, Index: 0, Value: 25.06},
		{ObjectID: 0x03, Index: 0, Value: 50.55},
		{ObjectID: 0x01, Index: 0, Value: 97},
	}
	if !reflect.DeepEqual(measurements, expected) {
		t.Errorf("Expected %+v, got %+v", expected, measurements)
	}
}

func TestParse_V1TruncatedHeader(t *testing.T) {
	measurements, ok := Decode([]byte{0x02, 0x01, 0x61, 0x02}, VersionV1)
	if !ok {
		t.Fatal("Expected parse to succeed")
	}
	if len(measurements) != 1 {
		t.Errorf("Expected 1 measurement, got %d", len(measurements))
	}
}

func TestParse_VariableLengthObjectSkipped(t *testing.T) {
	// text "ABC" then battery 100%
	measurements, ok := Decode([]byte{0x53, 0x03, 0x41, 0x42, 0x43, 0x60, 0x05}, VersionV2)
	if !ok {
		t.Fatal("Expected parse to succeed")
	}

	expected := []Measurement{{ObjectID: 0x60, Index: 0, Value: 5}}
	if !reflect.DeepEqual(measurements, expected) {
		t.Errorf("Expected %+v, got %+v", expected, measurements)
	}

	measurements, _ = Decode([]byte{0x01, 0x64, 0x54, 0x05, 0x41}, VersionV2)
	if len(measurements) != 1 {
		t.Errorf("Expected truncated raw object to stop after 1 measurement, got %d", len(measurements))
	}

	measurements, _ = Decode([]byte{0x01, 0x64, 0x54}, VersionV2)
	if len(measurements) != 1 {
		t.Errorf("Expected missing length prefix to stop after 1 measurement, got %d", len(measurements))
	}
}

func TestParse_ZeroWidthSkipsHeader(t *testing.T) {
	reg := MustRegistry(map[uint8]ObjectFormat{
		0x01: {Width: 1, Encoding: EncodingUnsigned, Factor: 1, Name: "battery"},
		0x05: {Width: 0, Encoding: EncodingUnsigned, Factor: 1, Name: "reserved"},
	})

	rec := &recorder{}
	if !rec.parser(reg).Parse([]byte{0x05, 0x01, 0x64}, VersionV2) {
		t.Fatal("Expected parse to succeed")
	}

	expected := []Measurement{{ObjectID: 0x01, Index: 0, Value: 100}}
	if !reflect.DeepEqual(rec.measurements, expected) {
		t.Errorf("Expected %+v, got %+v", expected, rec.measurements)
	}
	if !rec.logged("length 0") {
		t.Errorf("Expected zero width diagnostic, got %v", rec.logs)
	}
}

func TestParse_UnsupportedEncodingSkipsObject(t *testing.T) {
	reg := MustRegistry(map[uint8]ObjectFormat{
		0x01: {Width: 1, Encoding: Encoding(9), Factor: 1},
		0x02: {Width: 1, Encoding: EncodingUnsigned, Factor: 1},
	})

	rec := &recorder{}
	if !rec.parser(reg).Parse([]byte{0x01, 0xAA, 0x02, 0x64}, VersionV2) {
		t.Fatal("Expected parse to succeed")
	}

	expected := []Measurement{{ObjectID: 0x02, Index: 0, Value: 100}}
	if !reflect.DeepEqual(rec.measurements, expected) {
		t.Errorf("Expected %+v, got %+v", expected, rec.measurements)
	}
	if !rec.logged("Unknown payload data type - 9") {
		t.Errorf("Expected encoding diagnostic, got %v", rec.logs)
	}
}

func TestParse_EmptyPayload(t *testing.T) {
	measurements, ok := Decode(nil, VersionV2)
	if !ok {
		t.Error("Expected empty payload to be accepted")
	}
	if len(measurements) != 0 {
		t.Errorf("Expected 0 measurements, got %d", len(measurements))
	}
}

func TestParse_NilCallbacks(t *testing.T) {
	p := &Parser{}
	if !p.Parse([]byte{0x02, 0xCA, 0x09, 0xFF}, VersionV2) {
		t.Error("Expected parse to succeed without callbacks")
	}
}

func TestRegistry(t *testing.T) {
	if DefaultRegistry.Len() != 0xF3 {
		t.Errorf("Expected registry range 0xF3, got 0x%X", DefaultRegistry.Len())
	}

	f, ok := DefaultRegistry.Lookup(0x02)
	if !ok {
		t.Fatal("Expected temperature to be registered")
	}
	if f.Width != 2 || f.Encoding != EncodingSigned || f.Factor != 100 {
		t.Errorf("Unexpected temperature format: %+v", f)
	}

	if _, ok := DefaultRegistry.Lookup(0xFF); ok {
		t.Error("Expected 0xFF to be unknown")
	}
	if _, ok := DefaultRegistry.Lookup(0x30); ok {
		t.Error("Expected 0x30 to be unknown")
	}

	if name := DefaultRegistry.Name(0x30); name != "object_0x30" {
		t.Errorf("Expected placeholder name, got %s", name)
	}
}

func TestNewRegistry_Invalid(t *testing.T) {
	if _, err := NewRegistry(map[uint8]ObjectFormat{0x01: {Width: 5, Factor: 1}}); err == nil {
		t.Error("Expected error for width 5")
	}
	if _, err := NewRegistry(map[uint8]ObjectFormat{0x01: {Width: 1, Factor: 0}}); err == nil {
		t.Error("Expected error for zero factor")
	}
}
