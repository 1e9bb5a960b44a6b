package types

import "testing"

func TestReading_MetricName(t *testing.T) {
	tests := []struct {
		object   string
		expected string
	}{
		{"temperature", "bthome_temperature"},
		{"Moisture", "bthome_moisture"},
		{"object_0x99", "bthome_object_0x99"},
		{"pm2.5 sensor-a", "bthome_pm2_5_sensor_a"},
	}

	for _, tt := range tests {
		r := &Reading{ObjectName: tt.object}
		if got := r.MetricName(); got != tt.expected {
			t.Errorf("Expected %s, got %s", tt.expected, got)
		}
	}
}
