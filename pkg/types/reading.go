package types

import (
	"strings"
	"time"
)

// Reading is a single decoded BTHome object from one advertisement
type Reading struct {
	Timestamp  time.Time
	MAC        string
	DeviceName string // Friendly name from config, prefix applied
	ObjectID   uint8
	ObjectName string // Registry name, e.g. "temperature"
	Unit       string
	Index      int // Repeat index for objects that occur more than once (buttons)
	Value      float64
	RSSI       int16
	Encrypted  bool
}

// MetricName returns the Prometheus metric name for this reading
func (r *Reading) MetricName() string {
	name := strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(strings.ToLower(r.ObjectName))
	return "bthome_" + name
}

// GetTimestamp returns the time the advertisement was received
func (r *Reading) GetTimestamp() time.Time {
	return r.Timestamp
}
