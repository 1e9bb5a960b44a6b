package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Packet outcomes recorded on the packets counter
const (
	OutcomeDecoded     = "decoded"
	OutcomeUnsupported = "unsupported"
	OutcomeNoKey       = "no_key"
	OutcomeDecryptFail = "decrypt_failed"
	OutcomeMalformed   = "malformed"
)

// Instruments are the receiver's own OpenTelemetry counters. The zero value
// is not usable; build with NewInstruments. With no meter provider installed
// the global no-op provider is used and every call is free.
type Instruments struct {
	packets      metric.Int64Counter
	measurements metric.Int64Counter
	decryptFails metric.Int64Counter
}

// NewInstruments registers the BTHome counters on the global meter provider
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter("github.com/mjasion/balena-home/bthome")

	packets, err := meter.Int64Counter("bthome.packets",
		metric.WithDescription("BTHome service data elements processed, by protocol version and outcome"),
	)
	if err != nil {
		return nil, err
	}

	measurements, err := meter.Int64Counter("bthome.measurements",
		metric.WithDescription("Measurements decoded from BTHome payloads"),
	)
	if err != nil {
		return nil, err
	}

	decryptFails, err := meter.Int64Counter("bthome.decrypt.failures",
		metric.WithDescription("Encrypted BTHome payloads that failed authentication"),
	)
	if err != nil {
		return nil, err
	}

	return &Instruments{
		packets:      packets,
		measurements: measurements,
		decryptFails: decryptFails,
	}, nil
}

// Packet records one service data element
func (i *Instruments) Packet(ctx context.Context, version, outcome string) {
	if i == nil {
		return
	}
	i.packets.Add(ctx, 1, metric.WithAttributes(
		attribute.String("version", version),
		attribute.String("outcome", outcome),
	))
}

// Measurements records n decoded measurements for a device
func (i *Instruments) Measurements(ctx context.Context, device string, n int) {
	if i == nil || n == 0 {
		return
	}
	i.measurements.Add(ctx, int64(n), metric.WithAttributes(attribute.String("device", device)))
}

// DecryptFailure records one failed authentication for a device
func (i *Instruments) DecryptFailure(ctx context.Context, device string) {
	if i == nil {
		return
	}
	i.decryptFails.Add(ctx, 1, metric.WithAttributes(attribute.String("device", device)))
}
