package hub

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/pkg/bthome"
	"github.com/mjasion/balena-home/pkg/telemetry"
	"github.com/mjasion/balena-home/pkg/types"
	"github.com/mjasion/balena-home/receiver/config"
)

// Advertisement is one service data element heard from a device
type Advertisement struct {
	MAC       uint64
	UUID      uint16
	Data      []byte
	RSSI      int16
	Timestamp time.Time
}

// Device is a configured BTHome sensor
type Device struct {
	Name       string
	MAC        uint64
	NamePrefix string
	key        []byte
}

// Encrypted reports whether a bind key is configured for the device
func (d *Device) Encrypted() bool {
	return len(d.key) > 0
}

// DisplayName is the name used in logs and metric labels
func (d *Device) DisplayName() string {
	return d.NamePrefix + d.Name
}

// Sink receives readings decoded from configured devices
type Sink interface {
	AddAll(readings []*types.Reading)
}

// Hub routes advertisements to the BTHome decoder and collects the readings
// of configured devices. It is safe for concurrent use.
type Hub struct {
	devices     map[uint64]*Device
	dumpOption  string
	registry    *bthome.Registry
	sink        Sink
	logger      *telemetry.ContextLogger
	instruments *telemetry.Instruments

	mu       sync.Mutex
	lastSeen map[uint64]time.Time
}

// New builds a hub from the BLE configuration. Keys and MACs are parsed once
// here so the hot path never handles hex.
func New(cfg config.BLEConfig, sink Sink, instruments *telemetry.Instruments, logger *zap.Logger) (*Hub, error) {
	devices := make(map[uint64]*Device, len(cfg.Devices))
	for _, dc := range cfg.Devices {
		mac, err := bthome.ParseMAC(dc.MACAddress)
		if err != nil {
			return nil, err
		}
		dev := &Device{Name: dc.Name, MAC: mac, NamePrefix: dc.NamePrefix}
		if dc.EncryptionKey != "" {
			key, err := bthome.ParseKey(dc.EncryptionKey)
			if err != nil {
				return nil, err
			}
			dev.key = key
		}
		devices[mac] = dev
	}

	dump := cfg.DumpOption
	if dump == "" {
		dump = config.DumpNone
	}

	return &Hub{
		devices:     devices,
		dumpOption:  dump,
		registry:    bthome.DefaultRegistry,
		sink:        sink,
		logger:      telemetry.NewContextLogger(logger),
		instruments: instruments,
		lastSeen:    make(map[uint64]time.Time),
	}, nil
}

// ParseDevice handles every service data element of one advertisement and
// reports whether at least one of them was parsed.
func (h *Hub) ParseDevice(ctx context.Context, ads []Advertisement) bool {
	parsed := false
	for _, ad := range ads {
		if h.ParseServiceData(ctx, ad) {
			parsed = true
		}
	}
	return parsed
}

// ParseServiceData decodes a single service data element. It returns false for
// unsupported UUIDs or versions, ignored devices, missing keys, failed
// authentication and malformed headers.
func (h *Hub) ParseServiceData(ctx context.Context, ad Advertisement) bool {
	version := bthome.VersionFromUUID(ad.UUID)
	if version == bthome.VersionUnsupported {
		return false
	}

	dev, configured := h.devices[ad.MAC]
	if !configured && h.dumpOption == config.DumpNone {
		return false
	}

	mac := bthome.FormatMAC(ad.MAC)
	ctx, span := otel.Tracer("hub").Start(ctx, "hub.ParseServiceData",
		trace.WithAttributes(
			attribute.String("bthome.mac", mac),
			attribute.String("bthome.version", version.String()),
			attribute.Int("bthome.payload_len", len(ad.Data)),
		),
	)
	defer span.End()

	logger := h.logger.WithTraceContext(ctx).With(
		zap.String("mac", mac),
		zap.String("version", version.String()),
	)

	objects, encrypted, outcome := h.objects(ctx, ad, version, dev, logger)
	if outcome != "" {
		h.instruments.Packet(ctx, version.String(), outcome)
		span.SetStatus(codes.Error, outcome)
		return false
	}

	var measurements []bthome.Measurement
	parser := bthome.Parser{
		Registry: h.registry,
		OnMeasurement: func(m bthome.Measurement) {
			measurements = append(measurements, m)
		},
		OnLog: func(msg string) {
			logger.Debug("bthome decoder", zap.String("diagnostic", msg))
		},
	}
	if !parser.Parse(objects, version) {
		h.instruments.Packet(ctx, version.String(), telemetry.OutcomeUnsupported)
		span.SetStatus(codes.Error, telemetry.OutcomeUnsupported)
		return false
	}
	h.instruments.Packet(ctx, version.String(), telemetry.OutcomeDecoded)

	ts := ad.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	name := mac
	if configured {
		name = dev.DisplayName()
	}

	readings := make([]*types.Reading, 0, len(measurements))
	for _, m := range measurements {
		format, _ := h.registry.Lookup(m.ObjectID)
		readings = append(readings, &types.Reading{
			Timestamp:  ts,
			MAC:        mac,
			DeviceName: name,
			ObjectID:   m.ObjectID,
			ObjectName: h.registry.Name(m.ObjectID),
			Unit:       format.Unit,
			Index:      m.Index,
			Value:      m.Value,
			RSSI:       ad.RSSI,
			Encrypted:  encrypted,
		})
	}
	span.SetAttributes(attribute.Int("bthome.measurements", len(readings)))

	if configured {
		h.mu.Lock()
		h.lastSeen[ad.MAC] = ts
		h.mu.Unlock()

		if len(readings) > 0 && h.sink != nil {
			h.sink.AddAll(readings)
		}
		h.instruments.Measurements(ctx, name, len(readings))
	}

	if h.dumpOption == config.DumpAll || (h.dumpOption == config.DumpUnmatched && !configured) {
		logReadings(logger.Info, name, ad.RSSI, readings)
	} else {
		logReadings(logger.Debug, name, ad.RSSI, readings)
	}

	span.SetStatus(codes.Ok, "decoded")
	return true
}

// objects strips the v2 header, decrypting first when needed. A non-empty
// outcome means the element was rejected.
func (h *Hub) objects(ctx context.Context, ad Advertisement, version bthome.ProtocolVersion, dev *Device, logger *zap.Logger) ([]byte, bool, string) {
	if version == bthome.VersionV1 {
		return ad.Data, false, ""
	}

	payload := ad.Data
	if len(payload) == 0 {
		logger.Debug("empty BTHome v2 service data")
		return nil, false, telemetry.OutcomeMalformed
	}

	info := bthome.ParseDeviceInfo(payload[0])
	if info.Version != uint8(bthome.VersionV2) {
		logger.Debug("BTHome header carries unsupported version", zap.Uint8("header_version", info.Version))
		return nil, false, telemetry.OutcomeUnsupported
	}

	encrypted := info.Encrypted
	if encrypted {
		if dev == nil {
			logger.Debug("skipping encrypted BTHome payload from unconfigured device")
			return nil, true, telemetry.OutcomeNoKey
		}
		if !dev.Encrypted() {
			logger.Warn("encrypted BTHome payload but no encryption key configured", zap.String("device", dev.DisplayName()))
			return nil, true, telemetry.OutcomeNoKey
		}

		plain, err := bthome.Decrypt(payload, dev.key, ad.MAC)
		if err != nil {
			h.instruments.DecryptFailure(ctx, dev.DisplayName())
			logger.Warn("failed to decrypt BTHome payload", zap.Error(err))
			return nil, true, telemetry.OutcomeDecryptFail
		}
		payload = plain
		info = bthome.ParseDeviceInfo(payload[0])
	}

	skip := info.HeaderLen()
	if skip > len(payload) {
		logger.Debug("BTHome payload shorter than its header", zap.Int("header_len", skip), zap.Int("payload_len", len(payload)))
		return nil, encrypted, telemetry.OutcomeMalformed
	}

	return payload[skip:], encrypted, ""
}

func logReadings(log func(string, ...zap.Field), name string, rssi int16, readings []*types.Reading) {
	fields := make([]zap.Field, 0, len(readings)+2)
	fields = append(fields, zap.String("device", name), zap.Int16("rssi_dbm", rssi))
	for _, r := range readings {
		key := r.ObjectName
		if r.Index > 0 {
			key += "_" + strconv.Itoa(r.Index)
		}
		fields = append(fields, zap.Float64(key, r.Value))
	}
	log("bthome_reading", fields...)
}

// LastSeen returns when a configured device last produced a decoded packet
func (h *Hub) LastSeen(mac uint64) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts, ok := h.lastSeen[mac]
	return ts, ok
}

// Devices returns the configured devices ordered by name
func (h *Hub) Devices() []*Device {
	devices := make([]*Device, 0, len(h.devices))
	for _, d := range h.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}

// StaleDevices lists configured devices not seen within maxAge of now. Devices
// that were never seen are included.
func (h *Hub) StaleDevices(now time.Time, maxAge time.Duration) []*Device {
	h.mu.Lock()
	defer h.mu.Unlock()

	var stale []*Device
	for _, d := range h.Devices() {
		ts, ok := h.lastSeen[d.MAC]
		if !ok || now.Sub(ts) > maxAge {
			stale = append(stale, d)
		}
	}
	return stale
}
