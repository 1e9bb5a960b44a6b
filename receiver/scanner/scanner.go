package scanner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/mjasion/balena-home/pkg/bthome"
	"github.com/mjasion/balena-home/receiver/hub"
)

// Dispatcher consumes the BTHome service data of one advertisement
type Dispatcher interface {
	ParseDevice(ctx context.Context, ads []hub.Advertisement) bool
}

// Scanner listens for BLE advertisements and forwards BTHome service data
type Scanner struct {
	adapter    *bluetooth.Adapter
	dispatcher Dispatcher
	logger     *zap.Logger
}

// New creates a scanner on the default adapter
func New(dispatcher Dispatcher, logger *zap.Logger) *Scanner {
	return &Scanner{
		adapter:    bluetooth.DefaultAdapter,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Start enables the adapter and scans until ctx is cancelled or Stop is called
func (s *Scanner) Start(ctx context.Context) error {
	s.logger.Info("initializing BLE adapter")
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w", err)
	}

	s.logger.Info("starting BLE scan for BTHome advertisements")
	err := s.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		select {
		case <-ctx.Done():
			adapter.StopScan()
			return
		default:
		}

		ads, err := Advertisements(result.Address.String(), result.RSSI, result.ServiceData(), time.Now())
		if err != nil {
			s.logger.Debug("ignoring advertisement", zap.Error(err))
			return
		}
		if len(ads) == 0 {
			return
		}
		s.dispatcher.ParseDevice(ctx, ads)
	})
	if err != nil {
		return fmt.Errorf("failed to start BLE scan: %w", err)
	}

	return nil
}

// Stop stops the BLE scan
func (s *Scanner) Stop() error {
	s.logger.Info("stopping BLE scan")
	if err := s.adapter.StopScan(); err != nil {
		return fmt.Errorf("failed to stop BLE scan: %w", err)
	}
	return nil
}

// Advertisements extracts the BTHome service data elements of one scan result.
// Elements with other UUIDs are dropped.
func Advertisements(address string, rssi int16, elements []bluetooth.ServiceDataElement, ts time.Time) ([]hub.Advertisement, error) {
	var ads []hub.Advertisement
	var mac uint64
	for _, el := range elements {
		if !el.UUID.Is16Bit() {
			continue
		}
		uuid := el.UUID.Get16Bit()
		if bthome.VersionFromUUID(uuid) == bthome.VersionUnsupported {
			continue
		}

		if mac == 0 {
			parsed, err := bthome.ParseMAC(address)
			if err != nil {
				return nil, err
			}
			mac = parsed
		}

		ads = append(ads, hub.Advertisement{
			MAC:       mac,
			UUID:      uuid,
			Data:      el.Data,
			RSSI:      rssi,
			Timestamp: ts,
		})
	}
	return ads, nil
}
