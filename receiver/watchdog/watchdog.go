package watchdog

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/pkg/bthome"
	"github.com/mjasion/balena-home/receiver/hub"
)

// Tracker reports configured devices that went quiet
type Tracker interface {
	StaleDevices(now time.Time, maxAge time.Duration) []*hub.Device
	LastSeen(mac uint64) (time.Time, bool)
}

// Watchdog periodically warns about devices that stopped advertising
type Watchdog struct {
	cron     *cron.Cron
	tracker  Tracker
	maxAge   time.Duration
	logger   *zap.Logger
	now      func() time.Time
	stale    atomic.Int64
	schedule string
}

// New creates a watchdog that runs on a standard cron schedule or descriptor
// such as "@every 1m".
func New(schedule string, maxAge time.Duration, tracker Tracker, logger *zap.Logger) (*Watchdog, error) {
	w := &Watchdog{
		cron:     cron.New(),
		tracker:  tracker,
		maxAge:   maxAge,
		logger:   logger,
		now:      time.Now,
		schedule: schedule,
	}
	if _, err := w.cron.AddFunc(schedule, w.Check); err != nil {
		return nil, fmt.Errorf("invalid watchdog schedule %q: %w", schedule, err)
	}
	return w, nil
}

// Start runs the schedule in the background
func (w *Watchdog) Start() {
	w.logger.Info("device watchdog started",
		zap.String("schedule", w.schedule),
		zap.Duration("stale_after", w.maxAge),
	)
	w.cron.Start()
}

// Stop stops scheduling and waits for a running check to finish
func (w *Watchdog) Stop() {
	<-w.cron.Stop().Done()
}

// Check logs a warning for every stale device
func (w *Watchdog) Check() {
	now := w.now()
	stale := w.tracker.StaleDevices(now, w.maxAge)
	w.stale.Store(int64(len(stale)))

	for _, d := range stale {
		fields := []zap.Field{
			zap.String("device", d.DisplayName()),
			zap.String("mac", bthome.FormatMAC(d.MAC)),
		}
		if ts, ok := w.tracker.LastSeen(d.MAC); ok {
			fields = append(fields, zap.Time("last_seen", ts), zap.Duration("silent_for", now.Sub(ts)))
		} else {
			fields = append(fields, zap.Bool("never_seen", true))
		}
		w.logger.Warn("device has not reported recently", fields...)
	}
}

// StaleCount returns the number of stale devices found by the last check
func (w *Watchdog) StaleCount() int {
	return int(w.stale.Load())
}
