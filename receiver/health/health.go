package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/pkg/bthome"
	"github.com/mjasion/balena-home/receiver/hub"
)

// PushTracker exposes the last successful remote write
type PushTracker interface {
	LastPushTime() time.Time
}

// BufferStats exposes the reading buffer fill
type BufferStats interface {
	Size() int
	Overwritten() uint64
}

// DeviceTracker exposes configured devices and when they were last decoded
type DeviceTracker interface {
	Devices() []*hub.Device
	LastSeen(mac uint64) (time.Time, bool)
}

// DeviceStatus is one entry of the health response
type DeviceStatus struct {
	Name     string     `json:"name"`
	MAC      string     `json:"mac"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// Status is the JSON body of /health
type Status struct {
	Status              string         `json:"status"`
	LastPushTime        time.Time      `json:"lastPushTime"`
	BufferedReadings    int            `json:"bufferedReadings"`
	OverwrittenReadings uint64         `json:"overwrittenReadings"`
	Devices             []DeviceStatus `json:"devices"`
}

// Checker serves the health endpoint
type Checker struct {
	pusher       PushTracker
	buffer       BufferStats
	devices      DeviceTracker
	pushInterval time.Duration
	server       *http.Server
	logger       *zap.Logger
}

// NewChecker creates a health checker listening on port
func NewChecker(pusher PushTracker, buf BufferStats, devices DeviceTracker, pushInterval time.Duration, port int, logger *zap.Logger) *Checker {
	c := &Checker{
		pusher:       pusher,
		buffer:       buf,
		devices:      devices,
		pushInterval: pushInterval,
		logger:       logger,
	}

	c.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      c.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return c
}

// Router returns the HTTP routes of the checker
func (c *Checker) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", c.handleHealth).Methods(http.MethodGet)
	return r
}

// Start serves until Stop is called
func (c *Checker) Start() error {
	c.logger.Info("starting health check server", zap.String("addr", c.server.Addr))
	if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("health check server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server
func (c *Checker) Stop(ctx context.Context) error {
	return c.server.Shutdown(ctx)
}

func (c *Checker) handleHealth(w http.ResponseWriter, r *http.Request) {
	lastPush := c.pusher.LastPushTime()
	status := Status{
		Status:              "healthy",
		LastPushTime:        lastPush,
		BufferedReadings:    c.buffer.Size(),
		OverwrittenReadings: c.buffer.Overwritten(),
		Devices:             []DeviceStatus{},
	}

	for _, d := range c.devices.Devices() {
		ds := DeviceStatus{Name: d.DisplayName(), MAC: bthome.FormatMAC(d.MAC)}
		if ts, ok := c.devices.LastSeen(d.MAC); ok {
			ds.LastSeen = &ts
		}
		status.Devices = append(status.Devices, ds)
	}

	code := http.StatusOK
	// Pushing is stale after three missed intervals
	if !lastPush.IsZero() && time.Since(lastPush) > 3*c.pushInterval {
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		c.logger.Warn("failed to write health response", zap.Error(err))
	}
}
