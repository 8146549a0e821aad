package alerts

import (
	"time"

	"golang.org/x/time/rate"
)

type AlertLevel string

const (
	Info    AlertLevel = "info"
	Warning AlertLevel = "warning"
	Error   AlertLevel = "error"
)

// Alert describes a device transition or an authority event.
type Alert struct {
	Level      AlertLevel     `json:"level"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Timestamp  string         `json:"timestamp"`
	Hostname   string         `json:"hostname"`
	DeviceHash string         `json:"device_hash"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details,omitempty"`
}

func (a *Alert) ensureTimestamp() {
	if a.Timestamp == "" {
		a.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
}

// cooldownKey scopes the cooldown to one kind of alert for one device.
func (a *Alert) cooldownKey() string {
	return a.Title + "/" + a.DeviceHash
}

const (
	defaultRateInterval = time.Second
	defaultRateBurst    = 5
)

func newLimiter(interval time.Duration, burst int) *rate.Limiter {
	if interval <= 0 {
		interval = defaultRateInterval
	}

	if burst <= 0 {
		burst = defaultRateBurst
	}

	return rate.NewLimiter(rate.Every(interval), burst)
}
