package db

import "time"

// DeviceEvent is a single device transition kept for audit.
type DeviceEvent struct {
	ID         string    `json:"id"`
	DeviceHash string    `json:"device_hash"`
	Hostname   string    `json:"hostname"`
	Kind       string    `json:"kind"`
	Timestamp  time.Time `json:"timestamp"`
}
