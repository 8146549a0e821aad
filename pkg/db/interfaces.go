// Package db pkg/db/interfaces.go
package db

import (
	"context"
	"time"

	"github.com/mfreeman451/killswitch/pkg/command"
)

//go:generate mockgen -destination=mock_db.go -package=db github.com/mfreeman451/killswitch/pkg/db Service

// Service represents all database operations.
type Service interface {
	Close() error

	// Device event operations.

	RecordEvent(ctx context.Context, event *DeviceEvent) error
	DeviceEvents(ctx context.Context, deviceHash string, limit int) ([]DeviceEvent, error)
	RecentEvents(ctx context.Context, limit int) ([]DeviceEvent, error)

	// Phased command operations.

	RecordTrigger(ctx context.Context, at time.Time, source string) error
	LoadTriggers(ctx context.Context) ([]command.Trigger, error)

	// Maintenance operations.

	CleanOldData(ctx context.Context, retentionPeriod time.Duration) error
}
