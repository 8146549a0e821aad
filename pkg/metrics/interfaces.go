package metrics

import (
	"time"

	"github.com/mfreeman451/killswitch/pkg/models"
)

type MetricStore interface {
	Add(timestamp time.Time, responseTime int64, action string)
	GetPoints() []models.MetricPoint
	GetLastPoint() *models.MetricPoint
}

type MetricCollector interface {
	AddMetric(deviceHash string, timestamp time.Time, responseTime int64, action string) error
	GetMetrics(deviceHash string) []models.MetricPoint
	CleanupStaleDevices(staleDuration time.Duration)
}
