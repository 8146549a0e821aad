package metrics

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mfreeman451/killswitch/pkg/logger"
	"github.com/mfreeman451/killswitch/pkg/models"
)

var errMaxDevices = errors.New("metrics device limit reached")

type deviceMetrics struct {
	mu     sync.RWMutex
	buffer MetricStore
}

// Manager keeps a ring buffer of heartbeat observations per device.
type Manager struct {
	devices       sync.Map // device hash -> *deviceMetrics
	config        models.MetricsConfig
	activeDevices int64
	logger        logger.Logger
}

func NewManager(cfg models.MetricsConfig, log logger.Logger) MetricCollector {
	if log == nil {
		log = logger.NewTestLogger()
	}

	log.Debug().
		Bool("enabled", cfg.Enabled).
		Int("retention", cfg.Retention).
		Int("max_devices", cfg.MaxNodes).
		Msg("Creating metrics manager")

	return &Manager{
		config: cfg,
		logger: log,
	}
}

func (m *Manager) AddMetric(deviceHash string, timestamp time.Time, responseTime int64, action string) error {
	if !m.config.Enabled {
		return nil
	}

	dm, ok := m.devices.Load(deviceHash)
	if !ok {
		if m.config.MaxNodes > 0 && atomic.LoadInt64(&m.activeDevices) >= int64(m.config.MaxNodes) {
			return errMaxDevices
		}

		var loaded bool

		dm, loaded = m.devices.LoadOrStore(deviceHash, &deviceMetrics{
			buffer: NewBuffer(m.config.Retention),
		})

		if !loaded {
			atomic.AddInt64(&m.activeDevices, 1)
		}
	}

	d := dm.(*deviceMetrics)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.buffer.Add(timestamp, responseTime, action)

	return nil
}

func (m *Manager) GetMetrics(deviceHash string) []models.MetricPoint {
	dm, ok := m.devices.Load(deviceHash)
	if !ok {
		return nil
	}

	d := dm.(*deviceMetrics)

	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.buffer.GetPoints()
}

// CleanupStaleDevices drops devices whose latest point is older than
// staleDuration.
func (m *Manager) CleanupStaleDevices(staleDuration time.Duration) {
	cutoff := time.Now().Add(-staleDuration)

	m.devices.Range(func(key, value interface{}) bool {
		d := value.(*deviceMetrics)

		d.mu.RLock()
		last := d.buffer.GetLastPoint()
		d.mu.RUnlock()

		if last == nil || last.Timestamp.Before(cutoff) {
			if _, deleted := m.devices.LoadAndDelete(key); deleted {
				atomic.AddInt64(&m.activeDevices, -1)

				m.logger.Debug().Str("device", key.(string)).Msg("Dropped stale metrics")
			}
		}

		return true
	})
}

func (m *Manager) GetActiveDevices() int64 {
	return atomic.LoadInt64(&m.activeDevices)
}
