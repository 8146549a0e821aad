package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mfreeman451/killswitch/pkg/models"
)

const defaultRetention = 100

// metricPoint represents a single heartbeat observation.
type metricPoint struct {
	timestamp    int64
	responseTime int64
	action       string
}

// LockFreeRingBuffer keeps the latest size points. Writers only advance an
// atomic cursor; callers serialise Add against GetPoints.
type LockFreeRingBuffer struct {
	points []metricPoint
	pos    int64
	size   int64
	pool   sync.Pool
}

// NewBuffer creates the default MetricStore.
func NewBuffer(size int) MetricStore {
	return NewLockFreeBuffer(size)
}

func NewLockFreeBuffer(size int) MetricStore {
	if size <= 0 {
		size = defaultRetention
	}

	return &LockFreeRingBuffer{
		points: make([]metricPoint, size),
		size:   int64(size),
		pool: sync.Pool{
			New: func() interface{} {
				return &models.MetricPoint{}
			},
		},
	}
}

func (b *LockFreeRingBuffer) Add(timestamp time.Time, responseTime int64, action string) {
	pos := atomic.AddInt64(&b.pos, 1) - 1
	idx := pos % b.size

	b.points[idx] = metricPoint{
		timestamp:    timestamp.UnixNano(),
		responseTime: responseTime,
		action:       action,
	}
}

// GetPoints returns the stored points, newest first.
func (b *LockFreeRingBuffer) GetPoints() []models.MetricPoint {
	pos := atomic.LoadInt64(&b.pos)
	count := min(pos, b.size)

	points := make([]models.MetricPoint, count)

	for i := int64(0); i < count; i++ {
		idx := (pos - i - 1 + b.size) % b.size
		p := b.points[idx]

		mp := b.pool.Get().(*models.MetricPoint)
		mp.Timestamp = time.Unix(0, p.timestamp)
		mp.ResponseTime = p.responseTime
		mp.Action = p.action

		points[i] = *mp

		b.pool.Put(mp)
	}

	return points
}

func (b *LockFreeRingBuffer) GetLastPoint() *models.MetricPoint {
	pos := atomic.LoadInt64(&b.pos)
	if pos == 0 {
		return nil
	}

	p := b.points[(pos-1)%b.size]

	return &models.MetricPoint{
		Timestamp:    time.Unix(0, p.timestamp),
		ResponseTime: p.responseTime,
		Action:       p.action,
	}
}
