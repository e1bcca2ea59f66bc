package timeseries

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory keeps points in process. It backs tests and single-node
// deployments that run without an InfluxDB instance.
type Memory struct {
	mu     sync.RWMutex
	series map[string][]Point // "groupID/measurement" -> points

	// Now is overridable for tests. Defaults to time.Now.
	Now func() time.Time
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{series: make(map[string][]Point), Now: time.Now}
}

func seriesKey(groupID, measurement string) string {
	return groupID + "/" + measurement
}

func (m *Memory) WritePoint(ctx context.Context, groupID, sensorID, measurement string, value float64, unit string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := seriesKey(groupID, measurement)
	m.series[key] = append(m.series[key], Point{Time: at, Value: value})
	return nil
}

func (m *Memory) Window(ctx context.Context, groupID, measurement string, window time.Duration) ([]Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := m.Now().Add(-window)
	var out []Point
	for _, p := range m.series[seriesKey(groupID, measurement)] {
		if p.Time.After(cutoff) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (m *Memory) Close() error { return nil }
