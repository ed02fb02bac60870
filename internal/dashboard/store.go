package dashboard

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"energylink/internal/metrics"
)

// ring is a bounded, concurrency-safe buffer that keeps the newest items.
type ring[T any] struct {
	mu    sync.RWMutex
	items []T
	limit int
}

func newRing[T any](limit int) *ring[T] {
	if limit <= 0 {
		limit = 200
	}
	return &ring[T]{limit: limit}
}

func (r *ring[T]) push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	if len(r.items) > r.limit {
		r.items = append([]T(nil), r.items[len(r.items)-r.limit:]...)
	}
}

// snapshot returns the retained items oldest first, optionally filtered.
func (r *ring[T]) snapshot(keep func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.items))
	for _, it := range r.items {
		if keep == nil || keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// metricStore retains the most recent metrics emitted through metrics.EmitMetric.
type metricStore struct {
	*ring[metrics.Metric]
}

func newMetricStore(limit int) *metricStore {
	return &metricStore{ring: newRing[metrics.Metric](limit)}
}

func (s *metricStore) handle(metric metrics.Metric) { s.push(metric) }

func (s *metricStore) byComponent(component string) []metrics.Metric {
	if component == "" {
		return s.snapshot(nil)
	}
	return s.snapshot(func(m metrics.Metric) bool { return m.Component == component })
}

type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logStore is a logrus hook keeping the most recent entries of the process logger.
type logStore struct {
	*ring[logRecord]
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	ls := &logStore{ring: newRing[logRecord](limit)}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire snapshots the entry; errors and Stringers are rendered so the record
// stays JSON-safe after the entry is reused.
func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}
	fields := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		fields[k] = plain(v)
	}
	component, _ := fields["component"].(string)
	delete(fields, "component")
	if len(fields) == 0 {
		fields = nil
	}

	s.push(logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Component: component,
		Message:   entry.Message,
		Fields:    fields,
	})
	return nil
}

func plain(v interface{}) interface{} {
	switch val := v.(type) {
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	}
	return v
}

// query returns entries at or above minLevel, optionally restricted to one component.
func (s *logStore) query(minLevel, component string) []logRecord {
	threshold := logrus.TraceLevel
	if minLevel != "" {
		if lvl, err := logrus.ParseLevel(minLevel); err == nil {
			threshold = lvl
		}
	}
	return s.snapshot(func(r logRecord) bool {
		lvl, err := logrus.ParseLevel(r.Level)
		if err == nil && lvl > threshold {
			return false
		}
		return component == "" || strings.EqualFold(r.Component, component)
	})
}

func (s *logStore) close() {
	s.enabled.Store(false)
}
