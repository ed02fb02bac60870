package metrics

import (
	"maps"
	"sync"
	"time"

	"energylink/logger"
)

// Metric is one structured measurement emitted by a component.
type Metric struct {
	Timestamp time.Time     `json:"timestamp"`
	Component string        `json:"component"`
	Name      string        `json:"name"`
	Value     interface{}   `json:"value"`
	Type      string        `json:"type"`
	Fields    logger.Fields `json:"fields,omitempty"`
}

// MetricHandler consumes emitted metrics. Handlers run synchronously on the
// emitting goroutine.
type MetricHandler func(Metric)

// MetricHandlerID identifies a registration; zero is never issued.
type MetricHandlerID uint64

type registration struct {
	handle     MetricHandler
	components map[string]struct{}
}

func (r registration) wants(component string) bool {
	if len(r.components) == 0 {
		return true
	}
	_, ok := r.components[component]
	return ok
}

var handlers = struct {
	sync.RWMutex
	byID map[MetricHandlerID]registration
	next MetricHandlerID
}{byID: make(map[MetricHandlerID]registration)}

// RegisterMetricHandler subscribes handler to emitted metrics, restricted to
// the listed components when any are given. A nil handler yields zero.
func RegisterMetricHandler(handler MetricHandler, components ...string) MetricHandlerID {
	if handler == nil {
		return 0
	}
	reg := registration{handle: handler}
	if len(components) > 0 {
		reg.components = make(map[string]struct{}, len(components))
		for _, c := range components {
			reg.components[c] = struct{}{}
		}
	}

	handlers.Lock()
	defer handlers.Unlock()
	handlers.next++
	handlers.byID[handlers.next] = reg
	return handlers.next
}

func UnregisterMetricHandler(id MetricHandlerID) {
	if id == 0 {
		return
	}
	handlers.Lock()
	delete(handlers.byID, id)
	handlers.Unlock()
}

// EmitMetric logs the metric (which also publishes numeric values to
// CloudWatch), mirrors numeric values into energylink_component_metric and
// hands the metric to every interested handler. Unnamed metrics are dropped.
func EmitMetric(log *logger.Log, component, name string, value interface{}, metricType string, fields logger.Fields) {
	if name == "" {
		return
	}
	if metricType == "" {
		metricType = "counter"
	}
	if log == nil {
		log = logger.GetLogger()
	}

	userFields := cloneFields(fields)
	log.LogMetric(component, name, value, metricType, cloneFields(userFields))
	mirror(component, name, metricType, value)

	dispatchMetric(Metric{
		Timestamp: time.Now(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    userFields,
	})
}

func dispatchMetric(metric Metric) {
	handlers.RLock()
	targets := make([]MetricHandler, 0, len(handlers.byID))
	for _, reg := range handlers.byID {
		if reg.wants(metric.Component) {
			targets = append(targets, reg.handle)
		}
	}
	handlers.RUnlock()

	for _, handle := range targets {
		handle(metric)
	}
}

// mirror sets gauges and accumulates non-negative counters.
func mirror(component, name, metricType string, value interface{}) {
	v, ok := numeric(value)
	if !ok {
		return
	}
	initCollectors()
	g := componentMetrics.WithLabelValues(component, name)
	switch {
	case metricType == "counter" && v >= 0:
		g.Add(v)
	case metricType != "counter":
		g.Set(v)
	}
}

func numeric(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case time.Duration:
		return v.Seconds(), true
	default:
		return 0, false
	}
}

func cloneFields(fields logger.Fields) logger.Fields {
	if len(fields) == 0 {
		return logger.Fields{}
	}
	return maps.Clone(fields)
}
