package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"energylink/logger"
)

func resetMetricHandlers() {
	handlers.Lock()
	handlers.byID = make(map[MetricHandlerID]registration)
	handlers.next = 0
	handlers.Unlock()
}

func collect(t *testing.T, components ...string) *[]Metric {
	t.Helper()
	var got []Metric
	id := RegisterMetricHandler(func(m Metric) { got = append(got, m) }, components...)
	if id == 0 {
		t.Fatal("expected non-zero handler id")
	}
	t.Cleanup(func() { UnregisterMetricHandler(id) })
	return &got
}

func TestRegisterMetricHandlerIDs(t *testing.T) {
	resetMetricHandlers()

	first := RegisterMetricHandler(func(Metric) {})
	second := RegisterMetricHandler(func(Metric) {})
	if first == 0 || second == 0 || first == second {
		t.Fatalf("expected distinct non-zero ids, got %d and %d", first, second)
	}
	if id := RegisterMetricHandler(nil); id != 0 {
		t.Fatalf("expected zero id for nil handler, got %d", id)
	}
}

func TestEmitMetricDispatchesCopies(t *testing.T) {
	resetMetricHandlers()
	got := collect(t)

	fields := logger.Fields{"regulation": "CFTC"}
	EmitMetric(logger.Logger(), "compliance", "submission_attempts", 3, "gauge", fields)

	if len(*got) != 1 {
		t.Fatalf("expected 1 metric, got %d", len(*got))
	}
	m := (*got)[0]
	if m.Component != "compliance" || m.Name != "submission_attempts" || m.Type != "gauge" {
		t.Fatalf("unexpected metric: %+v", m)
	}
	if _, ok := fields["metric"]; ok {
		t.Fatalf("caller fields mutated: %v", fields)
	}
	if _, ok := m.Fields["metric"]; ok {
		t.Fatalf("dispatched fields should not carry log keys: %v", m.Fields)
	}
}

func TestEmitMetricDefaultsAndDrops(t *testing.T) {
	resetMetricHandlers()
	got := collect(t)

	EmitMetric(nil, "marketdata", "price_updates", 7, "", nil)
	EmitMetric(nil, "marketdata", "", 1, "counter", nil)

	if len(*got) != 1 {
		t.Fatalf("unnamed metric should be dropped, got %d metrics", len(*got))
	}
	if (*got)[0].Type != "counter" {
		t.Fatalf("default type = %q, want counter", (*got)[0].Type)
	}
}

func TestHandlerComponentFilter(t *testing.T) {
	resetMetricHandlers()
	routing := collect(t, "routing")
	all := collect(t)

	RecordOrder("sgx", "routed")
	RecordPriceFetch("GY_CRUDE", false)

	if len(*routing) != 1 || (*routing)[0].Name != "orders_routed" {
		t.Fatalf("filtered handler got %+v", *routing)
	}
	if len(*all) != 2 {
		t.Fatalf("unfiltered handler should see both metrics, got %d", len(*all))
	}
}

func TestUnregisterMetricHandler(t *testing.T) {
	resetMetricHandlers()

	calls := 0
	id := RegisterMetricHandler(func(Metric) { calls++ })
	UnregisterMetricHandler(id)
	EmitMetric(nil, "component", "m", 1, "counter", nil)
	if calls != 0 {
		t.Fatalf("unregistered handler was called %d times", calls)
	}
}

func TestEmitMetricMirrorsNumericValues(t *testing.T) {
	resetMetricHandlers()

	EmitMetric(nil, "test", "queue_depth", 5, "gauge", nil)
	EmitMetric(nil, "test", "queue_depth", 2, "gauge", nil)
	if got := testutil.ToFloat64(componentMetrics.WithLabelValues("test", "queue_depth")); got != 2 {
		t.Fatalf("gauge = %v, want latest value 2", got)
	}

	before := testutil.ToFloat64(componentMetrics.WithLabelValues("test", "retries"))
	EmitMetric(nil, "test", "retries", 1, "counter", nil)
	EmitMetric(nil, "test", "retries", 1, "counter", nil)
	EmitMetric(nil, "test", "retries", "n/a", "counter", nil)
	if got := testutil.ToFloat64(componentMetrics.WithLabelValues("test", "retries")); got != before+2 {
		t.Fatalf("counter = %v, want %v", got, before+2)
	}
}
