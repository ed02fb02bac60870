package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSubmission(t *testing.T) {
	Registry()
	before := testutil.ToFloat64(submissions.WithLabelValues("CFTC", "completed"))
	RecordSubmission("CFTC", "completed", 3, 150*time.Millisecond)
	after := testutil.ToFloat64(submissions.WithLabelValues("CFTC", "completed"))
	if after != before+1 {
		t.Fatalf("expected counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestSetAuditEntries(t *testing.T) {
	SetAuditEntries(12)
	if got := testutil.ToFloat64(auditEntries); got != 12 {
		t.Fatalf("audit entries gauge = %v, want 12", got)
	}
}

func TestRegistryGathers(t *testing.T) {
	RecordPriceFetch("GY_CRUDE", true)
	RecordPriceServed("cache")
	RecordOrder("cme", "accepted")

	families, err := Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"energylink_price_fetch_total", "energylink_price_served_total", "energylink_orders_total"} {
		if !names[want] {
			t.Errorf("metric family %s not registered", want)
		}
	}
}
