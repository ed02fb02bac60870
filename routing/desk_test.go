package routing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"energylink/audit"
	"energylink/catalog"
	"energylink/compliance"
	"energylink/config"
	"energylink/events"
	"energylink/internal/apperrors"
	"energylink/models"
	"energylink/registry"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

var identity = Identity{
	EntityLEI:          "5493001KJTIIGC8Y1R12",
	InstitutionLicense: "MAS123456",
	CounterpartyLEI:    "529900T8BM49AURSDO55",
}

func float(v float64) *float64 { return &v }

type harness struct {
	desk    *Desk
	calls   atomic.Int32
	lastReg atomic.Value
	routed  atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		h.lastReg.Store(gjson.GetBytes(body, "regulation").String())
		_, _ = w.Write([]byte(`{"confirmationId":"C-1","acknowledgmentNumber":"A-1"}`))
	}))
	t.Cleanup(srv.Close)

	reg := registry.New()
	if err := catalog.Register(reg, config.Default().Connectors, nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	cfg := config.Default().Compliance
	cfg.CFTC.Endpoint = srv.URL
	cfg.MAS.Endpoint = srv.URL
	cfg.Retry = config.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	svc := compliance.NewService(cfg, audit.NewMemoryStore())

	bus := events.NewBus()
	bus.SubscribeTypes(func(events.Event) { h.routed.Add(1) }, events.OrderRouted)
	h.desk = NewDesk(reg, svc, identity, bus)
	return h
}

func order(symbol string, qty, price int64, side models.Side) models.Order {
	return models.Order{
		Symbol:   symbol,
		Quantity: decimal.NewFromInt(qty),
		Price:    decimal.NewFromInt(price),
		Side:     side,
	}
}

func TestPlaceOrderCFTCVenueFilesReport(t *testing.T) {
	h := newHarness(t)
	o := order("crude_oil", 100, 75, models.SideBuy)

	exec, err := h.desk.PlaceOrder(context.Background(), o, registry.Criteria{Region: "Americas"}, "trader-1")
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if exec.Exchange != "cme" || exec.Regulation != compliance.RegulationCFTC {
		t.Fatalf("execution = %+v", exec)
	}
	if !exec.Fees.Total.Equal(decimal.NewFromInt(91)) {
		t.Fatalf("total fee = %s", exec.Fees.Total)
	}
	if exec.Submission == nil || !exec.Submission.Success || exec.Submission.ConfirmationID != "C-1" {
		t.Fatalf("submission = %+v", exec.Submission)
	}
	if h.calls.Load() != 1 || h.lastReg.Load() != "CFTC" {
		t.Fatalf("regulator calls = %d (%v)", h.calls.Load(), h.lastReg.Load())
	}
	if h.routed.Load() != 1 {
		t.Fatalf("order_routed events = %d", h.routed.Load())
	}
	if o.ID != "" {
		t.Fatal("caller's order was modified")
	}
}

func TestPlaceOrderMASVenueFilesTradeReport(t *testing.T) {
	h := newHarness(t)
	exec, err := h.desk.PlaceOrder(context.Background(), order("lng", 20, 12, models.SideSell), registry.Criteria{Regulation: "MAS"}, "trader-2")
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if exec.Exchange != "sgx" || exec.Submission == nil || exec.Submission.ConfirmationID != "A-1" {
		t.Fatalf("execution = %+v", exec)
	}
	if h.lastReg.Load() != "MAS" {
		t.Fatalf("reported to %v", h.lastReg.Load())
	}
}

func TestPlaceOrderUnregulatedVenueSkipsReport(t *testing.T) {
	h := newHarness(t)
	o := order("crude_oil", 100, 75, models.SideBuy)
	o.LocalContentPercentage = float(60)
	o.EnvironmentalScore = float(85)

	exec, err := h.desk.PlaceOrder(context.Background(), o, registry.Criteria{Region: "South America"}, "trader-3")
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if exec.Exchange != "guyana-energy" || exec.Submission != nil || exec.Regulation != "" {
		t.Fatalf("execution = %+v", exec)
	}
	if h.calls.Load() != 0 {
		t.Fatalf("regulator called %d times", h.calls.Load())
	}
}

func TestPlaceOrderRejectedByVenue(t *testing.T) {
	h := newHarness(t)
	_, err := h.desk.PlaceOrder(context.Background(), order("crude_oil", 0, 75, models.SideBuy), registry.Criteria{}, "trader-1")
	if !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.calls.Load() != 0 || h.routed.Load() != 0 {
		t.Fatal("rejected order reached the regulator")
	}
}

func TestPlaceOrderNoMatchingVenue(t *testing.T) {
	h := newHarness(t)
	_, err := h.desk.PlaceOrder(context.Background(), order("lng", 1, 1, models.SideBuy), registry.Criteria{Region: "Americas"}, "trader-1")
	if !errors.Is(err, registry.ErrNoMatchingExchange) {
		t.Fatalf("expected no match, got %v", err)
	}
}

func TestPickRegulation(t *testing.T) {
	desc := models.ConnectorDescriptor{Regulations: []string{"GY-LCA", "CFTC"}}
	if got := pickRegulation(desc, ""); got != "CFTC" {
		t.Errorf("default = %q", got)
	}
	if got := pickRegulation(desc, "MAS"); got != "" {
		t.Errorf("unsupported request = %q", got)
	}
	if got := pickRegulation(desc, "GY-LCA"); got != "" {
		t.Errorf("non-reportable request = %q", got)
	}
}

func TestDeskTracksRecentExecutions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.desk.PlaceOrder(ctx, order("crude_oil", 100, 75, models.SideBuy), registry.Criteria{Region: "Americas"}, "trader-1"); err != nil {
		t.Fatalf("place order: %v", err)
	}
	if _, err := h.desk.PlaceOrder(ctx, order("crude_oil", 0, 75, models.SideBuy), registry.Criteria{}, "trader-1"); err == nil {
		t.Fatal("expected rejection")
	}

	recent := h.desk.Recent()
	if len(recent) != 1 || recent[0].Exchange != "cme" {
		t.Fatalf("recent = %+v", recent)
	}
	health := h.desk.GetHealthStatus(ctx)
	if health.Status != "healthy" || health.Routed != 1 || health.ReportFailures != 0 {
		t.Fatalf("health = %+v", health)
	}
}

func TestDeskHealthFlagsMissingIdentity(t *testing.T) {
	reg := registry.New()
	if err := catalog.Register(reg, config.Default().Connectors, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	cfg := config.Default().Compliance
	cfg.ReportingEntity = identity.EntityLEI
	desk := NewDesk(reg, nil, IdentityFromConfig(cfg), nil)

	health := desk.GetHealthStatus(context.Background())
	if health.Status != "degraded" {
		t.Fatalf("status = %q", health.Status)
	}
	if _, ok := health.MissingIdentity["CFTC"]; ok {
		t.Fatalf("CFTC identity is configured: %+v", health.MissingIdentity)
	}
	mas := health.MissingIdentity["MAS"]
	if len(mas) != 2 || mas[0] != "institution_license" || mas[1] != "counterparty" {
		t.Fatalf("missing MAS identity = %v", mas)
	}
}
