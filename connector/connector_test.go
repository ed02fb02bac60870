package connector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"energylink/internal/apperrors"
	"energylink/models"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

var testDescriptor = models.ConnectorDescriptor{
	ExchangeID: "test",
	Name:       "Test Exchange",
	Markets:    []string{"crude_oil", "natural_gas"},
}

func order(symbol, qty, price string, side models.Side) models.Order {
	return models.Order{
		Symbol:   symbol,
		Quantity: decimal.RequireFromString(qty),
		Price:    decimal.RequireFromString(price),
		Side:     side,
	}
}

func TestFeeScheduleCalculate(t *testing.T) {
	fees := NewFeeSchedule(0.85, 0.04, 0.02, "USD")
	got := fees.Calculate(decimal.NewFromInt(100), decimal.Zero)

	checks := map[string]struct{ got, want decimal.Decimal }{
		"exchange":   {got.ExchangeFee, decimal.NewFromInt(85)},
		"clearing":   {got.ClearingFee, decimal.NewFromInt(4)},
		"regulatory": {got.RegulatoryFee, decimal.NewFromInt(2)},
		"total":      {got.Total, decimal.NewFromInt(91)},
	}
	for name, c := range checks {
		if !c.got.Equal(c.want) {
			t.Errorf("%s fee = %s, want %s", name, c.got, c.want)
		}
	}
	if got.Currency != "USD" {
		t.Errorf("unexpected currency %q", got.Currency)
	}
}

func TestFeeScheduleDiscountClamped(t *testing.T) {
	fees := NewFeeSchedule(0.5, 0.03, 0.015, "USD")
	qty := decimal.NewFromInt(100)

	over := fees.Calculate(qty, decimal.NewFromInt(1000))
	if !over.Discount.Equal(over.ExchangeFee) {
		t.Errorf("discount should be capped at exchange fee, got %s", over.Discount)
	}
	if over.Total.IsNegative() {
		t.Errorf("total must not be negative: %s", over.Total)
	}

	neg := fees.Calculate(qty, decimal.NewFromInt(-5))
	if !neg.Discount.IsZero() {
		t.Errorf("negative discount should clamp to zero, got %s", neg.Discount)
	}
}

func TestCheckBasics(t *testing.T) {
	tests := []struct {
		name  string
		order models.Order
		field string
	}{
		{"valid", order("crude_oil", "10", "75.5", models.SideBuy), ""},
		{"normalized symbol", order("Crude-Oil", "10", "75.5", models.SideSell), ""},
		{"unsupported", order("gold", "10", "75.5", models.SideBuy), "symbol"},
		{"zero quantity", order("crude_oil", "0", "75.5", models.SideBuy), "quantity"},
		{"negative price", order("crude_oil", "1", "-1", models.SideBuy), "price"},
		{"zero price", order("crude_oil", "1", "0", models.SideBuy), ""},
		{"bad side", order("crude_oil", "1", "1", "hold"), "side"},
	}
	for _, tt := range tests {
		err := CheckBasics(testDescriptor, tt.order)
		if tt.field == "" {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tt.name, err)
			}
			continue
		}
		var verr *apperrors.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected ValidationError, got %v", tt.name, err)
			continue
		}
		if verr.Field() != tt.field {
			t.Errorf("%s: field = %q, want %q", tt.name, verr.Field(), tt.field)
		}
	}
}

func TestCheckMinimum(t *testing.T) {
	v := 25.0
	if err := CheckMinimum("x", "localContentPercentage", &v, 30); err == nil {
		t.Error("expected rejection below minimum")
	}
	if err := CheckMinimum("x", "localContentPercentage", nil, 30); err == nil {
		t.Error("expected rejection for missing value")
	}
	v = 30
	if err := CheckMinimum("x", "localContentPercentage", &v, 30); err != nil {
		t.Errorf("value at minimum should pass: %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := NewSession("test")
	if s.Status() != models.StatusDisconnected {
		t.Fatalf("new session should be disconnected")
	}
	if err := s.RequireConnected(); err == nil {
		t.Error("expected error while disconnected")
	}

	proceed, err := s.Begin()
	if !proceed || err != nil {
		t.Fatalf("Begin() = %v, %v", proceed, err)
	}
	if _, err := s.Begin(); err == nil {
		t.Error("second Begin while connecting should fail")
	}
	s.Established()
	if s.Status() != models.StatusConnected {
		t.Fatalf("expected connected, got %s", s.Status())
	}
	if proceed, _ := s.Begin(); proceed {
		t.Error("Begin on a connected session should not proceed")
	}

	s.Close()
	s.Begin()
	status, err := s.Fail("bad credentials")
	if status != models.StatusError || s.Status() != models.StatusError {
		t.Errorf("expected error status, got %s", s.Status())
	}
	var cerr *apperrors.ConnectionError
	if !errors.As(err, &cerr) || !strings.Contains(cerr.Reason, "bad credentials") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestFeedQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quotes/CL":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"symbol":"CL","last":75.5,"bid":75.4,"ask":75.6,"volume":1200,"timestamp":1700000000000}`))
		case "/health":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	feed := NewFeed(FeedConfig{Exchange: "test", BaseURL: srv.URL, Timeout: time.Second}, nil)
	ctx := context.Background()

	if err := feed.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	q, err := feed.Quote(ctx, "CL")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Last != 75.5 || q.Bid != 75.4 || q.Ask != 75.6 || q.Volume != 1200 {
		t.Errorf("unexpected quote %+v", q)
	}
	if !q.Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("unexpected timestamp %s", q.Timestamp)
	}

	if _, err := feed.Quote(ctx, "XX"); err == nil {
		t.Error("expected error for unknown symbol")
	}
}

func TestFeedWithoutEndpoint(t *testing.T) {
	feed := NewFeed(FeedConfig{Exchange: "test"}, nil)
	if err := feed.Ping(context.Background()); err != nil {
		t.Errorf("Ping without base url should succeed: %v", err)
	}
	if _, err := feed.Quote(context.Background(), "CL"); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("expected ErrNoEndpoint, got %v", err)
	}
	if _, err := feed.Subscribe(context.Background(), "CL", func(models.MarketQuote) {}); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("expected ErrNoEndpoint, got %v", err)
	}
}

func TestFeedSubscribe(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req map[string]string
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "ack", "id": req["id"]})
		_ = conn.WriteJSON(map[string]any{"symbol": "NG", "last": 2.5})
		_ = conn.WriteJSON(map[string]any{"symbol": req["symbol"], "last": 76.25, "volume": 10})
		// hold the connection open until the client closes it
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	feed := NewFeed(FeedConfig{
		Exchange:  "test",
		StreamURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		Timeout:   time.Second,
	}, nil)

	quotes := make(chan models.MarketQuote, 4)
	id, err := feed.Subscribe(context.Background(), "CL", func(q models.MarketQuote) { quotes <- q })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if id == "" {
		t.Fatal("expected subscription id")
	}

	select {
	case q := <-quotes:
		if q.Symbol != "CL" || q.Last != 76.25 {
			t.Errorf("unexpected quote %+v", q)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for streamed quote")
	}

	if feed.Subscriptions() != 1 {
		t.Errorf("expected 1 subscription, got %d", feed.Subscriptions())
	}
	if err := feed.Unsubscribe(id); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if feed.Subscriptions() != 0 {
		t.Errorf("expected 0 subscriptions, got %d", feed.Subscriptions())
	}
	if err := feed.Unsubscribe(id); err == nil {
		t.Error("second Unsubscribe should fail")
	}
}
