package sgx

import (
	"context"
	"errors"
	"testing"

	"energylink/config"
	"energylink/connector"
	"energylink/internal/apperrors"
	"energylink/models"

	"github.com/shopspring/decimal"
)

func newConnector(t *testing.T, settings map[string]float64) *Connector {
	t.Helper()
	c := New(connector.Options{Config: config.ConnectorConfig{Settings: settings}}).(*Connector)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return c
}

func lngOrder(qty, price string) models.Order {
	return models.Order{
		Symbol:   "lng",
		Quantity: decimal.RequireFromString(qty),
		Price:    decimal.RequireFromString(price),
		Side:     models.SideSell,
	}
}

func TestValidateOrder(t *testing.T) {
	c := newConnector(t, map[string]float64{"lot_size": 10, "max_notional": 100000})

	tests := []struct {
		name  string
		order models.Order
		field string
	}{
		{"valid", lngOrder("20", "12.5"), ""},
		{"not a lot multiple", lngOrder("15", "12.5"), "quantity"},
		{"notional too large", lngOrder("10000", "12.5"), "notional"},
		{"heating oil not listed", models.Order{Symbol: "heating_oil", Quantity: decimal.NewFromInt(10), Side: models.SideBuy}, "symbol"},
	}
	for _, tt := range tests {
		err := c.ValidateOrder(tt.order)
		if tt.field == "" {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tt.name, err)
			}
			continue
		}
		var verr *apperrors.ValidationError
		if !errors.As(err, &verr) || verr.Field() != tt.field {
			t.Errorf("%s: expected rejection on %q, got %v", tt.name, tt.field, err)
		}
	}
}

func TestCalculateFees(t *testing.T) {
	c := newConnector(t, nil)
	fees := c.CalculateFees(lngOrder("100", "12.5"))
	if !fees.Total.Equal(decimal.NewFromInt(78)) {
		t.Errorf("total = %s, want 78", fees.Total)
	}
}

func TestInitializeRejectsBadLotSize(t *testing.T) {
	c := New(connector.Options{Config: config.ConnectorConfig{Settings: map[string]float64{"lot_size": 0}}})
	if err := c.Initialize(context.Background()); err == nil {
		t.Fatal("expected error for zero lot size")
	}
}
