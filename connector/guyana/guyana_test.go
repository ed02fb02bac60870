package guyana

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

func ptr(v float64) *float64 { return &v }

func gyOrder(lc, env *float64) models.Order {
	return models.Order{
		Symbol:                 "crude_oil",
		Quantity:               decimal.NewFromInt(100),
		Price:                  decimal.RequireFromString("75.50"),
		Side:                   models.SideBuy,
		LocalContentPercentage: lc,
		EnvironmentalScore:     env,
	}
}

func newInitialized(t *testing.T, settings map[string]float64) *Connector {
	t.Helper()
	c := New(connector.Options{Config: config.ConnectorConfig{Settings: settings}}).(*Connector)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return c
}

func TestValidateOrderMinimums(t *testing.T) {
	c := newInitialized(t, nil)

	tests := []struct {
		name  string
		lc    *float64
		env   *float64
		field string
	}{
		{"local content below minimum", ptr(25), ptr(80), "localContentPercentage"},
		{"environmental score below minimum", ptr(40), ptr(65), "environmentalScore"},
		{"both below", ptr(25), ptr(65), "localContentPercentage"},
		{"missing local content", nil, ptr(80), "localContentPercentage"},
		{"missing environmental score", ptr(40), nil, "environmentalScore"},
		{"at minimums", ptr(30), ptr(70), ""},
		{"above minimums", ptr(60), ptr(90), ""},
	}
	for _, tt := range tests {
		err := c.ValidateOrder(gyOrder(tt.lc, tt.env))
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

func TestInitializeLoadsConfiguredMinimums(t *testing.T) {
	c := newInitialized(t, map[string]float64{"min_local_content": 40})
	if c.Rules().MinLocalContent != 40 || c.Rules().MinEnvScore != 70 {
		t.Fatalf("unexpected rules %+v", c.Rules())
	}
	if err := c.ValidateOrder(gyOrder(ptr(35), ptr(80))); err == nil {
		t.Error("35% local content should fail a 40% minimum")
	}
}

func TestCalculateFeesDiscount(t *testing.T) {
	c := newInitialized(t, nil)

	base := c.CalculateFees(gyOrder(ptr(40), ptr(80)))
	if !base.ExchangeFee.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("exchange fee = %s, want 50", base.ExchangeFee)
	}
	if !base.Discount.IsZero() {
		t.Errorf("no discount expected below threshold, got %s", base.Discount)
	}
	if !base.Total.Equal(decimal.RequireFromString("54.5")) {
		t.Errorf("total = %s, want 54.5", base.Total)
	}

	// 75% local content: 50 × (75-50)/(100-50) = 25
	disc := c.CalculateFees(gyOrder(ptr(75), ptr(80)))
	if !disc.Discount.Equal(decimal.NewFromInt(25)) {
		t.Errorf("discount = %s, want 25", disc.Discount)
	}
	if !disc.Total.Equal(decimal.RequireFromString("29.5")) {
		t.Errorf("total = %s, want 29.5", disc.Total)
	}

	full := c.CalculateFees(gyOrder(ptr(100), ptr(80)))
	if !full.Discount.Equal(full.ExchangeFee) {
		t.Errorf("100%% local content should waive the exchange fee, got %s", full.Discount)
	}
}

func TestLocalContentDiscountCapped(t *testing.T) {
	fee := decimal.NewFromInt(10)
	if d := LocalContentDiscount(fee, ptr(150), 50); !d.Equal(fee) {
		t.Errorf("discount must not exceed the fee, got %s", d)
	}
	if d := LocalContentDiscount(fee, nil, 50); !d.IsZero() {
		t.Errorf("nil local content should give no discount, got %s", d)
	}
}

func TestConnectRequiresParticipantLicence(t *testing.T) {
	c := newInitialized(t, nil)
	if _, err := c.Connect(context.Background(), connector.Credentials{APIKey: "k"}); err == nil {
		t.Fatal("expected connection error without participant id")
	}
	status, err := c.Connect(context.Background(), connector.Credentials{ParticipantID: "GY-0001"})
	if err != nil || status != models.StatusConnected {
		t.Fatalf("Connect() = %s, %v", status, err)
	}
}
