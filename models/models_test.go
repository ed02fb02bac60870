package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrderNotional(t *testing.T) {
	o := Order{Quantity: decimal.RequireFromString("12.5"), Price: decimal.RequireFromString("80.04")}
	if got := o.Notional().String(); got != "1000.5" {
		t.Fatalf("Notional() = %s, want 1000.5", got)
	}
}

func TestDescriptorCloneIsDeep(t *testing.T) {
	d := ConnectorDescriptor{
		ExchangeID:  "cme",
		Markets:     []string{"crude_oil", "natural_gas"},
		Regulations: []string{"CFTC"},
		Protocols:   []string{"REST"},
	}
	c := d.Clone()
	c.Markets[0] = "power"
	c.Regulations[0] = "MAS"

	if !d.SupportsMarket("crude_oil") || d.SupportsMarket("power") {
		t.Fatalf("clone mutation leaked into original markets: %v", d.Markets)
	}
	if !d.HasRegulation("CFTC") || d.HasRegulation("MAS") {
		t.Fatalf("clone mutation leaked into original regulations: %v", d.Regulations)
	}
}

func TestOrderJSONOmitsUnsetRegionalFields(t *testing.T) {
	data, err := json.Marshal(Order{Symbol: "CL", Quantity: decimal.NewFromInt(1), Side: SideBuy})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "localContentPercentage") || strings.Contains(string(data), "environmentalScore") {
		t.Fatalf("unset regional fields should be omitted: %s", data)
	}
}
