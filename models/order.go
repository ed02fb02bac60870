package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Order is an energy order as submitted by a caller. Connectors validate and
// price it but never modify it.
type Order struct {
	ID       string          `json:"id,omitempty"`
	Account  string          `json:"account,omitempty"`
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Side     Side            `json:"side"`

	// Region-gated connectors read these; nil means "not supplied".
	LocalContentPercentage *float64 `json:"localContentPercentage,omitempty"`
	EnvironmentalScore     *float64 `json:"environmentalScore,omitempty"`
}

// Notional returns quantity × price.
func (o Order) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.Price)
}

// FeeBreakdown is the derived fee set for one order.
type FeeBreakdown struct {
	ExchangeFee   decimal.Decimal `json:"exchangeFee"`
	ClearingFee   decimal.Decimal `json:"clearingFee"`
	RegulatoryFee decimal.Decimal `json:"regulatoryFee"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
}

// MarketQuote is a point-in-time quote returned by a connector.
type MarketQuote struct {
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Last      float64   `json:"last"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}
