package connector

import (
	"energylink/models"

	"github.com/shopspring/decimal"
)

// FeeSchedule holds per-unit rates. Fee calculation is a pure function of
// quantity and discount.
type FeeSchedule struct {
	ExchangeRate   decimal.Decimal
	ClearingRate   decimal.Decimal
	RegulatoryRate decimal.Decimal
	Currency       string
}

// NewFeeSchedule builds a schedule from float rates as they appear in config.
func NewFeeSchedule(exchange, clearing, regulatory float64, currency string) FeeSchedule {
	return FeeSchedule{
		ExchangeRate:   decimal.NewFromFloat(exchange),
		ClearingRate:   decimal.NewFromFloat(clearing),
		RegulatoryRate: decimal.NewFromFloat(regulatory),
		Currency:       currency,
	}
}

// ExchangeFee is quantity × the exchange rate.
func (f FeeSchedule) ExchangeFee(quantity decimal.Decimal) decimal.Decimal {
	return quantity.Mul(f.ExchangeRate)
}

// Calculate returns the breakdown for quantity units. The discount applies to
// the exchange fee only and is clamped to [0, exchange fee].
func (f FeeSchedule) Calculate(quantity, discount decimal.Decimal) models.FeeBreakdown {
	exchangeFee := f.ExchangeFee(quantity)
	clearingFee := quantity.Mul(f.ClearingRate)
	regulatoryFee := quantity.Mul(f.RegulatoryRate)

	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(exchangeFee) {
		discount = exchangeFee
	}

	return models.FeeBreakdown{
		ExchangeFee:   exchangeFee,
		ClearingFee:   clearingFee,
		RegulatoryFee: regulatoryFee,
		Discount:      discount,
		Total:         exchangeFee.Sub(discount).Add(clearingFee).Add(regulatoryFee),
		Currency:      f.Currency,
	}
}
