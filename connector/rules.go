package connector

import (
	"energylink/internal/apperrors"
	"energylink/internal/symbols"
	"energylink/models"

	"github.com/shopspring/decimal"
)

// CheckBasics runs the checks every venue shares: supported symbol, positive
// quantity, non-negative price and a known side.
func CheckBasics(desc models.ConnectorDescriptor, order models.Order) error {
	scope := desc.ExchangeID + " order"
	switch {
	case !desc.SupportsMarket(symbols.Normalize(order.Symbol)):
		return apperrors.NewValidationError(scope, "symbol", "market %q is not traded on %s", order.Symbol, desc.Name)
	case !order.Quantity.IsPositive():
		return apperrors.NewValidationError(scope, "quantity", "must be greater than 0, got %s", order.Quantity)
	case order.Price.IsNegative():
		return apperrors.NewValidationError(scope, "price", "must not be negative, got %s", order.Price)
	case order.Side != models.SideBuy && order.Side != models.SideSell:
		return apperrors.NewValidationError(scope, "side", "must be buy or sell, got %q", order.Side)
	}
	return nil
}

// CheckWholeUnits rejects fractional quantities.
func CheckWholeUnits(exchange string, order models.Order) error {
	if !order.Quantity.Equal(order.Quantity.Truncate(0)) {
		return apperrors.NewValidationError(exchange+" order", "quantity", "must be a whole number of contracts, got %s", order.Quantity)
	}
	return nil
}

// CheckMinimum rejects a missing value or one below minimum. name is the order
// field being checked.
func CheckMinimum(exchange, name string, value *float64, minimum float64) error {
	if value == nil {
		return apperrors.NewValidationError(exchange+" order", name, "is required (minimum %g)", minimum)
	}
	if *value < minimum {
		return apperrors.NewValidationError(exchange+" order", name, "%g is below the minimum of %g", *value, minimum)
	}
	return nil
}

// CheckMaxDecimal rejects a value above limit when limit is positive.
func CheckMaxDecimal(exchange, name string, value, limit decimal.Decimal) error {
	if limit.IsPositive() && value.GreaterThan(limit) {
		return apperrors.NewValidationError(exchange+" order", name, "%s exceeds the limit of %s", value, limit)
	}
	return nil
}
