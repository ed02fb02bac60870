// Package cme connects to the CME Group/NYMEX energy complex under CFTC oversight.
package cme

import (
	"context"
	"sync"
	"time"

	"energylink/connector"
	"energylink/internal/apperrors"
	"energylink/logger"
	"energylink/models"

	"github.com/shopspring/decimal"
)

const ExchangeID = "cme"

const (
	defaultExchangeFee      = 0.85
	defaultClearingFee      = 0.04
	defaultRegulatoryFee    = 0.02
	defaultMaxOrderQuantity = 10000
	defaultMaxPrice         = 1000
)

// Globex energy hours in exchange time: Sunday 17:00 to Friday 16:00 with a
// daily maintenance halt from 16:00 to 17:00.
const (
	haltStartHour = 16
	reopenHour    = 17
)

type Connector struct {
	*connector.Base
	opts connector.Options
	fees connector.FeeSchedule
	now  func() time.Time

	once         sync.Once
	maxQty       decimal.Decimal
	maxPrice     decimal.Decimal
	location     *time.Location
	enforceHours bool
}

// New is the registry factory for the CME connector.
func New(opts connector.Options) connector.Connector {
	desc := models.ConnectorDescriptor{
		ExchangeID:  ExchangeID,
		Name:        "CME Group (NYMEX)",
		Region:      "Americas",
		Markets:     []string{"crude_oil", "natural_gas", "heating_oil", "gasoline", "power"},
		Regulations: []string{"CFTC"},
		Protocols:   []string{"FIX", "REST", "WebSocket"},
		Timezone:    "America/Chicago",
	}
	return &Connector{
		Base: connector.NewBase(desc, opts, requireKeyAndSecret),
		opts: opts,
		fees: connector.NewFeeSchedule(
			opts.Setting("exchange_fee", defaultExchangeFee),
			opts.Setting("clearing_fee", defaultClearingFee),
			opts.Setting("regulatory_fee", defaultRegulatoryFee),
			"USD",
		),
		now: time.Now,
	}
}

func requireKeyAndSecret(creds connector.Credentials) string {
	if creds.APIKey == "" || creds.APISecret == "" {
		return "api key and secret are required"
	}
	return ""
}

func (c *Connector) loadRules() {
	c.maxQty = decimal.NewFromFloat(c.opts.Setting("max_order_quantity", defaultMaxOrderQuantity))
	c.maxPrice = decimal.NewFromFloat(c.opts.Setting("max_price", defaultMaxPrice))
	c.enforceHours = c.opts.Setting("enforce_trading_hours", 0) > 0
	loc, err := time.LoadLocation(c.Descriptor().Timezone)
	if err != nil {
		loc = time.UTC
	}
	c.location = loc
}

// Initialize loads position accountability limits, the price band and the
// exchange time zone.
func (c *Connector) Initialize(ctx context.Context) error {
	c.once.Do(c.loadRules)
	c.Log().WithFields(logger.Fields{
		"max_order_quantity":    c.maxQty.String(),
		"max_price":             c.maxPrice.String(),
		"timezone":              c.location.String(),
		"enforce_trading_hours": c.enforceHours,
	}).Info("connector initialized")
	return nil
}

// InSession reports whether Globex accepts energy orders at t.
func (c *Connector) InSession(t time.Time) bool {
	c.once.Do(c.loadRules)
	local := t.In(c.location)
	h := local.Hour()
	switch local.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return h >= reopenHour
	case time.Friday:
		return h < haltStartHour
	default:
		return h < haltStartHour || h >= reopenHour
	}
}

// ValidateOrder checks whole contracts, the accountability level and the
// price band, and the Globex session when enforce_trading_hours is set.
func (c *Connector) ValidateOrder(order models.Order) error {
	c.once.Do(c.loadRules)
	if err := c.CheckOrder(order); err != nil {
		return err
	}
	if err := connector.CheckWholeUnits(ExchangeID, order); err != nil {
		return err
	}
	if err := connector.CheckMaxDecimal(ExchangeID, "quantity", order.Quantity, c.maxQty); err != nil {
		return err
	}
	if err := connector.CheckMaxDecimal(ExchangeID, "price", order.Price, c.maxPrice); err != nil {
		return err
	}
	if now := c.now(); c.enforceHours && !c.InSession(now) {
		return apperrors.NewValidationError(ExchangeID+" order", "timestamp", "market closed at %s", now.In(c.location).Format("Mon 15:04 MST"))
	}
	return nil
}

func (c *Connector) CalculateFees(order models.Order) models.FeeBreakdown {
	return c.fees.Calculate(order.Quantity, decimal.Zero)
}
