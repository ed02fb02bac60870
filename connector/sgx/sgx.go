// Package sgx connects to the Singapore Exchange energy derivatives market,
// regulated by the Monetary Authority of Singapore.
package sgx

import (
	"context"
	"fmt"
	"sync"

	"energylink/connector"
	"energylink/internal/apperrors"
	"energylink/logger"
	"energylink/models"

	"github.com/shopspring/decimal"
)

const ExchangeID = "sgx"

const (
	defaultExchangeFee   = 0.70
	defaultClearingFee   = 0.05
	defaultRegulatoryFee = 0.03
	defaultLotSize       = 1
	defaultMaxNotional   = 50_000_000
)

type Connector struct {
	*connector.Base
	opts connector.Options
	fees connector.FeeSchedule

	once        sync.Once
	lotSize     decimal.Decimal
	maxNotional decimal.Decimal
}

func New(opts connector.Options) connector.Connector {
	desc := models.ConnectorDescriptor{
		ExchangeID:  ExchangeID,
		Name:        "Singapore Exchange (SGX)",
		Region:      "Asia-Pacific",
		Markets:     []string{"crude_oil", "fuel_oil", "lng", "power", "carbon_credits"},
		Regulations: []string{"MAS"},
		Protocols:   []string{"FIX", "REST"},
		Timezone:    "Asia/Singapore",
	}
	return &Connector{
		Base: connector.NewBase(desc, opts, func(creds connector.Credentials) string {
			if creds.APIKey == "" {
				return "api key is required"
			}
			return ""
		}),
		opts: opts,
		fees: connector.NewFeeSchedule(
			opts.Setting("exchange_fee", defaultExchangeFee),
			opts.Setting("clearing_fee", defaultClearingFee),
			opts.Setting("regulatory_fee", defaultRegulatoryFee),
			"USD",
		),
	}
}

func (c *Connector) loadRules() {
	c.lotSize = decimal.NewFromFloat(c.opts.Setting("lot_size", defaultLotSize))
	c.maxNotional = decimal.NewFromFloat(c.opts.Setting("max_notional", defaultMaxNotional))
}

func (c *Connector) Initialize(ctx context.Context) error {
	c.once.Do(c.loadRules)
	if !c.lotSize.IsPositive() {
		return fmt.Errorf("%s: lot size must be positive, got %s", ExchangeID, c.lotSize)
	}
	c.Log().WithFields(logger.Fields{
		"lot_size":     c.lotSize.String(),
		"max_notional": c.maxNotional.String(),
	}).Info("connector initialized")
	return nil
}

// ValidateOrder enforces lot multiples and the per-order notional ceiling.
func (c *Connector) ValidateOrder(order models.Order) error {
	c.once.Do(c.loadRules)
	if err := c.CheckOrder(order); err != nil {
		return err
	}
	if c.lotSize.IsPositive() && !order.Quantity.Mod(c.lotSize).IsZero() {
		return apperrors.NewValidationError(ExchangeID+" order", "quantity", "must be a multiple of the %s lot size, got %s", c.lotSize, order.Quantity)
	}
	return connector.CheckMaxDecimal(ExchangeID, "notional", order.Notional(), c.maxNotional)
}

func (c *Connector) CalculateFees(order models.Order) models.FeeBreakdown {
	return c.fees.Calculate(order.Quantity, decimal.Zero)
}
