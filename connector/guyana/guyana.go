// Package guyana connects to the Guyana energy exchange. Orders must meet the
// Local Content Act participation minimum and the EPA environmental score
// minimum, and local content above the incentive threshold earns a discount
// on the exchange fee.
package guyana

import (
	"context"
	"fmt"
	"sync"

	"energylink/connector"
	"energylink/logger"
	"energylink/models"

	"github.com/shopspring/decimal"
)

const ExchangeID = "guyana-energy"

const (
	defaultExchangeFee       = 0.50
	defaultClearingFee       = 0.03
	defaultRegulatoryFee     = 0.015
	defaultMinLocalContent   = 30
	defaultMinEnvScore       = 70
	defaultDiscountThreshold = 50
)

// Rules are the jurisdiction minimums loaded by Initialize.
type Rules struct {
	MinLocalContent   float64
	MinEnvScore       float64
	DiscountThreshold float64
}

type Connector struct {
	*connector.Base
	opts connector.Options
	fees connector.FeeSchedule

	once  sync.Once
	rules Rules
}

func New(opts connector.Options) connector.Connector {
	desc := models.ConnectorDescriptor{
		ExchangeID:  ExchangeID,
		Name:        "Guyana Energy Exchange",
		Region:      "South America",
		Markets:     []string{"crude_oil", "natural_gas", "carbon_credits"},
		Regulations: []string{"GY-LCA", "GY-EPA"},
		Protocols:   []string{"REST", "WebSocket"},
		Timezone:    "America/Guyana",
	}
	return &Connector{
		Base: connector.NewBase(desc, opts, requireParticipant),
		opts: opts,
		fees: connector.NewFeeSchedule(
			opts.Setting("exchange_fee", defaultExchangeFee),
			opts.Setting("clearing_fee", defaultClearingFee),
			opts.Setting("regulatory_fee", defaultRegulatoryFee),
			"USD",
		),
	}
}

// requireParticipant admits only holders of a local participant licence.
func requireParticipant(creds connector.Credentials) string {
	if creds.ParticipantID == "" {
		return "local participant licence id is required"
	}
	return ""
}

func (c *Connector) loadRules() {
	c.rules = Rules{
		MinLocalContent:   c.opts.Setting("min_local_content", defaultMinLocalContent),
		MinEnvScore:       c.opts.Setting("min_environmental_score", defaultMinEnvScore),
		DiscountThreshold: c.opts.Setting("local_content_discount_threshold", defaultDiscountThreshold),
	}
}

// Initialize loads the local content and environmental minimums.
func (c *Connector) Initialize(ctx context.Context) error {
	c.once.Do(c.loadRules)
	if c.rules.DiscountThreshold >= 100 {
		return fmt.Errorf("%s: discount threshold must be below 100, got %g", ExchangeID, c.rules.DiscountThreshold)
	}
	c.Log().WithFields(logger.Fields{
		"min_local_content":       c.rules.MinLocalContent,
		"min_environmental_score": c.rules.MinEnvScore,
		"discount_threshold":      c.rules.DiscountThreshold,
	}).Info("connector initialized")
	return nil
}

// Rules returns the loaded minimums.
func (c *Connector) Rules() Rules {
	c.once.Do(c.loadRules)
	return c.rules
}

// ValidateOrder rejects orders missing or below either minimum outright.
func (c *Connector) ValidateOrder(order models.Order) error {
	rules := c.Rules()
	if err := c.CheckOrder(order); err != nil {
		return err
	}
	if err := connector.CheckMinimum(ExchangeID, "localContentPercentage", order.LocalContentPercentage, rules.MinLocalContent); err != nil {
		return err
	}
	return connector.CheckMinimum(ExchangeID, "environmentalScore", order.EnvironmentalScore, rules.MinEnvScore)
}

func (c *Connector) CalculateFees(order models.Order) models.FeeBreakdown {
	exchangeFee := c.fees.ExchangeFee(order.Quantity)
	return c.fees.Calculate(order.Quantity, LocalContentDiscount(exchangeFee, order.LocalContentPercentage, c.Rules().DiscountThreshold))
}

// LocalContentDiscount scales the exchange fee by the share of local content
// above threshold: fee × (lc − threshold) / (100 − threshold). Content at or
// below the threshold earns nothing and content above 100 counts as 100.
func LocalContentDiscount(exchangeFee decimal.Decimal, localContent *float64, threshold float64) decimal.Decimal {
	if localContent == nil || *localContent <= threshold || threshold >= 100 {
		return decimal.Zero
	}
	lc := min(*localContent, 100)
	excess := decimal.NewFromFloat(lc - threshold)
	span := decimal.NewFromFloat(100 - threshold)
	discount := exchangeFee.Mul(excess).Div(span)
	if discount.GreaterThan(exchangeFee) {
		return exchangeFee
	}
	return discount
}
