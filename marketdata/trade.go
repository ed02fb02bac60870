package marketdata

import (
	"fmt"
	"time"

	"energylink/models"
)

// TradeCompliance is the outcome of ValidateTradeCompliance. Warnings never
// make a trade non-compliant.
type TradeCompliance struct {
	Compliant  bool                           `json:"compliant"`
	Violations []models.ComplianceCheckResult `json:"violations,omitempty"`
	Warnings   []models.ComplianceCheckResult `json:"warnings,omitempty"`
}

// ValidateTradeCompliance checks a trade against the configured trading rules.
func (s *Service) ValidateTradeCompliance(trade models.Trade) TradeCompliance {
	rules := s.cfg.TradeRules
	var out TradeCompliance

	if trade.Quantity <= 0 {
		out.Violations = append(out.Violations, models.ComplianceCheckResult{
			Requirement: "quantity", Severity: models.SeverityHigh,
			CurrentValue: trade.Quantity, RequiredValue: "> 0",
			Details: "trade quantity must be positive",
		})
	}
	if trade.Price < 0 {
		out.Violations = append(out.Violations, models.ComplianceCheckResult{
			Requirement: "price", Severity: models.SeverityCritical,
			CurrentValue: trade.Price, RequiredValue: ">= 0",
			Details: "trade price must not be negative",
		})
	}
	if rules.MaxSulfurContent > 0 && trade.SulfurContent > rules.MaxSulfurContent {
		out.Violations = append(out.Violations, models.ComplianceCheckResult{
			Requirement: "sulfurContent", Severity: models.SeverityHigh,
			CurrentValue: trade.SulfurContent, RequiredValue: rules.MaxSulfurContent,
			Details: fmt.Sprintf("sulfur content %.2f%% exceeds %.2f%%", trade.SulfurContent, rules.MaxSulfurContent),
		})
	}

	if rules.PriceCap > 0 && trade.Price > rules.PriceCap {
		out.Warnings = append(out.Warnings, models.ComplianceCheckResult{
			Requirement: "priceCap", Compliant: true, Severity: models.SeverityMedium,
			CurrentValue: trade.Price, RequiredValue: rules.PriceCap,
			Details: "price above the configured cap, manual review advised",
		})
	}
	if ts := trade.Timestamp; !ts.IsZero() && !s.withinTradingHours(ts) {
		out.Warnings = append(out.Warnings, models.ComplianceCheckResult{
			Requirement: "tradingHours", Compliant: true, Severity: models.SeverityLow,
			CurrentValue: ts.Format(time.RFC3339), RequiredValue: fmt.Sprintf("%02d:00-%02d:59 %s", rules.OpenHour, rules.CloseHour, s.location()),
			Details: "trade executed outside trading hours",
		})
	}

	out.Compliant = len(out.Violations) == 0
	return out
}

func (s *Service) location() *time.Location {
	if tz := s.cfg.TradeRules.Timezone; tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.UTC
}

// withinTradingHours treats both bounds as whole hours, so with a 22 close a
// 22:59 trade is still in session. Equal open and close hours mean the market
// never closes.
func (s *Service) withinTradingHours(ts time.Time) bool {
	open, closeHour := s.cfg.TradeRules.OpenHour, s.cfg.TradeRules.CloseHour
	if open == closeHour {
		return true
	}
	h := ts.In(s.location()).Hour()
	if open < closeHour {
		return h >= open && h <= closeHour
	}
	return h >= open || h <= closeHour
}

// Spread compares a snapshot with a reference benchmark.
type Spread struct {
	Price        float64 `json:"price"`
	Reference    float64 `json:"reference"`
	Differential float64 `json:"differential"`
	Percent      float64 `json:"percent"`
	// QualityAdjusted is the price after the snapshot's quality differential.
	QualityAdjusted float64 `json:"qualityAdjusted"`
}

// Differential returns the spread of snap over reference.
func Differential(snap models.PriceSnapshot, reference float64) Spread {
	sp := Spread{
		Price:           snap.Price,
		Reference:       reference,
		Differential:    snap.Price - reference,
		QualityAdjusted: snap.Price + snap.QualityDifferential,
	}
	if reference != 0 {
		sp.Percent = sp.Differential * 100 / reference
	}
	return sp
}
