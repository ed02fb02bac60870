// Package compliance validates, renders and submits regulatory reports and
// keeps the audit trail of every step.
package compliance

import (
	"strconv"
	"time"

	"energylink/internal/apperrors"
	"energylink/models"

	"github.com/shopspring/decimal"
)

const (
	RegulationCFTC = "CFTC"
	RegulationMAS  = "MAS"
)

// Position is one line of a CFTC large trader report.
type Position struct {
	Symbol        string          `json:"symbol" validate:"required"`
	LongQuantity  decimal.Decimal `json:"longQuantity" validate:"gte=0"`
	ShortQuantity decimal.Decimal `json:"shortQuantity" validate:"gte=0"`
}

// Trade is one line of a MAS trade report.
type Trade struct {
	TradeID      string          `json:"tradeId" validate:"required"`
	Symbol       string          `json:"symbol" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity" validate:"gt=0"`
	Price        decimal.Decimal `json:"price" validate:"gte=0"`
	Notional     decimal.Decimal `json:"notional" validate:"gte=0"`
	TradeDate    time.Time       `json:"tradeDate" validate:"required"`
	Counterparty string          `json:"counterpartyLei" validate:"required,lei"`
}

// ReportData is the structured input of a submission. CFTC reports carry
// positions and their declared totals; MAS reports carry trades and the
// declared notional.
type ReportData struct {
	ReportID      string    `json:"reportId" validate:"required,max=64"`
	Regulation    string    `json:"regulation" validate:"required,oneof=CFTC MAS"`
	ReportingDate time.Time `json:"reportingDate" validate:"required"`

	ReportingEntity     string          `json:"reportingEntity,omitempty" validate:"omitempty,lei"`
	Positions           []Position      `json:"positions,omitempty" validate:"dive"`
	TotalLongPositions  decimal.Decimal `json:"totalLongPositions" validate:"gte=0"`
	TotalShortPositions decimal.Decimal `json:"totalShortPositions" validate:"gte=0"`

	InstitutionLicense string          `json:"institutionLicense,omitempty" validate:"omitempty,mas_license"`
	Trades             []Trade         `json:"trades,omitempty" validate:"dive"`
	TotalNotional      decimal.Decimal `json:"totalNotional" validate:"gte=0"`
}

// Values flattens the scalar fields a template can reference. Numbers use
// decimal.String, which never adds grouping or exponent formatting.
func (d ReportData) Values() map[string]string {
	return map[string]string{
		"reportId":            d.ReportID,
		"regulation":          d.Regulation,
		"reportingDate":       d.ReportingDate.UTC().Format(time.RFC3339),
		"reportingEntity":     d.ReportingEntity,
		"positionCount":       strconv.Itoa(len(d.Positions)),
		"totalLongPositions":  d.TotalLongPositions.String(),
		"totalShortPositions": d.TotalShortPositions.String(),
		"institutionLicense":  d.InstitutionLicense,
		"tradeCount":          strconv.Itoa(len(d.Trades)),
		"totalNotional":       d.TotalNotional.String(),
	}
}

// ValidationResult aggregates structural errors and rulebook checks.
type ValidationResult struct {
	IsValid bool                           `json:"isValid"`
	Errors  []apperrors.FieldError         `json:"errors,omitempty"`
	Checks  []models.ComplianceCheckResult `json:"checks,omitempty"`
}

// Err returns the result as a ValidationError, or nil when valid.
func (r ValidationResult) Err(regulation string) error {
	if r.IsValid {
		return nil
	}
	return &apperrors.ValidationError{Scope: regulation + " report", Fields: r.Errors}
}

// SubmissionResult is what SubmitReport hands back on every path.
type SubmissionResult struct {
	Success        bool                     `json:"success"`
	Status         string                   `json:"status"`
	ReportID       string                   `json:"reportId"`
	ConfirmationID string                   `json:"confirmationId,omitempty"`
	Errors         []apperrors.FieldError   `json:"errors,omitempty"`
	Reason         string                   `json:"reason,omitempty"`
	Attempts       int                      `json:"attempts"`
	ResponseTimeMs int64                    `json:"responseTimeMs"`
	Report         *models.RegulatoryReport `json:"report,omitempty"`
}

// ClearResult is returned by ClearAuditLog.
type ClearResult struct {
	Success bool `json:"success"`
	Cleared int  `json:"cleared"`
}

// HealthStatus summarises the service for the status endpoint.
type HealthStatus struct {
	Status       string          `json:"status"`
	AuditLogSize int             `json:"auditLogSize"`
	LastActivity time.Time       `json:"lastActivity,omitempty"`
	Regulators   map[string]bool `json:"regulators"`
	Error        string          `json:"error,omitempty"`
}

func regionFor(regulation string) string {
	switch regulation {
	case RegulationCFTC:
		return "US"
	case RegulationMAS:
		return "SG"
	default:
		return ""
	}
}
