package compliance

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"energylink/internal/apperrors"
	"energylink/models"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	leiPattern        = regexp.MustCompile(`^[A-Z0-9]{18}[0-9]{2}$`)
	masLicensePattern = regexp.MustCompile(`^MAS[0-9]{6}$`)
)

// newValidator builds a validator that reads json field names, compares
// decimals numerically and knows the jurisdiction identifier formats.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("lei", func(fl validator.FieldLevel) bool {
		return leiPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("mas_license", func(fl validator.FieldLevel) bool {
		return masLicensePattern.MatchString(fl.Field().String())
	})
	return v
}

func structuralErrors(v *validator.Validate, data ReportData) []apperrors.FieldError {
	err := v.Struct(data)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []apperrors.FieldError{{Message: err.Error()}}
	}

	out := make([]apperrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, apperrors.FieldError{Field: fieldPath(fe.Namespace()), Message: describe(fe)})
	}
	return out
}

// fieldPath drops the root struct name: ReportData.positions[0].symbol -> positions[0].symbol.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	case "lei":
		return "must be a 20 character legal entity identifier"
	case "mas_license":
		return "must match MAS followed by six digits"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

type rule func(data ReportData, now time.Time) []models.ComplianceCheckResult

// rulebooks hold the business invariants per regulation.
var rulebooks = map[string][]rule{
	RegulationCFTC: {cftcReportingEntity, cftcHasPositions, cftcLongTotal, cftcShortTotal},
	RegulationMAS:  {masInstitutionLicense, masHasTrades, masNotionalTotal, masTradeNotionals, masTradeDates},
}

func check(requirement string, ok bool, severity models.Severity, current, required any, details string) models.ComplianceCheckResult {
	return models.ComplianceCheckResult{
		Requirement:   requirement,
		Compliant:     ok,
		Severity:      severity,
		CurrentValue:  current,
		RequiredValue: required,
		Details:       details,
	}
}

func cftcReportingEntity(d ReportData, _ time.Time) []models.ComplianceCheckResult {
	return []models.ComplianceCheckResult{check("reportingEntity", d.ReportingEntity != "", models.SeverityHigh,
		d.ReportingEntity, "LEI", "CFTC reports must name the reporting entity")}
}

func cftcHasPositions(d ReportData, _ time.Time) []models.ComplianceCheckResult {
	return []models.ComplianceCheckResult{check("positions", len(d.Positions) > 0, models.SeverityHigh,
		len(d.Positions), ">= 1", "at least one position is required")}
}

func cftcLongTotal(d ReportData, _ time.Time) []models.ComplianceCheckResult {
	sum := decimal.Zero
	for _, p := range d.Positions {
		sum = sum.Add(p.LongQuantity)
	}
	ok := sum.Equal(d.TotalLongPositions)
	return []models.ComplianceCheckResult{check("totalLongPositions", ok, models.SeverityCritical,
		d.TotalLongPositions.String(), sum.String(),
		fmt.Sprintf("declared %s but positions sum to %s", d.TotalLongPositions, sum))}
}

func cftcShortTotal(d ReportData, _ time.Time) []models.ComplianceCheckResult {
	sum := decimal.Zero
	for _, p := range d.Positions {
		sum = sum.Add(p.ShortQuantity)
	}
	ok := sum.Equal(d.TotalShortPositions)
	return []models.ComplianceCheckResult{check("totalShortPositions", ok, models.SeverityCritical,
		d.TotalShortPositions.String(), sum.String(),
		fmt.Sprintf("declared %s but positions sum to %s", d.TotalShortPositions, sum))}
}

func masInstitutionLicense(d ReportData, _ time.Time) []models.ComplianceCheckResult {
	return []models.ComplianceCheckResult{check("institutionLicense", d.InstitutionLicense != "", models.SeverityHigh,
		d.InstitutionLicense, "MAS######", "MAS reports must carry the institution licence")}
}

func masHasTrades(d ReportData, _ time.Time) []models.ComplianceCheckResult {
	return []models.ComplianceCheckResult{check("trades", len(d.Trades) > 0, models.SeverityHigh,
		len(d.Trades), ">= 1", "at least one trade is required")}
}

func masNotionalTotal(d ReportData, _ time.Time) []models.ComplianceCheckResult {
	sum := decimal.Zero
	for _, t := range d.Trades {
		sum = sum.Add(t.Notional)
	}
	ok := sum.Equal(d.TotalNotional)
	return []models.ComplianceCheckResult{check("totalNotional", ok, models.SeverityCritical,
		d.TotalNotional.String(), sum.String(),
		fmt.Sprintf("declared %s but trades sum to %s", d.TotalNotional, sum))}
}

func masTradeNotionals(d ReportData, _ time.Time) []models.ComplianceCheckResult {
	var out []models.ComplianceCheckResult
	for i, t := range d.Trades {
		want := t.Quantity.Mul(t.Price)
		if !t.Notional.Equal(want) {
			out = append(out, check(fmt.Sprintf("trades[%d].notional", i), false, models.SeverityMedium,
				t.Notional.String(), want.String(), "notional must equal quantity × price"))
		}
	}
	return out
}

func masTradeDates(d ReportData, now time.Time) []models.ComplianceCheckResult {
	var out []models.ComplianceCheckResult
	for i, t := range d.Trades {
		if t.TradeDate.After(now) {
			out = append(out, check(fmt.Sprintf("trades[%d].tradeDate", i), false, models.SeverityHigh,
				t.TradeDate.UTC().Format(time.RFC3339), "not in the future", "trade date is in the future"))
		}
	}
	return out
}

// validate runs structural checks, then the rulebook of the report's
// regulation. Any failure invalidates the report.
func validate(v *validator.Validate, data ReportData, now time.Time) ValidationResult {
	result := ValidationResult{Errors: structuralErrors(v, data)}

	for _, r := range rulebooks[data.Regulation] {
		for _, c := range r(data, now) {
			result.Checks = append(result.Checks, c)
			if !c.Compliant {
				result.Errors = append(result.Errors, apperrors.FieldError{Field: c.Requirement, Message: c.Details})
			}
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}
