// Package routing places orders: it resolves a venue through the registry,
// lets the venue validate and price the order and, for CFTC and MAS venues,
// files the resulting regulatory report.
package routing

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"energylink/compliance"
	"energylink/config"
	"energylink/events"
	"energylink/internal/metrics"
	"energylink/internal/symbols"
	"energylink/logger"
	"energylink/models"
	"energylink/registry"

	"github.com/google/uuid"
)

// Submitter files regulatory reports. *compliance.Service implements it.
type Submitter interface {
	SubmitReport(ctx context.Context, data compliance.ReportData, userID string) (*compliance.SubmissionResult, error)
}

// Identity holds the identifiers written into generated reports.
type Identity struct {
	EntityLEI          string
	InstitutionLicense string
	CounterpartyLEI    string
}

func IdentityFromConfig(cfg config.ComplianceConfig) Identity {
	return Identity{
		EntityLEI:          cfg.ReportingEntity,
		InstitutionLicense: cfg.InstitutionLicense,
		CounterpartyLEI:    cfg.Counterparty,
	}
}

// missing lists the config keys a report for regulation would need but lacks.
func (id Identity) missing(regulation string) []string {
	var out []string
	switch regulation {
	case compliance.RegulationCFTC:
		if id.EntityLEI == "" {
			out = append(out, "reporting_entity")
		}
	case compliance.RegulationMAS:
		if id.InstitutionLicense == "" {
			out = append(out, "institution_license")
		}
		if id.CounterpartyLEI == "" {
			out = append(out, "counterparty")
		}
	}
	return out
}

// Execution is the outcome of PlaceOrder. Submission is nil when the venue
// has no reportable regulation.
type Execution struct {
	OrderID    string                       `json:"orderId"`
	Exchange   string                       `json:"exchange"`
	Fees       models.FeeBreakdown          `json:"fees"`
	Regulation string                       `json:"regulation,omitempty"`
	Submission *compliance.SubmissionResult `json:"submission,omitempty"`
}

// reportable lists the regulations this desk files reports for, in order of preference.
var reportable = []string{compliance.RegulationCFTC, compliance.RegulationMAS}

const recentLimit = 50

type Desk struct {
	reg       *registry.Registry
	submitter Submitter
	identity  Identity
	bus       *events.Bus
	now       func() time.Time
	log       *logger.Entry

	mu     sync.Mutex
	recent []Execution
	routed int
	failed int
}

func NewDesk(reg *registry.Registry, submitter Submitter, identity Identity, bus *events.Bus) *Desk {
	return &Desk{
		reg:       reg,
		submitter: submitter,
		identity:  identity,
		bus:       bus,
		now:       time.Now,
		log:       logger.GetLogger().WithComponent("routing"),
	}
}

// PlaceOrder routes order to the first venue matching criteria. An empty
// criteria market defaults to the order symbol. The order is never modified.
func (d *Desk) PlaceOrder(ctx context.Context, order models.Order, criteria registry.Criteria, userID string) (*Execution, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if criteria.Market == "" {
		criteria.Market = symbols.Normalize(order.Symbol)
	}
	log := d.log.WithFields(logger.Fields{"order_id": order.ID, "market": criteria.Market, "user_id": userID})

	desc, err := d.reg.FindBestExchange(criteria)
	if err != nil {
		return nil, fmt.Errorf("route order %s: %w", order.ID, err)
	}
	conn, err := d.reg.Open(desc.ExchangeID)
	if err != nil {
		return nil, fmt.Errorf("route order %s: %w", order.ID, err)
	}

	if err := conn.ValidateOrder(order); err != nil {
		metrics.RecordOrder(desc.ExchangeID, "rejected")
		log.WithError(err).WithFields(logger.Fields{"exchange": desc.ExchangeID}).Warn("order rejected by venue")
		return nil, err
	}

	exec := &Execution{
		OrderID:  order.ID,
		Exchange: desc.ExchangeID,
		Fees:     conn.CalculateFees(order),
	}

	exec.Regulation = pickRegulation(desc, criteria.Regulation)
	if exec.Regulation != "" && d.submitter != nil {
		data := d.buildReport(exec.Regulation, desc.ExchangeID, order)
		res, err := d.submitter.SubmitReport(ctx, data, userID)
		exec.Submission = res
		if err != nil {
			metrics.RecordOrder(desc.ExchangeID, "report_failed")
			d.record(*exec, false)
			return exec, fmt.Errorf("report order %s to %s: %w", order.ID, exec.Regulation, err)
		}
	}

	metrics.RecordOrder(desc.ExchangeID, "routed")
	d.record(*exec, true)
	log.WithFields(logger.Fields{"exchange": desc.ExchangeID, "total_fee": exec.Fees.Total.String()}).Info("order routed")
	if d.bus != nil {
		d.bus.Publish(events.OrderRouted, "routing", *exec)
	}
	return exec, nil
}

func (d *Desk) record(exec Execution, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ok {
		d.routed++
	} else {
		d.failed++
	}
	d.recent = append(d.recent, exec)
	if len(d.recent) > recentLimit {
		d.recent = slices.Clone(d.recent[len(d.recent)-recentLimit:])
	}
}

// Recent returns the latest executions, oldest first, including those whose
// report failed.
func (d *Desk) Recent() []Execution {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.recent)
}

type Health struct {
	Status          string              `json:"status"`
	Routed          int                 `json:"routed"`
	ReportFailures  int                 `json:"reportFailures"`
	MissingIdentity map[string][]string `json:"missingIdentity,omitempty"`
}

// GetHealthStatus is degraded while a registered venue's regulation cannot be
// reported for lack of an identifier, since every order routed there would
// fail report validation.
func (d *Desk) GetHealthStatus(context.Context) Health {
	d.mu.Lock()
	h := Health{Status: "healthy", Routed: d.routed, ReportFailures: d.failed}
	d.mu.Unlock()

	for _, desc := range d.reg.GetRegisteredConnectors() {
		for _, r := range reportable {
			if !desc.HasRegulation(r) {
				continue
			}
			if keys := d.identity.missing(r); len(keys) > 0 {
				if h.MissingIdentity == nil {
					h.MissingIdentity = make(map[string][]string)
				}
				h.MissingIdentity[r] = keys
			}
		}
	}
	if len(h.MissingIdentity) > 0 {
		h.Status = "degraded"
	}
	return h
}

func pickRegulation(desc models.ConnectorDescriptor, requested string) string {
	if requested != "" {
		if slices.Contains(reportable, requested) && desc.HasRegulation(requested) {
			return requested
		}
		return ""
	}
	for _, r := range reportable {
		if desc.HasRegulation(r) {
			return r
		}
	}
	return ""
}

// buildReport turns an accepted order into report data whose declared totals
// match its lines.
func (d *Desk) buildReport(regulation, exchange string, order models.Order) compliance.ReportData {
	now := d.now().UTC()
	data := compliance.ReportData{
		ReportID:      "ORD-" + order.ID,
		Regulation:    regulation,
		ReportingDate: now,
	}
	venueSymbol := symbols.ToVenue(exchange, symbols.Normalize(order.Symbol))

	switch regulation {
	case compliance.RegulationCFTC:
		pos := compliance.Position{Symbol: venueSymbol}
		if order.Side == models.SideBuy {
			pos.LongQuantity = order.Quantity
		} else {
			pos.ShortQuantity = order.Quantity
		}
		data.ReportingEntity = d.identity.EntityLEI
		data.Positions = []compliance.Position{pos}
		data.TotalLongPositions = pos.LongQuantity
		data.TotalShortPositions = pos.ShortQuantity
	case compliance.RegulationMAS:
		notional := order.Notional()
		data.InstitutionLicense = d.identity.InstitutionLicense
		data.Trades = []compliance.Trade{{
			TradeID:      order.ID,
			Symbol:       venueSymbol,
			Quantity:     order.Quantity,
			Price:        order.Price,
			Notional:     notional,
			TradeDate:    now,
			Counterparty: d.identity.CounterpartyLEI,
		}}
		data.TotalNotional = notional
	}
	return data
}
