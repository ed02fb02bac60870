// Package registry is the in-memory catalog of exchange connectors: a factory
// map keyed by exchange id plus multi-criteria descriptor lookup.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"energylink/connector"
	"energylink/logger"
	"energylink/models"
)

// ErrNoMatchingExchange is returned when no connector satisfies every criterion.
var ErrNoMatchingExchange = errors.New("no exchange matches all criteria")

// ErrUnknownExchange is returned by Open for an id that was never registered.
var ErrUnknownExchange = errors.New("exchange not registered")

// Criteria for FindBestExchange. Empty fields are not constrained.
type Criteria struct {
	Market     string `json:"market,omitempty"`
	Region     string `json:"region,omitempty"`
	Regulation string `json:"regulation,omitempty"`
}

func (c Criteria) matches(d models.ConnectorDescriptor) bool {
	if c.Market != "" && !d.SupportsMarket(c.Market) {
		return false
	}
	if c.Region != "" && d.Region != c.Region {
		return false
	}
	if c.Regulation != "" && !d.HasRegulation(c.Regulation) {
		return false
	}
	return true
}

type entry struct {
	factory    connector.Factory
	descriptor models.ConnectorDescriptor
	instance   connector.Connector
}

// Registry keeps entries in registration order; lookups return descriptors
// in that order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
	opts    map[string]connector.Options
	log     *logger.Entry
}

func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		opts:    make(map[string]connector.Options),
		log:     logger.GetLogger().WithComponent("registry"),
	}
}

// RegisterConnector adds a factory under id. The factory is called once to
// capture the descriptor, whose exchange id must equal id.
func (r *Registry) RegisterConnector(id string, factory connector.Factory, opts connector.Options) error {
	if id == "" {
		return errors.New("exchange id is required")
	}
	if factory == nil {
		return fmt.Errorf("factory for %q is nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return fmt.Errorf("connector %q already registered", id)
	}

	desc := factory(opts).Descriptor()
	if desc.ExchangeID != id {
		return fmt.Errorf("connector registered as %q describes itself as %q", id, desc.ExchangeID)
	}
	desc.Status = models.StatusDisconnected

	r.entries[id] = &entry{factory: factory, descriptor: desc}
	r.opts[id] = opts
	r.order = append(r.order, id)

	r.log.WithFields(logger.Fields{"exchange": id, "region": desc.Region, "markets": desc.Markets}).Info("connector registered")
	return nil
}

// descriptorLocked returns a copy with the live instance's status. Callers hold r.mu.
func (r *Registry) descriptorLocked(id string) models.ConnectorDescriptor {
	e := r.entries[id]
	if e.instance != nil {
		return e.instance.Descriptor()
	}
	return e.descriptor.Clone()
}

func (r *Registry) filter(pred func(models.ConnectorDescriptor) bool) []models.ConnectorDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ConnectorDescriptor, 0, len(r.order))
	for _, id := range r.order {
		d := r.descriptorLocked(id)
		if pred(d) {
			out = append(out, d)
		}
	}
	return out
}

func (r *Registry) GetRegisteredConnectors() []models.ConnectorDescriptor {
	return r.filter(func(models.ConnectorDescriptor) bool { return true })
}

func (r *Registry) GetConnectorsByRegion(region string) []models.ConnectorDescriptor {
	return r.filter(func(d models.ConnectorDescriptor) bool { return d.Region == region })
}

func (r *Registry) GetConnectorsByMarket(market string) []models.ConnectorDescriptor {
	return r.filter(func(d models.ConnectorDescriptor) bool { return d.SupportsMarket(market) })
}

func (r *Registry) GetConnectorsByRegulation(code string) []models.ConnectorDescriptor {
	return r.filter(func(d models.ConnectorDescriptor) bool { return d.HasRegulation(code) })
}

// FindBestExchange returns the first registered descriptor satisfying every
// supplied criterion. There is no partial-match fallback.
func (r *Registry) FindBestExchange(c Criteria) (models.ConnectorDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		d := r.descriptorLocked(id)
		if c.matches(d) {
			return d, nil
		}
	}
	return models.ConnectorDescriptor{}, fmt.Errorf("%w (market=%q region=%q regulation=%q)", ErrNoMatchingExchange, c.Market, c.Region, c.Regulation)
}

// Open returns the live instance for id, creating it on first use.
func (r *Registry) Open(id string) (connector.Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExchange, id)
	}
	if e.instance == nil {
		e.instance = e.factory(r.opts[id])
		r.log.WithFields(logger.Fields{"exchange": id}).Debug("connector instance created")
	}
	return e.instance, nil
}

// Instances returns the connectors opened so far, in registration order.
func (r *Registry) Instances() []connector.Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]connector.Connector, 0, len(r.order))
	for _, id := range r.order {
		if inst := r.entries[id].instance; inst != nil {
			out = append(out, inst)
		}
	}
	return out
}
