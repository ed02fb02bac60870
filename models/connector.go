package models

import "slices"

// ConnectionStatus is the lifecycle state of a connector session.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// ConnectorDescriptor is the static capability record of an exchange connector.
// Status reflects the live instance when one has been opened.
type ConnectorDescriptor struct {
	ExchangeID  string           `json:"exchangeId" yaml:"exchange_id"`
	Name        string           `json:"name" yaml:"name"`
	Region      string           `json:"region" yaml:"region"`
	Markets     []string         `json:"markets" yaml:"markets"`
	Regulations []string         `json:"regulations" yaml:"regulations"`
	Protocols   []string         `json:"protocols" yaml:"protocols"`
	Timezone    string           `json:"timezone" yaml:"timezone"`
	Status      ConnectionStatus `json:"status" yaml:"-"`
	// LastError is the reason the most recent Connect failed, if it did.
	LastError   string           `json:"lastError,omitempty" yaml:"-"`
}

// SupportsMarket reports whether the connector lists the given market symbol.
func (d ConnectorDescriptor) SupportsMarket(market string) bool {
	return slices.Contains(d.Markets, market)
}

// HasRegulation reports whether the connector falls under the given regulation code.
func (d ConnectorDescriptor) HasRegulation(code string) bool {
	return slices.Contains(d.Regulations, code)
}

// Clone returns a deep copy so callers cannot mutate registry state through slices.
func (d ConnectorDescriptor) Clone() ConnectorDescriptor {
	d.Markets = slices.Clone(d.Markets)
	d.Regulations = slices.Clone(d.Regulations)
	d.Protocols = slices.Clone(d.Protocols)
	return d
}
