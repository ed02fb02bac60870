// Package connector defines the contract every exchange adapter implements
// and the helpers adapters compose: session lifecycle, fee schedule, shared
// order checks and the REST/WebSocket market data feed.
package connector

import (
	"context"

	"energylink/config"
	"energylink/logger"
	"energylink/models"
)

// Credentials are the secrets presented on Connect. Which fields are required
// depends on the venue.
type Credentials struct {
	APIKey        string
	APISecret     string
	ParticipantID string
}

// QuoteHandler receives streamed quotes. It is called from the subscription
// goroutine and must not block for long.
type QuoteHandler func(models.MarketQuote)

// Options is what a Factory receives when the registry instantiates a connector.
type Options struct {
	Config config.ConnectorConfig
	Log    *logger.Log
}

// Logger returns the configured logger or the process default.
func (o Options) Logger() *logger.Log {
	if o.Log != nil {
		return o.Log
	}
	return logger.GetLogger()
}

// Setting reads a numeric venue setting, falling back to def when unset.
func (o Options) Setting(key string, def float64) float64 {
	if v, ok := o.Config.Settings[key]; ok {
		return v
	}
	return def
}

// Connector is a uniform adapter over one external exchange.
type Connector interface {
	Descriptor() models.ConnectorDescriptor
	Initialize(ctx context.Context) error
	Connect(ctx context.Context, creds Credentials) (models.ConnectionStatus, error)
	Disconnect(ctx context.Context) error
	// ValidateOrder returns a *apperrors.ValidationError naming the first
	// violated rule, or nil.
	ValidateOrder(order models.Order) error
	CalculateFees(order models.Order) models.FeeBreakdown
	GetMarketData(ctx context.Context, symbol string) (*models.MarketQuote, error)
	SubscribeToMarketData(ctx context.Context, symbol string, handler QuoteHandler) (string, error)
	Unsubscribe(subscriptionID string) error
}

// Factory builds a connector. The registry calls it once at registration to
// read the descriptor and again when an instance is opened.
type Factory func(opts Options) Connector
