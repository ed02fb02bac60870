package connector

import (
	"context"
	"errors"
	"fmt"

	"energylink/internal/symbols"
	"energylink/logger"
	"energylink/models"
)

// CredentialCheck returns the reason creds cannot open a session with the
// venue, or "" when they are sufficient.
type CredentialCheck func(creds Credentials) string

// Base implements the session and market data half of Connector. Venues embed
// it and add Initialize, ValidateOrder and CalculateFees.
type Base struct {
	desc    models.ConnectorDescriptor
	session *Session
	feed    *Feed
	check   CredentialCheck
	log     *logger.Entry
}

func NewBase(desc models.ConnectorDescriptor, opts Options, check CredentialCheck) *Base {
	cfg := opts.Config
	return &Base{
		desc:    desc,
		session: NewSession(desc.ExchangeID),
		feed: NewFeed(FeedConfig{
			Exchange:          desc.ExchangeID,
			BaseURL:           cfg.BaseURL,
			StreamURL:         cfg.StreamURL,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.BurstSize,
		}, opts.Logger()),
		check: check,
		log:   opts.Logger().WithComponent("connector").WithFields(logger.Fields{"exchange": desc.ExchangeID}),
	}
}

// Descriptor returns a copy carrying the live session status.
func (b *Base) Descriptor() models.ConnectorDescriptor {
	d := b.desc.Clone()
	d.Status = b.session.Status()
	if d.Status == models.StatusError {
		d.LastError = b.session.LastError()
	}
	return d
}

func (b *Base) Log() *logger.Entry { return b.log }

// CheckOrder runs the checks shared by every venue.
func (b *Base) CheckOrder(order models.Order) error {
	return CheckBasics(b.desc, order)
}

// Connect rejects insufficient credentials, then checks the venue health
// endpoint when one is configured.
func (b *Base) Connect(ctx context.Context, creds Credentials) (models.ConnectionStatus, error) {
	proceed, err := b.session.Begin()
	if err != nil {
		return b.session.Status(), err
	}
	if !proceed {
		return models.StatusConnected, nil
	}

	if b.check != nil {
		if reason := b.check(creds); reason != "" {
			b.log.WithFields(logger.Fields{"reason": reason}).Warn("connect rejected")
			return b.session.Fail(reason)
		}
	}
	if err := b.feed.Ping(ctx); err != nil {
		b.log.WithError(err).Warn("venue health check failed")
		return b.session.Fail(err.Error())
	}

	b.session.Established()
	b.log.Info("connected")
	return models.StatusConnected, nil
}

func (b *Base) Disconnect(ctx context.Context) error {
	b.feed.Close()
	b.session.Close()
	b.log.Info("disconnected")
	return nil
}

// market resolves symbol to the canonical market and the venue's own symbol.
func (b *Base) market(symbol string) (market, venue string, err error) {
	if err := b.session.RequireConnected(); err != nil {
		return "", "", err
	}
	market = symbols.Normalize(symbol)
	if !b.desc.SupportsMarket(market) {
		return "", "", fmt.Errorf("%s does not list %s", b.desc.ExchangeID, symbol)
	}
	return market, symbols.ToVenue(b.desc.ExchangeID, market), nil
}

func (b *Base) GetMarketData(ctx context.Context, symbol string) (*models.MarketQuote, error) {
	market, venue, err := b.market(symbol)
	if err != nil {
		return nil, err
	}
	quote, err := b.feed.Quote(ctx, venue)
	if err != nil {
		return nil, err
	}
	quote.Symbol = market
	return quote, nil
}

// SubscribeToMarketData streams quotes relabelled with the canonical market.
func (b *Base) SubscribeToMarketData(ctx context.Context, symbol string, handler QuoteHandler) (string, error) {
	if handler == nil {
		return "", errors.New("quote handler is required")
	}
	market, venue, err := b.market(symbol)
	if err != nil {
		return "", err
	}
	return b.feed.Subscribe(ctx, venue, func(q models.MarketQuote) {
		q.Symbol = market
		handler(q)
	})
}

func (b *Base) Unsubscribe(subscriptionID string) error {
	return b.feed.Unsubscribe(subscriptionID)
}
