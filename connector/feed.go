package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"energylink/internal/remote"
	"energylink/logger"
	"energylink/models"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// ErrNoEndpoint is returned when a feed operation needs an URL that is not configured.
var ErrNoEndpoint = errors.New("market data endpoint not configured")

// QuoteFields are gjson paths into a venue's quote payload.
type QuoteFields struct {
	Symbol    string
	Last      string
	Bid       string
	Ask       string
	Volume    string
	Timestamp string
}

// DefaultQuoteFields match a flat {"symbol","last","bid","ask","volume","timestamp"} object.
var DefaultQuoteFields = QuoteFields{
	Symbol:    "symbol",
	Last:      "last",
	Bid:       "bid",
	Ask:       "ask",
	Volume:    "volume",
	Timestamp: "timestamp",
}

type FeedConfig struct {
	Exchange          string
	BaseURL           string
	StreamURL         string
	QuotePath         string // resty path template with a {symbol} parameter
	HealthPath        string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Fields            QuoteFields
	ReconnectDelay    time.Duration
}

// Feed fetches quotes over REST and streams them over WebSocket.
type Feed struct {
	cfg     FeedConfig
	client  *resty.Client
	limiter *rate.Limiter
	dialer  *websocket.Dialer
	log     *logger.Entry

	mu   sync.Mutex
	subs map[string]*subscription
}

type subscription struct {
	id      string
	symbol  string
	handler QuoteHandler
	cancel  context.CancelFunc
	done    chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewFeed(cfg FeedConfig, log *logger.Log) *Feed {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.QuotePath == "" {
		cfg.QuotePath = "/quotes/{symbol}"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	if cfg.Fields == (QuoteFields{}) {
		cfg.Fields = DefaultQuoteFields
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if log == nil {
		log = logger.GetLogger()
	}

	return &Feed{
		cfg:     cfg,
		client:  remote.NewClient(cfg.BaseURL, cfg.Timeout),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.Timeout},
		log:     log.WithComponent("market_feed").WithFields(logger.Fields{"exchange": cfg.Exchange}),
		subs:    make(map[string]*subscription),
	}
}

// Ping checks the venue health endpoint. A feed without a base URL has
// nothing to check and always succeeds.
func (f *Feed) Ping(ctx context.Context) error {
	if f.cfg.BaseURL == "" {
		return nil
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := f.client.R().SetContext(ctx).Get(f.cfg.HealthPath)
	return remote.Classify(ctx, f.cfg.Exchange+" health check", resp, err)
}

// Quote fetches a single quote for the venue symbol.
func (f *Feed) Quote(ctx context.Context, venueSymbol string) (*models.MarketQuote, error) {
	if f.cfg.BaseURL == "" {
		return nil, ErrNoEndpoint
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := f.client.R().
		SetContext(ctx).
		SetPathParam("symbol", venueSymbol).
		Get(f.cfg.QuotePath)
	if err := remote.Classify(ctx, f.cfg.Exchange+" quote", resp, err); err != nil {
		return nil, err
	}

	quote, err := f.parseQuote(resp.Body(), venueSymbol)
	if err != nil {
		return nil, err
	}
	logger.LogPerformanceEntry(f.log, "market_feed", "quote", time.Since(start), logger.Fields{"symbol": venueSymbol})
	return quote, nil
}

func (f *Feed) parseQuote(body []byte, venueSymbol string) (*models.MarketQuote, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s quote: invalid JSON payload", f.cfg.Exchange)
	}
	doc := gjson.ParseBytes(body)
	last := doc.Get(f.cfg.Fields.Last)
	if !last.Exists() {
		return nil, fmt.Errorf("%s quote: missing %q", f.cfg.Exchange, f.cfg.Fields.Last)
	}

	symbol := venueSymbol
	if s := doc.Get(f.cfg.Fields.Symbol); s.Exists() && s.String() != "" {
		symbol = s.String()
	}

	return &models.MarketQuote{
		Exchange:  f.cfg.Exchange,
		Symbol:    symbol,
		Last:      last.Float(),
		Bid:       doc.Get(f.cfg.Fields.Bid).Float(),
		Ask:       doc.Get(f.cfg.Fields.Ask).Float(),
		Volume:    doc.Get(f.cfg.Fields.Volume).Float(),
		Timestamp: ParseTimestamp(doc.Get(f.cfg.Fields.Timestamp)),
	}, nil
}

// ParseTimestamp accepts epoch milliseconds or an RFC3339 string and falls
// back to now.
func ParseTimestamp(r gjson.Result) time.Time {
	switch r.Type {
	case gjson.Number:
		return time.UnixMilli(r.Int()).UTC()
	case gjson.String:
		if ts, err := time.Parse(time.RFC3339, r.String()); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}

// Subscribe opens a stream for venueSymbol and returns its subscription id.
// The connection is re-established until Unsubscribe or Close.
func (f *Feed) Subscribe(ctx context.Context, venueSymbol string, handler QuoteHandler) (string, error) {
	if f.cfg.StreamURL == "" {
		return "", ErrNoEndpoint
	}
	if handler == nil {
		return "", errors.New("quote handler is required")
	}

	id := uuid.NewString()
	conn, err := f.dial(ctx, id, venueSymbol)
	if err != nil {
		return "", err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		id:      id,
		symbol:  venueSymbol,
		handler: handler,
		cancel:  cancel,
		done:    make(chan struct{}),
		conn:    conn,
	}

	f.mu.Lock()
	f.subs[id] = sub
	f.mu.Unlock()

	go f.stream(subCtx, sub)

	f.log.WithFields(logger.Fields{"subscription_id": id, "symbol": venueSymbol}).Info("market data subscription started")
	return id, nil
}

func (f *Feed) dial(ctx context.Context, id, venueSymbol string) (*websocket.Conn, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.cfg.StreamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s stream dial: %w", f.cfg.Exchange, err)
	}
	sub := map[string]string{"op": "subscribe", "symbol": venueSymbol, "id": id}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s stream subscribe: %w", f.cfg.Exchange, err)
	}
	return conn, nil
}

// stream reads from the subscription's connection, redialling after read
// errors until the subscription is cancelled.
func (f *Feed) stream(ctx context.Context, sub *subscription) {
	defer close(sub.done)
	log := f.log.WithFields(logger.Fields{"subscription_id": sub.id, "symbol": sub.symbol, "worker": "quote_stream"})

	for {
		sub.mu.Lock()
		conn := sub.conn
		sub.mu.Unlock()

		if conn != nil {
			f.readLoop(conn, sub)
			conn.Close()
		}
		if ctx.Err() != nil {
			return
		}

		log.Warn("quote stream dropped, reconnecting")
		select {
		case <-time.After(f.cfg.ReconnectDelay):
		case <-ctx.Done():
			return
		}

		next, err := f.dial(ctx, sub.id, sub.symbol)
		if err != nil {
			log.WithError(err).Warn("failed to reconnect quote stream")
			sub.mu.Lock()
			sub.conn = nil
			sub.mu.Unlock()
			continue
		}

		sub.mu.Lock()
		if ctx.Err() != nil {
			sub.mu.Unlock()
			next.Close()
			return
		}
		sub.conn = next
		sub.mu.Unlock()
	}
}

func (f *Feed) readLoop(conn *websocket.Conn, sub *subscription) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		quote, err := f.parseQuote(message, sub.symbol)
		if err != nil {
			// acks and heartbeats carry no price
			continue
		}
		if quote.Symbol != sub.symbol {
			continue
		}
		sub.handler(*quote)
	}
}

// Unsubscribe stops one subscription and waits for its goroutine to exit.
func (f *Feed) Unsubscribe(id string) error {
	f.mu.Lock()
	sub, ok := f.subs[id]
	delete(f.subs, id)
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown subscription %q", id)
	}

	sub.cancel()
	sub.mu.Lock()
	if sub.conn != nil {
		sub.conn.Close()
	}
	sub.mu.Unlock()
	<-sub.done

	f.log.WithFields(logger.Fields{"subscription_id": id}).Info("market data subscription stopped")
	return nil
}

// Close stops every subscription.
func (f *Feed) Close() {
	f.mu.Lock()
	ids := make([]string, 0, len(f.subs))
	for id := range f.subs {
		ids = append(ids, id)
	}
	f.mu.Unlock()

	for _, id := range ids {
		_ = f.Unsubscribe(id)
	}
}

// Subscriptions returns the number of active subscriptions.
func (f *Feed) Subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
