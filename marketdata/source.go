// Package marketdata keeps a best-effort current price for one benchmark
// source. It polls on an interval, caches the latest snapshot with a TTL and
// falls back to the cache when the source is unavailable.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"energylink/config"
	"energylink/connector"
	"energylink/internal/remote"
	"energylink/models"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

var (
	ErrNoPriceData   = errors.New("no price data available")
	ErrMissingAPIKey = errors.New("market data API key not configured")
	ErrNoSource      = errors.New("market data source URL not configured")
)

// Source is the remote price provider.
type Source interface {
	Latest(ctx context.Context) (models.PriceSnapshot, error)
	Range(ctx context.Context, start, end time.Time) ([]models.PriceSnapshot, error)
}

// HTTPSource reads JSON price payloads and picks values with gjson paths, so
// the same code serves any provider whose layout fits FieldPaths.
type HTTPSource struct {
	cfg    config.MarketDataConfig
	client *resty.Client
}

func NewHTTPSource(cfg config.MarketDataConfig) *HTTPSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{cfg: cfg, client: remote.NewClient("", timeout)}
}

func (s *HTTPSource) request(ctx context.Context) *resty.Request {
	req := s.client.R().SetContext(ctx).SetQueryParam("symbol", s.cfg.Symbol)
	if s.cfg.APIKey != "" {
		req.SetHeader("X-API-Key", s.cfg.APIKey)
	}
	return req
}

// Latest fetches the current snapshot. When the payload holds a list under
// Fields.Items the most recent element is used.
func (s *HTTPSource) Latest(ctx context.Context) (models.PriceSnapshot, error) {
	if s.cfg.SourceURL == "" {
		return models.PriceSnapshot{}, ErrNoSource
	}
	resp, err := s.request(ctx).Get(s.cfg.SourceURL)
	if err := remote.Classify(ctx, "price fetch", resp, err); err != nil {
		return models.PriceSnapshot{}, err
	}

	items := s.items(resp.Body())
	if len(items) == 0 {
		return models.PriceSnapshot{}, fmt.Errorf("price fetch: empty payload")
	}
	snap, err := s.parse(items[len(items)-1])
	if err != nil {
		return models.PriceSnapshot{}, err
	}
	snap.Source = models.SourceLive
	return snap, nil
}

// Range makes a single call for the closed interval [start, end].
func (s *HTTPSource) Range(ctx context.Context, start, end time.Time) ([]models.PriceSnapshot, error) {
	url := s.cfg.HistoricalURL
	if url == "" {
		url = s.cfg.SourceURL
	}
	if url == "" {
		return nil, ErrNoSource
	}
	resp, err := s.request(ctx).
		SetQueryParam("start", start.UTC().Format(time.RFC3339)).
		SetQueryParam("end", end.UTC().Format(time.RFC3339)).
		Get(url)
	if err := remote.Classify(ctx, "historical price fetch", resp, err); err != nil {
		return nil, err
	}

	items := s.items(resp.Body())
	out := make([]models.PriceSnapshot, 0, len(items))
	for _, item := range items {
		snap, err := s.parse(item)
		if err != nil {
			continue
		}
		snap.Source = models.SourceLive
		out = append(out, snap)
	}
	return out, nil
}

func (s *HTTPSource) items(body []byte) []gjson.Result {
	root := gjson.ParseBytes(body)
	if s.cfg.Fields.Items != "" {
		if v := root.Get(s.cfg.Fields.Items); v.Exists() {
			root = v
		}
	}
	if root.IsArray() {
		return root.Array()
	}
	if root.IsObject() {
		return []gjson.Result{root}
	}
	return nil
}

func (s *HTTPSource) parse(item gjson.Result) (models.PriceSnapshot, error) {
	f := s.cfg.Fields
	price := item.Get(f.Price)
	if !price.Exists() {
		return models.PriceSnapshot{}, fmt.Errorf("price fetch: payload has no %q field", f.Price)
	}

	snap := models.PriceSnapshot{
		Symbol:              s.cfg.Symbol,
		Price:               price.Float(),
		Volume:              item.Get(f.Volume).Float(),
		QualityDifferential: item.Get(f.QualityDifferential).Float(),
		SulfurContent:       item.Get(f.SulfurContent).Float(),
		APIGravity:          item.Get(f.APIGravity).Float(),
	}
	snap.Timestamp = connector.ParseTimestamp(item.Get(f.Timestamp))
	return snap, nil
}
