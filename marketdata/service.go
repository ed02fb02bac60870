package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"energylink/config"
	"energylink/events"
	"energylink/internal/apperrors"
	"energylink/internal/metrics"
	"energylink/internal/remote"
	"energylink/logger"
	"energylink/models"
)

const eventSource = "marketdata"

// FetchFailure is the payload of a fetch_error event.
type FetchFailure struct {
	Symbol   string `json:"symbol"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// HealthStatus is the service's self report.
type HealthStatus struct {
	Status       string    `json:"status"`
	Symbol       string    `json:"symbol"`
	Polling      bool      `json:"polling"`
	LastFetch    time.Time `json:"lastFetch,omitempty"`
	LastError    string    `json:"lastError,omitempty"`
	FetchCount   int64     `json:"fetchCount"`
	ErrorCount   int64     `json:"errorCount"`
	CacheAge     string    `json:"cacheAge,omitempty"`
	CacheExpired bool      `json:"cacheExpired"`
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.policy.Sleep = sleep }
}

func WithLogger(log *logger.Log) Option { return func(s *Service) { s.logger = log } }

// Service polls Source and serves prices with cache fallback. Listeners
// attached with Subscribe are detached by Destroy.
type Service struct {
	cfg    config.MarketDataConfig
	source Source
	cache  Cache
	bus    *events.Bus
	policy remote.Policy
	now    func() time.Time
	logger *logger.Log
	log    *logger.Entry

	mu      sync.Mutex
	cancel  context.CancelFunc
	loopWG  sync.WaitGroup
	fetchWG sync.WaitGroup

	fetching atomic.Bool
	writeMu  sync.Mutex

	statsMu    sync.RWMutex
	lastFetch  time.Time
	lastError  string
	fetchCount int64
	errorCount int64
}

func NewService(cfg config.MarketDataConfig, source Source, cache Cache, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		source: source,
		cache:  cache,
		bus:    events.NewBus(),
		policy: remote.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		now:    time.Now,
		logger: logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.logger.WithComponent("marketdata").WithFields(logger.Fields{"symbol": cfg.Symbol})
	return s
}

func (s *Service) Subscribe(h events.Handler) events.HandlerID { return s.bus.Subscribe(h) }

func (s *Service) Unsubscribe(id events.HandlerID) { s.bus.Unsubscribe(id) }

// StartLivePricing fetches once immediately and then on every poll interval
// until ctx ends or StopLivePricing is called. It is a no-op while running.
func (s *Service) StartLivePricing(ctx context.Context) error {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", interval)
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopWG.Add(1)
	s.mu.Unlock()

	s.log.WithFields(logger.Fields{"interval": interval.String()}).Info("live pricing started")
	s.bus.Publish(events.PricingStarted, eventSource, map[string]any{"symbol": s.cfg.Symbol, "interval": interval.String()})

	go s.poll(ctx, interval)
	return nil
}

func (s *Service) poll(ctx context.Context, interval time.Duration) {
	defer s.loopWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick starts a fetch unless one is still running.
func (s *Service) tick(ctx context.Context) {
	if !s.fetching.CompareAndSwap(false, true) {
		s.log.Debug("previous fetch still in flight, skipping tick")
		return
	}
	s.fetchWG.Add(1)
	go func() {
		defer s.fetchWG.Done()
		defer s.fetching.Store(false)
		// Errors are published as fetch_error events.
		_, _ = s.FetchLivePrices(ctx)
	}()
}

// StopLivePricing cancels polling and waits for an in-flight fetch. It
// reports whether polling was running.
func (s *Service) StopLivePricing() bool {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return false
	}

	cancel()
	s.loopWG.Wait()
	s.fetchWG.Wait()
	s.log.Info("live pricing stopped")
	s.bus.Publish(events.PricingStopped, eventSource, map[string]any{"symbol": s.cfg.Symbol})
	return true
}

// Polling reports whether the poll loop is running.
func (s *Service) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// FetchLivePrices performs one fetch with retry on transient failures and
// stores the result. Failures are published, never raised to the poll loop.
func (s *Service) FetchLivePrices(ctx context.Context) (models.PriceSnapshot, error) {
	start := time.Now()
	var snap models.PriceSnapshot
	attempts, err := s.policy.Do(ctx, "price fetch", func(ctx context.Context, attempt int) error {
		var fetchErr error
		snap, fetchErr = s.source.Latest(ctx)
		if fetchErr != nil {
			s.log.WithError(fetchErr).WithFields(logger.Fields{"attempt": attempt}).Debug("price fetch attempt failed")
		}
		return fetchErr
	})

	metrics.RecordPriceFetch(s.cfg.Symbol, err == nil)
	logger.IncrementPriceFetch(err == nil)

	if err != nil {
		s.recordStats(time.Time{}, err)
		s.log.WithError(err).WithFields(logger.Fields{"attempts": attempts}).Warn("price fetch failed")
		s.bus.Publish(events.FetchError, eventSource, FetchFailure{Symbol: s.cfg.Symbol, Attempts: attempts, Error: err.Error()})
		return models.PriceSnapshot{}, err
	}

	if snap.Symbol == "" {
		snap.Symbol = s.cfg.Symbol
	}
	snap.Source = models.SourceLive
	now := s.now().UTC()

	s.writeMu.Lock()
	err = s.cache.Put(ctx, s.cfg.Symbol, Entry{Snapshot: snap, StoredAt: now})
	s.writeMu.Unlock()
	if err != nil {
		s.log.WithError(err).Warn("failed to cache price")
	}

	s.recordStats(now, nil)
	logger.LogPerformanceEntry(s.log, "marketdata", "fetch_live_prices", time.Since(start), logger.Fields{"attempts": attempts})
	s.bus.Publish(events.PriceUpdate, eventSource, snap)
	return snap, nil
}

func (s *Service) recordStats(fetched time.Time, err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if err != nil {
		s.errorCount++
		s.lastError = err.Error()
		return
	}
	s.fetchCount++
	s.lastFetch = fetched
	s.lastError = ""
}

// GetCurrentPrice tries a live fetch first, then an unexpired cached value.
// ErrNoPriceData is returned when neither is available.
func (s *Service) GetCurrentPrice(ctx context.Context) (models.PriceSnapshot, error) {
	snap, fetchErr := s.FetchLivePrices(ctx)
	if fetchErr == nil {
		metrics.RecordPriceServed(string(models.SourceLive))
		return snap, nil
	}
	if ctx.Err() != nil {
		return models.PriceSnapshot{}, ctx.Err()
	}

	entry, ok, err := s.cache.Get(ctx, s.cfg.Symbol)
	if err != nil {
		s.log.WithError(err).Warn("cache read failed")
	}
	if ok && !cacheExpired(entry.StoredAt, s.now(), s.cfg.CacheTTL) {
		snap := entry.Snapshot
		snap.Source = models.SourceCache
		metrics.RecordPriceServed(string(models.SourceCache))
		return snap, nil
	}
	return models.PriceSnapshot{}, fmt.Errorf("%w for %s: %v", ErrNoPriceData, s.cfg.Symbol, fetchErr)
}

// GetHistoricalPrices makes a single uncached call for [start, end].
func (s *Service) GetHistoricalPrices(ctx context.Context, start, end time.Time) ([]models.PriceSnapshot, error) {
	if s.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if end.Before(start) {
		return nil, apperrors.NewValidationError("historical prices", "end", "must not be before start")
	}
	out, err := s.source.Range(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("historical prices for %s: %w", s.cfg.Symbol, err)
	}
	return out, nil
}

// History returns the cached snapshots, newest first.
func (s *Service) History(ctx context.Context) ([]models.PriceSnapshot, error) {
	return s.cache.History(ctx, s.cfg.Symbol)
}

// IsCacheExpired reports whether the entry under key is missing or stale.
func (s *Service) IsCacheExpired(ctx context.Context, key string) (bool, error) {
	entry, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		return true, err
	}
	if !ok {
		return true, nil
	}
	return cacheExpired(entry.StoredAt, s.now(), s.cfg.CacheTTL), nil
}

// GetHealthStatus reports healthy while the last fetch succeeded, degraded
// while serving an unexpired cache after a failure and unhealthy otherwise.
func (s *Service) GetHealthStatus(ctx context.Context) HealthStatus {
	s.statsMu.RLock()
	h := HealthStatus{
		Symbol:     s.cfg.Symbol,
		LastFetch:  s.lastFetch,
		LastError:  s.lastError,
		FetchCount: s.fetchCount,
		ErrorCount: s.errorCount,
	}
	s.statsMu.RUnlock()
	h.Polling = s.Polling()

	entry, ok, err := s.cache.Get(ctx, s.cfg.Symbol)
	if err != nil {
		h.Status = "unhealthy"
		h.LastError = err.Error()
		return h
	}
	h.CacheExpired = !ok || cacheExpired(entry.StoredAt, s.now(), s.cfg.CacheTTL)
	if ok {
		h.CacheAge = s.now().Sub(entry.StoredAt).Round(time.Second).String()
	}

	switch {
	case h.FetchCount == 0 && h.ErrorCount == 0:
		h.Status = "starting"
	case h.CacheExpired:
		h.Status = "unhealthy"
	case h.LastError != "":
		h.Status = "degraded"
	default:
		h.Status = "healthy"
	}
	return h
}

// Destroy stops polling, clears the cache and detaches every listener.
func (s *Service) Destroy(ctx context.Context) error {
	s.StopLivePricing()
	s.bus.Reset()
	if err := s.cache.Clear(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("clear price cache: %w", err)
	}
	return nil
}
