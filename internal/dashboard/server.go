package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"energylink/config"
	"energylink/internal/metrics"
	"energylink/logger"
)

// Health states reported by components and aggregated on /healthz.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthCheck reports a component's status and an arbitrary JSON detail.
type HealthCheck func(ctx context.Context) (status string, detail any)

// View produces the JSON body of a read-only status endpoint.
type View func(ctx context.Context) (any, error)

// Server exposes operational status over HTTP: component health, Prometheus
// metrics and the recent metric, log and host samples of the process.
type Server struct {
	cfg           config.DashboardConfig
	log           *logger.Log
	metricStore   *metricStore
	logStore      *logStore
	metricHandler metrics.MetricHandlerID
	sampler       *hostSampler
	httpServer    *http.Server

	mu     sync.RWMutex
	checks map[string]HealthCheck
	views  map[string]View
}

// NewServer returns nil when the dashboard is disabled.
func NewServer(cfg config.DashboardConfig, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if log == nil {
		log = logger.GetLogger()
	}

	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 5 * time.Second
	}
	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}
	if cfg.MetricsHistory <= 0 {
		cfg.MetricsHistory = 200
	}

	store := newMetricStore(cfg.MetricsHistory)
	logs := newLogStore(cfg.LogHistory)
	log.AddHook(logs)

	return &Server{
		cfg:           cfg,
		log:           log,
		metricStore:   store,
		logStore:      logs,
		metricHandler: metrics.RegisterMetricHandler(store.handle),
		sampler:       newHostSampler(cfg.MetricsHistory, cfg.RefreshInterval, cfg.DiskPath, log),
		checks:        make(map[string]HealthCheck),
		views:         make(map[string]View),
	}, nil
}

// RegisterHealthCheck adds or replaces the check reported under name.
func (s *Server) RegisterHealthCheck(name string, check HealthCheck) {
	if s == nil || check == nil {
		return
	}
	s.mu.Lock()
	s.checks[name] = check
	s.mu.Unlock()
}

// RegisterView serves fn as JSON under /api/<name>. Must be called before Run.
func (s *Server) RegisterView(name string, fn View) {
	if s == nil || fn == nil {
		return
	}
	s.mu.Lock()
	s.views[strings.Trim(name, "/")] = fn
	s.mu.Unlock()
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context, appName string) error {
	if s == nil {
		return nil
	}
	defer s.cleanup()

	router, err := s.buildRouter(appName)
	if err != nil {
		return err
	}
	s.sampler.start(ctx)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.WithComponent("dashboard").WithFields(logger.Fields{"address": s.cfg.Address}).Info("status server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	s.logStore.close()
	s.sampler.stop()
}

// Address reports the normalised listen address.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter(appName string) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/healthz", func(c *gin.Context) {
		status, components := s.health(c.Request.Context())
		code := http.StatusOK
		if status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		body := gin.H{
			"app":        appName,
			"status":     status,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"components": components,
		}
		if sample, ok := s.sampler.latest(); ok {
			body["host"] = sample
		}
		c.JSON(code, body)
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.GET("/api/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"metrics": s.metricStore.byComponent(c.Query("component"))})
	})

	router.GET("/api/logs", func(c *gin.Context) {
		records := s.logStore.query(c.Query("level"), c.Query("component"))
		if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 && len(records) > n {
			records = records[len(records)-n:]
		}
		c.JSON(http.StatusOK, gin.H{"logs": records})
	})

	router.GET("/api/resources", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"resources": s.sampler.history()})
	})

	s.mu.RLock()
	for name, view := range s.views {
		view := view
		router.GET("/api/"+name, func(c *gin.Context) {
			body, err := view(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, body)
		})
	}
	s.mu.RUnlock()

	return router, nil
}

type componentHealth struct {
	Status string `json:"status"`
	Detail any    `json:"detail,omitempty"`
}

// health runs every registered check. Any unhealthy component makes the
// process unhealthy; anything short of healthy degrades it.
func (s *Server) health(ctx context.Context) (string, map[string]componentHealth) {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheck, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.RUnlock()
	sort.Strings(names)

	overall := StatusHealthy
	out := make(map[string]componentHealth, len(names))
	for _, name := range names {
		status, detail := checks[name](ctx)
		out[name] = componentHealth{Status: status, Detail: detail}
		switch {
		case status == StatusUnhealthy:
			overall = StatusUnhealthy
		case status != StatusHealthy && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}
	return overall, out
}

const defaultPort = "8080"

// normalizeAddress turns a listen address, possibly written as a URL, into
// host:port. A missing host binds all interfaces.
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if i := strings.Index(addr, "://"); i >= 0 {
		if u, err := url.Parse(addr); err == nil && u.Host != "" {
			addr = u.Host
		} else {
			addr = strings.TrimSuffix(addr[i+3:], "/")
		}
	}
	if addr == "" {
		return net.JoinHostPort("0.0.0.0", defaultPort)
	}
	if net.ParseIP(addr) != nil || !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, defaultPort)
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "*" {
		host = "0.0.0.0"
	}
	if port == "" {
		port = defaultPort
	}
	return net.JoinHostPort(host, port)
}
