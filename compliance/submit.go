package compliance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"energylink/config"
	"energylink/internal/remote"
	"energylink/logger"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// errNotConfigured is returned when a regulator has no endpoint.
var errNotConfigured = errors.New("regulator endpoint not configured")

// payload is the JSON body posted to a regulator.
type payload struct {
	ReportID   string     `json:"reportId"`
	Regulation string     `json:"regulation"`
	Format     string     `json:"format"`
	Filename   string     `json:"filename"`
	Content    string     `json:"content"`
	Data       ReportData `json:"data"`
}

// regulator posts rendered reports to one jurisdiction's endpoint.
type regulator struct {
	code    string
	cfg     config.RegulatorConfig
	client  *resty.Client
	limiter *rate.Limiter
	// ackPath locates the confirmation identifier in the response body.
	ackPath string
	log     *logger.Entry
}

func newRegulator(code string, cfg config.RegulatorConfig, limit config.RateLimitConfig, log *logger.Log) *regulator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := &regulator{
		code:    code,
		cfg:     cfg,
		client:  remote.NewClient("", timeout),
		limiter: rate.NewLimiter(rate.Inf, 0),
		ackPath: "confirmationId",
		log:     log.WithComponent("compliance").WithFields(logger.Fields{"regulation": code}),
	}
	if limit.RequestsPerSecond > 0 {
		burst := limit.BurstSize
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(limit.RequestsPerSecond), burst)
	}
	if code == RegulationMAS {
		r.ackPath = "acknowledgmentNumber"
	}
	return r
}

func (r *regulator) configured() bool {
	return r != nil && r.cfg.Endpoint != ""
}

// headers returns the jurisdiction authentication headers.
func (r *regulator) headers() map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	switch r.code {
	case RegulationCFTC:
		if r.cfg.BearerToken != "" {
			h["Authorization"] = "Bearer " + r.cfg.BearerToken
		}
	case RegulationMAS:
		if r.cfg.InstitutionID != "" {
			h["X-Institution-ID"] = r.cfg.InstitutionID
		}
		if r.cfg.APIKey != "" {
			h["X-API-Key"] = r.cfg.APIKey
		}
	}
	return h
}

// post performs one attempt and returns the confirmation identifier.
func (r *regulator) post(ctx context.Context, body payload) (string, error) {
	if !r.configured() {
		return "", fmt.Errorf("%s: %w", r.code, errNotConfigured)
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}

	op := strings.ToLower(r.code) + " submission"
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeaders(r.headers()).
		SetBody(body).
		Post(r.cfg.Endpoint)
	if err := remote.Classify(ctx, op, resp, err); err != nil {
		return "", err
	}

	ack := gjson.GetBytes(resp.Body(), r.ackPath).String()
	if ack == "" {
		// Some endpoints answer with a generic id field.
		ack = gjson.GetBytes(resp.Body(), "id").String()
	}
	return ack, nil
}
