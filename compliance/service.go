package compliance

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"energylink/audit"
	"energylink/config"
	"energylink/events"
	"energylink/internal/apperrors"
	"energylink/internal/metrics"
	"energylink/internal/remote"
	"energylink/logger"
	"energylink/models"

	"github.com/go-playground/validator/v10"
)

const ActionAuditCleared = "audit_log_cleared"

// Archiver keeps copies of accepted reports and cleared audit entries.
type Archiver interface {
	ArchiveReport(ctx context.Context, report models.RegulatoryReport) error
	ArchiveAuditEntries(ctx context.Context, entries []models.AuditLogEntry) error
}

type Option func(*Service)

func WithArchiver(a Archiver) Option { return func(s *Service) { s.archiver = a } }

func WithBus(b *events.Bus) Option { return func(s *Service) { s.bus = b } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithSleep replaces the wait between retry attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.policy.Sleep = sleep }
}

// WithTemplate overrides the template of one regulation.
func WithTemplate(regulation string, tmpl Template) Option {
	return func(s *Service) { s.templates[regulation] = tmpl }
}

func WithLogger(log *logger.Log) Option { return func(s *Service) { s.logger = log } }

// Service validates, renders and submits regulatory reports. Every step is
// recorded in the audit store.
type Service struct {
	cfg        config.ComplianceConfig
	store      audit.Store
	validate   *validator.Validate
	templates  map[string]Template
	regulators map[string]*regulator
	policy     remote.Policy
	archiver   Archiver
	bus        *events.Bus
	now        func() time.Time
	logger     *logger.Log
	log        *logger.Entry

	lastActivity atomic.Int64
}

func NewService(cfg config.ComplianceConfig, store audit.Store, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		store:     store,
		validate:  newValidator(),
		templates: DefaultTemplates(),
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
	s.log = s.logger.WithComponent("compliance")

	for code, rc := range map[string]config.RegulatorConfig{RegulationCFTC: cfg.CFTC, RegulationMAS: cfg.MAS} {
		if rc.Format != "" {
			tmpl := s.templates[code]
			tmpl.Format = models.ReportFormat(strings.ToUpper(rc.Format))
			s.templates[code] = tmpl
		}
	}
	s.regulators = map[string]*regulator{
		RegulationCFTC: newRegulator(RegulationCFTC, cfg.CFTC, cfg.RateLimit, s.logger),
		RegulationMAS:  newRegulator(RegulationMAS, cfg.MAS, cfg.RateLimit, s.logger),
	}
	return s
}

// Template returns the template used for regulation.
func (s *Service) Template(regulation string) (Template, bool) {
	t, ok := s.templates[regulation]
	return t, ok
}

// ValidateReport runs structural and rulebook checks without side effects.
func (s *Service) ValidateReport(data ReportData) ValidationResult {
	return validate(s.validate, data, s.now())
}

// GenerateReport renders data with the service's template for regulation.
func (s *Service) GenerateReport(data ReportData, regulation string) (string, error) {
	tmpl, ok := s.templates[regulation]
	if !ok {
		return "", fmt.Errorf("no report template for %q", regulation)
	}
	return GenerateReport(data, regulation, tmpl)
}

// SubmitReport validates, renders and posts data to its regulator. The
// result is always non-nil; err carries the typed failure (ValidationError,
// RemoteRejectionError, RetryExhaustedError or a context error).
func (s *Service) SubmitReport(ctx context.Context, data ReportData, userID string) (*SubmissionResult, error) {
	code := data.Regulation
	prefix := actionPrefix(code)
	region := regionFor(code)
	result := &SubmissionResult{ReportID: data.ReportID}
	log := s.log.WithFields(logger.Fields{"regulation": code, "report_id": data.ReportID, "user_id": userID})

	check := s.ValidateReport(data)
	if !check.IsValid {
		err := check.Err(code)
		result.Status = models.SubmissionRejected
		result.Errors = check.Errors
		result.Reason = "validation failed: " + err.Error()
		log.WithFields(logger.Fields{"errors": len(check.Errors)}).Warn("report failed validation")

		if aerr := s.record(ctx, userID, prefix+"_validation_failed", region, map[string]any{
			"reportId": data.ReportID,
			"errors":   fieldStrings(check.Errors),
		}); aerr != nil {
			return result, errors.Join(err, aerr)
		}
		s.finish(code, "invalid", result, 0)
		return result, err
	}

	tmpl := s.templates[code]
	if err := s.record(ctx, userID, prefix+"_submission_started", region, map[string]any{
		"reportId": data.ReportID,
		"format":   string(tmpl.Format),
	}); err != nil {
		result.Status = models.SubmissionFailed
		result.Reason = "audit unavailable"
		return result, err
	}

	content, err := GenerateReport(data, code, tmpl)
	if err != nil {
		result.Status = models.SubmissionFailed
		result.Reason = "report generation failed: " + err.Error()
		s.terminal(ctx, userID, prefix+"_submission_failed", region, data.ReportID, result, err)
		s.finish(code, models.SubmissionFailed, result, 0)
		return result, err
	}

	filename := ReportFilename(code, data.ReportID, tmpl.Format, data.ReportingDate)
	body := payload{
		ReportID:   data.ReportID,
		Regulation: code,
		Format:     string(tmpl.Format),
		Filename:   filename,
		Content:    content,
		Data:       data,
	}

	reg := s.regulators[code]
	var ack string
	started := s.now()
	attempts, err := s.policy.Do(ctx, strings.ToLower(code)+" submission", func(ctx context.Context, attempt int) error {
		var postErr error
		ack, postErr = reg.post(ctx, body)
		if postErr != nil {
			log.WithError(postErr).WithFields(logger.Fields{"attempt": attempt}).Warn("submission attempt failed")
		}
		return postErr
	})
	elapsed := s.now().Sub(started)
	result.Attempts = attempts
	result.ResponseTimeMs = elapsed.Milliseconds()

	if err != nil {
		var rejected *apperrors.RemoteRejectionError
		action := prefix + "_submission_failed"
		switch {
		case errors.As(err, &rejected):
			result.Status = models.SubmissionRejected
			result.Reason = "rejected by regulator: " + rejected.Error()
			action = prefix + "_submission_rejected"
		case apperrors.IsRetryExhausted(err):
			result.Status = models.SubmissionFailed
			result.Reason = "all retry attempts failed: " + err.Error()
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			result.Status = models.SubmissionCancelled
			result.Reason = "submission cancelled: " + err.Error()
		default:
			result.Status = models.SubmissionFailed
			result.Reason = err.Error()
		}
		log.WithError(err).WithFields(logger.Fields{"attempts": attempts, "status": result.Status}).Error("report submission failed")
		s.terminal(ctx, userID, action, region, data.ReportID, result, err)
		s.finish(code, result.Status, result, elapsed)
		return result, err
	}

	report := models.RegulatoryReport{
		ID:             data.ReportID,
		Regulation:     code,
		Format:         tmpl.Format,
		Filename:       filename,
		Content:        content,
		Status:         models.SubmissionAccepted,
		ConfirmationID: ack,
		ResponseTime:   elapsed,
		GeneratedAt:    s.now().UTC(),
	}
	result.Success = true
	result.Status = models.SubmissionAccepted
	result.ConfirmationID = ack
	result.Report = &report

	if err := s.record(context.WithoutCancel(ctx), userID, prefix+"_submission_completed", region, map[string]any{
		"reportId":       data.ReportID,
		"confirmationId": ack,
		"responseTimeMs": result.ResponseTimeMs,
		"attempts":       attempts,
		"filename":       filename,
	}); err != nil {
		log.WithError(err).Error("failed to record submission completion")
	}
	if s.archiver != nil {
		if err := s.archiver.ArchiveReport(context.WithoutCancel(ctx), report); err != nil {
			log.WithError(err).Warn("failed to archive report")
		}
	}
	logger.LogPerformanceEntry(log, "compliance", "submit_report", elapsed, logger.Fields{"attempts": attempts})
	s.finish(code, models.SubmissionAccepted, result, elapsed)
	return result, nil
}

// terminal records the closing entry of a failed submission. It ignores the
// caller's cancellation so the entry is never dropped.
func (s *Service) terminal(ctx context.Context, userID, action, region, reportID string, result *SubmissionResult, cause error) {
	err := s.record(context.WithoutCancel(ctx), userID, action, region, map[string]any{
		"reportId": reportID,
		"status":   result.Status,
		"attempts": result.Attempts,
		"reason":   cause.Error(),
	})
	if err != nil {
		s.log.WithError(err).WithFields(logger.Fields{"action": action}).Error("failed to record terminal audit entry")
	}
}

func (s *Service) finish(code, outcome string, result *SubmissionResult, elapsed time.Duration) {
	metrics.RecordSubmission(code, outcome, result.Attempts, elapsed)
	logger.IncrementSubmission(result.Success)
	if s.bus == nil {
		return
	}
	t := events.SubmissionFailed
	if result.Success {
		t = events.SubmissionCompleted
	}
	s.bus.Publish(t, "compliance", *result)
}

func (s *Service) record(ctx context.Context, userID, action, region string, details map[string]any) error {
	entry := audit.NewEntry(userID, action, region, details)
	entry.Timestamp = s.now().UTC()
	if err := s.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("append audit entry %s: %w", action, err)
	}
	s.lastActivity.Store(entry.Timestamp.UnixNano())
	logger.IncrementAuditAppend()
	if n, err := s.store.Count(ctx); err == nil {
		metrics.SetAuditEntries(n)
	}
	if s.bus != nil {
		s.bus.Publish(events.AuditAppended, "compliance", entry)
	}
	return nil
}

// GetAuditLog returns the entries matching filter in insertion order.
func (s *Service) GetAuditLog(ctx context.Context, filter audit.Filter) ([]models.AuditLogEntry, error) {
	return s.store.List(ctx, filter)
}

// ClearAuditLog truncates the audit log when token matches the configured
// administrator token. The log is left untouched otherwise.
func (s *Service) ClearAuditLog(ctx context.Context, userID, token string) (ClearResult, error) {
	if !s.authorized(token) {
		s.log.WithFields(logger.Fields{"user_id": userID}).Warn("audit log clear denied")
		return ClearResult{}, &apperrors.AuthorizationError{Action: "clear audit log"}
	}

	now := s.now().UTC()
	removed, err := s.store.Truncate(ctx, func(removed []models.AuditLogEntry) models.AuditLogEntry {
		e := audit.NewEntry(userID, ActionAuditCleared, "", map[string]any{"clearedCount": len(removed)})
		e.Timestamp = now
		return e
	})
	if err != nil {
		return ClearResult{}, fmt.Errorf("clear audit log: %w", err)
	}
	s.lastActivity.Store(now.UnixNano())
	metrics.SetAuditEntries(1)
	logger.IncrementAuditAppend()
	s.log.WithFields(logger.Fields{"user_id": userID, "cleared": len(removed)}).Info("audit log cleared")

	if s.archiver != nil && len(removed) > 0 {
		if err := s.archiver.ArchiveAuditEntries(context.WithoutCancel(ctx), removed); err != nil {
			s.log.WithError(err).Warn("failed to archive cleared audit entries")
		}
	}
	if s.bus != nil {
		s.bus.Publish(events.AuditCleared, "compliance", ClearResult{Success: true, Cleared: len(removed)})
	}
	return ClearResult{Success: true, Cleared: len(removed)}, nil
}

func (s *Service) authorized(token string) bool {
	if s.cfg.AdminToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) == 1
}

// GetHealthStatus reports audit store reachability and regulator configuration.
func (s *Service) GetHealthStatus(ctx context.Context) HealthStatus {
	h := HealthStatus{
		Status:     "healthy",
		Regulators: make(map[string]bool, len(s.regulators)),
	}
	for code, r := range s.regulators {
		h.Regulators[code] = r.configured()
	}
	if ts := s.lastActivity.Load(); ts != 0 {
		h.LastActivity = time.Unix(0, ts).UTC()
	}

	n, err := s.store.Count(ctx)
	if err != nil {
		h.Status = "unhealthy"
		h.Error = err.Error()
		return h
	}
	h.AuditLogSize = n
	return h
}

func actionPrefix(regulation string) string {
	if regulation == "" {
		return "report"
	}
	return strings.ToLower(regulation)
}

func fieldStrings(fields []apperrors.FieldError) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.String()
	}
	return out
}
