package models

import "time"

// Severity of a compliance check outcome.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ComplianceCheckResult is the outcome of evaluating one rule.
type ComplianceCheckResult struct {
	Requirement   string   `json:"requirement"`
	Compliant     bool     `json:"compliant"`
	Severity      Severity `json:"severity"`
	CurrentValue  any      `json:"currentValue,omitempty"`
	RequiredValue any      `json:"requiredValue,omitempty"`
	Details       string   `json:"details,omitempty"`
}

// ReportFormat is the rendering format of a regulatory report.
type ReportFormat string

const (
	FormatXML ReportFormat = "XML"
	FormatCSV ReportFormat = "CSV"
)

// Submission statuses.
const (
	SubmissionAccepted  = "accepted"
	SubmissionRejected  = "rejected"
	SubmissionFailed    = "failed"
	SubmissionCancelled = "cancelled"
)

// RegulatoryReport is a rendered report and its submission outcome. It is
// produced once per successful submission and never modified afterwards.
type RegulatoryReport struct {
	ID             string        `json:"id"`
	Regulation     string        `json:"regulation"`
	Format         ReportFormat  `json:"format"`
	Filename       string        `json:"filename"`
	Content        string        `json:"content"`
	Status         string        `json:"status"`
	ConfirmationID string        `json:"confirmationId,omitempty"`
	ResponseTime   time.Duration `json:"responseTime"`
	GeneratedAt    time.Time     `json:"generatedAt"`
}

// AuditLogEntry is one append-only record of a compliance action.
type AuditLogEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"userId"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	Region    string         `json:"region,omitempty"`
}
