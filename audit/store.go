// Package audit stores the append-only compliance audit trail. Entries are
// never edited; the only bulk operation is Truncate, which swaps the whole
// log for a single marker entry in one step.
package audit

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"energylink/config"
	"energylink/logger"
	"energylink/models"

	"github.com/google/uuid"
)

// Filter narrows List. Zero values are not constrained. Limit keeps the most
// recent entries.
type Filter struct {
	UserID         string
	ActionContains string
	Region         string
	Since          time.Time
	Until          time.Time
	Limit          int
}

// Match reports whether e passes every constraint except Limit. Action
// matching is case-insensitive.
func (f Filter) Match(e models.AuditLogEntry) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.ActionContains != "" && !strings.Contains(strings.ToLower(e.Action), strings.ToLower(f.ActionContains)) {
		return false
	}
	if f.Region != "" && e.Region != f.Region {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// Store is an append-only audit log. Implementations must allow concurrent
// readers while a single writer appends.
type Store interface {
	Append(ctx context.Context, entry models.AuditLogEntry) error
	// List returns matching entries in insertion order.
	List(ctx context.Context, filter Filter) ([]models.AuditLogEntry, error)
	Count(ctx context.Context) (int, error)
	// Truncate atomically removes every entry, appends the entry built by
	// marker from the removed set and returns the removed entries.
	Truncate(ctx context.Context, marker MarkerFunc) ([]models.AuditLogEntry, error)
	Close() error
}

// MarkerFunc builds the entry that replaces a truncated log.
type MarkerFunc func(removed []models.AuditLogEntry) models.AuditLogEntry

// NewEntry stamps a new entry with an id and the current UTC time.
func NewEntry(userID, action, region string, details map[string]any) models.AuditLogEntry {
	return models.AuditLogEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Action:    action,
		Details:   maps.Clone(details),
		Region:    region,
	}
}

// Open builds the store named by cfg.Driver.
func Open(cfg config.AuditConfig, log *logger.Log) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite", "postgres":
		return OpenGormStore(cfg.Driver, cfg.DSN, log)
	default:
		return nil, fmt.Errorf("unsupported audit driver %q", cfg.Driver)
	}
}
