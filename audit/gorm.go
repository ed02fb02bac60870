package audit

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"energylink/logger"
	"energylink/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// auditRow is the persisted form. Seq preserves insertion order independent
// of clock resolution.
type auditRow struct {
	Seq       int64          `gorm:"primaryKey;autoIncrement"`
	ID        string         `gorm:"size:36;uniqueIndex"`
	Timestamp time.Time      `gorm:"index"`
	UserID    string         `gorm:"size:128;index"`
	Action    string         `gorm:"size:128;index"`
	Region    string         `gorm:"size:64"`
	Details   map[string]any `gorm:"serializer:json"`
}

func (auditRow) TableName() string { return "audit_log_entries" }

func toRow(e models.AuditLogEntry) auditRow {
	return auditRow{
		ID:        e.ID,
		Timestamp: e.Timestamp.UTC(),
		UserID:    e.UserID,
		Action:    e.Action,
		Region:    e.Region,
		Details:   e.Details,
	}
}

func (r auditRow) entry() models.AuditLogEntry {
	return models.AuditLogEntry{
		ID:        r.ID,
		Timestamp: r.Timestamp.UTC(),
		UserID:    r.UserID,
		Action:    r.Action,
		Region:    r.Region,
		Details:   r.Details,
	}
}

// GormStore persists the audit log through gorm (sqlite or postgres).
type GormStore struct {
	db *gorm.DB
}

// OpenGormStore opens dsn with the named driver and migrates the audit table.
func OpenGormStore(driver, dsn string, log *logger.Log) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}
	if log == nil {
		log = logger.GetLogger()
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(log.WithComponent("audit_store"), gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps an existing connection and migrates the audit table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&auditRow{}); err != nil {
		return nil, fmt.Errorf("migrate audit table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Append(ctx context.Context, entry models.AuditLogEntry) error {
	row := toRow(entry)
	return s.db.WithContext(ctx).Create(&row).Error
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *GormStore) List(ctx context.Context, filter Filter) ([]models.AuditLogEntry, error) {
	q := s.db.WithContext(ctx).Model(&auditRow{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.ActionContains != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(filter.ActionContains)) + "%"
		q = q.Where(`LOWER(action) LIKE ? ESCAPE '\'`, pattern)
	}
	if filter.Region != "" {
		q = q.Where("region = ?", filter.Region)
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		q = q.Where("timestamp <= ?", filter.Until.UTC())
	}

	var rows []auditRow
	if filter.Limit > 0 {
		if err := q.Order("seq DESC").Limit(filter.Limit).Find(&rows).Error; err != nil {
			return nil, err
		}
		slices.Reverse(rows)
	} else if err := q.Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]models.AuditLogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out, nil
}

func (s *GormStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&auditRow{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *GormStore) Truncate(ctx context.Context, marker MarkerFunc) ([]models.AuditLogEntry, error) {
	var removed []models.AuditLogEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []auditRow
		if err := tx.Order("seq ASC").Find(&rows).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&auditRow{}).Error; err != nil {
			return err
		}
		removed = make([]models.AuditLogEntry, 0, len(rows))
		for _, r := range rows {
			removed = append(removed, r.entry())
		}
		row := toRow(marker(removed))
		return tx.Create(&row).Error
	})
	if err != nil {
		return nil, fmt.Errorf("truncate audit log: %w", err)
	}
	return removed, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
