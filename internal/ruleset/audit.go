package ruleset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditLogger records rule set changes in rule_audit_logs.
type AuditLogger struct {
	db *sql.DB
}

func NewAuditLogger(db *sql.DB) *AuditLogger {
	return &AuditLogger{db: db}
}

type AuditLogEntry struct {
	ID           string
	Action       string
	Version      int64
	OldValue     interface{}
	NewValue     interface{}
	ChangedBy    string
	ChangeReason string
	Timestamp    time.Time
}

func (a *AuditLogger) LogRuleChange(ctx context.Context, entry AuditLogEntry) error {
	query := `
		INSERT INTO rule_audit_logs (id, action, version, old_value, new_value, changed_by, change_reason, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}

	oldValue, err := nullableJSON(entry.OldValue)
	if err != nil {
		return fmt.Errorf("failed to encode old value: %w", err)
	}
	newValue, err := nullableJSON(entry.NewValue)
	if err != nil {
		return fmt.Errorf("failed to encode new value: %w", err)
	}

	var changeReason *string
	if entry.ChangeReason != "" {
		changeReason = &entry.ChangeReason
	}

	timestamp := entry.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	if _, err := a.db.ExecContext(ctx, query,
		id, entry.Action, entry.Version,
		oldValue, newValue,
		entry.ChangedBy, changeReason, timestamp,
	); err != nil {
		return fmt.Errorf("failed to log audit entry: %w", err)
	}

	return nil
}

func nullableJSON(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
