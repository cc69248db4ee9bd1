package ruleset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"hush/pkg/models"
)

// PostgresProvider reads enabled rules ordered by position. The version is
// bumped by a trigger on every write to notification_rules.
type PostgresProvider struct {
	db *sql.DB
}

func NewPostgresProvider(db *sql.DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

func (p *PostgresProvider) Name() string {
	return "postgres"
}

func (p *PostgresProvider) Load(ctx context.Context) (models.RuleSet, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return models.RuleSet{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var set models.RuleSet
	if err := tx.QueryRowContext(ctx, `SELECT version FROM rule_set_meta WHERE id = 1`).Scan(&set.Version); err != nil {
		return models.RuleSet{}, fmt.Errorf("failed to read rule set version: %w", err)
	}

	query := `
		SELECT id, name, conditions, action, override_fatigue, record_history, defer_policy
		FROM notification_rules
		WHERE enabled = true
		ORDER BY position ASC, id ASC
	`

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return models.RuleSet{}, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			spec       models.RuleSpec
			conditions []byte
			deferRaw   []byte
		)
		if err := rows.Scan(
			&spec.ID,
			&spec.Name,
			&conditions,
			&spec.Action,
			&spec.OverrideFatigue,
			&spec.RecordHistory,
			&deferRaw,
		); err != nil {
			return models.RuleSet{}, fmt.Errorf("failed to scan rule: %w", err)
		}

		if err := json.Unmarshal(conditions, &spec.Conditions); err != nil {
			return models.RuleSet{}, fmt.Errorf("rule %s: invalid conditions: %w", spec.ID, err)
		}
		if len(deferRaw) > 0 {
			spec.Defer = &models.DeferPolicy{}
			if err := json.Unmarshal(deferRaw, spec.Defer); err != nil {
				return models.RuleSet{}, fmt.Errorf("rule %s: invalid defer policy: %w", spec.ID, err)
			}
		}
		set.Rules = append(set.Rules, spec)
	}

	if err := rows.Err(); err != nil {
		return models.RuleSet{}, fmt.Errorf("rows iteration error: %w", err)
	}

	return set, nil
}

// Replace swaps the stored rule list for rules, in order, and returns the
// new version.
func (p *PostgresProvider) Replace(ctx context.Context, rules []models.RuleSpec) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM notification_rules`); err != nil {
		return 0, fmt.Errorf("failed to clear rules: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notification_rules
			(id, name, position, conditions, action, override_fatigue, record_history, defer_policy)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, spec := range rules {
		conditions, err := json.Marshal(spec.Conditions)
		if err != nil {
			return 0, fmt.Errorf("rule %s: failed to encode conditions: %w", spec.ID, err)
		}
		var deferPolicy sql.NullString
		if spec.Defer != nil {
			raw, err := json.Marshal(spec.Defer)
			if err != nil {
				return 0, fmt.Errorf("rule %s: failed to encode defer policy: %w", spec.ID, err)
			}
			deferPolicy = sql.NullString{String: string(raw), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			spec.ID,
			spec.Name,
			i,
			string(conditions),
			string(spec.Action),
			spec.OverrideFatigue,
			spec.RecordHistory,
			deferPolicy,
		); err != nil {
			return 0, fmt.Errorf("failed to insert rule %s: %w", spec.ID, err)
		}
	}

	var version int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM rule_set_meta WHERE id = 1`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read rule set version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rules: %w", err)
	}
	return version, nil
}
