// Package ruleset loads rule sets from their source and publishes compiled
// snapshots.
package ruleset

import (
	"context"
	"database/sql"
	"fmt"

	"hush/internal/config"
	"hush/internal/constants"
	"hush/pkg/models"
)

type Provider interface {
	Name() string
	Load(ctx context.Context) (models.RuleSet, error)
}

// Watcher is implemented by providers that can signal changes themselves.
// Watch blocks until ctx is done and calls notify after each change.
type Watcher interface {
	Watch(ctx context.Context, notify func()) error
}

// Store is implemented by providers that can persist a rule list.
type Store interface {
	Replace(ctx context.Context, rules []models.RuleSpec) (int64, error)
}

// Dependencies carries the handles a provider may need.
type Dependencies struct {
	Postgres *sql.DB
}

func NewProvider(cfg config.RulesConfig, deps Dependencies) (Provider, error) {
	switch cfg.Provider {
	case constants.RulesProviderFile, "":
		return NewFileProvider(cfg.File), nil
	case constants.RulesProviderPostgres:
		if deps.Postgres == nil {
			return nil, fmt.Errorf("postgres rule provider requires a database connection")
		}
		return NewPostgresProvider(deps.Postgres), nil
	}
	return nil, fmt.Errorf("unknown rules provider: %s", cfg.Provider)
}
