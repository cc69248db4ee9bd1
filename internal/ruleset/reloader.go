package ruleset

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"hush/internal/config"
	"hush/internal/logger"
	"hush/internal/rules"
	"hush/pkg/cel"
	"hush/pkg/metrics"
	"hush/pkg/tracing"
)

const (
	reloadStatusApplied   = "applied"
	reloadStatusUnchanged = "unchanged"
	reloadStatusFailed    = "failed"
	reloadStatusRejected  = "rejected"
)

// Reloader loads rule sets from a provider and publishes them to a holder.
// A set that fails to load or compile leaves the current snapshot in place.
type Reloader struct {
	provider  Provider
	holder    *rules.Holder
	evaluator *cel.Evaluator
	cfg       config.ReloadConfig
	logger    logger.Logger

	mu sync.Mutex
}

func NewReloader(provider Provider, holder *rules.Holder, evaluator *cel.Evaluator, cfg config.ReloadConfig, log logger.Logger) *Reloader {
	return &Reloader{
		provider:  provider,
		holder:    holder,
		evaluator: evaluator,
		cfg:       cfg,
		logger:    log,
	}
}

func (r *Reloader) Holder() *rules.Holder {
	return r.holder
}

// ReloadRules waits a random jitter before reloading so that instances
// receiving the same push signal do not hit the provider together.
func (r *Reloader) ReloadRules(ctx context.Context) error {
	if err := r.applyJitter(ctx); err != nil {
		return err
	}
	_, err := r.Reload(ctx)
	return err
}

// Reload loads, compiles and publishes the provider's rule set. It reports
// whether a new snapshot was installed.
func (r *Reloader) Reload(ctx context.Context) (bool, error) {
	ctx, span := tracing.GetTracer("ruleset").Start(ctx, "ruleset.reload")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	set, err := r.provider.Load(ctx)
	if err != nil {
		metrics.IncRuleReload(r.provider.Name(), reloadStatusFailed)
		return false, fmt.Errorf("failed to load rules from %s: %w", r.provider.Name(), err)
	}

	current := r.holder.Load()
	if set.Version <= current.Version {
		metrics.IncRuleReload(r.provider.Name(), reloadStatusUnchanged)
		r.logger.DebugwCtx(ctx, "Rule set not newer than current snapshot",
			"version", set.Version,
			"current_version", current.Version,
		)
		return false, nil
	}

	snap, err := rules.Compile(set, r.evaluator)
	if err != nil {
		metrics.IncRuleReload(r.provider.Name(), reloadStatusRejected)
		r.logger.ErrorwCtx(ctx, "Rejected invalid rule set, keeping current snapshot",
			"version", set.Version,
			"current_version", current.Version,
			"error", err,
		)
		return false, fmt.Errorf("invalid rule set version %d: %w", set.Version, err)
	}

	if !r.holder.Swap(snap) {
		metrics.IncRuleReload(r.provider.Name(), reloadStatusUnchanged)
		return false, nil
	}

	metrics.IncRuleReload(r.provider.Name(), reloadStatusApplied)
	metrics.SetActiveRules(len(snap.Rules), snap.Version)
	r.logger.InfowCtx(ctx, "Successfully reloaded rules",
		"provider", r.provider.Name(),
		"version", snap.Version,
		"rules_count", len(snap.Rules),
	)
	return true, nil
}

func (r *Reloader) applyJitter(ctx context.Context) error {
	if r.cfg.JitterMaxMilliseconds <= 0 {
		return nil
	}

	jitter := time.Duration(rand.Intn(r.cfg.JitterMaxMilliseconds)) * time.Millisecond
	r.logger.DebugwCtx(ctx, "Reload scheduled with jitter",
		"jitter_ms", jitter.Milliseconds(),
	)

	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start polls the provider until ctx is done. Providers that can watch
// their source also trigger reloads on change when watching is enabled.
func (r *Reloader) Start(ctx context.Context) error {
	if w, ok := r.provider.(Watcher); ok && r.cfg.Watch {
		go func() {
			err := w.Watch(ctx, func() {
				if _, err := r.Reload(ctx); err != nil {
					r.logger.ErrorwCtx(ctx, "Failed to reload rules after change", "error", err)
				}
			})
			if err != nil {
				r.logger.ErrorwCtx(ctx, "Rule watcher stopped", "error", err)
			}
		}()
	}

	if r.cfg.IntervalSeconds <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(time.Duration(r.cfg.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.ReloadRules(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorwCtx(ctx, "Failed to reload rules",
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
