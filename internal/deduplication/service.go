package deduplication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"hush/internal/config"
	"hush/internal/constants"
	"hush/internal/history"
	"hush/internal/logger"
	"hush/pkg/metrics"
	"hush/pkg/models"
	"hush/pkg/tracing"
)

// claimTTL bounds how long an in-flight fingerprint claim blocks identical
// events when its evaluation never records or releases it.
const (
	claimTTL   = 30 * time.Second
	claimValue = "pending"
)

// Engine detects exact and near-duplicate notifications per user.
type Engine struct {
	store    history.Store
	embedder Embedder
	hasher   *Hasher
	cfg      config.DeduplicationConfig
	logger   logger.Logger
	now      func() time.Time
}

// NewEngine builds an engine. A nil embedder disables the near-duplicate path.
func NewEngine(store history.Store, embedder Embedder, cfg config.DeduplicationConfig, log logger.Logger) *Engine {
	return &Engine{
		store:    store,
		embedder: embedder,
		hasher:   NewHasher(cfg.HashAlgorithm),
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func exactKey(userID, fingerprint string) string {
	return constants.KeyPrefixDedup + userID + ":" + fingerprint
}

func recentKey(userID string) string {
	return constants.KeyPrefixNear + userID
}

func digestKey(userID, source, fingerprint string) string {
	return constants.KeyPrefixDigest + userID + ":" + source + ":" + fingerprint
}

// Check never fails: history and embedding errors skip the affected path
// and are reported on the result. A non-duplicate leaves a short-lived claim
// on its fingerprint so identical events evaluated concurrently see an exact
// duplicate; Record keeps the claim, Release drops it.
func (e *Engine) Check(ctx context.Context, event *models.NotificationEvent) Result {
	ctx, span := tracing.GetTracer("decision-service").Start(ctx, "deduplication.check")
	defer span.End()

	res := Result{
		Kind:        models.DuplicateNone,
		Fingerprint: e.hasher.Fingerprint(event),
	}

	claimed, err := e.store.SetNX(ctx, exactKey(event.UserID, res.Fingerprint), claimValue, claimTTL)
	if err != nil {
		res.HistoryErr = err
		e.logger.WarnwCtx(ctx, "History unavailable, skipping duplicate check", "error", err)
		return res
	}
	res.Claimed = claimed
	if !claimed {
		res.Kind = models.DuplicateExact
		metrics.DuplicatesTotal.WithLabelValues(string(res.Kind)).Inc()
		return res
	}

	if !e.cfg.NearDuplicate.Enabled || e.embedder == nil {
		return res
	}

	e.checkNear(ctx, event, &res)
	return res
}

func (e *Engine) checkNear(ctx context.Context, event *models.NotificationEvent, res *Result) {
	nd := e.cfg.NearDuplicate

	embedding, err := e.embedder.Embed(ctx, NormalizeMessage(event.Message))
	if err != nil {
		res.EmbeddingErr = err
		e.logger.WarnwCtx(ctx, "Embedding unavailable, skipping near-duplicate check", "error", err)
		return
	}
	res.Embedding = embedding

	raw, err := e.store.Recent(ctx, recentKey(event.UserID), nd.MaxCandidates)
	if err != nil {
		res.HistoryErr = err
		e.logger.WarnwCtx(ctx, "History unavailable, skipping near-duplicate check", "error", err)
		return
	}

	now := e.now()
	var best *recentEntry
	bestScore := 0.0
	for _, item := range raw {
		var cand recentEntry
		if err := json.Unmarshal([]byte(item), &cand); err != nil {
			e.logger.DebugwCtx(ctx, "Skipping undecodable recent entry", "error", err)
			continue
		}
		if now.Sub(cand.SentAt) > nd.Window {
			continue
		}
		if score := CosineSimilarity(embedding, cand.Embedding); score > bestScore {
			bestScore = score
			c := cand
			best = &c
		}
	}

	if best == nil || bestScore <= nd.Threshold {
		return
	}

	res.Kind = models.DuplicateNear
	res.Score = bestScore
	metrics.DuplicatesTotal.WithLabelValues(string(res.Kind)).Inc()

	digest := e.cfg.Digest
	if digest.Enabled && best.Source == event.Source && now.Sub(best.SentAt) <= digest.Window {
		res.DigestKey = digestKey(event.UserID, event.Source, best.Fingerprint)
		res.DigestAt = best.SentAt.Add(digest.Window)
	}
}

// Record stores the fingerprint and, when present, the embedding so later
// events can match against this one.
func (e *Engine) Record(ctx context.Context, event *models.NotificationEvent, res Result) error {
	now := e.now()
	var errs []error

	if err := e.store.Set(ctx, exactKey(event.UserID, res.Fingerprint), strconv.FormatInt(now.Unix(), 10), e.cfg.TTL); err != nil {
		errs = append(errs, fmt.Errorf("record fingerprint: %w", err))
	}

	if len(res.Embedding) > 0 {
		entry, err := json.Marshal(recentEntry{
			Fingerprint: res.Fingerprint,
			Embedding:   res.Embedding,
			Source:      event.Source,
			SentAt:      now,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("encode recent entry: %w", err))
		} else if err := e.store.PushRecent(ctx, recentKey(event.UserID), string(entry), e.cfg.NearDuplicate.MaxCandidates, e.cfg.TTL); err != nil {
			errs = append(errs, fmt.Errorf("record embedding: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Release drops the claim Check took for an event that is not recorded.
func (e *Engine) Release(ctx context.Context, event *models.NotificationEvent, res Result) error {
	if !res.Claimed {
		return nil
	}
	if err := e.store.Delete(ctx, exactKey(event.UserID, res.Fingerprint)); err != nil {
		return fmt.Errorf("release fingerprint claim: %w", err)
	}
	return nil
}
