package fatigue

import (
	"context"
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
)

const (
	hourlyWindow = time.Hour
	lastSentTTL  = 7 * 24 * time.Hour
	// minSendHistory is how many send timestamps each list keeps at least;
	// rolling counts saturate there.
	minSendHistory = 100
	flagOn         = "1"
	flagOff        = "0"
)

// Tracker keeps per-user send history and decides whether a user has had
// enough notifications for now. Hourly and burst counts are rolling: they
// are computed from the timestamps of recent sends.
type Tracker struct {
	store  history.Store
	cfg    config.FatigueConfig
	logger logger.Logger
	now    func() time.Time
}

func NewTracker(store history.Store, cfg config.FatigueConfig, log logger.Logger) *Tracker {
	return &Tracker{
		store:  store,
		cfg:    cfg,
		logger: log,
		now:    time.Now,
	}
}

func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func channelSendsKey(userID string, ch models.Channel) string {
	return constants.KeyPrefixFatigue + userID + ":sends:" + string(ch)
}

func sendsKey(userID string) string {
	return constants.KeyPrefixFatigue + userID + ":sends"
}

func cooldownKey(userID string) string {
	return constants.KeyPrefixFatigue + userID + ":cooldown"
}

func lastSentKey(userID string) string {
	return constants.KeyPrefixFatigue + userID + ":last"
}

func dndKey(userID string) string {
	return constants.KeyPrefixPrefs + userID + ":dnd"
}

func optOutKey(userID string, ch models.Channel) string {
	return constants.KeyPrefixPrefs + userID + ":optout:" + string(ch)
}

// historyDepth is the list length that keeps every cap countable.
func (t *Tracker) historyDepth() int {
	depth := int64(minSendHistory)
	depth = max(depth, t.cfg.GlobalHourlyCap, t.cfg.BurstThreshold)
	for _, c := range t.cfg.ChannelHourlyCaps {
		depth = max(depth, c)
	}
	return int(depth)
}

func (t *Tracker) historyTTL() time.Duration {
	return max(hourlyWindow, t.cfg.BurstWindow)
}

// Load fills the counters, last-sent time and preferences of ec: one
// multi-key read plus the two send lists. On failure ec is marked
// HistoryUnavailable and keeps zero values.
func (t *Tracker) Load(ctx context.Context, event *models.NotificationEvent, ec *models.EvaluationContext) error {
	user := event.UserID
	keys := []string{
		cooldownKey(user),
		lastSentKey(user),
		dndKey(user),
	}
	for _, ch := range models.Channels {
		keys = append(keys, optOutKey(user, ch))
	}

	vals, err := t.store.GetMany(ctx, keys...)
	if err != nil {
		ec.HistoryUnavailable = true
		return fmt.Errorf("load fatigue counters: %w", err)
	}
	all, err := t.sends(ctx, sendsKey(user))
	if err != nil {
		ec.HistoryUnavailable = true
		return fmt.Errorf("load send history: %w", err)
	}
	onChannel, err := t.sends(ctx, channelSendsKey(user, event.Channel))
	if err != nil {
		ec.HistoryUnavailable = true
		return fmt.Errorf("load channel send history: %w", err)
	}

	now := t.now()
	ec.ChannelCount1h = int64(len(within(onChannel, now, hourlyWindow)))
	ec.RecentCount1h = int64(len(within(all, now, hourlyWindow)))
	if t.cfg.BurstWindow > 0 {
		ec.RecentCountWindow = int64(len(within(all, now, t.cfg.BurstWindow)))
	}
	ec.InCooldown = vals[cooldownKey(user)] == flagOn
	ec.DoNotDisturb = vals[dndKey(user)] == flagOn

	if raw, ok := vals[lastSentKey(user)]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			ec.LastSentAt = &ts
		}
	}

	ec.OptedOutChannels = nil
	for _, ch := range models.Channels {
		if vals[optOutKey(user, ch)] == flagOn {
			ec.OptedOutChannels = append(ec.OptedOutChannels, ch)
		}
	}

	return nil
}

// sends returns the send times stored under key, newest first. Entries that
// do not parse are skipped.
func (t *Tracker) sends(ctx context.Context, key string) ([]time.Time, error) {
	raw, err := t.store.Recent(ctx, key, t.historyDepth())
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(raw))
	for _, r := range raw {
		n, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, time.Unix(0, n).UTC())
	}
	return out, nil
}

// within keeps the times newer than window before now, preserving order.
func within(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	out := times[:0:0]
	for _, ts := range times {
		if ts.After(cutoff) {
			out = append(out, ts)
		}
	}
	return out
}

// Evaluate checks the loaded counters against the caps. A cap of zero is
// unlimited.
func (t *Tracker) Evaluate(event *models.NotificationEvent, ec models.EvaluationContext) Verdict {
	v := t.evaluate(event, ec)
	if v.Exceeded {
		metrics.FatigueExceededTotal.WithLabelValues(string(v.Scope)).Inc()
	}
	return v
}

func (t *Tracker) evaluate(event *models.NotificationEvent, ec models.EvaluationContext) Verdict {
	if ec.InCooldown {
		return Verdict{Exceeded: true, Scope: ScopeCooldown}
	}

	if limit := t.cfg.GlobalHourlyCap; limit > 0 && ec.RecentCount1h >= limit {
		return Verdict{Exceeded: true, Scope: ScopeGlobalHourly}
	}

	if limit := t.cfg.ChannelHourlyCaps[string(event.Channel)]; limit > 0 && ec.ChannelCount1h >= limit {
		return Verdict{Exceeded: true, Scope: ScopeChannelHourly}
	}

	return Verdict{}
}

// ResetAt returns when the count behind scope drops below its cap. The zero
// time means the reset is unknown.
func (t *Tracker) ResetAt(ctx context.Context, event *models.NotificationEvent, scope Scope) (time.Time, error) {
	var (
		key   string
		limit int64
	)
	switch scope {
	case ScopeChannelHourly:
		key, limit = channelSendsKey(event.UserID, event.Channel), t.cfg.ChannelHourlyCaps[string(event.Channel)]
	case ScopeGlobalHourly:
		key, limit = sendsKey(event.UserID), t.cfg.GlobalHourlyCap
	case ScopeCooldown:
		ttl, err := t.store.TTL(ctx, cooldownKey(event.UserID))
		if err != nil || ttl <= 0 {
			return time.Time{}, err
		}
		return t.now().Add(ttl), nil
	default:
		return time.Time{}, nil
	}

	times, err := t.sends(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	now := t.now()
	recent := within(times, now, hourlyWindow)
	if limit <= 0 || int64(len(recent)) < limit {
		return time.Time{}, nil
	}
	// The count falls below the cap once the limit-th newest send ages out.
	return recent[limit-1].Add(hourlyWindow), nil
}

// Record stores one delivered notification. The cooldown flag is raised
// when the sends inside the burst window reach the threshold.
func (t *Tracker) Record(ctx context.Context, event *models.NotificationEvent) error {
	user := event.UserID
	now := t.now()
	stamp := strconv.FormatInt(now.UnixNano(), 10)
	depth, ttl := t.historyDepth(), t.historyTTL()
	var errs []error

	if err := t.store.PushRecent(ctx, channelSendsKey(user, event.Channel), stamp, depth, ttl); err != nil {
		errs = append(errs, err)
	}
	if err := t.store.PushRecent(ctx, sendsKey(user), stamp, depth, ttl); err != nil {
		errs = append(errs, err)
	}

	if t.cfg.BurstThreshold > 0 && t.cfg.BurstWindow > 0 && len(errs) == 0 {
		all, err := t.sends(ctx, sendsKey(user))
		if err != nil {
			errs = append(errs, err)
		} else if burst := int64(len(within(all, now, t.cfg.BurstWindow))); burst >= t.cfg.BurstThreshold {
			if started, err := t.store.SetNX(ctx, cooldownKey(user), flagOn, t.cfg.Cooldown); err != nil {
				errs = append(errs, err)
			} else if started {
				t.logger.InfowCtx(ctx, "User entered fatigue cooldown", "user_id", user, "burst", burst)
			}
		}
	}

	if err := t.store.Set(ctx, lastSentKey(user), now.UTC().Format(time.RFC3339Nano), lastSentTTL); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("record fatigue counters: %w", err)
	}
	return nil
}

// SetPreferences stores do-not-disturb and channel opt-outs for a user.
func (t *Tracker) SetPreferences(ctx context.Context, userID string, prefs Preferences) error {
	var errs []error

	if err := t.store.Set(ctx, dndKey(userID), flag(prefs.DoNotDisturb), 0); err != nil {
		errs = append(errs, err)
	}

	opted := make(map[models.Channel]bool, len(prefs.OptedOut))
	for _, ch := range prefs.OptedOut {
		opted[ch] = true
	}
	for _, ch := range models.Channels {
		if err := t.store.Set(ctx, optOutKey(userID, ch), flag(opted[ch]), 0); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func flag(on bool) string {
	if on {
		return flagOn
	}
	return flagOff
}
