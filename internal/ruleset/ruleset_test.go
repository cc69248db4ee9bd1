package ruleset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hush/internal/config"
	"hush/internal/logger"
	"hush/internal/rules"
	"hush/pkg/cel"
	"hush/pkg/models"
)

const sampleRules = `
version: 4
rules:
  - id: critical-security
    name: Critical Security Alert
    action: NOW
    override_fatigue: true
    conditions:
      - op: expr
        expr: event_type.startsWith("account_")
      - field: priority
        op: eq
        value: critical
  - id: promo-suppression
    name: Promotional Suppression
    action: NEVER
    conditions:
      - field: event_type
        op: in
        value: [promo, newsletter]
      - field: recent_count_1h
        op: gte
        value: 3
  - id: quiet-hours
    name: Quiet hours
    action: LATER
    defer:
      mode: next_hour
    conditions:
      - field: do_not_disturb
        op: eq
        value: true
`

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileProvider_Load(t *testing.T) {
	path := writeFile(t, t.TempDir(), sampleRules)

	set, err := NewFileProvider(path).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(4), set.Version)
	require.Len(t, set.Rules, 3)
	assert.Equal(t, "Critical Security Alert", set.Rules[0].Name)
	assert.True(t, set.Rules[0].OverrideFatigue)
	assert.Equal(t, []interface{}{"promo", "newsletter"}, set.Rules[1].Conditions[0].Value)
	require.NotNil(t, set.Rules[2].Defer)
	assert.Equal(t, models.DeferModeNextHour, set.Rules[2].Defer.Mode)

	eval, err := cel.NewEvaluator()
	require.NoError(t, err)
	_, err = rules.Compile(set, eval)
	assert.NoError(t, err)
}

func TestFileProvider_VersionFromModTime(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules: []\n")
	mtime := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	set, err := NewFileProvider(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mtime.UnixNano(), set.Version)
}

func TestFileProvider_Errors(t *testing.T) {
	_, err := NewFileProvider(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background())
	assert.Error(t, err)

	path := writeFile(t, t.TempDir(), "rules: [unclosed")
	_, err = NewFileProvider(path).Load(context.Background())
	assert.Error(t, err)

	_, err = DecodeRuleSet([]byte("version: -1\n"))
	assert.Error(t, err)
}

func TestFileProvider_Watch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, sampleRules)
	p := NewFileProvider(path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notified := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- p.Watch(ctx, func() { notified <- struct{}{} })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte(sampleRules+"\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte(sampleRules+"\n\n"), 0o644))

	select {
	case <-notified:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the change")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

type stubProvider struct {
	set   atomic.Pointer[models.RuleSet]
	err   error
	loads atomic.Int32
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Load(context.Context) (models.RuleSet, error) {
	p.loads.Add(1)
	if p.err != nil {
		return models.RuleSet{}, p.err
	}
	return *p.set.Load(), nil
}

func newReloader(t *testing.T, p Provider) *Reloader {
	t.Helper()
	eval, err := cel.NewEvaluator()
	require.NoError(t, err)
	return NewReloader(p, rules.NewHolder(nil), eval, config.ReloadConfig{}, logger.NopLogger())
}

func ruleSet(version int64, action models.RuleAction) *models.RuleSet {
	return &models.RuleSet{
		Version: version,
		Rules: []models.RuleSpec{{
			ID:         "r1",
			Conditions: []models.Condition{{Field: "channel", Op: models.OpEq, Value: "push"}},
			Action:     action,
		}},
	}
}

func TestReloader_Reload(t *testing.T) {
	ctx := context.Background()
	p := &stubProvider{}
	p.set.Store(ruleSet(1, models.RuleActionNow))
	r := newReloader(t, p)

	applied, err := r.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(1), r.Holder().Load().Version)

	applied, err = r.Reload(ctx)
	require.NoError(t, err)
	assert.False(t, applied, "same version is not reapplied")

	p.set.Store(ruleSet(2, models.RuleActionNever))
	applied, err = r.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.VerdictSuppress, r.Holder().Load().Rules[0].Verdict)
}

func TestReloader_KeepsSnapshotOnFailure(t *testing.T) {
	ctx := context.Background()
	p := &stubProvider{}
	p.set.Store(ruleSet(1, models.RuleActionNow))
	r := newReloader(t, p)
	_, err := r.Reload(ctx)
	require.NoError(t, err)

	p.set.Store(ruleSet(2, "SOMETIMES"))
	_, err = r.Reload(ctx)
	assert.Error(t, err)
	assert.Equal(t, int64(1), r.Holder().Load().Version)

	p.err = errors.New("connection refused")
	_, err = r.Reload(ctx)
	assert.Error(t, err)
	assert.Equal(t, int64(1), r.Holder().Load().Version)
}

func TestReloader_IgnoresOlderVersion(t *testing.T) {
	ctx := context.Background()
	p := &stubProvider{}
	p.set.Store(ruleSet(5, models.RuleActionNow))
	r := newReloader(t, p)
	_, err := r.Reload(ctx)
	require.NoError(t, err)

	p.set.Store(ruleSet(3, models.RuleActionNever))
	applied, err := r.Reload(ctx)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, models.VerdictSendNow, r.Holder().Load().Rules[0].Verdict)
}

func TestReloader_StartPolls(t *testing.T) {
	p := &stubProvider{}
	p.set.Store(ruleSet(1, models.RuleActionNow))
	eval, err := cel.NewEvaluator()
	require.NoError(t, err)
	r := NewReloader(p, rules.NewHolder(nil), eval, config.ReloadConfig{IntervalSeconds: 1}, logger.NopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	err = r.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, p.loads.Load(), int32(1))
	assert.Equal(t, int64(1), r.Holder().Load().Version)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.RulesConfig{Provider: "file", File: "rules.yaml"}, Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "file", p.Name())

	_, err = NewProvider(config.RulesConfig{Provider: "postgres"}, Dependencies{})
	assert.Error(t, err)

	_, err = NewProvider(config.RulesConfig{Provider: "etcd"}, Dependencies{})
	assert.Error(t, err)
}
