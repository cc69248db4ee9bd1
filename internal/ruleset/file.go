package ruleset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	yaml "go.yaml.in/yaml/v3"

	"hush/pkg/models"
)

const watchDebounce = 250 * time.Millisecond

// FileProvider reads a YAML (or JSON) rule file. A file without an explicit
// version is versioned by its modification time.
type FileProvider struct {
	path string
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) Name() string {
	return "file"
}

func (p *FileProvider) Path() string {
	return p.path
}

func (p *FileProvider) Load(_ context.Context) (models.RuleSet, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		return models.RuleSet{}, fmt.Errorf("failed to stat rule file: %w", err)
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return models.RuleSet{}, fmt.Errorf("failed to read rule file: %w", err)
	}

	set, err := DecodeRuleSet(data)
	if err != nil {
		return models.RuleSet{}, fmt.Errorf("%s: %w", p.path, err)
	}

	if set.Version == 0 {
		set.Version = info.ModTime().UnixNano()
	}
	return set, nil
}

// DecodeRuleSet parses a rule document.
func DecodeRuleSet(data []byte) (models.RuleSet, error) {
	var set models.RuleSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return models.RuleSet{}, fmt.Errorf("failed to parse rules: %w", err)
	}
	if set.Version < 0 {
		return models.RuleSet{}, fmt.Errorf("version must not be negative")
	}
	return set, nil
}

// Watch reports writes to the rule file. Bursts of events are collapsed so
// editors that write in several steps trigger one reload.
func (p *FileProvider) Watch(ctx context.Context, notify func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(p.path)
	file := filepath.Base(p.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, notify)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("file watcher closed")
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("file watcher closed")
			}
			if err != nil {
				debounce()
			}
		}
	}
}
