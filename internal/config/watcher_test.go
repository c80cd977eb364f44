package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/modelmixer/internal/config"
	"github.com/MrWong99/modelmixer/pkg/mixer"
)

const watcherValidYAML = `
server:
  log_level: info
mixer:
  enabled: true
  providers:
    - id: a
      name: A
      type: cloud
      endpoint: http://a.invalid
      enabled: true
      weight: 1
`

const watcherUpdatedYAML = `
server:
  log_level: debug
mixer:
  enabled: true
  strategy:
    type: priority
  providers:
    - id: a
      name: A
      type: cloud
      endpoint: http://a.invalid
      enabled: true
      weight: 1
      priority: 5
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// changeRecorder collects onChange invocations.
type changeRecorder struct {
	mu    sync.Mutex
	calls [][2]*config.Config
	fired chan struct{}
}

func newChangeRecorder() *changeRecorder {
	return &changeRecorder{fired: make(chan struct{}, 16)}
}

func (r *changeRecorder) onChange(old, new *config.Config) {
	r.mu.Lock()
	r.calls = append(r.calls, [2]*config.Config{old, new})
	r.mu.Unlock()
	r.fired <- struct{}{}
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestWatcher(t *testing.T, content string, onChange func(old, new *config.Config)) (string, *config.Watcher) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, content)

	w, err := config.NewWatcher(cfgPath, onChange, config.WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return cfgPath, w
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	_, w := newTestWatcher(t, watcherValidYAML, nil)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo || len(cfg.Mixer.Providers) != 1 {
		t.Errorf("initial config = %+v", cfg)
	}
}

func TestWatcher_InvalidInitialConfig(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, watcherInvalidYAML)

	if _, err := config.NewWatcher(cfgPath, nil); err == nil {
		t.Fatal("expected error for invalid initial config")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	cfgPath, w := newTestWatcher(t, watcherValidYAML, rec.onChange)

	writeFile(t, cfgPath, watcherUpdatedYAML)

	select {
	case <-rec.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("onChange not called after file change")
	}

	rec.mu.Lock()
	old, updated := rec.calls[0][0], rec.calls[0][1]
	rec.mu.Unlock()
	if old.Server.LogLevel != config.LogInfo || updated.Server.LogLevel != config.LogDebug {
		t.Errorf("log levels old=%q new=%q", old.Server.LogLevel, updated.Server.LogLevel)
	}
	if updated.Mixer.Strategy.Type != mixer.StrategyPriority {
		t.Errorf("strategy = %q", updated.Mixer.Strategy.Type)
	}
	if w.Current() != updated {
		t.Error("Current() does not return the reloaded config")
	}
}

func TestWatcher_DetectsAtomicReplace(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	cfgPath, _ := newTestWatcher(t, watcherValidYAML, rec.onChange)

	tmp := cfgPath + ".tmp"
	writeFile(t, tmp, watcherUpdatedYAML)
	if err := os.Rename(tmp, cfgPath); err != nil {
		t.Fatalf("rename: %v", err)
	}

	select {
	case <-rec.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("onChange not called after atomic replace")
	}
}

func TestWatcher_IgnoresInvalidChange(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	cfgPath, w := newTestWatcher(t, watcherValidYAML, rec.onChange)

	writeFile(t, cfgPath, watcherInvalidYAML)
	time.Sleep(200 * time.Millisecond)

	if n := rec.count(); n != 0 {
		t.Errorf("onChange called %d times for invalid config", n)
	}
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Error("invalid config replaced the current one")
	}
}

func TestWatcher_IgnoresIdenticalContent(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	cfgPath, _ := newTestWatcher(t, watcherValidYAML, rec.onChange)

	writeFile(t, cfgPath, watcherValidYAML)
	writeFile(t, filepath.Join(filepath.Dir(cfgPath), "other.yaml"), watcherUpdatedYAML)
	time.Sleep(200 * time.Millisecond)

	if n := rec.count(); n != 0 {
		t.Errorf("onChange called %d times without a content change", n)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	_, w := newTestWatcher(t, watcherValidYAML, nil)
	w.Stop()
	w.Stop()
}

func TestWatcher_IgnoresEmptyFile(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	cfgPath, w := newTestWatcher(t, watcherValidYAML, rec.onChange)

	writeFile(t, cfgPath, "  \n")
	time.Sleep(200 * time.Millisecond)

	if n := rec.count(); n != 0 {
		t.Errorf("onChange called %d times for an empty file", n)
	}
	if len(w.Current().Mixer.Providers) != 1 {
		t.Error("empty file replaced the current config")
	}
}
