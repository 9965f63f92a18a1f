package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// ReloadFunc receives the previous and the newly loaded config together
// with their [ConfigDiff]. It runs on the watcher goroutine.
type ReloadFunc func(old, new *Config, diff ConfigDiff)

// snapshot is one successfully parsed version of the config file.
type snapshot struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
}

// Watcher polls a config file and hands valid edits to a [ReloadFunc].
// Edits that fail to parse or validate are logged and skipped, so the last
// good config stays current. A change in modification time alone, with
// identical content, is not reported.
type Watcher struct {
	path     string
	interval time.Duration
	reload   ReloadFunc

	mu   sync.Mutex
	last snapshot

	quit     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides [DefaultWatchInterval]. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher reads path once, failing if it is not a valid config, and then
// polls it on a background goroutine until Stop is called.
func NewWatcher(path string, reload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		reload:   reload,
		quit:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	snap, err := readSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.last = snap

	go w.loop()
	return w, nil
}

// Current returns the last valid config read from disk.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.cfg
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}

func (w *Watcher) loop() {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.quit:
			return
		case <-t.C:
			w.poll()
		}
	}
}

// poll reloads the file when its modification time moved and reports the
// new config when its content differs from the last good one.
func (w *Watcher) poll() {
	log := slog.With("path", w.path)

	info, err := os.Stat(w.path)
	if err != nil {
		log.Warn("config watcher: stat failed", "err", err)
		return
	}
	w.mu.Lock()
	prev := w.last
	w.mu.Unlock()
	if info.ModTime().Equal(prev.mtime) {
		return
	}

	next, err := readSnapshot(w.path)
	if err != nil {
		log.Warn("config watcher: invalid edit ignored", "err", err)
		return
	}

	w.mu.Lock()
	if next.sum == prev.sum {
		w.last.mtime = next.mtime
		w.mu.Unlock()
		return
	}
	w.last = next
	w.mu.Unlock()

	diff := Diff(prev.cfg, next.cfg)
	log.Info("config watcher: reloaded", "restart_required", diff.RestartRequired)
	if w.reload != nil {
		w.reload(prev.cfg, next.cfg, diff)
	}
}

func readSnapshot(path string) (snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, sum: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
