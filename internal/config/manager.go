package config

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of filesystem events an editor or
// config-management tool emits for a single logical save.
const reloadDebounce = 500 * time.Millisecond

// Manager owns the live pool configuration for a running process. Readers
// get a consistent snapshot via an atomic pointer; a file watcher swaps the
// snapshot on change and notifies subscribers so they can rebuild the
// router pool. A snapshot that fails validation is discarded and the
// current one stays in effect.
type Manager struct {
	current atomic.Pointer[Config]
	path    string
	logger  *slog.Logger

	mu          sync.Mutex
	subscribers []func(*Config)
	watcher     *fsnotify.Watcher
}

// NewManager loads the configuration at path and returns a manager serving
// it. Watching starts separately via Watch.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{path: path, logger: logger}
	m.current.Store(cfg)
	return m, nil
}

// Get returns the current configuration snapshot. The snapshot is immutable
// once published; callers must not mutate it.
func (m *Manager) Get() *Config {
	return m.current.Load()
}

// Subscribe registers a callback invoked with each successfully reloaded
// snapshot. Safe to call before or after Watch; callbacks run serially on
// the watcher goroutine and should hand off long work.
func (m *Manager) Subscribe(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Watch starts the file watcher. It returns immediately; reloads happen in
// the background until ctx is cancelled.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(m.path); err != nil {
		_ = watcher.Close()
		return err
	}

	m.mu.Lock()
	m.watcher = watcher
	m.mu.Unlock()

	go m.run(ctx, watcher)
	return nil
}

func (m *Manager) run(ctx context.Context, watcher *fsnotify.Watcher) {
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
		_ = watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			// Writes and creates cover both in-place saves and the
			// rename-over dance atomic writers do.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDebounce, m.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("config watch error", "path", m.path, "error", err)
		}
	}
}

func (m *Manager) reload() {
	next, err := LoadFromFile(m.path)
	if err != nil {
		m.logger.Error("config reload rejected, keeping current snapshot",
			"path", m.path,
			"error", err,
		)
		return
	}

	m.current.Store(next)
	m.logger.Info("configuration reloaded",
		"path", m.path,
		"model_groups", len(next.ModelGroups),
		"deployments", len(next.Deployments()),
	)

	m.mu.Lock()
	subscribers := make([]func(*Config), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	for _, fn := range subscribers {
		fn(next)
	}
}

// Close stops the watcher if one is running.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
