package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// LoadFunc builds a fresh registry, typically by calling LoadDir.
type LoadFunc func() (*Registry, error)

// Holder owns the active registry snapshot. Readers call Current and keep the
// snapshot for the rest of their request; Reload swaps in a new one atomically.
type Holder struct {
	current atomic.Pointer[Registry]
	load    LoadFunc
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewHolder starts with an empty registry; call Reload to populate it.
func NewHolder(load LoadFunc, logger *zap.Logger) *Holder {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Holder{load: load, logger: logger}
	h.current.Store(Empty())
	return h
}

// Current returns the active snapshot. It never returns nil.
func (h *Holder) Current() *Registry {
	return h.current.Load()
}

// Reload builds a new registry and makes it current. A failed load, or one that
// finds no models while models are being served, leaves the current snapshot in place.
func (h *Holder) Reload() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	next, err := h.load()
	if err != nil {
		return fmt.Errorf("reload models: %w", err)
	}
	prev := h.current.Load()
	if next.Len() == 0 && prev.Len() > 0 {
		return fmt.Errorf("reload models: %w, keeping %d models", ErrEmpty, prev.Len())
	}
	h.current.Store(next)
	h.logger.Info("model registry active",
		zap.Uint64("version", next.Version()),
		zap.Strings("models", next.List()),
		zap.Bool("scaled", next.Scaler() != nil))
	return nil
}

// Watch reloads whenever artifacts in any of dirs change, until ctx is cancelled.
// Bursts of events within debounce collapse into one reload. Dirs that cannot be
// watched are logged; Watch fails only when none can.
func (h *Holder) Watch(ctx context.Context, dirs []string, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	watched := 0
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			h.logger.Warn("cannot watch models dir", zap.String("dir", dir), zap.Error(err))
			continue
		}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("watch %s: no directory could be watched", strings.Join(dirs, ", "))
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	h.logger.Info("watching models dirs", zap.Strings("dirs", dirs), zap.Duration("debounce", debounce))

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if !isArtifactEvent(event) {
				continue
			}
			h.logger.Debug("models dir changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			h.logger.Warn("models watcher error", zap.Error(err))
		case <-timer.C:
			if err := h.Reload(); err != nil {
				h.logger.Error("models reload failed", zap.Error(err))
			}
		}
	}
}

func isArtifactEvent(event fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(event.Name), ".json") {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
