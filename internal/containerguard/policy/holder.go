package policy

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Holder is a single-writer-many-reader policy set, replaced atomically on
// hot reload (spec.md §4.5, §3's "Arc-like shared ownership... for the
// policy engine").
type Holder struct {
	log *zap.Logger
	dir string

	mu       sync.RWMutex
	policies []*Policy

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewHolder loads dir once and returns a ready Holder.
func NewHolder(log *zap.Logger, dir string) (*Holder, error) {
	policies, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return &Holder{
		log:      log.Named("policy_holder"),
		dir:      dir,
		policies: policies,
	}, nil
}

// Policies returns the current policy set. Callers must not mutate it.
func (h *Holder) Policies() []*Policy {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.policies
}

// WatchReload starts an fsnotify watch on the policy directory and
// atomically swaps in a freshly reloaded policy set whenever a file
// changes. A reload failure is logged and the previous policy set stays
// active (spec.md §4.5's mutable-holder hot-reload model).
func (h *Holder) WatchReload() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(h.dir); err != nil {
		watcher.Close()
		return err
	}
	h.watcher = watcher
	h.done = make(chan struct{})

	go h.watchLoop()
	return nil
}

func (h *Holder) watchLoop() {
	defer close(h.done)
	for {
		select {
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			h.reload()
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.log.Warn("policy watch error", zap.Error(err))
		}
	}
}

func (h *Holder) reload() {
	policies, err := LoadDir(h.dir)
	if err != nil {
		h.log.Error("policy reload failed, keeping previous policy set", zap.Error(err))
		return
	}
	h.mu.Lock()
	h.policies = policies
	h.mu.Unlock()
	h.log.Info("policy set reloaded", zap.Int("count", len(policies)))
}

// Close stops the watch goroutine, if running.
func (h *Holder) Close() error {
	if h.watcher == nil {
		return nil
	}
	err := h.watcher.Close()
	<-h.done
	return err
}
