// Package overrides loads the manual quarantine/force-status override file
// and keeps it fresh: an fsnotify watch on the file's directory catches
// edits immediately, and a periodic poll is the fallback for filesystems or
// editors where fsnotify events don't fire reliably (NFS mounts, some
// atomic-rename editors).
package overrides

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nearbyhq/presenced/config"
	"github.com/nearbyhq/presenced/internal/adapter"
	"github.com/nearbyhq/presenced/logger"
)

// document is the on-disk shape of the override file.
type document struct {
	Quarantine  []string          `json:"quarantine"`
	ForceStatus map[string]string `json:"forceStatus"`
}

// Store holds the currently loaded overrides and keeps them refreshed from
// disk. Safe for concurrent reads from any goroutine.
type Store struct {
	path          string
	refreshPeriod time.Duration

	mu          sync.RWMutex
	quarantine  map[adapter.MAC]bool
	forceStatus map[adapter.MAC]bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Store for cfg.File, loading it once synchronously so the
// first polling cycle already has overrides available.
func New(cfg *config.OverridesConfig) *Store {
	s := &Store{
		path:          cfg.File,
		refreshPeriod: time.Duration(cfg.RefreshSeconds) * time.Second,
		quarantine:    make(map[adapter.MAC]bool),
		forceStatus:   make(map[adapter.MAC]bool),
		done:          make(chan struct{}),
	}
	s.reload()
	return s
}

// Quarantined reports whether mac is in the current quarantine list.
func (s *Store) Quarantined(mac adapter.MAC) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quarantine[mac]
}

// ForceStatus reports a forced status for mac, if one is configured.
func (s *Store) ForceStatus(mac adapter.MAC) (present bool, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	present, ok = s.forceStatus[mac]
	return present, ok
}

// Start arms the fsnotify watcher and the poll-fallback ticker. Returns
// immediately if the override file is not configured.
func (s *Store) Start(ctx context.Context) {
	if s.path == "" {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.run()
}

// Stop cancels the watch loop and waits for it to exit.
func (s *Store) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Store) run() {
	defer close(s.done)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("[overrides] fsnotify unavailable, falling back to polling only: %v", err)
		s.pollLoop()
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		logger.Warn("[overrides] cannot watch %s, falling back to polling only: %v", dir, err)
		s.pollLoop()
		return
	}

	var ticker *time.Ticker
	var tickerC <-chan time.Time
	if s.refreshPeriod > 0 {
		ticker = time.NewTicker(s.refreshPeriod)
		defer ticker.Stop()
		tickerC = ticker.C
	}

	for {
		select {
		case <-s.ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				s.reload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("[overrides] fsnotify error: %v", err)

		case <-tickerC:
			s.reload()
		}
	}
}

func (s *Store) pollLoop() {
	if s.refreshPeriod <= 0 {
		return
	}
	ticker := time.NewTicker(s.refreshPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.reload()
		}
	}
}

func (s *Store) reload() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("[overrides] cannot read %s: %v", s.path, err)
		}
		return
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		logger.Warn("[overrides] malformed override file %s: %v", s.path, err)
		return
	}

	quarantine := make(map[adapter.MAC]bool, len(doc.Quarantine))
	for _, mac := range doc.Quarantine {
		quarantine[adapter.MAC(mac)] = true
	}

	forceStatus := make(map[adapter.MAC]bool, len(doc.ForceStatus))
	for mac, status := range doc.ForceStatus {
		forceStatus[adapter.MAC(mac)] = status == "present"
	}

	s.mu.Lock()
	s.quarantine = quarantine
	s.forceStatus = forceStatus
	s.mu.Unlock()

	logger.Debug("[overrides] reloaded %s: %d quarantined, %d forced", s.path, len(quarantine), len(forceStatus))
}
