// Package credentials resolves a ready-to-use transport target from an
// ordered fallback of sources: the running local process, the host's
// credential store, and operator-supplied environment values.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/j-veylop/cascade-quota-engine/internal/logger"
)

// StoreEntry is one provider's record in the host's credential document.
type StoreEntry struct {
	Type      string `json:"type"`
	Access    string `json:"access"`
	Refresh   string `json:"refresh"`
	ProjectID string `json:"projectId"`
	APIKey    string `json:"apiKey"`
	Expires   int64  `json:"expires"`
}

// Credential returns the usable secret from the entry: an API key when
// present, otherwise an unexpired access token. Expires is epoch millis.
func (e StoreEntry) Credential() (string, bool) {
	if e.APIKey != "" {
		return e.APIKey, true
	}
	if e.Access == "" {
		return "", false
	}
	if e.Expires > 0 && time.Now().UnixMilli() >= e.Expires {
		return "", false
	}
	return e.Access, true
}

// Store reads the credential document, a JSON object keyed by provider name,
// and watches it for changes so the engine can refresh when the operator logs
// in or out.
type Store struct {
	mu            sync.RWMutex
	entries       map[string]StoreEntry
	filePath      string
	watcher       *fsnotify.Watcher
	changeChan    chan struct{}
	stopChan      chan struct{}
	debounceTimer *time.Timer
}

// NewStore opens the store at path and starts watching it. A missing file is
// not an error; it simply yields no credentials until one appears.
func NewStore(filePath string) (*Store, error) {
	s := &Store{
		entries:    make(map[string]StoreEntry),
		filePath:   filePath,
		changeChan: make(chan struct{}, 1),
		stopChan:   make(chan struct{}),
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load credential store", "path", filePath, "error", err)
	}

	if err := s.startWatcher(); err != nil {
		return nil, fmt.Errorf("failed to start credential store watcher: %w", err)
	}

	return s, nil
}

// Get returns the entry for a provider.
func (s *Store) Get(provider string) (StoreEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[provider]
	return entry, ok
}

// Changes signals once per (debounced) change to the underlying file.
func (s *Store) Changes() <-chan struct{} {
	return s.changeChan
}

// Close stops the watcher.
func (s *Store) Close() error {
	close(s.stopChan)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	entries := make(map[string]StoreEntry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse credential store: %w", err)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// startWatcher watches the store's directory; editors and login tools tend to
// replace the file rather than write it in place, which drops a plain file
// watch.
func (s *Store) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		_ = watcher.Close()
		return err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	go s.watchLoop()
	return nil
}

func (s *Store) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.filePath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			s.scheduleReload()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("credential store watcher error", "error", err)

		case <-s.stopChan:
			return
		}
	}
}

// scheduleReload debounces bursts of file events into a single reload.
func (s *Store) scheduleReload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = time.AfterFunc(200*time.Millisecond, func() {
		err := s.load()
		switch {
		case os.IsNotExist(err):
			// File deleted: drop cached entries.
			s.mu.Lock()
			s.entries = make(map[string]StoreEntry)
			s.mu.Unlock()
		case err != nil:
			logger.Warn("failed to reload credential store", "error", err)
			return
		}
		select {
		case s.changeChan <- struct{}{}:
		default:
		}
	})
}
