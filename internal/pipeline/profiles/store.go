// internal/pipeline/profiles/store.go
package profiles

import (
	"sync"
	"sync/atomic"

	"hotspot-selection/internal/common/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Store publishes the current profile snapshot. Readers take one snapshot and
// keep using it; a reload never changes a snapshot already handed out.
type Store struct {
	path    string
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex // serializes reloads
	logger  logger.Logger
	watcher *viper.Viper
}

// NewStore loads path once. A file that fails validation is fatal here.
func NewStore(path string, log logger.Logger) (*Store, error) {
	snap, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	snap.version = 1

	s := &Store{path: path, logger: logger.ForComponent(log, "profiles")}
	s.current.Store(snap)
	s.logger.Info("platform profiles loaded", map[string]interface{}{
		"path":      path,
		"platforms": snap.Names(),
	})
	return s, nil
}

// NewStaticStore wraps an already parsed snapshot; Reload and Watch are no-ops.
func NewStaticStore(snap *Snapshot, log logger.Logger) *Store {
	if snap.version == 0 {
		snap.version = 1
	}
	s := &Store{logger: logger.ForComponent(log, "profiles")}
	s.current.Store(snap)
	return s
}

func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Reload re-reads the file and swaps the snapshot only when the new file is
// valid. On error the previous snapshot stays active.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := ParseFile(s.path)
	if err != nil {
		s.logger.Error("profile reload rejected, keeping previous snapshot", map[string]interface{}{
			"path":    s.path,
			"error":   err.Error(),
			"version": s.current.Load().version,
		})
		return err
	}

	snap.version = s.current.Load().version + 1
	s.current.Store(snap)
	s.logger.Info("platform profiles reloaded", map[string]interface{}{
		"path":      s.path,
		"version":   snap.version,
		"platforms": snap.Names(),
	})
	return nil
}

// Watch reloads the snapshot whenever the file changes on disk.
func (s *Store) Watch() {
	if s.path == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
			return
		}
		_ = s.Reload()
	})
	v.WatchConfig()
	s.watcher = v
}
