package service

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"sheetlocator/internal/registry"
)

// ─────────────────────────────────────────────────────────────
// Reload Service: picks up edits made outside the service
// ─────────────────────────────────────────────────────────────

// Reloader is the part of CrudService the reload service drives.
type Reloader interface {
	ReloadDataset(ctx context.Context, key string) error
	Unchanged(key string) bool
}

// ReloadConfig enables the file watcher and the reload schedule.
type ReloadConfig struct {
	Watch    bool
	Debounce time.Duration
	Schedule string // cron expression; empty disables scheduled reloads
}

const defaultDebounce = 500 * time.Millisecond

// ReloadService reloads datasets when their files change on disk and on a
// fixed schedule.
type ReloadService struct {
	reg    *registry.Registry
	target Reloader
	cfg    ReloadConfig

	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

func NewReloadService(reg *registry.Registry, target Reloader, cfg ReloadConfig) *ReloadService {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	return &ReloadService{reg: reg, target: target, cfg: cfg}
}

// Start tears down any running watcher or schedule and starts new ones.
func (s *ReloadService) Start(ctx context.Context) error {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(s.cfg.Schedule, func() { s.reloadAll(ctx) }); err != nil {
			return err
		}
		c.Start()
		s.cronSched = c
		log.Printf("reload cron: scheduled %q", s.cfg.Schedule)
	}

	if s.cfg.Watch {
		s.startWatcher(ctx)
	}
	return nil
}

func (s *ReloadService) reloadAll(ctx context.Context) {
	for _, ds := range s.reg.All() {
		if ds.IsFile() && s.target.Unchanged(ds.Key) {
			continue
		}
		log.Printf("reload cron: reloading %s", ds.Key)
		if err := s.target.ReloadDataset(ctx, ds.Key); err != nil {
			log.Printf("reload cron: %s failed: %v", ds.Key, err)
		}
	}
}

// startWatcher watches the directory of every file dataset. Callers hold s.mu.
func (s *ReloadService) startWatcher(ctx context.Context) {
	pathToKey := make(map[string]string)
	for _, ds := range s.reg.All() {
		if !ds.IsFile() {
			continue
		}
		absPath, err := filepath.Abs(ds.Location)
		if err != nil {
			log.Printf("reload watcher: bad path %q: %v", ds.Location, err)
			continue
		}
		pathToKey[absPath] = ds.Key
	}
	if len(pathToKey) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("reload watcher: failed to create watcher: %v", err)
		return
	}
	s.watcher = watcher

	watchedDirs := make(map[string]bool)
	for absPath := range pathToKey {
		dir := filepath.Dir(absPath)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.Printf("reload watcher: failed to watch dir %q: %v", dir, err)
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel

	go func() {
		timers := make(map[string]*time.Timer)
		defer func() {
			for _, t := range timers {
				t.Stop()
			}
		}()
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// Atomic saves land as a Create (rename over the old file).
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				key, ok := pathToKey[absPath]
				if !ok {
					continue
				}
				if t, exists := timers[key]; exists {
					t.Stop()
				}
				timers[key] = time.AfterFunc(s.cfg.Debounce, func() {
					if watchCtx.Err() != nil || s.target.Unchanged(key) {
						return
					}
					log.Printf("reload watcher: file changed %q, reloading %s", absPath, key)
					if err := s.target.ReloadDataset(watchCtx, key); err != nil {
						log.Printf("reload watcher: reload of %s failed: %v", key, err)
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("reload watcher: error: %v", err)
			}
		}
	}()

	log.Printf("reload watcher: watching %d file(s)", len(pathToKey))
}

// Stop tears down the watcher and the schedule.
func (s *ReloadService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		<-s.cronSched.Stop().Done()
		s.cronSched = nil
	}
}
