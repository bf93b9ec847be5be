package imagecatalog

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher reloads a Catalog from a directory whenever its image files change.
type Watcher struct {
	watcher            *fsnotify.Watcher
	dir                string
	catalog            *Catalog
	stabilityThreshold time.Duration
	onReload           func(names []string)
	onEmpty            func()
	empty              atomic.Bool
	done               chan struct{}
	timer              *time.Timer
	timerMu            sync.Mutex
	stopOnce           sync.Once
}

type WatcherConfig struct {
	Dir                string
	Catalog            *Catalog
	StabilityThreshold time.Duration
	OnReload           func(names []string)

	// OnEmpty runs once each time the directory loses its last image.
	OnEmpty func()
}

func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if config.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if config.StabilityThreshold == 0 {
		config.StabilityThreshold = 100 * time.Millisecond
	}

	return &Watcher{
		watcher:            watcher,
		dir:                config.Dir,
		catalog:            config.Catalog,
		stabilityThreshold: config.StabilityThreshold,
		onReload:           config.OnReload,
		onEmpty:            config.OnEmpty,
		done:               make(chan struct{}),
	}, nil
}

// Start loads the directory once, then follows changes until Stop.
// An empty directory leaves the catalog untouched.
func (w *Watcher) Start() error {
	if err := w.reload(); err != nil {
		return err
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch image dir: %w", err)
	}

	go w.eventLoop()

	log.Info().Str("path", w.dir).Msg("Image catalog watcher started")
	return nil
}

func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !IsImage(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.debounce()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Image catalog watcher error")

		case <-w.done:
			return
		}
	}
}

// debounce collapses a burst of directory events into one reload.
func (w *Watcher) debounce() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.stabilityThreshold, func() {
		select {
		case <-w.done:
			return
		default:
		}
		if err := w.reload(); err != nil {
			log.Error().Err(err).Str("path", w.dir).Msg("Image catalog reload failed")
		}
	})
}

func (w *Watcher) reload() error {
	names, err := LoadDir(w.dir)
	if err != nil {
		return err
	}
	// An emptied directory keeps the last known names so haiku prompts still
	// have candidates. The warning fires once per emptying.
	if len(names) == 0 {
		if !w.empty.Swap(true) {
			log.Warn().
				Str("path", w.dir).
				Strs("kept", w.catalog.Names()).
				Msg("Image dir is empty, keeping current catalog")
			if w.onEmpty != nil {
				w.onEmpty()
			}
		}
		return nil
	}
	w.empty.Store(false)

	w.catalog.Replace(names)
	log.Debug().Int("images", len(names)).Str("path", w.dir).Msg("Image catalog reloaded")

	if w.onReload != nil {
		w.onReload(names)
	}
	return nil
}
