package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ddrkit/ddrsync/internal/record"
)

// DefaultDebounce is how long a document must stay quiet before it is
// re-indexed.
const DefaultDebounce = 200 * time.Millisecond

// Watcher re-indexes record documents as they change on disk.
type Watcher struct {
	syncer   *Syncer
	root     string
	debounce time.Duration
	log      *zap.Logger

	fsw     *fsnotify.Watcher
	queue   map[string]time.Time
	queueMu sync.Mutex

	// synced is signalled after each processed batch; tests wait on it.
	synced chan struct{}
}

// NewWatcher returns a watcher over the syncer's repository. A zero
// debounce uses DefaultDebounce.
func NewWatcher(s *Syncer, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		syncer:   s,
		root:     s.store.Root,
		debounce: debounce,
		log:      s.log.Named("watch"),
		fsw:      fsw,
		queue:    make(map[string]time.Time),
		synced:   make(chan struct{}, 1),
	}, nil
}

// Run watches until ctx is cancelled. It adds watches for the repository
// root, every record directory and every payload directory, and for new
// ones as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()

	if err := w.addTree(w.root, false); err != nil {
		return err
	}
	w.log.Info("watching repository", zap.String("repo", w.root))

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watcher stopped")
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", zap.Error(err))

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name, true); err != nil {
				w.log.Warn("failed to watch new directory", zap.String("dir", ev.Name), zap.Error(err))
			}
			return
		}
	}

	if _, _, ok := Classify(w.root, ev.Name); !ok {
		return
	}
	w.log.Debug("document event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))

	w.queueMu.Lock()
	w.queue[ev.Name] = time.Now()
	w.queueMu.Unlock()
}

// flush syncs the documents that have been quiet for the debounce interval.
func (w *Watcher) flush(ctx context.Context) {
	now := time.Now()
	var ready []string

	w.queueMu.Lock()
	for path, at := range w.queue {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, path)
			delete(w.queue, path)
		}
	}
	w.queueMu.Unlock()

	if len(ready) == 0 {
		return
	}
	for _, path := range ready {
		if err := w.syncer.SyncPath(ctx, path); err != nil {
			w.log.Warn("failed to re-index", zap.String("path", path), zap.Error(err))
		}
	}
	select {
	case w.synced <- struct{}{}:
	default:
	}
}

// addTree watches dir and the record and payload directories below it,
// down to the payload level. With queueDocs, documents already present are
// queued for indexing, since their create events came before the watch.
func (w *Watcher) addTree(dir string, queueDocs bool) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			if _, _, ok := Classify(w.root, path); ok && queueDocs {
				w.queueMu.Lock()
				w.queue[path] = time.Now()
				w.queueMu.Unlock()
			}
			return nil
		}
		rel, _ := filepath.Rel(w.root, path)
		depth := 0
		if rel != "." {
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			depth = len(strings.Split(filepath.ToSlash(rel), "/"))
		}
		if depth > 2 || (depth == 2 && d.Name() != record.PayloadDir) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
