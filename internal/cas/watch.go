package cas

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DirWatcher watches directories under a content-addressable tree for
// writes made by another process sharing the same store (e.g. a second
// `pesde install` run, or a long-running daemon process), so a caller that
// keeps its own in-memory cache of something derived from that tree knows
// when to drop it. fsnotify does not watch subtrees recursively, so
// DirWatcher tracks every directory it's been told to watch and adds a
// watch for any new subdirectory it sees created underneath one of them.
type DirWatcher struct {
	w        *fsnotify.Watcher
	onChange func(path string)

	mu      sync.Mutex
	watched map[string]bool
}

// NewDirWatcher starts a watcher that calls onChange with the path of
// whatever changed. onChange may be called from a background goroutine and
// must not block.
func NewDirWatcher(onChange func(path string)) (*DirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("cas: starting directory watcher: %w", err)
	}

	dw := &DirWatcher{w: w, onChange: onChange, watched: make(map[string]bool)}
	go dw.loop()
	return dw, nil
}

// Add starts watching dir, a no-op if it's already watched.
func (dw *DirWatcher) Add(dir string) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return dw.addLocked(dir)
}

func (dw *DirWatcher) addLocked(dir string) error {
	if dw.watched[dir] {
		return nil
	}
	if err := dw.w.Add(dir); err != nil {
		return fmt.Errorf("cas: watching %s: %w", dir, err)
	}
	dw.watched[dir] = true
	return nil
}

func (dw *DirWatcher) loop() {
	for {
		select {
		case event, ok := <-dw.w.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					dw.mu.Lock()
					_ = dw.addLocked(event.Name)
					dw.mu.Unlock()
				}
			}
			if dw.onChange != nil {
				dw.onChange(event.Name)
			}
		case _, ok := <-dw.w.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher. Further Add calls will fail.
func (dw *DirWatcher) Close() error {
	return dw.w.Close()
}
