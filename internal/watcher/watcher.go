// Package watcher reloads the project whenever its file changes on disk,
// so edits from an external editor reach the running engine.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// debounceDelay coalesces the burst of write events most editors emit per
// save into a single reload.
const debounceDelay = 250 * time.Millisecond

// Watcher observes a project path and invokes a callback after each
// settled change.
type Watcher struct {
	fsw      *fsnotify.Watcher
	path     string
	onChange func()
	log      *logrus.Entry
	stop     chan struct{}
	done     chan struct{}
}

// New watches path (a project file or directory). onChange runs on the
// watcher goroutine after every debounced modification.
func New(path string, onChange func(), log *logrus.Entry) (*Watcher, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	// Watch the containing directory: editors that replace the file on
	// save (rename+create) would otherwise drop the watch.
	watchDir := path
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		watchDir = filepath.Dir(path)
	}
	if err := fsw.Add(watchDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", watchDir, err)
	}

	w := &Watcher{
		fsw:      fsw,
		path:     path,
		onChange: onChange,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	close(w.stop)
	<-w.done
	return w.fsw.Close()
}

func (w *Watcher) run() {
	defer close(w.done)

	var pending <-chan time.Time

	for {
		select {
		case <-w.stop:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.WithField("event", ev.Op.String()).Debug("project file changed")
			pending = time.After(debounceDelay)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watch error")

		case <-pending:
			pending = nil
			w.onChange()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
		return false
	}
	if info, err := os.Stat(w.path); err == nil && info.IsDir() {
		// Watching a project directory: any yaml change counts.
		return filepath.Ext(ev.Name) == ".yaml"
	}
	return filepath.Clean(ev.Name) == filepath.Clean(w.path)
}
