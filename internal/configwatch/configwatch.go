// Package configwatch reloads the on-disk configuration file whenever
// it changes, the same fsnotify event-loop shape the teacher's
// watcher package uses to pick up new files in a media folder, here
// pointed at a single config file instead of a directory of uploads.
package configwatch

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/warpcomdev/ustreamerd/internal/servicelog"
)

// Watch blocks until stopCh is closed, calling onChange every time the
// file at path is written or recreated (editors commonly replace a
// file rather than write it in place, hence watching the parent
// directory and filtering by basename).
func Watch(path string, onChange func(), log servicelog.Logger, stopCh <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error("configwatch: failed to create watcher", servicelog.Error(err))
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := watcher.Add(dir); err != nil {
		log.Error("configwatch: failed to watch directory", servicelog.String("dir", dir), servicelog.Error(err))
		return err
	}

	var (
		debounce *time.Timer
		fire     = make(chan struct{}, 1)
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-stopCh:
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("configwatch: watcher error", servicelog.Error(err))
		case <-fire:
			log.Info("configwatch: reloading", servicelog.String("path", path))
			onChange()
		}
	}
}
