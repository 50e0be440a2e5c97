package inode

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch reloads the manifest at path into live whenever the file is
// rewritten.  A manifest that fails to load is logged and the old
// table stays in place.  The returned channel is closed once ctx is
// done and the watcher has shut down.
func Watch(ctx context.Context, path string, live *Live) (done <-chan struct{}, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	// watch the directory; SaveManifest replaces the file by rename
	err = watcher.Add(filepath.Dir(path))
	if err != nil {
		watcher.Close()
		return
	}

	ch := make(chan struct{})
	go func() {
		defer close(ch)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
					continue
				}
				reload(path, live)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("watch %s: %v", path, err)
			}
		}
	}()
	return ch, nil
}

func reload(path string, live *Live) {
	t, err := LoadManifest(path)
	if err != nil {
		log.Warnf("keeping old namespace: %v", err)
		return
	}
	live.Swap(t)
	log.WithField("manifest", path).Infof("reloaded %d records", len(t.Records()))
}
