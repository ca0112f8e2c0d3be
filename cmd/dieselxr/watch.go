package main

import (
	"log/slog"
	"path/filepath"

	"github.com/andewx/dieselxr"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// watchLogLevel reloads path whenever it is written and applies its log level.
// Other settings need a restart. The returned func stops the watcher.
func watchLogLevel(path string, level *slog.LevelVar) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "config watcher")
	}
	// editors replace the file, so watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, errors.Wrap(err, "watch config dir")
	}
	name := filepath.Clean(path)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != name ||
					event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := dieselxr.LoadConfig(path)
				if err != nil {
					dieselxr.Logger().Warn("config reload failed", "err", err)
					continue
				}
				if l := cfg.LogLevel(); l != level.Level() {
					level.Set(l)
					dieselxr.Logger().Info("log level changed", "level", l)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				dieselxr.Logger().Warn("config watcher", "err", err)
			}
		}
	}()
	return func() { watcher.Close() }, nil
}
