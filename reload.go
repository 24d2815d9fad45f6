package main

import (
	"context"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/fsnotify.v1"
)

// watchConfig restarts the monitors whenever the config file changes.
// An invalid new configuration is logged and ignored; the running
// monitors keep their current settings.
func watchConfig(ctx context.Context, path string, sup *supervisor) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Errorf("cannot watch config file: %v", err)
		return
	}
	defer watcher.Close()

	// watch the directory: editors and config management tools often
	// replace the file instead of writing it in place
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		log.Errorf("cannot watch config file: %v", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-watcher.Events:
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			log.Infoln("config file changed, reloading")
			cfg, err := loadConfig()
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				log.Errorf("ignoring invalid configuration: %v", err)
				continue
			}

			if err := sup.apply(cfg); err != nil {
				log.Errorf("could not apply new configuration: %v", err)
			}
		case err := <-watcher.Errors:
			log.Errorf("config watch error: %v", err)
		}
	}
}
