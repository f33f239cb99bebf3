package main

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const configReloadDelay = 250 * time.Millisecond

// watchConfig re-reads the config file whenever it changes and hands the
// log section to apply. Other settings only take effect on restart; a
// change to them is reported. It returns when ctx is done.
func watchConfig(ctx context.Context, running Config, log Logger, apply func(logConfig)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Editors often replace the file, so watch the directory.
	dir := filepath.Dir(running.path)
	file := filepath.Base(running.path)
	if err := w.Add(dir); err != nil {
		return err
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		cfg := defaultConfig()
		if err := loadConfigFile(running.path, &cfg); err != nil {
			log.Warn("config reload failed", String("path", running.path), Err(err))
			return
		}
		if !validLevel(cfg.Log.Level) {
			log.Warn("config reload rejected", String("path", running.path), String("level", cfg.Log.Level))
			return
		}
		if restartRequired(running, cfg) {
			log.Warn("config change needs a restart to take effect", String("path", running.path))
		}
		apply(cfg.Log)
		log.Info("log settings reloaded", String("level", cfg.Log.Level), String("format", cfg.Log.Format))
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(configReloadDelay, reload)
			timerMu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watch error", Err(err))
		}
	}
}

// restartRequired reports whether next differs from running in anything
// other than logging. Positional arguments override the file, so only
// file-sourced values are compared.
func restartRequired(running, next Config) bool {
	a, b := running, next
	a.Log, b.Log = logConfig{}, logConfig{}
	a.path, b.path = "", ""
	if b.Port == "" {
		b.Port = a.Port
	}
	if len(b.Command) == 0 {
		b.Command = a.Command
	}
	return !reflect.DeepEqual(a, b)
}
