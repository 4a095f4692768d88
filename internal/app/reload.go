package app

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"lucarne/internal/config"
	"lucarne/internal/metrics"
	"lucarne/internal/web"
)

// Reload re-reads the configuration file and applies it. A file that
// fails to parse or validate is rejected wholesale; the running
// configuration stays untouched.
func (a *App) Reload() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		metrics.ConfigReloadsTotal.WithLabelValues("rejected").Inc()
		log.Errorf("Reload rejected, keeping previous configuration: %v", err)
		return err
	}

	a.store.Replace(cfg)
	a.reconcileCameras(cfg)
	a.publisher.AnnounceCameras(cameraNames(cfg))
	if err := web.WriteMetadata(cfg, a.layout, cfg.Global.WorkDir); err != nil {
		log.Warnf("cameras.json update failed: %v", err)
	}

	metrics.ConfigReloadsTotal.WithLabelValues("applied").Inc()
	log.Infof("Configuration reloaded, %d cameras active", len(cameraNames(cfg)))
	return nil
}

// watchReloads triggers Reload on SIGHUP and on changes to the config
// file. Editors replace files with rename-over, so the parent directory
// is watched and events debounced.
func (a *App) watchReloads(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var watchCh chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warnf("Config file watch unavailable: %v", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(a.cfgPath)); err != nil {
			log.Warnf("Config file watch unavailable: %v", err)
		} else {
			watchCh = make(chan fsnotify.Event, 8)
			go func() {
				for {
					select {
					case ev, ok := <-watcher.Events:
						if !ok {
							return
						}
						if filepath.Clean(ev.Name) == filepath.Clean(a.cfgPath) {
							select {
							case watchCh <- ev:
							default:
							}
						}
					case werr, ok := <-watcher.Errors:
						if !ok {
							return
						}
						log.Warnf("Config watcher error: %v", werr)
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	}

	var debounce *time.Timer
	var debounceCh <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			log.Info("SIGHUP received, reloading configuration")
			a.Reload()
		case <-watchCh:
			// Collapse the burst of events one file save produces.
			if debounce == nil {
				debounce = time.NewTimer(500 * time.Millisecond)
				debounceCh = debounce.C
			} else {
				debounce.Reset(500 * time.Millisecond)
			}
		case <-debounceCh:
			log.Infof("Config file %s changed, reloading", a.cfgPath)
			a.Reload()
		}
	}
}
