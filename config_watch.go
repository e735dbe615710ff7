package fieldbus

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// _globalConfiguration is the global-level configuration file.
// Do not write to this outside of MonitorConfig or tests.
var (
	_globalConfiguration *Configuration
	_globalConfMX        sync.RWMutex
)

func globalConfiguration() *Configuration {
	_globalConfMX.RLock()
	defer _globalConfMX.RUnlock()

	return _globalConfiguration
}

func setGlobalConfiguration(conf *Configuration) {
	_globalConfMX.Lock()
	_globalConfiguration = conf
	_globalConfMX.Unlock()
}

// MonitorConfig checks filepath for new changes and updates the global
// configuration on changes. It blocks, so run it on its own goroutine.
func MonitorConfig(lg *zap.SugaredLogger, path string, initial *Configuration) {
	setGlobalConfiguration(initial)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		lg.Warnw("unable to create new watcher to monitor for configuration changes", "error", err.Error())
		return
	}

	defer func() {
		_ = watcher.Close()
	}()

	if err = watcher.Add(path); err != nil {
		lg.Warnw("unable to add file to monitor for configuration changes", "error", err.Error())
		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				lg.Warnw("watcher to monitor for configuration changes shutting down")
				return
			}

			lg.Debugw("configuration file event detected", "event", event.String())

			// editors that replace the file show up as remove, so re-arm
			// the watch in that case
			// https://github.com/fsnotify/fsnotify/issues/92
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Remove == fsnotify.Remove {
				lg.Debug("configuration change detected")

				if conf, lerr := LoadConfig(path); lerr == nil {
					setGlobalConfiguration(&conf)
				} else {
					lg.Warnw("unable to load configuration upon change", "error", lerr.Error())
				}

				if event.Op&fsnotify.Remove == fsnotify.Remove {
					_ = watcher.Remove(path)

					if err = watcher.Add(path); err != nil {
						lg.Warnw("unable to add file to monitor for configuration changes", "error", err.Error())
						return
					}
				}
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				lg.Warnw("watcher to monitor for configuration changes shutting down")
				return
			}

			lg.Warnw("error watching configuration file", "error", werr.Error())
		}
	}
}
