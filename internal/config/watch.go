package config

import (
	"github.com/fsnotify/fsnotify"
)

// Watch watches directory's project-local .tark/ tree for config and
// plugin changes and invokes onChange on every write, create, remove
// or rename event; events are not debounced. The caller owns the returned watcher's lifetime and must
// Close it to stop watching.
func Watch(directory string, onChange func()) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	projectDir := ProjectDir(directory)
	if err := watcher.Add(projectDir); err != nil {
		watcher.Close()
		return nil, err
	}
	_ = watcher.Add(ProjectAgentsDir(directory))

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					onChange()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher, nil
}
