package config

import (
	"github.com/rjeczalik/notify"
)

// Watch reloads path whenever it changes on disk and delivers the
// freshly parsed Config to onChange. It runs until stop is closed.
// Parse errors on reload are swallowed (the process keeps running on
// its last-known-good config) rather than torn down by a malformed
// edit in progress.
func Watch(path string, stop <-chan struct{}, onChange func(Config)) error {
	events := make(chan notify.EventInfo, 1)
	if err := notify.Watch(path, events, notify.Write); err != nil {
		return err
	}
	go func() {
		defer notify.Stop(events)
		for {
			select {
			case <-stop:
				return
			case <-events:
				cfg, err := Load(path)
				if err != nil {
					continue
				}
				onChange(cfg)
			}
		}
	}()
	return nil
}
