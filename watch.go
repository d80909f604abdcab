package cdo

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventSource delivers filesystem change notifications.
type EventSource interface {
	Add(name string) error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Close() error
}

// fsnotifySource adapts *fsnotify.Watcher to EventSource.
type fsnotifySource struct {
	w *fsnotify.Watcher
}

func newFSNotifySource() (EventSource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return fsnotifySource{w: w}, nil
}

func (s fsnotifySource) Add(name string) error         { return s.w.Add(name) }
func (s fsnotifySource) Events() <-chan fsnotify.Event { return s.w.Events }
func (s fsnotifySource) Errors() <-chan error          { return s.w.Errors }
func (s fsnotifySource) Close() error                  { return s.w.Close() }

// watch runs target once and again after every change to it, until ctx ends.
// The parent directory is watched rather than the file itself because most
// editors save by replacing the file.
func (r *Router) watch(ctx context.Context, target string, args []string) error {
	newSource := r.Watcher
	if newSource == nil {
		newSource = newFSNotifySource
	}

	src, err := newSource()
	if err != nil {
		return r.fail(ioError("watch", target, err))
	}
	defer src.Close()

	if err := src.Add(filepath.Dir(target)); err != nil {
		return r.fail(ioError("watch", filepath.Dir(target), err))
	}

	fmt.Fprintf(r.stdout(), "Watching %s, press Ctrl+C to stop.\n", target)
	rerun := func() {
		if err := r.run(ctx, target, args); err != nil {
			r.logger().WithError(err).Debug("run failed while watching")
		}
	}

	rerun()
	r.watchLoop(ctx, src, target, rerun)
	return nil
}

// watchLoop calls rebuild once per burst of changes to target. Bursts are
// collapsed with Config.WatchDebounce; zero rebuilds on every event.
func (r *Router) watchLoop(ctx context.Context, src EventSource, target string, rebuild func()) {
	debounce := r.Config.WatchDebounce
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-src.Events():
			if !ok {
				return
			}
			if !isTargetEvent(ev, target) {
				continue
			}
			r.logger().WithField("event", ev.String()).Debug("source changed")
			if debounce <= 0 {
				rebuild()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-src.Errors():
			if !ok {
				return
			}
			r.logger().WithError(err).Warn("watch error")
		case <-fire:
			fire = nil
			rebuild()
		}
	}
}

// isTargetEvent reports whether ev means target has new content.
func isTargetEvent(ev fsnotify.Event, target string) bool {
	if filepath.Clean(ev.Name) != filepath.Clean(target) {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)
}
