package intents

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/example/court-scheduler/internal/internaltypes"
)

// Debounce absorbs the burst of events editors emit for one save.
const Debounce = 250 * time.Millisecond

// Watch reconciles path whenever it changes and calls onChange after every
// reconciliation that succeeded, until ctx is done. The directory is watched
// so that editors replacing the file by rename are seen. Store errors end
// the watch.
func (l *Loader) Watch(ctx context.Context, path string, onChange func(Report)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return internaltypes.Wrap(err, "intent watcher")
	}
	defer w.Close()

	dir, file := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		return internaltypes.Wrapf(err, "watch %s", dir)
	}
	l.log.Infow("watching intents", "path", path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return internaltypes.New("intent watcher closed")
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = l.clock.After(Debounce)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return internaltypes.New("intent watcher closed")
			}
			l.log.Warnw("intent watch error", "error", err)

		case <-pending:
			pending = nil
			rep, err := l.LoadFile(ctx, path)
			switch {
			case err == nil:
				if onChange != nil {
					onChange(rep)
				}
			case internaltypes.Is(err, internaltypes.ErrStoreUnavailable):
				return err
			default:
				// Half-written or unreadable file; the next event retries.
				l.log.Warnw("intent reload failed", "path", path, "error", err.Error())
			}
		}
	}
}
