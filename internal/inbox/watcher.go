package inbox

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reconcileDelay = 200 * time.Millisecond

// Watch processes inbox file events until ctx is cancelled.
//
// New directories created at runtime are added to the watch list. Rename
// events trigger a debounced Sync that removes artifacts whose files moved
// away and exposes files that arrived without a Create event.
func (in *Ingester) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := in.store.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	in.logger.Info("inbox: watching", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			in.logger.Info("inbox: stopped")
			return nil

		case <-reconcileCh:
			if err := in.Sync(ctx); err != nil {
				in.logger.Warn("inbox: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						in.logger.Warn("inbox: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					// Files may have landed before the watch was added.
					scheduleReconcile()
					continue
				}
			}

			if !in.store.Matches(ev.Name) {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := in.store.Read(rel)
				if readErr != nil {
					in.logger.Warn("inbox: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
					continue
				}
				if _, expErr := in.ingest(ctx, rel, data); expErr != nil {
					in.logger.Warn("inbox: expose failed", slog.String("path", rel), slog.String("error", expErr.Error()))
				}

			case ev.Op&fsnotify.Remove != 0:
				in.forget(ctx, rel)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports only the old path; the new one arrives
				// as a Create when it stays inside a watched directory.
				in.forget(ctx, rel)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
