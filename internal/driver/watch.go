package driver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces editor save bursts into one re-run.
const watchDebounce = 200 * time.Millisecond

// Watch re-analyzes the project whenever a source file or the manifest
// changes, invoking onResult after every run (including the first). It
// blocks until ctx is done.
func Watch(ctx context.Context, fe Frontend, opts Options, onResult func(*Result, error)) error {
	// Progress channels are single-run; Analyze closes them.
	opts.Events = nil

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := watchTree(w, opts.Config.Root); err != nil {
		return err
	}

	run := func() {
		res, err := Analyze(ctx, fe, opts)
		onResult(res, err)
	}
	run()

	var timer *time.Timer
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(ev) {
				continue
			}
			// New directories need their own watch.
			if ev.Op.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = watchTree(w, ev.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			run()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			onResult(nil, err)
		}
	}
}

func watchTree(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		if name := fi.Name(); strings.HasPrefix(name, ".") && path != root {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func relevantEvent(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) &&
		!ev.Op.Has(fsnotify.Remove) && !ev.Op.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(ev.Name)
	if base == "mantis.toml" {
		return true
	}
	if strings.HasSuffix(base, ".xp") {
		return true
	}
	// Directory events matter for new source trees.
	fi, err := os.Stat(ev.Name)
	return err == nil && fi.IsDir()
}
