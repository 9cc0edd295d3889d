package app

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 500 * time.Millisecond

// StaticChecks lists the ids of checks that need no kernel, restricted to
// only when it is non-empty.
func (a *App) StaticChecks(only []string) []string {
	var ids []string
	for _, c := range a.suite.Checks {
		if slices.Contains(execTypes, c.Type) {
			continue
		}
		if len(only) > 0 && !slices.Contains(only, c.ID) {
			continue
		}
		ids = append(ids, c.ID)
	}
	return ids
}

// Watch grades the static checks once, then again after each burst of
// artifact changes, until ctx is done.
func (a *App) Watch(ctx context.Context, only []string, debounce time.Duration, onResult func(CheckOutcome)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ids := a.StaticChecks(only)
	if len(ids) == 0 {
		return fmt.Errorf("suite %s has no static checks to watch", a.suite.SuiteID)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	for _, dir := range watchDirs(a.loc) {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		a.console.Debug("watching", "dir", dir)
	}

	var last string
	grade := func() error {
		out, err := a.Check(ctx, ids)
		if err != nil {
			return err
		}
		last = out.Inputs
		onResult(out)
		return nil
	}
	if err := grade(); err != nil {
		return err
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
					_ = w.Add(event.Name)
				}
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			a.logger.Error("watch.error", map[string]any{"error": err.Error()})
		case <-timer.C:
			digest, err := digestInputs(a.loc, a.suite.SuiteID, ids)
			if err == nil && digest == last {
				continue
			}
			a.logger.Info("watch.changed", map[string]any{"inputs": digest})
			if err := grade(); err != nil {
				return err
			}
		}
	}
}
