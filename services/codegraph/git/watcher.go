// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of writes one git operation makes.
const DefaultDebounce = 250 * time.Millisecond

// HeadWatcher watches a repository for HEAD movement.
//
// # Description
//
// Commits, checkouts, merges, and pulls rewrite HEAD, a branch ref, or
// packed-refs. The watcher observes the git directory and refs/heads and
// invokes the callback once per burst of changes.
//
// # Thread Safety
//
// Start must be called once. Stop is safe to call from any goroutine.
type HeadWatcher struct {
	gitDir   string
	watcher  *fsnotify.Watcher
	callback func()
	debounce time.Duration
	logger   *slog.Logger
}

// NewHeadWatcher creates a watcher for the git directory gitDir.
//
// # Inputs
//
//   - gitDir: Path to the .git directory. See GitDir for worktrees.
//   - callback: Invoked after HEAD may have moved. Must not be nil.
//   - logger: Receives watcher diagnostics. Nil uses slog.Default().
//
// # Outputs
//
//   - *HeadWatcher: Ready-to-start watcher.
//   - error: Non-nil if the watcher cannot be created.
func NewHeadWatcher(gitDir string, callback func(), logger *slog.Logger) (*HeadWatcher, error) {
	if callback == nil {
		return nil, errors.New("callback is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &HeadWatcher{
		gitDir:   gitDir,
		watcher:  watcher,
		callback: callback,
		debounce: DefaultDebounce,
		logger:   logger,
	}, nil
}

// Start watches until ctx is done or Stop is called. Run it in a goroutine.
//
// # Example
//
//	w, _ := git.NewHeadWatcher(gitDir, rerun, logger)
//	go w.Start(ctx)
func (w *HeadWatcher) Start(ctx context.Context) error {
	// git replaces HEAD through a lock file and rename, which drops a
	// watch on the file itself. Watch the directory instead.
	if err := w.watcher.Add(w.gitDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.gitDir, err)
	}
	heads := filepath.Join(w.gitDir, "refs", "heads")
	if _, err := os.Stat(heads); err == nil {
		if err := w.watcher.Add(heads); err != nil {
			w.logger.Debug("failed to watch refs/heads", slog.String("path", heads), slog.String("error", err.Error()))
		}
	}
	w.logger.Debug("watching git HEAD", slog.String("git_dir", w.gitDir))

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.logger.Info("git HEAD changed")
			w.callback()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("git HEAD watcher error", slog.String("error", err.Error()))

		case <-ctx.Done():
			w.logger.Debug("git HEAD watcher stopping")
			return nil
		}
	}
}

// relevant reports whether event can move HEAD.
func (w *HeadWatcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasSuffix(name, ".lock") {
		return false
	}
	if filepath.Dir(event.Name) == w.gitDir {
		return name == "HEAD" || name == "packed-refs"
	}
	return true
}

// Stop releases the watcher. Start returns once its channels close.
func (w *HeadWatcher) Stop() error {
	return w.watcher.Close()
}

// GitDir returns the git directory of the worktree rooted at root.
//
// # Description
//
// A linked worktree has a .git file, not a directory, containing
// "gitdir: <path>". The referenced path is returned, resolved against
// root when relative.
func GitDir(root string) (string, error) {
	gitPath := filepath.Join(root, ".git")
	info, err := os.Stat(gitPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotRepository, root)
	}
	if info.IsDir() {
		return gitPath, nil
	}

	content, err := os.ReadFile(gitPath)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(content))
	const prefix = "gitdir: "
	if !strings.HasPrefix(line, prefix) {
		return "", fmt.Errorf("%w: malformed .git file in %s", ErrNotRepository, root)
	}
	dir := strings.TrimPrefix(line, prefix)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return dir, nil
}
