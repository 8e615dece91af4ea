// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manifest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	ignore "github.com/sabhiram/go-gitignore"
)

// PackageFile is the dependency manifest file name.
const PackageFile = "package.json"

// GitignoreFile is the ignore rules file name.
const GitignoreFile = ".gitignore"

// Result is the outcome of a scan.
type Result struct {
	// Root is the absolute project root.
	Root string `json:"root"`

	// Files are the included source files, slash-separated, relative to
	// Root, in lexical order.
	Files []string `json:"files"`

	// Packages are the package.json files outside excluded directories.
	Packages []string `json:"packages"`

	// Errors are non-fatal problems encountered while walking.
	Errors []ScanError `json:"errors,omitempty"`
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithIncludes replaces the include globs.
func WithIncludes(patterns ...string) Option {
	return func(s *Scanner) { s.includes = patterns }
}

// WithExcludes replaces the exclude globs.
func WithExcludes(patterns ...string) Option {
	return func(s *Scanner) { s.excludes = patterns }
}

// WithGitignore enables or disables .gitignore handling.
func WithGitignore(respect bool) Option {
	return func(s *Scanner) { s.gitignore = respect }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scanner discovers source files.
//
// Symlinks are never followed, so a scan cannot leave the project root or
// loop.
type Scanner struct {
	includes  []string
	excludes  []string
	gitignore bool
	matcher   *GlobMatcher
	logger    *slog.Logger
}

// NewScanner creates a Scanner. Defaults: DefaultIncludes,
// DefaultExcludes, .gitignore respected.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		includes:  DefaultIncludes,
		excludes:  DefaultExcludes,
		gitignore: true,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.matcher = NewGlobMatcher(s.includes, s.excludes)
	return s
}

// Scan walks root and returns the included files.
//
// Description:
//
//	Directories matched by an exclude glob or a .gitignore rule are not
//	entered. Unreadable entries are recorded in Result.Errors and the walk
//	continues.
//
// Outputs:
//
//	*Result - The discovered files.
//	error - Non-nil when root is invalid or ctx is done.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	abs, err := validateRoot(root)
	if err != nil {
		return nil, err
	}

	res := &Result{Root: abs}
	rules := newIgnoreSet(abs, s.gitignore)
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return walkErr
		}
		if walkErr != nil {
			res.Errors = append(res.Errors, ScanError{Path: rel, Err: walkErr})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || s.matcher.ExcludesDir(rel) || rules.ignored(rel, true) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || rules.ignored(rel, false) {
			return nil
		}
		if d.Name() == PackageFile {
			res.Packages = append(res.Packages, rel)
			return nil
		}
		if s.matcher.Match(rel) {
			res.Files = append(res.Files, rel)
		}
		return nil
	})
	res.Errors = append(res.Errors, rules.errors()...)
	if err != nil {
		return res, fmt.Errorf("scan %s: %w", abs, err)
	}

	s.logger.Debug("scan complete",
		slog.String("root", abs),
		slog.Int("files", len(res.Files)),
		slog.Int("packages", len(res.Packages)),
		slog.Int("errors", len(res.Errors)))
	return res, nil
}

// Filter applies a Scanner's rules to individual paths, for change sets
// that did not come from a walk.
type Filter struct {
	scanner *Scanner
	root    string
	rules   *ignoreSet
}

// NewFilter returns a Filter for the project at root.
func (s *Scanner) NewFilter(root string) (*Filter, error) {
	abs, err := validateRoot(root)
	if err != nil {
		return nil, err
	}
	return &Filter{scanner: s, root: abs, rules: newIgnoreSet(abs, s.gitignore)}, nil
}

// Accept reports whether a full scan would include the file at rel.
func (f *Filter) Accept(rel string) bool {
	rel = path.Clean(filepath.ToSlash(rel))
	if strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return false
	}
	if !f.scanner.matcher.Match(rel) {
		return false
	}
	dir := path.Dir(rel)
	for _, ancestor := range ancestors(dir) {
		if path.Base(ancestor) == ".git" || f.scanner.matcher.ExcludesDir(ancestor) || f.rules.ignored(ancestor, true) {
			return false
		}
	}
	if info, err := os.Lstat(filepath.Join(f.root, filepath.FromSlash(rel))); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		return false
	}
	return !f.rules.ignored(rel, false)
}

// IsProjectMetadata reports whether rel is a file whose change affects
// how every other file is discovered or linked.
func IsProjectMetadata(rel string) bool {
	base := path.Base(filepath.ToSlash(rel))
	return base == PackageFile || base == GitignoreFile
}

func validateRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, abs)
	}
	return abs, nil
}

// ancestors returns "a", "a/b", "a/b/c" for "a/b/c". "." yields nothing.
func ancestors(dir string) []string {
	if dir == "." || dir == "" {
		return nil
	}
	parts := strings.Split(dir, "/")
	out := make([]string, len(parts))
	for i := range parts {
		out[i] = strings.Join(parts[:i+1], "/")
	}
	return out
}

// ignoreSet holds the compiled .gitignore of every directory visited.
type ignoreSet struct {
	root    string
	enabled bool

	mu    sync.Mutex
	byDir map[string]*ignore.GitIgnore
	errs  []ScanError
}

func newIgnoreSet(root string, enabled bool) *ignoreSet {
	return &ignoreSet{root: root, enabled: enabled, byDir: make(map[string]*ignore.GitIgnore)}
}

// rulesFor returns the rules declared in dir, or nil.
func (s *ignoreSet) rulesFor(dir string) *ignore.GitIgnore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gi, ok := s.byDir[dir]; ok {
		return gi
	}
	file := filepath.Join(s.root, filepath.FromSlash(dir), GitignoreFile)
	gi, err := ignore.CompileIgnoreFile(file)
	if err != nil {
		gi = nil
		if !errors.Is(err, fs.ErrNotExist) {
			s.errs = append(s.errs, ScanError{Path: path.Join(dir, GitignoreFile), Err: err})
		}
	}
	s.byDir[dir] = gi
	return gi
}

// ignored reports whether any .gitignore between the root and rel's
// directory matches rel.
func (s *ignoreSet) ignored(rel string, isDir bool) bool {
	if !s.enabled {
		return false
	}
	dirs := append([]string{"."}, ancestors(path.Dir(rel))...)
	for _, dir := range dirs {
		gi := s.rulesFor(dir)
		if gi == nil {
			continue
		}
		sub := rel
		if dir != "." {
			sub = strings.TrimPrefix(rel, dir+"/")
		}
		if gi.MatchesPath(sub) || (isDir && gi.MatchesPath(sub+"/")) {
			return true
		}
	}
	return false
}

func (s *ignoreSet) errors() []ScanError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ScanError(nil), s.errs...)
}
