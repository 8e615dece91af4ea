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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// CLI is the Collaborator backed by the git binary.
//
// It sees everything the user's git sees: partial clones, alternates,
// and repository formats go-git does not read.
type CLI struct {
	dir    string
	binary string
}

var _ Collaborator = (*CLI)(nil)

// NewCLI returns a collaborator running git in dir.
//
// Returns an error wrapping ErrNotRepository when dir is not inside a
// repository, or when the git binary is missing.
func NewCLI(ctx context.Context, dir string) (*CLI, error) {
	binary, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git binary not found: %w", err)
	}
	c := &CLI{dir: dir, binary: binary}
	if _, err := c.run(ctx, "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotRepository, dir, err)
	}
	return c, nil
}

// Head implements Collaborator.
func (c *CLI) Head(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "rev-parse", "--verify", "-q", "HEAD^{commit}")
	if err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			return "", ErrNoHead
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Diff implements Collaborator.
func (c *CLI) Diff(ctx context.Context, from, to string) ([]Change, error) {
	for _, rev := range []string{from, to} {
		if _, err := c.run(ctx, "rev-parse", "--verify", "-q", rev+"^{commit}"); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s", ErrRevisionUnreachable, rev)
		}
	}
	out, err := c.run(ctx,
		"-c", "core.quotePath=false",
		"diff", "--no-color", "--no-ext-diff", "--find-renames",
		"--src-prefix=a/", "--dst-prefix=b/",
		from, to)
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", from, to, err)
	}
	return parseDiff([]byte(out))
}

func (c *CLI) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = c.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return stdout.String(), nil
}

// parseDiff classifies the files of a multi-file unified diff as produced
// by git diff -M.
func parseDiff(patch []byte) ([]Change, error) {
	if len(bytes.TrimSpace(patch)) == 0 {
		return nil, nil
	}
	files, err := diff.NewMultiFileDiffReader(bytes.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}
	changes := make([]Change, 0, len(files))
	for _, fd := range files {
		ch, ok := classify(fd)
		if ok {
			changes = append(changes, ch)
		}
	}
	return sortChanges(changes), nil
}

const devNull = "/dev/null"

func classify(fd *diff.FileDiff) (Change, bool) {
	var (
		renameFrom, renameTo string
		created, deleted     bool
		headerOld, headerNew string
	)
	for _, line := range fd.Extended {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			headerOld, headerNew = gitLinePaths(strings.TrimPrefix(line, "diff --git "))
		case strings.HasPrefix(line, "rename from "):
			renameFrom = strings.TrimPrefix(line, "rename from ")
		case strings.HasPrefix(line, "rename to "):
			renameTo = strings.TrimPrefix(line, "rename to ")
		case strings.HasPrefix(line, "new file mode"):
			created = true
		case strings.HasPrefix(line, "deleted file mode"):
			deleted = true
		}
	}

	oldPath := stripPrefix(fd.OrigName, "a/")
	newPath := stripPrefix(fd.NewName, "b/")
	if oldPath == "" {
		oldPath = headerOld
	}
	if newPath == "" {
		newPath = headerNew
	}

	switch {
	case renameFrom != "" && renameTo != "":
		return Change{Path: renameTo, Type: Renamed, OldPath: renameFrom}, true
	case created || fd.OrigName == devNull:
		return Change{Path: newPath, Type: Added}, newPath != ""
	case deleted || fd.NewName == devNull:
		return Change{Path: oldPath, Type: Deleted}, oldPath != ""
	default:
		return Change{Path: newPath, Type: Modified}, newPath != ""
	}
}

func stripPrefix(name, prefix string) string {
	if name == devNull {
		return ""
	}
	return strings.TrimPrefix(name, prefix)
}

// gitLinePaths splits "a/x b/y" from a diff --git header. Paths that
// contain " b/" are ambiguous; the ---/+++ names take precedence anyway.
func gitLinePaths(s string) (string, string) {
	i := strings.LastIndex(s, " b/")
	if i < 0 || !strings.HasPrefix(s, "a/") {
		return "", ""
	}
	return s[len("a/"):i], s[i+len(" b/"):]
}
