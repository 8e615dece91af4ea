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
	"sync"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// Repo is the in-process Collaborator backed by go-git.
type Repo struct {
	mu   sync.Mutex
	repo *gogit.Repository
	dir  string
}

var _ Collaborator = (*Repo)(nil)

// Open opens the repository whose worktree root is dir.
//
// Returns an error wrapping ErrNotRepository when dir is not a worktree
// root.
func Open(dir string) (*Repo, error) {
	r, err := gogit.PlainOpen(dir)
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, dir)
		}
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}
	return &Repo{repo: r, dir: dir}, nil
}

// Dir returns the worktree root.
func (r *Repo) Dir() string { return r.dir }

// Head implements Collaborator.
func (r *Repo) Head(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", ErrNoHead
		}
		return "", fmt.Errorf("getting HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// Diff implements Collaborator. Renames are detected by content
// similarity, the same way git diff -M does.
func (r *Repo) Diff(ctx context.Context, from, to string) ([]Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	fromTree, err := r.tree(from)
	if err != nil {
		return nil, err
	}
	toTree, err := r.tree(to)
	if err != nil {
		return nil, err
	}

	diff, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", from, to, err)
	}

	changes := make([]Change, 0, len(diff))
	for _, ch := range diff {
		action, err := ch.Action()
		if err != nil {
			return nil, fmt.Errorf("classify change: %w", err)
		}
		switch action {
		case merkletrie.Insert:
			changes = append(changes, Change{Path: ch.To.Name, Type: Added})
		case merkletrie.Delete:
			changes = append(changes, Change{Path: ch.From.Name, Type: Deleted})
		case merkletrie.Modify:
			if ch.From.Name != ch.To.Name {
				changes = append(changes, Change{Path: ch.To.Name, Type: Renamed, OldPath: ch.From.Name})
			} else {
				changes = append(changes, Change{Path: ch.To.Name, Type: Modified})
			}
		}
	}
	return sortChanges(changes), nil
}

// tree resolves rev to the tree of its commit.
func (r *Repo) tree(rev string) (*object.Tree, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRevisionUnreachable, rev, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRevisionUnreachable, rev, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: tree of %s: %v", ErrRevisionUnreachable, rev, err)
	}
	return tree, nil
}
