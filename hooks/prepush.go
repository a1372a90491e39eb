// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hooks

import (
	"context"
	"fmt"
	"io"
	"os"

	"ggshield/commitrange"
	"ggshield/resulttree"
)

// PrePush scans the commits about to be pushed. remoteName is the hook's
// first argument. A nil tree with a nil error means nothing to scan: empty
// stdin, a deletion event, or no new commits.
func (d *Driver) PrePush(ctx context.Context, remoteName string, stdin io.Reader) (*resulttree.SecretScanCollection, error) {
	oldRef, newRef, ok, err := d.prePushRefs(ctx, remoteName, stdin)
	if err != nil || !ok {
		return nil, err
	}
	shas, err := d.newCommits(ctx, oldRef, newRef)
	if err != nil {
		return nil, err
	}
	if len(shas) == 0 {
		return nil, nil
	}
	shas, dropped := commitrange.TruncateForHook(shas, d.Cfg)
	if dropped > 0 {
		fmt.Fprintf(d.stderr(), "Too many commits to scan: only scanning the most recent %d (%d skipped)\n", len(shas), dropped)
	}
	return d.Range.Scan(ctx, shas)
}

// prePushRefs resolves the (old, new) pair to scan between. The pre-commit
// framework's PRE_COMMIT_FROM_REF/PRE_COMMIT_TO_REF (or the legacy
// PRE_COMMIT_SOURCE/PRE_COMMIT_ORIGIN names) override stdin entirely.
func (d *Driver) prePushRefs(ctx context.Context, remoteName string, stdin io.Reader) (oldRef, newRef string, ok bool, err error) {
	newRef = firstEnv("PRE_COMMIT_FROM_REF", "PRE_COMMIT_SOURCE")
	oldRef = firstEnv("PRE_COMMIT_TO_REF", "PRE_COMMIT_ORIGIN")
	if newRef != "" && oldRef != "" {
		return oldRef, newRef, true, nil
	}

	upd, parsed, discarded := ParsePrePushStdin(stdin)
	if !parsed {
		// Empty stdin: nothing pushed, exit 0, no network.
		return "", "", false, nil
	}
	if discarded > 0 {
		d.SC.Log.WithField("lines", discarded).Debug("extra pre-push stdin lines ignored")
	}
	if upd.NewSHA == ZeroSHA {
		// Branch deletion: nothing to scan.
		return "", "", false, nil
	}
	if upd.OldSHA == ZeroSHA || !d.Repo.IsReachable(ctx, upd.OldSHA) {
		// New branch, or a force-push that rewrote the remote's old sha out
		// of history: scan from the first local-only commit's parent.
		start, err := d.findBranchStart(ctx, upd.NewSHA, "--remotes="+remoteName)
		if err != nil {
			return "", "", false, err
		}
		return start, upd.NewSHA, true, nil
	}
	return upd.OldSHA, upd.NewSHA, true, nil
}

// findBranchStart walks "git rev-list <sha> --not <exclude>" to the first
// commit not known to the other side and returns its parent, or the
// empty-tree sentinel when that parent does not exist. When every commit is
// already known it returns sha itself, so the range to scan is empty.
func (d *Driver) findBranchStart(ctx context.Context, sha, exclude string) (string, error) {
	shas, err := d.Repo.RevList(ctx, sha, "--not", exclude)
	if err != nil {
		return "", err
	}
	if len(shas) == 0 {
		return sha, nil
	}
	first := shas[len(shas)-1]
	parent, err := d.Repo.RevParseVerify(ctx, first+"^")
	if err != nil {
		return EmptyTreeSHA, nil
	}
	return parent, nil
}

// newCommits lists the commits in old..new, oldest first, so scans and
// reports run in chronological order.
func (d *Driver) newCommits(ctx context.Context, oldRef, newRef string) ([]string, error) {
	var shas []string
	var err error
	if oldRef == EmptyTreeSHA {
		shas, err = d.Repo.RevList(ctx, newRef)
	} else {
		shas, err = d.Repo.RevList(ctx, newRef, "--not", oldRef)
	}
	if err != nil {
		return nil, err
	}
	reverse(shas)
	return shas, nil
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}
