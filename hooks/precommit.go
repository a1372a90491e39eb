// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hooks

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"ggshield/commitmodel"
	"ggshield/resulttree"
)

// PreCommit scans the staging area. During a merge, with
// skip_unchanged_merge_files set, only the files the merge resolution
// touched are scanned. A SKIP list naming ggshield short-circuits to a nil
// tree, which maps to exit 0.
func (d *Driver) PreCommit(ctx context.Context) (*resulttree.SecretScanCollection, error) {
	if SkipRequested(os.Getenv("SKIP")) {
		return nil, nil
	}

	var commit *commitmodel.Commit
	var err error
	if d.Cfg.SkipUnchangedMergeFiles && d.inMerge(ctx) {
		commit, err = commitmodel.FromMerge(ctx, d.Repo, "MERGE_HEAD")
	} else {
		commit, err = commitmodel.FromStaged(ctx, d.Repo)
	}
	if err != nil {
		return nil, err
	}

	files, err := commit.GetFiles(ctx, d.Exclusion)
	if err != nil {
		return nil, err
	}
	results, err := d.Secrets.Scan(ctx, files)
	if err != nil {
		return nil, err
	}
	return &resulttree.SecretScanCollection{
		ID:      "pre-commit",
		Type:    "pre-commit",
		Results: &results,
	}, nil
}

// inMerge reports whether the working tree is mid-merge: MERGE_HEAD exists
// in the .git directory, or git itself says so via GIT_REFLOG_ACTION (set
// for "git merge --no-ff" style invocations that commit directly).
func (d *Driver) inMerge(ctx context.Context) bool {
	if strings.HasPrefix(os.Getenv("GIT_REFLOG_ACTION"), "merge") {
		return true
	}
	gitDir, err := d.Repo.GitDir(ctx)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(gitDir, "MERGE_HEAD"))
	return err == nil
}
