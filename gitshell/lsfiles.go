// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gitshell

import "context"

// LsFiles lists the files in the index (empty ref); with a ref, paths that
// exist at ref but are no longer in the index are listed too.
func (r *Repo) LsFiles(ctx context.Context, ref string) ([]string, error) {
	args := []string{"ls-files", "-z"}
	if ref != "" {
		args = append(args, "--with-tree="+ref)
	}
	return r.CaptureNULList(ctx, args...)
}

// LsFilesRecurseSubmodules lists every tracked file including those inside
// submodules. This walk can be slow on large trees, hence the 600s timeout
// budget.
func (r *Repo) LsFilesRecurseSubmodules(ctx context.Context) ([]string, error) {
	out, code, err := r.CaptureLong(ctx, "ls-files", "-z", "--recurse-submodules")
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, classify([]string{"ls-files", "--recurse-submodules"}, out, nil)
	}
	return splitNUL(out), nil
}

// RevList runs "git rev-list" with the given extra args, used by the
// pre-push driver to find the first local-only commit on a new branch
//: RevList(ctx, localSHA, "--not", "--remotes="+remote).
func (r *Repo) RevList(ctx context.Context, sha string, extra ...string) ([]string, error) {
	args := append([]string{"rev-list", sha}, extra...)
	out, code, err := r.Capture(ctx, args...)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, classify(args, out, nil)
	}
	if out == "" {
		return nil, nil
	}
	var shas []string
	for _, line := range splitLines(out) {
		if line != "" {
			shas = append(shas, line)
		}
	}
	return shas, nil
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
