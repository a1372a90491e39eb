// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gitshell is the thin process-level wrapper around the "git"
// executable that everything above it builds on.
package gitshell

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"ggshield/internal"
)

// ErrKind distinguishes the handful of ways a git invocation can fail that
// callers care about: usage-level failures (not a repo, dubious
// ownership) versus timeouts and everything else.
type ErrKind int

const (
	ErrOther ErrKind = iota
	ErrTimeout
	ErrNotAGitRepo
	ErrDubiousOwnership
)

// Error wraps a failed git invocation with its classified kind.
type Error struct {
	Kind ErrKind
	Args []string
	Out  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("git %s: %v\n%s", strings.Join(e.Args, " "), e.Err, e.Out)
}

func (e *Error) Unwrap() error { return e.Err }

func classify(args []string, out string, err error) *Error {
	k := ErrOther
	switch {
	case err != nil && strings.Contains(err.Error(), "timed out"):
		k = ErrTimeout
	case strings.Contains(out, "not a git repository"):
		k = ErrNotAGitRepo
	case strings.Contains(out, "detected dubious ownership"):
		k = ErrDubiousOwnership
	}
	return &Error{Kind: k, Args: args, Out: out, Err: err}
}

// Repo is a handle on one git checkout, shelling out to the git binary for
// every operation. It is safe for concurrent use; the only mutable state
// (gitDir) is guarded by a mutex.
type Repo struct {
	root string
	git  string

	mu     sync.Mutex
	gitDir string
}

// Open resolves the git checkout root containing wd and returns a Repo
// rooted there. It rejects a git binary that isn't actually on PATH,
// which inside a hostile repository could be the repository's own.
func Open(ctx context.Context, wd string) (*Repo, error) {
	gitBin, err := internal.ResolveGitBinary()
	if err != nil {
		return nil, err
	}
	root, err := internal.CaptureAbs(ctx, wd, gitBin, "rev-parse", "--show-cdup")
	if err != nil {
		return nil, classify([]string{"rev-parse", "--show-cdup"}, "", err)
	}
	return &Repo{root: root, git: gitBin}, nil
}

// Root returns the checkout's top-level directory.
func (r *Repo) Root() string { return r.root }

// GitDir returns the ".git" directory path, resolving and caching it once.
func (r *Repo) GitDir(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gitDir == "" {
		d, err := internal.CaptureAbs(ctx, r.root, r.git, "rev-parse", "--git-dir")
		if err != nil {
			return "", fmt.Errorf("failed to find .git dir: %w", err)
		}
		r.gitDir = d
	}
	return r.gitDir, nil
}

// HookPath returns the directory the git-hook drivers install into.
func (r *Repo) HookPath(ctx context.Context) (string, error) {
	d, err := r.GitDir(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "hooks"), nil
}

// Capture runs "git <args...>" from the repo root and returns trimmed
// stdout, the exit code, and an error only on timeout/launch failure (a
// non-zero exit is reported via the returned code, not err).
func (r *Repo) Capture(ctx context.Context, args ...string) (string, int, error) {
	res, err := internal.Run(ctx, r.root, internal.DefaultTimeout, nil, r.git, args...)
	if err != nil {
		return res.Stdout, res.ExitCode, classify(args, res.Stdout, err)
	}
	return strings.TrimRight(res.Stdout, "\n\r"), res.ExitCode, nil
}

// CaptureLong is like Capture but with the 600s timeout reserved for
// whole-tree walks such as "ls-files --recurse-submodules".
func (r *Repo) CaptureLong(ctx context.Context, args ...string) (string, int, error) {
	res, err := internal.Run(ctx, r.root, internal.LongTimeout, nil, r.git, args...)
	if err != nil {
		return res.Stdout, res.ExitCode, classify(args, res.Stdout, err)
	}
	return strings.TrimRight(res.Stdout, "\n\r"), res.ExitCode, nil
}

// CaptureNULList runs a git command whose output is a NUL-delimited list
// (every invocation in this package that enumerates paths uses "-z") and
// splits it, dropping the trailing empty element.
func (r *Repo) CaptureNULList(ctx context.Context, args ...string) ([]string, error) {
	out, code, err := r.Capture(ctx, args...)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, classify(args, out, fmt.Errorf("exit code %d", code))
	}
	var list []string
	for {
		i := strings.IndexByte(out, 0)
		if i < 0 {
			break
		}
		if i > 0 {
			list = append(list, out[:i])
		}
		out = out[i+1:]
	}
	return list, nil
}

// RevParseVerify resolves ref to a full commit sha, or returns an error if
// it doesn't exist.
func (r *Repo) RevParseVerify(ctx context.Context, ref string) (string, error) {
	out, code, err := r.Capture(ctx, "rev-parse", "--verify", ref)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", classify([]string{"rev-parse", "--verify", ref}, out, fmt.Errorf("unknown ref %q", ref))
	}
	return out, nil
}

// IsReachable reports whether sha is reachable from any ref, used by the
// pre-push/pre-receive drivers to detect a force-push that rewrote history
// out from under the remote's recorded old sha.
func (r *Repo) IsReachable(ctx context.Context, sha string) bool {
	_, code, err := r.Capture(ctx, "cat-file", "-e", sha+"^{commit}")
	return err == nil && code == 0
}
