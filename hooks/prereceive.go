// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"ggshield/commitrange"
	"ggshield/ggconfig"
	"ggshield/resulttree"
)

// PreReceiveTimeout resolves the pre-receive deadline: GITGUARDIAN_TIMEOUT
// in seconds when set, else 4.5s — deliberately under the 5s limit hosting
// providers enforce on the whole hook.
func PreReceiveTimeout() time.Duration {
	if v := os.Getenv("GITGUARDIAN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			return d
		}
	}
	return ggconfig.DefaultPreReceiveTimeout
}

// PreReceive runs the scan in a child process under a hard wall-clock
// timeout: killing an in-flight goroutine would not kill its HTTP socket,
// a child process dies sockets and all. The returned exit code is final; a
// timeout or a quota failure downgrades to 0 so legitimate pushes are
// never blocked by a slow or exhausted scanner.
func (d *Driver) PreReceive(ctx context.Context, stdin io.Reader, childArgs []string) int {
	if BreakglassRequested(os.Getenv) {
		fmt.Fprintln(d.stderr(), "breakglass detected: skipping secret scan")
		return 0
	}

	upd, ok, discarded := ParsePreReceiveStdin(stdin)
	if !ok {
		return 0
	}
	if discarded > 0 {
		d.SC.Log.WithField("lines", discarded).Debug("extra pre-receive stdin lines ignored")
	}
	if upd.NewSHA == ZeroSHA {
		// Branch deletion: nothing to scan.
		return 0
	}

	timeout := d.Cfg.PreReceiveTimeout
	if timeout <= 0 {
		timeout = PreReceiveTimeout()
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	self, err := os.Executable()
	if err != nil {
		fmt.Fprintf(d.stderr(), "cannot locate ggshield binary: %v\n", err)
		return 0
	}
	args := append(append([]string(nil), childArgs...), upd.OldSHA, upd.NewSHA, upd.Ref)
	cmd := exec.CommandContext(cctx, self, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = d.stderr()
	err = cmd.Run()

	if cctx.Err() == context.DeadlineExceeded {
		fmt.Fprintln(d.stderr(), "Pre-receive hook took too long, skipping the scan to avoid blocking the push")
		return 0
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() == 1 {
				return 1
			}
			// Quota, auth, and unexpected failures never block a push.
			return 0
		}
		fmt.Fprintf(d.stderr(), "pre-receive scan failed to start: %v\n", err)
		return 0
	}
	return 0
}

// PreReceiveScan is the child-process body: resolve the commit range for
// one ref update and scan it. Run by the hidden child invocation the
// parent PreReceive spawns.
func (d *Driver) PreReceiveScan(ctx context.Context, oldSHA, newSHA string) (*resulttree.SecretScanCollection, error) {
	oldRef := oldSHA
	if oldSHA == ZeroSHA || !d.Repo.IsReachable(ctx, oldSHA) {
		// New branch, or a force-push: find where this branch diverges from
		// every branch the server already has.
		start, err := d.findBranchStart(ctx, newSHA, "--branches")
		if err != nil {
			return nil, err
		}
		oldRef = start
	}
	shas, err := d.newCommits(ctx, oldRef, newSHA)
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
