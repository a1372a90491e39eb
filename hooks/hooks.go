// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package hooks implements the pre-commit, pre-push, and pre-receive
// drivers: ref arithmetic, stdin parsing, SKIP/breakglass
// short-circuits, and the pre-receive wall-clock timeout.
package hooks

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"ggshield/commitrange"
	"ggshield/exclusion"
	"ggshield/ggconfig"
	"ggshield/gitshell"
	"ggshield/scanner"
)

// ZeroSHA denotes creation (remote side) or deletion (local side) in hook
// stdin lines.
const ZeroSHA = "0000000000000000000000000000000000000000"

// EmptyTreeSHA is the well-known empty-tree object, used as the old ref
// when a branch's parent does not exist.
const EmptyTreeSHA = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// Driver carries everything the three hooks share.
type Driver struct {
	Repo      *gitshell.Repo
	Range     *commitrange.Scanner
	Secrets   *scanner.Scanner
	Exclusion *exclusion.Set
	Cfg       *ggconfig.Config
	SC        *scanner.ScanContext
	Stderr    io.Writer
}

func (d *Driver) stderr() io.Writer {
	if d.Stderr != nil {
		return d.Stderr
	}
	return os.Stderr
}

// SkipRequested honours the pre-commit framework's SKIP environment
// variable: a comma-separated hook-id list containing "ggshield"
// short-circuits the hook to success.
func SkipRequested(env string) bool {
	for _, id := range strings.Split(env, ",") {
		if strings.TrimSpace(id) == "ggshield" {
			return true
		}
	}
	return false
}

// BreakglassRequested scans the GIT_PUSH_OPTION_COUNT / GIT_PUSH_OPTION_<N>
// environment for the "breakglass" push option.
func BreakglassRequested(getenv func(string) string) bool {
	count, err := strconv.Atoi(getenv("GIT_PUSH_OPTION_COUNT"))
	if err != nil || count <= 0 {
		return false
	}
	for i := 0; i < count; i++ {
		if getenv("GIT_PUSH_OPTION_"+strconv.Itoa(i)) == "breakglass" {
			return true
		}
	}
	return false
}

// RefUpdate is one parsed stdin line from pre-push
// ("<local_ref> <local_sha> <remote_ref> <remote_sha>") or pre-receive
// ("<old_sha> <new_sha> <ref>"), normalised to an (old, new) pair.
type RefUpdate struct {
	OldSHA string
	NewSHA string
	Ref    string
}

// ParsePrePushStdin reads the first parseable line of pre-push stdin.
// Further lines are not currently scanned; the count of discarded lines is
// returned so the driver can log it.
func ParsePrePushStdin(r io.Reader) (upd RefUpdate, ok bool, discarded int) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 4 {
			continue
		}
		if !ok {
			// local_ref local_sha remote_ref remote_sha
			upd = RefUpdate{OldSHA: fields[3], NewSHA: fields[1], Ref: fields[0]}
			ok = true
			continue
		}
		discarded++
	}
	return upd, ok, discarded
}

// ParsePreReceiveStdin reads the first parseable line of pre-receive
// stdin: "<old_sha> <new_sha> <ref>".
func ParsePreReceiveStdin(r io.Reader) (upd RefUpdate, ok bool, discarded int) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 3 {
			continue
		}
		if !ok {
			upd = RefUpdate{OldSHA: fields[0], NewSHA: fields[1], Ref: fields[2]}
			ok = true
			continue
		}
		discarded++
	}
	return upd, ok, discarded
}
