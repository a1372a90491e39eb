// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gitshell

import (
	"context"
	"fmt"
)

// ShowRawAndPatch runs "git show -m --raw -z --patch <sha>", the single
// invocation the commit model parses both the raw header lines and the
// patch body out of. "-m" forces merge commits to be split into one diff
// per parent; "-z" NUL-delimits raw entries so any filename, including one
// containing a newline, round-trips safely.
func (r *Repo) ShowRawAndPatch(ctx context.Context, sha string) (string, error) {
	out, code, err := r.Capture(ctx, "show", "-m", "--raw", "-z", "--patch", "--no-color", "--no-ext-diff", sha)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", classify([]string{"show", sha}, out, fmt.Errorf("git show failed for %s", sha))
	}
	return out, nil
}

// ShowRawHeader runs "git show -m --raw -z" without --patch, with a format
// line carrying author, email and ISO-8601 date separated by 0x01 bytes.
// This is the only git call Commit.from_sha makes at construction time: it
// populates CommitInformation without reading any file content.
func (r *Repo) ShowRawHeader(ctx context.Context, sha string) (string, error) {
	args := []string{"show", "-m", "--raw", "-z", "--no-color", "--format=format:%an%x01%ae%x01%aI", sha}
	out, code, err := r.Capture(ctx, args...)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", classify(args, out, fmt.Errorf("git show failed for %s", sha))
	}
	return out, nil
}

// ShowRawAndPatchPaths is ShowRawAndPatch restricted to a bounded set of
// paths, used to batch huge commits into groups of at most
// GG_MAX_DOCS_PER_COMMIT so the process argv never hits the OS limit.
func (r *Repo) ShowRawAndPatchPaths(ctx context.Context, sha string, paths []string) (string, error) {
	args := []string{"show", "-m", "--raw", "-z", "--patch", "--no-color", "--no-ext-diff", sha, "--"}
	args = append(args, paths...)
	out, code, err := r.Capture(ctx, args...)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", classify(args, out, fmt.Errorf("git show failed for %s", sha))
	}
	return out, nil
}

// DiffCached runs "git diff --cached", the staged-index patch
// Commit.from_staged() is built from.
func (r *Repo) DiffCached(ctx context.Context) (string, error) {
	out, _, err := r.Capture(ctx, "diff", "--cached", "--no-color", "--no-ext-diff")
	return out, err
}

// DiffRefs runs "git diff <a> <b>", used by Commit.from_merge() for both
// the conflict path (HEAD vs MERGE_HEAD) and the no-conflict path (HEAD vs
// the merged branch tip).
func (r *Repo) DiffRefs(ctx context.Context, a, b string) (string, error) {
	out, _, err := r.Capture(ctx, "diff", "--no-color", "--no-ext-diff", a, b)
	return out, err
}

// Filemode is the single-letter raw-diff status this package returns;
// commitmodel maps it onto scannable.Filemode with merge-aware semantics.
type Filemode byte

const (
	ModeAdded      Filemode = 'A'
	ModeCopied     Filemode = 'C'
	ModeDeleted    Filemode = 'D'
	ModeModified   Filemode = 'M'
	ModeRenamed    Filemode = 'R'
	ModeTypeChange Filemode = 'T'
)

// DiffFileStatus is one entry of "git diff --raw"'s file list.
type DiffFileStatus struct {
	OldPath string // set only for R/C
	Path    string
	Mode    Filemode
}

// GetDiffFilesStatus returns the rename-aware raw diff between two refs
// (or a ref and the index when to=="").
func (r *Repo) GetDiffFilesStatus(ctx context.Context, from, to string) ([]DiffFileStatus, error) {
	args := []string{"diff", "--raw", "-z", "-M", "--no-color", "--no-ext-diff"}
	if to != "" {
		args = append(args, from, to)
	} else {
		args = append(args, "--cached", from)
	}
	out, code, err := r.Capture(ctx, args...)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, classify(args, out, fmt.Errorf("git diff --raw failed"))
	}
	return parseRawRaw(out)
}

// parseRawRaw parses the NUL-delimited ":oldmode newmode oldsha newsha status\0path\0"
// records emitted by "git diff/show --raw -z"; renames and copies carry
// "status\0oldpath\0newpath\0" instead.
func parseRawRaw(out string) ([]DiffFileStatus, error) {
	var entries []DiffFileStatus
	fields := splitNUL(out)
	for i := 0; i < len(fields); {
		header := fields[i]
		if len(header) == 0 || header[0] != ':' {
			i++
			continue
		}
		status := rawStatusByte(header)
		i++
		if i >= len(fields) {
			break
		}
		if status == byte(ModeRenamed) || status == byte(ModeCopied) {
			if i+1 >= len(fields) {
				break
			}
			entries = append(entries, DiffFileStatus{OldPath: fields[i], Path: fields[i+1], Mode: Filemode(status)})
			i += 2
		} else {
			entries = append(entries, DiffFileStatus{Path: fields[i], Mode: Filemode(status)})
			i++
		}
	}
	return entries, nil
}

// rawStatusByte extracts the status letter (A/C/D/M/R/T, ignoring any
// trailing similarity percentage git appends to R/C) from a raw header
// field such as ":100644 100644 abc123 def456 M" or "...R100".
func rawStatusByte(header string) byte {
	for i := len(header) - 1; i >= 0; i-- {
		c := header[i]
		if c == '\t' || c == ' ' {
			continue
		}
		if c >= '0' && c <= '9' {
			continue
		}
		return c
	}
	return 0
}

// SplitNUL splits a NUL-delimited git output buffer, dropping a trailing
// empty element.
func SplitNUL(s string) []string { return splitNUL(s) }

func splitNUL(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
