// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package commitmodel

import (
	"context"
	"os"
	"strconv"
	"strings"

	"ggshield/exclusion"
	"ggshield/gitshell"
	"ggshield/scannable"
)

// URL prefixes for commits with no sha: the staged index and
// synthetic patches fed directly to the scanner.
const (
	StagedPrefix = "staged"
	PatchPrefix  = "patch"
)

// Commit is a lazy view of one git revision, the staged index, or a merge
// resolution. Construction reads at most the raw header; file content is
// fetched only when Files is iterated.
type Commit struct {
	SHA  string
	Info CommitInformation

	repo      *gitshell.Repo
	urlPrefix string
	// patch is pre-fetched for staged/merge/synthetic commits; sha commits
	// leave it empty and batch-fetch through git show instead.
	patch string

	maxDocsPerBatch int
}

// MaxDocsPerBatch returns the per-git-show path batch bound, reading
// GG_MAX_DOCS_PER_COMMIT with a default of 20: big enough
// to amortise process startup, small enough to never hit OS argv limits.
func MaxDocsPerBatch() int {
	if v := os.Getenv("GG_MAX_DOCS_PER_COMMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 20
}

// FromSHA builds a Commit for one revision, reading only the raw header to
// populate Info. No file content is touched until Files runs.
func FromSHA(ctx context.Context, repo *gitshell.Repo, sha string) (*Commit, error) {
	out, err := repo.ShowRawHeader(ctx, sha)
	if err != nil {
		return nil, err
	}
	c := &Commit{
		SHA:             sha,
		repo:            repo,
		urlPrefix:       sha,
		maxDocsPerBatch: MaxDocsPerBatch(),
	}
	c.Info = parseRawHeader(out)
	return c, nil
}

// FromStaged builds a Commit over the staging area ("git diff --cached").
func FromStaged(ctx context.Context, repo *gitshell.Repo) (*Commit, error) {
	patch, err := repo.DiffCached(ctx)
	if err != nil {
		return nil, err
	}
	return fromPatchString(repo, StagedPrefix, patch), nil
}

// FromMerge builds a Commit over only the files the in-progress merge
// touched: HEAD vs MERGE_HEAD on the conflict path, HEAD vs the merged
// branch tip otherwise. The caller resolves which ref to
// diff against; both cases reduce to one two-ref diff.
func FromMerge(ctx context.Context, repo *gitshell.Repo, mergedRef string) (*Commit, error) {
	patch, err := repo.DiffRefs(ctx, "HEAD", mergedRef)
	if err != nil {
		return nil, err
	}
	return fromPatchString(repo, StagedPrefix, patch), nil
}

// FromPatch wraps an already-materialised patch, e.g. one piped in on
// stdin, under the "patch" URL prefix.
func FromPatch(patch string) *Commit {
	return fromPatchString(nil, PatchPrefix, patch)
}

func fromPatchString(repo *gitshell.Repo, prefix, patch string) *Commit {
	c := &Commit{
		repo:            repo,
		urlPrefix:       prefix,
		patch:           patch,
		maxDocsPerBatch: MaxDocsPerBatch(),
	}
	for _, pf := range parsePatch(patch) {
		c.Info.Paths = append(c.Info.Paths, pf.info.Path)
		if pf.info.OldPath != "" {
			if c.Info.Renames == nil {
				c.Info.Renames = map[string]string{}
			}
			c.Info.Renames[pf.info.OldPath] = pf.info.Path
		}
	}
	return c
}

// URLPrefix returns the sha, "staged", or "patch" segment of this commit's
// scannable URLs.
func (c *Commit) URLPrefix() string { return c.urlPrefix }

// OptionalHeader formats the one-line header a commit-range scan attaches
// to this commit's sub-collection.
func (c *Commit) OptionalHeader() string {
	if c.SHA == "" {
		return c.urlPrefix
	}
	short := c.SHA
	if len(short) > 8 {
		short = short[:8]
	}
	return "commit " + short + ": " + c.Info.Author + " <" + c.Info.Email + ">"
}

// Files enumerates the commit's Scannables lazily, in Info.Paths order,
// skipping anything excl drops. For sha commits the patch content is
// fetched in batches of at most maxDocsPerBatch paths per git show
// invocation; staged/merge/synthetic commits parse their pre-fetched patch
// without touching git again.
func (c *Commit) Files(ctx context.Context, excl *exclusion.Set, yield func(scannable.Scannable) error) error {
	if c.patch != "" || c.SHA == "" {
		return c.yieldPatchFiles(parsePatch(c.patch), excl, yield)
	}

	paths := c.includedPaths(excl)
	for start := 0; start < len(paths); start += c.maxDocsPerBatch {
		end := start + c.maxDocsPerBatch
		if end > len(paths) {
			end = len(paths)
		}
		out, err := c.repo.ShowRawAndPatchPaths(ctx, c.SHA, paths[start:end])
		if err != nil {
			return err
		}
		if err := c.yieldPatchFiles(parseShowPatch(out), excl, yield); err != nil {
			return err
		}
	}
	return nil
}

// GetFiles materialises Files into a slice, preserving order.
func (c *Commit) GetFiles(ctx context.Context, excl *exclusion.Set) ([]scannable.Scannable, error) {
	var out []scannable.Scannable
	err := c.Files(ctx, excl, func(s scannable.Scannable) error {
		out = append(out, s)
		return nil
	})
	return out, err
}

func (c *Commit) includedPaths(excl *exclusion.Set) []string {
	var out []string
	for _, p := range c.Info.Paths {
		if excl != nil && excl.IsExcluded(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (c *Commit) yieldPatchFiles(files []patchFile, excl *exclusion.Set, yield func(scannable.Scannable) error) error {
	for _, pf := range files {
		if excl != nil && excl.IsExcluded(pf.info.Path) {
			continue
		}
		url := "commit://" + c.urlPrefix + "/" + pf.info.Path
		s := scannable.NewInMemory(url, pf.info.Path, pf.info.Path, pf.info.Mode, []byte(pf.document), true)
		if err := yield(s); err != nil {
			return err
		}
	}
	return nil
}

// parseRawHeader decodes the output of gitshell.ShowRawHeader: a format
// line "author\x01email\x01date" followed by NUL-delimited raw entries.
// Merge commits shown with -m repeat the format line once per parent;
// paths are recorded once, in first-parent order. Per-parent filemodes are
// resolved later, at patch-parse time, where merge semantics apply.
func parseRawHeader(out string) CommitInformation {
	info := CommitInformation{}
	seen := map[string]bool{}
	var pendingStatus byte
	var pendingOld string

	for _, field := range gitshell.SplitNUL(out) {
		// A field may start with a repeated format line glued to the first
		// raw entry by a newline.
		for {
			if i := strings.IndexByte(field, 0x01); i >= 0 && !strings.HasPrefix(field, ":") {
				parts := strings.SplitN(field, "\x01", 3)
				if len(parts) == 3 {
					info.Author = parts[0]
					info.Email = parts[1]
					rest := parts[2]
					if j := strings.IndexByte(rest, '\n'); j >= 0 {
						info.Date = rest[:j]
						field = rest[j+1:]
						continue
					}
					info.Date = rest
					field = ""
				}
			}
			break
		}
		field = strings.TrimPrefix(field, "\n")
		if field == "" {
			continue
		}
		if field[0] == ':' {
			pendingStatus = statusOf(field)
			continue
		}
		// A non-":" field is a path belonging to the previous raw entry.
		if pendingStatus == 0 {
			continue
		}
		switch pendingStatus {
		case 'R', 'C':
			if pendingOld == "" {
				pendingOld = field
				continue
			}
			if info.Renames == nil {
				info.Renames = map[string]string{}
			}
			info.Renames[pendingOld] = field
			recordPath(&info, seen, field)
			pendingOld, pendingStatus = "", 0
		default:
			recordPath(&info, seen, field)
			pendingStatus = 0
		}
	}
	return info
}

func recordPath(info *CommitInformation, seen map[string]bool, path string) {
	if !seen[path] {
		seen[path] = true
		info.Paths = append(info.Paths, path)
	}
}

// statusOf extracts the status letter from a raw header, tolerating the
// "::"-prefixed merge form whose leading colon count encodes the parent
// count.
func statusOf(header string) byte {
	for i := len(header) - 1; i >= 0; i-- {
		c := header[i]
		if c == '\t' || c == ' ' || (c >= '0' && c <= '9') {
			continue
		}
		if c == ':' {
			return 0
		}
		return c
	}
	return 0
}
