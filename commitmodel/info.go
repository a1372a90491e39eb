// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package commitmodel implements the lazy view of one git revision, the
// staged index, or a merge as a stream of scannable.Scannable.
package commitmodel

import "ggshield/scannable"

// CommitInformation is the metadata gathered at Commit construction time,
// before any file content is read.
type CommitInformation struct {
	Author  string
	Email   string
	Date    string // raw "%aI" ISO-8601 string; parsed lazily by callers that need it
	Paths   []string
	Renames map[string]string // old path -> new path
}

// PatchFileInfo is parsed from one raw-header entry of
// "git show --raw -z -m".
type PatchFileInfo struct {
	OldPath string // set only for renames/copies
	Path    string
	Mode    scannable.Filemode
}

// mergeFilemode combines the per-parent modes a merge commit reports for
// the same path: if any parent reports Modify, the combined mode is
// Modify.
func mergeFilemode(modes []scannable.Filemode) scannable.Filemode {
	result := modes[0]
	for _, m := range modes[1:] {
		if m == scannable.Modify || result == scannable.Modify {
			result = scannable.Modify
			continue
		}
		if m != result {
			result = scannable.Modify
		}
	}
	return result
}
