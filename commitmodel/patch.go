// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package commitmodel

import (
	"strings"

	"ggshield/gitshell"
	"ggshield/scannable"
)

// patchFile is one file's worth of a parsed patch: its PatchFileInfo and
// the document actually sent to the API, which is the patch body from the
// first "@@" hunk header onward. Extended headers ("old mode", "--- a/…",
// "+++ b/…") are never part of the document.
type patchFile struct {
	info     PatchFileInfo
	document string
}

// splitFileSections cuts a patch into per-file sections, each starting at
// its "diff --git"/"diff --combined"/"diff --cc" line.
func splitFileSections(patch string) []string {
	var sections []string
	for len(patch) > 0 {
		start := indexDiffHeader(patch)
		if start < 0 {
			break
		}
		patch = patch[start:]
		next := indexDiffHeader(patch[1:])
		if next < 0 {
			sections = append(sections, patch)
			break
		}
		sections = append(sections, patch[:next+1])
		patch = patch[next+1:]
	}
	return sections
}

// indexDiffHeader finds the next per-file diff header at a line start.
func indexDiffHeader(s string) int {
	best := -1
	for _, marker := range []string{"diff --git ", "diff --combined ", "diff --cc "} {
		var i int
		if strings.HasPrefix(s, marker) {
			i = 0
		} else if j := strings.Index(s, "\n"+marker); j >= 0 {
			i = j + 1
		} else {
			continue
		}
		if best < 0 || i < best {
			best = i
		}
	}
	return best
}

// parseFileSection extracts a patchFile from one per-file section. The
// second return value is false when the section yields nothing to scan: a
// binary file, a pure rename, or a mode-only change has no hunks at all.
func parseFileSection(section string) (patchFile, bool) {
	header := section
	document := ""
	if i := strings.Index(section, "\n@@"); i >= 0 {
		header = section[:i+1]
		document = section[i+1:]
	}

	pf := patchFile{document: document}
	combined := strings.HasPrefix(header, "diff --combined ") || strings.HasPrefix(header, "diff --cc ")
	pf.info.Mode = scannable.Modify
	for _, line := range strings.Split(header, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			// "diff --git a/<path> b/<path>"; the b/ side is authoritative,
			// extracted from the end so paths containing " b/" still parse
			// when old and new paths are equal.
			pf.info.Path = gitDiffBPath(line)
		case strings.HasPrefix(line, "diff --combined "):
			pf.info.Path = strings.TrimSpace(line[len("diff --combined "):])
		case strings.HasPrefix(line, "diff --cc "):
			pf.info.Path = strings.TrimSpace(line[len("diff --cc "):])
		case strings.HasPrefix(line, "new file mode"):
			pf.info.Mode = scannable.New
		case strings.HasPrefix(line, "deleted file mode"):
			pf.info.Mode = scannable.Delete
		case strings.HasPrefix(line, "old mode"):
			pf.info.Mode = scannable.PermissionChange
		case strings.HasPrefix(line, "rename from "):
			pf.info.OldPath = line[len("rename from "):]
			pf.info.Mode = scannable.Rename
		case strings.HasPrefix(line, "rename to "):
			pf.info.Path = line[len("rename to "):]
		case strings.HasPrefix(line, "copy from "):
			pf.info.OldPath = line[len("copy from "):]
			pf.info.Mode = scannable.New
		case strings.HasPrefix(line, "copy to "):
			pf.info.Path = line[len("copy to "):]
		case strings.HasPrefix(line, "+++ b/"):
			if pf.info.Path == "" {
				pf.info.Path = line[len("+++ b/"):]
			}
		case strings.HasPrefix(line, "--- a/"):
			if pf.info.Mode == scannable.Delete && pf.info.Path == "" {
				pf.info.Path = line[len("--- a/"):]
			}
		}
	}
	if pf.info.Path == "" || document == "" {
		return pf, false
	}
	if combined {
		pf.document = ConvertCombinedToSingleParent(pf.document)
	}
	return pf, true
}

// gitDiffBPath extracts the post-image path from a "diff --git a/x b/y"
// line. Quoted paths (filenames with spaces or specials) keep their quotes
// stripped but escapes intact; git's -z raw listing is the authoritative
// source for such names, this is a fallback for patch-only parsing.
func gitDiffBPath(line string) string {
	rest := line[len("diff --git "):]
	i := strings.LastIndex(rest, " b/")
	if i < 0 {
		return ""
	}
	p := rest[i+len(" b/"):]
	return strings.Trim(p, `"`)
}

// ConvertCombinedToSingleParent rewrites a multi-parent combined-diff hunk
// body into single-parent form relative to the first parent: the
// "@@@ -a,b -c,d +e,f @@@" header becomes "@@ -a,b +e,f @@" and each
// content line drops its second marker column, keeping the first parent's
// marker. Lines invisible to both the first parent and the
// result (second-parent-only deletions, shown as " -") are dropped.
func ConvertCombinedToSingleParent(body string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(body, "\n") {
		if line == "" {
			continue
		}
		content := strings.TrimSuffix(line, "\n")
		switch {
		case strings.HasPrefix(content, "@@@"):
			b.WriteString(rewriteCombinedHunkHeader(content))
			b.WriteByte('\n')
		case len(content) >= 2:
			m1, m2 := content[0], content[1]
			if m1 == ' ' && m2 == '-' {
				continue
			}
			b.WriteByte(m1)
			b.WriteString(content[2:])
			b.WriteByte('\n')
		default:
			b.WriteString(content)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// rewriteCombinedHunkHeader maps "@@@ -a,b -c,d +e,f @@@ ctx" onto
// "@@ -a,b +e,f @@ ctx", keeping only the first parent's pre-range.
func rewriteCombinedHunkHeader(line string) string {
	inner := strings.TrimPrefix(line, "@@@")
	trail := ""
	if end := strings.Index(inner, "@@@"); end >= 0 {
		trail = inner[end+3:]
		inner = inner[:end]
	}
	var pre, post string
	for _, f := range strings.Fields(inner) {
		switch {
		case strings.HasPrefix(f, "-") && pre == "":
			pre = f
		case strings.HasPrefix(f, "+"):
			post = f
		}
	}
	return "@@ " + pre + " " + post + " @@" + trail
}

// parsePatch parses a plain patch (git diff output: the staged index or a
// merge resolution diff) into patchFiles, deduplicating by path.
func parsePatch(patch string) []patchFile {
	return dedupePatchFiles(parseSections(patch))
}

// parseShowPatch parses the output of "git show -m --raw -z --patch". The
// -z raw section and, for merges, each per-parent block are NUL-delimited;
// only the segments that start at a per-file diff header carry patch text,
// everything else (commit headers, raw entries, paths) is skipped. Merge
// commits repeat a path once per parent: the first parent's document wins
// and the modes combine with merge semantics.
func parseShowPatch(out string) []patchFile {
	var files []patchFile
	for _, seg := range gitshell.SplitNUL(out) {
		if !isDiffHeaderStart(seg) {
			continue
		}
		files = append(files, parseSections(seg)...)
	}
	return dedupePatchFiles(files)
}

func isDiffHeaderStart(s string) bool {
	return strings.HasPrefix(s, "diff --git ") ||
		strings.HasPrefix(s, "diff --combined ") ||
		strings.HasPrefix(s, "diff --cc ")
}

func parseSections(patch string) []patchFile {
	var out []patchFile
	for _, section := range splitFileSections(patch) {
		if pf, ok := parseFileSection(section); ok {
			out = append(out, pf)
		}
	}
	return out
}

func dedupePatchFiles(files []patchFile) []patchFile {
	var out []patchFile
	index := map[string]int{}
	modes := map[string][]scannable.Filemode{}
	for _, pf := range files {
		modes[pf.info.Path] = append(modes[pf.info.Path], pf.info.Mode)
		if i, seen := index[pf.info.Path]; seen {
			out[i].info.Mode = mergeFilemode(modes[pf.info.Path])
			continue
		}
		index[pf.info.Path] = len(out)
		out = append(out, pf)
	}
	return out
}
