// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package commitmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ggshield/scannable"
)

const simplePatch = `diff --git a/config.yaml b/config.yaml
index 1234567..89abcde 100644
--- a/config.yaml
+++ b/config.yaml
@@ -1,2 +1,3 @@
 host: example.com
+token: abc123
 port: 8080
`

func TestParsePatchSimpleModify(t *testing.T) {
	files := parsePatch(simplePatch)
	require.Len(t, files, 1)
	assert.Equal(t, "config.yaml", files[0].info.Path)
	assert.Equal(t, scannable.Modify, files[0].info.Mode)
	// The document starts at the hunk header; extended headers are gone.
	assert.True(t, len(files[0].document) > 0)
	assert.Contains(t, files[0].document, "@@ -1,2 +1,3 @@")
	assert.Contains(t, files[0].document, "+token: abc123")
	assert.NotContains(t, files[0].document, "--- a/")
	assert.NotContains(t, files[0].document, "+++ b/")
}

func TestParsePatchNewAndDeleted(t *testing.T) {
	patch := `diff --git a/new.txt b/new.txt
new file mode 100644
index 0000000..e69de29
--- /dev/null
+++ b/new.txt
@@ -0,0 +1 @@
+hello
diff --git a/old.txt b/old.txt
deleted file mode 100644
index e69de29..0000000
--- a/old.txt
+++ /dev/null
@@ -1 +0,0 @@
-goodbye
`
	files := parsePatch(patch)
	require.Len(t, files, 2)
	assert.Equal(t, "new.txt", files[0].info.Path)
	assert.Equal(t, scannable.New, files[0].info.Mode)
	assert.Equal(t, "old.txt", files[1].info.Path)
	assert.Equal(t, scannable.Delete, files[1].info.Mode)
}

func TestParsePatchPureRenameYieldsNothing(t *testing.T) {
	patch := `diff --git a/before.txt b/after.txt
similarity index 100%
rename from before.txt
rename to after.txt
`
	files := parsePatch(patch)
	assert.Empty(t, files)
}

func TestParsePatchRenameWithEdit(t *testing.T) {
	patch := `diff --git a/before.txt b/after.txt
similarity index 90%
rename from before.txt
rename to after.txt
index 1234567..89abcde 100644
--- a/before.txt
+++ b/after.txt
@@ -1 +1 @@
-old content
+new content
`
	files := parsePatch(patch)
	require.Len(t, files, 1)
	assert.Equal(t, "after.txt", files[0].info.Path)
	assert.Equal(t, "before.txt", files[0].info.OldPath)
	assert.Equal(t, scannable.Rename, files[0].info.Mode)
}

// A merge shown with -m lists the same path once per parent; the first
// parent's document wins and an M from any parent resolves the combined
// mode to Modify.
func TestParsePatchMergeDeleteModifyConflict(t *testing.T) {
	patch := `diff --git a/conflicted.txt b/conflicted.txt
index 1111111..2222222 100644
--- a/conflicted.txt
+++ b/conflicted.txt
@@ -1 +1 @@
-ours
+merged
diff --git a/conflicted.txt b/conflicted.txt
deleted file mode 100644
index 3333333..0000000
--- a/conflicted.txt
+++ /dev/null
@@ -1 +0,0 @@
-theirs
`
	files := parsePatch(patch)
	require.Len(t, files, 1)
	assert.Equal(t, scannable.Modify, files[0].info.Mode)
	assert.Contains(t, files[0].document, "+merged")
}

func TestConvertCombinedToSingleParent(t *testing.T) {
	body := `@@@ -1,3 -1,3 +1,4 @@@ func main()
  shared line
- removed from first parent
 -removed from second parent only
++added by the merge
`
	out := ConvertCombinedToSingleParent(body)
	assert.Contains(t, out, "@@ -1,3 +1,4 @@ func main()")
	assert.Contains(t, out, "\n shared line\n")
	assert.Contains(t, out, "\n-removed from first parent\n")
	assert.NotContains(t, out, "second parent only")
	assert.Contains(t, out, "\n+added by the merge\n")
}

func TestMergeFilemode(t *testing.T) {
	assert.Equal(t, scannable.Modify, mergeFilemode([]scannable.Filemode{scannable.Delete, scannable.Modify}))
	assert.Equal(t, scannable.New, mergeFilemode([]scannable.Filemode{scannable.New, scannable.New}))
	assert.Equal(t, scannable.Modify, mergeFilemode([]scannable.Filemode{scannable.New, scannable.Delete}))
}

func TestParseRawHeader(t *testing.T) {
	raw := "Ada Lovelace\x01ada@example.com\x012024-05-01T10:00:00+02:00\n" +
		":100644 100644 1111111 2222222 M\x00main.go\x00" +
		":000000 100644 0000000 3333333 A\x00added.go\x00" +
		":100644 100644 4444444 5555555 R100\x00old_name.go\x00new_name.go\x00"
	info := parseRawHeader(raw)
	assert.Equal(t, "Ada Lovelace", info.Author)
	assert.Equal(t, "ada@example.com", info.Email)
	assert.Equal(t, "2024-05-01T10:00:00+02:00", info.Date)
	assert.Equal(t, []string{"main.go", "added.go", "new_name.go"}, info.Paths)
	assert.Equal(t, map[string]string{"old_name.go": "new_name.go"}, info.Renames)
}

func TestParseRawHeaderMergeRepeatsFormat(t *testing.T) {
	raw := "Ada Lovelace\x01ada@example.com\x012024-05-01T10:00:00+02:00\n" +
		":100644 100644 1111111 2222222 M\x00shared.go\x00" +
		"Ada Lovelace\x01ada@example.com\x012024-05-01T10:00:00+02:00\n" +
		":100644 100644 3333333 4444444 M\x00shared.go\x00" +
		":100644 100644 5555555 6666666 M\x00other.go\x00"
	info := parseRawHeader(raw)
	assert.Equal(t, []string{"shared.go", "other.go"}, info.Paths)
}

// Mirrors the exact byte layout of "git show -m --raw -z --patch" on a
// merge: NUL-delimited raw entries, then "\x00\x00diff --git", then
// "\x00commit …" opening the second parent's block.
func TestParseShowPatchMergeBlocks(t *testing.T) {
	out := "commit 1111 (from 2222)\nMerge: 2222 3333\n\n    merge\n\n" +
		":000000 100644 0000000 c774709 A\x00feat.txt\x00\x00" +
		"diff --git a/feat.txt b/feat.txt\nnew file mode 100644\nindex 0000000..c774709\n--- /dev/null\n+++ b/feat.txt\n@@ -0,0 +1 @@\n+feat\n\x00" +
		"commit 1111 (from 3333)\nMerge: 2222 3333\n\n    merge\n\n" +
		":000000 100644 0000000 2041184 A\x00main2.txt\x00\x00" +
		"diff --git a/main2.txt b/main2.txt\nnew file mode 100644\nindex 0000000..2041184\n--- /dev/null\n+++ b/main2.txt\n@@ -0,0 +1 @@\n+main2\n"
	files := parseShowPatch(out)
	require.Len(t, files, 2)
	assert.Equal(t, "feat.txt", files[0].info.Path)
	assert.Equal(t, scannable.New, files[0].info.Mode)
	assert.Equal(t, "@@ -0,0 +1 @@\n+feat\n", files[0].document)
	assert.Equal(t, "main2.txt", files[1].info.Path)
	assert.Equal(t, "@@ -0,0 +1 @@\n+main2\n", files[1].document)
	// No commit header or raw entry leaks into any document.
	for _, f := range files {
		assert.NotContains(t, f.document, "commit ")
		assert.NotContains(t, f.document, ":000000")
	}
}

func TestFromPatchBuildsInfo(t *testing.T) {
	c := FromPatch(simplePatch)
	assert.Equal(t, PatchPrefix, c.URLPrefix())
	assert.Equal(t, []string{"config.yaml"}, c.Info.Paths)
}

func TestFilesYieldsPatchScannables(t *testing.T) {
	c := FromPatch(simplePatch)
	files, err := c.GetFiles(nil, nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "commit://patch/config.yaml", files[0].URL())
	content, err := files[0].Content()
	require.NoError(t, err)
	assert.Contains(t, content, "+token: abc123")
}
