// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package commitmodel

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ggshield/gitshell"
	"ggshield/internal"
	"ggshield/scannable"
)

func setupRepo(t *testing.T) (*gitshell.Repo, string) {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "ada@example.com")
	runGit(t, dir, "config", "user.name", "Ada Lovelace")
	repo, err := gitshell.Open(context.Background(), dir)
	require.NoError(t, err)
	return repo, dir
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	res, err := internal.Run(context.Background(), dir, internal.DefaultTimeout, nil, "git", args...)
	require.NoError(t, err)
	require.Equalf(t, 0, res.ExitCode, "git %v: %s", args, res.Stdout)
	return strings.TrimSpace(res.Stdout)
}

func writeAndCommit(t *testing.T, dir, name, content, msg string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	runGit(t, dir, "add", name)
	runGit(t, dir, "commit", "-q", "-m", msg)
	return runGit(t, dir, "rev-parse", "HEAD")
}

func TestFromSHAReadsHeaderOnly(t *testing.T) {
	repo, dir := setupRepo(t)
	sha := writeAndCommit(t, dir, "config.yaml", "token: abc123\n", "add config")

	c, err := FromSHA(context.Background(), repo, sha)
	require.NoError(t, err)
	assert.Equal(t, sha, c.SHA)
	assert.Equal(t, "Ada Lovelace", c.Info.Author)
	assert.Equal(t, "ada@example.com", c.Info.Email)
	assert.NotEmpty(t, c.Info.Date)
	assert.Equal(t, []string{"config.yaml"}, c.Info.Paths)
}

func TestFromSHAFilesYieldPatchContent(t *testing.T) {
	repo, dir := setupRepo(t)
	writeAndCommit(t, dir, "a.txt", "first\n", "first")
	sha := writeAndCommit(t, dir, "a.txt", "first\npassword=hunter2\n", "second")

	c, err := FromSHA(context.Background(), repo, sha)
	require.NoError(t, err)
	files, err := c.GetFiles(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "commit://"+sha+"/a.txt", files[0].URL())
	assert.Equal(t, scannable.Modify, files[0].Filemode())
	content, err := files[0].Content()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(content, "@@"))
	assert.Contains(t, content, "+password=hunter2")
	assert.NotContains(t, content, "+++ b/")
}

func TestFromSHABatchesLargeCommits(t *testing.T) {
	t.Setenv("GG_MAX_DOCS_PER_COMMIT", "3")
	repo, dir := setupRepo(t)
	for i := 0; i < 8; i++ {
		name := string(rune('a'+i)) + ".txt"
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0o600))
		runGit(t, dir, "add", name)
	}
	runGit(t, dir, "commit", "-q", "-m", "eight files")
	sha := runGit(t, dir, "rev-parse", "HEAD")

	c, err := FromSHA(context.Background(), repo, sha)
	require.NoError(t, err)
	require.Len(t, c.Info.Paths, 8)
	files, err := c.GetFiles(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, files, 8)
}

func TestFromStaged(t *testing.T) {
	repo, dir := setupRepo(t)
	writeAndCommit(t, dir, "base.txt", "base\n", "base")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "staged.txt"), []byte("secret=value\n"), 0o600))
	runGit(t, dir, "add", "staged.txt")

	c, err := FromStaged(context.Background(), repo)
	require.NoError(t, err)
	assert.Empty(t, c.SHA)
	assert.Equal(t, StagedPrefix, c.URLPrefix())
	files, err := c.GetFiles(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "commit://staged/staged.txt", files[0].URL())
	assert.Equal(t, scannable.New, files[0].Filemode())
}

func TestFromSHAMergeCommit(t *testing.T) {
	repo, dir := setupRepo(t)
	writeAndCommit(t, dir, "shared.txt", "line\n", "base")
	runGit(t, dir, "checkout", "-q", "-b", "feature")
	writeAndCommit(t, dir, "feature.txt", "feature content\n", "feature work")
	runGit(t, dir, "checkout", "-q", "-")
	writeAndCommit(t, dir, "main.txt", "main content\n", "main work")
	runGit(t, dir, "merge", "-q", "--no-ff", "-m", "merge feature", "feature")
	sha := runGit(t, dir, "rev-parse", "HEAD")

	c, err := FromSHA(context.Background(), repo, sha)
	require.NoError(t, err)
	// -m splits the merge per parent: vs main the merge brings feature.txt,
	// vs feature it brings main.txt.
	assert.ElementsMatch(t, c.Info.Paths, []string{"feature.txt", "main.txt"})
	files, err := c.GetFiles(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
