// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package hooks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ggshield/apiclient"
	"ggshield/commitrange"
	"ggshield/ggconfig"
	"ggshield/gitshell"
	"ggshield/internal"
	"ggshield/scanner"
)

// cleanClient answers every scan with zero policy breaks.
type cleanClient struct{}

func (cleanClient) MultiContentScan(ctx context.Context, docs []apiclient.Document, headers apiclient.Headers, allSecrets bool) (*apiclient.MultiScanResult, *apiclient.Detail, error) {
	out := &apiclient.MultiScanResult{Results: make([]apiclient.ScanResult, len(docs))}
	return out, nil, nil
}

func (c cleanClient) ScanAndCreateIncidents(ctx context.Context, docs []apiclient.Document, sourceUUID string, headers apiclient.Headers) (*apiclient.MultiScanResult, *apiclient.Detail, error) {
	return c.MultiContentScan(ctx, docs, headers, true)
}

func (cleanClient) APITokens(ctx context.Context) (*apiclient.APITokensResponse, *apiclient.Detail, error) {
	return &apiclient.APITokensResponse{}, nil, nil
}

func (cleanClient) ReadMetadata(ctx context.Context) (*apiclient.SecretScanPreferences, *apiclient.Detail, error) {
	return &apiclient.SecretScanPreferences{}, nil, nil
}

func (cleanClient) RetrieveSecretIncident(ctx context.Context, id string, withOccurrences int) (*apiclient.SecretIncident, *apiclient.Detail, error) {
	return &apiclient.SecretIncident{ID: id}, nil, nil
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	res, err := internal.Run(context.Background(), dir, internal.DefaultTimeout, nil, "git", args...)
	require.NoError(t, err)
	require.Equalf(t, 0, res.ExitCode, "git %v: %s", args, res.Stdout)
	return strings.TrimSpace(res.Stdout)
}

func commitFile(t *testing.T, dir, name, content, msg string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	runGit(t, dir, "add", name)
	runGit(t, dir, "commit", "-q", "-m", msg)
	return runGit(t, dir, "rev-parse", "HEAD")
}

func testDriver(t *testing.T, dir string) *Driver {
	t.Helper()
	repo, err := gitshell.Open(context.Background(), dir)
	require.NoError(t, err)
	cfg := ggconfig.New()
	s := &scanner.Scanner{
		Client: cleanClient{},
		Cfg:    cfg,
		SC:     scanner.NewScanContext(scanner.ModePrePush, "hook pre-push", nil),
		Opts:   scanner.ResolveOptions(cfg, nil),
	}
	return &Driver{
		Repo:    repo,
		Range:   &commitrange.Scanner{Repo: repo, Secrets: s},
		Secrets: s,
		Cfg:     cfg,
		SC:      s.SC,
	}
}

// A push creating a new branch scans exactly the local-only commits, in
// chronological order.
func TestPrePushNewBranchScansAllCommits(t *testing.T) {
	t.Setenv("PRE_COMMIT_FROM_REF", "")
	t.Setenv("PRE_COMMIT_TO_REF", "")
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "a@b.c")
	runGit(t, dir, "config", "user.name", "Ada")
	sha1 := commitFile(t, dir, "one.txt", "one\n", "first")
	sha2 := commitFile(t, dir, "two.txt", "two\n", "second")
	sha3 := commitFile(t, dir, "three.txt", "three\n", "third")

	d := testDriver(t, dir)
	stdin := "refs/heads/topic " + sha3 + " refs/heads/topic " + ZeroSHA + "\n"
	tree, err := d.PrePush(context.Background(), "origin", strings.NewReader(stdin))
	require.NoError(t, err)
	require.NotNil(t, tree)
	require.Len(t, tree.Scans, 3)
	assert.Equal(t, sha1, tree.Scans[0].ID)
	assert.Equal(t, sha2, tree.Scans[1].ID)
	assert.Equal(t, sha3, tree.Scans[2].ID)
	assert.Equal(t, 0, tree.TotalSecretsCount())
	assert.Equal(t, "Ada", tree.Scans[0].ExtraInfo["author"])
}

func TestPreCommitScansStagedFiles(t *testing.T) {
	t.Setenv("SKIP", "")
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "a@b.c")
	runGit(t, dir, "config", "user.name", "Ada")
	commitFile(t, dir, "base.txt", "base\n", "base")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "staged.txt"), []byte("token=abc\n"), 0o600))
	runGit(t, dir, "add", "staged.txt")

	d := testDriver(t, dir)
	tree, err := d.PreCommit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tree)
	require.NotNil(t, tree.Results)
	require.Len(t, tree.Results.Results, 1)
	assert.Equal(t, "commit://staged/staged.txt", tree.Results.Results[0].URL)
}
