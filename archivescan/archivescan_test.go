// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package archivescan

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ggshield/apiclient"
	"ggshield/exclusion"
	"ggshield/ggcache"
	"ggshield/ggconfig"
	"ggshield/gitshell"
	"ggshield/internal"
	"ggshield/scanner"
)

// countingClient answers with canned verdicts keyed by document content
// and counts scan calls.
type countingClient struct {
	mu       sync.Mutex
	calls    int
	verdicts map[string][]apiclient.PolicyBreak
}

func (c *countingClient) MultiContentScan(ctx context.Context, docs []apiclient.Document, headers apiclient.Headers, allSecrets bool) (*apiclient.MultiScanResult, *apiclient.Detail, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	out := &apiclient.MultiScanResult{}
	for _, d := range docs {
		out.Results = append(out.Results, apiclient.ScanResult{PolicyBreaks: c.verdicts[d.Content]})
	}
	return out, nil, nil
}

func (c *countingClient) ScanAndCreateIncidents(ctx context.Context, docs []apiclient.Document, sourceUUID string, headers apiclient.Headers) (*apiclient.MultiScanResult, *apiclient.Detail, error) {
	return c.MultiContentScan(ctx, docs, headers, true)
}

func (c *countingClient) APITokens(ctx context.Context) (*apiclient.APITokensResponse, *apiclient.Detail, error) {
	return &apiclient.APITokensResponse{}, nil, nil
}

func (c *countingClient) ReadMetadata(ctx context.Context) (*apiclient.SecretScanPreferences, *apiclient.Detail, error) {
	return &apiclient.SecretScanPreferences{}, nil, nil
}

func (c *countingClient) RetrieveSecretIncident(ctx context.Context, id string, withOccurrences int) (*apiclient.SecretIncident, *apiclient.Detail, error) {
	return &apiclient.SecretIncident{ID: id}, nil, nil
}

func newTestScanner(t *testing.T, client apiclient.Client) *Scanner {
	t.Helper()
	cfg := ggconfig.New()
	excl, err := exclusion.Compile(nil)
	require.NoError(t, err)
	return &Scanner{
		Secrets: &scanner.Scanner{
			Client: client,
			Cfg:    cfg,
			SC:     scanner.NewScanContext(scanner.ModeDocker, "secret scan docker", nil),
			Opts:   scanner.ResolveOptions(cfg, nil),
		},
		Exclusion:     excl,
		EngineVersion: "2.100.0",
	}
}

func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func gzipped(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(raw)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// imageTarball assembles a minimal "docker save" layout: manifest.json
// plus one layer blob.
func imageTarball(t *testing.T, layerFiles map[string]string) (string, []byte) {
	t.Helper()
	layer := tarball(t, layerFiles)
	image := tarball(t, map[string]string{
		"abc123/layer.tar": string(layer),
		"manifest.json":    `[{"Config":"abc123.json","RepoTags":["example:latest"],"Layers":["abc123/layer.tar"]}]`,
	})
	path := filepath.Join(t.TempDir(), "image.tar")
	require.NoError(t, os.WriteFile(path, image, 0o600))
	return path, layer
}

func TestScanArchiveGzippedTar(t *testing.T) {
	client := &countingClient{}
	s := newTestScanner(t, client)
	raw := gzipped(t, tarball(t, map[string]string{
		"app/config.yaml": "token: abc\n",
		"assets/logo.png": "not really a png",
	}))

	tree, err := s.ScanArchive(context.Background(), "bundle.tar.gz", bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "archive", tree.Type)
	// The png is excluded before it is ever read.
	require.Len(t, tree.Results.Results, 1)
	assert.Equal(t, "archive://bundle.tar.gz/app/config.yaml", tree.Results.Results[0].URL)
	assert.Equal(t, 1, client.calls)
}

func TestScanImageLayersAndCleanCache(t *testing.T) {
	path, _ := imageTarball(t, map[string]string{"etc/service.conf": "port=8080\n"})
	client := &countingClient{}
	s := newTestScanner(t, client)
	cache, err := ggcache.Load(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)

	tree, err := s.ScanImage(context.Background(), path, cache)
	require.NoError(t, err)
	assert.Equal(t, "docker", tree.Type)
	assert.Equal(t, "example:latest", tree.ExtraInfo["image"])
	require.Len(t, tree.Scans, 1)
	layer := tree.Scans[0]
	assert.Equal(t, "docker-layer", layer.Type)
	assert.True(t, strings.HasPrefix(layer.ID, "sha256:"))
	require.Len(t, layer.Results.Results, 1)
	assert.Equal(t, layer.ID+":/etc/service.conf", layer.Results.Results[0].URL)
	assert.Equal(t, 1, client.calls)

	// The clean layer was recorded: a second scan never talks to the API.
	tree2, err := s.ScanImage(context.Background(), path, cache)
	require.NoError(t, err)
	assert.Contains(t, tree2.Scans[0].OptionalHeader, "cached clean")
	assert.Equal(t, 1, client.calls)
}

func TestScanImageSecretLayerNotCached(t *testing.T) {
	content := "password=hunter2\n"
	path, _ := imageTarball(t, map[string]string{"etc/creds": content})
	client := &countingClient{verdicts: map[string][]apiclient.PolicyBreak{content: {{
		BreakType: "Generic Password",
		DiffKind:  apiclient.DiffAddition,
		Matches:   []apiclient.Match{{Start: 9, End: 16, Match: "hunter2", MatchType: "password"}},
	}}}}
	s := newTestScanner(t, client)
	cache, err := ggcache.Load(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)

	tree, err := s.ScanImage(context.Background(), path, cache)
	require.NoError(t, err)
	assert.Equal(t, 1, tree.TotalSecretsCount())

	// A layer with findings must never be recorded clean.
	tree2, err := s.ScanImage(context.Background(), path, cache)
	require.NoError(t, err)
	assert.Equal(t, 1, tree2.TotalSecretsCount())
	assert.Equal(t, 2, client.calls)
}

func TestScanImageMissingManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.tar")
	require.NoError(t, os.WriteFile(path, tarball(t, map[string]string{"random.txt": "x"}), 0o600))
	s := newTestScanner(t, &countingClient{})
	_, err := s.ScanImage(context.Background(), path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest.json")
}

func TestScanRefPacksTrackedFiles(t *testing.T) {
	dir := t.TempDir()
	run := func(args ...string) {
		res, err := internal.Run(context.Background(), dir, internal.DefaultTimeout, nil, "git", args...)
		require.NoError(t, err)
		require.Equalf(t, 0, res.ExitCode, "git %v: %s", args, res.Stdout)
	}
	run("init", "-q")
	run("config", "user.email", "a@b.c")
	run("config", "user.name", "Ada")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.png"), []byte("binary"), 0o600))
	run("add", ".")
	run("commit", "-q", "-m", "two files")

	repo, err := gitshell.Open(context.Background(), dir)
	require.NoError(t, err)
	client := &countingClient{}
	s := newTestScanner(t, client)

	tree, err := s.ScanRef(context.Background(), repo, "HEAD", 0)
	require.NoError(t, err)
	require.Len(t, tree.Results.Results, 1)
	assert.Equal(t, "archive://HEAD/main.go", tree.Results.Results[0].URL)
}
