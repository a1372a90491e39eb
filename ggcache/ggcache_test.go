// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ggcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	c, err := Load(path)
	require.NoError(t, err)

	s := LastFoundSecret{DetectorDisplayName: "GitHub Token", IgnoreSHA: "abc", Filename: "config.yaml"}
	assert.False(t, c.HasSeen(s))
	c.RecordFound(s)
	assert.True(t, c.HasSeen(s))
	require.NoError(t, c.Flush())

	c2, err := Load(path)
	require.NoError(t, err)
	assert.True(t, c2.HasSeen(s))
}

func TestUnreadableCacheIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	c, err := Load(path)
	require.NoError(t, err)
	assert.False(t, c.HasSeen(LastFoundSecret{DetectorDisplayName: "x"}))
}

func TestSchemaMismatchIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version": 999, "last_found_secrets": [{"detector_display_name":"x"}]}`), 0o600))
	c, err := Load(path)
	require.NoError(t, err)
	assert.False(t, c.HasSeen(LastFoundSecret{DetectorDisplayName: "x"}))
}

func TestLayerCacheKeyedByEngineVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	c, err := Load(path)
	require.NoError(t, err)

	c.RecordLayerClean("sha256:aaa", "2.100.0")
	assert.True(t, c.IsLayerClean("sha256:aaa", "2.100.0"))
	// A new engine version makes prior entries invisible.
	assert.False(t, c.IsLayerClean("sha256:aaa", "2.101.0"))

	c.RecordLayerClean("sha256:bbb", "2.101.0")
	assert.False(t, c.IsLayerClean("sha256:aaa", "2.101.0"))
	assert.True(t, c.IsLayerClean("sha256:bbb", "2.101.0"))
}

func TestFlushIsNoopWhenClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Flush())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
