// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ggcache persists the set of (detector, ignore-sha, path) triples
// already surfaced and the docker layers already known clean. Writes are additive within an invocation and flushed atomically
// at shutdown; an unreadable or schema-mismatched cache is treated as
// empty, never propagated as an error.
package ggcache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"ggshield/internal"
)

// schemaVersion tags the on-disk format; bump whenever the shape changes.
// No migration is attempted across versions: a mismatched version is
// just treated as an empty cache.
const schemaVersion = 1

// LastFoundSecret identifies one previously reported secret, the key the
// "ignore last found" feature (config mutation, out of scope here) reads.
type LastFoundSecret struct {
	DetectorDisplayName string `json:"detector_display_name"`
	IgnoreSHA           string `json:"ignore_sha"`
	Filename            string `json:"filename"`
}

// onDiskFormat is the literal JSON shape persisted to disk.
type onDiskFormat struct {
	SchemaVersion        int               `json:"schema_version"`
	SecretsEngineVersion string            `json:"secrets_engine_version"`
	LastFoundSecrets     []LastFoundSecret `json:"last_found_secrets"`
	CleanLayers          []string          `json:"clean_layers"`
}

// Cache is the in-memory, mutex-guarded view of the persisted cache file.
// All mutation is additive; the cache is written once, atomically, when
// Flush is called (normally deferred right after Load in main).
type Cache struct {
	path string

	mu                   sync.Mutex
	secretsEngineVersion string
	lastFound            map[LastFoundSecret]bool
	cleanLayers          map[string]bool
	dirty                bool
}

// defaultPath resolves the cache file location under the platform cache
// home.
func defaultPath() (string, error) {
	dir, err := internal.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.json"), nil
}

// Load reads the cache file at path (defaultPath() when empty). Any read
// or decode failure, or a schema_version mismatch, yields a fresh empty
// Cache rather than an error: an unreadable cache is simply treated as
// empty.
func Load(path string) (*Cache, error) {
	if path == "" {
		p, err := defaultPath()
		if err != nil {
			return newEmpty(""), nil
		}
		path = p
	}
	c := newEmpty(path)
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, nil
	}
	var onDisk onDiskFormat
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		return c, nil
	}
	if onDisk.SchemaVersion != schemaVersion {
		return c, nil
	}
	c.secretsEngineVersion = onDisk.SecretsEngineVersion
	for _, s := range onDisk.LastFoundSecrets {
		c.lastFound[s] = true
	}
	for _, l := range onDisk.CleanLayers {
		c.cleanLayers[l] = true
	}
	return c, nil
}

func newEmpty(path string) *Cache {
	return &Cache{
		path:        path,
		lastFound:   map[LastFoundSecret]bool{},
		cleanLayers: map[string]bool{},
	}
}

// HasSeen reports whether s was already recorded as found.
func (c *Cache) HasSeen(s LastFoundSecret) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFound[s]
}

// RecordFound marks s as found, to be persisted at Flush.
func (c *Cache) RecordFound(s LastFoundSecret) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.lastFound[s] {
		c.lastFound[s] = true
		c.dirty = true
	}
}

// IsLayerClean reports whether diffID was already scanned clean under
// engineVersion. A version change invalidates every prior entry.
func (c *Cache) IsLayerClean(diffID, engineVersion string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.secretsEngineVersion != engineVersion {
		return false
	}
	return c.cleanLayers[diffID]
}

// RecordLayerClean marks diffID clean under engineVersion. If
// engineVersion differs from what's on record, the whole clean-layer set
// is reset first (the old entries are for a stale engine and would be
// wrong to keep).
func (c *Cache) RecordLayerClean(diffID, engineVersion string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.secretsEngineVersion != engineVersion {
		c.secretsEngineVersion = engineVersion
		c.cleanLayers = map[string]bool{}
	}
	if !c.cleanLayers[diffID] {
		c.cleanLayers[diffID] = true
		c.dirty = true
	}
}

// Flush persists the cache atomically (write to a temp file, then rename)
// if anything changed since Load. Safe to call from the orchestrating
// goroutine only, after every chunk in a scan has completed.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty || c.path == "" {
		return nil
	}
	onDisk := onDiskFormat{
		SchemaVersion:        schemaVersion,
		SecretsEngineVersion: c.secretsEngineVersion,
	}
	for s := range c.lastFound {
		onDisk.LastFoundSecrets = append(onDisk.LastFoundSecrets, s)
	}
	for l := range c.cleanLayers {
		onDisk.CleanLayers = append(onDisk.CleanLayers, l)
	}
	raw, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return err
	}
	c.dirty = false
	return nil
}
