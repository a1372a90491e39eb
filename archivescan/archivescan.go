// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package archivescan expands on-disk archives, git refs packed into
// tarballs, and "docker save" image tarballs into scannables and drives
// them through the secret scanner, one sub-collection per image layer.
package archivescan

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"ggshield/exclusion"
	"ggshield/gitshell"
	"ggshield/resulttree"
	"ggshield/scannable"
	"ggshield/scanner"
)

// Scanner runs archive and docker-image scans. EngineVersion keys the
// clean-layer cache entries; layers already recorded clean under the
// current engine version are skipped without a network call.
type Scanner struct {
	Secrets       *scanner.Scanner
	Exclusion     *exclusion.Set
	EngineVersion string
}

// ScanArchive scans every non-excluded regular file inside the tar
// (gzipped or plain) read from r. name labels the archive in urls and in
// the returned collection.
func (s *Scanner) ScanArchive(ctx context.Context, name string, r io.Reader) (*resulttree.SecretScanCollection, error) {
	var scannables []scannable.Scannable
	err := scannable.IterArchiveEntries(name, r, func(e *scannable.InMemory) error {
		if s.Exclusion != nil && s.Exclusion.IsExcluded(e.Path()) {
			return nil
		}
		scannables = append(scannables, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	results, err := s.Secrets.Scan(ctx, scannables)
	if err != nil {
		return nil, err
	}
	return &resulttree.SecretScanCollection{
		ID:      name,
		Type:    "archive",
		Results: &results,
	}, nil
}

// ScanRef packs the tracked files at ref into a tarball with the git shell
// adapter and scans it like an on-disk archive. maxTarSize bounds the
// assembled tar the same way the server bounds uploaded ones.
func (s *Scanner) ScanRef(ctx context.Context, repo *gitshell.Repo, ref string, maxTarSize int64) (*resulttree.SecretScanCollection, error) {
	paths, err := repo.LsFiles(ctx, ref)
	if err != nil {
		return nil, err
	}
	included := paths[:0]
	for _, p := range paths {
		if s.Exclusion != nil && s.Exclusion.IsExcluded(p) {
			continue
		}
		included = append(included, p)
	}
	raw, err := repo.TarFromRefAndFilepaths(ctx, ref, included, maxTarSize)
	if err != nil {
		return nil, err
	}
	name := ref
	if name == "" {
		name = "index"
	}
	return s.ScanArchive(ctx, name, bytes.NewReader(raw))
}

// manifestEntry is one image of a "docker save" tarball's manifest.json.
type manifestEntry struct {
	Config   string   `json:"Config"`
	RepoTags []string `json:"RepoTags"`
	Layers   []string `json:"Layers"`
}

// ScanImage scans each layer of a "docker save" tarball at path. Layers
// recorded clean in cache under the current engine version are skipped;
// layers that scan clean are recorded. The returned collection has one
// sub-collection per layer, keyed by diff-id.
func (s *Scanner) ScanImage(ctx context.Context, path string, cache LayerCache) (*resulttree.SecretScanCollection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	manifest, blobs, err := readImageTar(f)
	if err != nil {
		return nil, fmt.Errorf("reading image %s: %w", path, err)
	}

	root := &resulttree.SecretScanCollection{
		ID:      path,
		Type:    "docker",
		Results: &resulttree.Results{},
	}
	if len(manifest.RepoTags) > 0 {
		root.ExtraInfo = map[string]string{"image": manifest.RepoTags[0]}
	}
	for _, layerName := range manifest.Layers {
		blob, ok := blobs[layerName]
		if !ok {
			return nil, fmt.Errorf("image %s: manifest names missing layer %s", path, layerName)
		}
		sub, err := s.scanLayer(ctx, layerName, blob, cache)
		if err != nil {
			return nil, err
		}
		root.Scans = append(root.Scans, sub)
	}
	return root, nil
}

// LayerCache is the slice of ggcache the image scan needs: per-layer clean
// state keyed by engine version.
type LayerCache interface {
	IsLayerClean(diffID, engineVersion string) bool
	RecordLayerClean(diffID, engineVersion string)
}

func (s *Scanner) scanLayer(ctx context.Context, name string, blob []byte, cache LayerCache) (*resulttree.SecretScanCollection, error) {
	raw, err := uncompressed(blob)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", name, err)
	}
	diffID, err := scannable.LayerDiffID(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", name, err)
	}

	sub := &resulttree.SecretScanCollection{
		ID:      diffID.String(),
		Type:    "docker-layer",
		Results: &resulttree.Results{},
	}
	if cache != nil && cache.IsLayerClean(diffID.String(), s.EngineVersion) {
		sub.OptionalHeader = "layer " + diffID.String() + " (cached clean)"
		return sub, nil
	}

	var scannables []scannable.Scannable
	err = scannable.IterLayerEntries(diffID, bytes.NewReader(raw), func(e *scannable.InMemory) error {
		if s.Exclusion != nil && s.Exclusion.IsExcluded(e.Path()) {
			return nil
		}
		scannables = append(scannables, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	results, err := s.Secrets.Scan(ctx, scannables)
	if err != nil {
		return nil, err
	}
	sub.Results = &results
	sub.OptionalHeader = "layer " + diffID.String()
	if cache != nil && len(results.Errors) == 0 && results.ReportableSecretsCount() == 0 {
		cache.RecordLayerClean(diffID.String(), s.EngineVersion)
	}
	return sub, nil
}

// readImageTar walks a "docker save" tarball once, returning the first
// manifest entry and every layer blob the manifest may reference.
func readImageTar(r io.Reader) (manifestEntry, map[string][]byte, error) {
	var manifestRaw []byte
	blobs := map[string][]byte{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return manifestEntry{}, nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		raw, err := io.ReadAll(tr)
		if err != nil {
			return manifestEntry{}, nil, err
		}
		if hdr.Name == "manifest.json" {
			manifestRaw = raw
			continue
		}
		blobs[hdr.Name] = raw
	}
	if manifestRaw == nil {
		return manifestEntry{}, nil, fmt.Errorf("no manifest.json found")
	}
	var entries []manifestEntry
	if err := json.Unmarshal(manifestRaw, &entries); err != nil {
		return manifestEntry{}, nil, fmt.Errorf("decoding manifest.json: %w", err)
	}
	if len(entries) == 0 {
		return manifestEntry{}, nil, fmt.Errorf("manifest.json lists no image")
	}
	return entries[0], blobs, nil
}

// uncompressed returns the plain-tar bytes of a layer blob, gunzipping
// OCI-style gzip blobs; the diff-id is always computed over the
// uncompressed form.
func uncompressed(blob []byte) ([]byte, error) {
	if len(blob) < 2 || blob[0] != 0x1F || blob[1] != 0x8B {
		return blob, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
