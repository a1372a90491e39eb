// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scannable

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"fmt"
	"io"

	digest "github.com/opencontainers/go-digest"
)

// LayerDiffID computes the OCI diff-id of an uncompressed layer tar stream,
// matching the digest docker/the OCI image-spec record in a layer's
// rootfs.diff_ids list.
func LayerDiffID(r io.Reader) (digest.Digest, error) {
	return digest.SHA256.FromReader(r)
}

// IterLayerEntries walks one image layer's tar, yielding one InMemory
// Scannable per regular file. The stream may be the raw layer tar (docker
// save) or its gzip form (OCI blobs); the gzip magic is sniffed. url is
// "<diffID>:/<path-in-layer>".
func IterLayerEntries(diffID digest.Digest, r io.Reader, yield func(s *InMemory) error) error {
	return iterTar(r, func(name string) string {
		return fmt.Sprintf("%s:/%s", diffID, name)
	}, yield)
}

// IterArchiveEntries walks an on-disk archive (tar, gzipped or not),
// yielding one InMemory Scannable per regular file under
// "archive://<name>/<path>" urls.
func IterArchiveEntries(name string, r io.Reader, yield func(s *InMemory) error) error {
	return iterTar(r, func(entry string) string {
		return "archive://" + name + "/" + entry
	}, yield)
}

// iterTar reads a tar stream, transparently gunzipping when the two-byte
// gzip magic leads, and yields every regular file.
func iterTar(r io.Reader, url func(name string) string, yield func(s *InMemory) error) error {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1F && magic[1] == 0x8B {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		raw, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("reading archive entry %s: %w", hdr.Name, err)
		}
		s := NewInMemory(url(hdr.Name), hdr.Name, hdr.Name, File, raw, false)
		if err := yield(s); err != nil {
			return err
		}
	}
}
