// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gitshell

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"

	"ggshield/internal"
)

// ContentTooLargeError is returned when the assembled tar would exceed
// maxContentSize.
type ContentTooLargeError struct {
	Ref   string
	Limit int64
}

func (e *ContentTooLargeError) Error() string {
	return fmt.Sprintf("tar for ref %q exceeds the server's maximum content size (%d bytes)", e.Ref, e.Limit)
}

// TarFromRefAndFilepaths assembles a gzip tar of the given files as they
// exist at ref (the empty string denotes the index), bounded by
// maxContentSize.
func (r *Repo) TarFromRefAndFilepaths(ctx context.Context, ref string, paths []string, maxContentSize int64) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	var total int64
	for _, p := range paths {
		content, err := r.catFile(ctx, ref, p)
		if err != nil {
			continue // deleted/unreadable paths are skipped, not fatal
		}
		total += int64(len(content))
		if maxContentSize > 0 && total > maxContentSize {
			return nil, &ContentTooLargeError{Ref: ref, Limit: maxContentSize}
		}
		hdr := &tar.Header{Name: p, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(content); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// catFile returns a single path's blob content at ref, or the index copy
// when ref=="". It bypasses Capture, which trims trailing newlines: blob
// bytes must round-trip exactly into the tar.
func (r *Repo) catFile(ctx context.Context, ref, path string) ([]byte, error) {
	res, err := internal.Run(ctx, r.root, internal.DefaultTimeout, nil, r.git, "show", ref+":"+path)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("git show %s:%s failed", ref, path)
	}
	return []byte(res.Stdout), nil
}
