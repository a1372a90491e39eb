// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scannable

import (
	"os"
	"sync"
)

// binaryExtensions are rejected without ever opening the file.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".gz": true, ".tar": true, ".so": true,
	".dll": true, ".exe": true, ".bin": true, ".woff": true, ".woff2": true,
	".ttf": true, ".eot": true, ".mp3": true, ".mp4": true, ".mov": true,
	".jar": true, ".class": true, ".pyc": true,
}

// FileFromPath wraps a file on disk as a Scannable. url defaults to
// "file://"+abs when not overridden by the caller (commit model uses
// "commit://<sha>/<path>" instead).
type FileFromPath struct {
	url      string
	filename string
	path     string
	abs      string
	mode     Filemode

	once    sync.Once
	dec     decoded
	decErr  error
	rawSize int64
}

// NewFile builds a Scannable for the file at abs, reporting itself under url
// with the given semantic path and filemode.
func NewFile(url, path, abs string, mode Filemode) *FileFromPath {
	if url == "" {
		url = "file://" + abs
	}
	return &FileFromPath{url: url, filename: path, path: path, abs: abs, mode: mode}
}

// IsNonScannable implements the fast-reject rules: known
// binary extension, directory, missing file, or a raw size beyond
// maxRawSize (no size check when maxRawSize is 0 or less).
func (f *FileFromPath) IsNonScannable(maxRawSize int64) (bool, string) {
	for ext := range binaryExtensions {
		if hasSuffixFold(f.path, ext) {
			return true, "binary extension"
		}
	}
	st, err := os.Stat(f.abs)
	if err != nil {
		return true, "missing file"
	}
	if st.IsDir() {
		return true, "directory"
	}
	if maxRawSize > 0 && st.Size() > maxRawSize {
		return true, "exceeds maximum size"
	}
	return false, ""
}

func (f *FileFromPath) URL() string        { return f.url }
func (f *FileFromPath) Filename() string   { return f.filename }
func (f *FileFromPath) Path() string       { return f.path }
func (f *FileFromPath) Filemode() Filemode { return f.mode }

func (f *FileFromPath) IsLongerThan(n int) (bool, error) {
	st, err := os.Stat(f.abs)
	if err != nil {
		return false, err
	}
	if longer, decided := isLongerThanRaw(int(st.Size()), n, false); decided {
		return longer, nil
	}
	if _, err := f.load(); err != nil {
		return false, err
	}
	return f.dec.utf8EncodedSize > n, nil
}

func (f *FileFromPath) Content() (string, error) {
	return f.load()
}

func (f *FileFromPath) UTF8EncodedSize() (int, error) {
	if _, err := f.load(); err != nil {
		return 0, err
	}
	return f.dec.utf8EncodedSize, nil
}

func (f *FileFromPath) load() (string, error) {
	f.once.Do(func() {
		raw, err := os.ReadFile(f.abs)
		if err != nil {
			f.decErr = err
			return
		}
		f.dec, f.decErr = decode(f.url, raw)
	})
	return f.dec.text, f.decErr
}

func hasSuffixFold(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	tail := s[len(s)-len(suffix):]
	for i := range tail {
		a, b := tail[i], suffix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

var _ Scannable = (*FileFromPath)(nil)
