// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package internal

import (
	"os"
	"path/filepath"
)

// UserCacheDir returns the ggshield cache directory, creating it if
// necessary. Callers that can't resolve or create it should treat the cache
// as empty rather than fail the scan.
func UserCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "ggshield")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
