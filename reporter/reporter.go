// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package reporter serialises a SecretScanCollection into one of the three
// output surfaces — human text, fingerprint-grouped JSON, or SARIF 2.1.0 —
// sharing the exit-code mapping in resulttree.
package reporter

import (
	"fmt"
	"io"

	"ggshield/resulttree"
)

// Reporter writes one serialisation of a scan tree.
type Reporter interface {
	Report(w io.Writer, tree *resulttree.SecretScanCollection) error
}

// ForFormat resolves a format name to a Reporter.
func ForFormat(format string) (Reporter, error) {
	switch format {
	case "", "text":
		return &Text{}, nil
	case "json":
		return &JSON{}, nil
	case "sarif":
		return &SARIF{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}
