// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package reporter

import (
	"fmt"
	"io"

	"ggshield/classify"
	"ggshield/resulttree"
	"ggshield/spanresolver"
)

// Text writes the human-oriented serialisation. Censor redacts every match
// before printing; it is off unless the caller sets it.
type Text struct {
	Censor bool
}

func (t *Text) Report(w io.Writer, tree *resulttree.SecretScanCollection) error {
	return t.report(w, tree, 0)
}

func (t *Text) report(w io.Writer, node *resulttree.SecretScanCollection, depth int) error {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	if node.OptionalHeader != "" {
		fmt.Fprintf(w, "%s%s\n", indent, node.OptionalHeader)
	}
	if node.Results != nil {
		for i := range node.Results.Results {
			r := node.Results.Results[i]
			if t.Censor {
				r.Censor()
			}
			if len(r.Secrets) == 0 && len(r.IgnoredCountByKind) == 0 {
				continue
			}
			fmt.Fprintf(w, "%s%s (%s)\n", indent, r.Filename, r.Filemode)
			for _, s := range r.Secrets {
				t.printSecret(w, indent+"  ", s)
			}
			for kind, n := range r.IgnoredCountByKind {
				fmt.Fprintf(w, "%s  %d secret(s) ignored: %s\n", indent, n, kind)
			}
		}
		for _, e := range node.Results.Errors {
			fmt.Fprintf(w, "%sError scanning %v: %s\n", indent, e.Filenames, e.Description)
		}
	}
	for _, child := range node.Scans {
		if err := t.report(w, child, depth+1); err != nil {
			return err
		}
	}
	if depth == 0 {
		total := node.TotalSecretsCount()
		if total == 0 {
			fmt.Fprintf(w, "No secrets have been found\n")
		} else {
			fmt.Fprintf(w, "%d secret(s) have been found\n", total)
		}
	}
	return nil
}

func (t *Text) printSecret(w io.Writer, indent string, s classify.Secret) {
	status := s.Validity
	if status == "" {
		status = "unknown validity"
	}
	fmt.Fprintf(w, "%sSecret detected: %s (%s)\n", indent, s.DetectorDisplayName, status)
	fmt.Fprintf(w, "%s  ignore-sha: %s\n", indent, s.IgnoreSHA)
	if s.IgnoreReason != nil {
		fmt.Fprintf(w, "%s  ignored: %s %s\n", indent, s.IgnoreReason.Kind, s.IgnoreReason.Detail)
	}
	for _, m := range s.Matches {
		fmt.Fprintf(w, "%s  %s: %q (line %d)\n", indent, m.MatchType, m.Match.Match, lineNo(m))
	}
}

func lineNo(m spanresolver.ExtendedMatch) int {
	if m.PostLineStart > 0 {
		return m.PostLineStart
	}
	return m.PreLineStart
}
