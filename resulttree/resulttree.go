// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package resulttree holds the nested SecretScanCollection result tree and
// the exit-code mapping every reporter shares.
package resulttree

import (
	"ggshield/classify"
	"ggshield/scannable"
)

// Error is a scan-level failure attributed to a filename set, used for
// chunk-level failures that shouldn't abort sibling chunks.
type Error struct {
	Filenames   []string
	Description string
}

// Result is one scannable's verdict.
type Result struct {
	Filename string
	Filemode scannable.Filemode
	Path     string
	URL      string
	Secrets  []classify.Secret
	// IgnoredCountByKind tallies ignored secrets dropped from Secrets when
	// AllSecrets is off.
	IgnoredCountByKind map[classify.IgnoreReasonKind]int
}

// Censor redacts every match's displayed text in place, leaving the first
// and last visible character count untouched, matching the common
// "partial reveal" redaction shape reporters apply on demand.
func (r *Result) Censor() {
	for i := range r.Secrets {
		for j := range r.Secrets[i].Matches {
			m := &r.Secrets[i].Matches[j]
			m.Match.Match = redact(m.Match.Match)
		}
	}
}

func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}

// Results is monoidal under Concat: ([]Result, []Error).
type Results struct {
	Results []Result
	Errors  []Error
}

// Concat returns the element-wise concatenation of a and b.
func Concat(a, b Results) Results {
	return Results{
		Results: append(append([]Result(nil), a.Results...), b.Results...),
		Errors:  append(append([]Error(nil), a.Errors...), b.Errors...),
	}
}

// ReportableSecretsCount counts secrets with no IgnoreReason across every
// Result, the figure that drives the exit-code mapping.
func (r Results) ReportableSecretsCount() int {
	n := 0
	for _, res := range r.Results {
		for _, s := range res.Secrets {
			if s.IgnoreReason == nil {
				n++
			}
		}
	}
	return n
}

// SecretScanCollection is a tree node: either a leaf holding Results, or an
// interior node holding child Scans.
type SecretScanCollection struct {
	ID             string
	Type           string
	Results        *Results
	Scans          []*SecretScanCollection
	OptionalHeader string
	ExtraInfo      map[string]string
}

// TotalSecretsCount sums reportable secrets over every leaf Result in the
// tree.
func (c *SecretScanCollection) TotalSecretsCount() int {
	n := 0
	if c.Results != nil {
		n += c.Results.ReportableSecretsCount()
	}
	for _, child := range c.Scans {
		n += child.TotalSecretsCount()
	}
	return n
}

// HasErrors reports whether any leaf carries a scan-level Error.
func (c *SecretScanCollection) HasErrors() bool {
	if c.Results != nil && len(c.Results.Errors) > 0 {
		return true
	}
	for _, child := range c.Scans {
		if child.HasErrors() {
			return true
		}
	}
	return false
}

// ExitCode maps a completed scan's outcome onto the process exit code.
// Usage/auth/quota failures are represented as a non-nil topErr from the
// orchestrating driver, since those abort before a full tree exists.
func ExitCode(tree *SecretScanCollection, topErr error) int {
	if topErr != nil {
		return exitCodeForErr(topErr)
	}
	if tree != nil && tree.TotalSecretsCount() > 0 {
		return 1
	}
	return 0
}

func exitCodeForErr(err error) int {
	type kinded interface{ ExitCode() int }
	if k, ok := err.(kinded); ok {
		return k.ExitCode()
	}
	return 128
}
