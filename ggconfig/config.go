// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ggconfig holds the resolved configuration record the scanning
// core consumes. CLI flag parsing and config-file discovery live in the
// front-end; this package only defines the shape and its YAML
// (de)serialisation.
package ggconfig

import "time"

// IgnoredMatch mutes a specific match signature regardless of which file
// it appears in, keyed the same way a Secret's match set is hashed.
type IgnoredMatch struct {
	Name  string `yaml:"name,omitempty"`
	Match string `yaml:"match"`
}

// Config is the already-resolved configuration the scanning core receives.
// It never parses a config file itself; callers (the CLI front-end, not in
// scope here) build one from flags/files and hand it down.
type Config struct {
	// IgnoredMatches mutes specific match signatures.
	IgnoredMatches []IgnoredMatch `yaml:"ignored_matches,omitempty"`
	// IgnoredDetectors mutes entire detector break types.
	IgnoredDetectors []string `yaml:"ignored_detectors,omitempty"`
	// IgnoreKnownSecrets mutes PolicyBreaks already marked known_secret by
	// the backend.
	IgnoreKnownSecrets bool `yaml:"ignore_known_secrets"`
	// AllSecrets, when true, keeps ignored secrets in the result with their
	// IgnoreReason attached instead of dropping them.
	AllSecrets bool `yaml:"all_secrets"`
	// SourceUUID routes chunks through scan-and-create-incidents instead of
	// the plain multi-content-scan endpoint when non-empty.
	SourceUUID string `yaml:"source_uuid,omitempty"`

	// ExclusionPatterns are glob patterns merged with exclusion.DefaultPatterns.
	ExclusionPatterns []string `yaml:"exclude,omitempty"`

	// Scheduler caps, overridable by environment variables; zero
	// means "use the server-declared preference".
	MaxDocumentsPerScan int `yaml:"max_documents_per_scan,omitempty"`
	MaxDocumentSize     int `yaml:"max_document_size,omitempty"`
	MaxPayloadSize      int `yaml:"max_payload_size,omitempty"`
	ScanThreads         int `yaml:"scan_threads,omitempty"`

	// MaxCommitsForHook bounds commit-range scans triggered from a hook.
	MaxCommitsForHook int `yaml:"max_commits_for_hook,omitempty"`

	// SkipUnchangedMergeFiles restricts pre-commit, during a merge, to only
	// the files the merge resolution touched.
	SkipUnchangedMergeFiles bool `yaml:"skip_unchanged_merge_files"`

	// PreReceiveTimeout bounds the pre-receive child process.
	PreReceiveTimeout time.Duration `yaml:"pre_receive_timeout,omitempty"`
}

// Defaults used when a Config field is left zero.
const (
	DefaultMaxDocumentsPerCommit = 20
	DefaultMaxCommitsForHook     = 50
	DefaultScanThreadsCap        = 4
	DefaultPreReceiveTimeout     = 4500 * time.Millisecond
)

// New returns a Config with every threshold at its default.
func New() *Config {
	return &Config{
		MaxCommitsForHook: DefaultMaxCommitsForHook,
		PreReceiveTimeout: DefaultPreReceiveTimeout,
	}
}
