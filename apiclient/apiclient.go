// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package apiclient defines the typed surface the scanning core talks to
// the remote GitGuardian scanning API through: the contract a real client
// implementation and a test double both satisfy.
package apiclient

import (
	"context"
	"fmt"
)

// Document is one Scannable's content as sent over the wire.
type Document struct {
	Filename string `json:"filename"`
	Content  string `json:"document"`
}

// Match is a server-reported byte-offset hit inside one Document.
type Match struct {
	Start     int    `json:"index_start"`
	End       int    `json:"index_end"`
	Match     string `json:"match"`
	MatchType string `json:"match_type"`
}

// DiffKind indicates whether a PolicyBreak was introduced by the change
// being scanned, matching the GLOSSARY entry of the same name.
type DiffKind string

const (
	DiffAddition DiffKind = "addition"
	DiffDeletion DiffKind = "deletion"
	DiffContext  DiffKind = "context"
)

// VaultInfo carries optional vault-detection metadata attached to a
// PolicyBreak, when the secret is known to live in a secrets vault.
type VaultInfo struct {
	VaultType string `json:"vault_type,omitempty"`
	VaultName string `json:"vault_name,omitempty"`
	VaultPath string `json:"vault_path,omitempty"`
}

// PolicyBreak is one server-reported detection, before client-side
// classification.
type PolicyBreak struct {
	BreakType     string    `json:"break_type"`
	Policy        string    `json:"policy"`
	Validity      string    `json:"validity,omitempty"`
	KnownSecret   bool      `json:"known_secret"`
	IncidentURL   string    `json:"incident_url,omitempty"`
	Matches       []Match   `json:"matches"`
	DiffKind      DiffKind  `json:"diff_kind,omitempty"`
	IsExcluded    bool      `json:"is_excluded"`
	ExcludeReason string    `json:"exclude_reason,omitempty"`
	IsVaulted     bool      `json:"is_vaulted"`
	Vault         VaultInfo `json:"vault,omitempty"`
}

// ScanResult is the server's verdict for one Document in a
// multi-content-scan / scan-and-create-incidents request.
type ScanResult struct {
	PolicyBreaks []PolicyBreak `json:"policy_breaks"`
}

// MultiScanResult is the decoded 200 response body: one ScanResult per
// Document, in request order.
type MultiScanResult struct {
	Results []ScanResult `json:"results"`
}

// Detail is the decoded body of a non-2xx response, carrying the HTTP
// status code so callers can distinguish 401 / 403-quota / 403-scope.
type Detail struct {
	StatusCode int
	Message    string `json:"detail"`
	// QuotaLimit is set when StatusCode==403 and the body reports an
	// exhausted scan quota, distinguishing QuotaLimitReached from a plain
	// MissingScopesError (both are 403s).
	QuotaLimit bool `json:"-"`
}

func (d *Detail) Error() string {
	return fmt.Sprintf("api error %d: %s", d.StatusCode, d.Message)
}

// APITokensResponse reports the scopes attached to the configured API key.
type APITokensResponse struct {
	Scopes []string `json:"scopes"`
}

// HasScope reports whether scope is present on the token.
func (r *APITokensResponse) HasScope(scope string) bool {
	for _, s := range r.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// SecretScanPreferences are the server-declared caps the chunk scheduler
// must respect, read from response headers/metadata.
type SecretScanPreferences struct {
	MaximumDocumentsPerScan int    `json:"maximum_documents_per_scan"`
	MaximumDocumentSize     int    `json:"maximum_document_size"`
	MaximumPayloadSize      int    `json:"maximum_payload_size"`
	SecretsEngineVersion    string `json:"secrets_engine_version"`
}

// SecretIncident is the payload RetrieveSecretIncident returns.
type SecretIncident struct {
	ID              string `json:"id"`
	DetectorName    string `json:"detector_name"`
	GitguardianURL  string `json:"gitguardian_url"`
	OccurrenceCount int    `json:"occurrence_count"`
}

// Headers carries the request headers sent with every scan call.
type Headers struct {
	Version      string
	CommandPath  string
	CommandID    string
	OSName       string
	OSVersion    string
	RuntimeVer   string // "GGShield-Python-Version" analogue (the runtime/Go version)
	Mode         string
	ScanOptions  string // JSON summary of the secret config, for telemetry
	ExtraHeaders map[string]string
}

// ToHTTPHeaders renders h into the wire header names.
func (h Headers) ToHTTPHeaders() map[string]string {
	out := map[string]string{
		"GGShield-Version":        h.Version,
		"GGShield-Command-Path":   h.CommandPath,
		"GGShield-Command-Id":     h.CommandID,
		"GGShield-OS-Name":        h.OSName,
		"GGShield-OS-Version":     h.OSVersion,
		"GGShield-Python-Version": h.RuntimeVer,
		"mode":                    h.Mode,
		"scan_options":            h.ScanOptions,
	}
	for k, v := range h.ExtraHeaders {
		out[k] = v
	}
	return out
}

// Client is the typed API surface the scanning core depends on. A real implementation talks HTTP; tests supply a fake.
type Client interface {
	MultiContentScan(ctx context.Context, docs []Document, headers Headers, allSecrets bool) (*MultiScanResult, *Detail, error)
	ScanAndCreateIncidents(ctx context.Context, docs []Document, sourceUUID string, headers Headers) (*MultiScanResult, *Detail, error)
	APITokens(ctx context.Context) (*APITokensResponse, *Detail, error)
	ReadMetadata(ctx context.Context) (*SecretScanPreferences, *Detail, error)
	RetrieveSecretIncident(ctx context.Context, id string, withOccurrences int) (*SecretIncident, *Detail, error)
}
