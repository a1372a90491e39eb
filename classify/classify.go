// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package classify turns a server-reported apiclient.PolicyBreak into a
// client-side Secret, computing its ignore reason as a pure function of
// (PolicyBreak, config) and deriving the stable ignore-sha.
package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"ggshield/apiclient"
	"ggshield/ggconfig"
	"ggshield/spanresolver"
)

// IgnoreReasonKind enumerates why a Secret is muted.
type IgnoreReasonKind string

const (
	IgnoredMatch    IgnoreReasonKind = "IgnoredMatch"
	IgnoredDetector IgnoreReasonKind = "IgnoredDetector"
	KnownSecret     IgnoreReasonKind = "KnownSecret"
	NotIntroduced   IgnoreReasonKind = "NotIntroduced"
	BackendExcluded IgnoreReasonKind = "BackendExcluded"
)

// IgnoreReason is a tagged value: the Kind plus an optional human-readable
// Detail (e.g. the backend's exclude_reason).
type IgnoreReason struct {
	Kind   IgnoreReasonKind
	Detail string
}

// Secret is the client-side, ignore-aware projection of a PolicyBreak.
type Secret struct {
	DetectorDisplayName string
	DetectorGroupName   string
	Validity            string
	KnownSecret         bool
	IncidentURL         string
	Matches             []spanresolver.ExtendedMatch
	IgnoreReason        *IgnoreReason
	DiffKind            apiclient.DiffKind
	IsVaulted           bool
	Vault               apiclient.VaultInfo
	IgnoreSHA           string
}

// Reason computes the ignore reason for one PolicyBreak as a pure function
// of (pb, cfg), following an ordered decision list:
//  1. diff_kind ∈ {deletion, context} → NotIntroduced
//  2. is_excluded → BackendExcluded
//  3. match set in cfg.IgnoredMatches → IgnoredMatch
//  4. break_type ∈ cfg.IgnoredDetectors → IgnoredDetector
//  5. cfg.IgnoreKnownSecrets && known_secret → KnownSecret
//  6. otherwise nil (reportable)
func Reason(pb apiclient.PolicyBreak, cfg *ggconfig.Config) *IgnoreReason {
	if pb.DiffKind == apiclient.DiffDeletion || pb.DiffKind == apiclient.DiffContext {
		return &IgnoreReason{Kind: NotIntroduced}
	}
	if pb.IsExcluded {
		return &IgnoreReason{Kind: BackendExcluded, Detail: pb.ExcludeReason}
	}
	sig := matchSignature(pb.Matches)
	for _, im := range cfg.IgnoredMatches {
		if im.Match == sig {
			return &IgnoreReason{Kind: IgnoredMatch, Detail: im.Name}
		}
	}
	for _, d := range cfg.IgnoredDetectors {
		if d == pb.BreakType {
			return &IgnoreReason{Kind: IgnoredDetector}
		}
	}
	if cfg.IgnoreKnownSecrets && pb.KnownSecret {
		return &IgnoreReason{Kind: KnownSecret}
	}
	return nil
}

// IgnoreSHA is the stable fingerprint of a match set: SHA-256 over the
// concatenation of "<match>,<match_type>" for every match, sorted
// lexicographically by match_type. Stable regardless of input order.
func IgnoreSHA(matches []apiclient.Match) string {
	sorted := append([]apiclient.Match(nil), matches...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MatchType < sorted[j].MatchType })
	var b strings.Builder
	for _, m := range sorted {
		b.WriteString(m.Match)
		b.WriteByte(',')
		b.WriteString(m.MatchType)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func matchSignature(matches []apiclient.Match) string {
	sorted := append([]apiclient.Match(nil), matches...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MatchType < sorted[j].MatchType })
	var b strings.Builder
	for _, m := range sorted {
		b.WriteString(m.Match)
		b.WriteByte(',')
		b.WriteString(m.MatchType)
	}
	return b.String()
}

// ToSecret builds the client-side Secret for one PolicyBreak, resolving
// each Match's MatchSpan against lines and computing the ignore reason and
// ignore-sha.
func ToSecret(pb apiclient.PolicyBreak, lines []spanresolver.Line, isPatch bool, cfg *ggconfig.Config) Secret {
	matches := make([]spanresolver.ExtendedMatch, len(pb.Matches))
	for i, m := range pb.Matches {
		matches[i] = spanresolver.ExtendedFromMatch(m, lines, isPatch)
	}
	return Secret{
		DetectorDisplayName: pb.BreakType,
		DetectorGroupName:   pb.Policy,
		Validity:            pb.Validity,
		KnownSecret:         pb.KnownSecret,
		IncidentURL:         pb.IncidentURL,
		Matches:             matches,
		IgnoreReason:        Reason(pb, cfg),
		DiffKind:            pb.DiffKind,
		IsVaulted:           pb.IsVaulted,
		Vault:               pb.Vault,
		IgnoreSHA:           IgnoreSHA(pb.Matches),
	}
}
