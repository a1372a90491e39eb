// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ggshield/apiclient"
	"ggshield/ggconfig"
)

func TestIgnoreSHAKnownValue(t *testing.T) {
	matches := []apiclient.Match{{
		Match:     "368ac3edf9e850d1c0ff9d6c526496f8237ddf91",
		MatchType: "apikey",
	}}
	assert.Equal(t,
		"2b5840babacb6f089ddcce1fe5a56b803f8b1f636c6f44cdbf14b0c77a194c93",
		IgnoreSHA(matches))
}

func TestIgnoreSHAStableUnderShuffle(t *testing.T) {
	a := []apiclient.Match{
		{Match: "user", MatchType: "username"},
		{Match: "hunter2", MatchType: "password"},
		{Match: "example.com", MatchType: "host"},
	}
	b := []apiclient.Match{a[2], a[0], a[1]}
	assert.Equal(t, IgnoreSHA(a), IgnoreSHA(b))
}

func TestReasonNotIntroducedWinsOverEverything(t *testing.T) {
	cfg := ggconfig.New()
	cfg.IgnoreKnownSecrets = true
	pb := apiclient.PolicyBreak{
		DiffKind:    apiclient.DiffDeletion,
		IsExcluded:  true,
		KnownSecret: true,
	}
	r := Reason(pb, cfg)
	require.NotNil(t, r)
	assert.Equal(t, NotIntroduced, r.Kind)
}

func TestReasonContextIsNotIntroduced(t *testing.T) {
	r := Reason(apiclient.PolicyBreak{DiffKind: apiclient.DiffContext}, ggconfig.New())
	require.NotNil(t, r)
	assert.Equal(t, NotIntroduced, r.Kind)
}

func TestReasonBackendExcluded(t *testing.T) {
	pb := apiclient.PolicyBreak{
		DiffKind:      apiclient.DiffAddition,
		IsExcluded:    true,
		ExcludeReason: "test repository",
	}
	r := Reason(pb, ggconfig.New())
	require.NotNil(t, r)
	assert.Equal(t, BackendExcluded, r.Kind)
	assert.Equal(t, "test repository", r.Detail)
}

func TestReasonIgnoredMatch(t *testing.T) {
	pb := apiclient.PolicyBreak{
		DiffKind: apiclient.DiffAddition,
		Matches:  []apiclient.Match{{Match: "hunter2", MatchType: "password"}},
	}
	cfg := ggconfig.New()
	cfg.IgnoredMatches = []ggconfig.IgnoredMatch{{Name: "known test cred", Match: "hunter2,password"}}
	r := Reason(pb, cfg)
	require.NotNil(t, r)
	assert.Equal(t, IgnoredMatch, r.Kind)
	assert.Equal(t, "known test cred", r.Detail)
}

func TestReasonIgnoredDetector(t *testing.T) {
	pb := apiclient.PolicyBreak{DiffKind: apiclient.DiffAddition, BreakType: "Generic High Entropy Secret"}
	cfg := ggconfig.New()
	cfg.IgnoredDetectors = []string{"Generic High Entropy Secret"}
	r := Reason(pb, cfg)
	require.NotNil(t, r)
	assert.Equal(t, IgnoredDetector, r.Kind)
}

func TestReasonKnownSecret(t *testing.T) {
	pb := apiclient.PolicyBreak{DiffKind: apiclient.DiffAddition, KnownSecret: true}
	cfg := ggconfig.New()
	cfg.IgnoreKnownSecrets = true
	r := Reason(pb, cfg)
	require.NotNil(t, r)
	assert.Equal(t, KnownSecret, r.Kind)
}

func TestReasonReportable(t *testing.T) {
	pb := apiclient.PolicyBreak{DiffKind: apiclient.DiffAddition, KnownSecret: true}
	assert.Nil(t, Reason(pb, ggconfig.New()))
}

func TestToSecretCarriesVaultAndSHA(t *testing.T) {
	pb := apiclient.PolicyBreak{
		BreakType: "GitHub Token",
		DiffKind:  apiclient.DiffAddition,
		IsVaulted: true,
		Vault:     apiclient.VaultInfo{VaultType: "hashicorp", VaultName: "prod"},
		Matches:   []apiclient.Match{{Start: 0, End: 5, Match: "hello", MatchType: "apikey"}},
	}
	s := ToSecret(pb, nil, false, ggconfig.New())
	assert.Equal(t, "GitHub Token", s.DetectorDisplayName)
	assert.True(t, s.IsVaulted)
	assert.Equal(t, "hashicorp", s.Vault.VaultType)
	assert.Equal(t, IgnoreSHA(pb.Matches), s.IgnoreSHA)
	assert.Nil(t, s.IgnoreReason)
}
