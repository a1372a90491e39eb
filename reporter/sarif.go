// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package reporter

import (
	"encoding/json"
	"fmt"
	"io"

	"ggshield/classify"
	"ggshield/resulttree"
	"ggshield/scanner"
)

// SARIF writes a SARIF 2.1.0 log: one result per Secret, with a
// relatedLocation per match and partialFingerprints["secret/v1"] set to
// the secret's ignore-sha.
type SARIF struct{}

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID string `json:"id"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	Level               string            `json:"level"`
	Message             sarifMessage      `json:"message"`
	Locations           []sarifLocation   `json:"locations"`
	RelatedLocations    []sarifLocation   `json:"relatedLocations,omitempty"`
	PartialFingerprints map[string]string `json:"partialFingerprints"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
	Message          *sarifMessage         `json:"message,omitempty"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`
}

func (s *SARIF) Report(w io.Writer, tree *resulttree.SecretScanCollection) error {
	run := sarifRun{Tool: sarifTool{Driver: sarifDriver{Name: "ggshield", Version: scanner.Version}}}
	ruleSeen := map[string]bool{}
	walk(tree, func(r resulttree.Result) {
		for _, secret := range r.Secrets {
			if !ruleSeen[secret.DetectorDisplayName] {
				ruleSeen[secret.DetectorDisplayName] = true
				run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, sarifRule{ID: secret.DetectorDisplayName})
			}
			run.Results = append(run.Results, toSarifResult(r, secret))
		}
	})
	log := sarifLog{
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs:    []sarifRun{run},
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(log)
}

func toSarifResult(r resulttree.Result, secret classify.Secret) sarifResult {
	res := sarifResult{
		RuleID:  secret.DetectorDisplayName,
		Level:   "error",
		Message: sarifMessage{Text: fmt.Sprintf("Secret detected: %s", secret.DetectorDisplayName)},
		Locations: []sarifLocation{{
			PhysicalLocation: sarifPhysicalLocation{
				ArtifactLocation: sarifArtifactLocation{URI: r.Path},
			},
		}},
		PartialFingerprints: map[string]string{"secret/v1": secret.IgnoreSHA},
	}
	if secret.IgnoreReason != nil {
		res.Level = "note"
	}
	for _, m := range secret.Matches {
		res.RelatedLocations = append(res.RelatedLocations, sarifLocation{
			PhysicalLocation: sarifPhysicalLocation{
				ArtifactLocation: sarifArtifactLocation{URI: r.Path},
				Region:           &sarifRegion{StartLine: lineNo(m), EndLine: lineEndNo(m)},
			},
			Message: &sarifMessage{Text: m.MatchType},
		})
	}
	return res
}

func walk(node *resulttree.SecretScanCollection, visit func(resulttree.Result)) {
	if node == nil {
		return
	}
	if node.Results != nil {
		for _, r := range node.Results.Results {
			visit(r)
		}
	}
	for _, child := range node.Scans {
		walk(child, visit)
	}
}
