// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package reporter

import (
	"encoding/json"
	"io"

	"ggshield/resulttree"
	"ggshield/spanresolver"
)

func lineEndNo(m spanresolver.ExtendedMatch) int {
	if m.PostLineEnd > 0 {
		return m.PostLineEnd
	}
	return m.PreLineEnd
}

// JSON writes the machine-readable serialisation: secrets grouped by their
// ignore-sha fingerprint per file, with the nested scan structure
// preserved.
type JSON struct{}

type jsonScan struct {
	ID               string            `json:"id"`
	Type             string            `json:"type"`
	ExtraInfo        map[string]string `json:"extra_info,omitempty"`
	Entities         []jsonEntity      `json:"entities_with_incidents,omitempty"`
	Errors           []jsonError       `json:"errors,omitempty"`
	Scans            []jsonScan        `json:"scans,omitempty"`
	TotalIncidents   int               `json:"total_incidents"`
	TotalOccurrences int               `json:"total_occurrences"`
}

type jsonEntity struct {
	Filename  string         `json:"filename"`
	Mode      string         `json:"filemode"`
	Incidents []jsonIncident `json:"incidents"`
}

type jsonIncident struct {
	DetectorName string           `json:"type"`
	IgnoreSHA    string           `json:"ignore_sha"`
	Validity     string           `json:"validity,omitempty"`
	KnownSecret  bool             `json:"known_secret"`
	IncidentURL  string           `json:"incident_url,omitempty"`
	IgnoreReason string           `json:"ignore_reason,omitempty"`
	Occurrences  []jsonOccurrence `json:"occurrences"`
}

type jsonOccurrence struct {
	Match     string `json:"match"`
	MatchType string `json:"type"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
}

type jsonError struct {
	Files       []string `json:"files"`
	Description string   `json:"description"`
}

func (j *JSON) Report(w io.Writer, tree *resulttree.SecretScanCollection) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toJSONScan(tree))
}

func toJSONScan(node *resulttree.SecretScanCollection) jsonScan {
	out := jsonScan{
		ID:             node.ID,
		Type:           node.Type,
		ExtraInfo:      node.ExtraInfo,
		TotalIncidents: node.TotalSecretsCount(),
	}
	if node.Results != nil {
		for _, r := range node.Results.Results {
			if len(r.Secrets) == 0 {
				continue
			}
			e := jsonEntity{Filename: r.Filename, Mode: string(r.Filemode)}
			// Secrets sharing a fingerprint fold into one incident with
			// multiple occurrences.
			byFingerprint := map[string]int{}
			for _, s := range r.Secrets {
				idx, seen := byFingerprint[s.IgnoreSHA]
				if !seen {
					inc := jsonIncident{
						DetectorName: s.DetectorDisplayName,
						IgnoreSHA:    s.IgnoreSHA,
						Validity:     s.Validity,
						KnownSecret:  s.KnownSecret,
						IncidentURL:  s.IncidentURL,
					}
					if s.IgnoreReason != nil {
						inc.IgnoreReason = string(s.IgnoreReason.Kind)
					}
					byFingerprint[s.IgnoreSHA] = len(e.Incidents)
					idx = len(e.Incidents)
					e.Incidents = append(e.Incidents, inc)
				}
				for _, m := range s.Matches {
					e.Incidents[idx].Occurrences = append(e.Incidents[idx].Occurrences, jsonOccurrence{
						Match:     m.Match.Match,
						MatchType: m.MatchType,
						LineStart: lineNo(m),
						LineEnd:   lineEndNo(m),
					})
					out.TotalOccurrences++
				}
			}
			out.Entities = append(out.Entities, e)
		}
		for _, e := range node.Results.Errors {
			out.Errors = append(out.Errors, jsonError{Files: e.Filenames, Description: e.Description})
		}
	}
	for _, child := range node.Scans {
		cs := toJSONScan(child)
		out.Scans = append(out.Scans, cs)
		out.TotalOccurrences += cs.TotalOccurrences
	}
	return out
}
