// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package scanner slices Scannables into bounded API chunks and folds the
// verdicts back into Results: three independent caps, a bounded worker
// pool, position-stable result matching, and per-chunk error containment.
package scanner

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"ggshield/apiclient"
	"ggshield/classify"
	"ggshield/ggcache"
	"ggshield/ggconfig"
	"ggshield/ggerrors"
	"ggshield/resulttree"
	"ggshield/scannable"
	"ggshield/scanui"
	"ggshield/spanresolver"
)

// Fallback caps when neither the config nor the server preferences set one.
const (
	defaultMaxDocumentsPerScan = 20
	defaultMaxDocumentSize     = 1 * 1024 * 1024
	defaultMaxPayloadSize      = 2621440
)

// payloadOverhead is reserved out of max_payload_size for request metadata.
const payloadOverhead = 10 * 1024

// scopeCreateIncidents must be on the token before the
// scan-and-create-incidents endpoint is used.
const scopeCreateIncidents = "scan:create_incidents"

// Options are the resolved scheduler caps, after folding together the
// config record, the GG_* environment overrides, and the server-declared
// preferences.
type Options struct {
	MaxDocumentsPerScan int
	MaxDocumentSize     int
	MaxPayloadSize      int
	ScanThreads         int
}

// ResolveOptions computes the effective caps: config values win over
// defaults, GG_MAX_DOCS / GG_MAX_DOC_SIZE override both, and the
// server-declared preferences bound everything from above.
func ResolveOptions(cfg *ggconfig.Config, prefs *apiclient.SecretScanPreferences) Options {
	o := Options{
		MaxDocumentsPerScan: defaultMaxDocumentsPerScan,
		MaxDocumentSize:     defaultMaxDocumentSize,
		MaxPayloadSize:      defaultMaxPayloadSize,
		ScanThreads:         defaultScanThreads(),
	}
	if cfg != nil {
		if cfg.MaxDocumentsPerScan > 0 {
			o.MaxDocumentsPerScan = cfg.MaxDocumentsPerScan
		}
		if cfg.MaxDocumentSize > 0 {
			o.MaxDocumentSize = cfg.MaxDocumentSize
		}
		if cfg.MaxPayloadSize > 0 {
			o.MaxPayloadSize = cfg.MaxPayloadSize
		}
		if cfg.ScanThreads > 0 {
			o.ScanThreads = cfg.ScanThreads
		}
	}
	if n := envInt("GG_MAX_DOCS"); n > 0 {
		o.MaxDocumentsPerScan = n
	}
	if n := envInt("GG_MAX_DOC_SIZE"); n > 0 {
		o.MaxDocumentSize = n
	}
	if prefs != nil {
		o.MaxDocumentsPerScan = capAt(o.MaxDocumentsPerScan, prefs.MaximumDocumentsPerScan)
		o.MaxDocumentSize = capAt(o.MaxDocumentSize, prefs.MaximumDocumentSize)
		o.MaxPayloadSize = capAt(o.MaxPayloadSize, prefs.MaximumPayloadSize)
	}
	return o
}

func defaultScanThreads() int {
	n := runtime.NumCPU()
	if n > ggconfig.DefaultScanThreadsCap {
		n = ggconfig.DefaultScanThreadsCap
	}
	if n < 1 {
		n = 1
	}
	return n
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func capAt(v, bound int) int {
	if bound > 0 && v > bound {
		return bound
	}
	return v
}

// Scanner drives one scan: it chunks scannables, dispatches the chunks on
// a worker pool bounded by Opts.ScanThreads, and folds the verdicts into
// Results. The cache, when present, is updated only after every chunk has
// completed, from the orchestrating goroutine.
type Scanner struct {
	Client apiclient.Client
	Cfg    *ggconfig.Config
	SC     *ScanContext
	Opts   Options
	UI     scanui.UI
	Cache  *ggcache.Cache
}

// chunk pairs the scannables dispatched together with their wire form.
type chunk struct {
	scannables []scannable.Scannable
	docs       []apiclient.Document
	size       int
}

// CheckCreateIncidentsScope asserts the token carries the scope the
// scan-and-create-incidents endpoint requires. Called once at startup when
// SourceUUID is configured, before any chunk is dispatched.
func (s *Scanner) CheckCreateIncidentsScope(ctx context.Context) error {
	tokens, detail, err := s.Client.APITokens(ctx)
	if err != nil {
		return ggerrors.Wrap(ggerrors.KindUnexpected, "checking token scopes", err)
	}
	if detail != nil {
		return detailToError(detail)
	}
	if !tokens.HasScope(scopeCreateIncidents) {
		return ggerrors.MissingScopes(scopeCreateIncidents)
	}
	return nil
}

// Scan runs the full pipeline over scannables. Per-chunk failures land in
// Results.Errors without aborting siblings; auth and quota failures abort
// the whole scan.
func (s *Scanner) Scan(ctx context.Context, scannables []scannable.Scannable) (resulttree.Results, error) {
	ui := s.UI
	if ui == nil {
		ui = scanui.Noop{}
	}
	ui.Start(len(scannables))
	defer ui.Stop()

	chunks := s.buildChunks(scannables, ui)

	results := make([]resulttree.Results, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Opts.ScanThreads)
	var uiMu sync.Mutex
	for i := range chunks {
		i := i
		g.Go(func() error {
			r, err := s.scanChunk(gctx, chunks[i])
			if err != nil {
				// Auth and quota failures cancel gctx and abort siblings.
				return err
			}
			uiMu.Lock()
			ui.OnScanned(len(chunks[i].scannables))
			uiMu.Unlock()
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return resulttree.Results{}, err
	}

	var folded resulttree.Results
	for _, r := range results {
		folded = resulttree.Concat(folded, r)
	}
	s.updateCache(folded)
	return folded, nil
}

// buildChunks slices scannables into chunks under the three caps,
// reporting every skip through ui.
func (s *Scanner) buildChunks(scannables []scannable.Scannable, ui scanui.UI) []chunk {
	var chunks []chunk
	cur := chunk{}
	payloadCap := s.Opts.MaxPayloadSize - payloadOverhead
	for _, sc := range scannables {
		longer, err := sc.IsLongerThan(s.Opts.MaxDocumentSize)
		if err != nil {
			ui.OnSkipped(sc, skipReasonFor(err))
			continue
		}
		if longer {
			ui.OnSkipped(sc, scanui.SkipTooLarge)
			continue
		}
		content, err := sc.Content()
		if err != nil {
			ui.OnSkipped(sc, skipReasonFor(err))
			continue
		}
		if content == "" {
			ui.OnSkipped(sc, scanui.SkipEmpty)
			continue
		}
		size, err := sc.UTF8EncodedSize()
		if err != nil {
			ui.OnSkipped(sc, skipReasonFor(err))
			continue
		}
		if len(cur.docs) == s.Opts.MaxDocumentsPerScan || cur.size+size > payloadCap {
			chunks = append(chunks, cur)
			cur = chunk{}
		}
		cur.scannables = append(cur.scannables, sc)
		cur.docs = append(cur.docs, apiclient.Document{Filename: sc.Filename(), Content: content})
		cur.size += size
	}
	if len(cur.docs) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}

func skipReasonFor(err error) scanui.SkipReason {
	switch err.(type) {
	case *scannable.DecodeError:
		return scanui.SkipDecodeError
	case *scannable.NonSeekableError:
		return scanui.SkipNonSeekable
	default:
		return scanui.SkipMissingFile
	}
}

// scanChunk performs one HTTP round-trip and folds the chunk's verdicts.
// Result i of the response corresponds to scannable i of the chunk,
// regardless of worker completion order.
func (s *Scanner) scanChunk(ctx context.Context, c chunk) (resulttree.Results, error) {
	headers := s.SC.Headers(s.Cfg)
	var scan *apiclient.MultiScanResult
	var detail *apiclient.Detail
	var err error
	if s.Cfg.SourceUUID != "" {
		scan, detail, err = s.Client.ScanAndCreateIncidents(ctx, c.docs, s.Cfg.SourceUUID, headers)
	} else {
		scan, detail, err = s.Client.MultiContentScan(ctx, c.docs, headers, true)
	}
	if err != nil {
		return resulttree.Results{Errors: []resulttree.Error{chunkError(c, err.Error())}}, nil
	}
	if detail != nil {
		if e := detailToError(detail); e != nil {
			return resulttree.Results{}, e
		}
		return resulttree.Results{Errors: []resulttree.Error{chunkError(c, detail.Message)}}, nil
	}
	if len(scan.Results) != len(c.scannables) {
		return resulttree.Results{Errors: []resulttree.Error{chunkError(c, "server returned a mismatched result count")}}, nil
	}

	var out resulttree.Results
	for i, sr := range scan.Results {
		out.Results = append(out.Results, s.foldVerdict(c.scannables[i], sr))
	}
	return out, nil
}

// detailToError promotes the API failures that must abort the whole scan:
// 401 to an auth error, quota-exhausted 403s to QuotaLimitReached. Anything else returns nil and stays a chunk-level error.
func detailToError(d *apiclient.Detail) error {
	switch {
	case d.StatusCode == http.StatusUnauthorized:
		return ggerrors.Auth(d.Message)
	case d.QuotaLimit:
		return ggerrors.QuotaLimitReached(d.Message)
	default:
		return nil
	}
}

func chunkError(c chunk, desc string) resulttree.Error {
	names := make([]string, len(c.scannables))
	for i, sc := range c.scannables {
		names[i] = sc.Filename()
	}
	return resulttree.Error{Filenames: names, Description: desc}
}

// foldVerdict classifies one scannable's PolicyBreaks into Secrets. When
// AllSecrets is off, ignored secrets are dropped and tallied instead of
// reported.
func (s *Scanner) foldVerdict(sc scannable.Scannable, sr apiclient.ScanResult) resulttree.Result {
	content, _ := sc.Content()
	isPatch := false
	if p, ok := sc.(interface{ IsPatch() bool }); ok {
		isPatch = p.IsPatch()
	}
	var lines []spanresolver.Line
	if isPatch {
		lines = spanresolver.SplitPatchLines(content)
	} else {
		lines = spanresolver.SplitLines(content)
	}

	res := resulttree.Result{
		Filename:           sc.Filename(),
		Filemode:           sc.Filemode(),
		Path:               sc.Path(),
		URL:                sc.URL(),
		IgnoredCountByKind: map[classify.IgnoreReasonKind]int{},
	}
	for _, pb := range sr.PolicyBreaks {
		secret := classify.ToSecret(pb, lines, isPatch, s.Cfg)
		if secret.IgnoreReason != nil && !s.Cfg.AllSecrets {
			res.IgnoredCountByKind[secret.IgnoreReason.Kind]++
			continue
		}
		res.Secrets = append(res.Secrets, secret)
	}
	return res
}

// updateCache records every reportable secret in the last-found set, from
// the orchestrating goroutine only, after all chunks completed.
func (s *Scanner) updateCache(folded resulttree.Results) {
	if s.Cache == nil {
		return
	}
	for _, res := range folded.Results {
		for _, secret := range res.Secrets {
			if secret.IgnoreReason != nil {
				continue
			}
			s.Cache.RecordFound(ggcache.LastFoundSecret{
				DetectorDisplayName: secret.DetectorDisplayName,
				IgnoreSHA:           secret.IgnoreSHA,
				Filename:            res.Filename,
			})
		}
	}
}
