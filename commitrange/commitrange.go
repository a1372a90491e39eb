// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package commitrange batches a list of commit SHAs across scans and folds
// the verdicts into a nested SecretScanCollection with per-commit
// attribution.
package commitrange

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"ggshield/commitmodel"
	"ggshield/exclusion"
	"ggshield/ggconfig"
	"ggshield/ggerrors"
	"ggshield/gitshell"
	"ggshield/resulttree"
	"ggshield/scannable"
	"ggshield/scanner"
)

// batchWorkers bounds the outer pool dispatching commit batches.
const batchWorkers = 4

// Scanner aggregates per-commit scans. Batches run in parallel; one
// batch's failure becomes that batch's Results.errors entry while the
// others continue, except authentication failures and quota exhaustion,
// which abort everything.
type Scanner struct {
	Repo      *gitshell.Repo
	Secrets   *scanner.Scanner
	Exclusion *exclusion.Set
}

// TruncateForHook bounds shas to the config's max_commits_for_hook,
// keeping the most recent commits (the *end* of the range). The second
// return value reports how many commits were dropped so drivers can warn.
func TruncateForHook(shas []string, cfg *ggconfig.Config) ([]string, int) {
	limit := cfg.MaxCommitsForHook
	if limit <= 0 {
		limit = ggconfig.DefaultMaxCommitsForHook
	}
	if len(shas) <= limit {
		return shas, 0
	}
	return shas[len(shas)-limit:], len(shas) - limit
}

// Scan expands each sha into a Commit, groups commits into batches whose
// total file count stays under max_documents_per_scan, dispatches the
// batches in parallel, and returns a "commit-range" collection with one
// sub-collection per commit, keyed by sha, not completion order.
func (s *Scanner) Scan(ctx context.Context, shas []string) (*resulttree.SecretScanCollection, error) {
	commits := make([]*commitmodel.Commit, 0, len(shas))
	for _, sha := range shas {
		c, err := commitmodel.FromSHA(ctx, s.Repo, sha)
		if err != nil {
			return nil, ggerrors.Wrap(ggerrors.KindUsage, "unknown ref "+sha, err)
		}
		commits = append(commits, c)
	}

	batches := batchCommits(commits, s.Secrets.Opts.MaxDocumentsPerScan)

	// One sub-collection per commit, pre-allocated in sha order so the tree
	// is deterministic regardless of batch completion order.
	subByPrefix := make(map[string]*resulttree.SecretScanCollection, len(commits))
	root := &resulttree.SecretScanCollection{ID: "commit-range", Type: "commit-range", Results: &resulttree.Results{}}
	for _, c := range commits {
		sub := &resulttree.SecretScanCollection{
			ID:             c.SHA,
			Type:           "commit",
			Results:        &resulttree.Results{},
			OptionalHeader: c.OptionalHeader(),
			ExtraInfo: map[string]string{
				"author": c.Info.Author,
				"email":  c.Info.Email,
				"date":   c.Info.Date,
			},
		}
		subByPrefix["commit://"+c.URLPrefix()+"/"] = sub
		root.Scans = append(root.Scans, sub)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchWorkers)
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			results, err := s.scanBatch(gctx, batch)
			if err != nil {
				if ggerrors.Is(err, ggerrors.KindQuotaLimitReached) || ggerrors.Is(err, ggerrors.KindAuth) {
					return err
				}
				results = resulttree.Results{Errors: []resulttree.Error{{
					Filenames:   batchShas(batch),
					Description: err.Error(),
				}}}
			}
			mu.Lock()
			defer mu.Unlock()
			attributeResults(results, subByPrefix, root)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return root, nil
}

// scanBatch expands every commit in the batch into scannables and runs one
// scanner pass over them all.
func (s *Scanner) scanBatch(ctx context.Context, batch []*commitmodel.Commit) (resulttree.Results, error) {
	var scannables []scannable.Scannable
	for _, c := range batch {
		files, err := c.GetFiles(ctx, s.Exclusion)
		if err != nil {
			return resulttree.Results{}, err
		}
		scannables = append(scannables, files...)
	}
	return s.Secrets.Scan(ctx, scannables)
}

// attributeResults routes each per-file Result back to its commit's
// sub-collection via the commit://<sha>/<path> URL. A
// whole-batch failure names commit shas in its Filenames and lands on each
// of those sub-collections; chunk-level errors name filenames the URL map
// can't resolve, so they land on the range's own Results instead.
func attributeResults(results resulttree.Results, subByPrefix map[string]*resulttree.SecretScanCollection, root *resulttree.SecretScanCollection) {
	for _, r := range results.Results {
		if sub := findSub(r.URL, subByPrefix); sub != nil {
			sub.Results.Results = append(sub.Results.Results, r)
		}
	}
	for _, e := range results.Errors {
		attributed := false
		for prefix, sub := range subByPrefix {
			sha := strings.TrimSuffix(strings.TrimPrefix(prefix, "commit://"), "/")
			for _, f := range e.Filenames {
				if f == sha {
					sub.Results.Errors = append(sub.Results.Errors, e)
					attributed = true
					break
				}
			}
		}
		if !attributed {
			root.Results.Errors = append(root.Results.Errors, e)
		}
	}
}

func findSub(url string, subByPrefix map[string]*resulttree.SecretScanCollection) *resulttree.SecretScanCollection {
	for prefix, sub := range subByPrefix {
		if strings.HasPrefix(url, prefix) {
			return sub
		}
	}
	return nil
}

// batchCommits groups commits so each batch's summed file count stays
// under maxDocs; a single commit bigger than maxDocs still gets its own
// batch (the scanner's chunking re-slices it per request).
func batchCommits(commits []*commitmodel.Commit, maxDocs int) [][]*commitmodel.Commit {
	if maxDocs <= 0 {
		maxDocs = 20
	}
	var batches [][]*commitmodel.Commit
	var cur []*commitmodel.Commit
	count := 0
	for _, c := range commits {
		n := len(c.Info.Paths)
		if len(cur) > 0 && count+n > maxDocs {
			batches = append(batches, cur)
			cur, count = nil, 0
		}
		cur = append(cur, c)
		count += n
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

func batchShas(batch []*commitmodel.Commit) []string {
	out := make([]string, len(batch))
	for i, c := range batch {
		out[i] = c.SHA
	}
	return out
}
