// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package commitrange

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"ggshield/commitmodel"
	"ggshield/ggconfig"
)

func shaList(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%040d", i)
	}
	return out
}

// Only the most recent max_commits_for_hook commits survive truncation:
// 60 pushed, 50 scanned.
func TestTruncateForHook(t *testing.T) {
	cfg := ggconfig.New()
	shas := shaList(60)
	kept, dropped := TruncateForHook(shas, cfg)
	assert.Len(t, kept, 50)
	assert.Equal(t, 10, dropped)
	// The most recent commits are at the end of the chronological range.
	assert.Equal(t, shas[10], kept[0])
	assert.Equal(t, shas[59], kept[49])
}

func TestTruncateForHookUnderLimit(t *testing.T) {
	shas := shaList(3)
	kept, dropped := TruncateForHook(shas, ggconfig.New())
	assert.Equal(t, shas, kept)
	assert.Equal(t, 0, dropped)
}

func commitWithPaths(sha string, n int) *commitmodel.Commit {
	c := &commitmodel.Commit{SHA: sha}
	for i := 0; i < n; i++ {
		c.Info.Paths = append(c.Info.Paths, fmt.Sprintf("f%d.go", i))
	}
	return c
}

func TestBatchCommitsByFileCount(t *testing.T) {
	commits := []*commitmodel.Commit{
		commitWithPaths("a", 8),
		commitWithPaths("b", 8),
		commitWithPaths("c", 8),
	}
	batches := batchCommits(commits, 20)
	// a+b fit (16 files), c overflows into its own batch.
	assert.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[1], 1)
}

func TestBatchCommitsHugeCommitGetsOwnBatch(t *testing.T) {
	commits := []*commitmodel.Commit{
		commitWithPaths("small", 2),
		commitWithPaths("huge", 50),
		commitWithPaths("tail", 2),
	}
	batches := batchCommits(commits, 20)
	assert.Len(t, batches, 3)
	assert.Equal(t, "huge", batches[1][0].SHA)
}
