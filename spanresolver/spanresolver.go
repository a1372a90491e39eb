// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package spanresolver maps API byte-offset Matches onto (line, column)
// spans, patch-vs-file aware.
package spanresolver

import (
	"strings"

	"ggshield/apiclient"
)

// Line is one line of the exact payload sent to the API (without its
// trailing newline).
type Line struct {
	Content string
	// PreLineNo and PostLineNo are the 1-based line numbers this line
	// corresponds to in the pre-image (removed/context) and post-image
	// (added/context) sides of a diff. Both are set for context lines;
	// only one is set for pure additions/deletions. 0 means "not present
	// on that side".
	PreLineNo  int
	PostLineNo int
}

// SplitLines splits payload into Lines with no diff-awareness (PreLineNo ==
// PostLineNo == its 1-based index); callers building a patch's Lines
// instead walk the raw hunk assigning pre/post numbers per the leading
// +/-/space marker.
func SplitLines(payload string) []Line {
	raw := strings.Split(payload, "\n")
	if len(raw) > 0 && raw[len(raw)-1] == "" {
		raw = raw[:len(raw)-1]
	}
	lines := make([]Line, len(raw))
	for i, c := range raw {
		lines[i] = Line{Content: c, PreLineNo: i + 1, PostLineNo: i + 1}
	}
	return lines
}

// MatchSpan is a 0-based, end-exclusive-column span locating a Match
// within a sequence of Lines.
type MatchSpan struct {
	LineIndexStart   int
	LineIndexEnd     int
	ColumnIndexStart int
	ColumnIndexEnd   int
}

// FromMatch walks lines accumulating each line's byte length plus a
// newline, plus one more byte when isPatch is true (the leading diff
// marker the API saw but lines' Content does not include), locating the
// lines containing m's start and end byte offsets.
func FromMatch(m apiclient.Match, lines []Line, isPatch bool) MatchSpan {
	marker := 0
	if isPatch {
		marker = 1
	}
	span := MatchSpan{}
	offset := 0
	foundStart := false
	for i, l := range lines {
		lineLen := len(l.Content) + 1 + marker
		// Within a patch line, the marker byte precedes the content, so the
		// column inside Content is one less than the offset into the line.
		if !foundStart && m.Start < offset+lineLen {
			span.LineIndexStart = i
			span.ColumnIndexStart = clampColumn(m.Start-offset-marker, len(l.Content))
			foundStart = true
		}
		if m.End <= offset+lineLen {
			span.LineIndexEnd = i
			span.ColumnIndexEnd = clampColumn(m.End-offset-marker, len(l.Content))
			return span
		}
		offset += lineLen
	}
	// Match runs past the last line (shouldn't happen with a well-formed
	// response); clamp to the last line's end.
	if len(lines) > 0 {
		last := len(lines) - 1
		span.LineIndexEnd = last
		span.ColumnIndexEnd = len(lines[last].Content)
	}
	return span
}

func clampColumn(col, lineLen int) int {
	if col < 0 {
		return 0
	}
	if col > lineLen {
		return lineLen
	}
	return col
}

// ExtendedMatch augments a Match with pre/post-image line numbers so
// textual reports can locate the same match on both sides of a diff.
type ExtendedMatch struct {
	apiclient.Match

	PreLineStart  int
	PreLineEnd    int
	PostLineStart int
	PostLineEnd   int
}

// ExtendedFromMatch builds an ExtendedMatch by resolving m's MatchSpan against
// lines and then reading off each endpoint's pre/post line numbers.
func ExtendedFromMatch(m apiclient.Match, lines []Line, isPatch bool) ExtendedMatch {
	span := FromMatch(m, lines, isPatch)
	em := ExtendedMatch{Match: m}
	if span.LineIndexStart >= 0 && span.LineIndexStart < len(lines) {
		em.PreLineStart = lines[span.LineIndexStart].PreLineNo
		em.PostLineStart = lines[span.LineIndexStart].PostLineNo
	}
	if span.LineIndexEnd >= 0 && span.LineIndexEnd < len(lines) {
		em.PreLineEnd = lines[span.LineIndexEnd].PreLineNo
		em.PostLineEnd = lines[span.LineIndexEnd].PostLineNo
	}
	return em
}
