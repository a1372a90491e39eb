// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package exclusion compiles path-glob patterns into a regex set and
// matches Scannable paths against it.
package exclusion

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// DefaultPatterns ship with every scan regardless of user configuration.
var DefaultPatterns = []string{
	".git/**",
	"node_modules/**",
	"vendor/**",
	"*.lock",
	"*.min.js",
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.ico", "*.pdf",
	"*.zip", "*.tar", "*.tar.gz", "*.tgz", "*.gz",
	"*.so", "*.dll", "*.exe", "*.bin",
	"__pycache__/**",
	".venv/**",
}

// Set is a compiled collection of glob patterns, precomputed once and reused
// across an entire scan.
type Set struct {
	patterns []string
	regexes  []*regexp.Regexp
}

// Compile builds a Set from user patterns, always including DefaultPatterns.
func Compile(userPatterns []string) (*Set, error) {
	all := make([]string, 0, len(userPatterns)+len(DefaultPatterns))
	all = append(all, DefaultPatterns...)
	all = append(all, userPatterns...)

	s := &Set{patterns: all, regexes: make([]*regexp.Regexp, 0, len(all))}
	for _, p := range all {
		re, err := globToRegexp(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclusion pattern %q: %w", p, err)
		}
		s.regexes = append(s.regexes, re)
	}
	return s, nil
}

// IsExcluded matches p, given in POSIX slash form, against every compiled
// pattern. A pattern without a "/" is also tried against each path
// component individually, so simple name globs like "*.png" match at any
// depth.
func (s *Set) IsExcluded(p string) bool {
	p = path.Clean(strings.ReplaceAll(p, `\`, "/"))
	for i, re := range s.regexes {
		if re.MatchString(p) {
			return true
		}
		if !strings.Contains(s.patterns[i], "/") {
			for _, chunk := range strings.Split(p, "/") {
				if re.MatchString(chunk) {
					return true
				}
			}
		}
	}
	return false
}

// globToRegexp converts a glob pattern using "*", "**", "?" into an anchored
// regular expression. "**" matches across path separators, "*" does not.
func globToRegexp(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		switch c := runes[i]; c {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '.', '+', '(', ')', '|', '^', '$', '[', ']', '{', '}', '\\':
			b.WriteString(regexp.QuoteMeta(string(c)))
		default:
			b.WriteRune(c)
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
