// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package toxicity provides the synchronous content predicate post
// composition and reception run against (spec.md §4.8 step 2, §9 "toxicity
// ML classifiers ... remain external collaborators"). The real classifier is
// out of scope; Checker defines the interface the post engine calls through,
// and RegexChecker is a stub good enough to exercise the pipeline.
package toxicity

import "regexp"

// Checker is the external collaborator the post engine consults before
// admitting content.
type Checker interface {
	IsToxic(content string) bool
}

// RegexChecker rejects content matching a fixed banned-word list. It makes
// no claim to classifier-grade accuracy.
type RegexChecker struct {
	banned []*regexp.Regexp
}

// DefaultBannedWords is a placeholder list; a real deployment would load
// this from configuration or an external model.
var DefaultBannedWords = []string{"slur1", "slur2"}

// NewRegexChecker compiles a case-insensitive word-boundary matcher per
// banned word.
func NewRegexChecker(words []string) *RegexChecker {
	if words == nil {
		words = DefaultBannedWords
	}
	c := &RegexChecker{}
	for _, w := range words {
		c.banned = append(c.banned, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return c
}

// IsToxic reports whether content matches any banned term.
func (c *RegexChecker) IsToxic(content string) bool {
	for _, re := range c.banned {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// NoOp never rejects; useful where a caller wants the interface without a
// real check.
type NoOp struct{}

func (NoOp) IsToxic(string) bool { return false }
