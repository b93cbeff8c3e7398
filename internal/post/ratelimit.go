// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package post

import (
	"regexp"
	"strings"
	"time"

	safemath "github.com/publiuspseudis/ember/utils/math"
)

// spamRepeatedChar reports whether content has five or more consecutive
// identical characters. Go's regexp has no backreferences, so the run is
// counted directly.
func spamRepeatedChar(content string) bool {
	run := 0
	var prev rune
	for i, r := range content {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= 5 {
			return true
		}
		prev = r
	}
	return false
}

// spamURL is a loose URL detector used only to count links, not validate
// them.
var spamURL = regexp.MustCompile(`https?://\S+`)

// BannedWords mirrors the toxicity package's list for the spam multiplier;
// kept separate because spec.md §4.1 treats "banned-word list" as a
// rate-limit signal distinct from the toxicity reject predicate in §4.8.
var BannedWords = []string{"spamword1", "spamword2"}

const (
	baseTargetMS   = 1000
	maxTargetMS    = 30000
	shortContentLen = 20
)

// AdaptiveTargetMS computes the VDF target duration for a new post given the
// author's recent post timestamps and the content (spec.md §4.1 "Adaptive
// difficulty for posts").
func AdaptiveTargetMS(recentTimestamps []time.Time, content string, now time.Time) uint64 {
	multiplier := 1.0
	countLastHour := countSince(recentTimestamps, now.Add(-time.Hour))
	switch {
	case countLastHour > 10:
		multiplier = 8
	case countLastHour > 5:
		multiplier = 4
	case countLastHour > 2:
		multiplier = 2
	}
	if looksLikeSpam(content) {
		multiplier *= 3
	}
	if len(content) < shortContentLen {
		multiplier *= 2
	}
	target := uint64(float64(baseTargetMS) * multiplier)
	return safemath.Min64(target, maxTargetMS)
}

// ReplyTargetMS is the reduced target for replies (spec.md §4.1 "Replies
// use max(500, 0.5 * target_ms)").
func ReplyTargetMS(targetMS uint64) uint64 {
	return safemath.Max64(targetMS/2, 500)
}

func countSince(timestamps []time.Time, cutoff time.Time) int {
	n := 0
	for _, t := range timestamps {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

func looksLikeSpam(content string) bool {
	if spamRepeatedChar(content) {
		return true
	}
	if len(spamURL.FindAllString(content, 2)) >= 2 {
		return true
	}
	lower := strings.ToLower(content)
	for _, w := range BannedWords {
		if strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
