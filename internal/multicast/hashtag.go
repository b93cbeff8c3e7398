// Copyright (C) 2025, Ember Contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package multicast

import (
	"regexp"
	"strings"
)

// DefaultTopic is used when a post's content carries no hashtags
// (spec.md §4.6 "Topics that are empty extract to a default #general").
const DefaultTopic Topic = "general"

var hashtagPattern = regexp.MustCompile(`#[a-z0-9_]+`)

// ExtractTopics lowercases content, pulls out every `#[a-z0-9_]+` token,
// deduplicates them, and falls back to DefaultTopic when none are found
// (spec.md §4.6 "Topic extraction").
func ExtractTopics(content string) []Topic {
	matches := hashtagPattern.FindAllString(strings.ToLower(content), -1)
	if len(matches) == 0 {
		return []Topic{DefaultTopic}
	}
	seen := make(map[Topic]struct{}, len(matches))
	var out []Topic
	for _, m := range matches {
		t := Topic(strings.TrimPrefix(m, "#"))
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
