// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/lodestar-ai/lodestar/services/chatcore/datatypes"
)

// markerPattern matches bracketed citation markers like [1] or [12].
var markerPattern = regexp.MustCompile(`\[(\d+)\]`)

// =============================================================================
// Citation Extraction
// =============================================================================

// ReferenceSet is the validated outcome of scanning generated text for
// citation markers.
type ReferenceSet struct {
	// Ordered holds the valid marker indices in order of first
	// appearance, without duplicates.
	Ordered []int

	// Corrupted is true when at least one marker referenced an index
	// outside the supplied context. Such markers are dropped, not
	// rendered; the request continues.
	Corrupted bool
}

// ExtractReferences scans generated text for [n] markers and validates
// them against the context size.
//
// Marker indices outside 1..contextSize are citation hallucinations from
// the provider; they are discarded and flagged. Duplicate markers keep
// only their first appearance in Ordered; later occurrences still get
// rewritten by RenumberCitations.
func ExtractReferences(text string, contextSize int) ReferenceSet {
	var refs ReferenceSet
	seen := make(map[int]bool)
	for _, match := range markerPattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > contextSize {
			refs.Corrupted = true
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		refs.Ordered = append(refs.Ordered, n)
	}
	return refs
}

// =============================================================================
// Citation Deduplication & Renumbering
// =============================================================================

// citationKey is the uniqueness key for deduplication. Two chunks from
// the same document page are one source as far as the reader cares.
type citationKey struct {
	title string
	page  int
}

// RenumberCitations deduplicates the referenced sources and rewrites the
// answer text to a dense, consecutive citation sequence.
//
// # Algorithm
//
// Walk the validated references in first-appearance order. The first
// reference to each (title, page) pair claims the next display index;
// later references to the same pair map onto that index. Every [n] in
// the text is then rewritten in a single pass: mapped markers become
// their display index, unmapped markers (dropped as invalid or filtered
// upstream) are removed entirely, leaving no bracket behind.
//
// The result is deterministic and idempotent: running it again on the
// already-renumbered text with the produced citation list yields the
// same text and list unchanged.
//
// # Outputs
//
//   - string: the rewritten answer text.
//   - []datatypes.Citation: ordered unique citations, Index fields
//     equal to the dense sequence 1..K.
func RenumberCitations(text string, refs []int, pctx PromptContext) (string, []datatypes.Citation) {
	mapping := make(map[int]int, len(refs))
	firstSeen := make(map[citationKey]int, len(refs))
	var citations []datatypes.Citation

	for _, marker := range refs {
		entry, ok := pctx.Entry(marker)
		if !ok {
			continue
		}
		key := citationKey{title: entry.Chunk.Title, page: entry.Chunk.Page}
		if display, ok := firstSeen[key]; ok {
			mapping[marker] = display
			continue
		}
		display := len(citations) + 1
		firstSeen[key] = display
		mapping[marker] = display
		citations = append(citations, datatypes.Citation{
			Title: entry.Chunk.Title,
			Page:  entry.Chunk.Page,
			URL:   entry.Chunk.URL,
			Index: display,
		})
	}

	rewritten := markerPattern.ReplaceAllStringFunc(text, func(m string) string {
		n, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil {
			return ""
		}
		display, ok := mapping[n]
		if !ok {
			return ""
		}
		return fmt.Sprintf("[%d]", display)
	})

	return rewritten, citations
}

// StripMarkers removes every bracketed citation marker from text.
// Used by the fallback path so the neutral message never carries
// dangling references.
func StripMarkers(text string) string {
	return markerPattern.ReplaceAllString(text, "")
}
