// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"testing"

	"github.com/lodestar-ai/lodestar/services/chatcore/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeContext builds a PromptContext from (title, page) pairs, one
// entry per pair, markers 1..n.
func makeContext(sources ...[2]any) PromptContext {
	var pctx PromptContext
	for i, s := range sources {
		pctx.Entries = append(pctx.Entries, ContextEntry{
			Marker: i + 1,
			Chunk: datatypes.RetrievedChunk{
				Title: s[0].(string),
				Page:  s[1].(int),
				Text:  "chunk text",
			},
		})
	}
	return pctx
}

// =============================================================================
// ExtractReferences Tests
// =============================================================================

func TestExtractReferences_FirstAppearanceOrder(t *testing.T) {
	refs := ExtractReferences("claim [3] and [1], again [3] then [2]", 4)

	assert.Equal(t, []int{3, 1, 2}, refs.Ordered,
		"markers should be ordered by first appearance, deduplicated")
	assert.False(t, refs.Corrupted)
}

func TestExtractReferences_NoMarkers(t *testing.T) {
	refs := ExtractReferences("an answer with no citations at all", 4)

	assert.Empty(t, refs.Ordered)
	assert.False(t, refs.Corrupted)
}

func TestExtractReferences_OutOfRangeFlagsCorruption(t *testing.T) {
	refs := ExtractReferences("valid [2] but also [7] and [0]", 3)

	assert.Equal(t, []int{2}, refs.Ordered,
		"out-of-range markers must be dropped, not kept")
	assert.True(t, refs.Corrupted,
		"any out-of-range marker must flag the answer")
}

func TestExtractReferences_ZeroContextSize(t *testing.T) {
	refs := ExtractReferences("everything is invalid [1]", 0)

	assert.Empty(t, refs.Ordered)
	assert.True(t, refs.Corrupted)
}

// =============================================================================
// RenumberCitations Tests
// =============================================================================

func TestRenumberCitations_DedupesByTitleAndPage(t *testing.T) {
	// Chunks 1 and 3 come from the same document page, so they are one
	// source to the reader.
	pctx := makeContext(
		[2]any{"Safety Manual", 12},
		[2]any{"Building Code", 3},
		[2]any{"Safety Manual", 12},
	)
	text := "first [1], second [2], third [3]"
	refs := ExtractReferences(text, pctx.Size())

	rewritten, citations := RenumberCitations(text, refs.Ordered, pctx)

	require.Len(t, citations, 2)
	assert.Equal(t, "Safety Manual", citations[0].Title)
	assert.Equal(t, 12, citations[0].Page)
	assert.Equal(t, "Building Code", citations[1].Title)
	assert.Equal(t, "first [1], second [2], third [1]", rewritten,
		"duplicate source markers should collapse onto one display index")
}

func TestRenumberCitations_DenseSequence(t *testing.T) {
	pctx := makeContext(
		[2]any{"Doc A", 1},
		[2]any{"Doc B", 2},
		[2]any{"Doc C", 3},
		[2]any{"Doc D", 4},
	)
	// Model cited sources 4 and 2 only, in that order.
	text := "claim [4] and another [2]"
	refs := ExtractReferences(text, pctx.Size())

	rewritten, citations := RenumberCitations(text, refs.Ordered, pctx)

	require.Len(t, citations, 2)
	assert.Equal(t, "claim [1] and another [2]", rewritten)
	assert.Equal(t, "Doc D", citations[0].Title)
	assert.Equal(t, "Doc B", citations[1].Title)
	for i, c := range citations {
		assert.Equal(t, i+1, c.Index, "display indices must be 1..K with no gaps")
	}
}

func TestRenumberCitations_RemovesUnmappedMarkers(t *testing.T) {
	pctx := makeContext([2]any{"Doc A", 1})
	// [5] was dropped as out of range upstream; only [1] survives in refs.
	text := "real [1] but hallucinated [5] too"
	refs := ExtractReferences(text, pctx.Size())

	rewritten, citations := RenumberCitations(text, refs.Ordered, pctx)

	require.Len(t, citations, 1)
	assert.Equal(t, "real [1] but hallucinated  too", rewritten,
		"invalid markers must vanish from the text")
	assert.NotContains(t, rewritten, "[5]")
}

func TestRenumberCitations_Idempotent(t *testing.T) {
	pctx := makeContext(
		[2]any{"Doc A", 1},
		[2]any{"Doc B", 2},
		[2]any{"Doc A", 1},
	)
	text := "one [3], two [2], three [1]"
	refs := ExtractReferences(text, pctx.Size())
	rewritten, citations := RenumberCitations(text, refs.Ordered, pctx)

	// Re-run over the already-renumbered text against a context shaped
	// like the produced citation list.
	var again PromptContext
	for _, c := range citations {
		again.Entries = append(again.Entries, ContextEntry{
			Marker: c.Index,
			Chunk:  datatypes.RetrievedChunk{Title: c.Title, Page: c.Page, URL: c.URL},
		})
	}
	refs2 := ExtractReferences(rewritten, again.Size())
	rewritten2, citations2 := RenumberCitations(rewritten, refs2.Ordered, again)

	assert.Equal(t, rewritten, rewritten2)
	assert.Equal(t, citations, citations2)
}

func TestRenumberCitations_EmptyRefs(t *testing.T) {
	pctx := makeContext([2]any{"Doc A", 1})

	rewritten, citations := RenumberCitations("no markers here", nil, pctx)

	assert.Equal(t, "no markers here", rewritten)
	assert.Empty(t, citations)
}

// =============================================================================
// StripMarkers Tests
// =============================================================================

func TestStripMarkers(t *testing.T) {
	assert.Equal(t, "text  with  markers removed",
		StripMarkers("text [1] with [12] markers removed"))
	assert.Equal(t, "untouched", StripMarkers("untouched"))
}
