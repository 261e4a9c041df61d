// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lodestar-ai/lodestar/services/chatcore/datatypes"
)

// systemInstruction is the fixed grounding preamble of every answer
// prompt. The bracket-citation contract here is what the citation
// pipeline downstream depends on.
const systemInstruction = `You are an expert assistant answering questions about a fixed set of source documents.

CORE PRINCIPLES:
1. Answer ONLY using the numbered sources provided in the CONTEXT section - never use general knowledge
2. Every factual statement MUST include a citation: [1], [2], [3], etc.
3. Be comprehensive - include all relevant details from the sources (requirements, numbers, conditions, exceptions)
4. Use clear, professional language and be concise

CITATION REQUIREMENTS:
- Cite every fact immediately after the statement
- Citation numbers [1], [2], [3] correspond to the numbered sources in the CONTEXT section
- Only cite information that is explicitly stated in that source
- If you cannot cite a source for a fact, do not state that fact

WHEN INFORMATION IS NOT AVAILABLE:
If the sources do not contain sufficient information to answer the question, respond:
"The source documents do not contain information about this topic."`

// =============================================================================
// Prompt Context
// =============================================================================

// ContextEntry is one chunk selected into the prompt, tagged with its
// 1-based marker index. The marker is permanent for the request; it is
// the only index the generation step may reference.
type ContextEntry struct {
	Marker int
	Chunk  datatypes.RetrievedChunk
}

// PromptContext is the ordered subset of retrieved chunks that was
// actually sent to the model. Read-only once built; the comparison
// orchestrator fans a single PromptContext out to every branch.
type PromptContext struct {
	Entries []ContextEntry
}

// Size returns the number of selected chunks, which is also the highest
// valid marker index.
func (p PromptContext) Size() int { return len(p.Entries) }

// Entry returns the context entry for a marker, or false when the marker
// is out of range. Markers are 1-based.
func (p PromptContext) Entry(marker int) (ContextEntry, bool) {
	if marker < 1 || marker > len(p.Entries) {
		return ContextEntry{}, false
	}
	return p.Entries[marker-1], true
}

// =============================================================================
// Prompt Builder
// =============================================================================

// PromptBuilder assembles the token-budgeted grounding prompt.
//
// # Selection Algorithm
//
// Chunks are walked in the order the retrieval service returned them
// (score descending), accumulating an estimated token cost per chunk.
// A chunk that would overflow the remaining budget is skipped entirely,
// never split, and the walk continues, so a smaller later chunk can
// still use the remaining budget. A hard per-chunk character cap is
// applied before accounting to bound the worst-case single chunk.
type PromptBuilder struct {
	// TokenBudget bounds the context segment (estimated tokens).
	TokenBudget int

	// ChunkCharCap truncates a single chunk's text before accounting.
	ChunkCharCap int
}

// EstimateTokens approximates the token cost of text as len/4. The
// approximation is fixed; the budget is calibrated against it.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// truncateToRune caps s at n bytes, backing up to the nearest rune start
// so a multi-byte rune is never split.
func truncateToRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// BuildContext selects chunks under the budget and assigns marker
// indices. The marker of each selected chunk is its 1-based position in
// the selection, not its position in the retrieval result.
func (b PromptBuilder) BuildContext(chunks []datatypes.RetrievedChunk) PromptContext {
	var pctx PromptContext
	used := 0
	for _, chunk := range chunks {
		if b.ChunkCharCap > 0 && len(chunk.Text) > b.ChunkCharCap {
			chunk.Text = truncateToRune(chunk.Text, b.ChunkCharCap)
		}
		cost := EstimateTokens(formatContextEntry(len(pctx.Entries)+1, chunk))
		if used+cost > b.TokenBudget {
			continue
		}
		pctx.Entries = append(pctx.Entries, ContextEntry{
			Marker: len(pctx.Entries) + 1,
			Chunk:  chunk,
		})
		used += cost
	}
	return pctx
}

// Render produces the full prompt: system instructions, the numbered
// context segment, and the user question. The question is always the
// user's original query, not the reformulated one; reformulation only
// serves retrieval.
func (b PromptBuilder) Render(query string, pctx PromptContext) string {
	parts := make([]string, 0, len(pctx.Entries))
	for _, entry := range pctx.Entries {
		parts = append(parts, formatContextEntry(entry.Marker, entry.Chunk))
	}

	var sb strings.Builder
	sb.WriteString(systemInstruction)
	sb.WriteString("\n\nCONTEXT:\n")
	sb.WriteString(strings.Join(parts, "\n\n---\n\n"))
	sb.WriteString("\n\nQUESTION: ")
	sb.WriteString(query)
	sb.WriteString("\n\nANSWER:")
	return sb.String()
}

func formatContextEntry(marker int, chunk datatypes.RetrievedChunk) string {
	title := chunk.Title
	if title == "" {
		title = "Unknown"
	}
	return fmt.Sprintf("[%d] Source: %s - Page %d\n%s", marker, title, chunk.Page, chunk.Text)
}
