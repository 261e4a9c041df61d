// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides a uniform contract over language-model providers.
//
// Every provider failure is mapped onto the small taxonomy in errors.go so
// the orchestration layer never has to know which backend it is talking
// to. Each Generate call is exactly one attempt; retry policy, if any,
// belongs to the caller.
package llm

import "context"

// GenerationParams tunes a single generation call. Nil pointer fields
// mean "use the provider default".
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// ModelOverride selects a different model than the client default
	// for this call only. Used by the comparison fan-out, which shares
	// one client across branches.
	ModelOverride string `json:"-"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	// Generate sends one prompt and returns the generated text.
	// Timeouts are the caller's responsibility via ctx; the call makes
	// exactly one attempt against the provider.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
