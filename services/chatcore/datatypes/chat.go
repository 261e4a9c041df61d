// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the chatcore service.
//
// This file contains request and response types for the chat endpoints.
// All entities here are constructed per-request and discarded once the
// response is written; nothing in this package is persisted.
package datatypes

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxQueryChars is the maximum accepted query length. Longer queries
	// are rejected with a 400 before any retrieval work starts.
	MaxQueryChars = 1000

	// MaxTopK is the upper bound for the requested chunk count. Larger
	// values are clamped, not rejected.
	MaxTopK = 20

	// DefaultTopK is used when the client does not request a chunk count.
	DefaultTopK = 8
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
var chatValidate = validator.New()

// =============================================================================
// Chat Request
// =============================================================================

// ChatRequest is the body of POST /chat and POST /chat/compare.
//
// # Fields
//
//   - Query: Required. The user's question. Must be non-blank and at most
//     MaxQueryChars characters.
//   - TopK: Optional. Requested number of chunks to retrieve. Zero means
//     DefaultTopK; values above MaxTopK are clamped by the retrieval
//     gateway.
//   - ModelID: Optional. Overrides the configured primary model for the
//     single-model endpoint. Ignored by /chat/compare.
//   - SessionID: Optional. Client session identifier used only for
//     analytics correlation. Generated server-side when absent.
//
// # Validation
//
// Uses go-playground/validator tags plus a blank-query check in Validate,
// since `required` alone accepts whitespace-only strings.
type ChatRequest struct {
	Query     string `json:"query" validate:"required,max=1000"`
	TopK      int    `json:"top_k" validate:"gte=0,lte=100"`
	ModelID   string `json:"model_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Validate checks the request fields after JSON binding.
func (r *ChatRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return err
	}
	if strings.TrimSpace(r.Query) == "" {
		return ErrBlankQuery
	}
	return nil
}

// EnsureDefaults populates optional fields that the pipeline requires.
//
//	req.EnsureDefaults()
//	// req.TopK > 0, req.SessionID != ""
func (r *ChatRequest) EnsureDefaults() {
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}
	if r.SessionID == "" {
		r.SessionID = GenerateID()
	}
}

// ErrBlankQuery is returned by Validate for whitespace-only queries.
var ErrBlankQuery = validationError("query must not be blank")

type validationError string

func (e validationError) Error() string { return string(e) }

// =============================================================================
// Citations and Answers
// =============================================================================

// Citation is one deduplicated source reference in a final answer.
// Uniqueness key is (Title, Page); Index is the display number the
// rewritten answer text uses.
type Citation struct {
	Title string `json:"title"`
	Page  int    `json:"page"`
	URL   string `json:"url"`
	Index int    `json:"-"`
}

// GroundedAnswer is the outcome of one model's pipeline run: answer text
// with markers renumbered to a dense 1..K sequence and the matching
// ordered citation list.
//
// Invariant: every Citation corresponds to a context entry that was
// actually sent to the model, and K equals the highest marker present in
// Answer.
type GroundedAnswer struct {
	Answer         string     `json:"answer"`
	Citations      []Citation `json:"citations"`
	ModelID        string     `json:"model_id"`
	LatencyMs      float64    `json:"latency_ms"`
	RetrievalCount int        `json:"retrieval_count"`

	// Fallback is true when the anti-hallucination guard replaced the
	// model output with the neutral insufficient-information message.
	Fallback bool `json:"-"`

	// CorruptedCitation is true when the model referenced at least one
	// marker outside the supplied context range. The marker is dropped;
	// the request is not aborted.
	CorruptedCitation bool `json:"-"`
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	Query     string     `json:"query"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// =============================================================================
// Comparison Types
// =============================================================================

// ModelComparisonResult is one slot of a multi-model comparison. Exactly
// one of (Answer, Error) carries the outcome: a failed branch reports
// Error and empty citations instead of aborting the other branches.
type ModelComparisonResult struct {
	ModelID   string     `json:"model_id"`
	ModelName string     `json:"model_name"`
	Answer    string     `json:"answer,omitempty"`
	Citations []Citation `json:"citations"`
	Error     string     `json:"error,omitempty"`
}

// ComparisonResponse is the body of a successful POST /chat/compare.
// Results always has one entry per configured model, in configuration
// order regardless of completion order; client UIs map slots to model
// labels positionally.
type ComparisonResponse struct {
	Query             string                  `json:"query"`
	ReformulatedQuery string                  `json:"reformulated_query"`
	Results           []ModelComparisonResult `json:"results"`
	LatencyMs         float64                 `json:"latency_ms"`
	RetrievalCount    int                     `json:"retrieval_count"`
}

// SelectionRequest is the body of POST /chat/comparison/select, sent when
// the user picks one model's answer out of a comparison run. The fields
// beyond ModelID echo what the client already displayed so the analytics
// events can be replayed for the chosen model only.
type SelectionRequest struct {
	ModelID        string  `json:"model_id" validate:"required"`
	Query          string  `json:"query,omitempty"`
	Answer         string  `json:"answer,omitempty"`
	CitationCount  int     `json:"citation_count,omitempty" validate:"gte=0"`
	RetrievalCount int     `json:"retrieval_count,omitempty" validate:"gte=0"`
	LatencyMs      float64 `json:"latency_ms,omitempty" validate:"gte=0"`
	SessionID      string  `json:"session_id,omitempty"`
}

// Validate checks the selection request fields.
func (r *SelectionRequest) Validate() error {
	return chatValidate.Struct(r)
}

// =============================================================================
// Helpers
// =============================================================================

// GenerateID returns a new UUID v4 string. Used for session and
// correlation identifiers.
func GenerateID() string {
	return uuid.NewString()
}
