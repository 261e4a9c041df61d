// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services contains the business logic of the chatcore service:
// the retrieval gateway, prompt assembly, citation integrity pipeline,
// and the single- and multi-model orchestration built on top of them.
//
// Services are designed to be:
//   - Testable: dependencies are injected via constructors
//   - Composable: the comparison orchestrator reuses the answer pipeline
//   - Traceable: all methods accept context for distributed tracing
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lodestar-ai/lodestar/services/chatcore/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// retrievalTracer is the OpenTelemetry tracer for retrieval operations.
var retrievalTracer = otel.Tracer("lodestar.chatcore.services.retrieval")

// ErrRetrievalUnavailable is returned when the retrieval collaborator
// cannot be reached, times out, or answers with a non-200 status. Fatal
// for the request; the pipeline never generates without retrieval.
var ErrRetrievalUnavailable = errors.New("retrieval service unavailable")

// Retriever is the contract the pipeline consumes for chunk search.
// Implementations must be safe for concurrent use.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]datatypes.RetrievedChunk, error)
}

// Compile-time interface implementation check.
var _ Retriever = (*RetrievalClient)(nil)

// RetrievalClient is the typed HTTP client for the retrieval
// collaborator's /search endpoint.
//
// # Description
//
// One bounded attempt per call; no retry loop lives here. An empty
// result set is a valid, non-error outcome; callers short-circuit to the
// no-information response instead of invoking generation.
type RetrievalClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRetrievalClient creates a retrieval client for the given base URL.
// The timeout bounds the single search attempt end to end.
func NewRetrievalClient(baseURL string, timeout time.Duration) *RetrievalClient {
	return &RetrievalClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Search retrieves up to topK chunks for the query.
//
// # Inputs
//
//   - ctx: context for cancellation and tracing.
//   - query: the (possibly reformulated) search text.
//   - topK: requested chunk count. Non-positive values use the default;
//     values above datatypes.MaxTopK are clamped, not rejected.
//
// # Outputs
//
//   - []datatypes.RetrievedChunk: ordered descending by score. May be
//     empty; empty is not an error.
//   - error: ErrRetrievalUnavailable (wrapped) on transport failure,
//     timeout, or non-200 status. Context cancellation from the caller
//     propagates unchanged.
func (c *RetrievalClient) Search(ctx context.Context, query string, topK int) ([]datatypes.RetrievedChunk, error) {
	ctx, span := retrievalTracer.Start(ctx, "RetrievalClient.Search")
	defer span.End()

	if topK <= 0 {
		topK = datatypes.DefaultTopK
	}
	if topK > datatypes.MaxTopK {
		topK = datatypes.MaxTopK
	}
	span.SetAttributes(
		attribute.Int("retrieval.top_k", topK),
		attribute.Int("retrieval.query_chars", len(query)),
	)

	payload, err := json.Marshal(datatypes.SearchRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("marshaling search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// Caller gave up; don't relabel their cancellation.
			return nil, ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrRetrievalUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		span.SetAttributes(attribute.Int("retrieval.status_code", resp.StatusCode))
		span.SetStatus(codes.Error, "non-200 from retrieval")
		slog.Error("Retrieval service returned an error",
			"status", resp.StatusCode, "body_chars", len(body))
		return nil, fmt.Errorf("%w: status %d", ErrRetrievalUnavailable, resp.StatusCode)
	}

	var searchResp datatypes.SearchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("%w: parsing response: %v", ErrRetrievalUnavailable, err)
	}

	span.SetAttributes(attribute.Int("retrieval.chunks", len(searchResp.Results)))
	return searchResp.Results, nil
}

// IsRetrievalUnavailable checks whether an error came from the retrieval
// collaborator being unreachable. Handlers use this to pick the 502.
func IsRetrievalUnavailable(err error) bool {
	return errors.Is(err, ErrRetrievalUnavailable)
}
