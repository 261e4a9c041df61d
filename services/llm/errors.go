// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

// The four sentinel errors below are the whole provider failure surface
// the orchestration layer sees, regardless of backend.
var (
	// ErrGenerationTimeout: the per-call deadline elapsed before the
	// provider answered.
	ErrGenerationTimeout = errors.New("generation timed out")

	// ErrRateLimited: the provider rejected the call with a rate limit.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrProvider: any other provider-side failure (5xx, transport).
	ErrProvider = errors.New("provider error")

	// ErrInvalidResponse: the provider answered but the output was empty
	// or malformed.
	ErrInvalidResponse = errors.New("invalid provider response")
)

// ClassifyProviderError maps a raw error from the OpenAI-compatible SDK
// onto the taxonomy. The original error stays wrapped for server-side
// diagnostics; handlers must never echo it to clients.
func ClassifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrGenerationTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return fmt.Errorf("%w: status %d: %v", ErrProvider, apiErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("%w: %v", ErrProvider, err)
}
