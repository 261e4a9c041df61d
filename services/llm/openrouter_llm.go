// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lodestar.llm")

// Compile-time interface implementation check.
var _ LLMClient = (*OpenRouterClient)(nil)

// OpenRouterClient talks to OpenRouter (or any OpenAI-compatible
// endpoint) through the go-openai SDK.
//
// # Description
//
// OpenRouter multiplexes many upstream models behind the OpenAI chat
// completion wire protocol, so a single client serves both the primary
// model and every comparison model; branch code selects models via
// GenerationParams.ModelOverride.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying SDK client is stateless per
// call.
type OpenRouterClient struct {
	client *openai.Client
	model  string
}

// NewOpenRouterClient creates a client for the given OpenAI-compatible
// endpoint.
//
// # Inputs
//
//   - apiKey: provider credential. Must not be empty.
//   - baseURL: endpoint, e.g. "https://openrouter.ai/api/v1".
//   - model: default model identifier for calls without an override.
//
// # Outputs
//
//   - *OpenRouterClient: ready for use.
//   - error: non-nil when the credential is missing.
func NewOpenRouterClient(apiKey, baseURL, model string) (*OpenRouterClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("provider API key not configured")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	slog.Info("Initializing OpenRouter client", "base_url", cfg.BaseURL, "model", model)
	return &OpenRouterClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// Generate implements the LLMClient interface.
//
// Exactly one attempt; the caller owns the deadline via ctx. Empty
// completions are reported as ErrInvalidResponse rather than returned as
// answers.
func (o *OpenRouterClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenRouterClient.Generate")
	defer span.End()

	model := o.model
	if params.ModelOverride != "" {
		model = params.ModelOverride
	}
	span.SetAttributes(attribute.String("llm.model", model))

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		classified := ClassifyProviderError(err)
		span.RecordError(classified)
		span.SetStatus(codes.Error, "completion failed")
		slog.Error("Provider call failed", "model", model, "error", err)
		return "", classified
	}

	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, "no choices")
		return "", fmt.Errorf("%w: no choices returned", ErrInvalidResponse)
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		span.SetStatus(codes.Error, "empty content")
		return "", fmt.Errorf("%w: empty completion", ErrInvalidResponse)
	}

	span.SetAttributes(attribute.Int("llm.answer_chars", len(answer)))
	slog.Debug("Received completion", "model", model, "finish_reason", resp.Choices[0].FinishReason)
	return answer, nil
}
