// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"testing"
	"time"

	"github.com/lodestar-ai/lodestar/services/chatcore/config"
	"github.com/lodestar-ai/lodestar/services/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testComparisonModels() []config.ComparisonModel {
	return []config.ComparisonModel{
		{ID: "vendor/alpha", Name: "Alpha"},
		{ID: "vendor/beta", Name: "Beta"},
		{ID: "vendor/gamma", Name: "Gamma"},
	}
}

func TestComparison_AllSucceedInConfigurationOrder(t *testing.T) {
	mock := &MockLLMClient{
		GenerateFunc: func(_ context.Context, prompt string, params llm.GenerationParams) (string, error) {
			// Each model answers with its own text, same citation.
			return "Answer from " + params.ModelOverride + ". [1]", nil
		},
	}
	orch := NewComparisonOrchestrator(newTestPipeline(mock), testComparisonModels())
	pctx := makeContext([2]any{"Doc A", 1})

	results, err := orch.Compare(context.Background(), "prompt", pctx)

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "vendor/alpha", results[0].ModelID)
	assert.Equal(t, "vendor/beta", results[1].ModelID)
	assert.Equal(t, "vendor/gamma", results[2].ModelID)
	for _, r := range results {
		assert.Empty(t, r.Error)
		assert.Contains(t, r.Answer, "Answer from "+r.ModelID)
		assert.Len(t, r.Citations, 1)
	}
	assert.Equal(t, 3, mock.GenerateCallCount)
}

func TestComparison_PartialFailureKeepsSlot(t *testing.T) {
	mock := &MockLLMClient{
		GenerateFunc: func(_ context.Context, prompt string, params llm.GenerationParams) (string, error) {
			if params.ModelOverride == "vendor/beta" {
				return "", llm.ErrRateLimited
			}
			return "Fine. [1]", nil
		},
	}
	orch := NewComparisonOrchestrator(newTestPipeline(mock), testComparisonModels())
	pctx := makeContext([2]any{"Doc A", 1})

	results, err := orch.Compare(context.Background(), "prompt", pctx)

	require.NoError(t, err, "partial failure is not an error")
	require.Len(t, results, 3, "failed branches keep their slot")
	assert.Empty(t, results[0].Error)
	assert.Equal(t, "provider rate limited", results[1].Error)
	assert.Empty(t, results[1].Answer, "failure slots carry no answer")
	assert.Empty(t, results[2].Error)
}

func TestComparison_BranchTimeoutBecomesFailureSlot(t *testing.T) {
	mock := &MockLLMClient{
		GenerateFunc: func(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
			if params.ModelOverride == "vendor/beta" {
				<-ctx.Done()
				return "", ctx.Err()
			}
			return "Fine. [1]", nil
		},
	}
	pipeline := NewAnswerPipeline(mock, newTestGuard(), 0.4, 1200, 50*time.Millisecond)
	orch := NewComparisonOrchestrator(pipeline, testComparisonModels())
	pctx := makeContext([2]any{"Doc A", 1})

	results, err := orch.Compare(context.Background(), "prompt", pctx)

	require.NoError(t, err, "a single slow branch must not fail the comparison")
	require.Len(t, results, 3)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, "generation timed out", results[1].Error)
	assert.Empty(t, results[1].Answer)
	assert.Empty(t, results[2].Error)
}

func TestComparison_ElapsedDeadlineKeepsSettledSlots(t *testing.T) {
	mock := &MockLLMClient{
		GenerateFunc: func(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
			if params.ModelOverride == "vendor/alpha" {
				return "Fast answer. [1]", nil
			}
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	orch := NewComparisonOrchestrator(newTestPipeline(mock), testComparisonModels())
	pctx := makeContext([2]any{"Doc A", 1})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	results, err := orch.Compare(ctx, "prompt", pctx)

	require.NoError(t, err, "an elapsed deadline keeps slots that settled in time")
	require.Len(t, results, 3)
	assert.Empty(t, results[0].Error)
	assert.Contains(t, results[0].Answer, "Fast answer")
	assert.Equal(t, "generation timed out", results[1].Error)
	assert.Equal(t, "generation timed out", results[2].Error)
}

func TestComparison_ElapsedDeadlineWithNoSettledSlots(t *testing.T) {
	mock := &MockLLMClient{
		GenerateFunc: func(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	orch := NewComparisonOrchestrator(newTestPipeline(mock), testComparisonModels())
	pctx := makeContext([2]any{"Doc A", 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	results, err := orch.Compare(ctx, "prompt", pctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllModelsFailed)
	assert.Nil(t, results)
}

func TestComparison_AllFail(t *testing.T) {
	mock := &MockLLMClient{GenerateError: llm.ErrProvider}
	orch := NewComparisonOrchestrator(newTestPipeline(mock), testComparisonModels())
	pctx := makeContext([2]any{"Doc A", 1})

	results, err := orch.Compare(context.Background(), "prompt", pctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllModelsFailed)
	assert.Nil(t, results)
}

func TestComparison_CanceledContext(t *testing.T) {
	mock := &MockLLMClient{GenerateResponse: "Fine. [1]"}
	orch := NewComparisonOrchestrator(newTestPipeline(mock), testComparisonModels())
	pctx := makeContext([2]any{"Doc A", 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := orch.Compare(ctx, "prompt", pctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestComparison_HasModel(t *testing.T) {
	orch := NewComparisonOrchestrator(nil, testComparisonModels())

	assert.True(t, orch.HasModel("vendor/beta"))
	assert.False(t, orch.HasModel("vendor/unknown"))
}
