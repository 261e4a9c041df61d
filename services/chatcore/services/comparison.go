// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lodestar-ai/lodestar/services/chatcore/config"
	"github.com/lodestar-ai/lodestar/services/chatcore/datatypes"
	"github.com/lodestar-ai/lodestar/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var comparisonTracer = otel.Tracer("lodestar.chatcore.services.comparison")

// ErrAllModelsFailed is returned by Compare when every branch failed.
// Partial failure is not an error: failed branches become failure slots.
var ErrAllModelsFailed = errors.New("all comparison models failed")

// ComparisonOrchestrator fans one shared prompt out to the configured
// model list in parallel and merges the branches deterministically.
//
// # Description
//
// Retrieval and prompt assembly happen once, upstream; the orchestrator
// only coordinates generation branches. Each branch runs the full answer
// pipeline under its own per-call timeout. The orchestrator always waits
// for every branch to settle, success or failure, and emits slots in
// configuration order, never completion order, because client UIs map
// slots to model labels positionally.
type ComparisonOrchestrator struct {
	pipeline *AnswerPipeline
	models   []config.ComparisonModel
}

// NewComparisonOrchestrator wires the fan-out over the fixed model list.
func NewComparisonOrchestrator(pipeline *AnswerPipeline, models []config.ComparisonModel) *ComparisonOrchestrator {
	return &ComparisonOrchestrator{pipeline: pipeline, models: models}
}

// Models returns the fixed, ordered comparison model list.
func (o *ComparisonOrchestrator) Models() []config.ComparisonModel {
	return o.models
}

// HasModel reports whether id is one of the configured comparison
// models. Used to validate selection requests.
func (o *ComparisonOrchestrator) HasModel(id string) bool {
	for _, m := range o.models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Compare runs every configured model against the shared prompt.
//
// # Outputs
//
//   - []datatypes.ModelComparisonResult: always exactly one slot per
//     configured model, in configuration order. A failed branch's slot
//     carries a terse failure reason in Error instead of an answer.
//   - error: ErrAllModelsFailed only when zero branches succeeded;
//     context.Canceled when the client abandoned the request. A parent
//     deadline that elapses mid-flight is not fatal on its own: every
//     branch still settles (its per-call timeout converts into a
//     failure slot), and the slot set is returned as long as at least
//     one branch succeeded before the deadline.
func (o *ComparisonOrchestrator) Compare(ctx context.Context, prompt string,
	pctx PromptContext) ([]datatypes.ModelComparisonResult, error) {

	ctx, span := comparisonTracer.Start(ctx, "ComparisonOrchestrator.Compare")
	defer span.End()
	span.SetAttributes(attribute.Int("comparison.models", len(o.models)))

	slots := make([]datatypes.ModelComparisonResult, len(o.models))

	// One task per model; branch failures are captured into slots, so
	// the group itself never errors and Wait means "all settled".
	var g errgroup.Group
	for i, model := range o.models {
		g.Go(func() error {
			answer, err := o.pipeline.Run(ctx, prompt, pctx, model.ID)
			if err != nil {
				slog.Warn("Comparison branch failed",
					"model", model.ID, "error", err)
				slots[i] = datatypes.ModelComparisonResult{
					ModelID:   model.ID,
					ModelName: model.Name,
					Citations: []datatypes.Citation{},
					Error:     branchFailureReason(err),
				}
				return nil
			}
			slots[i] = datatypes.ModelComparisonResult{
				ModelID:   model.ID,
				ModelName: model.Name,
				Answer:    answer.Answer,
				Citations: answer.Citations,
			}
			return nil
		})
	}
	_ = g.Wait()

	// Client cancellation makes the whole result set moot. An elapsed
	// deadline does not: settled slots are still worth returning.
	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "comparison canceled")
		return nil, err
	}

	succeeded := 0
	for _, slot := range slots {
		if slot.Error == "" {
			succeeded++
		}
	}
	span.SetAttributes(attribute.Int("comparison.succeeded", succeeded))

	if succeeded == 0 {
		span.SetStatus(codes.Error, "all branches failed")
		return nil, ErrAllModelsFailed
	}
	return slots, nil
}

// branchFailureReason maps a branch error to the terse, user-visible
// message stored in a failure slot. Provider detail stays in the server
// logs only.
func branchFailureReason(err error) string {
	switch {
	case errors.Is(err, llm.ErrGenerationTimeout), errors.Is(err, context.DeadlineExceeded):
		return "generation timed out"
	case errors.Is(err, llm.ErrRateLimited):
		return "provider rate limited"
	case errors.Is(err, llm.ErrInvalidResponse):
		return "model returned an unusable answer"
	default:
		return "generation failed"
	}
}
