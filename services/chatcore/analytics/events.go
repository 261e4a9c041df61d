// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analytics emits usage events to the analytics sink without
// ever blocking or failing the request that produced them.
package analytics

import (
	"time"

	"github.com/lodestar-ai/lodestar/services/chatcore/datatypes"
)

// Event type names carried in the envelope's eventType field.
const (
	EventQuerySubmitted           = "query_submitted"
	EventResponseGenerated        = "response_generated"
	EventModelComparisonTriggered = "model_comparison_triggered"
)

// Source identifies this service in every envelope.
const Source = "chatcore-service"

// Version is the envelope schema version.
const Version = "1.0"

// Event is the envelope shared by every analytics event. CorrelationID
// ties together all events produced by one request.
type Event struct {
	EventType     string         `json:"eventType"`
	EventID       string         `json:"eventId"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlationId"`
	Source        string         `json:"source"`
	Version       string         `json:"version"`
	Payload       map[string]any `json:"payload"`
}

func newEvent(eventType, correlationID string, payload map[string]any) Event {
	return Event{
		EventType:     eventType,
		EventID:       datatypes.GenerateID(),
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Source:        Source,
		Version:       Version,
		Payload:       payload,
	}
}

// NewQuerySubmitted records an accepted query before generation runs.
func NewQuerySubmitted(correlationID, query, sessionID, userID string, reformulated bool) Event {
	return newEvent(EventQuerySubmitted, correlationID, map[string]any{
		"query":         query,
		"queryLength":   len(query),
		"userSessionId": sessionID,
		"userId":        userID,
		"reformulated":  reformulated,
	})
}

// NewResponseGenerated records a completed single-model answer, or the
// user's later pick from a comparison when modelId names the chosen
// model.
func NewResponseGenerated(correlationID, modelID, sessionID, userID string,
	latencyMs int64, citationCount, retrievalCount int, fallback bool) Event {
	return newEvent(EventResponseGenerated, correlationID, map[string]any{
		"modelId":        modelID,
		"latencyMs":      latencyMs,
		"citationCount":  citationCount,
		"retrievalCount": retrievalCount,
		"userSessionId":  sessionID,
		"userId":         userID,
		"fallback":       fallback,
	})
}

// NewModelComparisonTriggered records a comparison run over the full
// configured model set.
func NewModelComparisonTriggered(correlationID, sessionID, userID string,
	modelIDs []string, latencyMs int64, retrievalCount, succeeded int) Event {
	return newEvent(EventModelComparisonTriggered, correlationID, map[string]any{
		"modelIds":       modelIDs,
		"modelCount":     len(modelIDs),
		"succeededCount": succeeded,
		"latencyMs":      latencyMs,
		"retrievalCount": retrievalCount,
		"userSessionId":  sessionID,
		"userId":         userID,
	})
}
