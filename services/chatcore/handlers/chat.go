// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers maps HTTP requests onto the chat service.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lodestar-ai/lodestar/services/chatcore/auth"
	"github.com/lodestar-ai/lodestar/services/chatcore/config"
	"github.com/lodestar-ai/lodestar/services/chatcore/datatypes"
	"github.com/lodestar-ai/lodestar/services/chatcore/middleware"
	"github.com/lodestar-ai/lodestar/services/chatcore/observability"
	"github.com/lodestar-ai/lodestar/services/chatcore/services"
	"github.com/lodestar-ai/lodestar/services/llm"
)

// HandleChat answers a single-model grounded chat request.
//
// # Description
//
// POST /chat. Binds and validates the request, resolves the session
// placed by the auth middleware, and runs the full pipeline.
//
// # HTTP Status Codes
//
//   - 200: grounded answer (possibly the fallback or no-results message)
//   - 400: malformed JSON, blank query, or over-limit fields
//   - 401: handled by the auth middleware before this runs
//   - 502: retrieval backend or model provider failure
//   - 500: anything else
func HandleChat(service *services.ChatService, metrics *observability.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			observeRequest(metrics, "chat", "error", start)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			observeRequest(metrics, "chat", "error", start)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session := mustSession(c)
		resp, err := service.Ask(c.Request.Context(), &req, session)
		if err != nil {
			observeRequest(metrics, "chat", "error", start)
			writePipelineError(c, err)
			return
		}

		observeRequest(metrics, "chat", "success", start)
		c.JSON(http.StatusOK, resp)
	}
}

// HandleCompare answers a chat request with every configured comparison
// model in parallel.
//
// # HTTP Status Codes
//
//   - 200: one result slot per configured model, configuration order
//   - 400: malformed JSON, blank query, or over-limit fields
//   - 500: every model branch failed
//   - 502: retrieval backend failure
func HandleCompare(service *services.ChatService, metrics *observability.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req datatypes.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			observeRequest(metrics, "compare", "error", start)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			observeRequest(metrics, "compare", "error", start)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session := mustSession(c)
		resp, err := service.Compare(c.Request.Context(), &req, session)
		if err != nil {
			observeRequest(metrics, "compare", "error", start)
			writePipelineError(c, err)
			return
		}

		observeRequest(metrics, "compare", "success", start)
		c.JSON(http.StatusOK, resp)
	}
}

// HandleComparisonSelect records which comparison answer the user kept.
//
// # HTTP Status Codes
//
//   - 200: selection recorded
//   - 400: malformed JSON or a model outside the comparison set
func HandleComparisonSelect(service *services.ChatService, metrics *observability.ChatMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var req datatypes.SelectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			observeRequest(metrics, "select", "error", start)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			observeRequest(metrics, "select", "error", start)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session := mustSession(c)
		if err := service.RecordSelection(c.Request.Context(), &req, session); err != nil {
			observeRequest(metrics, "select", "error", start)
			if errors.Is(err, services.ErrUnknownModel) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "model is not in the comparison set"})
				return
			}
			slog.Error("Recording selection failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		observeRequest(metrics, "select", "success", start)
		c.JSON(http.StatusOK, gin.H{"status": "recorded"})
	}
}

// HealthCheck reports process liveness and the wiring the service was
// started with. It never calls downstream dependencies.
func HealthCheck(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":              "ok",
			"service":             "chatcore",
			"retrieval_url":       cfg.RetrievalURL,
			"provider_configured": cfg.ProviderAPIKey != "",
			"model":               cfg.PrimaryModelID,
		})
	}
}

// writePipelineError maps service errors onto HTTP status codes.
// Provider detail stays in logs; clients get a stable short message.
func writePipelineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
		c.Status(http.StatusBadRequest)
	case services.IsRetrievalUnavailable(err):
		slog.Error("Retrieval backend unavailable", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "retrieval service unavailable"})
	case errors.Is(err, llm.ErrGenerationTimeout):
		slog.Error("Generation timed out", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "generation timed out"})
	case errors.Is(err, llm.ErrRateLimited):
		slog.Warn("Provider rate limited", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "model provider rate limited"})
	case errors.Is(err, llm.ErrProvider), errors.Is(err, llm.ErrInvalidResponse):
		slog.Error("Provider call failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "model provider failure"})
	case errors.Is(err, services.ErrAllModelsFailed):
		slog.Error("All comparison models failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "all comparison models failed"})
	default:
		slog.Error("Chat pipeline failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// mustSession returns the identity set by the auth middleware, or a
// local fallback when the route was mounted without it.
func mustSession(c *gin.Context) *auth.SessionInfo {
	if info, ok := middleware.GetSessionInfo(c); ok {
		return info
	}
	return &auth.SessionInfo{UserID: "anonymous"}
}

func observeRequest(metrics *observability.ChatMetrics, endpoint, status string, start time.Time) {
	if metrics == nil {
		return
	}
	metrics.RequestsTotal.WithLabelValues(endpoint, status).Inc()
	metrics.RequestDurationSeconds.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
