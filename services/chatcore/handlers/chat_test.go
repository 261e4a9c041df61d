// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lodestar-ai/lodestar/services/chatcore/config"
	"github.com/lodestar-ai/lodestar/services/chatcore/datatypes"
	"github.com/lodestar-ai/lodestar/services/chatcore/services"
	"github.com/lodestar-ai/lodestar/services/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Fixtures
// =============================================================================

// stubLLM answers every Generate call with a fixed response or error.
type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	return s.response, s.err
}

// stubRetriever returns canned chunks.
type stubRetriever struct {
	chunks []datatypes.RetrievedChunk
	err    error
}

func (s *stubRetriever) Search(_ context.Context, _ string, _ int) ([]datatypes.RetrievedChunk, error) {
	return s.chunks, s.err
}

func testConfig() *config.Config {
	return &config.Config{
		RetrievalURL:       "http://retrieval:8002",
		PrimaryModelID:     "vendor/primary",
		ProviderAPIKey:     "key",
		ComparisonModels:   []config.ComparisonModel{{ID: "vendor/alpha", Name: "Alpha"}},
		ContextTokenBudget: config.DefaultContextTokenBudget,
		ChunkCharCap:       config.DefaultChunkCharCap,
	}
}

func newTestService(cfg *config.Config, retriever services.Retriever, client llm.LLMClient) *services.ChatService {
	guard := services.NewGuard(services.NewPhraseStore(config.DefaultInsufficientPhrases()))
	pipeline := services.NewAnswerPipeline(client, guard, 0.4, 1200, 30*time.Second)
	return services.NewChatService(
		cfg,
		retriever,
		services.NewReformulator(nil, time.Second, false),
		pipeline,
		services.NewComparisonOrchestrator(pipeline, cfg.ComparisonModels),
		services.PromptBuilder{TokenBudget: cfg.ContextTokenBudget, ChunkCharCap: cfg.ChunkCharCap},
		nil,
		nil,
	)
}

func chatRouter(service *services.ChatService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/chat", HandleChat(service, nil))
	router.POST("/chat/compare", HandleCompare(service, nil))
	router.POST("/chat/comparison/select", HandleComparisonSelect(service, nil))
	return router
}

func postBody(t *testing.T, router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// HandleChat Tests
// =============================================================================

func TestHandleChat_Success(t *testing.T) {
	retriever := &stubRetriever{chunks: []datatypes.RetrievedChunk{
		{Title: "Handbook", Page: 4, Text: "Helmets are mandatory.", Score: 0.9},
	}}
	service := newTestService(testConfig(), retriever, &stubLLM{response: "Helmets are mandatory. [1]"})
	router := chatRouter(service)

	w := postBody(t, router, "/chat", datatypes.ChatRequest{Query: "helmet rules?"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Helmets are mandatory. [1]", resp.Answer)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "Handbook", resp.Citations[0].Title)
	assert.Equal(t, 4, resp.Citations[0].Page)
}

func TestHandleChat_BlankQuery(t *testing.T) {
	service := newTestService(testConfig(), &stubRetriever{}, &stubLLM{})
	router := chatRouter(service)

	w := postBody(t, router, "/chat", datatypes.ChatRequest{Query: "   "})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChat_MalformedJSON(t *testing.T) {
	service := newTestService(testConfig(), &stubRetriever{}, &stubLLM{})
	router := chatRouter(service)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChat_RetrievalDown(t *testing.T) {
	retriever := &stubRetriever{err: services.ErrRetrievalUnavailable}
	service := newTestService(testConfig(), retriever, &stubLLM{})
	router := chatRouter(service)

	w := postBody(t, router, "/chat", datatypes.ChatRequest{Query: "q"})

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandleChat_ProviderDown(t *testing.T) {
	retriever := &stubRetriever{chunks: []datatypes.RetrievedChunk{
		{Title: "Doc", Page: 1, Text: "text"},
	}}
	service := newTestService(testConfig(), retriever, &stubLLM{err: llm.ErrProvider})
	router := chatRouter(service)

	w := postBody(t, router, "/chat", datatypes.ChatRequest{Query: "q"})

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandleChat_NoResults(t *testing.T) {
	service := newTestService(testConfig(), &stubRetriever{}, &stubLLM{})
	router := chatRouter(service)

	w := postBody(t, router, "/chat", datatypes.ChatRequest{Query: "obscure topic"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, services.NoResultsMessage, resp.Answer)
	assert.NotNil(t, resp.Citations, "citations must serialize as [], not null")
	assert.Empty(t, resp.Citations)
}

// =============================================================================
// HandleCompare Tests
// =============================================================================

func TestHandleCompare_AllModelsFail(t *testing.T) {
	retriever := &stubRetriever{chunks: []datatypes.RetrievedChunk{
		{Title: "Doc", Page: 1, Text: "text"},
	}}
	service := newTestService(testConfig(), retriever, &stubLLM{err: llm.ErrProvider})
	router := chatRouter(service)

	w := postBody(t, router, "/chat/compare", datatypes.ChatRequest{Query: "q"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleCompare_Success(t *testing.T) {
	retriever := &stubRetriever{chunks: []datatypes.RetrievedChunk{
		{Title: "Doc", Page: 1, Text: "text"},
	}}
	service := newTestService(testConfig(), retriever, &stubLLM{response: "Answer. [1]"})
	router := chatRouter(service)

	w := postBody(t, router, "/chat/compare", datatypes.ChatRequest{Query: "q"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.ComparisonResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "vendor/alpha", resp.Results[0].ModelID)
	assert.Equal(t, 1, resp.RetrievalCount)
}

// =============================================================================
// HandleComparisonSelect Tests
// =============================================================================

func TestHandleComparisonSelect_Recorded(t *testing.T) {
	service := newTestService(testConfig(), &stubRetriever{}, &stubLLM{})
	router := chatRouter(service)

	w := postBody(t, router, "/chat/comparison/select",
		datatypes.SelectionRequest{ModelID: "vendor/alpha"})

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleComparisonSelect_UnknownModel(t *testing.T) {
	service := newTestService(testConfig(), &stubRetriever{}, &stubLLM{})
	router := chatRouter(service)

	w := postBody(t, router, "/chat/comparison/select",
		datatypes.SelectionRequest{ModelID: "vendor/never-configured"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", HealthCheck(testConfig()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "chatcore", health["service"])
	assert.Equal(t, true, health["provider_configured"])
	assert.Equal(t, "vendor/primary", health["model"])
}
