// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the chatcore service.
//
// This file contains the wire types exchanged with the retrieval
// collaborator. For chat request/response types, see chat.go.
package datatypes

// RetrievedChunk is one span of source text returned by the retrieval
// service, ordered descending by similarity score. Chunks are immutable
// once returned; the pipeline never mutates them.
type RetrievedChunk struct {
	Text       string  `json:"text"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Page       int     `json:"page"`
	URL        string  `json:"url"`
	Score      float64 `json:"score"`
	ChunkIndex int     `json:"chunk_index"`
}

// SearchRequest is the payload sent to the retrieval service's /search
// endpoint.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// SearchResponse is the retrieval service's reply. An empty Results slice
// is a valid outcome, not an error.
type SearchResponse struct {
	Results []RetrievedChunk `json:"results"`
}
