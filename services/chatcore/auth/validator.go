// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package auth validates bearer session tokens against the auth
// service and carries the resolved session identity through a request.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized indicates the token was missing, malformed, expired,
// or rejected by the auth service.
var ErrUnauthorized = errors.New("unauthorized")

// SessionInfo is the identity attached to an authenticated request.
type SessionInfo struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// SessionValidator resolves a bearer token to a session identity.
//
// # Errors
//
// Implementations return an error wrapping ErrUnauthorized for any
// token the auth backend rejects, and other errors for transport
// failures reaching the backend.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*SessionInfo, error)
}

// ===== HTTP Validator =====

// HTTPSessionValidator validates tokens by calling the auth service's
// session introspection endpoint.
type HTTPSessionValidator struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSessionValidator builds a validator against the auth service
// at baseURL.
func NewHTTPSessionValidator(baseURL string, timeout time.Duration) *HTTPSessionValidator {
	return &HTTPSessionValidator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Validate calls GET /auth/session with the bearer token and decodes
// the session identity from the response.
func (v *HTTPSessionValidator) Validate(ctx context.Context, token string) (*SessionInfo, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token: %w", ErrUnauthorized)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/session", nil)
	if err != nil {
		return nil, fmt.Errorf("building session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling auth service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var info SessionInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return nil, fmt.Errorf("decoding session response: %w", err)
		}
		return &info, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("auth service rejected token: %w", ErrUnauthorized)
	default:
		return nil, fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}
}

// ===== Nop Validator =====

// NopSessionValidator accepts every request with a fixed local
// identity. Used when no auth service URL is configured, for local
// single-user deployments.
type NopSessionValidator struct{}

// Validate always succeeds.
func (NopSessionValidator) Validate(_ context.Context, _ string) (*SessionInfo, error) {
	return &SessionInfo{UserID: "local", Email: "local@localhost", IsAdmin: true}, nil
}
