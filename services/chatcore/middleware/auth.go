// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware holds gin middleware for the chatcore service.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lodestar-ai/lodestar/services/chatcore/auth"
)

const sessionInfoKey = "lodestar.sessionInfo"

// AuthMiddleware validates the request's bearer token and stores the
// resolved session identity in the gin context. Requests without a
// valid session are rejected with 401 before any handler runs.
func AuthMiddleware(validator auth.SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				gin.H{"error": "missing or malformed Authorization header"})
			return
		}

		info, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					gin.H{"error": "invalid or expired session"})
				return
			}
			slog.Error("Session validation failed", "error", err)
			c.AbortWithStatusJSON(http.StatusBadGateway,
				gin.H{"error": "auth service unavailable"})
			return
		}

		SetSessionInfo(c, info)
		c.Next()
	}
}

// SetSessionInfo stores the session identity on the gin context.
func SetSessionInfo(c *gin.Context, info *auth.SessionInfo) {
	c.Set(sessionInfoKey, info)
}

// GetSessionInfo retrieves the session identity stored by
// AuthMiddleware. The bool is false when no identity was attached.
func GetSessionInfo(c *gin.Context) (*auth.SessionInfo, bool) {
	val, ok := c.Get(sessionInfoKey)
	if !ok {
		return nil, false
	}
	info, ok := val.(*auth.SessionInfo)
	return info, ok
}

// extractBearerToken pulls the token out of an Authorization header.
// The scheme comparison is case-insensitive per RFC 7235.
func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
