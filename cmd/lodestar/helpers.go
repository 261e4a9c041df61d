// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// fatal logs the failure and exits. Logs go to stderr (and the log
// file, when LODESTAR_LOG_DIR is set); stdout stays reserved for
// command output.
func fatal(msg string, args ...any) {
	cliLogger.Error(msg, args...)
	cliLogger.Close()
	os.Exit(1)
}

// getServiceBaseURL resolves the chatcore endpoint the CLI talks to.
func getServiceBaseURL() string {
	if url := os.Getenv("LODESTAR_SERVICE_URL"); url != "" {
		return url
	}
	return "http://localhost:12310"
}

func newHTTPClient() *http.Client {
	// Comparison requests wait on several models; allow for the slow one.
	return &http.Client{Timeout: 5 * time.Minute}
}

// postJSON posts the payload and decodes a 200 response into out.
func postJSON(path string, payload any, out any) error {
	resp, err := doPost(path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serviceError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// postJSONStatus posts the payload and returns the status code,
// treating any 2xx as success.
func postJSONStatus(path string, payload any) (int, error) {
	resp, err := doPost(path, payload)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return resp.StatusCode, serviceError(resp)
	}
	return resp.StatusCode, nil
}

func doPost(path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, getServiceBaseURL()+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	cliLogger.Debug("posting request", "path", path, "bytes", len(body))
	req.Header.Set("Content-Type", "application/json")
	if token := os.Getenv("LODESTAR_SESSION_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := newHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling chatcore service: %w", err)
	}
	return resp, nil
}

// serviceError extracts the service's error message from a failed
// response body.
func serviceError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return fmt.Errorf("service returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("service returned status %d", resp.StatusCode)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
