// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func runHealthCommand(cmd *cobra.Command, args []string) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(getServiceBaseURL() + "/health")
	if err != nil {
		fatal("Service unreachable", "error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fatal("Service unhealthy", "status", resp.StatusCode)
	}

	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		fatal("Malformed health response", "error", err)
	}

	if rawJSON {
		printJSON(health)
		return
	}
	fmt.Println("chatcore service is healthy")
	for _, key := range []string{"service", "model", "retrieval_url", "provider_configured"} {
		if v, ok := health[key]; ok {
			fmt.Printf("  %s: %v\n", key, v)
		}
	}
}
