// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/lodestar-ai/lodestar/services/chatcore/datatypes"
	"github.com/spf13/cobra"
)

func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	fmt.Printf("Asking: %s\n", question)
	fmt.Println("---")

	req := datatypes.ChatRequest{
		Query:     question,
		TopK:      topK,
		ModelID:   modelID,
		SessionID: sessionID,
	}

	var resp datatypes.ChatResponse
	if err := postJSON("/chat", req, &resp); err != nil {
		fatal("Chat request failed", "error", err)
	}
	if rawJSON {
		printJSON(resp)
		return
	}

	fmt.Printf("\nAnswer:\n%s\n", resp.Answer)
	printCitations(resp.Citations)
	fmt.Println("\n---")
}

func runCompareCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	fmt.Printf("Comparing models on: %s\n", question)
	fmt.Println("---")

	req := datatypes.ChatRequest{
		Query:     question,
		TopK:      topK,
		SessionID: sessionID,
	}

	var resp datatypes.ComparisonResponse
	if err := postJSON("/chat/compare", req, &resp); err != nil {
		fatal("Comparison request failed", "error", err)
	}
	if rawJSON {
		printJSON(resp)
		return
	}

	if resp.ReformulatedQuery != "" {
		fmt.Printf("(retrieval used reformulated query: %s)\n", resp.ReformulatedQuery)
	}
	for _, result := range resp.Results {
		fmt.Printf("\n=== %s (%s) ===\n", result.ModelName, result.ModelID)
		if result.Error != "" {
			fmt.Printf("FAILED: %s\n", result.Error)
			continue
		}
		fmt.Println(result.Answer)
		printCitations(result.Citations)
	}
	fmt.Printf("\n--- %d chunks retrieved, %.0fms total\n", resp.RetrievalCount, resp.LatencyMs)
	fmt.Println("Keep one with: lodestar select <model-id>")
}

func runSelectCommand(cmd *cobra.Command, args []string) {
	req := datatypes.SelectionRequest{
		ModelID:   args[0],
		SessionID: sessionID,
	}

	status, err := postJSONStatus("/chat/comparison/select", req)
	if err != nil {
		fatal("Selection request failed", "error", err)
	}
	if status != http.StatusOK {
		fatal("Selection rejected", "status", status)
	}
	fmt.Printf("Recorded selection of %s\n", args[0])
}

func printCitations(citations []datatypes.Citation) {
	if len(citations) == 0 {
		fmt.Println("\n(No citations)")
		return
	}
	fmt.Println("\nSources:")
	for i, c := range citations {
		line := fmt.Sprintf("[%d] %s - Page %d", i+1, c.Title, c.Page)
		if c.URL != "" {
			line += " " + c.URL
		}
		fmt.Println(line)
	}
}
