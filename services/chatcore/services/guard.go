// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/lodestar-ai/lodestar/services/chatcore/config"
)

// =============================================================================
// Fixed Messages
// =============================================================================

const (
	// FallbackMessage replaces a rejected answer: either the model cited
	// nothing, or it declared the context insufficient.
	FallbackMessage = "The source documents do not contain information about this topic. Please try asking about the regulations, policies, or procedures they cover."

	// NoResultsMessage is returned when retrieval finds nothing at all.
	// No generation call is made in that case.
	NoResultsMessage = "I couldn't find any relevant information in the source documents to answer your question. Please try rephrasing your query."
)

// guardScanWindow is how many characters of the answer opening are
// scanned for insufficient-information phrases. Models that give up do
// so in the first sentence; scanning the whole answer would false-match
// answers that merely discuss what a source omits.
const guardScanWindow = 150

// =============================================================================
// Guard
// =============================================================================

// GuardState is the two-state outcome of the anti-hallucination check.
type GuardState int

const (
	// StateGrounded passes the answer through to deduplication.
	StateGrounded GuardState = iota

	// StateFallback replaces the answer with FallbackMessage and forces
	// the citation list empty.
	StateFallback
)

// Guard rejects answers that lack grounding.
//
// # Description
//
// An answer falls back when either (a) its validated reference list is
// empty (the model asserted facts without citing any supplied source)
// or (b) its opening matches a configured insufficient-information
// phrase, meaning the model itself declared the context unusable. In
// both cases leftover markers are stripped, never rendered.
type Guard struct {
	phrases *PhraseStore
}

// NewGuard creates a guard over the given phrase store.
func NewGuard(phrases *PhraseStore) *Guard {
	return &Guard{phrases: phrases}
}

// Evaluate classifies an answer. refs must already be validated against
// the prompt context (see ExtractReferences).
func (g *Guard) Evaluate(text string, refs []int) GuardState {
	if len(refs) == 0 {
		return StateFallback
	}

	head := truncateToRune(strings.ToLower(text), guardScanWindow)
	for _, phrase := range g.phrases.Phrases() {
		if strings.Contains(head, phrase) {
			return StateFallback
		}
	}
	return StateGrounded
}

// =============================================================================
// Phrase Store
// =============================================================================

// PhraseStore holds the insufficient-information phrase allow-list.
// The list is heuristic and deployment-tunable, so it lives behind a
// store that supports hot reload from the models config file.
//
// # Thread Safety
//
// Safe for concurrent use.
type PhraseStore struct {
	mu      sync.RWMutex
	phrases []string
}

// NewPhraseStore creates a store with the given phrases, lowercased for
// case-insensitive matching.
func NewPhraseStore(phrases []string) *PhraseStore {
	s := &PhraseStore{}
	s.Replace(phrases)
	return s
}

// Phrases returns a snapshot of the current phrase list.
func (s *PhraseStore) Phrases() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.phrases))
	copy(out, s.phrases)
	return out
}

// Replace swaps in a new phrase list.
func (s *PhraseStore) Replace(phrases []string) {
	lowered := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			lowered = append(lowered, p)
		}
	}
	s.mu.Lock()
	s.phrases = lowered
	s.mu.Unlock()
}

// Watch reloads the phrase list whenever the models config file changes.
// Blocks until ctx is done; run it in its own goroutine. Reload errors
// keep the previous list and are logged, never fatal.
func (s *PhraseStore) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	slog.Info("Watching models config file for phrase updates", "path", path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			phrases, err := config.LoadPhrases(path)
			if err != nil {
				slog.Warn("Failed to reload guard phrases, keeping previous list",
					"path", path, "error", err)
				continue
			}
			if len(phrases) == 0 {
				continue
			}
			s.Replace(phrases)
			slog.Info("Reloaded guard phrase list", "count", len(phrases))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Models config watcher error", "error", err)
		}
	}
}
