// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config builds the chatcore service configuration.
//
// Configuration is read exactly once at process start and passed into the
// orchestration components as an explicit object. Nothing in the request
// pipeline reads the environment directly.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultContextTokenBudget bounds the prompt context segment.
	DefaultContextTokenBudget = 3500

	// DefaultChunkCharCap bounds a single chunk before budget accounting.
	DefaultChunkCharCap = 6000

	// DefaultTemperature is the generation temperature for answers.
	DefaultTemperature = 0.4

	// DefaultMaxOutputTokens bounds a single generation.
	DefaultMaxOutputTokens = 1200

	// DefaultCallTimeout bounds every outbound provider call.
	DefaultCallTimeout = 60 * time.Second

	// DefaultRetrievalTimeout bounds the single retrieval attempt.
	DefaultRetrievalTimeout = 30 * time.Second

	// DefaultReformulateTimeout bounds the best-effort reformulation call.
	DefaultReformulateTimeout = 15 * time.Second

	defaultPort         = "12310"
	defaultBaseURL      = "https://openrouter.ai/api/v1"
	defaultPrimaryModel = "google/gemma-3n-e2b-it:free"
)

// =============================================================================
// Types
// =============================================================================

// ComparisonModel is one fixed entry of the multi-model comparison list.
type ComparisonModel struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Config carries everything the chatcore service needs. Built once by
// FromEnv at startup; treated as read-only afterwards.
type Config struct {
	// Port the HTTP server listens on.
	Port string

	// RetrievalURL is the base URL of the retrieval collaborator.
	RetrievalURL string

	// AuthServiceURL is the base URL of the session-validation collaborator.
	// Empty means no-op validation (local development).
	AuthServiceURL string

	// EventSinkURL is the base URL of the analytics event sink.
	// Empty disables analytics emission.
	EventSinkURL string

	// ProviderAPIKey authenticates against the model provider.
	ProviderAPIKey string

	// ProviderBaseURL is the OpenAI-compatible endpoint of the provider.
	ProviderBaseURL string

	// PrimaryModelID is the default generation model.
	PrimaryModelID string

	// ComparisonModels is the fixed, ordered model list for /chat/compare.
	ComparisonModels []ComparisonModel

	// InsufficientPhrases is the anti-hallucination phrase allow-list.
	// Matched case-insensitively against the head of a generated answer.
	InsufficientPhrases []string

	ContextTokenBudget int
	ChunkCharCap       int
	Temperature        float32
	MaxOutputTokens    int
	CallTimeout        time.Duration
	RetrievalTimeout   time.Duration
	ReformulateTimeout time.Duration

	// EnableReformulation toggles the best-effort query cleanup step.
	EnableReformulation bool

	// ModelsFile is the YAML file the model list and phrase list were
	// loaded from, if any. Kept so the guard can watch it for changes.
	ModelsFile string
}

// modelsFile is the YAML schema of the optional models/phrases file.
type modelsFile struct {
	ComparisonModels    []ComparisonModel `yaml:"comparison_models"`
	InsufficientPhrases []string          `yaml:"insufficient_phrases"`
}

// =============================================================================
// Construction
// =============================================================================

// FromEnv builds a Config from the process environment, applying defaults
// for everything optional.
//
// # Environment
//
//	CHATCORE_PORT               listen port (default 12310)
//	RETRIEVAL_SERVICE_URL       retrieval collaborator base URL
//	AUTH_SERVICE_URL            session-validation collaborator base URL
//	EVENT_SINK_URL              analytics sink base URL
//	OPENROUTER_API_KEY          provider credential
//	OPENROUTER_BASE_URL         provider endpoint (default OpenRouter)
//	PRIMARY_MODEL_ID            default generation model
//	CONTEXT_TOKEN_BUDGET        prompt context budget (default 3500)
//	GENERATION_TEMPERATURE      default 0.4
//	GENERATION_MAX_TOKENS       default 1200
//	GENERATION_TIMEOUT_SECONDS  per-call timeout (default 60)
//	ENABLE_QUERY_REFORMULATION  default true ("false"/"0" disables)
//	MODELS_CONFIG_FILE          optional YAML with comparison models and
//	                            guard phrases
//
// Malformed numeric values fall back to their defaults with a warning
// rather than failing startup.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:                envOr("CHATCORE_PORT", defaultPort),
		RetrievalURL:        envOr("RETRIEVAL_SERVICE_URL", "http://lodestar-retrieval:8002"),
		AuthServiceURL:      os.Getenv("AUTH_SERVICE_URL"),
		EventSinkURL:        os.Getenv("EVENT_SINK_URL"),
		ProviderAPIKey:      os.Getenv("OPENROUTER_API_KEY"),
		ProviderBaseURL:     envOr("OPENROUTER_BASE_URL", defaultBaseURL),
		PrimaryModelID:      envOr("PRIMARY_MODEL_ID", defaultPrimaryModel),
		ComparisonModels:    DefaultComparisonModels(),
		InsufficientPhrases: DefaultInsufficientPhrases(),
		ContextTokenBudget:  envIntOr("CONTEXT_TOKEN_BUDGET", DefaultContextTokenBudget),
		ChunkCharCap:        envIntOr("CHUNK_CHAR_CAP", DefaultChunkCharCap),
		Temperature:         envFloatOr("GENERATION_TEMPERATURE", DefaultTemperature),
		MaxOutputTokens:     envIntOr("GENERATION_MAX_TOKENS", DefaultMaxOutputTokens),
		CallTimeout:         time.Duration(envIntOr("GENERATION_TIMEOUT_SECONDS", int(DefaultCallTimeout/time.Second))) * time.Second,
		RetrievalTimeout:    DefaultRetrievalTimeout,
		ReformulateTimeout:  DefaultReformulateTimeout,
		EnableReformulation: envBoolOr("ENABLE_QUERY_REFORMULATION", true),
	}

	if path := os.Getenv("MODELS_CONFIG_FILE"); path != "" {
		if err := cfg.loadModelsFile(path); err != nil {
			return nil, fmt.Errorf("loading models config file: %w", err)
		}
		cfg.ModelsFile = path
	}

	if len(cfg.ComparisonModels) == 0 {
		return nil, fmt.Errorf("comparison model list must not be empty")
	}
	return cfg, nil
}

// DefaultComparisonModels returns the built-in three-model comparison
// list used when no models file is configured.
func DefaultComparisonModels() []ComparisonModel {
	return []ComparisonModel{
		{ID: "google/gemma-3n-e2b-it:free", Name: "Gemma 3n"},
		{ID: "meta-llama/llama-3.3-8b-instruct:free", Name: "Llama 3.3"},
		{ID: "mistralai/mistral-7b-instruct:free", Name: "Mistral 7B"},
	}
}

// DefaultInsufficientPhrases returns the built-in phrase allow-list the
// anti-hallucination guard matches against answer openings. The list is
// heuristic; deployments tune it via the models file.
func DefaultInsufficientPhrases() []string {
	return []string{
		"does not contain",
		"doesn't contain",
		"do not contain",
		"don't contain",
		"not enough information",
		"cannot answer",
		"can't answer",
		"unable to answer",
		"no information",
	}
}

// loadModelsFile overlays the YAML file onto the config. Absent keys keep
// their current values.
func (c *Config) loadModelsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var mf modelsFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(mf.ComparisonModels) > 0 {
		c.ComparisonModels = mf.ComparisonModels
	}
	if len(mf.InsufficientPhrases) > 0 {
		c.InsufficientPhrases = mf.InsufficientPhrases
	}
	return nil
}

// LoadPhrases re-reads only the phrase list from a models file. Used by
// the guard's file watcher; returns nil, nil when the file has no phrase
// key so the caller keeps its current list.
func LoadPhrases(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mf modelsFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return mf.InsufficientPhrases, nil
}

// =============================================================================
// Env Helpers
// =============================================================================

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("Ignoring malformed integer env var", "key", key, "value", v)
		return fallback
	}
	return n
}

func envFloatOr(key string, fallback float32) float32 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil || f < 0 {
		slog.Warn("Ignoring malformed float env var", "key", key, "value", v)
		return fallback
	}
	return float32(f)
}

func envBoolOr(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("Ignoring malformed boolean env var", "key", key, "value", v)
		return fallback
	}
	return b
}
