// Copyright (C) 2025 Lodestar AI (dev@lodestar-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// EventSink delivers one event to the analytics backend.
type EventSink interface {
	Send(ctx context.Context, event Event) error
}

// ===== HTTP Sink =====

// HTTPEventSink posts events as JSON to the analytics collector.
type HTTPEventSink struct {
	url        string
	httpClient *http.Client
}

// NewHTTPEventSink builds a sink posting to url.
func NewHTTPEventSink(url string, timeout time.Duration) *HTTPEventSink {
	return &HTTPEventSink{
		url:        strings.TrimRight(url, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send posts the event. Any non-2xx status is an error.
func (s *HTTPEventSink) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("analytics sink returned status %d", resp.StatusCode)
	}
	return nil
}

// ===== Async Emitter =====

const (
	defaultQueueSize   = 256
	defaultSendTimeout = 5 * time.Second
)

// DropCounter is notified once per event discarded because the queue
// was full. Wired to a prometheus counter in production.
type DropCounter interface {
	IncAnalyticsDropped()
}

// Emitter accepts events from request paths.
type Emitter interface {
	Emit(event Event)
}

// AsyncEmitter decouples event delivery from request latency. Emit
// never blocks: events go into a bounded queue and a single background
// worker drains it. When the queue is full the event is dropped and
// counted; delivery failures are logged and swallowed. Analytics must
// never affect a chat response.
type AsyncEmitter struct {
	sink    EventSink
	queue   chan Event
	drops   DropCounter
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncEmitter starts the background worker.
func NewAsyncEmitter(sink EventSink, drops DropCounter) *AsyncEmitter {
	e := &AsyncEmitter{
		sink:    sink,
		queue:   make(chan Event, defaultQueueSize),
		drops:   drops,
		timeout: defaultSendTimeout,
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

// Emit enqueues the event, dropping it if the queue is full. Events
// emitted after Close are discarded.
func (e *AsyncEmitter) Emit(event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.queue <- event:
	default:
		if e.drops != nil {
			e.drops.IncAnalyticsDropped()
		}
		slog.Warn("Analytics queue full, event dropped",
			"event_type", event.EventType)
	}
}

// Close stops the worker after draining events already queued. The
// closed flag is flipped under the write lock, so no Emit can be
// mid-send on the queue when it closes.
func (e *AsyncEmitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	close(e.queue)
	<-e.done
}

func (e *AsyncEmitter) run() {
	defer close(e.done)
	for event := range e.queue {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		if err := e.sink.Send(ctx, event); err != nil {
			slog.Warn("Analytics event delivery failed",
				"event_type", event.EventType, "error", err)
		}
		cancel()
	}
}

// ===== Nop Emitter =====

// NopEmitter discards every event. Used when no sink URL is configured.
type NopEmitter struct{}

// Emit discards the event.
func (NopEmitter) Emit(_ Event) {}
