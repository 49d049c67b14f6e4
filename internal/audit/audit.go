// Package audit records every security decision the service makes. Emission
// is best-effort and asynchronous; it never blocks or fails the control flow
// that produced the event.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event names emitted by the authentication flows.
const (
	EventLoginSuccess       = "login_success"
	EventLoginFailure       = "login_failure"
	EventLoginRateLimited   = "login_rate_limited"
	EventMFAChallengeIssued = "mfa_challenge_issued"
	EventMFAVerifySuccess   = "mfa_verify_success"
	EventMFAVerifyFailure   = "mfa_verify_failure"
	EventMFARateLimited     = "mfa_rate_limited"
	EventRefreshSuccess     = "refresh_success"
	EventRefreshInvalid     = "refresh_invalid"
	EventRefreshRateLimited = "refresh_rate_limited"
	EventSessionRevoked     = "session_revoked"
	EventLogoutSession      = "logout_session"
	EventLogoutOthers       = "logout_others"
	EventLogoutAll          = "logout_all"
	EventIntrospection      = "token_introspection"
)

// Event is the canonical audit record. Reason carries the internal failure
// subtype that is deliberately absent from client-facing responses.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Reason    string            `json:"reason,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel. Useful for tests
// and for callers that forward events to their own pipeline.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
