// Package audit provides tamper-evident audit logging for CA operations.
//
// Audit logs are separate from technical logs: JSONL, hash-chained, synced on
// every write. Key principles:
//   - Audit failure = Operation failure
//   - Never log secrets (private keys, passphrases)
//   - All timestamps in UTC
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// EventType represents the category of audit event.
type EventType string

const (
	EventCACreated    EventType = "CA_CREATED"
	EventCALoaded     EventType = "CA_LOADED"
	EventKeyAccessed  EventType = "KEY_ACCESSED"
	EventCertIssued   EventType = "CERT_ISSUED"
	EventCertRevoked  EventType = "CERT_REVOKED"
	EventCRLGenerated EventType = "CRL_GENERATED"
	EventAuthFailed   EventType = "AUTH_FAILED"
)

// Result represents the outcome of an audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Actor represents who performed the action.
type Actor struct {
	Type string `json:"type"` // "user", "system", "service"
	ID   string `json:"id"`
	Host string `json:"host,omitempty"`
}

// Object represents what was acted upon.
type Object struct {
	Type    string `json:"type"` // "certificate", "ca", "crl", "key"
	Serial  string `json:"serial,omitempty"`
	Subject string `json:"subject,omitempty"`
	Path    string `json:"path,omitempty"`
}

// Context provides additional details about the operation.
type Context struct {
	Scope   string `json:"scope,omitempty"`   // issuing CA scope
	Profile string `json:"profile,omitempty"` // certificate type profile
	Reason  string `json:"reason,omitempty"`  // revocation or failure reason
}

// Event represents a single audit log entry.
type Event struct {
	EventType EventType `json:"event_type"`
	Timestamp string    `json:"timestamp"` // RFC3339 UTC
	Actor     Actor     `json:"actor"`
	Object    Object    `json:"object"`
	Context   Context   `json:"context,omitempty"`
	Result    Result    `json:"result"`
	HashPrev  string    `json:"hash_prev"`
	Hash      string    `json:"hash"`
}

// NewEvent creates an audit event with the current timestamp and actor info.
func NewEvent(eventType EventType, result Result) *Event {
	hostname, _ := os.Hostname()
	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME") // Windows
	}
	if username == "" {
		username = "unknown"
	}

	return &Event{
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Actor: Actor{
			Type: "user",
			ID:   username,
			Host: hostname,
		},
		Result: result,
	}
}

// WithObject sets the object field.
func (e *Event) WithObject(obj Object) *Event {
	e.Object = obj
	return e
}

// WithContext sets the context field.
func (e *Event) WithContext(ctx Context) *Event {
	e.Context = ctx
	return e
}

// Validate checks that required fields are present.
func (e *Event) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.Timestamp == "" {
		return fmt.Errorf("timestamp is required")
	}
	if e.Actor.Type == "" || e.Actor.ID == "" {
		return fmt.Errorf("actor type and id are required")
	}
	if e.Result == "" {
		return fmt.Errorf("result is required")
	}
	return nil
}

// CanonicalJSON returns the event as canonical JSON for hashing. The Hash
// field is excluded so the hash can be computed over it.
func (e *Event) CanonicalJSON() ([]byte, error) {
	type eventForHash struct {
		EventType EventType `json:"event_type"`
		Timestamp string    `json:"timestamp"`
		Actor     Actor     `json:"actor"`
		Object    Object    `json:"object"`
		Context   Context   `json:"context,omitempty"`
		Result    Result    `json:"result"`
		HashPrev  string    `json:"hash_prev"`
	}

	return json.Marshal(eventForHash{
		EventType: e.EventType,
		Timestamp: e.Timestamp,
		Actor:     e.Actor,
		Object:    e.Object,
		Context:   e.Context,
		Result:    e.Result,
		HashPrev:  e.HashPrev,
	})
}

// JSON returns the full event as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}
