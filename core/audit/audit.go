// Package audit records security-relevant events of the mentorship platform:
// sign-ins, sign-outs, profile provisioning and route authorization denials.
package audit

import (
	"context"
	"time"

	"github.com/getkayan/mentorship/core/identity"
	"github.com/google/uuid"
)

// RiskLevel categorizes the severity of audit events.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// AuditEvent represents a structured security event record.
type AuditEvent struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`       // e.g., "auth.login.success"
	ActorID   string        `json:"actor_id"`   // The principal performing the action
	SubjectID string        `json:"subject_id"` // The affected principal or route
	Status    string        `json:"status"`     // "success", "failure", "blocked"
	Message   string        `json:"message"`
	Metadata  identity.JSON `json:"metadata,omitempty"`
	Risk      RiskLevel     `json:"risk,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// AuditStore defines the interface for persisting and querying audit events.
type AuditStore interface {
	// SaveEvent persists an audit event.
	SaveEvent(ctx context.Context, event *AuditEvent) error

	// Query returns events matching the filter, newest first.
	Query(ctx context.Context, filter Filter) ([]AuditEvent, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter Filter) (int64, error)

	// Purge deletes events older than the specified time.
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

// Filter for querying audit events. Zero fields match everything.
type Filter struct {
	ActorID   string
	SubjectID string
	Types     []string
	Statuses  []string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// Match reports whether e satisfies the filter.
func (f Filter) Match(e *AuditEvent) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.SubjectID != "" && e.SubjectID != f.SubjectID {
		return false
	}
	if len(f.Types) > 0 && !contains(f.Types, e.Type) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, e.Status) {
		return false
	}
	if !f.StartTime.IsZero() && e.CreatedAt.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.CreatedAt.After(f.EndTime) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

const (
	// Authentication events
	EventLoginSuccess   = "auth.login.success"
	EventLoginFailure   = "auth.login.failure"
	EventLoginBlocked   = "auth.login.blocked"
	EventLogout         = "auth.logout"
	EventSessionRevoked = "auth.session.revoked"
	EventPasswordReset  = "auth.password.reset"

	// Registration events
	EventRegistrationSuccess = "identity.registration.success"
	EventRegistrationFailure = "identity.registration.failure"

	// Profile events
	EventProfileProvisioned = "profile.provisioned"

	// Authorization events
	EventRouteDenied = "guard.route.denied"
)

// EventBuilder provides a fluent API for creating audit events.
type EventBuilder struct {
	event *AuditEvent
}

// NewEvent starts building a new audit event.
func NewEvent(eventType string) *EventBuilder {
	return &EventBuilder{
		event: &AuditEvent{
			Type:      eventType,
			CreatedAt: time.Now().UTC(),
			Risk:      RiskLow,
		},
	}
}

func (b *EventBuilder) Actor(actorID string) *EventBuilder {
	b.event.ActorID = actorID
	return b
}

func (b *EventBuilder) Subject(subjectID string) *EventBuilder {
	b.event.SubjectID = subjectID
	return b
}

func (b *EventBuilder) Success() *EventBuilder {
	b.event.Status = "success"
	return b
}

func (b *EventBuilder) Failure() *EventBuilder {
	b.event.Status = "failure"
	return b
}

func (b *EventBuilder) Blocked() *EventBuilder {
	b.event.Status = "blocked"
	return b
}

// Status sets an outcome other than success, failure or blocked.
func (b *EventBuilder) Status(status string) *EventBuilder {
	b.event.Status = status
	return b
}

func (b *EventBuilder) Message(msg string) *EventBuilder {
	b.event.Message = msg
	return b
}

func (b *EventBuilder) Risk(level RiskLevel) *EventBuilder {
	b.event.Risk = level
	return b
}

func (b *EventBuilder) Metadata(meta identity.JSON) *EventBuilder {
	b.event.Metadata = meta
	return b
}

// Build returns the constructed event.
func (b *EventBuilder) Build() *AuditEvent {
	return b.event
}

// Save persists the event using the provided store.
func (b *EventBuilder) Save(ctx context.Context, store AuditStore) error {
	return store.SaveEvent(ctx, b.event)
}

// prepare fills the ID and timestamp of an event that lacks them.
func prepare(e *AuditEvent) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
}
