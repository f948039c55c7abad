package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventStatusChanged    ActivityEventType = "profile.status.changed"
	ActivityEventProfileCreated   ActivityEventType = "profile.created"
	ActivityEventSignupStarted    ActivityEventType = "signup.started"
	ActivityEventSignupCompleted  ActivityEventType = "signup.completed"
	ActivityEventLinkRequested    ActivityEventType = "signup.link.requested"
	ActivityEventLinkCompleted    ActivityEventType = "signup.link.completed"
	ActivityEventEmailVerified    ActivityEventType = "profile.email.verified"
	ActivityEventDuplicateProfile ActivityEventType = "profile.duplicate.create"
)

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	IdentityID string
	FromStatus Status
	ToStatus   Status
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Sinks run best-effort: errors are logged and never block the flow that
// produced the event.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
