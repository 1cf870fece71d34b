// Package queue defines the domain events this service publishes, the
// Publisher interface the email service depends on, and the message
// payloads exchanged over the broker.
package queue

import "context"

// Queue names used on the broker.  EmailEventsQueue carries the events
// below; UserCreatedQueue is populated by the external account system
// whenever a new user account is created.
const (
	EmailEventsQueue = "email.events"
	UserCreatedQueue = "user.created"
)

// Event is a domain event with a stable type name.  Events are
// fire-and-forget: publish failures are logged and returned but never
// interrupt the operation that raised them.
type Event interface {
	EventType() string
}

// Publisher delivers events to downstream consumers.  The email
// service receives an implementation at construction time rather than
// dispatching through any process-wide bus, which keeps event handling
// explicit and testable.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// UnconfirmedEmailCreatedEvent is published when a new unconfirmed
// address is created for a user.  Downstream consumers typically react
// by sending a confirmation link.
type UnconfirmedEmailCreatedEvent struct {
	UserID uint64 `json:"user_id"`
	Email  string `json:"email"`
}

func (UnconfirmedEmailCreatedEvent) EventType() string { return "email.unconfirmed_created" }

// EmailConfirmedEvent is published exactly once per confirmation
// transition.  Repeated confirms of an already-confirmed key do not
// produce additional events.
type EmailConfirmedEvent struct {
	UserID      uint64 `json:"user_id"`
	Email       string `json:"email"`
	ConfirmedAt string `json:"confirmed_at"`
}

func (EmailConfirmedEvent) EventType() string { return "email.confirmed" }

// PrimaryEmailChangedEvent is published when the primary email
// attribute actually changes value.  Setting the primary to its
// current value emits nothing.
type PrimaryEmailChangedEvent struct {
	UserID   uint64 `json:"user_id"`
	OldEmail string `json:"old_email"`
	NewEmail string `json:"new_email"`
}

func (PrimaryEmailChangedEvent) EventType() string { return "email.primary_changed" }

// UserCreatedMessage is the payload the external account system
// publishes on UserCreatedQueue when a new account is created.
type UserCreatedMessage struct {
	UserID uint64 `json:"user_id"`
	Email  string `json:"email"`
}
