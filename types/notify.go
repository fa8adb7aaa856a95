package types

import (
	"context"
)

type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Query selects documents of Collection whose Field equals Value.
type Query struct {
	Collection string `json:"collection"`
	Field      string `json:"field"`
	Value      string `json:"value"`
}

// ChangeEvent is a trigger only; its fields are informational.
type ChangeEvent struct {
	Type       ChangeType `json:"type"`
	DocumentID string     `json:"document_id"`
	TicketID   string     `json:"ticket_id,omitempty"`
	Status     string     `json:"status,omitempty"`
}

// SnapshotHandler receives either a batch of changes or an error.
type SnapshotHandler func(changes []ChangeEvent, err error)

type Registration interface {
	Remove()
}

type NotificationSource interface {
	LifecycleManager
	Listen(ctx context.Context, query Query, handler SnapshotHandler) (Registration, error)
}

type NotificationSourceCreator func(config interface{}) (NotificationSource, error)

type ConnectionStateListener interface {
	OnConnected()
	OnDisconnected()
	OnError(err error)
}

// TicketChangeHandler receives per-document changes from ticket listeners.
type TicketChangeHandler interface {
	OnTicketAssigned(event ChangeEvent)
	OnTicketUpdated(event ChangeEvent)
	OnTicketRemoved(event ChangeEvent)
	OnTicketStatusChanged(ticketID, status string)
}

type ScheduleChangeHandler interface {
	OnScheduleChanged(schedule []ScheduledTicket)
	OnError(err error)
}
