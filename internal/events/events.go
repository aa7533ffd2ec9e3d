package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Имена доменных событий, они же routing key в обменнике.
const (
	InvitationCreated  = "invitation.created"
	ProposalAccepted   = "proposal.accepted"
	MilestoneSubmitted = "milestone.submitted"
	InvoiceIssued      = "invoice.issued"
	MilestonePaid      = "milestone.paid"
)

// Event сообщение, которое получает воркер.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Type       string         `json:"type"`
	Recipients []uuid.UUID    `json:"recipients"`
	Data       map[string]any `json:"data"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// New собирает событие с идентификатором и временем.
func New(eventType string, data map[string]any, recipients ...uuid.UUID) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		Recipients: recipients,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher отправляет доменные события.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher используется, когда брокер не настроен.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
