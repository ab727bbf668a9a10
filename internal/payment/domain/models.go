package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Event types delivered by the payment processor feed. Delivery is
// at-least-once and unordered, so every handler must be idempotent.
const (
	EventInvoicePaid          = "invoice.paid"
	EventInvoiceVoided        = "invoice.voided"
	EventInvoiceUncollectible = "invoice.uncollectible"
	EventChargeRefunded       = "charge.refunded"
	EventDisputeOpened        = "dispute.opened"
	EventDisputeClosed        = "dispute.closed"
)

const (
	DisputeOutcomeWon  = "won"
	DisputeOutcomeLost = "lost"
)

// Event is one normalized payment-processor notification.
type Event struct {
	Provider        string
	ProviderEventID string
	Type            string
	InvoiceID       snowflake.ID
	DisputeOutcome  string
	Payload         map[string]any
}

// PaymentEvent is the persisted copy of a received event. The unique index
// on (provider, provider_event_id) records redeliveries as the same row.
type PaymentEvent struct {
	ID              snowflake.ID      `gorm:"primaryKey"`
	Provider        string            `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:1"`
	ProviderEventID string            `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:2"`
	EventType       string            `gorm:"type:text;not null;index"`
	InvoiceID       snowflake.ID      `gorm:"not null;index"`
	DisputeOutcome  string            `gorm:"type:text"`
	Payload         datatypes.JSONMap `gorm:"type:jsonb"`
	ProcessedAt     *time.Time
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentEvent) TableName() string { return "payment_events" }

type Service interface {
	// ProcessEvent records the event and routes it to crediting or
	// reversal. Unknown event types are a logged no-op.
	ProcessEvent(ctx context.Context, event Event) error
}

var (
	ErrInvalidEvent = errors.New("invalid_payment_event")
)
